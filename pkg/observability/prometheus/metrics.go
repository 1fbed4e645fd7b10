package prometheus

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fluxorio/threadpool/pkg/core/failfast"
	"github.com/fluxorio/threadpool/pkg/threadpool"
)

// Metrics holds the collectors for the pool and the request server.
type Metrics struct {
	// Pool metrics
	JobsQueued     prometheus.Gauge
	JobsFinished   *prometheus.CounterVec // outcome: ok, panic
	JobWaitSeconds prometheus.Histogram
	JobRunSeconds  prometheus.Histogram
	BusyWorkers    prometheus.Gauge
	WorkersStopped *prometheus.CounterVec // reason: closed, job_panic, lock_poisoned, receiver_panic

	// Server metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	ConnectionsAccepted prometheus.Counter
	ConnectionsRejected prometheus.Counter
	ConnectionsInFlight prometheus.Gauge

	registerer prometheus.Registerer
}

// NewMetrics creates and registers a metrics collection on registerer.
// Registering twice on the same registerer panics.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	failfast.NotNil(registerer, "registerer")
	f := promauto.With(registerer)

	return &Metrics{
		JobsQueued: f.NewGauge(prometheus.GaugeOpts{
			Name: "threadpool_jobs_queued",
			Help: "Jobs submitted but not yet picked up by a worker",
		}),
		JobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "threadpool_jobs_finished_total",
			Help: "Jobs that ran to completion or panicked",
		}, []string{"outcome"}),
		JobWaitSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "threadpool_job_wait_seconds",
			Help:    "Time a job spent in the queue before a worker received it",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}),
		JobRunSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "threadpool_job_run_seconds",
			Help:    "Job execution time",
			Buckets: prometheus.DefBuckets,
		}),
		BusyWorkers: f.NewGauge(prometheus.GaugeOpts{
			Name: "threadpool_workers_busy",
			Help: "Workers currently executing a job",
		}),
		WorkersStopped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "threadpool_workers_stopped_total",
			Help: "Worker terminations by reason",
		}, []string{"reason"}),

		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hello_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hello_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		ConnectionsAccepted: f.NewCounter(prometheus.CounterOpts{
			Name: "hello_connections_accepted_total",
			Help: "Connections accepted by the listener",
		}),
		ConnectionsRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "hello_connections_rejected_total",
			Help: "Connections answered with 503 because the in-flight limit was reached",
		}),
		ConnectionsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "hello_connections_in_flight",
			Help: "Connections queued or being handled",
		}),

		registerer: registerer,
	}
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	code := statusCodeString(status)
	m.HTTPRequestsTotal.WithLabelValues(method, path, code).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
}

// PoolObserver returns a threadpool.Observer feeding the pool metrics.
func (m *Metrics) PoolObserver() threadpool.Observer {
	return poolObserver{m: m}
}

// RegisterPool exposes the pool's Stats as gauges and counters read at
// scrape time.
func (m *Metrics) RegisterPool(p *threadpool.ThreadPool) error {
	return m.registerer.Register(NewPoolCollector(p))
}

type poolObserver struct {
	m *Metrics
}

func (o poolObserver) JobQueued(int) {
	o.m.JobsQueued.Inc()
}

func (o poolObserver) JobStarted(_ int, wait time.Duration) {
	o.m.JobsQueued.Dec()
	o.m.BusyWorkers.Inc()
	o.m.JobWaitSeconds.Observe(wait.Seconds())
}

func (o poolObserver) JobFinished(_ int, took time.Duration, panicked bool) {
	o.m.BusyWorkers.Dec()
	o.m.JobRunSeconds.Observe(took.Seconds())
	outcome := "ok"
	if panicked {
		outcome = "panic"
	}
	o.m.JobsFinished.WithLabelValues(outcome).Inc()
}

func (o poolObserver) WorkerStopped(_ int, err error) {
	o.m.WorkersStopped.WithLabelValues(stopReason(err)).Inc()
}

func stopReason(err error) string {
	switch {
	case err == nil:
		return "closed"
	case errors.Is(err, threadpool.ErrJobPanic):
		return "job_panic"
	case errors.Is(err, threadpool.ErrLockPoisoned):
		return "lock_poisoned"
	case errors.Is(err, threadpool.ErrReceiverPanic):
		return "receiver_panic"
	case errors.Is(err, threadpool.ErrJobExited):
		return "job_exited"
	default:
		return "other"
	}
}
