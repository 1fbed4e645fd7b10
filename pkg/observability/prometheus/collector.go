package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fluxorio/threadpool/pkg/threadpool"
)

// PoolCollector reads ThreadPool.Stats on every scrape.
type PoolCollector struct {
	pool *threadpool.ThreadPool

	size      *prometheus.Desc
	live      *prometheus.Desc
	queued    *prometheus.Desc
	submitted *prometheus.Desc
	completed *prometheus.Desc
	panicked  *prometheus.Desc
	respawned *prometheus.Desc
}

// NewPoolCollector returns a collector labelled with the pool name.
func NewPoolCollector(p *threadpool.ThreadPool) *PoolCollector {
	labels := prometheus.Labels{"pool": p.Name()}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("threadpool_"+name, help, nil, labels)
	}
	return &PoolCollector{
		pool:      p,
		size:      desc("size", "Workers created at construction"),
		live:      desc("workers_live", "Workers not yet terminated"),
		queued:    desc("queue_length", "Jobs waiting in the queue"),
		submitted: desc("submitted_total", "Jobs accepted by Execute"),
		completed: desc("completed_total", "Jobs that returned normally"),
		panicked:  desc("panicked_total", "Jobs that panicked"),
		respawned: desc("respawned_total", "Worker slots refilled after a panic"),
	}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.size
	ch <- c.live
	ch <- c.queued
	ch <- c.submitted
	ch <- c.completed
	ch <- c.panicked
	ch <- c.respawned
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.pool.Stats()
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(s.Size))
	ch <- prometheus.MustNewConstMetric(c.live, prometheus.GaugeValue, float64(s.LiveWorkers))
	ch <- prometheus.MustNewConstMetric(c.queued, prometheus.GaugeValue, float64(s.Queued))
	ch <- prometheus.MustNewConstMetric(c.submitted, prometheus.CounterValue, float64(s.Submitted))
	ch <- prometheus.MustNewConstMetric(c.completed, prometheus.CounterValue, float64(s.Completed))
	ch <- prometheus.MustNewConstMetric(c.panicked, prometheus.CounterValue, float64(s.Panicked))
	ch <- prometheus.MustNewConstMetric(c.respawned, prometheus.CounterValue, float64(s.Respawned))
}
