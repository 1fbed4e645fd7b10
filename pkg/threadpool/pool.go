package threadpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fluxorio/threadpool/pkg/core"
	"github.com/fluxorio/threadpool/pkg/core/failfast"
)

// ThreadPool runs submitted jobs on a fixed number of workers.
//
// Ownership:
//   - the pool owns every worker and joins each exactly once in Shutdown
//   - the pool owns the producer handle; tx is swapped to nil exactly once,
//     which is what closes the queue
//   - workers share the consumer handle through rx
type ThreadPool struct {
	name    string
	workers []*worker
	tx      atomic.Pointer[sender]
	rx      *sharedReceiver
	queue   *jobQueue

	logger   core.Logger
	observer Observer
	respawn  bool

	seq       atomic.Uint64
	live      atomic.Int32
	submitted atomic.Int64
	completed atomic.Int64
	panicked  atomic.Int64
	exited    atomic.Int64
	respawned atomic.Int64

	// Join progress, kept so an interrupted Shutdown can be resumed.
	joinMu   sync.Mutex
	joined   int
	joinErrs []error
	reported bool
}

// Build creates a pool with size workers. It fails with a *PoolCreationError
// (matching ErrInvalidSize) when size < 1, before any goroutine is started.
func Build(size int, opts ...Option) (*ThreadPool, error) {
	if size < 1 {
		return nil, &PoolCreationError{Size: size}
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	tx, rx := newJobQueue()
	var src jobSource = rx
	if o.source != nil {
		src = o.source
	}

	p := &ThreadPool{
		name:     o.name,
		workers:  make([]*worker, 0, size),
		rx:       newSharedReceiver(src),
		queue:    rx.q,
		logger:   o.logger,
		observer: o.observer,
		respawn:  o.respawn,
	}
	p.tx.Store(tx)

	for id := 0; id < size; id++ {
		p.workers = append(p.workers, newWorker(id, p))
	}
	p.live.Store(int32(size))
	for _, w := range p.workers {
		go w.run()
	}

	p.logger.Infof("%s: started %d workers", p.name, size)
	return p, nil
}

// Execute enqueues job for execution by the first available worker. It does
// not wait for the job to start. After teardown it returns ErrQueueClosed.
func (p *ThreadPool) Execute(job Job) error {
	if job == nil {
		return ErrNilJob
	}
	tx := p.tx.Load()
	if tx == nil {
		return ErrQueueClosed
	}

	env := envelope{seq: p.seq.Add(1), job: job, enqueued: time.Now()}
	// JobQueued runs under the queue lock so it precedes the JobStarted of
	// the worker that receives this job.
	if err := tx.send(env, p.observer.JobQueued); err != nil {
		return err
	}
	p.submitted.Add(1)
	return nil
}

// MustExecute is Execute for callers that treat submitting to a torn-down
// pool as a programming error. It panics with a *failfast.Violation.
func (p *ThreadPool) MustExecute(job Job) {
	failfast.Err(p.Execute(job))
}

// Close tears the pool down and waits for every worker. See Shutdown.
func (p *ThreadPool) Close() error {
	return p.Shutdown(context.Background())
}

// Shutdown closes the job queue, then joins the workers one by one in the
// order they were created. Jobs already queued are still executed by the
// remaining workers.
//
// If ctx ends before every worker has been joined, Shutdown returns an error
// wrapping ctx.Err(). The queue stays closed and workers finish on their own.
// A later Shutdown or Close resumes joining where the interrupted call
// stopped, so worker failures are still reported.
//
// Once every worker has been joined, the returned error joins the
// *WorkerError of every worker that terminated abnormally during the pool's
// lifetime. Later calls return nil. Concurrent callers wait for the one
// doing the join.
func (p *ThreadPool) Shutdown(ctx context.Context) error {
	if tx := p.tx.Swap(nil); tx != nil {
		tx.close()
		p.logger.Debugf("%s: queue closed with %d job(s) pending", p.name, p.queue.len())
	}

	p.joinMu.Lock()
	defer p.joinMu.Unlock()
	if p.reported {
		return nil
	}

	for ; p.joined < len(p.workers); p.joined++ {
		w := p.workers[p.joined]
		if !w.announced {
			w.announced = true
			p.logger.Infof("Shutting down worker %d", w.id)
		}
		select {
		case <-w.done:
		case <-ctx.Done():
			return fmt.Errorf("%s: shutdown interrupted while joining worker %d: %w", p.name, w.id, ctx.Err())
		}
		if w.err != nil {
			p.joinErrs = append(p.joinErrs, w.err)
		}
	}
	p.reported = true

	if n := p.queue.len(); n > 0 {
		p.logger.Warnf("%s: %d queued job(s) were never executed, no workers left", p.name, n)
	}
	p.logger.Infof("%s: all workers stopped", p.name)
	return errors.Join(p.joinErrs...)
}

// Size returns the number of workers created by Build.
func (p *ThreadPool) Size() int {
	return len(p.workers)
}

// LiveWorkers returns how many workers have not terminated.
func (p *ThreadPool) LiveWorkers() int {
	return int(p.live.Load())
}

// WorkerStates returns the state of each worker, indexed by worker id.
func (p *ThreadPool) WorkerStates() []WorkerState {
	states := make([]WorkerState, len(p.workers))
	for i, w := range p.workers {
		states[i] = w.State()
	}
	return states
}

// Stats returns a snapshot of the pool counters.
func (p *ThreadPool) Stats() Stats {
	return Stats{
		Size:        len(p.workers),
		LiveWorkers: int(p.live.Load()),
		Queued:      p.queue.len(),
		Submitted:   p.submitted.Load(),
		Completed:   p.completed.Load(),
		Panicked:    p.panicked.Load(),
		Exited:      p.exited.Load(),
		Respawned:   p.respawned.Load(),
		Closed:      p.tx.Load() == nil,
		Poisoned:    p.rx.isPoisoned(),
	}
}

// Name returns the pool name used in logs.
func (p *ThreadPool) Name() string {
	return p.name
}
