package threadpool

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/fluxorio/threadpool/pkg/core/failfast"
)

// WorkerState is the position of a worker in its receive/execute loop.
// Terminated is absorbing.
type WorkerState int32

const (
	StateListening WorkerState = iota
	StateExecuting
	StateTerminated
)

func (s WorkerState) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateExecuting:
		return "executing"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// worker is one slot of the pool. Normally one goroutine serves a slot for
// the lifetime of the pool; with respawn enabled a panicking job hands the
// slot over to a new goroutine.
type worker struct {
	id    int
	pool  *ThreadPool
	state atomic.Int32
	done  chan struct{}

	// err is written once before done is closed.
	err error

	// announced is guarded by pool.joinMu.
	announced bool
}

func newWorker(id int, p *ThreadPool) *worker {
	return &worker{
		id:   id,
		pool: p,
		done: make(chan struct{}),
	}
}

func (w *worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

func (w *worker) setState(s WorkerState) {
	w.state.Store(int32(s))
}

// run is the worker loop: Listening -> Executing on receive, back to
// Listening when the job returns, Terminated when the queue reports closed.
func (w *worker) run() {
	p := w.pool

	// A job calling runtime.Goexit unwinds this goroutine without panicking.
	// exited stays true on that path only, so the slot is still released.
	exited := true
	var current uint64
	defer func() {
		if exited {
			w.jobExited(current)
		}
	}()

	for {
		var (
			env envelope
			err error
		)
		recovered, stack, panicked := failfast.Catch(func() {
			env, err = p.rx.receive()
		})
		if panicked {
			exited = false
			p.logger.Errorf("worker %d: panic while holding the receive lock: %v", w.id, recovered)
			w.terminate(&WorkerError{WorkerID: w.id, Err: ErrReceiverPanic, Panic: recovered, Stack: stack})
			return
		}
		if err != nil {
			exited = false
			if errors.Is(err, ErrQueueClosed) {
				p.logger.Debugf("worker %d disconnected; shutting down", w.id)
				w.terminate(nil)
				return
			}
			p.logger.Errorf("worker %d: %v; terminating", w.id, err)
			w.terminate(&WorkerError{WorkerID: w.id, Err: err})
			return
		}

		w.setState(StateExecuting)
		current = env.seq
		if !w.execute(env) {
			exited = false
			return
		}
		w.setState(StateListening)
	}
}

// execute runs one job. It reports false when the job panicked and this
// goroutine must stop serving the slot.
func (w *worker) execute(env envelope) bool {
	p := w.pool
	p.logger.Debugf("worker %d got job %d; executing", w.id, env.seq)
	p.observer.JobStarted(w.id, time.Since(env.enqueued))

	start := time.Now()
	recovered, stack, panicked := failfast.Catch(env.job)
	p.observer.JobFinished(w.id, time.Since(start), panicked)

	if !panicked {
		p.completed.Add(1)
		return true
	}

	p.panicked.Add(1)
	werr := &WorkerError{WorkerID: w.id, Job: env.seq, Err: ErrJobPanic, Panic: recovered, Stack: stack}
	p.logger.Errorf("worker %d: job %d panicked: %v\n%s", w.id, env.seq, recovered, stack)

	if p.respawn {
		p.respawned.Add(1)
		p.logger.Warnf("worker %d: respawning after job %d panicked", w.id, env.seq)
		w.setState(StateListening)
		go w.run()
		return false
	}

	p.logger.Warnf("worker %d terminated by job %d and will not be replaced", w.id, env.seq)
	w.terminate(werr)
	return false
}

// jobExited handles a job that ended the worker goroutine with
// runtime.Goexit. It is treated like a panic without a recovered value.
func (w *worker) jobExited(seq uint64) {
	p := w.pool
	p.exited.Add(1)
	p.observer.JobFinished(w.id, 0, true)
	p.logger.Errorf("worker %d: job %d exited its goroutine", w.id, seq)

	if p.respawn {
		p.respawned.Add(1)
		p.logger.Warnf("worker %d: respawning after job %d exited", w.id, seq)
		w.setState(StateListening)
		go w.run()
		return
	}
	w.terminate(&WorkerError{WorkerID: w.id, Job: seq, Err: ErrJobExited})
}

func (w *worker) terminate(err error) {
	w.err = err
	w.setState(StateTerminated)
	w.pool.live.Add(-1)
	w.pool.observer.WorkerStopped(w.id, err)
	close(w.done)
}
