// Package threadpool runs jobs on a fixed set of worker goroutines.
//
// A ThreadPool owns an unbounded FIFO job queue and size workers. Workers
// share the consumer side of the queue behind a mutex that is held only for
// the receive itself, so one worker can pick up the next job while another
// is still executing.
//
// # Basic Usage
//
//	pool, err := threadpool.Build(4)
//	if err != nil {
//	    return err // errors.Is(err, threadpool.ErrInvalidSize)
//	}
//	defer pool.Close()
//
//	conn := accepted // capture by value, the pool passes no arguments
//	if err := pool.Execute(func() { handle(conn) }); err != nil {
//	    return err // only after Close
//	}
//
// # Shutdown
//
// Close relinquishes the producer side of the queue exactly once, which closes
// it, then joins every worker in construction order. Workers drain jobs that
// were already queued before they observe the closed queue, so Close returns
// only after all accepted work has run. Calling Close again is a no-op.
//
// # Failures
//
// A job that panics takes its worker down with it: the panic is logged, the
// worker terminates and the pool keeps running with one worker fewer. The
// failure is reported by Close as a *WorkerError wrapping ErrJobPanic.
// WithRespawn(true) refills the slot with a fresh goroutine instead.
//
// A panic while a worker holds the receive lock poisons it; every other worker
// then fails with ErrLockPoisoned rather than risk losing jobs silently.
package threadpool
