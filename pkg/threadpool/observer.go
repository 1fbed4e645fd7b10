package threadpool

import "time"

// Observer receives pool lifecycle events. Calls are made synchronously from
// the submitting goroutine or the worker goroutine, so implementations must
// be cheap and safe for concurrent use.
type Observer interface {
	// JobQueued is called after a job was enqueued; depth includes it.
	// It runs with the queue lock held and must not call back into the pool.
	JobQueued(depth int)

	// JobStarted is called when a worker picks a job up.
	JobStarted(workerID int, wait time.Duration)

	// JobFinished is called when a job returned or panicked.
	JobFinished(workerID int, took time.Duration, panicked bool)

	// WorkerStopped is called once per worker slot when it terminates.
	// err is nil for a normal exit on a closed queue.
	WorkerStopped(workerID int, err error)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) JobQueued(int)                        {}
func (NopObserver) JobStarted(int, time.Duration)        {}
func (NopObserver) JobFinished(int, time.Duration, bool) {}
func (NopObserver) WorkerStopped(int, error)             {}
