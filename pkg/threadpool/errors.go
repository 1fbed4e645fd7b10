package threadpool

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSize is matched by the error Build returns for size < 1.
	ErrInvalidSize = errors.New("threadpool: invalid size")

	// ErrQueueClosed is returned when sending to or receiving from a closed queue.
	// Execute returns it after the pool has been torn down.
	ErrQueueClosed = errors.New("threadpool: job queue closed")

	// ErrLockPoisoned is reported by a worker that found the shared receive
	// lock poisoned by a peer.
	ErrLockPoisoned = errors.New("threadpool: receive lock poisoned")

	// ErrReceiverPanic is reported by the worker whose receive panicked and
	// poisoned the lock.
	ErrReceiverPanic = errors.New("threadpool: panic while receiving")

	// ErrJobPanic is reported by a worker terminated by a panicking job.
	ErrJobPanic = errors.New("threadpool: job panicked")

	// ErrJobExited is reported by a worker whose job called runtime.Goexit.
	ErrJobExited = errors.New("threadpool: job exited its goroutine")

	// ErrNilJob is returned by Execute for a nil job.
	ErrNilJob = errors.New("threadpool: nil job")
)

// PoolCreationError is returned by Build. It matches ErrInvalidSize.
type PoolCreationError struct {
	Size int
}

func (e *PoolCreationError) Error() string {
	return fmt.Sprintf("threadpool: invalid size %d, need at least 1 worker", e.Size)
}

func (e *PoolCreationError) Is(target error) bool {
	return target == ErrInvalidSize
}

// WorkerError describes why a worker stopped abnormally.
type WorkerError struct {
	WorkerID int
	// Job is the sequence number of the job that panicked, 0 otherwise.
	Job   uint64
	Err   error
	Panic interface{}
	Stack []byte
}

func (e *WorkerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("worker %d: %v: %v", e.WorkerID, e.Err, e.Panic)
	}
	return fmt.Sprintf("worker %d: %v", e.WorkerID, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }
