package threadpool

import (
	"sync"
	"sync/atomic"
)

// jobSource is the consumer side shared by workers.
type jobSource interface {
	recv() (envelope, error)
}

// sharedReceiver lets many workers use one single-consumer receiver. The
// mutex is held for exactly one recv call. A panic during recv poisons it.
type sharedReceiver struct {
	mu       sync.Mutex
	src      jobSource
	poisoned atomic.Bool
}

func newSharedReceiver(src jobSource) *sharedReceiver {
	return &sharedReceiver{src: src}
}

// receive takes the lock, receives one envelope and releases the lock on
// every path. If src panics the lock is marked poisoned before the panic
// continues up to the caller.
func (r *sharedReceiver) receive() (env envelope, err error) {
	r.mu.Lock()
	if r.poisoned.Load() {
		r.mu.Unlock()
		return envelope{}, ErrLockPoisoned
	}

	ok := false
	defer func() {
		if !ok {
			r.poisoned.Store(true)
		}
		r.mu.Unlock()
	}()

	env, err = r.src.recv()
	ok = true
	return env, err
}

func (r *sharedReceiver) isPoisoned() bool {
	return r.poisoned.Load()
}
