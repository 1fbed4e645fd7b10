package threadpool

import "sync"

// compactThreshold is how many consumed slots the queue tolerates at the
// front of its buffer before copying the live tail down.
const compactThreshold = 64

// jobQueue is an unbounded FIFO with a single producer handle and a single
// consumer handle. Go channels are bounded, so the buffer is a slice guarded
// by a mutex and a condition variable.
type jobQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []envelope
	head   int
	closed bool
}

// sender is the producer handle. Closing it closes the queue.
type sender struct {
	q    *jobQueue
	once sync.Once
}

// receiver is the consumer handle. It is not safe for concurrent use on its
// own; workers share it through sharedReceiver.
type receiver struct {
	q *jobQueue
}

func newJobQueue() (*sender, *receiver) {
	q := &jobQueue{}
	q.cond = sync.NewCond(&q.mu)
	return &sender{q: q}, &receiver{q: q}
}

// send enqueues env. If queued is non-nil it is called with the queue depth
// after the push, before the lock is released.
func (s *sender) send(env envelope, queued func(depth int)) error {
	q := s.q
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	q.items = append(q.items, env)
	if queued != nil {
		queued(len(q.items) - q.head)
	}
	q.cond.Signal()
	return nil
}

// close marks the queue closed and wakes every blocked receiver. Pending
// items stay available. Only the first call has an effect.
func (s *sender) close() {
	s.once.Do(func() {
		q := s.q
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		q.cond.Broadcast()
	})
}

// recv blocks until an item is available or the queue is closed and empty.
func (r *receiver) recv() (envelope, error) {
	q := r.q
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.head == len(q.items) && !q.closed {
		q.cond.Wait()
	}
	if q.head == len(q.items) {
		return envelope{}, ErrQueueClosed
	}

	env := q.items[q.head]
	q.items[q.head] = envelope{}
	q.head++

	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head >= compactThreshold && q.head*2 >= len(q.items):
		n := copy(q.items, q.items[q.head:])
		q.items = q.items[:n]
		q.head = 0
	}
	return env, nil
}

func (q *jobQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

func (q *jobQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
