package threadpool

import "time"

// Job is a unit of work. It takes no arguments and returns nothing; callers
// capture whatever the job needs in the closure before submitting it.
type Job func()

// envelope is what travels through the queue.
type envelope struct {
	seq      uint64
	job      Job
	enqueued time.Time
}
