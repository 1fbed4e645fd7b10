package threadpool

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Size        int   // Workers created by Build
	LiveWorkers int   // Workers not yet terminated
	Queued      int   // Jobs waiting in the queue
	Submitted   int64 // Jobs accepted by Execute
	Completed   int64 // Jobs that returned normally
	Panicked    int64 // Jobs that panicked
	Exited      int64 // Jobs that called runtime.Goexit
	Respawned   int64 // Worker slots refilled after a panic
	Closed      bool  // Teardown has started
	Poisoned    bool  // The shared receive lock was poisoned
}
