package threadpool

import "github.com/fluxorio/threadpool/pkg/core"

// Option configures Build.
type Option func(*options)

type options struct {
	name     string
	logger   core.Logger
	observer Observer
	respawn  bool

	// source replaces the queue's consumer side; tests only.
	source jobSource
}

func defaultOptions() options {
	return options{
		name:     "threadpool",
		logger:   core.NewDefaultLogger(),
		observer: NopObserver{},
	}
}

// WithName sets the name used as a prefix in pool-level log lines.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets the logger. A nil logger keeps the default.
func WithLogger(logger core.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver installs lifecycle hooks, typically metrics.
func WithObserver(observer Observer) Option {
	return func(o *options) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// WithRespawn controls what happens after a job panics. When false (the
// default) the worker terminates and is not replaced, shrinking the pool.
// When true a fresh goroutine takes over the same worker slot.
func WithRespawn(respawn bool) Option {
	return func(o *options) {
		o.respawn = respawn
	}
}
