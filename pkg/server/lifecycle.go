package server

import (
	"errors"
	"sync"

	"github.com/fluxorio/threadpool/pkg/core"
)

// ErrAlreadyStarted is returned by a second Start.
var ErrAlreadyStarted = errors.New("server: already started")

// lifecycle tracks Start/Stop state and dispatches to the concrete server's
// hooks.
type lifecycle struct {
	name string

	mu      sync.RWMutex
	started bool
	stopped bool

	logger core.Logger

	// Embedded-method "overrides" are not dispatched dynamically, so the
	// concrete server registers explicit hooks.
	startHook func() error
	stopHook  func() error
}

func newLifecycle(name string, logger core.Logger) *lifecycle {
	if logger == nil {
		logger = core.NewDefaultLogger()
	}
	return &lifecycle{name: name, logger: logger}
}

func (l *lifecycle) setHooks(startHook, stopHook func() error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.startHook = startHook
	l.stopHook = stopHook
}

// Start runs the start hook. It blocks for as long as the hook does.
func (l *lifecycle) Start() error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return ErrAlreadyStarted
	}
	startHook := l.startHook
	// Mark started before invoking the hook so IsStarted reflects runtime
	// state while the hook blocks.
	l.started = true
	l.mu.Unlock()

	if startHook == nil {
		return nil
	}
	if err := startHook(); err != nil {
		l.mu.Lock()
		l.started = false
		l.mu.Unlock()
		return err
	}
	return nil
}

// Stop runs the stop hook once. Later calls return nil.
func (l *lifecycle) Stop() error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return nil
	}
	stopHook := l.stopHook
	l.mu.Unlock()

	if stopHook != nil {
		if err := stopHook(); err != nil {
			return err
		}
	}

	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
	return nil
}

// Name returns the server name used in log lines.
func (l *lifecycle) Name() string {
	return l.name
}

// Logger returns the server logger.
func (l *lifecycle) Logger() core.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.logger
}

// IsStarted returns whether the server has been started
func (l *lifecycle) IsStarted() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.started
}

// IsStopped returns whether the server has been stopped
func (l *lifecycle) IsStopped() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stopped
}
