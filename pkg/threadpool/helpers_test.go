package threadpool

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/fluxorio/threadpool/pkg/core"
)

// syncBuffer is a bytes.Buffer safe for the several log.Logger instances
// behind core.Logger writing to it concurrently.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func quietLogger() core.Logger {
	return core.NopLogger()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func mustBuild(t *testing.T, size int, opts ...Option) *ThreadPool {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	p, err := Build(size, opts...)
	if err != nil {
		t.Fatalf("Build(%d) error = %v", size, err)
	}
	return p
}
