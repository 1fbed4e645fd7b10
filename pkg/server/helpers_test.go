package server

import (
	"bufio"
	"bytes"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/fluxorio/threadpool/pkg/core"
	"github.com/fluxorio/threadpool/pkg/threadpool"
)

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

func newPool(t *testing.T, size int, opts ...threadpool.Option) *threadpool.ThreadPool {
	t.Helper()
	opts = append([]threadpool.Option{threadpool.WithLogger(core.NopLogger())}, opts...)
	p, err := threadpool.Build(size, opts...)
	if err != nil {
		t.Fatalf("threadpool.Build(%d) error = %v", size, err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// startServer starts s in the background and waits until it listens.
func startServer(t *testing.T, s *Server) (string, <-chan error) {
	t.Helper()
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()
	t.Cleanup(func() { _ = s.Stop() })

	var addr string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		addr = s.ListeningAddr()
		if addr != "" {
			return addr, errCh
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("server did not start listening in time")
	return "", nil
}

func testConfig() *Config {
	cfg := DefaultConfig("127.0.0.1:0")
	cfg.ReadTimeout = 2 * time.Second
	cfg.WriteTimeout = 2 * time.Second
	cfg.Logger = core.NopLogger()
	return cfg
}

func send(addr, raw string) (*fasthttp.Response, error) {
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(3 * time.Second))

	if _, err := conn.Write([]byte(raw)); err != nil {
		return nil, err
	}
	resp := &fasthttp.Response{}
	if err := resp.Read(bufio.NewReader(conn)); err != nil {
		return nil, err
	}
	return resp, nil
}

func roundTrip(t *testing.T, addr, raw string) *fasthttp.Response {
	t.Helper()
	resp, err := send(addr, raw)
	if err != nil {
		t.Fatalf("request %q: %v", raw, err)
	}
	return resp
}

func get(path string) string {
	return "GET " + path + " HTTP/1.1\r\nHost: localhost\r\n\r\n"
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
