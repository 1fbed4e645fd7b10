// Package server is a minimal HTTP/1.1 server that hands every accepted
// connection to a worker pool as one job.
package server

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/fluxorio/threadpool/pkg/core"
	"github.com/fluxorio/threadpool/pkg/core/failfast"
	metrics "github.com/fluxorio/threadpool/pkg/observability/prometheus"
)

// rejectReadTimeout bounds how long the accept loop reads a request it is
// about to answer with 503.
const rejectReadTimeout = 100 * time.Millisecond

// Config configures the server.
type Config struct {
	Addr string

	// AcceptLimit stops accepting after that many connections. 0 means unlimited.
	AcceptLimit int
	// MaxInFlight bounds connections queued on the pool or being handled.
	// Connections over the limit get 503 from the accept loop. 0 means unlimited.
	MaxInFlight int

	// TLSConfig enables TLS when non-nil.
	TLSConfig *tls.Config

	// Connection settings.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Logger  core.Logger
	Metrics *metrics.Metrics
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig(addr string) *Config {
	if addr == "" {
		addr = "127.0.0.1:7878"
	}
	return &Config{
		Addr:         addr,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Server accepts connections and submits each one to an Executor.
// It owns no worker goroutines itself.
type Server struct {
	*lifecycle

	config  *Config
	pool    Executor
	metrics *metrics.Metrics

	mu          sync.RWMutex
	listener    net.Listener
	stopping    bool
	loopDone    chan struct{}
	handler     Handler
	middlewares []Middleware
	effective   Handler

	backpressure *BackpressureController

	totalAccepted      atomic.Int64
	rejected           atomic.Int64
	handledConnections atomic.Int64
	errorConnections   atomic.Int64
}

// New creates a server submitting connections to pool.
func New(pool Executor, config *Config) *Server {
	failfast.NotNil(pool, "pool")
	if config == nil {
		config = DefaultConfig("")
	}
	if config.Addr == "" {
		config.Addr = "127.0.0.1:7878"
	}
	if config.AcceptLimit < 0 {
		config.AcceptLimit = 0
	}
	if config.MaxInFlight < 0 {
		config.MaxInFlight = 0
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 10 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}

	s := &Server{
		lifecycle:    newLifecycle("hello-server", config.Logger),
		config:       config,
		pool:         pool,
		metrics:      config.Metrics,
		loopDone:     make(chan struct{}),
		handler:      defaultHandler,
		backpressure: NewBackpressureController(config.MaxInFlight),
	}
	s.effective = s.handler
	s.lifecycle.setHooks(s.doStart, s.doStop)
	return s
}

func defaultHandler(ctx *ConnContext) error {
	// Default: empty 200 response.
	return nil
}

// SetHandler sets the request handler (fail-fast on nil).
func (s *Server) SetHandler(handler Handler) {
	if handler == nil {
		panic("server handler cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
	s.rebuildHandlerLocked()
}

// Use adds middleware. Call before Start.
// Fail-fast: panics if any middleware is nil.
func (s *Server) Use(mw ...Middleware) {
	if len(mw) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range mw {
		if m == nil {
			panic("server middleware cannot be nil")
		}
		s.middlewares = append(s.middlewares, m)
	}
	s.rebuildHandlerLocked()
}

func (s *Server) rebuildHandlerLocked() {
	h := s.handler
	// First added runs outermost.
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		h = s.middlewares[i](h)
	}
	s.effective = h
}

// ListeningAddr returns the actual listening address (useful when Addr is ":0").
// Returns empty string if not currently listening.
func (s *Server) ListeningAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// doStart is the blocking accept loop behind Start.
func (s *Server) doStart() error {
	var (
		ln  net.Listener
		err error
	)
	if s.config.TLSConfig != nil {
		ln, err = tls.Listen("tcp", s.config.Addr, s.config.TLSConfig)
	} else {
		ln, err = net.Listen("tcp", s.config.Addr)
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		_ = ln.Close()
		return nil
	}
	s.listener = ln
	s.mu.Unlock()
	defer close(s.loopDone)

	s.Logger().Infof("%s: listening on %s", s.Name(), ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.RLock()
			stopping := s.stopping
			s.mu.RUnlock()
			// A closed listener during Stop is a clean shutdown.
			if stopping || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		n := s.totalAccepted.Add(1)
		if s.metrics != nil {
			s.metrics.ConnectionsAccepted.Inc()
		}
		s.Logger().Debugf("connection established: %s", conn.RemoteAddr())
		s.dispatch(conn)

		if s.config.AcceptLimit > 0 && n >= int64(s.config.AcceptLimit) {
			s.Logger().Infof("%s: accept limit %d reached", s.Name(), s.config.AcceptLimit)
			_ = ln.Close()
			return nil
		}
	}
}

// doStop closes the listener and waits for the accept loop to return.
// Connections already submitted keep running on the pool.
func (s *Server) doStop() error {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
		<-s.loopDone
	}
	s.Logger().Infof("%s: stopped", s.Name())
	return nil
}

// Metrics returns current server metrics.
func (s *Server) Metrics() ServerMetrics {
	bp := s.backpressure.GetMetrics()
	return ServerMetrics{
		TotalAccepted:       s.totalAccepted.Load(),
		RejectedConnections: s.rejected.Load(),
		InFlight:            bp.CurrentLoad,
		MaxInFlight:         s.config.MaxInFlight,
		Utilization:         bp.Utilization,
		HandledConnections:  s.handledConnections.Load(),
		ErrorConnections:    s.errorConnections.Load(),
	}
}

// dispatch captures conn in a job and submits it to the pool.
func (s *Server) dispatch(conn net.Conn) {
	if !s.backpressure.TryAcquire() {
		s.reject(conn, fasthttp.StatusServiceUnavailable)
		return
	}
	s.inFlight(1)

	err := s.pool.Execute(func() {
		defer s.release()
		s.serveConn(conn)
	})
	if err != nil {
		s.release()
		s.Logger().Warnf("%s: pool refused connection from %s: %v", s.Name(), conn.RemoteAddr(), err)
		s.reject(conn, fasthttp.StatusServiceUnavailable)
	}
}

func (s *Server) release() {
	s.backpressure.Release()
	s.inFlight(-1)
}

func (s *Server) inFlight(delta float64) {
	if s.metrics != nil {
		s.metrics.ConnectionsInFlight.Add(delta)
	}
}

// reject counts conn as rejected and answers it on a short-lived goroutine
// so the accept loop is not held up by a slow client.
func (s *Server) reject(conn net.Conn, status int) {
	s.rejected.Add(1)
	if s.metrics != nil {
		s.metrics.ConnectionsRejected.Inc()
	}
	go s.answer(conn, status)
}

// answer drains the request, replies with status and closes conn.
func (s *Server) answer(conn net.Conn, status int) {
	defer conn.Close()

	// Drain the request so closing does not reset the connection before the
	// client reads the reply.
	_ = conn.SetDeadline(time.Now().Add(rejectReadTimeout))
	req := fasthttp.AcquireRequest()
	_ = req.Read(bufio.NewReader(conn))
	fasthttp.ReleaseRequest(req)
	_ = conn.SetWriteDeadline(time.Now().Add(rejectReadTimeout))

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)
	resp.SetStatusCode(status)
	resp.SetBodyString(fasthttp.StatusMessage(status))
	_ = s.writeResponse(conn, resp)
}

// serveConn runs on a pool worker. Panics from the handler propagate to the
// worker unless the Recovery middleware is installed.
func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	now := time.Now()
	_ = conn.SetReadDeadline(now.Add(s.config.ReadTimeout))
	_ = conn.SetWriteDeadline(now.Add(s.config.WriteTimeout))

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	if err := req.Read(bufio.NewReader(conn)); err != nil {
		s.errorConnections.Add(1)
		s.Logger().Debugf("read request from %s: %v", conn.RemoteAddr(), err)
		resp.SetStatusCode(fasthttp.StatusBadRequest)
		resp.SetBodyString(fasthttp.StatusMessage(fasthttp.StatusBadRequest))
		_ = s.writeResponse(conn, resp)
		return
	}
	s.handledConnections.Add(1)

	id := core.RequestIDFrom(string(req.Header.Peek(core.RequestIDHeader)))
	cctx := &ConnContext{
		Context:    core.WithRequestID(context.Background(), id),
		Conn:       conn,
		RequestID:  id,
		Logger:     s.Logger().WithFields(map[string]interface{}{"request_id": id}),
		Request:    req,
		Response:   resp,
		LocalAddr:  conn.LocalAddr(),
		RemoteAddr: conn.RemoteAddr(),
	}

	s.mu.RLock()
	h := s.effective
	s.mu.RUnlock()

	if err := h(cctx); err != nil {
		s.errorConnections.Add(1)
		cctx.Logger.Errorf("handler error: %v", err)
		resp.Reset()
		resp.SetStatusCode(fasthttp.StatusInternalServerError)
		resp.SetBodyString(fasthttp.StatusMessage(fasthttp.StatusInternalServerError))
	}

	resp.Header.Set(core.RequestIDHeader, id)
	if err := s.writeResponse(conn, resp); err != nil {
		cctx.Logger.Debugf("write response: %v", err)
	}
}

func (s *Server) writeResponse(conn net.Conn, resp *fasthttp.Response) error {
	resp.SetConnectionClose()
	bw := bufio.NewWriter(conn)
	if err := resp.Write(bw); err != nil {
		return err
	}
	return bw.Flush()
}
