package server

import (
	"context"
	"net"

	"github.com/valyala/fasthttp"

	"github.com/fluxorio/threadpool/pkg/core"
	"github.com/fluxorio/threadpool/pkg/threadpool"
)

// Executor runs connection jobs. *threadpool.ThreadPool satisfies it.
type Executor interface {
	Execute(job threadpool.Job) error
}

// Handler serves one request read from a connection.
// The server writes ctx.Response and closes the connection after it returns.
type Handler func(ctx *ConnContext) error

// Middleware wraps a Handler.
type Middleware func(next Handler) Handler

// ConnContext carries one connection and the request read from it.
type ConnContext struct {
	Context   context.Context
	Conn      net.Conn
	RequestID string
	Logger    core.Logger

	Request  *fasthttp.Request
	Response *fasthttp.Response

	LocalAddr  net.Addr
	RemoteAddr net.Addr
}

// Method returns the request method.
func (c *ConnContext) Method() string {
	return string(c.Request.Header.Method())
}

// Path returns the request path without the query string.
func (c *ConnContext) Path() string {
	return string(c.Request.URI().Path())
}

// ServerMetrics provides request server counters.
type ServerMetrics struct {
	TotalAccepted       int64   // Total connections accepted
	RejectedConnections int64   // Total connections answered with 503
	InFlight            int64   // Connections queued on the pool or being handled
	MaxInFlight         int     // 0 means unlimited
	Utilization         float64 // InFlight as a percentage of MaxInFlight
	HandledConnections  int64   // Total connections whose request was read
	ErrorConnections    int64   // Total connections with read or handler errors
}
