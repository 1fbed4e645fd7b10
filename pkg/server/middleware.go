package server

import (
	"time"

	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fluxorio/threadpool/pkg/core/failfast"
	"github.com/fluxorio/threadpool/pkg/observability/otel"
	metrics "github.com/fluxorio/threadpool/pkg/observability/prometheus"
)

// Recovery turns a handler panic into a 500 so the pool worker survives.
func Recovery() Middleware {
	return func(next Handler) Handler {
		return func(c *ConnContext) error {
			var err error
			r, stack, panicked := failfast.Catch(func() {
				err = next(c)
			})
			if !panicked {
				return err
			}
			c.Logger.Errorf("panic serving %s %s: %v\n%s", c.Method(), c.Path(), r, stack)
			// No-op unless Tracing runs further out.
			span := trace.SpanFromContext(c.Context)
			span.RecordError(failfast.AsError(r))
			span.SetStatus(codes.Error, "panic")
			c.Response.Reset()
			c.Response.SetStatusCode(fasthttp.StatusInternalServerError)
			c.Response.SetBodyString(fasthttp.StatusMessage(fasthttp.StatusInternalServerError))
			return nil
		}
	}
}

// Tracing starts a span per request, continuing a W3C traceparent if the
// client sent one.
func Tracing() Middleware {
	return func(next Handler) Handler {
		return func(c *ConnContext) error {
			ctx := otel.Extract(c.Context, &c.Request.Header)
			ctx, span := otel.StartSpan(ctx, c.Method()+" "+c.Path(),
				attribute.String("http.method", c.Method()),
				attribute.String("http.target", c.Path()),
				attribute.String("request.id", c.RequestID),
				attribute.String("net.peer.addr", c.RemoteAddr.String()),
			)
			defer span.End()

			c.Context = ctx
			err := next(c)

			span.SetAttributes(attribute.Int("http.status_code", c.Response.StatusCode()))
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else if c.Response.StatusCode() >= fasthttp.StatusInternalServerError {
				span.SetStatus(codes.Error, fasthttp.StatusMessage(c.Response.StatusCode()))
			}
			return err
		}
	}
}

// RequestLogging logs one line per request.
func RequestLogging() Middleware {
	return func(next Handler) Handler {
		return func(c *ConnContext) error {
			start := time.Now()
			err := next(c)
			c.Logger.Infof("%s %s -> %d (%s)", c.Method(), c.Path(), c.Response.StatusCode(), time.Since(start))
			return err
		}
	}
}

// otherLabel replaces label values outside a known set.
const otherLabel = "other"

var knownMethods = map[string]bool{
	fasthttp.MethodGet:     true,
	fasthttp.MethodHead:    true,
	fasthttp.MethodPost:    true,
	fasthttp.MethodPut:     true,
	fasthttp.MethodPatch:   true,
	fasthttp.MethodDelete:  true,
	fasthttp.MethodConnect: true,
	fasthttp.MethodOptions: true,
	fasthttp.MethodTrace:   true,
}

// Instrument records request counts and durations on m. Paths not listed in
// routes, and non-standard methods, are recorded as "other" so clients cannot
// create label values.
func Instrument(m *metrics.Metrics, routes ...string) Middleware {
	failfast.NotNil(m, "metrics")
	known := make(map[string]bool, len(routes))
	for _, r := range routes {
		known[r] = true
	}
	return func(next Handler) Handler {
		return func(c *ConnContext) error {
			start := time.Now()
			err := next(c)
			status := c.Response.StatusCode()
			if err != nil {
				status = fasthttp.StatusInternalServerError
			}
			method, path := c.Method(), c.Path()
			if !knownMethods[method] {
				method = otherLabel
			}
			if !known[path] {
				path = otherLabel
			}
			m.RecordHTTPRequest(method, path, status, time.Since(start))
			return err
		}
	}
}
