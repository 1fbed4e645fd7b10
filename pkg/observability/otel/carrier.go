package otel

import (
	"context"

	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel/propagation"
)

// requestHeaderCarrier adapts fasthttp request headers to a TextMapCarrier.
type requestHeaderCarrier struct {
	h *fasthttp.RequestHeader
}

var _ propagation.TextMapCarrier = requestHeaderCarrier{}

func (c requestHeaderCarrier) Get(key string) string {
	return string(c.h.Peek(key))
}

func (c requestHeaderCarrier) Set(key, value string) {
	c.h.Set(key, value)
}

func (c requestHeaderCarrier) Keys() []string {
	var keys []string
	c.h.VisitAll(func(k, _ []byte) {
		keys = append(keys, string(k))
	})
	return keys
}

// Extract returns ctx carrying the remote span context found in h, if any.
func Extract(ctx context.Context, h *fasthttp.RequestHeader) context.Context {
	return propagator.Extract(ctx, requestHeaderCarrier{h: h})
}

// Inject writes the span context in ctx into h.
func Inject(ctx context.Context, h *fasthttp.RequestHeader) {
	propagator.Inject(ctx, requestHeaderCarrier{h: h})
}
