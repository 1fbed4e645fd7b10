// Package otel wires OpenTelemetry tracing for the pool and the request server.
package otel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/fluxorio/threadpool"

// Config selects the exporter and sampling for Initialize.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Exporter is one of "stdout", "zipkin" or "none".
	Exporter string
	// Endpoint is the zipkin collector URL.
	Endpoint   string
	SampleRate float64
	// Writer receives stdout exporter output. Defaults to os.Stdout.
	Writer io.Writer
}

var (
	mu       sync.Mutex
	provider *sdktrace.TracerProvider

	propagator = propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
)

// Initialize installs a global tracer provider. Calling it again replaces
// the previous provider after shutting it down.
func Initialize(ctx context.Context, cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("otel: service name is required")
	}
	if cfg.SampleRate < 0 || cfg.SampleRate > 1 {
		return fmt.Errorf("otel: sample rate %v out of range [0,1]", cfg.SampleRate)
	}

	exp, err := newExporter(cfg)
	if err != nil {
		return err
	}

	res, err := resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("otel: build resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	}
	if exp != nil {
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	tp := sdktrace.NewTracerProvider(opts...)

	mu.Lock()
	old := provider
	provider = tp
	mu.Unlock()

	otelapi.SetTracerProvider(tp)
	otelapi.SetTextMapPropagator(propagator)

	if old != nil {
		return old.Shutdown(ctx)
	}
	return nil
}

func newExporter(cfg Config) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case "", "stdout":
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		return stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	case "zipkin":
		if cfg.Endpoint == "" {
			return nil, errors.New("otel: zipkin exporter needs an endpoint")
		}
		return zipkin.New(cfg.Endpoint)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("otel: unknown exporter %q", cfg.Exporter)
	}
}

// IsInitialized reports whether Initialize installed a provider.
func IsInitialized() bool {
	mu.Lock()
	defer mu.Unlock()
	return provider != nil
}

// Shutdown flushes pending spans and removes the provider.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	tp := provider
	provider = nil
	mu.Unlock()

	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// Tracer returns the package tracer from the global provider.
func Tracer() trace.Tracer {
	return otelapi.Tracer(instrumentationName)
}

// StartSpan starts a span on the package tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}
