// Command hello serves hello.html over HTTP/1.1, handling every connection
// on a fixed-size worker pool.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fluxorio/threadpool/pkg/config"
	"github.com/fluxorio/threadpool/pkg/core"
	"github.com/fluxorio/threadpool/pkg/observability/otel"
	metrics "github.com/fluxorio/threadpool/pkg/observability/prometheus"
	"github.com/fluxorio/threadpool/pkg/server"
	"github.com/fluxorio/threadpool/pkg/threadpool"
)

const (
	serviceName    = "hello"
	serviceVersion = "1.0.0"

	shutdownTimeout = 30 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		log.Fatalf("hello: %v", err)
	}
}

// run serves until ctx is cancelled or the accept limit is reached, then
// stops the listener and tears the pool down.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("hello", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("CONFIG_PATH"), "path to a YAML or JSON config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadApp(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := core.NewLogger(stdout, stderr, core.ParseLevel(cfg.Observability.LogLevel))

	tracing := false
	if cfg.Observability.EnableTracing {
		err := otel.Initialize(ctx, otel.Config{
			ServiceName:    serviceName,
			ServiceVersion: serviceVersion,
			Environment:    getEnv("ENVIRONMENT", "development"),
			Exporter:       cfg.Observability.TraceExporter,
			Endpoint:       cfg.Observability.TraceEndpoint,
			SampleRate:     cfg.Observability.SampleRate,
			Writer:         stdout,
		})
		if err != nil {
			logger.Warnf("tracing disabled: %v", err)
		} else {
			tracing = true
			logger.Infof("tracing enabled (%s exporter)", cfg.Observability.TraceExporter)
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := otel.Shutdown(sctx); err != nil {
					logger.Warnf("tracing shutdown: %v", err)
				}
			}()
		}
	}

	reg := metrics.NewRegistry()
	m := metrics.NewMetrics(metrics.ServiceRegisterer(reg, serviceName))

	pool, err := threadpool.Build(cfg.Pool.Size,
		threadpool.WithName(cfg.Pool.Name),
		threadpool.WithLogger(logger),
		threadpool.WithObserver(m.PoolObserver()),
		threadpool.WithRespawn(cfg.Pool.Respawn),
	)
	if err != nil {
		return err
	}
	if err := m.RegisterPool(pool); err != nil {
		_ = pool.Close()
		return fmt.Errorf("register pool metrics: %w", err)
	}

	hello, err := server.NewHello(server.HelloConfig{
		SleepDelay: cfg.Server.SleepDelay,
		PagesDir:   cfg.Server.PagesDir,
	})
	if err != nil {
		_ = pool.Close()
		return err
	}

	srv := server.New(pool, &server.Config{
		Addr:         cfg.Server.Addr,
		AcceptLimit:  cfg.Server.AcceptLimit,
		MaxInFlight:  cfg.Server.MaxInFlight,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Logger:       logger,
		Metrics:      m,
	})
	if tracing {
		srv.Use(server.Tracing())
	}
	srv.Use(server.Recovery(), server.Instrument(m, hello.Routes()...), server.RequestLogging())
	srv.SetHandler(hello.Handle)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		// Start returns on Stop or once the accept limit is reached.
		defer cancel()
		return srv.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		return srv.Stop()
	})

	if addr := cfg.Observability.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		metricsSrv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			logger.Infof("metrics on http://%s/metrics", addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return metricsSrv.Shutdown(sctx)
		})
	}

	serveErr := g.Wait()

	logger.Info("Shutting down.")
	sctx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	poolErr := pool.Shutdown(sctx)
	if poolErr != nil {
		logger.Errorf("pool shutdown: %v", poolErr)
	}
	return errors.Join(serveErr, poolErr)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
