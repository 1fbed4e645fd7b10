package config

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// EnvPrefix prefixes every environment override of AppConfig,
// e.g. HELLO_POOL_SIZE or HELLO_SERVER_ADDR.
const EnvPrefix = "HELLO"

// AppConfig is the configuration of the hello server.
type AppConfig struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Pool          PoolConfig          `yaml:"pool" json:"pool"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// ServerConfig configures the TCP listener and request handling.
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
	// AcceptLimit stops the accept loop after that many connections. 0 = unlimited.
	AcceptLimit int `yaml:"accept_limit" json:"accept_limit"`
	// MaxInFlight answers 503 once that many connections are queued or running. 0 = unlimited.
	MaxInFlight  int           `yaml:"max_in_flight" json:"max_in_flight"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	SleepDelay   time.Duration `yaml:"sleep_delay" json:"sleep_delay"`
	// PagesDir overrides the embedded hello.html and 404.html.
	PagesDir string `yaml:"pages_dir" json:"pages_dir"`
}

// PoolConfig configures the worker pool.
type PoolConfig struct {
	Name    string `yaml:"name" json:"name"`
	Size    int    `yaml:"size" json:"size"`
	Respawn bool   `yaml:"respawn" json:"respawn"`
}

// ObservabilityConfig configures logging, metrics and tracing.
type ObservabilityConfig struct {
	LogLevel string `yaml:"log_level" json:"log_level"`
	// MetricsAddr serves /metrics when set.
	MetricsAddr   string  `yaml:"metrics_addr" json:"metrics_addr"`
	EnableTracing bool    `yaml:"enable_tracing" json:"enable_tracing"`
	TraceExporter string  `yaml:"trace_exporter" json:"trace_exporter"`
	TraceEndpoint string  `yaml:"trace_endpoint" json:"trace_endpoint"`
	SampleRate    float64 `yaml:"sample_rate" json:"sample_rate"`
}

// DefaultAppConfig returns the configuration used when no file is given.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Addr:         "127.0.0.1:7878",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			SleepDelay:   5 * time.Second,
		},
		Pool: PoolConfig{
			Name: "hello",
			Size: 4,
		},
		Observability: ObservabilityConfig{
			LogLevel:      "info",
			TraceExporter: "stdout",
			SampleRate:    1,
		},
	}
}

// LoadApp builds an AppConfig from defaults, the optional file at path and
// HELLO_* environment overrides, then validates it.
func LoadApp(path string) (*AppConfig, error) {
	cfg := DefaultAppConfig()
	if path != "" {
		if err := LoadWithEnv(path, EnvPrefix, cfg); err != nil {
			return nil, err
		}
	} else if err := ApplyEnvOverrides(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}
	if err := newAppManager(cfg).Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newAppManager(cfg *AppConfig) *Manager {
	m := NewManager(cfg)
	m.AddValidator(RequiredFields("Server.Addr", "Pool.Name"))
	m.AddValidator(StringLengthValidator("Pool.Name", 1, 64))
	m.AddValidator(RangeValidator("Pool.Size", 1, 1024))
	m.AddValidator(RangeValidator("Server.AcceptLimit", 0, math.MaxInt32))
	m.AddValidator(RangeValidator("Server.MaxInFlight", 0, math.MaxInt32))
	m.AddValidator(RangeValidator("Observability.SampleRate", 0, 1))
	m.AddValidator(OneOfValidator("Observability.LogLevel", "debug", "info", "warn", "warning", "error"))
	m.AddValidator(OneOfValidator("Observability.TraceExporter", "stdout", "zipkin", "none"))
	m.AddValidator(ValidatorFunc(func(c interface{}) error {
		app := c.(*AppConfig)
		if app.Observability.EnableTracing && app.Observability.TraceExporter == "zipkin" && app.Observability.TraceEndpoint == "" {
			return errors.New("observability.trace_endpoint is required for the zipkin exporter")
		}
		if app.Server.ReadTimeout < 0 || app.Server.WriteTimeout < 0 || app.Server.SleepDelay < 0 {
			return errors.New("server timeouts must not be negative")
		}
		return nil
	}))
	return m
}
