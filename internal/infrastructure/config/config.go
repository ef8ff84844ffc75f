package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	Tracing   TracingConfig
	OTel      OTelConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
	Format      string `envconfig:"LOG_FORMAT" default:"line"`
}

// TracingConfig holds span store configuration.
type TracingConfig struct {
	Service         string        `envconfig:"TRACE_SERVICE" default:"sitetrace"`
	HistoryLimit    int           `envconfig:"TRACE_HISTORY_LIMIT" default:"1000"`
	MaxAge          time.Duration `envconfig:"TRACE_MAX_AGE" default:"24h"`
	CleanupInterval time.Duration `envconfig:"TRACE_CLEANUP_INTERVAL" default:"1h"`
	MetricsWindow   time.Duration `envconfig:"TRACE_METRICS_WINDOW" default:"1h"`
	SpanTimeout     time.Duration `envconfig:"TRACE_SPAN_TIMEOUT" default:"30m"`
}

// OTelConfig controls forwarding of finished spans to an OTLP collector.
// The endpoint itself comes from the standard OTEL_EXPORTER_OTLP_* variables.
type OTelConfig struct {
	Enabled bool `envconfig:"OTEL_FORWARD_ENABLED" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate rejects settings the tracer cannot run with.
func (c *Config) Validate() error {
	if c.Tracing.HistoryLimit <= 0 {
		return fmt.Errorf("invalid config: TRACE_HISTORY_LIMIT must be positive, got %d", c.Tracing.HistoryLimit)
	}
	if c.Tracing.CleanupInterval <= 0 {
		return fmt.Errorf("invalid config: TRACE_CLEANUP_INTERVAL must be positive, got %s", c.Tracing.CleanupInterval)
	}
	if c.Tracing.MetricsWindow <= 0 {
		return fmt.Errorf("invalid config: TRACE_METRICS_WINDOW must be positive, got %s", c.Tracing.MetricsWindow)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
			Format:      "line",
		},
		Tracing: TracingConfig{
			Service:         "sitetrace",
			HistoryLimit:    1000,
			MaxAge:          24 * time.Hour,
			CleanupInterval: time.Hour,
			MetricsWindow:   time.Hour,
			SpanTimeout:     30 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
