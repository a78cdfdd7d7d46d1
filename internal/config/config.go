// Package config loads the warden daemon's settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends.
const (
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
)

// Config is the daemon configuration.
type Config struct {
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	// ListenAddr serves /metrics and /healthz.
	ListenAddr string `env:"WARDEN_LISTEN_ADDR" envDefault:"0.0.0.0:18920"`

	StoreBackend string `env:"WARDEN_STORE"       envDefault:"bolt"`
	BoltPath     string `env:"WARDEN_BOLT_PATH"   envDefault:"warden.db"`
	SQLitePath   string `env:"WARDEN_SQLITE_PATH" envDefault:"warden.sqlite"`

	// PlatformDSN points at the platform's postgres database. Without it
	// item lookups are unavailable and the daemon only runs maintenance.
	PlatformDSN string `env:"WARDEN_PLATFORM_DSN"`

	RolesConfig string `env:"WARDEN_ROLES_CONFIG"`
	TermsFile   string `env:"WARDEN_TERMS_FILE"`

	ClassifierURL     string        `env:"WARDEN_CLASSIFIER_URL"     envDefault:"https://api.openai.com/v1/chat/completions"`
	ClassifierAPIKey  string        `env:"WARDEN_CLASSIFIER_API_KEY"`
	ClassifierModel   string        `env:"WARDEN_CLASSIFIER_MODEL"   envDefault:"gpt-4o-mini"`
	ClassifierTimeout time.Duration `env:"WARDEN_CLASSIFIER_TIMEOUT" envDefault:"30s"`

	Workers   int `env:"WARDEN_WORKERS"    envDefault:"4"`
	QueueSize int `env:"WARDEN_QUEUE_SIZE" envDefault:"256"`

	BanDays   int `env:"WARDEN_BAN_DAYS"   envDefault:"90"`
	BlockDays int `env:"WARDEN_BLOCK_DAYS" envDefault:"7"`

	PruneInterval      time.Duration `env:"WARDEN_PRUNE_INTERVAL"       envDefault:"1h"`
	MetricsInterval    time.Duration `env:"WARDEN_METRICS_INTERVAL"     envDefault:"1m"`
	TermReloadInterval time.Duration `env:"WARDEN_TERM_RELOAD_INTERVAL" envDefault:"5m"`

	SentryDSN   string `env:"SENTRY_DSN"`
	Environment string `env:"WARDEN_ENV" envDefault:"development"`

	// Tracing is enabled when an OTLP endpoint is configured.
	OTLPEndpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TraceSampleRatio float64 `env:"WARDEN_TRACE_SAMPLE_RATIO" envDefault:"1"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	switch c.StoreBackend {
	case BackendBolt, BackendSQLite:
	default:
		return fmt.Errorf("invalid WARDEN_STORE %q: must be %s or %s", c.StoreBackend, BackendBolt, BackendSQLite)
	}
	if c.Workers < 1 {
		return fmt.Errorf("WARDEN_WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("WARDEN_QUEUE_SIZE must be at least 1, got %d", c.QueueSize)
	}
	if c.BanDays < 1 || c.BlockDays < 1 {
		return fmt.Errorf("WARDEN_BAN_DAYS and WARDEN_BLOCK_DAYS must be positive")
	}
	if c.PruneInterval <= 0 || c.MetricsInterval <= 0 || c.TermReloadInterval <= 0 {
		return fmt.Errorf("WARDEN_PRUNE_INTERVAL, WARDEN_METRICS_INTERVAL and WARDEN_TERM_RELOAD_INTERVAL must be positive")
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		return fmt.Errorf("WARDEN_TRACE_SAMPLE_RATIO must be between 0 and 1, got %g", c.TraceSampleRatio)
	}
	return nil
}

// ClassifierEnabled reports whether content classification can run.
func (c Config) ClassifierEnabled() bool {
	return c.ClassifierAPIKey != ""
}

// TracingEnabled reports whether an OTLP exporter should be started.
func (c Config) TracingEnabled() bool {
	return c.OTLPEndpoint != ""
}
