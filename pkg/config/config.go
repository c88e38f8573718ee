// Package config provides the configuration system for nebulaflow.
// It defines a single Config structure for the engine process, loaded with
// viper from a YAML file and NEBULAFLOW_* environment overrides.
//
// The configuration is organized into logical sections:
//   - Engine: poll intervals, preview size, run-log retention
//   - Store: where pipelines and run logs are persisted
//   - Lock: how per-pipeline run exclusivity is enforced
//   - Logging, Metrics, Tracing: observability
//   - Notifications: outcome notification gating and sinks
//
// Example usage:
//
//	cfg, err := config.Load("nebulaflow.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cfg.Engine.PollInterval = 10 * time.Second
package config

import (
	"fmt"
	"time"

	"github.com/ajitpratap0/nebulaflow/pkg/logger"
)

// Config is the engine process configuration.
type Config struct {
	// Engine settings control scheduling and execution
	Engine EngineConfig `mapstructure:"engine" yaml:"engine" json:"engine"`

	// Store selects the persistence adapter
	Store StoreConfig `mapstructure:"store" yaml:"store" json:"store"`

	// Lock selects the per-pipeline run lock
	Lock LockConfig `mapstructure:"lock" yaml:"lock" json:"lock"`

	// Logging configures the global zap logger
	Logging logger.Config `mapstructure:"logging" yaml:"logging" json:"logging"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" json:"metrics"`

	// Tracing configures OpenTelemetry
	Tracing TracingConfig `mapstructure:"tracing" yaml:"tracing" json:"tracing"`

	// Notifications gates outcome notifications
	Notifications NotificationConfig `mapstructure:"notifications" yaml:"notifications" json:"notifications"`
}

// EngineConfig contains execution and scheduling settings.
type EngineConfig struct {
	// PollInterval is the scheduler tick period
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval" json:"poll_interval"`
	// ReaperInterval is how often expired run-log snapshots are cleared
	ReaperInterval time.Duration `mapstructure:"reaper_interval" yaml:"reaper_interval" json:"reaper_interval"`
	// FailedRunRetentionDays is how long failed-run snapshots stay retryable
	FailedRunRetentionDays int `mapstructure:"failed_run_retention_days" yaml:"failed_run_retention_days" json:"failed_run_retention_days"`
	// DefaultSampleSize is the dry-run sample size when the caller passes none
	DefaultSampleSize int `mapstructure:"default_sample_size" yaml:"default_sample_size" json:"default_sample_size"`
	// ShutdownTimeout bounds how long serve waits for in-flight runs
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// StoreConfig selects the persistence adapter.
type StoreConfig struct {
	// Driver is "memory" or "postgres"
	Driver string `mapstructure:"driver" yaml:"driver" json:"driver"`
	// DSN is the postgres connection string
	DSN string `mapstructure:"dsn" yaml:"dsn" json:"dsn"`
	// PipelinesFile seeds the store with pipeline definitions at startup
	PipelinesFile string `mapstructure:"pipelines_file" yaml:"pipelines_file" json:"pipelines_file"`
	// AutoMigrate creates or updates tables on startup
	AutoMigrate bool `mapstructure:"auto_migrate" yaml:"auto_migrate" json:"auto_migrate"`
}

// LockConfig selects the per-pipeline run lock.
type LockConfig struct {
	// Driver is "memory" or "redis"
	Driver string `mapstructure:"driver" yaml:"driver" json:"driver"`
	// RedisURL is a redis:// URL
	RedisURL string `mapstructure:"redis_url" yaml:"redis_url" json:"redis_url"`
	// TTL bounds how long a crashed process can hold a redis lock
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl" json:"ttl"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr" json:"addr"`
}

// TracingConfig configures OpenTelemetry.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	ServiceName string  `mapstructure:"service_name" yaml:"service_name" json:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate" yaml:"sample_rate" json:"sample_rate"`
}

// NotificationConfig holds the externally owned notification toggles.
type NotificationConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	OnFailure bool   `mapstructure:"on_failure" yaml:"on_failure" json:"on_failure"`
	OnSuccess bool   `mapstructure:"on_success" yaml:"on_success" json:"on_success"`
	// WebhookURL receives JSON notifications when set; otherwise they are logged
	WebhookURL string `mapstructure:"webhook_url" yaml:"webhook_url" json:"webhook_url"`
}

// DefaultConfig returns a Config with production-ready defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			PollInterval:           30 * time.Second,
			ReaperInterval:         time.Hour,
			FailedRunRetentionDays: 7,
			DefaultSampleSize:      10,
			ShutdownTimeout:        time.Minute,
		},
		Store: StoreConfig{
			Driver:      "memory",
			AutoMigrate: true,
		},
		Lock: LockConfig{
			Driver: "memory",
			TTL:    time.Hour,
		},
		Logging: logger.Config{
			Level:    "info",
			Encoding: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "nebulaflow",
			SampleRate:  0.1,
		},
		Notifications: NotificationConfig{
			Enabled:   true,
			OnFailure: true,
			OnSuccess: false,
		},
	}
}

// Validate validates the configuration for correctness.
func (c *Config) Validate() error {
	if c.Engine.PollInterval <= 0 {
		return fmt.Errorf("engine.poll_interval must be positive")
	}
	if c.Engine.ReaperInterval <= 0 {
		return fmt.Errorf("engine.reaper_interval must be positive")
	}
	if c.Engine.FailedRunRetentionDays < 0 {
		return fmt.Errorf("engine.failed_run_retention_days cannot be negative")
	}
	if c.Engine.DefaultSampleSize <= 0 {
		return fmt.Errorf("engine.default_sample_size must be positive")
	}

	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported store.driver %q", c.Store.Driver)
	}

	switch c.Lock.Driver {
	case "memory":
	case "redis":
		if c.Lock.RedisURL == "" {
			return fmt.Errorf("lock.redis_url is required for the redis driver")
		}
		if c.Lock.TTL <= 0 {
			return fmt.Errorf("lock.ttl must be positive")
		}
	default:
		return fmt.Errorf("unsupported lock.driver %q", c.Lock.Driver)
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be between 0 and 1")
	}
	return nil
}

// Retention returns the failed-run snapshot retention as a duration.
func (e EngineConfig) Retention() time.Duration {
	return time.Duration(e.FailedRunRetentionDays) * 24 * time.Hour
}
