package config

import "time"

// Config is the root configuration structure for spendguard. It
// contains all configuration sections for the HTTP server, the store
// backend, governance scheduling, notifications, and telemetry.
type Config struct {
	// Server contains HTTP server configuration for the metrics and
	// health endpoints.
	Server ServerConfig `yaml:"server"`

	// Store selects and configures the persistence backend.
	Store StoreConfig `yaml:"store"`

	// Governance contains threshold evaluation and retention
	// scheduling, plus the optional threshold bootstrap file.
	Governance GovernanceConfig `yaml:"governance"`

	// Notify configures how alert and remediation signals are
	// published.
	Notify NotifyConfig `yaml:"notify"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:9090").
	// Default: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of
	// the response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle limit. If zero, ReadTimeout
	// is used.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful
	// shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Backend is "memory" or "sqlite".
	// Default: "memory"
	Backend string `yaml:"backend"`

	// SQLite configures the sqlite backend; ignored otherwise.
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig contains configuration for the sqlite store backend.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "spendguard.db"
	Path string `yaml:"path"`

	// BusyTimeout is how long a writer waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// CheckpointInterval is how often the WAL is checkpointed. Zero
	// disables periodic checkpointing.
	// Default: 5m
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
}

// GovernanceConfig contains governance engine configuration.
type GovernanceConfig struct {
	// EvaluationSchedule is the cron expression driving threshold
	// evaluation. Empty disables scheduled evaluation.
	// Default: "* * * * *" (every minute)
	EvaluationSchedule string `yaml:"evaluation_schedule"`

	// RetentionSchedule is the cron expression driving the purge of
	// expired event and alert rows. Empty disables the purge job.
	// Default: "0 3 * * *" (daily at 3 AM)
	RetentionSchedule string `yaml:"retention_schedule"`

	// ThresholdsFile is an optional YAML file of threshold definitions
	// loaded at startup.
	ThresholdsFile string `yaml:"thresholds_file"`

	// WatchThresholds reloads the thresholds file on change.
	// Default: false
	WatchThresholds bool `yaml:"watch_thresholds"`

	// MetricsNamespace prefixes exported metrics.
	// Default: "spendguard"
	MetricsNamespace string `yaml:"metrics_namespace"`

	// PredictionLookbackDays is the history window predictions are
	// built on.
	// Default: 30
	PredictionLookbackDays int `yaml:"prediction_lookback_days"`
}

// NotifyConfig configures signal publishing.
type NotifyConfig struct {
	// Publisher is "log" or "channel".
	// Default: "log"
	Publisher string `yaml:"publisher"`

	// Buffer is the channel publisher's capacity; signals beyond it
	// are dropped.
	// Default: 256
	Buffer int `yaml:"buffer"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether the metrics endpoint is served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the metrics endpoint path.
	// Default: "/metrics"
	Path string `yaml:"path"`
}
