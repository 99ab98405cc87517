package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:9090"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// Store defaults
	DefaultStoreBackend             = "memory"
	DefaultSQLitePath               = "spendguard.db"
	DefaultSQLiteBusyTimeout        = 5 * time.Second
	DefaultSQLiteCheckpointInterval = 5 * time.Minute

	// Governance defaults
	DefaultEvaluationSchedule     = "* * * * *"
	DefaultRetentionSchedule      = "0 3 * * *"
	DefaultMetricsNamespace       = "spendguard"
	DefaultPredictionLookbackDays = 30

	// Notify defaults
	DefaultNotifyPublisher = "log"
	DefaultNotifyBuffer    = 256

	// Telemetry defaults
	DefaultLoggingLevel   = "info"
	DefaultLoggingFormat  = "json"
	DefaultMetricsEnabled = true
	DefaultMetricsPath    = "/metrics"
)

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Store defaults
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = DefaultStoreBackend
	}
	if cfg.Store.SQLite.Path == "" {
		cfg.Store.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Store.SQLite.BusyTimeout == 0 {
		cfg.Store.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.Store.SQLite.CheckpointInterval == 0 {
		cfg.Store.SQLite.CheckpointInterval = DefaultSQLiteCheckpointInterval
	}

	// Governance defaults
	if cfg.Governance.EvaluationSchedule == "" {
		cfg.Governance.EvaluationSchedule = DefaultEvaluationSchedule
	}
	if cfg.Governance.RetentionSchedule == "" {
		cfg.Governance.RetentionSchedule = DefaultRetentionSchedule
	}
	if cfg.Governance.MetricsNamespace == "" {
		cfg.Governance.MetricsNamespace = DefaultMetricsNamespace
	}
	if cfg.Governance.PredictionLookbackDays == 0 {
		cfg.Governance.PredictionLookbackDays = DefaultPredictionLookbackDays
	}

	// Notify defaults
	if cfg.Notify.Publisher == "" {
		cfg.Notify.Publisher = DefaultNotifyPublisher
	}
	if cfg.Notify.Buffer == 0 {
		cfg.Notify.Buffer = DefaultNotifyBuffer
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if !cfg.Telemetry.Metrics.Enabled {
		cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
}
