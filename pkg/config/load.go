package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use
// LoadConfigWithEnvOverrides for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention SPENDGUARD_SECTION_FIELD (e.g., SPENDGUARD_SERVER_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Environment variables use the format
// SPENDGUARD_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	if val := os.Getenv("SPENDGUARD_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("SPENDGUARD_SERVER_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if val := os.Getenv("SPENDGUARD_SERVER_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if val := os.Getenv("SPENDGUARD_SERVER_IDLE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.IdleTimeout = d
		}
	}
	if val := os.Getenv("SPENDGUARD_SERVER_SHUTDOWN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ShutdownTimeout = d
		}
	}

	// Store overrides
	if val := os.Getenv("SPENDGUARD_STORE_BACKEND"); val != "" {
		cfg.Store.Backend = val
	}
	if val := os.Getenv("SPENDGUARD_STORE_SQLITE_PATH"); val != "" {
		cfg.Store.SQLite.Path = val
	}
	if val := os.Getenv("SPENDGUARD_STORE_SQLITE_BUSY_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Store.SQLite.BusyTimeout = d
		}
	}
	if val := os.Getenv("SPENDGUARD_STORE_SQLITE_CHECKPOINT_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Store.SQLite.CheckpointInterval = d
		}
	}

	// Governance overrides
	if val := os.Getenv("SPENDGUARD_GOVERNANCE_EVALUATION_SCHEDULE"); val != "" {
		cfg.Governance.EvaluationSchedule = val
	}
	if val := os.Getenv("SPENDGUARD_GOVERNANCE_RETENTION_SCHEDULE"); val != "" {
		cfg.Governance.RetentionSchedule = val
	}
	if val := os.Getenv("SPENDGUARD_GOVERNANCE_THRESHOLDS_FILE"); val != "" {
		cfg.Governance.ThresholdsFile = val
	}
	if val := os.Getenv("SPENDGUARD_GOVERNANCE_WATCH_THRESHOLDS"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Governance.WatchThresholds = b
		}
	}
	if val := os.Getenv("SPENDGUARD_GOVERNANCE_METRICS_NAMESPACE"); val != "" {
		cfg.Governance.MetricsNamespace = val
	}
	if val := os.Getenv("SPENDGUARD_GOVERNANCE_PREDICTION_LOOKBACK_DAYS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Governance.PredictionLookbackDays = i
		}
	}

	// Notify overrides
	if val := os.Getenv("SPENDGUARD_NOTIFY_PUBLISHER"); val != "" {
		cfg.Notify.Publisher = val
	}
	if val := os.Getenv("SPENDGUARD_NOTIFY_BUFFER"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Notify.Buffer = i
		}
	}

	// Telemetry overrides
	if val := os.Getenv("SPENDGUARD_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("SPENDGUARD_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("SPENDGUARD_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = b
		}
	}
	if val := os.Getenv("SPENDGUARD_TELEMETRY_METRICS_PATH"); val != "" {
		cfg.Telemetry.Metrics.Path = val
	}
}
