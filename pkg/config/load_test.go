package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_ValidFile(t *testing.T) {
	configPath := writeConfigFile(t, `
server:
  listen_address: "0.0.0.0:8080"
  read_timeout: "60s"

store:
  backend: "sqlite"
  sqlite:
    path: "./costs.db"
    busy_timeout: "10s"

governance:
  evaluation_schedule: "*/5 * * * *"
  thresholds_file: "./thresholds.yaml"

telemetry:
  logging:
    level: "debug"
    format: "text"
`)

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:8080" {
		t.Errorf("expected listen address %q, got %q", "0.0.0.0:8080", cfg.Server.ListenAddress)
	}
	if cfg.Server.ReadTimeout != 60*time.Second {
		t.Errorf("expected read timeout %v, got %v", 60*time.Second, cfg.Server.ReadTimeout)
	}
	if cfg.Store.Backend != "sqlite" {
		t.Errorf("expected backend %q, got %q", "sqlite", cfg.Store.Backend)
	}
	if cfg.Store.SQLite.Path != "./costs.db" {
		t.Errorf("expected SQLite path %q, got %q", "./costs.db", cfg.Store.SQLite.Path)
	}
	if cfg.Store.SQLite.BusyTimeout != 10*time.Second {
		t.Errorf("expected busy timeout %v, got %v", 10*time.Second, cfg.Store.SQLite.BusyTimeout)
	}
	if cfg.Governance.EvaluationSchedule != "*/5 * * * *" {
		t.Errorf("expected evaluation schedule %q, got %q", "*/5 * * * *", cfg.Governance.EvaluationSchedule)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("expected logging level %q, got %q", "debug", cfg.Telemetry.Logging.Level)
	}

	// Fields absent from the file pick up defaults.
	if cfg.Server.WriteTimeout != DefaultWriteTimeout {
		t.Errorf("expected default write timeout, got %v", cfg.Server.WriteTimeout)
	}
	if cfg.Notify.Publisher != DefaultNotifyPublisher {
		t.Errorf("expected default publisher, got %q", cfg.Notify.Publisher)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	configPath := writeConfigFile(t, `
server:
  listen_address: "0.0.0.0:8080"
  invalid yaml here: [
`)

	if _, err := LoadConfig(configPath); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestLoadConfig_ValidationFailure(t *testing.T) {
	configPath := writeConfigFile(t, `
store:
  backend: "postgres"
`)

	_, err := LoadConfig(configPath)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "store.backend") {
		t.Errorf("expected store.backend in error, got: %v", err)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	configPath := writeConfigFile(t, `
server:
  listen_address: "127.0.0.1:9090"
`)

	t.Setenv("SPENDGUARD_SERVER_LISTEN_ADDRESS", "0.0.0.0:7070")
	t.Setenv("SPENDGUARD_SERVER_READ_TIMEOUT", "45s")
	t.Setenv("SPENDGUARD_STORE_BACKEND", "sqlite")
	t.Setenv("SPENDGUARD_STORE_SQLITE_PATH", "/tmp/override.db")
	t.Setenv("SPENDGUARD_GOVERNANCE_EVALUATION_SCHEDULE", "*/2 * * * *")
	t.Setenv("SPENDGUARD_NOTIFY_BUFFER", "512")
	t.Setenv("SPENDGUARD_TELEMETRY_METRICS_ENABLED", "false")

	cfg, err := LoadConfigWithEnvOverrides(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:7070" {
		t.Errorf("env override lost: listen address = %q", cfg.Server.ListenAddress)
	}
	if cfg.Server.ReadTimeout != 45*time.Second {
		t.Errorf("env override lost: read timeout = %v", cfg.Server.ReadTimeout)
	}
	if cfg.Store.Backend != "sqlite" {
		t.Errorf("env override lost: backend = %q", cfg.Store.Backend)
	}
	if cfg.Store.SQLite.Path != "/tmp/override.db" {
		t.Errorf("env override lost: SQLite path = %q", cfg.Store.SQLite.Path)
	}
	if cfg.Governance.EvaluationSchedule != "*/2 * * * *" {
		t.Errorf("env override lost: evaluation schedule = %q", cfg.Governance.EvaluationSchedule)
	}
	if cfg.Notify.Buffer != 512 {
		t.Errorf("env override lost: buffer = %d", cfg.Notify.Buffer)
	}
	if cfg.Telemetry.Metrics.Enabled {
		t.Error("env override lost: metrics still enabled")
	}
}

func TestLoadConfigWithEnvOverrides_InvalidValueRejected(t *testing.T) {
	configPath := writeConfigFile(t, "")

	t.Setenv("SPENDGUARD_GOVERNANCE_EVALUATION_SCHEDULE", "not a cron")

	if _, err := LoadConfigWithEnvOverrides(configPath); err == nil {
		t.Error("expected validation error for invalid override")
	}
}

func TestLoadConfigWithEnvOverrides_MalformedValuesIgnored(t *testing.T) {
	configPath := writeConfigFile(t, "")

	// Unparseable durations and booleans fall back to file values.
	t.Setenv("SPENDGUARD_SERVER_READ_TIMEOUT", "soon")
	t.Setenv("SPENDGUARD_TELEMETRY_METRICS_ENABLED", "maybe")

	cfg, err := LoadConfigWithEnvOverrides(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Server.ReadTimeout != DefaultReadTimeout {
		t.Errorf("expected default read timeout, got %v", cfg.Server.ReadTimeout)
	}
	if !cfg.Telemetry.Metrics.Enabled {
		t.Error("expected metrics to stay enabled")
	}
}
