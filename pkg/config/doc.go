// Package config defines the YAML configuration for the spendguard
// daemon: the HTTP server, store backend, governance schedules,
// notification channel, and telemetry.
//
// Configuration is loaded from a YAML file, filled in with defaults,
// optionally overridden by SPENDGUARD_* environment variables, and
// validated. Environment variables always take precedence over the
// file.
package config
