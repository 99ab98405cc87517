// Package cli provides shared helpers for the spendguard command line:
// typed command errors and shutdown signal handling.
package cli
