// Spendguard is a usage cost governance engine for LLM workloads.
//
// It ingests per-request cost events, maintains rollup aggregates per
// scope and period, evaluates spend thresholds with automated
// remediation, and forecasts future spend.
//
// Usage:
//
//	# Start the daemon with default configuration
//	spendguard run
//
//	# Start with a custom configuration file
//	spendguard run --config /path/to/config.yaml
//
//	# Validate configuration and threshold files without starting
//	spendguard validate
//
//	# Show version information
//	spendguard version
package main

func main() {
	Execute()
}
