package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "spendguard",
	Short: "Spendguard - usage cost governance engine",
	Long: `Spendguard is a usage cost governance engine for LLM workloads.

It ingests per-request cost events and provides:
  - Rollup aggregates per scope (global, user, provider, request type)
  - Spend thresholds with automated remediation actions
  - Cost analytics, usage patterns, and top cost drivers
  - Spend forecasting with named adjustment factors`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
