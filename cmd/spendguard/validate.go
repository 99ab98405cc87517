package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"finops-hq/spendguard/pkg/cli"
	"finops-hq/spendguard/pkg/config"
	"finops-hq/spendguard/pkg/governance"
)

var validateFlags struct {
	thresholdsFile string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and threshold files",
	Long: `Validate the configuration file and, if configured, the threshold
definition file, without starting the daemon.

Examples:
  # Validate the default config
  spendguard validate

  # Validate a specific config
  spendguard validate --config /etc/spendguard/config.yaml

  # Validate a threshold file directly
  spendguard validate --thresholds thresholds.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.thresholdsFile, "thresholds", "", "threshold file to validate")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	fmt.Printf("✓ Configuration valid: %s\n", cfgFile)

	thresholdsFile := validateFlags.thresholdsFile
	if thresholdsFile == "" {
		thresholdsFile = cfg.Governance.ThresholdsFile
	}
	if thresholdsFile != "" {
		thresholds, err := governance.LoadThresholdFile(thresholdsFile)
		if err != nil {
			return cli.NewCommandError("validate", err)
		}
		fmt.Printf("✓ Threshold file valid: %s (%d thresholds)\n", thresholdsFile, len(thresholds))
	}

	return nil
}
