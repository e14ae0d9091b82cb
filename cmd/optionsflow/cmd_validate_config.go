package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"optionsflow/processor"
)

// validateConfigCmd loads the configuration and reports problems
var validateConfigCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Load and validate the configuration",
	Long: `Load the configuration file (or the built-in defaults), apply environment
overrides and validate every section.

Examples:
  optionsflow validate-config
  APP_ENV=prod optionsflow validate-config
  optionsflow validate-config --config config/config.production.yml`,
	Args: cobra.NoArgs,
	RunE: runValidateConfig,
}

func init() {
	rootCmd.AddCommand(validateConfigCmd)
}

func runValidateConfig(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	buckets, err := processor.NewBuckets(cfg.Analysis.DTEBucketEdges)
	if err != nil {
		return err
	}

	labels := make([]string, len(buckets))
	for i, b := range buckets {
		labels[i] = b.Label
	}
	if path == "" {
		path = "built-in defaults"
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "configuration valid: %s\n", path)
	fmt.Fprintf(out, "  atm tolerance: %g%%\n", cfg.Analysis.ATMTolerancePct)
	fmt.Fprintf(out, "  dte buckets:   %s\n", strings.Join(labels, ", "))
	fmt.Fprintf(out, "  formats:       %s\n", strings.Join(cfg.Writer.Formats, ", "))
	fmt.Fprintf(out, "  s3 upload:     %t\n", cfg.Storage.S3.Enabled)
	return nil
}
