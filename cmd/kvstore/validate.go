package main

import (
	"fmt"
	"strings"

	"github.com/jpalmerr/kvstore/config"
	"github.com/spf13/cobra"
)

// validateCmd validates a script without running it.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a replay script",
	Long: `Validate a kvstore replay script without running it.

This command parses the YAML, expands environment variables, and validates
every subscriber and step. It's useful for CI/CD pipelines.

Exit codes:
  0 - Script is valid
  1 - Script is invalid (error details printed to stderr)

Example:
  kvstore validate -c session.yaml
  kvstore validate --config ./scripts/session.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to script file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid script: %w", err)
	}

	sum := config.Summarize(cfg)
	out := cmd.OutOrStdout()

	var ops []string
	for _, name := range sum.OpNames() {
		ops = append(ops, fmt.Sprintf("%s=%d", name, sum.Ops[name]))
	}

	fmt.Fprintf(out, "Script is valid!\n")
	if cfg.Title != "" {
		fmt.Fprintf(out, "  Title:         %s\n", cfg.Title)
	}
	fmt.Fprintf(out, "  Flush timeout: %s\n", cfg.FlushTimeout.Duration())
	fmt.Fprintf(out, "  Subscribers:   %d\n", sum.Subscribers)
	fmt.Fprintf(out, "  Steps:         %d (%s)\n", sum.Steps, strings.Join(ops, ", "))
	fmt.Fprintf(out, "  Keys:          %s\n", strings.Join(sum.Keys, ", "))

	return nil
}
