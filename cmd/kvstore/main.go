// Package main is the entry point for the kvstore CLI.
//
// kvstore is a library first. This CLI replays YAML scripts against a fresh
// store and prints every operation and every notification, which makes the
// deferred update and synchronous remove model easy to observe.
//
// Usage:
//
//	kvstore run -c script.yaml       # Replay a script
//	kvstore validate -c script.yaml  # Validate a script
//	kvstore version                  # Show version info
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// settings holds global flags, overridable through KVSTORE_* environment
// variables (e.g. KVSTORE_LOG_LEVEL=debug).
var settings = viper.New()

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "kvstore",
	Short: "Replay scripts against an observable key-value store",
	Long: `kvstore is an in-process key-value store with change notification.

Saves are visible immediately and notify subscribers on a later turn.
Removals notify subscribers before they return.

Quick start:
  1. Write a script (session.yaml)
  2. Run: kvstore run -c session.yaml

Example script:
  subscribers:
    - name: audit
      key: user
      on_remove: true
  steps:
    - save:user=samuel jackson
    - flush
    - remove:user`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this kvstore binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "kvstore %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console, json)")
	flags.Bool("no-color", false, "disable coloured output")

	for _, name := range []string{"log-level", "log-format", "no-color"} {
		_ = settings.BindPFlag(name, flags.Lookup(name))
	}
	settings.SetEnvPrefix("KVSTORE")
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()

	rootCmd.AddCommand(versionCmd)
}
