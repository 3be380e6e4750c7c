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
	Use:   "callisto",
	Short: "Callisto - progressive configuration rollout engine",
	Long: `Callisto rolls policy changes out progressively. It splits traffic
between a stable and a canary policy, tracks per-branch health, and rolls
back automatically when the canary degrades.

It provides:
  - Canary deployments with deterministic traffic splitting
  - Statistics-driven automatic rollback with staged ramp-down
  - Validated dynamic policy updates with hot reload strategies
  - Policy version lineage and field-level diffing
  - A SQLite-backed audit trail`,
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
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
