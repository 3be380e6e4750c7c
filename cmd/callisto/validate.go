package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/callisto/pkg/policy/validation"
	"mercator-hq/callisto/pkg/rollout/source"
)

var validateFlags struct {
	policyFile string
	level      string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a policy file",
	Long: `Validate a policy file against one of the four validation levels.

Levels are cumulative:
  basic     - structural checks (required fields, version format)
  standard  - basic plus consistency checks
  strict    - standard plus security floors
  custom    - strict plus custom-field checks

Examples:
  # Validate with the default standard level
  callisto validate --policy policy.yaml

  # Validate with strict security floors
  callisto validate --policy policy.yaml --level strict`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateFlags.policyFile, "policy", "p", "policy.yaml", "policy file to validate")
	validateCmd.Flags().StringVarP(&validateFlags.level, "level", "l", "standard", "validation level (basic, standard, strict, custom)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	level, err := validation.ParseLevel(validateFlags.level)
	if err != nil {
		return err
	}

	p, err := source.LoadFile(validateFlags.policyFile)
	if err != nil {
		return err
	}

	engine := validation.NewEngine(nil)
	result := engine.Validate(p, level)

	fmt.Printf("Policy:  %s (version %s)\n", p.ID, p.Version)
	fmt.Printf("Level:   %s\n", level)

	for _, finding := range result.Errors {
		fmt.Printf("  [%s] %s: %s\n", finding.Severity, finding.Path, finding.Message)
	}
	for _, warning := range result.Warnings {
		fmt.Printf("  [warning] %s: %s\n", warning.Path, warning.Message)
	}
	for _, rec := range result.Recommendations {
		fmt.Printf("  note: %s\n", rec)
	}

	if !result.IsValid {
		fmt.Printf("\n✗ Policy invalid (%d blocking findings)\n", result.CriticalCount())
		os.Exit(1)
	}

	fmt.Println("\n✓ Policy valid")
	return nil
}
