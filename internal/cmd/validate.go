package cmd

import (
	"fmt"

	"github.com/gauntlet-ci/gauntlet/internal/capability"
	"github.com/gauntlet-ci/gauntlet/internal/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [blueprint.yaml]",
	Short: "Validate a blueprint file",
	Long: `Validate a blueprint YAML file and summarize its phases.

Without an argument, validates the configured blueprint, or the
built-in default when none is configured. The blueprint's capability
references are checked against the available capabilities.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	override := ""
	if len(args) == 1 {
		override = args[0]
	}

	bp, err := loadBlueprint(config.Get(), override)
	if err != nil {
		return err
	}
	if err := bp.Validate(); err != nil {
		return err
	}

	registry := capability.NewRegistry()
	if err := capability.RegisterBuiltins(registry); err != nil {
		return err
	}
	if err := registry.Ensure(bp.CapabilityNames()...); err != nil {
		return fmt.Errorf("blueprint %s references an unknown capability: %w", bp.Name, err)
	}

	fmt.Printf("Blueprint %s (version %s) is valid.\n\n", bp.Name, bp.Version)
	fmt.Printf("%-20s %-16s %-17s %-10s %s\n", "PHASE", "STAGE", "POLICY", "MODE", "SUB-TASKS")
	for _, phase := range bp.Phases {
		mode := "parallel"
		if phase.Sequential {
			mode = "sequential"
		}
		fmt.Printf("%-20s %-16s %-17s %-10s %d\n",
			phase.Name, phase.StageName(), phase.Policy, mode, len(phase.Subtasks))
	}
	return nil
}
