package cmd

import (
	"fmt"

	"github.com/gauntlet-ci/gauntlet/internal/capability"
	"github.com/spf13/cobra"
)

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "List the available capabilities",
	Long: `List the capabilities blueprints can reference, with their
descriptions. A blueprint sub-task runs under the capability named by
its "capability" field, or its own name when that field is omitted.`,
	RunE: runCapabilities,
}

func init() {
	rootCmd.AddCommand(capabilitiesCmd)
}

func runCapabilities(cmd *cobra.Command, args []string) error {
	registry := capability.NewRegistry()
	if err := capability.RegisterBuiltins(registry); err != nil {
		return err
	}

	for _, name := range registry.Names() {
		reg, ok := registry.Describe(name)
		if !ok {
			continue
		}
		fmt.Printf("%-22s %s\n", name, reg.Description)
	}
	return nil
}
