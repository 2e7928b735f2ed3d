package commands

import (
	"github.com/spf13/cobra"

	"github.com/r4rohan/gcevm/cmd/gcevm/handlers"
)

// Apply returns the command that converges the stack.
//
// Apply provisions missing resources, updates drifted ones, and removes
// resources that left the configuration, in dependency order. Independent
// resources run in parallel; a failure in one branch never blocks another.
func Apply() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Create or update the VM stack",
		Long: `Apply converges the stack to the configured state.

Every resource reports one of: created, updated, unchanged, destroyed,
failed, skipped. A prerequisite failure skips its dependents but unrelated
resources still converge, so a partial failure leaves the stack closer to
the desired state, never further from it.

Machine type changes require stopping the instance. Set
allow_stopping_for_update in the config to permit that unattended; an
interactive run asks instead.

Examples:
  # Apply gcevm.yaml in the current directory
  gcevm apply

  # Apply a specific stack file
  gcevm apply -c production.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Apply(cmd.Context(), configPath, verbosity)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: gcevm.yaml)")

	return cmd
}
