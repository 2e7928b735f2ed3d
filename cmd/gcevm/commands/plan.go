package commands

import (
	"github.com/spf13/cobra"

	"github.com/r4rohan/gcevm/cmd/gcevm/handlers"
)

// Plan returns the dry-run command.
//
// Plan compares the configured stack against recorded state and prints what
// apply would do, without calling the provider.
func Plan() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what apply would change",
		Long: `Plan computes the actions apply would take: resources to create,
update, replace, or delete, with field-level diffs.

The comparison uses the recorded state only. A resource deleted behind the
tool's back still plans as unchanged until an apply observes it missing.

Examples:
  # Plan using gcevm.yaml in the current directory
  gcevm plan

  # Plan a specific stack file
  gcevm plan -c production.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Plan(cmd.Context(), configPath, verbosity)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: gcevm.yaml)")

	return cmd
}
