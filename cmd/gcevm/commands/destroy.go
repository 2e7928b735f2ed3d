package commands

import (
	"github.com/spf13/cobra"

	"github.com/r4rohan/gcevm/cmd/gcevm/handlers"
)

// Destroy returns the teardown command.
//
// Destroy removes every recorded resource in reverse creation order:
// grants and firewalls first, then the instance, then the address and
// service account. Project API services are left enabled. Resources the
// stack never created (a supplied service account, a literal external IP)
// are never touched.
func Destroy() *cobra.Command {
	var configPath string
	var autoApprove bool

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Destroy the VM stack and all recorded resources",
		Long: `Destroy removes all resources recorded in the state, newest first.

Only resources this tool created are deleted. A service account or external
address that was supplied in the configuration rather than created here is
left alone, as are the project API services.

Example:
  gcevm destroy -c production.yaml --auto-approve

WARNING: This operation is irreversible.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Destroy(cmd.Context(), configPath, verbosity, autoApprove)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: gcevm.yaml)")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "Skip the interactive confirmation")

	return cmd
}
