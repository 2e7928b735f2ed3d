// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument
// parsing and flag binding. Command execution is delegated to handler
// functions in the handlers package.
package commands

import "github.com/spf13/cobra"

// verbosity is bound as a persistent flag and shared by all subcommands.
var verbosity int

// Root returns the root command for the gcevm CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gcevm",
		Short: "Provision a GCE VM stack declaratively",
		Long: `gcevm reconciles one Google Compute Engine VM and its supporting
resources (external address, service account, IAP firewall rules, OS Login
IAM bindings) against a small YAML configuration.

Environment variables:

  GCEVM_PROJECT              Google Cloud project (required)
  GCEVM_REGION               Google Cloud region (required)
  GOOGLE_OAUTH_ACCESS_TOKEN  OAuth2 access token for API calls
  GCEVM_STATE_FILE           local state path (default: gcevm-state.json)
  GCEVM_STATE_BUCKET         S3-compatible bucket for remote state`,
	}

	cmd.PersistentFlags().IntVarP(&verbosity, "verbose", "v", 0, "Log verbosity (higher is noisier)")

	cmd.AddCommand(Plan())
	cmd.AddCommand(Apply())
	cmd.AddCommand(Destroy())
	cmd.AddCommand(Version())

	return cmd
}
