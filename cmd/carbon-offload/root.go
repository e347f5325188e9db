package main

import (
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

// newRootCmd builds the carbon-offload command tree.
func newRootCmd(ver string) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "carbon-offload",
		Short:         "Run workloads in low-carbon cloud regions and track the savings",
		Version:       ver,
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: `  # Start the API with the default SQLite store
  carbon-offload serve

  # Load a custom region catalog
  carbon-offload seed --file regions.yaml

  # Show available AWS regions, greenest first
  carbon-offload regions --provider aws`,
	}
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	cmd.AddCommand(newServeCmd(opts), newSeedCmd(opts), newRegionsCmd(opts))
	return cmd
}
