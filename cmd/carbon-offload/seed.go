package main

import (
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/rshade/carbon-offload/internal/regions"
)

func newSeedCmd(root *rootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Replace the region catalog",
		Long: `Replaces the whole region catalog with the regions in --file, or with
the built-in catalog when no file is given. The previous catalog is kept if
the new one fails validation.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer func() { _ = a.close() }()

			var list []regions.CloudRegion
			if file != "" {
				list, err = regions.LoadRegions(file)
			} else {
				list, err = regions.DefaultRegions()
			}
			if err != nil {
				return err
			}

			res, err := a.catalog.Seed(cmd.Context(), list)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML region file to load instead of the built-in catalog")
	return cmd
}
