package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newRegionsCmd(root *rootOptions) *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "regions",
		Short: "List available regions, greenest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer func() { _ = a.close() }()

			list, err := a.catalog.ListAvailable(cmd.Context(), provider)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No available regions. Run 'carbon-offload seed' first.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCOUNTRY\tgCO2/kWh\tRENEWABLE %\tINSTANCE TYPES")
			for _, r := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.0f\t%.0f\t%s\n",
					r.ID, r.RegionName, r.Country, r.CarbonIntensity, r.RenewablePercentage,
					strings.Join(r.InstanceTypes, ","))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "only list regions of this provider")
	return cmd
}
