package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newSweepCmd creates the 'sweep' subcommand, which only applies retention.
func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Prunes year directories beyond the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			report, err := appInstance.Sweep(cmd.Context())
			if err != nil {
				appInstance.Close()
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d year(s) across %d cities\n", len(report.Pruned), report.Cities)
			return nil
		},
	}
}
