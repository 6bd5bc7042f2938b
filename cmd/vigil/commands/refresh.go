package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *CLI) newRefreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh <key>",
		Short: "Get or recompute the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")

			report, err := c.app.Refresh(cmd.Context(), addrFlag(cmd), args[0], force)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			state := "cached"
			if report.Recomputed {
				state = "recomputed"
			}
			fmt.Fprintf(out, "%s (%s): %s\n", report.Key, state, report.Value)
			return nil
		},
	}
	cmd.Flags().BoolP("force", "f", false, "Recompute even if the cached value is valid")
	return cmd
}
