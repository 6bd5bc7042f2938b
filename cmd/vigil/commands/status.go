package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func (c *CLI) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the daemon's current valid entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := c.app.Status(cmd.Context(), addrFlag(cmd))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "instance %s, last sequence %d\n", report.Instance, report.LastSequence)
			if len(report.Entries) == 0 {
				fmt.Fprintln(out, "no valid entries")
				return nil
			}

			keys := make([]string, 0, len(report.Entries))
			for key := range report.Entries {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				fmt.Fprintf(out, "  %-24s %s\n", key, report.Entries[key])
			}
			return nil
		},
	}
}
