package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vigilproject/vigil/internal/app"
)

func (c *CLI) newBustCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bust [key]",
		Short: "Invalidate cached entries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cascade, _ := cmd.Flags().GetBool("cascade")
			group, _ := cmd.Flags().GetString("group")
			all, _ := cmd.Flags().GetBool("all")

			opts := app.BustOptions{Cascade: cascade, Group: group, All: all}
			if len(args) == 1 {
				opts.Key = args[0]
			}

			busted, err := c.app.Bust(cmd.Context(), addrFlag(cmd), opts)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "busted %d: %s\n", len(busted), strings.Join(busted, ", "))
			return nil
		},
	}
	cmd.Flags().BoolP("cascade", "c", false, "Also invalidate every dependent key")
	cmd.Flags().StringP("group", "g", "", "Invalidate every key in a group")
	cmd.Flags().Bool("all", false, "Invalidate every key")
	return cmd
}
