package commands

import (
	"github.com/spf13/cobra"
	"github.com/vigilproject/vigil/internal/app"
)

func (c *CLI) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the cache daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			listen, _ := cmd.Flags().GetString("listen")
			noWarm, _ := cmd.Flags().GetBool("no-warm")

			return c.app.Serve(cmd.Context(), app.ServeOptions{
				Listen: listen,
				NoWarm: noWarm,
			})
		},
	}
	cmd.Flags().StringP("listen", "l", "", "Listen address (overrides configuration)")
	cmd.Flags().Bool("no-warm", false, "Skip the startup warm-up pass")
	return cmd
}
