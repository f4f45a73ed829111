package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/kiln/internal/app"
)

func (c *CLI) newCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove workspaces, downloads or published packages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, _ := cmd.Flags().GetBool("store")
			downloads, _ := cmd.Flags().GetBool("downloads")
			all, _ := cmd.Flags().GetBool("all")

			opts := app.CleanOptions{}

			switch {
			case all:
				opts.Work = true
				opts.Downloads = true
				opts.Store = true
			case store || downloads:
				opts.Store = store
				opts.Downloads = downloads
			default:
				// Default behavior: clean workspaces
				opts.Work = true
			}

			return c.app.Clean(cmd.Context(), opts)
		},
	}

	cmd.Flags().Bool("store", false, "Remove published packages")
	cmd.Flags().BoolP("downloads", "d", false, "Remove the source download cache")
	cmd.Flags().BoolP("all", "a", false, "Remove workspaces, downloads and published packages")

	return cmd
}
