package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.trai.ch/kiln/internal/ui/style"
)

func (c *CLI) newMatrixCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "matrix",
		Short: "Print the expanded and normalized matrix without building",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")

			entries, err := c.app.Matrix(cmd.Context(), configPath)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			unique := 0
			for _, e := range entries {
				switch {
				case e.Err != nil:
					_, _ = fmt.Fprintf(w, "%4d %s %s: %v\n", e.Index, style.Failed.Render(style.Warning), e.Axes, e.Err)
				case e.DuplicateOf >= 0:
					_, _ = fmt.Fprintf(w, "%4d %s %s (same as %d)\n", e.Index, style.Cached.Render(style.Tilde), e.Key, e.DuplicateOf)
				default:
					unique++
					_, _ = fmt.Fprintf(w, "%4d %s %s\n", e.Index, style.Done.Render(style.Dot), e.Key)
				}
			}
			_, _ = fmt.Fprintf(w, "%d cells, %d configurations\n", len(entries), unique)
			return nil
		},
	}
}
