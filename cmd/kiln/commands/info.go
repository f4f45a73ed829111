package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.trai.ch/kiln/internal/app"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/ui/style"
)

func (c *CLI) newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the package metadata of one configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cell, _ := cmd.Flags().GetStringToString("cell")
			extract, _ := cmd.Flags().GetString("extract")

			if len(cell) == 0 {
				_ = cmd.Help()
				return nil
			}

			report, err := c.app.Info(cmd.Context(), app.InfoOptions{
				ConfigPath: configPath,
				Cell:       domain.RawAxes(cell),
				Extract:    extract,
			})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(w, style.Title.Render(report.Config.Key()))
			_, _ = fmt.Fprintf(w, "strategy:     %s\n", report.Branch)
			_, _ = fmt.Fprintf(w, "requirements: %s\n", list(report.Requirements))
			_, _ = fmt.Fprintf(w, "libs:         %s\n", list(report.Info.Libs))
			_, _ = fmt.Fprintf(w, "shared:       %t\n", report.Info.Shared)
			_, _ = fmt.Fprintf(w, "include dirs: %s\n", list(report.Info.IncludeDirs))
			_, _ = fmt.Fprintf(w, "lib dirs:     %s\n", list(report.Info.LibDirs))
			_, _ = fmt.Fprintf(w, "bin dirs:     %s\n", list(report.Info.BinDirs))
			if report.Record == nil {
				_, _ = fmt.Fprintf(w, "published:    %s\n", style.Skipped.Render("no"))
				return nil
			}
			_, _ = fmt.Fprintf(w, "published:    %s (%d files, %s)\n",
				style.Done.Render(report.Record.Digest.String()),
				len(report.Record.Files),
				report.Record.Timestamp.Format("2006-01-02 15:04:05"),
			)
			return nil
		},
	}
	cmd.Flags().StringToStringP("cell", "s", nil, "Axis values of the configuration, e.g. os=Linux,arch=x86_64")
	cmd.Flags().StringP("extract", "x", "", "Unpack the published package into this directory")
	return cmd
}

func list(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}
