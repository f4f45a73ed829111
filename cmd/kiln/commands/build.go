package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.trai.ch/kiln/internal/app"
	"go.trai.ch/kiln/internal/engine/scheduler"
	"go.trai.ch/kiln/internal/ui/style"
)

func (c *CLI) newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build every configuration of the matrix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			parallel, _ := cmd.Flags().GetInt("parallel")
			policy, _ := cmd.Flags().GetString("build")
			keep, _ := cmd.Flags().GetBool("keep-workspace")
			progress, _ := cmd.Flags().GetBool("progress")

			stop := func() {}
			if progress && c.progress != nil {
				stop = c.progress.Start(cmd.Context(), cmd.ErrOrStderr())
			}

			summary, err := c.app.Build(cmd.Context(), app.BuildOptions{
				ConfigPath:    configPath,
				Parallel:      parallel,
				Policy:        policy,
				KeepWorkspace: keep,
			})
			stop()

			if summary != nil {
				writeSummary(cmd.OutOrStdout(), summary)
			}
			return err
		},
	}
	cmd.Flags().IntP("parallel", "j", 0, "Maximum concurrent configuration builds (defaults to the matrix file)")
	cmd.Flags().String("build", "", "Build policy: missing or always (defaults to the matrix file)")
	cmd.Flags().Bool("keep-workspace", false, "Keep workspaces of finished builds for inspection")
	cmd.Flags().BoolP("progress", "p", false, "Show live progress of every lifecycle stage")
	return cmd
}

func writeSummary(w io.Writer, summary *scheduler.Summary) {
	_, _ = fmt.Fprintln(w, style.Title.Render("CONFIGURATIONS"))
	for _, o := range summary.Outcomes {
		_, _ = fmt.Fprintf(w, "%s %s\n", statusMark(o.Status), outcomeName(o))
		if o.Workspace != "" {
			_, _ = fmt.Fprintf(w, "    workspace: %s\n", o.Workspace)
		}
	}

	failures := summary.Failures()
	if len(failures) == 0 {
		return
	}

	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, style.FailureTitle.Render(fmt.Sprintf("%d FAILED", len(failures))))
	for _, o := range failures {
		stage := "normalize"
		if o.Stage != "" {
			stage = string(o.Stage)
		}
		_, _ = fmt.Fprintf(w, "%s %s [%s]\n    %v\n", style.Failed.Render(style.Cross), outcomeName(o), stage, o.Err)
	}
}

func statusMark(status scheduler.CellStatus) string {
	icon, label := style.Circle, string(status)
	st := style.Cached
	switch status {
	case scheduler.StatusCompleted:
		icon, label, st = style.Check, "built", style.Done
	case scheduler.StatusCached:
		icon, label = style.Dot, "cached"
	case scheduler.StatusDuplicate:
		icon, label = style.Tilde, "duplicate"
	case scheduler.StatusFailed:
		icon, label, st = style.Cross, "failed", style.Failed
	case scheduler.StatusInvalid:
		icon, label, st = style.Warning, "invalid", style.Failed
	case scheduler.StatusSkipped:
		label, st = "skipped", style.Skipped
	}
	return st.Render(icon) + " " + fmt.Sprintf("%-9s", label)
}

func outcomeName(o scheduler.Outcome) string {
	if o.Key != "" {
		return o.Key
	}
	return o.Axes.String()
}
