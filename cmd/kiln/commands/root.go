// Package commands implements the CLI commands for the kiln recipe engine.
package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.trai.ch/kiln/internal/app"
	"go.trai.ch/kiln/internal/build"
	"go.trai.ch/kiln/internal/engine/scheduler"
)

// CLI represents the command line interface for kiln.
type CLI struct {
	app      Application
	progress Progress
	rootCmd  *cobra.Command
}

// Application represents the application logic interface.
type Application interface {
	Build(ctx context.Context, opts app.BuildOptions) (*scheduler.Summary, error)
	Matrix(ctx context.Context, configPath string) ([]app.MatrixEntry, error)
	Info(ctx context.Context, opts app.InfoOptions) (*app.PackageReport, error)
	Clean(ctx context.Context, opts app.CleanOptions) error
}

// Progress renders live build progress. The returned function stops it.
type Progress interface {
	Start(ctx context.Context, out io.Writer) (stop func())
}

// New creates a new CLI instance with the given app.
func New(a Application) *CLI {
	rootCmd := &cobra.Command{
		Use:           "kiln",
		Short:         "Build a package recipe across a matrix of configurations",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"{{.Name}} version {{.Version}} (commit: %s, date: %s)\n",
		build.Commit,
		build.Date,
	))
	rootCmd.InitDefaultVersionFlag()
	rootCmd.Flags().Lookup("version").Usage = "Print the application version"

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"

	rootCmd.PersistentFlags().StringP("config", "c", "matrix.yaml", "Path to the matrix file")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON")

	c := &CLI{
		app:     a,
		rootCmd: rootCmd,
	}

	rootCmd.AddCommand(c.newBuildCmd())
	rootCmd.AddCommand(c.newMatrixCmd())
	rootCmd.AddCommand(c.newInfoCmd())
	rootCmd.AddCommand(c.newCleanCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetLogFormatHook sets up a PersistentPreRun function that retrieves the
// json-logs flag and calls the provided callback with its value.
func (c *CLI) SetLogFormatHook(fn func(json bool)) {
	c.rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		jsonLogs, err := cmd.Flags().GetBool("json-logs")
		if err != nil {
			return err
		}
		fn(jsonLogs)
		return nil
	}
}

// SetProgress enables the --progress flag of the build command.
func (c *CLI) SetProgress(p Progress) {
	c.progress = p
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams for the root command. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}
