// Package app implements the application layer for kiln.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/engine/matrix"
	"go.trai.ch/kiln/internal/engine/scheduler"
	"go.trai.ch/zerr"
)

// Dirs lists the directories kiln writes to.
type Dirs struct {
	Store     string
	Work      string
	Downloads string
}

// App represents the main application logic.
type App struct {
	configLoader ports.ConfigLoader
	scheduler    *scheduler.Scheduler
	store        ports.PackageStore
	telemetry    ports.Telemetry
	logger       ports.Logger
	dirs         Dirs
}

// New creates a new App instance.
func New(
	loader ports.ConfigLoader,
	sched *scheduler.Scheduler,
	store ports.PackageStore,
	telemetry ports.Telemetry,
	log ports.Logger,
	dirs Dirs,
) *App {
	return &App{
		configLoader: loader,
		scheduler:    sched,
		store:        store,
		telemetry:    telemetry,
		logger:       log,
		dirs:         dirs,
	}
}

// BuildOptions configuration for the Build method.
type BuildOptions struct {
	// ConfigPath is the matrix file to build.
	ConfigPath string
	// Parallel overrides the matrix file's parallelism when positive.
	Parallel int
	// Policy overrides the matrix file's build policy when not empty.
	Policy        string
	KeepWorkspace bool
}

// Build runs every cell of the matrix through the lifecycle engine.
// The summary is returned even when cells failed; the error then wraps
// domain.ErrBuildExecutionFailed.
func (a *App) Build(ctx context.Context, opts BuildOptions) (*scheduler.Summary, error) {
	spec, recipe, err := a.load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	policy := spec.Policy
	if opts.Policy != "" {
		if policy, err = domain.ParseBuildPolicy(opts.Policy); err != nil {
			return nil, zerr.With(zerr.Wrap(err, "invalid build policy"), "build", opts.Policy)
		}
	}
	parallel := spec.Parallel
	if opts.Parallel > 0 {
		parallel = opts.Parallel
	}

	m, err := matrix.Expand(spec.Axes, spec.Exclude)
	if err != nil {
		return nil, err
	}
	a.logger.Info(fmt.Sprintf("building %s: %d of %d matrix cells", recipe.Meta.Ref(), m.Count(), m.Size()))

	summary, runErr := a.scheduler.Run(ctx, recipe, m.Cells(), scheduler.RunOptions{
		Parallel:      parallel,
		Policy:        policy,
		KeepWorkspace: opts.KeepWorkspace,
	})
	if err := a.telemetry.Close(); err != nil {
		a.logger.Warn(fmt.Sprintf("failed to close telemetry: %v", err))
	}

	a.logger.Info(fmt.Sprintf("%d built, %d cached, %d duplicate, %d failed, %d invalid, %d skipped",
		summary.Count(scheduler.StatusCompleted),
		summary.Count(scheduler.StatusCached),
		summary.Count(scheduler.StatusDuplicate),
		summary.Count(scheduler.StatusFailed),
		summary.Count(scheduler.StatusInvalid),
		summary.Count(scheduler.StatusSkipped),
	))

	if runErr != nil {
		return summary, errors.Join(domain.ErrBuildExecutionFailed, zerr.Wrap(runErr, "matrix run interrupted"))
	}
	return summary, summary.Err()
}

// MatrixEntry is one expanded cell and its normalized configuration.
type MatrixEntry struct {
	Index int
	Axes  domain.RawAxes
	// Key is empty when the cell is invalid.
	Key string
	// DuplicateOf is the index of an earlier cell with the same key, or -1.
	DuplicateOf int
	Err         error
}

// Matrix expands and normalizes the matrix without building anything.
func (a *App) Matrix(_ context.Context, configPath string) ([]MatrixEntry, error) {
	spec, recipe, err := a.load(configPath)
	if err != nil {
		return nil, err
	}

	m, err := matrix.Expand(spec.Axes, spec.Exclude)
	if err != nil {
		return nil, err
	}

	var entries []MatrixEntry
	seen := make(map[string]int)
	for cell := range m.Cells() {
		entry := MatrixEntry{Index: cell.Index, Axes: cell.Axes, DuplicateOf: -1, Err: cell.Err}
		if entry.Err == nil {
			cfg, err := recipe.Normalize(cell.Axes)
			if err != nil {
				entry.Err = err
			} else {
				entry.Key = cfg.Key()
				if first, dup := seen[entry.Key]; dup {
					entry.DuplicateOf = first
				} else {
					seen[entry.Key] = cell.Index
				}
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// InfoOptions configuration for the Info method.
type InfoOptions struct {
	ConfigPath string
	Cell       domain.RawAxes
	// Extract unpacks the published package into this directory when set.
	Extract string
}

// PackageReport describes what one configuration builds and whether it is published.
type PackageReport struct {
	Config       domain.Configuration
	Branch       domain.BranchTag
	Requirements []string
	Info         domain.PackageInfo
	// Record is nil when the configuration has not been published.
	Record *domain.PublishRecord
}

// Info normalizes a single cell and reports its package metadata.
func (a *App) Info(ctx context.Context, opts InfoOptions) (*PackageReport, error) {
	_, recipe, err := a.load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	cfg, err := recipe.Normalize(opts.Cell)
	if err != nil {
		return nil, zerr.With(err, "cell", opts.Cell.String())
	}

	report := &PackageReport{Config: cfg, Branch: domain.StrategyConfigureMake}
	if recipe.Hooks.Branch != nil {
		if report.Branch, err = recipe.Hooks.Branch(cfg); err != nil {
			return nil, err
		}
	}
	reqs, err := recipe.RequirementsFor(cfg)
	if err != nil {
		return nil, err
	}
	for _, req := range reqs {
		report.Requirements = append(report.Requirements, req.Ref)
	}
	if recipe.Hooks.PackageInfo != nil {
		if report.Info, err = recipe.Hooks.PackageInfo(cfg); err != nil {
			return nil, err
		}
	}

	id := domain.PackageID{Name: recipe.Meta.Name, Version: recipe.Meta.Version, ConfigKey: cfg.Key()}
	if report.Record, err = a.store.Lookup(id); err != nil {
		return nil, err
	}

	if opts.Extract != "" {
		if err := a.store.Restore(ctx, id, opts.Extract); err != nil {
			return nil, err
		}
		a.logger.Info(fmt.Sprintf("extracted %s into %s", id, opts.Extract))
	}
	return report, nil
}

// CleanOptions configuration for the Clean method.
type CleanOptions struct {
	Store     bool
	Work      bool
	Downloads bool
}

// Clean removes the selected kiln directories.
func (a *App) Clean(_ context.Context, options CleanOptions) error {
	var errs error

	remove := func(path string, name string) {
		a.logger.Info(fmt.Sprintf("removing %s...", name))
		if err := os.RemoveAll(path); err != nil {
			errs = errors.Join(errs, zerr.Wrap(err, fmt.Sprintf("failed to remove %s", name)))
			return
		}
		a.logger.Info(fmt.Sprintf("removed %s", name))
	}

	if options.Store {
		remove(a.dirs.Store, "package store")
	}
	if options.Work {
		remove(a.dirs.Work, "workspaces")
	}
	if options.Downloads {
		remove(a.dirs.Downloads, "download cache")
	}

	return errs
}

func (a *App) load(configPath string) (*domain.MatrixSpec, *domain.Recipe, error) {
	spec, err := a.configLoader.LoadMatrix(configPath)
	if err != nil {
		return nil, nil, zerr.Wrap(err, "failed to load matrix")
	}

	recipe, err := a.configLoader.LoadRecipe(spec.RecipePath)
	if err != nil {
		return nil, nil, zerr.Wrap(err, "failed to load recipe")
	}

	for _, axis := range spec.Axes {
		if !domain.IsSetting(axis.Name) && !slices.ContainsFunc(recipe.Options, func(o domain.OptionDomain) bool { return o.Name == axis.Name }) {
			a.logger.Warn(fmt.Sprintf("matrix axis %q is neither a setting nor an option of %s", axis.Name, recipe.Meta.Ref()))
		}
	}
	return spec, recipe, nil
}
