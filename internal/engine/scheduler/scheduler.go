// Package scheduler drives lifecycle runs over the cells of a build matrix.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"runtime"
	"sync"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/engine/lifecycle"
	"go.trai.ch/kiln/internal/engine/matrix"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// CellStatus represents the status of a matrix cell.
type CellStatus string

const (
	// StatusPending indicates the cell is waiting for a worker slot.
	StatusPending CellStatus = "Pending"
	// StatusRunning indicates the cell's lifecycle run is executing.
	StatusRunning CellStatus = "Running"
	// StatusCompleted indicates the cell was built and published.
	StatusCompleted CellStatus = "Completed"
	// StatusFailed indicates the cell's lifecycle run failed.
	StatusFailed CellStatus = "Failed"
	// StatusCached indicates the cell was skipped because the store already holds it.
	StatusCached CellStatus = "Cached"
	// StatusInvalid indicates the cell did not normalize to a valid configuration.
	StatusInvalid CellStatus = "Invalid"
	// StatusDuplicate indicates an earlier cell normalized to the same configuration.
	StatusDuplicate CellStatus = "Duplicate"
	// StatusSkipped indicates the cell was not started because the run was canceled.
	StatusSkipped CellStatus = "Skipped"
)

// Runner executes one lifecycle run. *lifecycle.Engine implements it.
type Runner interface {
	Run(ctx context.Context, recipe *domain.Recipe, cfg domain.Configuration, opts lifecycle.RunOptions) *lifecycle.Result
}

// RunOptions tunes a matrix run.
type RunOptions struct {
	// Parallel bounds the number of concurrent lifecycle runs. Zero means runtime.NumCPU().
	Parallel      int
	Policy        domain.BuildPolicy
	KeepWorkspace bool
}

// Outcome is the result of one matrix cell.
type Outcome struct {
	Index  int
	Axes   domain.RawAxes
	Config domain.Configuration
	// Key is empty for invalid cells.
	Key    string
	Status CellStatus
	// Stage is the lifecycle state a failed run stopped in.
	Stage    domain.State
	Err      error
	Artifact *domain.PackageArtifact
	Record   *domain.PublishRecord
	// Workspace is set when the run kept its workspace.
	Workspace string
}

// Summary lists the outcomes of a matrix run in matrix order.
type Summary struct {
	Outcomes []Outcome
}

// Count returns the number of outcomes with the given status.
func (s *Summary) Count(status CellStatus) int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Failures returns the failed and invalid outcomes.
func (s *Summary) Failures() []Outcome {
	var out []Outcome
	for _, o := range s.Outcomes {
		if o.Status == StatusFailed || o.Status == StatusInvalid {
			out = append(out, o)
		}
	}
	return out
}

// Err joins the errors of every failed or invalid cell. It returns nil
// when every cell succeeded, was cached or was a duplicate.
func (s *Summary) Err() error {
	failures := s.Failures()
	if len(failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(failures)+1)
	errs = append(errs, domain.ErrBuildExecutionFailed)
	for _, o := range failures {
		key := o.Key
		if key == "" {
			key = o.Axes.String()
		}
		errs = append(errs, zerr.With(zerr.Wrap(o.Err, "configuration failed"), "config", key))
	}
	return errors.Join(errs...)
}

// Scheduler runs the cells of a matrix through the lifecycle engine.
type Scheduler struct {
	runner    Runner
	store     ports.PackageStore
	telemetry ports.Telemetry
	logger    ports.Logger

	mu         sync.RWMutex
	cellStatus map[int]CellStatus
}

// NewScheduler creates a new Scheduler.
func NewScheduler(runner Runner, store ports.PackageStore, telemetry ports.Telemetry, logger ports.Logger) *Scheduler {
	return &Scheduler{
		runner:     runner,
		store:      store,
		telemetry:  telemetry,
		logger:     logger,
		cellStatus: make(map[int]CellStatus),
	}
}

// updateStatus updates the status of a cell.
func (s *Scheduler) updateStatus(index int, status CellStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cellStatus[index] = status
}

// Run builds every cell of the matrix with at most opts.Parallel runs in
// flight. Cells are normalized before dispatch; invalid, cached and
// duplicate cells never occupy a worker. A failing run does not cancel
// its siblings. When ctx is canceled no new runs are dispatched and the
// remaining cells are reported as skipped; the returned error is then
// ctx.Err(). Per-cell failures are reported through Summary.Err.
func (s *Scheduler) Run(ctx context.Context, recipe *domain.Recipe, cells iter.Seq[matrix.Cell], opts RunOptions) (*Summary, error) {
	parallel := opts.Parallel
	if parallel <= 0 {
		parallel = runtime.NumCPU()
	}

	var g errgroup.Group
	g.SetLimit(parallel)

	var outcomes []*Outcome
	seen := make(map[string]int)

	for cell := range cells {
		o := &Outcome{Index: cell.Index, Axes: cell.Axes}
		outcomes = append(outcomes, o)

		if ctx.Err() != nil {
			s.finish(o, StatusSkipped, ctx.Err())
			continue
		}

		if !s.prepare(recipe, cell, o, seen, opts.Policy) {
			continue
		}

		s.updateStatus(o.Index, StatusPending)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				s.finish(o, StatusSkipped, err)
				return nil
			}
			s.execute(ctx, recipe, o, opts)
			return nil
		})
	}

	_ = g.Wait()

	summary := &Summary{Outcomes: make([]Outcome, len(outcomes))}
	for i, o := range outcomes {
		summary.Outcomes[i] = *o
	}
	return summary, ctx.Err()
}

// prepare normalizes the cell and settles it without a run when possible.
// It reports whether the cell still needs a lifecycle run.
func (s *Scheduler) prepare(recipe *domain.Recipe, cell matrix.Cell, o *Outcome, seen map[string]int, policy domain.BuildPolicy) bool {
	if cell.Err != nil {
		s.finish(o, StatusInvalid, cell.Err)
		return false
	}

	cfg, err := recipe.Normalize(cell.Axes)
	if err != nil {
		s.finish(o, StatusInvalid, err)
		return false
	}
	o.Config = cfg
	o.Key = cfg.Key()

	if first, dup := seen[o.Key]; dup {
		s.logger.Info(fmt.Sprintf("cell %d normalizes to the same configuration as cell %d: %s", o.Index, first, o.Key))
		s.finish(o, StatusDuplicate, nil)
		return false
	}
	seen[o.Key] = o.Index

	if policy == domain.BuildAlways {
		return true
	}

	id := domain.PackageID{Name: recipe.Meta.Name, Version: recipe.Meta.Version, ConfigKey: o.Key}
	record, err := s.store.Lookup(id)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("store lookup failed for %s, building: %v", id, err))
		return true
	}
	if record == nil {
		return true
	}

	_, vertex := s.telemetry.Record(context.Background(), fmt.Sprintf("%s cached [%s]", recipe.Meta.Ref(), o.Key))
	vertex.Cached()
	vertex.Complete(nil)

	o.Record = record
	s.finish(o, StatusCached, nil)
	return false
}

func (s *Scheduler) execute(ctx context.Context, recipe *domain.Recipe, o *Outcome, opts RunOptions) {
	s.updateStatus(o.Index, StatusRunning)

	res := s.runner.Run(ctx, recipe, o.Config, lifecycle.RunOptions{KeepWorkspace: opts.KeepWorkspace})
	o.Artifact = res.Artifact
	o.Record = res.Record
	o.Workspace = res.Workspace

	if res.Err != nil {
		o.Stage = res.Stage
		s.logger.Error(zerr.With(zerr.Wrap(res.Err, "configuration failed"), "config", o.Key))
		s.finish(o, StatusFailed, res.Err)
		return
	}

	s.logger.Info(fmt.Sprintf("built %s [%s]", recipe.Meta.Ref(), o.Key))
	s.finish(o, StatusCompleted, nil)
}

func (s *Scheduler) finish(o *Outcome, status CellStatus, err error) {
	o.Status = status
	o.Err = err
	s.updateStatus(o.Index, status)
}
