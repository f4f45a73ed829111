package scheduler_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"testing/synctest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/telemetry"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports/mocks"
	"go.trai.ch/kiln/internal/engine/lifecycle"
	"go.trai.ch/kiln/internal/engine/matrix"
	"go.trai.ch/kiln/internal/engine/scheduler"
	"go.uber.org/mock/gomock"
)

type runnerFunc func(ctx context.Context, cfg domain.Configuration) *lifecycle.Result

func (f runnerFunc) Run(ctx context.Context, _ *domain.Recipe, cfg domain.Configuration, _ lifecycle.RunOptions) *lifecycle.Result {
	return f(ctx, cfg)
}

func succeed(_ context.Context, cfg domain.Configuration) *lifecycle.Result {
	return &lifecycle.Result{
		Config: cfg,
		State:  domain.StateDone,
		Record: &domain.PublishRecord{ID: domain.PackageID{Name: "zlib", Version: "1.3", ConfigKey: cfg.Key()}},
	}
}

func failed(cfg domain.Configuration, stage domain.State, err error) *lifecycle.Result {
	return &lifecycle.Result{
		Config: cfg,
		State:  domain.StateFailed,
		Stage:  stage,
		Err:    &domain.StageError{Stage: stage, ConfigKey: cfg.Key(), Err: err},
	}
}

func testRecipe() *domain.Recipe {
	return &domain.Recipe{
		Meta:    domain.RecipeMeta{Name: "zlib", Version: "1.3"},
		Options: []domain.OptionDomain{{Name: "shared", Values: []string{"true", "false"}, Default: "false"}},
		Rules:   []domain.NormalizationRule{{Clear: []string{domain.SettingCompilerLibcxx}}},
	}
}

func raw(os, buildType string) domain.RawAxes {
	return domain.RawAxes{"os": os, "arch": "x86_64", "compiler": "gcc", "build_type": buildType}
}

func cells(axes ...domain.RawAxes) func(func(matrix.Cell) bool) {
	out := make([]matrix.Cell, len(axes))
	for i, a := range axes {
		out[i] = matrix.Cell{Index: i, Axes: a}
	}
	return func(yield func(matrix.Cell) bool) {
		for _, c := range out {
			if !yield(c) {
				return
			}
		}
	}
}

func newScheduler(t *testing.T, runner scheduler.Runner) (*scheduler.Scheduler, *mocks.MockPackageStore) {
	t.Helper()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockPackageStore(ctrl)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Info(gomock.Any()).AnyTimes()
	log.EXPECT().Warn(gomock.Any()).AnyTimes()
	log.EXPECT().Error(gomock.Any()).AnyTimes()
	return scheduler.NewScheduler(runner, store, telemetry.NewNoOp(), log), store
}

func statuses(s *scheduler.Summary) []scheduler.CellStatus {
	out := make([]scheduler.CellStatus, len(s.Outcomes))
	for i, o := range s.Outcomes {
		out[i] = o.Status
	}
	return out
}

func TestScheduler_Run_Outcomes(t *testing.T) {
	toolchainErr := &domain.ToolchainError{Command: "make", ExitCode: 2}
	s, store := newScheduler(t, runnerFunc(func(ctx context.Context, cfg domain.Configuration) *lifecycle.Result {
		if cfg.OS() == domain.OSWindows {
			return failed(cfg, domain.StateBuilding, toolchainErr)
		}
		return succeed(ctx, cfg)
	}))

	cached := &domain.PublishRecord{Digest: "sha256:cafe"}
	store.EXPECT().Lookup(gomock.Any()).DoAndReturn(func(id domain.PackageID) (*domain.PublishRecord, error) {
		if id.ConfigKey == "os=Macos;arch=x86_64;compiler=gcc;build_type=Release;shared=false" {
			return cached, nil
		}
		return nil, nil
	}).Times(3)

	summary, err := s.Run(context.Background(), testRecipe(), cells(
		raw("Linux", "Release"),
		raw("Plan9", "Release"),
		raw("Windows", "Release"),
		raw("Macos", "Release"),
	), scheduler.RunOptions{Parallel: 2, Policy: domain.BuildMissing})
	require.NoError(t, err)

	assert.Equal(t, []scheduler.CellStatus{
		scheduler.StatusCompleted,
		scheduler.StatusInvalid,
		scheduler.StatusFailed,
		scheduler.StatusCached,
	}, statuses(summary))

	assert.Equal(t, domain.StateBuilding, summary.Outcomes[2].Stage)
	assert.Same(t, cached, summary.Outcomes[3].Record)
	assert.Empty(t, summary.Outcomes[1].Key)
	assert.Len(t, summary.Failures(), 2)
	assert.Equal(t, 1, summary.Count(scheduler.StatusCompleted))

	runErr := summary.Err()
	require.ErrorIs(t, runErr, domain.ErrBuildExecutionFailed)
	require.ErrorIs(t, runErr, domain.ErrToolchainFailed)
	require.ErrorIs(t, runErr, domain.ErrInvalidConfiguration)
}

func TestScheduler_Run_AllSucceeded(t *testing.T) {
	s, _ := newScheduler(t, runnerFunc(succeed))

	summary, err := s.Run(context.Background(), testRecipe(), cells(
		raw("Linux", "Release"),
		raw("Linux", "Debug"),
	), scheduler.RunOptions{Parallel: 1, Policy: domain.BuildAlways})
	require.NoError(t, err)
	require.NoError(t, summary.Err())
	assert.Equal(t, 2, summary.Count(scheduler.StatusCompleted))
	assert.Equal(t, map[int]scheduler.CellStatus{
		0: scheduler.StatusCompleted,
		1: scheduler.StatusCompleted,
	}, s.GetCellStatusMap())
}

func TestScheduler_Run_Duplicate(t *testing.T) {
	s, _ := newScheduler(t, runnerFunc(succeed))

	a := raw("Linux", "Release")
	a["compiler.libcxx"] = "libstdc++"
	b := raw("Linux", "Release")
	b["compiler.libcxx"] = "libstdc++11"

	summary, err := s.Run(context.Background(), testRecipe(), cells(a, b), scheduler.RunOptions{Policy: domain.BuildAlways})
	require.NoError(t, err)
	assert.Equal(t, []scheduler.CellStatus{scheduler.StatusCompleted, scheduler.StatusDuplicate}, statuses(summary))
	assert.Equal(t, summary.Outcomes[0].Key, summary.Outcomes[1].Key)
	require.NoError(t, summary.Err())
}

func TestScheduler_Run_BoundedParallelism(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var inFlight, peak atomic.Int32
		release := make(chan struct{})

		s, _ := newScheduler(t, runnerFunc(func(ctx context.Context, cfg domain.Configuration) *lifecycle.Result {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			inFlight.Add(-1)
			return succeed(ctx, cfg)
		}))

		done := make(chan *scheduler.Summary)
		go func() {
			summary, _ := s.Run(context.Background(), testRecipe(), cells(
				raw("Linux", "Release"),
				raw("Linux", "Debug"),
				raw("Macos", "Release"),
				raw("Macos", "Debug"),
				raw("FreeBSD", "Release"),
			), scheduler.RunOptions{Parallel: 2, Policy: domain.BuildAlways})
			done <- summary
		}()

		synctest.Wait()
		assert.Equal(t, int32(2), inFlight.Load())

		close(release)
		summary := <-done
		assert.Equal(t, int32(2), peak.Load())
		assert.Equal(t, 5, summary.Count(scheduler.StatusCompleted))
	})
}

func TestScheduler_Run_FailureDoesNotCancelSiblings(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		linuxDone := make(chan struct{})
		var seenCanceled atomic.Bool

		s, _ := newScheduler(t, runnerFunc(func(ctx context.Context, cfg domain.Configuration) *lifecycle.Result {
			if cfg.OS() == domain.OSWindows {
				return failed(cfg, domain.StateFetching, &domain.FetchError{Kind: domain.FetchNotFound})
			}
			<-linuxDone
			if ctx.Err() != nil {
				seenCanceled.Store(true)
			}
			return succeed(ctx, cfg)
		}))

		done := make(chan *scheduler.Summary)
		go func() {
			summary, _ := s.Run(context.Background(), testRecipe(), cells(
				raw("Linux", "Release"),
				raw("Windows", "Release"),
			), scheduler.RunOptions{Parallel: 2, Policy: domain.BuildAlways})
			done <- summary
		}()

		synctest.Wait()
		close(linuxDone)
		summary := <-done

		assert.False(t, seenCanceled.Load())
		assert.Equal(t, []scheduler.CellStatus{scheduler.StatusCompleted, scheduler.StatusFailed}, statuses(summary))
		require.ErrorIs(t, summary.Err(), domain.ErrFetchFailed)
	})
}

func TestScheduler_Run_CancelStopsDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var ran []string
	s, _ := newScheduler(t, runnerFunc(func(ctx context.Context, cfg domain.Configuration) *lifecycle.Result {
		mu.Lock()
		ran = append(ran, cfg.Key())
		mu.Unlock()
		cancel()
		return succeed(ctx, cfg)
	}))

	summary, err := s.Run(ctx, testRecipe(), cells(
		raw("Linux", "Release"),
		raw("Linux", "Debug"),
		raw("Macos", "Release"),
	), scheduler.RunOptions{Parallel: 1, Policy: domain.BuildAlways})

	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, ran, 1)
	assert.Equal(t, scheduler.StatusCompleted, summary.Outcomes[0].Status)
	for _, o := range summary.Outcomes[1:] {
		assert.Equal(t, scheduler.StatusSkipped, o.Status)
		require.ErrorIs(t, o.Err, context.Canceled)
	}
	assert.NoError(t, summary.Err(), "skipped cells are not failures")
}

func TestScheduler_Run_LookupErrorBuilds(t *testing.T) {
	s, store := newScheduler(t, runnerFunc(succeed))
	store.EXPECT().Lookup(gomock.Any()).Return(nil, errors.New("corrupt record"))

	summary, err := s.Run(context.Background(), testRecipe(), cells(raw("Linux", "Release")), scheduler.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []scheduler.CellStatus{scheduler.StatusCompleted}, statuses(summary))
}

func TestScheduler_Run_ExclusionError(t *testing.T) {
	s, _ := newScheduler(t, runnerFunc(succeed))
	cellErr := errors.New("exclusion failed")

	seq := func(yield func(matrix.Cell) bool) {
		yield(matrix.Cell{Index: 0, Axes: raw("Linux", "Release"), Err: cellErr})
	}

	summary, err := s.Run(context.Background(), testRecipe(), seq, scheduler.RunOptions{Policy: domain.BuildAlways})
	require.NoError(t, err)
	assert.True(t, slices.Equal([]scheduler.CellStatus{scheduler.StatusInvalid}, statuses(summary)))
	require.ErrorIs(t, summary.Err(), cellErr)
}
