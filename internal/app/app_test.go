package app_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/telemetry"
	"go.trai.ch/kiln/internal/app"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports/mocks"
	"go.trai.ch/kiln/internal/engine/lifecycle"
	"go.trai.ch/kiln/internal/engine/scheduler"
	"go.uber.org/mock/gomock"
)

type runnerFunc func(cfg domain.Configuration) *lifecycle.Result

func (f runnerFunc) Run(_ context.Context, _ *domain.Recipe, cfg domain.Configuration, _ lifecycle.RunOptions) *lifecycle.Result {
	return f(cfg)
}

func testRecipe() *domain.Recipe {
	return &domain.Recipe{
		Meta:    domain.RecipeMeta{Name: "libjpeg-turbo", Version: "1.5.2"},
		Options: []domain.OptionDomain{{Name: "fPIC", Values: []string{"true", "false"}, Default: "true"}},
		Rules: []domain.NormalizationRule{{
			When: domain.PredicateFunc(func(v map[string]string) (bool, error) {
				return v[domain.SettingOS] == string(domain.OSWindows), nil
			}),
			Remove: []string{"fPIC"},
		}},
		Requirements: []domain.BuildRequirement{{
			Ref: "nasm/2.12.02",
			When: domain.PredicateFunc(func(v map[string]string) (bool, error) {
				return v[domain.SettingOS] == string(domain.OSWindows), nil
			}),
		}},
		Hooks: domain.Hooks{
			Branch: func(cfg domain.Configuration) (domain.BranchTag, error) {
				if cfg.OS() == domain.OSWindows {
					return domain.StrategyCMake, nil
				}
				return domain.StrategyConfigureMake, nil
			},
			PackageInfo: func(domain.Configuration) (domain.PackageInfo, error) {
				return domain.PackageInfo{Libs: []string{"jpeg"}}, nil
			},
		},
	}
}

func testMatrix() *domain.MatrixSpec {
	return &domain.MatrixSpec{
		RecipePath: "recipe.yaml",
		Axes: []domain.Axis{
			{Name: "os", Values: []string{"Linux", "Windows"}},
			{Name: "arch", Values: []string{"x86_64"}},
			{Name: "compiler", Values: []string{"gcc"}},
			{Name: "build_type", Values: []string{"Release"}},
			{Name: "fPIC", Values: []string{"true", "false"}},
		},
		Parallel: 2,
		Policy:   domain.BuildAlways,
	}
}

type fixture struct {
	loader *mocks.MockConfigLoader
	store  *mocks.MockPackageStore
	log    *mocks.MockLogger
}

func newApp(t *testing.T, runner scheduler.Runner, dirs app.Dirs) (*app.App, fixture) {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := fixture{
		loader: mocks.NewMockConfigLoader(ctrl),
		store:  mocks.NewMockPackageStore(ctrl),
		log:    mocks.NewMockLogger(ctrl),
	}
	f.log.EXPECT().Info(gomock.Any()).AnyTimes()
	f.log.EXPECT().Warn(gomock.Any()).AnyTimes()
	f.log.EXPECT().Error(gomock.Any()).AnyTimes()

	tel := telemetry.NewNoOp()
	sched := scheduler.NewScheduler(runner, f.store, tel, f.log)
	return app.New(f.loader, sched, f.store, tel, f.log, dirs), f
}

func succeed(cfg domain.Configuration) *lifecycle.Result {
	return &lifecycle.Result{Config: cfg, State: domain.StateDone}
}

func TestApp_Build(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	a, f := newApp(t, runnerFunc(func(cfg domain.Configuration) *lifecycle.Result {
		runs.Add(1)
		return succeed(cfg)
	}), app.Dirs{})
	f.loader.EXPECT().LoadMatrix("matrix.yaml").Return(testMatrix(), nil)
	f.loader.EXPECT().LoadRecipe("recipe.yaml").Return(testRecipe(), nil)

	summary, err := a.Build(context.Background(), app.BuildOptions{ConfigPath: "matrix.yaml"})
	require.NoError(t, err)

	assert.Len(t, summary.Outcomes, 4)
	assert.Equal(t, 3, summary.Count(scheduler.StatusCompleted))
	assert.Equal(t, 1, summary.Count(scheduler.StatusDuplicate))
	assert.Equal(t, int32(3), runs.Load())
}

func TestApp_Build_Failure(t *testing.T) {
	t.Parallel()

	boom := errors.New("make failed")
	a, f := newApp(t, runnerFunc(func(cfg domain.Configuration) *lifecycle.Result {
		if cfg.OS() == domain.OSWindows {
			return &lifecycle.Result{Config: cfg, State: domain.StateFailed, Stage: domain.StateBuilding, Err: boom}
		}
		return succeed(cfg)
	}), app.Dirs{})
	f.loader.EXPECT().LoadMatrix("matrix.yaml").Return(testMatrix(), nil)
	f.loader.EXPECT().LoadRecipe("recipe.yaml").Return(testRecipe(), nil)

	summary, err := a.Build(context.Background(), app.BuildOptions{ConfigPath: "matrix.yaml"})
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrBuildExecutionFailed)
	require.ErrorIs(t, err, boom)

	require.NotNil(t, summary)
	require.Len(t, summary.Failures(), 1)
	assert.Equal(t, domain.StateBuilding, summary.Failures()[0].Stage)
	assert.Equal(t, 2, summary.Count(scheduler.StatusCompleted))
}

func TestApp_Build_PolicyOverride(t *testing.T) {
	t.Parallel()

	a, f := newApp(t, runnerFunc(succeed), app.Dirs{})
	spec := testMatrix()
	spec.Policy = domain.BuildMissing
	f.loader.EXPECT().LoadMatrix("matrix.yaml").Return(spec, nil)
	f.loader.EXPECT().LoadRecipe("recipe.yaml").Return(testRecipe(), nil)

	// The override skips every store lookup.
	f.store.EXPECT().Lookup(gomock.Any()).Times(0)

	_, err := a.Build(context.Background(), app.BuildOptions{ConfigPath: "matrix.yaml", Policy: "always", Parallel: 1})
	require.NoError(t, err)
}

func TestApp_Build_MissingPolicyUsesStore(t *testing.T) {
	t.Parallel()

	a, f := newApp(t, runnerFunc(succeed), app.Dirs{})
	spec := testMatrix()
	spec.Policy = domain.BuildMissing
	f.loader.EXPECT().LoadMatrix("matrix.yaml").Return(spec, nil)
	f.loader.EXPECT().LoadRecipe("recipe.yaml").Return(testRecipe(), nil)
	f.store.EXPECT().Lookup(gomock.Any()).DoAndReturn(func(id domain.PackageID) (*domain.PublishRecord, error) {
		if id.ConfigKey == "os=Linux;arch=x86_64;compiler=gcc;build_type=Release;fPIC=true" {
			return &domain.PublishRecord{ID: id}, nil
		}
		return nil, nil
	}).Times(3)

	summary, err := a.Build(context.Background(), app.BuildOptions{ConfigPath: "matrix.yaml"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Count(scheduler.StatusCached))
	assert.Equal(t, 2, summary.Count(scheduler.StatusCompleted))
}

func TestApp_Build_InvalidPolicy(t *testing.T) {
	t.Parallel()

	a, f := newApp(t, runnerFunc(succeed), app.Dirs{})
	f.loader.EXPECT().LoadMatrix("matrix.yaml").Return(testMatrix(), nil)
	f.loader.EXPECT().LoadRecipe("recipe.yaml").Return(testRecipe(), nil)

	_, err := a.Build(context.Background(), app.BuildOptions{ConfigPath: "matrix.yaml", Policy: "sometimes"})
	require.ErrorIs(t, err, domain.ErrInvalidBuildPolicy)
}

func TestApp_Build_LoadError(t *testing.T) {
	t.Parallel()

	a, f := newApp(t, runnerFunc(succeed), app.Dirs{})
	f.loader.EXPECT().LoadMatrix("matrix.yaml").Return(nil, domain.ErrConfigReadFailed)

	_, err := a.Build(context.Background(), app.BuildOptions{ConfigPath: "matrix.yaml"})
	require.ErrorIs(t, err, domain.ErrConfigReadFailed)
}

func TestApp_Matrix(t *testing.T) {
	t.Parallel()

	a, f := newApp(t, runnerFunc(succeed), app.Dirs{})
	f.loader.EXPECT().LoadMatrix("matrix.yaml").Return(testMatrix(), nil)
	f.loader.EXPECT().LoadRecipe("recipe.yaml").Return(testRecipe(), nil)

	entries, err := a.Matrix(context.Background(), "matrix.yaml")
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, -1, entries[2].DuplicateOf)
	assert.Equal(t, 2, entries[3].DuplicateOf)
	assert.Equal(t, entries[2].Key, entries[3].Key)
	assert.Equal(t, "os=Windows;arch=x86_64;compiler=gcc;build_type=Release", entries[3].Key)
	for _, e := range entries {
		assert.NoError(t, e.Err)
	}
}

func TestApp_Matrix_InvalidCell(t *testing.T) {
	t.Parallel()

	a, f := newApp(t, runnerFunc(succeed), app.Dirs{})
	spec := testMatrix()
	spec.Axes[0].Values = []string{"Linux", "Solaris"}
	f.loader.EXPECT().LoadMatrix("matrix.yaml").Return(spec, nil)
	f.loader.EXPECT().LoadRecipe("recipe.yaml").Return(testRecipe(), nil)

	entries, err := a.Matrix(context.Background(), "matrix.yaml")
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Empty(t, entries[2].Key)
	var invalid *domain.InvalidConfigurationError
	require.ErrorAs(t, entries[2].Err, &invalid)
	assert.Equal(t, "os", invalid.Field)
}

func TestApp_Info(t *testing.T) {
	t.Parallel()

	a, f := newApp(t, runnerFunc(succeed), app.Dirs{})
	f.loader.EXPECT().LoadMatrix("matrix.yaml").Return(testMatrix(), nil)
	f.loader.EXPECT().LoadRecipe("recipe.yaml").Return(testRecipe(), nil)

	cell := domain.RawAxes{"os": "Windows", "arch": "x86_64", "compiler": "gcc", "build_type": "Release", "fPIC": "true"}
	id := domain.PackageID{
		Name:      "libjpeg-turbo",
		Version:   "1.5.2",
		ConfigKey: "os=Windows;arch=x86_64;compiler=gcc;build_type=Release",
	}
	record := &domain.PublishRecord{ID: id}
	f.store.EXPECT().Lookup(id).Return(record, nil)
	f.store.EXPECT().Restore(gomock.Any(), id, "out").Return(nil)

	report, err := a.Info(context.Background(), app.InfoOptions{ConfigPath: "matrix.yaml", Cell: cell, Extract: "out"})
	require.NoError(t, err)

	assert.Equal(t, domain.StrategyCMake, report.Branch)
	assert.Equal(t, []string{"nasm/2.12.02"}, report.Requirements)
	assert.Equal(t, []string{"jpeg"}, report.Info.Libs)
	assert.False(t, report.Config.Has("fPIC"))
	assert.Same(t, record, report.Record)
}

func TestApp_Info_NotPublished(t *testing.T) {
	t.Parallel()

	a, f := newApp(t, runnerFunc(succeed), app.Dirs{})
	f.loader.EXPECT().LoadMatrix("matrix.yaml").Return(testMatrix(), nil)
	f.loader.EXPECT().LoadRecipe("recipe.yaml").Return(testRecipe(), nil)
	f.store.EXPECT().Lookup(gomock.Any()).Return(nil, nil)

	cell := domain.RawAxes{"os": "Linux", "arch": "x86_64", "compiler": "gcc", "build_type": "Debug"}
	report, err := a.Info(context.Background(), app.InfoOptions{ConfigPath: "matrix.yaml", Cell: cell})
	require.NoError(t, err)

	assert.Nil(t, report.Record)
	assert.Equal(t, domain.StrategyConfigureMake, report.Branch)
	assert.Empty(t, report.Requirements)
	assert.Equal(t, "true", report.Config.Options()["fPIC"])
}

func TestApp_Info_InvalidCell(t *testing.T) {
	t.Parallel()

	a, f := newApp(t, runnerFunc(succeed), app.Dirs{})
	f.loader.EXPECT().LoadMatrix("matrix.yaml").Return(testMatrix(), nil)
	f.loader.EXPECT().LoadRecipe("recipe.yaml").Return(testRecipe(), nil)

	_, err := a.Info(context.Background(), app.InfoOptions{
		ConfigPath: "matrix.yaml",
		Cell:       domain.RawAxes{"os": "Linux"},
	})
	var invalid *domain.InvalidConfigurationError
	require.ErrorAs(t, err, &invalid)
}

func TestApp_Clean(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dirs := app.Dirs{
		Store:     filepath.Join(root, "store"),
		Work:      filepath.Join(root, "work"),
		Downloads: filepath.Join(root, "downloads"),
	}
	for _, d := range []string{dirs.Store, dirs.Work, dirs.Downloads} {
		require.NoError(t, os.MkdirAll(filepath.Join(d, "sub"), domain.DirPerm))
	}

	a, _ := newApp(t, runnerFunc(succeed), dirs)

	require.NoError(t, a.Clean(context.Background(), app.CleanOptions{Work: true, Downloads: true}))

	assert.DirExists(t, dirs.Store)
	assert.NoDirExists(t, dirs.Work)
	assert.NoDirExists(t, dirs.Downloads)
}
