package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/kiln/internal/adapters/telemetry"
	"go.trai.ch/kiln/internal/app"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports/mocks"
	"go.trai.ch/kiln/internal/engine/lifecycle"
	"go.trai.ch/kiln/internal/engine/scheduler"
	"go.uber.org/mock/gomock"
)

type failingRunner struct{}

func (failingRunner) Run(_ context.Context, _ *domain.Recipe, cfg domain.Configuration, _ lifecycle.RunOptions) *lifecycle.Result {
	return &lifecycle.Result{
		Config: cfg,
		State:  domain.StateFailed,
		Stage:  domain.StateFetching,
		Err:    domain.ErrFetchFailed,
	}
}

type jsonSwitch struct{ enabled bool }

func (s *jsonSwitch) SetJSON(enabled bool) { s.enabled = enabled }

func newComponents(
	ctrl *gomock.Controller,
	loader *mocks.MockConfigLoader,
	log *mocks.MockLogger,
	format *jsonSwitch,
) ComponentProvider {
	store := mocks.NewMockPackageStore(ctrl)
	tel := telemetry.NewNoOp()
	application := app.New(loader, scheduler.NewScheduler(failingRunner{}, store, tel, log), store, tel, log, app.Dirs{})

	return func(_ context.Context) (*app.Components, func(), error) {
		c := &app.Components{App: application, Logger: log}
		if format != nil {
			c.LogFormat = format
		}
		return c, func() {}, nil
	}
}

func oneCellMatrix() *domain.MatrixSpec {
	return &domain.MatrixSpec{
		RecipePath: "recipe.yaml",
		Axes: []domain.Axis{
			{Name: "os", Values: []string{"Linux"}},
			{Name: "arch", Values: []string{"x86_64"}},
			{Name: "compiler", Values: []string{"gcc"}},
			{Name: "build_type", Values: []string{"Release"}},
		},
		Policy: domain.BuildAlways,
	}
}

// TestRun_Success verifies that the run function returns 0 when the command succeeds.
func TestRun_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	provider := newComponents(ctrl, mocks.NewMockConfigLoader(ctrl), mocks.NewMockLogger(ctrl), nil)

	stdout := new(bytes.Buffer)
	exitCode := run(context.Background(), []string{"version"}, stdout, new(bytes.Buffer), provider)
	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "kiln version")
}

// TestRun_InitializationError verifies that run returns 1 when component initialization fails.
func TestRun_InitializationError(t *testing.T) {
	provider := func(_ context.Context) (*app.Components, func(), error) {
		return nil, nil, errors.New("init failed")
	}

	stderr := new(bytes.Buffer)
	exitCode := run(context.Background(), []string{"version"}, new(bytes.Buffer), stderr, provider)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "Error: init failed")
}

// TestRun_ExecutionError verifies that run logs and returns 1 when a command fails.
func TestRun_ExecutionError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	loader := mocks.NewMockConfigLoader(ctrl)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Error(gomock.Any()).Times(1)

	loader.EXPECT().LoadMatrix("matrix.yaml").Return(nil, errors.New("load failed"))

	exitCode := run(context.Background(), []string{"build"}, new(bytes.Buffer), new(bytes.Buffer),
		newComponents(ctrl, loader, log, nil))

	assert.Equal(t, 1, exitCode)
}

// TestRun_BuildFailure verifies that failed configurations exit with 1 without
// logging the aggregated error a second time.
func TestRun_BuildFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	loader := mocks.NewMockConfigLoader(ctrl)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Info(gomock.Any()).AnyTimes()
	log.EXPECT().Warn(gomock.Any()).AnyTimes()
	// Only the scheduler reports the failed configuration.
	log.EXPECT().Error(gomock.Any()).Times(1)

	loader.EXPECT().LoadMatrix("matrix.yaml").Return(oneCellMatrix(), nil)
	loader.EXPECT().LoadRecipe("recipe.yaml").Return(&domain.Recipe{
		Meta: domain.RecipeMeta{Name: "zlib", Version: "1.3.1"},
	}, nil)

	stdout := new(bytes.Buffer)
	exitCode := run(context.Background(), []string{"build"}, stdout, new(bytes.Buffer),
		newComponents(ctrl, loader, log, nil))

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stdout.String(), "1 FAILED")
	assert.Contains(t, stdout.String(), "[Fetching]")
}

// TestRun_JSONLogs verifies that the json-logs flag reaches the logger.
func TestRun_JSONLogs(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	format := &jsonSwitch{}
	provider := newComponents(ctrl, mocks.NewMockConfigLoader(ctrl), mocks.NewMockLogger(ctrl), format)

	exitCode := run(context.Background(), []string{"version", "--json-logs"}, new(bytes.Buffer), new(bytes.Buffer), provider)
	assert.Equal(t, 0, exitCode)
	assert.True(t, format.enabled)
}
