// Package strategy implements the build-strategy variants a recipe branch can select.
package strategy

import (
	"context"
	"io"
	"maps"
	"runtime"
	"slices"
	"strconv"
	"sync"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

// Strategy drives one native build system through the lifecycle steps.
type Strategy interface {
	// Tag returns the branch tag the strategy is registered under.
	Tag() domain.BranchTag
	// FetchSource downloads and unpacks the sources into the workspace's source directory.
	FetchSource(ctx context.Context, ws domain.Workspace, src domain.SourceSpec) error
	// Configure prepares the out-of-tree build directory.
	Configure(ctx context.Context, ws domain.Workspace, plan domain.BuildPlan) error
	// Compile builds the configured tree.
	Compile(ctx context.Context, ws domain.Workspace, plan domain.BuildPlan) error
	// InstallTo installs the build outputs below prefix.
	InstallTo(ctx context.Context, ws domain.Workspace, plan domain.BuildPlan, prefix string) error
}

// Toolchain carries the ports and per-run streams a strategy works with.
type Toolchain struct {
	Executor   ports.Executor
	Downloader ports.Downloader
	Extractor  ports.Extractor
	// ExtraEnv holds KEY=VALUE entries contributed by resolved build requirements.
	ExtraEnv []string
	Stdout   io.Writer
	Stderr   io.Writer
}

// Factory creates a strategy bound to a toolchain.
type Factory func(tc Toolchain) Strategy

// Registry maps branch tags to strategy factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[domain.BranchTag]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[domain.BranchTag]Factory)}
}

// DefaultRegistry returns a Registry holding the built-in strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(domain.StrategyConfigureMake, NewConfigureMake)
	r.Register(domain.StrategyCMake, NewCMake)
	return r
}

// Register adds or replaces the factory for tag.
func (r *Registry) Register(tag domain.BranchTag, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[tag] = f
}

// New instantiates the strategy registered under tag.
func (r *Registry) New(tag domain.BranchTag, tc Toolchain) (Strategy, error) {
	r.mu.RLock()
	f, ok := r.factories[tag]
	r.mu.RUnlock()
	if !ok {
		return nil, zerr.With(zerr.Wrap(domain.ErrUnknownBranch, "no strategy registered"), "strategy", string(tag))
	}
	return f(tc), nil
}

// Has reports whether tag is registered.
func (r *Registry) Has(tag domain.BranchTag) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[tag]
	return ok
}

// Tags returns the registered tags in sorted order.
func (r *Registry) Tags() []domain.BranchTag {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}

// base holds what every strategy shares: source fetching and command execution.
type base struct {
	tag domain.BranchTag
	tc  Toolchain
}

func (b *base) Tag() domain.BranchTag {
	return b.tag
}

func (b *base) run(ctx context.Context, step string, cmd domain.Command) error {
	cmd.ExtraEnv = append(slices.Clone(cmd.ExtraEnv), b.tc.ExtraEnv...)
	if err := b.tc.Executor.Run(ctx, cmd, b.writer(b.tc.Stdout), b.writer(b.tc.Stderr)); err != nil {
		return zerr.With(zerr.With(zerr.Wrap(err, step+" failed"), "strategy", string(b.tag)), "step", step)
	}
	return nil
}

func (b *base) writer(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

func jobs(plan domain.BuildPlan) string {
	if plan.Jobs > 0 {
		return strconv.Itoa(plan.Jobs)
	}
	return strconv.Itoa(runtime.NumCPU())
}

func buildType(plan domain.BuildPlan) domain.BuildType {
	if plan.BuildType == "" {
		return domain.BuildTypeRelease
	}
	return plan.BuildType
}
