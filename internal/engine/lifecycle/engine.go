// Package lifecycle runs one configuration of a recipe through
// fetch, patch, build and package.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/engine/packager"
	"go.trai.ch/kiln/internal/engine/strategy"
	"go.trai.ch/zerr"
)

// Deps are the ports a lifecycle run works through.
type Deps struct {
	Strategies *strategy.Registry
	Packager   *packager.Packager
	Downloader ports.Downloader
	Extractor  ports.Extractor
	Executor   ports.Executor
	Resolver   ports.RequirementResolver
	Store      ports.PackageStore
	Hasher     ports.Hasher
	Verifier   ports.Verifier
	Telemetry  ports.Telemetry
	Logger     ports.Logger
}

// Engine executes lifecycle runs. Runs share no mutable state and may
// execute concurrently.
type Engine struct {
	deps     Deps
	workRoot string
}

// New creates an Engine whose workspaces live below workRoot.
func New(deps Deps, workRoot string) *Engine {
	return &Engine{deps: deps, workRoot: workRoot}
}

// RunOptions tunes a single run.
type RunOptions struct {
	// KeepWorkspace leaves the workspace on disk after the run.
	KeepWorkspace bool
}

// Result is the outcome of one run.
type Result struct {
	Config domain.Configuration
	// State is StateDone or StateFailed.
	State domain.State
	// Stage is the state the run failed in. Empty on success.
	Stage domain.State
	// Transitions lists every state the run entered, in order.
	Transitions []domain.State
	Artifact    *domain.PackageArtifact
	Record      *domain.PublishRecord
	// Workspace is the workspace root when it was kept.
	Workspace string
	Err       error
}

// Run drives cfg through the lifecycle. It never returns a nil Result;
// failures are reported in Result.Err as *domain.StageError.
// Cancellation is observed before every transition.
func (e *Engine) Run(ctx context.Context, recipe *domain.Recipe, cfg domain.Configuration, opts RunOptions) *Result {
	r := &run{
		engine: e,
		recipe: recipe,
		cfg:    cfg,
		res: &Result{
			Config:      cfg,
			State:       domain.StateIdle,
			Transitions: []domain.State{domain.StateIdle},
		},
	}

	if err := ctx.Err(); err != nil {
		return r.fail(domain.StateIdle, err)
	}

	ws, err := e.prepareWorkspace(recipe, cfg)
	if err != nil {
		return r.fail(domain.StateIdle, err)
	}
	r.ws = ws
	defer r.cleanup(opts.KeepWorkspace)

	steps := []struct {
		state domain.State
		fn    func(context.Context, ports.Vertex) error
	}{
		{domain.StateFetching, r.fetch},
		{domain.StatePatching, r.patch},
		{domain.StateBuilding, r.build},
		{domain.StatePackaging, r.pack},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return r.fail(step.state, err)
		}
		r.transition(step.state)
		if err := r.stage(ctx, step.state, step.fn); err != nil {
			return r.fail(step.state, err)
		}
	}

	r.transition(domain.StateDone)
	return r.res
}

func (e *Engine) prepareWorkspace(recipe *domain.Recipe, cfg domain.Configuration) (domain.Workspace, error) {
	parent := filepath.Join(e.workRoot, recipe.Meta.Name+"-"+recipe.Meta.Version)
	if err := os.MkdirAll(parent, domain.DirPerm); err != nil {
		return domain.Workspace{}, zerr.Wrap(errors.Join(domain.ErrWorkspaceFailed, err), "failed to create work root")
	}

	root, err := os.MkdirTemp(parent, fmt.Sprintf("%016x-", xxhash.Sum64String(cfg.Key())))
	if err != nil {
		return domain.Workspace{}, zerr.Wrap(errors.Join(domain.ErrWorkspaceFailed, err), "failed to create workspace")
	}

	ws := domain.NewWorkspace(root)
	for _, dir := range ws.Dirs() {
		if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
			return domain.Workspace{}, zerr.With(zerr.Wrap(errors.Join(domain.ErrWorkspaceFailed, err), "failed to create workspace"), "path", dir)
		}
	}
	return ws, nil
}

// run holds the state of one lifecycle execution.
type run struct {
	engine *Engine
	recipe *domain.Recipe
	cfg    domain.Configuration
	ws     domain.Workspace
	res    *Result

	tag        domain.BranchTag
	sourceHash string
	extraEnv   []string
}

func (r *run) transition(next domain.State) {
	r.res.State = next
	r.res.Transitions = append(r.res.Transitions, next)
}

func (r *run) fail(stage domain.State, err error) *Result {
	r.res.Stage = stage
	r.res.Err = &domain.StageError{Stage: stage, ConfigKey: r.cfg.Key(), Err: err}
	r.transition(domain.StateFailed)
	return r.res
}

func (r *run) cleanup(keep bool) {
	if r.ws.Root == "" {
		return
	}
	if keep {
		r.res.Workspace = r.ws.Root
		return
	}
	if err := os.RemoveAll(r.ws.Root); err != nil {
		r.engine.deps.Logger.Warn(fmt.Sprintf("failed to remove workspace %s: %v", r.ws.Root, err))
	}
}

// stage records a telemetry vertex around one lifecycle step.
func (r *run) stage(ctx context.Context, state domain.State, fn func(context.Context, ports.Vertex) error) error {
	name := fmt.Sprintf("%s %s [%s]", r.recipe.Meta.Ref(), strings.ToLower(string(state)), r.cfg.Key())
	vctx, vertex := r.engine.deps.Telemetry.Record(ctx, name)
	err := fn(vctx, vertex)
	vertex.Complete(err)
	return err
}

func (r *run) toolchain(vertex ports.Vertex, extraEnv []string) strategy.Toolchain {
	d := r.engine.deps
	return strategy.Toolchain{
		Executor:   d.Executor,
		Downloader: d.Downloader,
		Extractor:  d.Extractor,
		ExtraEnv:   extraEnv,
		Stdout:     vertex.Stdout(),
		Stderr:     vertex.Stderr(),
	}
}

func (r *run) fetch(ctx context.Context, vertex ports.Vertex) error {
	src, err := sourceFor(r.recipe, r.cfg)
	if err != nil {
		return err
	}
	tag, err := branchFor(r.recipe, r.cfg)
	if err != nil {
		return err
	}
	strat, err := r.engine.deps.Strategies.New(tag, r.toolchain(vertex, nil))
	if err != nil {
		return err
	}
	r.tag = tag

	vertex.Log("fetching " + src.URL)
	return strat.FetchSource(ctx, r.ws, src)
}

func (r *run) patch(_ context.Context, vertex ports.Vertex) error {
	patches, err := patchesFor(r.recipe, r.cfg)
	if err != nil {
		return err
	}

	if len(patches) > 0 {
		l, err := loadLedger(r.ws.PatchLedger())
		if err != nil {
			return err
		}
		for _, p := range patches {
			vertex.Log("applying patch " + p.Name)
			if err := applyPatch(r.ws.Source, p, l); err != nil {
				return err
			}
		}
	} else {
		vertex.Log("no patches")
	}

	hash, err := r.engine.deps.Hasher.ComputeTreeHash(r.ws.Source)
	if err != nil {
		return zerr.Wrap(err, "failed to fingerprint source tree")
	}
	r.sourceHash = hash
	return nil
}

func (r *run) build(ctx context.Context, vertex ports.Vertex) error {
	reqs, err := r.recipe.RequirementsFor(r.cfg)
	if err != nil {
		return err
	}

	var extraEnv []string
	if len(reqs) > 0 {
		extraEnv, err = r.engine.deps.Resolver.Resolve(ctx, reqs)
		if err != nil {
			return err
		}
	}
	r.extraEnv = extraEnv

	plan, err := planFor(r.recipe, r.cfg)
	if err != nil {
		return err
	}

	strat, err := r.engine.deps.Strategies.New(r.tag, r.toolchain(vertex, extraEnv))
	if err != nil {
		return err
	}

	if err := strat.Configure(ctx, r.ws, plan); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := strat.Compile(ctx, r.ws, plan); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return strat.InstallTo(ctx, r.ws, plan, r.ws.Install)
}

func (r *run) pack(ctx context.Context, vertex ports.Vertex) error {
	layout, err := layoutFor(r.recipe, r.cfg)
	if err != nil {
		return err
	}

	if len(layout.Expect) > 0 {
		missing, err := r.engine.deps.Verifier.VerifyOutputs(r.ws.Install, layout.Expect)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return zerr.With(zerr.Wrap(domain.ErrMissingOutput, "install step is incomplete"), "files", missing)
		}
	}

	files, err := r.engine.deps.Packager.Collect(ctx, r.ws.Install, r.ws.Package, layout)
	if err != nil {
		return err
	}

	info, err := infoFor(r.recipe, r.cfg)
	if err != nil {
		return err
	}

	test, err := testFor(r.recipe, r.cfg)
	if err != nil {
		return err
	}
	if !test.Empty() {
		if err := r.testPackage(ctx, vertex, test, info); err != nil {
			return err
		}
	}

	artifact := domain.PackageArtifact{
		Recipe:     r.recipe.Meta,
		ConfigKey:  r.cfg.Key(),
		Root:       r.ws.Package,
		Files:      files,
		Info:       info,
		SourceHash: r.sourceHash,
	}

	vertex.Log(fmt.Sprintf("publishing %d files", len(files)))
	record, err := r.engine.deps.Store.Publish(ctx, artifact)
	if err != nil {
		var storeErr *domain.StoreError
		if !errors.As(err, &storeErr) {
			err = &domain.StoreError{Op: "publish", Key: artifact.ID().String(), Err: err}
		}
		return err
	}

	r.res.Artifact = &artifact
	r.res.Record = record
	return nil
}
