package strategy

import (
	"context"
	"maps"
	"path/filepath"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
)

// ConfigureMake drives autotools-style builds: ./configure, make, make install.
type ConfigureMake struct {
	base
}

var _ Strategy = (*ConfigureMake)(nil)

// NewConfigureMake creates a configure+make strategy.
func NewConfigureMake(tc Toolchain) Strategy {
	return &ConfigureMake{base: base{tag: domain.StrategyConfigureMake, tc: tc}}
}

// Configure runs the source tree's configure script from the build directory.
func (c *ConfigureMake) Configure(ctx context.Context, ws domain.Workspace, plan domain.BuildPlan) error {
	args := []string{filepath.Join(ws.Source, "configure"), "--prefix=" + ws.Install}
	args = append(args, plan.ConfigureArgs...)
	return c.run(ctx, "configure", domain.Command{Args: args, Dir: ws.Build, Env: compilerEnv(plan)})
}

// Compile runs make.
func (c *ConfigureMake) Compile(ctx context.Context, ws domain.Workspace, plan domain.BuildPlan) error {
	return c.run(ctx, "compile", domain.Command{
		Args: []string{"make", "-j" + jobs(plan)},
		Dir:  ws.Build,
		Env:  compilerEnv(plan),
	})
}

// InstallTo runs make install with the prefix overridden.
func (c *ConfigureMake) InstallTo(ctx context.Context, ws domain.Workspace, plan domain.BuildPlan, prefix string) error {
	return c.run(ctx, "install", domain.Command{
		Args: []string{"make", "install", "prefix=" + prefix},
		Dir:  ws.Build,
		Env:  compilerEnv(plan),
	})
}

// compilerEnv derives CFLAGS and friends from the plan.
func compilerEnv(plan domain.BuildPlan) map[string]string {
	env := maps.Clone(plan.Env)
	if env == nil {
		env = make(map[string]string)
	}

	var flags []string
	switch buildType(plan) {
	case domain.BuildTypeDebug:
		flags = append(flags, "-g", "-O0")
	default:
		flags = append(flags, "-O2")
		appendFlags(env, "CPPFLAGS", "-DNDEBUG")
	}
	if plan.PIC {
		flags = append(flags, "-fPIC")
	}
	appendFlags(env, "CFLAGS", flags...)
	appendFlags(env, "CXXFLAGS", flags...)
	return env
}

func appendFlags(env map[string]string, key string, flags ...string) {
	if len(flags) == 0 {
		return
	}
	joined := strings.Join(flags, " ")
	if cur := env[key]; cur != "" {
		env[key] = cur + " " + joined
		return
	}
	env[key] = joined
}
