package strategy

import (
	"context"
	"maps"
	"slices"

	"go.trai.ch/kiln/internal/core/domain"
)

// CMake drives CMake builds with an out-of-source build directory.
type CMake struct {
	base
}

var _ Strategy = (*CMake)(nil)

// NewCMake creates a CMake strategy.
func NewCMake(tc Toolchain) Strategy {
	return &CMake{base: base{tag: domain.StrategyCMake, tc: tc}}
}

// Configure generates the build tree.
func (c *CMake) Configure(ctx context.Context, ws domain.Workspace, plan domain.BuildPlan) error {
	bt := string(buildType(plan))
	args := []string{
		"cmake",
		"-S", ws.Source,
		"-B", ws.Build,
		"-DCMAKE_BUILD_TYPE=" + bt,
		"-DCMAKE_INSTALL_PREFIX=" + ws.Install,
	}
	if plan.PIC {
		args = append(args, "-DCMAKE_POSITION_INDEPENDENT_CODE=ON")
	}
	for _, k := range slices.Sorted(maps.Keys(plan.Defines)) {
		args = append(args, "-D"+k+"="+plan.Defines[k])
	}
	return c.run(ctx, "configure", domain.Command{Args: args, Dir: ws.Build, Env: plan.Env})
}

// Compile builds the generated tree.
func (c *CMake) Compile(ctx context.Context, ws domain.Workspace, plan domain.BuildPlan) error {
	return c.run(ctx, "compile", domain.Command{
		Args: []string{"cmake", "--build", ws.Build, "--config", string(buildType(plan)), "--parallel", jobs(plan)},
		Dir:  ws.Build,
		Env:  plan.Env,
	})
}

// InstallTo installs the build tree below prefix.
func (c *CMake) InstallTo(ctx context.Context, ws domain.Workspace, plan domain.BuildPlan, prefix string) error {
	return c.run(ctx, "install", domain.Command{
		Args: []string{"cmake", "--install", ws.Build, "--config", string(buildType(plan)), "--prefix", prefix},
		Dir:  ws.Build,
		Env:  plan.Env,
	})
}
