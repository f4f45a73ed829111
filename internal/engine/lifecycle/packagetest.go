package lifecycle

import (
	"context"
	"errors"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/engine/strategy"
	"go.trai.ch/zerr"
)

func testFor(recipe *domain.Recipe, cfg domain.Configuration) (domain.PackageTest, error) {
	if recipe.Hooks.Test == nil {
		return domain.PackageTest{}, nil
	}
	return recipe.Hooks.Test(cfg)
}

// testPackage builds and runs the recipe's consumer against the collected
// package directory. The consumer sees the package through compiler and
// loader search paths, so a shared build links and loads from the package
// rather than from the install prefix.
func (r *run) testPackage(ctx context.Context, vertex ports.Vertex, test domain.PackageTest, info domain.PackageInfo) error {
	if test.Dir != "" {
		if err := strategy.CopyTree(test.Dir, r.ws.Test); err != nil {
			return zerr.With(zerr.Wrap(errors.Join(domain.ErrPackageTestFailed, err), "failed to copy test sources"), "path", test.Dir)
		}
	} else if err := os.MkdirAll(r.ws.Test, domain.DirPerm); err != nil {
		return zerr.Wrap(errors.Join(domain.ErrPackageTestFailed, err), "failed to create test directory")
	}

	env, extra := r.testEnv(test, info)
	for _, args := range test.Commands {
		if err := ctx.Err(); err != nil {
			return err
		}
		cmd := domain.Command{
			Args:     args,
			Dir:      r.ws.Test,
			Env:      env,
			ExtraEnv: slices.Concat(extra, r.extraEnv),
		}
		vertex.Log("testing package: " + cmd.String())
		if err := r.engine.deps.Executor.Run(ctx, cmd, vertex.Stdout(), vertex.Stderr()); err != nil {
			return zerr.With(zerr.Wrap(errors.Join(domain.ErrPackageTestFailed, err), "package test failed"), "command", cmd.String())
		}
	}
	return nil
}

// testEnv returns the variables a consumer needs to find the package.
// Windows resolves DLLs through PATH, which goes through ExtraEnv so the
// executor prepends it.
func (r *run) testEnv(test domain.PackageTest, info domain.PackageInfo) (map[string]string, []string) {
	under := func(dirs []string) []string {
		out := make([]string, len(dirs))
		for i, d := range dirs {
			out[i] = filepath.Join(r.ws.Package, filepath.FromSlash(d))
		}
		return out
	}
	includes := under(info.IncludeDirs)
	libs := under(info.LibDirs)
	bins := under(info.BinDirs)

	env := map[string]string{
		"KILN_PACKAGE":     r.ws.Package,
		"KILN_TEST_SOURCE": r.ws.Test,
		"KILN_LIBS":        strings.Join(info.Libs, " "),
		"CPATH":            prependPath("CPATH", includes),
		"LIBRARY_PATH":     prependPath("LIBRARY_PATH", libs),
	}

	var extra []string
	switch r.cfg.OS() {
	case domain.OSWindows:
		for _, dir := range slices.Concat(bins, libs) {
			extra = append(extra, "PATH="+dir)
		}
	case domain.OSMacos:
		env["DYLD_LIBRARY_PATH"] = prependPath("DYLD_LIBRARY_PATH", libs)
	default:
		env["LD_LIBRARY_PATH"] = prependPath("LD_LIBRARY_PATH", libs)
	}

	maps.Copy(env, test.Env)
	return env, extra
}

// prependPath puts dirs in front of the inherited value of key.
func prependPath(key string, dirs []string) string {
	list := slices.Clone(dirs)
	if cur := os.Getenv(key); cur != "" {
		list = append(list, cur)
	}
	return strings.Join(list, string(os.PathListSeparator))
}
