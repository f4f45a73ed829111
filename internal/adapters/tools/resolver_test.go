package tools_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/tools"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

// quietLogger fails the test on any warning.
func quietLogger(t *testing.T) *mocks.MockLogger {
	t.Helper()
	return mocks.NewMockLogger(gomock.NewController(t))
}

func fixedVersions(versions map[string]string) tools.VersionReader {
	return func(_ context.Context, p string) (string, error) {
		if v, ok := versions[p]; ok {
			return v, nil
		}
		return "", exec.ErrNotFound
	}
}

func fakeLookPath(found map[string]string) func(string) (string, error) {
	return func(name string) (string, error) {
		if p, ok := found[name]; ok {
			return p, nil
		}
		return "", exec.ErrNotFound
	}
}

func TestResolver_Resolve(t *testing.T) {
	r := tools.NewResolverWith(fakeLookPath(map[string]string{
		"nasm":  "/usr/local/bin/nasm",
		"cmake": "/usr/bin/cmake",
		"ninja": "/usr/bin/ninja",
	}), nil, quietLogger(t)).WithVersionReader(fixedVersions(nil))

	env, err := r.Resolve(context.Background(), []domain.BuildRequirement{
		{Ref: "nasm/2.12.02"},
		{Ref: "cmake/3.27", Binary: "cmake"},
		{Ref: "ninja/1.11"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"PATH=/usr/local/bin" + string(os.PathListSeparator) + "/usr/bin"}, env)
}

func TestResolver_Resolve_Empty(t *testing.T) {
	r := tools.NewResolverWith(fakeLookPath(nil), nil, quietLogger(t))

	env, err := r.Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, env)
}

func TestResolver_Resolve_Missing(t *testing.T) {
	r := tools.NewResolverWith(fakeLookPath(nil), nil, quietLogger(t))

	_, err := r.Resolve(context.Background(), []domain.BuildRequirement{{Ref: "nasm/2.12.02"}})
	require.ErrorIs(t, err, domain.ErrRequirementUnresolved)
}

func TestResolver_Resolve_Override(t *testing.T) {
	dir := t.TempDir()
	//nolint:gosec // Test requires executable file
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nasm"), []byte("#!/bin/sh\n"), 0o700))

	r := tools.NewResolverWith(fakeLookPath(nil), map[string]string{"nasm": dir}, quietLogger(t)).
		WithVersionReader(fixedVersions(nil))

	env, err := r.Resolve(context.Background(), []domain.BuildRequirement{{Ref: "nasm/2.12.02"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"PATH=" + dir}, env)

	broken := tools.NewResolverWith(fakeLookPath(nil), map[string]string{"nasm": t.TempDir()}, quietLogger(t))
	_, err = broken.Resolve(context.Background(), []domain.BuildRequirement{{Ref: "nasm/2.12.02"}})
	require.ErrorIs(t, err, domain.ErrRequirementUnresolved)
}

func TestNewResolver_ReadsOverridesFromEnv(t *testing.T) {
	dir := t.TempDir()
	//nolint:gosec // Test requires executable file
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nasm"), []byte("#!/bin/sh\n"), 0o700))
	t.Setenv("KILN_TOOL_NASM", dir)

	env, err := tools.NewResolver(quietLogger(t)).Resolve(context.Background(), []domain.BuildRequirement{{Ref: "nasm/2.12.02"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"PATH=" + dir}, env)
}

func TestResolver_Resolve_VersionMismatch(t *testing.T) {
	tests := []struct {
		name   string
		output string
		warn   bool
	}{
		{name: "same version", output: "NASM version 2.12.02 compiled on Jan  1 2017", warn: false},
		{name: "newer minor", output: "NASM version 2.15.05", warn: false},
		{name: "older", output: "NASM version 2.11.08", warn: true},
		{name: "other major", output: "NASM version 3.01", warn: true},
		{name: "no version", output: "usage: nasm [-@ response file] [options...] [--] filename", warn: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			log := mocks.NewMockLogger(ctrl)
			if tt.warn {
				log.EXPECT().Warn(gomock.Any()).Times(1)
			}

			r := tools.NewResolverWith(fakeLookPath(map[string]string{"nasm": "/usr/bin/nasm"}), nil, log).
				WithVersionReader(fixedVersions(map[string]string{"/usr/bin/nasm": tt.output}))

			// A second resolution of the same binary reuses the first answer.
			for range 2 {
				_, err := r.Resolve(context.Background(), []domain.BuildRequirement{{Ref: "nasm/2.12.02"}})
				require.NoError(t, err)
			}
		})
	}
}

func TestResolver_Resolve_QueriesVersionOnce(t *testing.T) {
	calls := 0
	r := tools.NewResolverWith(fakeLookPath(map[string]string{"nasm": "/usr/bin/nasm"}), nil, quietLogger(t)).
		WithVersionReader(func(_ context.Context, _ string) (string, error) {
			calls++
			return "NASM version 2.13.02", nil
		})

	for range 3 {
		_, err := r.Resolve(context.Background(), []domain.BuildRequirement{{Ref: "nasm/2.12.02"}})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, calls)
}
