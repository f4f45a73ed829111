// Package tools resolves build requirements to binaries on the host.
package tools

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/mod/semver"
)

// OverrideEnvPrefix prefixes variables that point a tool at a directory,
// e.g. KILN_TOOL_NASM=/opt/nasm/bin.
const OverrideEnvPrefix = "KILN_TOOL_"

// versionTimeout bounds a single version query.
const versionTimeout = 5 * time.Second

// VersionReader reports the version text printed by the binary at path.
type VersionReader func(ctx context.Context, path string) (string, error)

var _ ports.RequirementResolver = (*Resolver)(nil)

// Resolver implements ports.RequirementResolver by locating each
// requirement's binary in an override directory or on PATH.
// A resolved binary older than the requested version, or of another major
// version, is still used but logged as a warning.
type Resolver struct {
	lookup      func(string) (string, error)
	overrides   map[string]string
	readVersion VersionReader
	logger      ports.Logger

	mu       sync.Mutex
	versions map[string]string
	checked  map[string]struct{}
}

// NewResolver creates a Resolver reading overrides from the process environment.
func NewResolver(logger ports.Logger) *Resolver {
	return NewResolverWith(exec.LookPath, overridesFromEnv(os.Environ()), logger)
}

// NewResolverWith creates a Resolver with an explicit PATH lookup and
// override directories keyed by tool name.
func NewResolverWith(lookup func(string) (string, error), overrides map[string]string, logger ports.Logger) *Resolver {
	return &Resolver{
		lookup:      lookup,
		overrides:   overrides,
		readVersion: runVersion,
		logger:      logger,
		versions:    make(map[string]string),
		checked:     make(map[string]struct{}),
	}
}

// WithVersionReader replaces the command used to query tool versions.
func (r *Resolver) WithVersionReader(read VersionReader) *Resolver {
	r.readVersion = read
	return r
}

// Resolve returns one PATH entry listing the directory of every resolved
// binary, in requirement order without duplicates.
func (r *Resolver) Resolve(ctx context.Context, reqs []domain.BuildRequirement) ([]string, error) {
	var dirs []string
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dir, binary, err := r.locate(req)
		if err != nil {
			return nil, err
		}
		r.checkVersion(ctx, req, filepath.Join(dir, binary))
		if !slices.Contains(dirs, dir) {
			dirs = append(dirs, dir)
		}
	}

	if len(dirs) == 0 {
		return nil, nil
	}
	return []string{"PATH=" + strings.Join(dirs, string(os.PathListSeparator))}, nil
}

func (r *Resolver) locate(req domain.BuildRequirement) (dir, binary string, err error) {
	tool := toolName(req)
	binary = req.Binary
	if binary == "" {
		binary = tool
	}

	if dir, ok := r.overrides[tool]; ok {
		candidate := filepath.Join(dir, binary)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
			return dir, binary, nil
		}
		return "", "", zerr.With(zerr.With(zerr.Wrap(domain.ErrRequirementUnresolved, "override does not contain the binary"),
			"requirement", req.Ref), "dir", dir)
	}

	p, err := r.lookup(binary)
	if err != nil {
		return "", "", zerr.With(zerr.With(zerr.Wrap(domain.ErrRequirementUnresolved, "binary not found on PATH"),
			"requirement", req.Ref), "binary", binary)
	}
	return filepath.Dir(p), filepath.Base(p), nil
}

// checkVersion warns once per binary and requested version when the binary
// at p does not satisfy the version in the requirement reference. Unknown
// versions are not reported.
func (r *Resolver) checkVersion(ctx context.Context, req domain.BuildRequirement, p string) {
	_, want, ok := strings.Cut(req.Ref, "/")
	if !ok || canonical(want) == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := p + "@" + want
	if _, done := r.checked[key]; done {
		return
	}
	r.checked[key] = struct{}{}

	found, ok := r.versions[p]
	if !ok {
		if out, err := r.readVersion(ctx, p); err == nil {
			found = versionPattern.FindString(out)
		}
		r.versions[p] = found
	}
	if found == "" {
		return
	}

	have, need := canonical(found), canonical(want)
	if semver.Compare(have, need) < 0 || semver.Major(have) != semver.Major(need) {
		r.logger.Warn(fmt.Sprintf("%s resolved to %s version %s", req.Ref, p, found))
	}
}

var versionPattern = regexp.MustCompile(`[0-9]+(\.[0-9]+)+[0-9A-Za-z]*`)

// canonical maps a release string such as 2.12.02 or 1.1.1k onto a
// comparable semantic version (v2.12.2, v1.1.1). It returns "" when the
// string has no numeric prefix.
func canonical(v string) string {
	v = strings.TrimPrefix(v, "v")
	parts := strings.Split(v, ".")
	var nums []string
	for _, part := range parts {
		end := 0
		for end < len(part) && part[end] >= '0' && part[end] <= '9' {
			end++
		}
		if end == 0 {
			break
		}
		n := strings.TrimLeft(part[:end], "0")
		if n == "" {
			n = "0"
		}
		nums = append(nums, n)
		if end < len(part) || len(nums) == 3 {
			break
		}
	}
	if len(nums) == 0 {
		return ""
	}
	c := "v" + strings.Join(nums, ".")
	if !semver.IsValid(c) {
		return ""
	}
	return c
}

// runVersion asks the binary for its version, trying --version then -v.
func runVersion(ctx context.Context, p string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	var lastErr error
	for _, flag := range []string{"--version", "-v"} {
		out, err := exec.CommandContext(ctx, p, flag).CombinedOutput() //nolint:gosec // p is a resolved requirement binary
		if versionPattern.Match(out) {
			return string(out), nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = zerr.New("no version in output")
	}
	return "", zerr.With(zerr.Wrap(lastErr, "failed to query tool version"), "binary", p)
}

// toolName returns the name part of a name/version reference.
func toolName(req domain.BuildRequirement) string {
	name, _, _ := strings.Cut(req.Ref, "/")
	return path.Base(name)
}

func overridesFromEnv(env []string) map[string]string {
	out := make(map[string]string)
	for _, entry := range env {
		k, v, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(k, OverrideEnvPrefix) || v == "" {
			continue
		}
		out[strings.ToLower(strings.TrimPrefix(k, OverrideEnvPrefix))] = v
	}
	return out
}
