// Package packager collects install outputs into the canonical package layout.
package packager

import (
	"context"
	_ "crypto/sha256" // registers the canonical digest algorithm
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/opencontainers/go-digest"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

// Packager copies files from an install prefix into a package directory.
type Packager struct {
	walker ports.FileWalker
}

// New creates a new Packager.
func New(walker ports.FileWalker) *Packager {
	return &Packager{walker: walker}
}

// Collect copies the files of installDir selected by layout into dest and
// returns them sorted by package path. Excluded paths are never copied.
// When the layout has no copy rules, the install tree is packaged as is.
func (p *Packager) Collect(ctx context.Context, installDir, dest string, layout domain.PackageLayout) ([]domain.ArtifactFile, error) {
	rules := layout.Copy
	if len(rules) == 0 {
		rules = []domain.CopyRule{{Pattern: "*", KeepPath: true}}
	}

	seen := make(map[string]struct{})
	var files []domain.ArtifactFile

	for src := range p.walker.WalkFiles(installDir, layout.Exclude) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rel, err := filepath.Rel(installDir, src)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to relativize install path"), "path", src)
		}
		rel = filepath.ToSlash(rel)

		target, ok := route(rel, rules)
		if !ok {
			continue
		}
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}

		file, err := copyFile(src, filepath.Join(dest, filepath.FromSlash(target)))
		if err != nil {
			return nil, err
		}
		file.Path = target
		files = append(files, file)
	}

	slices.SortFunc(files, func(a, b domain.ArtifactFile) int {
		return strings.Compare(a.Path, b.Path)
	})
	return files, nil
}

// route returns the package path of rel under the first matching rule.
func route(rel string, rules []domain.CopyRule) (string, bool) {
	base := path.Base(rel)
	for _, rule := range rules {
		sub := rel
		if rule.Src != "" {
			prefix := strings.TrimSuffix(rule.Src, "/") + "/"
			if !strings.HasPrefix(rel, prefix) {
				continue
			}
			sub = strings.TrimPrefix(rel, prefix)
		}
		if ok, _ := path.Match(rule.Pattern, base); !ok {
			continue
		}
		if rule.KeepPath {
			return path.Join(rule.Dst, sub), true
		}
		return path.Join(rule.Dst, base), true
	}
	return "", false
}

func copyFile(src, dst string) (domain.ArtifactFile, error) {
	info, err := os.Lstat(src)
	if err != nil {
		return domain.ArtifactFile{}, zerr.With(zerr.Wrap(err, "failed to stat install output"), "path", src)
	}
	if err := os.MkdirAll(filepath.Dir(dst), domain.DirPerm); err != nil {
		return domain.ArtifactFile{}, zerr.With(zerr.Wrap(err, "failed to create package directory"), "path", dst)
	}

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(src)
		if err != nil {
			return domain.ArtifactFile{}, zerr.With(zerr.Wrap(err, "failed to read symlink"), "path", src)
		}
		if err := os.Symlink(target, dst); err != nil {
			return domain.ArtifactFile{}, zerr.With(zerr.Wrap(err, "failed to create symlink"), "path", dst)
		}
		return domain.ArtifactFile{
			Digest: digest.FromString(target),
			Mode:   uint32(info.Mode()),
			Link:   target,
		}, nil
	}

	in, err := os.Open(src) //nolint:gosec // path comes from walking the install prefix
	if err != nil {
		return domain.ArtifactFile{}, zerr.With(zerr.Wrap(err, "failed to open install output"), "path", src)
	}
	defer in.Close() //nolint:errcheck // read-only

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm()) //nolint:gosec // dst is below the package root
	if err != nil {
		return domain.ArtifactFile{}, zerr.With(zerr.Wrap(err, "failed to create package file"), "path", dst)
	}

	digester := digest.Canonical.Digester()
	n, err := io.Copy(io.MultiWriter(out, digester.Hash()), in)
	if err != nil {
		_ = out.Close()
		return domain.ArtifactFile{}, zerr.With(zerr.Wrap(err, "failed to copy install output"), "path", src)
	}
	if err := out.Close(); err != nil {
		return domain.ArtifactFile{}, zerr.With(zerr.Wrap(err, "failed to close package file"), "path", dst)
	}

	return domain.ArtifactFile{
		Digest: digester.Digest(),
		Size:   n,
		Mode:   uint32(info.Mode().Perm()),
	}, nil
}
