package strategy

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
)

// FetchSource downloads the archive, unpacks it into the raw tree and copies
// its top-level directory to the workspace's source root. The raw tree is
// left untouched.
func (b *base) FetchSource(ctx context.Context, ws domain.Workspace, src domain.SourceSpec) error {
	archive, err := b.tc.Downloader.Fetch(ctx, src.URL, src.Checksum)
	if err != nil {
		return err
	}

	if err := b.tc.Extractor.Extract(ctx, archive, ws.Raw); err != nil {
		return err
	}

	root, err := sourceRoot(ws.Raw, src.Strip)
	if err != nil {
		return &domain.FetchError{Kind: domain.FetchUnsupported, URL: src.URL, Err: err}
	}

	if err := CopyTree(root, ws.Source); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to prepare source tree"), "path", root)
	}
	return nil
}

// CopyTree copies src to dst keeping file modes and symlinks as they are.
func CopyTree(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(p)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case info.Mode().IsRegular():
			return copyFile(p, target, info.Mode().Perm())
		default:
			return nil
		}
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src) //nolint:gosec // path comes from walking the raw tree
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck // read-only

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0o600) //nolint:gosec // dst is below the source root
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// sourceRoot picks the extracted directory that holds the sources.
// Without an explicit strip directory, a single top-level directory is used,
// otherwise the extraction root itself.
func sourceRoot(raw, strip string) (string, error) {
	if strip != "" {
		root := filepath.Join(raw, strip)
		info, err := os.Stat(root)
		if err != nil {
			return "", zerr.With(zerr.Wrap(err, "strip directory not found"), "strip", strip)
		}
		if !info.IsDir() {
			return "", zerr.With(zerr.New("strip path is not a directory"), "strip", strip)
		}
		return root, nil
	}

	entries, err := os.ReadDir(raw)
	if err != nil {
		return "", zerr.Wrap(err, "failed to read extracted sources")
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(raw, entries[0].Name()), nil
	}
	return raw, nil
}
