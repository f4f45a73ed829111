package fetch

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Extractor = (*Extractor)(nil)

// Extractor unpacks source archives. The format is chosen by file suffix.
type Extractor struct{}

// NewExtractor creates a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract unpacks archive below dest. Entries that would land outside dest
// are rejected with domain.ErrUnsafeArchivePath.
func (x *Extractor) Extract(ctx context.Context, archive, dest string) error {
	if err := x.extract(ctx, archive, dest); err != nil {
		var fetchErr *domain.FetchError
		if errors.As(err, &fetchErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return &domain.FetchError{Kind: domain.FetchUnsupported, URL: archive, Err: err}
	}
	return nil
}

func (x *Extractor) extract(ctx context.Context, archive, dest string) error {
	name := strings.ToLower(filepath.Base(archive))

	switch {
	case strings.HasSuffix(name, ".zip"):
		return unzip(ctx, archive, dest)
	case strings.HasSuffix(name, ".tar"):
		return withFile(archive, func(r io.Reader) error { return untar(ctx, r, dest) })
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return withFile(archive, func(r io.Reader) error {
			zr, err := gzip.NewReader(r)
			if err != nil {
				return zerr.Wrap(err, "failed to open gzip stream")
			}
			defer zr.Close() //nolint:errcheck // read-only
			return untar(ctx, zr, dest)
		})
	case strings.HasSuffix(name, ".tar.zst"), strings.HasSuffix(name, ".tzst"):
		return withFile(archive, func(r io.Reader) error {
			zr, err := zstd.NewReader(r)
			if err != nil {
				return zerr.Wrap(err, "failed to open zstd stream")
			}
			defer zr.Close()
			return untar(ctx, zr, dest)
		})
	case strings.HasSuffix(name, ".tar.bz2"), strings.HasSuffix(name, ".tbz2"):
		return withFile(archive, func(r io.Reader) error { return untar(ctx, bzip2.NewReader(r), dest) })
	default:
		return zerr.With(zerr.Wrap(domain.ErrUnsupportedArchive, "unknown archive format"), "archive", filepath.Base(archive))
	}
}

func withFile(path string, fn func(io.Reader) error) error {
	f, err := os.Open(path) //nolint:gosec // archive path comes from the download cache
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to open archive"), "path", path)
	}
	defer f.Close() //nolint:errcheck // read-only
	return fn(f)
}

func untar(ctx context.Context, r io.Reader, dest string) error {
	root, err := openRoot(dest)
	if err != nil {
		return err
	}

	tr := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return zerr.Wrap(err, "failed to read tar entry")
		}

		target, err := root.entry(hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, domain.DirPerm); err != nil {
				return zerr.With(zerr.Wrap(err, "failed to create directory"), "path", hdr.Name)
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, hdr.FileInfo().Mode()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := root.checkLink(target, hdr.Linkname); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), domain.DirPerm); err != nil {
				return zerr.Wrap(err, "failed to create directory")
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return zerr.With(zerr.Wrap(err, "failed to create symlink"), "path", hdr.Name)
			}
		case tar.TypeLink:
			src, err := root.entry(hdr.Linkname)
			if err != nil {
				return err
			}
			if err := os.Link(src, target); err != nil {
				return zerr.With(zerr.Wrap(err, "failed to create hard link"), "path", hdr.Name)
			}
		default:
			// Global pax headers, devices and fifos carry nothing a build needs.
		}
	}
}

func unzip(ctx context.Context, archive, dest string) error {
	root, err := openRoot(dest)
	if err != nil {
		return err
	}

	zr, err := zip.OpenReader(archive)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to open zip archive"), "path", archive)
	}
	defer zr.Close() //nolint:errcheck // read-only

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		target, err := root.entry(f.Name)
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, domain.DirPerm); err != nil {
				return zerr.With(zerr.Wrap(err, "failed to create directory"), "path", f.Name)
			}
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return zerr.With(zerr.Wrap(err, "failed to open zip entry"), "path", f.Name)
		}
		err = writeFile(target, rc, f.Mode())
		_ = rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), domain.DirPerm); err != nil {
		return zerr.Wrap(err, "failed to create directory")
	}

	// A later entry replaces a symlink instead of writing through it.
	if fi, err := os.Lstat(target); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		if err := os.Remove(target); err != nil {
			return zerr.With(zerr.Wrap(err, "failed to replace symlink"), "path", target)
		}
	}

	// Keep the owner able to rewrite files; patches edit sources in place.
	perm := mode.Perm() | 0o600
	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm) //nolint:gosec // target checked by extractRoot.entry
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create file"), "path", target)
	}
	if _, err := io.Copy(f, r); err != nil { //nolint:gosec // archives are trusted by checksum
		_ = f.Close()
		return zerr.With(zerr.Wrap(err, "failed to write file"), "path", target)
	}
	return f.Close()
}

// extractRoot confines archive entries to one directory, following the
// symlinks earlier entries created.
type extractRoot struct {
	realDir string
}

func openRoot(dest string) (*extractRoot, error) {
	if err := os.MkdirAll(dest, domain.DirPerm); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to create extraction root"), "path", dest)
	}
	realDir, err := filepath.EvalSymlinks(dest)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to resolve extraction root"), "path", dest)
	}
	return &extractRoot{realDir: realDir}, nil
}

// entry returns the on-disk path for an archive entry. The parent directory
// is resolved through existing symlinks and must stay inside the root.
func (x *extractRoot) entry(name string) (string, error) {
	clean, err := cleanEntry(name)
	if err != nil {
		return "", err
	}
	if clean == "." {
		return x.realDir, nil
	}

	parent, err := resolve(filepath.Join(x.realDir, filepath.Dir(clean)))
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to resolve entry directory"), "entry", name)
	}
	if !within(x.realDir, parent) {
		return "", zerr.With(zerr.Wrap(domain.ErrUnsafeArchivePath, "entry escapes extraction root through a symlink"), "entry", name)
	}
	return filepath.Join(parent, filepath.Base(clean)), nil
}

// checkLink refuses symlinks at target whose destination, with existing
// symlinks followed, lies outside the root. Parent references are only
// allowed as a leading prefix so that lexical and on-disk resolution agree.
func (x *extractRoot) checkLink(target, linkname string) error {
	if filepath.IsAbs(linkname) || strings.HasPrefix(linkname, "/") {
		return zerr.With(zerr.Wrap(domain.ErrUnsafeArchivePath, "absolute symlink target"), "link", linkname)
	}

	leading := true
	for _, part := range strings.Split(filepath.ToSlash(linkname), "/") {
		switch {
		case part == "..":
			if !leading {
				return zerr.With(zerr.Wrap(domain.ErrUnsafeArchivePath, "symlink target climbs after descending"), "link", linkname)
			}
		case part != "" && part != ".":
			leading = false
		}
	}

	resolved, err := resolve(filepath.Join(filepath.Dir(target), filepath.FromSlash(linkname)))
	if err != nil || !within(x.realDir, resolved) {
		return zerr.With(zerr.Wrap(domain.ErrUnsafeArchivePath, "symlink escapes extraction root"), "link", linkname)
	}
	return nil
}

// cleanEntry refuses absolute names and names that climb out of the root.
func cleanEntry(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || strings.HasPrefix(name, "/") || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", zerr.With(zerr.Wrap(domain.ErrUnsafeArchivePath, "entry escapes extraction root"), "entry", name)
	}
	return clean, nil
}

// resolve follows the symlinks of the longest existing prefix of p and
// appends the missing tail unchanged.
func resolve(p string) (string, error) {
	var tail []string
	cur := p
	for {
		abs, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(append([]string{abs}, tail...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p, nil
		}
		tail = append([]string{filepath.Base(cur)}, tail...)
		cur = parent
	}
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
