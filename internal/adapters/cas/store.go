// Package cas implements the content addressed package store.
package cas

import (
	"archive/tar"
	"context"
	_ "crypto/sha256" // registers the canonical digest algorithm
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/opencontainers/go-digest"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

const (
	// ArchiveName is the file name of a package's compressed archive.
	ArchiveName = "artifact.tar.zst"

	// RecordName is the file name of a package's publish record.
	RecordName = "record.json"
)

var _ ports.PackageStore = (*Store)(nil)

// Store implements ports.PackageStore on a directory tree laid out as
// <root>/<name>/<version>/<config hash>/.
type Store struct {
	root  string
	now   func() time.Time
	mu    sync.RWMutex
	cache map[domain.PackageID]domain.PublishRecord
}

// NewStore creates a Store rooted at the given directory.
func NewStore(root string) *Store {
	return &Store{
		root:  filepath.Clean(root),
		now:   time.Now,
		cache: make(map[domain.PackageID]domain.PublishRecord),
	}
}

// Dir returns the directory holding the package with the given identity.
func (s *Store) Dir(id domain.PackageID) string {
	return filepath.Join(s.root, id.Name, id.Version, fmt.Sprintf("%016x", xxhash.Sum64String(id.ConfigKey)))
}

// Publish archives the artifact's files and writes its record.
// Both files are replaced atomically, so a concurrent Lookup sees either
// the previous package or the new one.
func (s *Store) Publish(ctx context.Context, artifact domain.PackageArtifact) (*domain.PublishRecord, error) {
	id := artifact.ID()
	fail := func(err error) error {
		return &domain.StoreError{Op: "publish", Key: id.String(), Err: err}
	}

	if id.Name == "" || id.Version == "" || id.ConfigKey == "" {
		return nil, fail(zerr.New("incomplete package identity"))
	}

	dir := s.Dir(id)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return nil, fail(zerr.Wrap(err, "failed to create package directory"))
	}

	archive := filepath.Join(dir, ArchiveName)
	dgst, err := writeArchive(ctx, artifact, archive)
	if err != nil {
		return nil, fail(err)
	}

	record := domain.PublishRecord{
		ID:         id,
		Digest:     dgst,
		Archive:    archive,
		Files:      slices.Clone(artifact.Files),
		Info:       artifact.Info,
		SourceHash: artifact.SourceHash,
		Timestamp:  s.now().UTC(),
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return nil, fail(zerr.Wrap(err, "failed to marshal publish record"))
	}
	if err := writeFileAtomic(filepath.Join(dir, RecordName), data); err != nil {
		return nil, fail(err)
	}

	s.mu.Lock()
	s.cache[id] = record
	s.mu.Unlock()

	return &record, nil
}

// Lookup retrieves the record of a published package.
// Returns nil, nil if not found.
func (s *Store) Lookup(id domain.PackageID) (*domain.PublishRecord, error) {
	s.mu.RLock()
	record, ok := s.cache[id]
	s.mu.RUnlock()
	if ok {
		return &record, nil
	}

	dir := s.Dir(id)
	//nolint:gosec // Path is derived from the store root
	data, err := os.ReadFile(filepath.Join(dir, RecordName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &domain.StoreError{Op: "lookup", Key: id.String(), Err: zerr.Wrap(err, "failed to read publish record")}
	}

	if err := json.Unmarshal(data, &record); err != nil {
		return nil, &domain.StoreError{Op: "lookup", Key: id.String(), Err: zerr.Wrap(err, "failed to unmarshal publish record")}
	}
	if record.ID != id {
		return nil, &domain.StoreError{
			Op:  "lookup",
			Key: id.String(),
			Err: zerr.With(zerr.Wrap(domain.ErrStoreCorrupt, "record belongs to another package"), "record", record.ID.String()),
		}
	}
	if _, err := os.Stat(record.Archive); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &domain.StoreError{Op: "lookup", Key: id.String(), Err: zerr.Wrap(err, "failed to stat archive")}
	}

	s.mu.Lock()
	s.cache[id] = record
	s.mu.Unlock()

	return &record, nil
}

// Restore unpacks a published package into dest after checking the archive
// against its recorded digest.
func (s *Store) Restore(ctx context.Context, id domain.PackageID, dest string) error {
	fail := func(err error) error {
		return &domain.StoreError{Op: "restore", Key: id.String(), Err: err}
	}

	record, err := s.Lookup(id)
	if err != nil {
		return err
	}
	if record == nil {
		return fail(domain.ErrPackageNotFound)
	}

	if err := verifyArchive(record.Archive, record.Digest); err != nil {
		return fail(err)
	}

	f, err := os.Open(record.Archive)
	if err != nil {
		return fail(zerr.Wrap(err, "failed to open archive"))
	}
	defer func() {
		_ = f.Close()
	}()

	dec, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return fail(zerr.Wrap(err, "failed to open zstd stream"))
	}
	defer dec.Close()

	if err := unpack(ctx, tar.NewReader(dec), dest); err != nil {
		return fail(err)
	}
	return nil
}

// verifyArchive checks the whole archive against want before anything is unpacked.
func verifyArchive(archive string, want digest.Digest) error {
	f, err := os.Open(archive) //nolint:gosec // archive path comes from a store record
	if err != nil {
		return zerr.Wrap(err, "failed to open archive")
	}
	defer func() {
		_ = f.Close()
	}()

	verifier := want.Verifier()
	if _, err := io.Copy(verifier, f); err != nil {
		return zerr.Wrap(err, "failed to read archive")
	}
	if !verifier.Verified() {
		return zerr.With(zerr.Wrap(domain.ErrStoreCorrupt, "archive digest mismatch"), "digest", want.String())
	}
	return nil
}

func writeArchive(ctx context.Context, artifact domain.PackageArtifact, dst string) (digest.Digest, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".artifact-*")
	if err != nil {
		return "", zerr.Wrap(err, "failed to create temporary archive")
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	digester := digest.Canonical.Digester()
	enc, err := zstd.NewWriter(io.MultiWriter(tmp, digester.Hash()))
	if err != nil {
		return "", zerr.Wrap(err, "failed to create zstd stream")
	}

	tw := tar.NewWriter(enc)
	for _, file := range artifact.Files {
		if err := ctx.Err(); err != nil {
			_ = enc.Close()
			return "", err
		}
		if err := addFile(tw, artifact.Root, file); err != nil {
			_ = enc.Close()
			return "", zerr.With(err, "path", file.Path)
		}
	}

	if err := tw.Close(); err != nil {
		_ = enc.Close()
		return "", zerr.Wrap(err, "failed to finish tar stream")
	}
	if err := enc.Close(); err != nil {
		return "", zerr.Wrap(err, "failed to finish zstd stream")
	}
	if err := tmp.Close(); err != nil {
		return "", zerr.Wrap(err, "failed to close temporary archive")
	}
	if err := os.Chmod(tmpName, domain.FilePerm); err != nil {
		return "", zerr.Wrap(err, "failed to set archive permissions")
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return "", zerr.Wrap(err, "failed to move archive into place")
	}
	committed = true

	return digester.Digest(), nil
}

func addFile(tw *tar.Writer, root string, file domain.ArtifactFile) error {
	hdr := &tar.Header{
		Name:    file.Path,
		Mode:    int64(fs.FileMode(file.Mode).Perm()),
		ModTime: time.Unix(0, 0),
		Format:  tar.FormatPAX,
	}

	if file.Link != "" {
		hdr.Typeflag = tar.TypeSymlink
		hdr.Linkname = file.Link
		return tw.WriteHeader(hdr)
	}

	//nolint:gosec // Path is relative to the artifact root
	f, err := os.Open(filepath.Join(root, filepath.FromSlash(file.Path)))
	if err != nil {
		return zerr.Wrap(err, "failed to open package file")
	}
	defer func() {
		_ = f.Close()
	}()

	hdr.Typeflag = tar.TypeReg
	hdr.Size = file.Size
	if err := tw.WriteHeader(hdr); err != nil {
		return zerr.Wrap(err, "failed to write tar header")
	}

	var w io.Writer = tw
	var verifier digest.Verifier
	if file.Digest != "" {
		verifier = file.Digest.Verifier()
		w = io.MultiWriter(tw, verifier)
	}
	if _, err := io.Copy(w, f); err != nil {
		return zerr.Wrap(err, "failed to archive package file")
	}
	if verifier != nil && !verifier.Verified() {
		return zerr.Wrap(domain.ErrStoreCorrupt, "package file changed after packaging")
	}
	return nil
}

func unpack(ctx context.Context, tr *tar.Reader, dest string) error {
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

		clean := path.Clean(hdr.Name)
		if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
			return zerr.With(zerr.Wrap(domain.ErrUnsafeArchivePath, "unsafe tar entry"), "entry", hdr.Name)
		}
		target := filepath.Join(dest, filepath.FromSlash(clean))
		if err := os.MkdirAll(filepath.Dir(target), domain.DirPerm); err != nil {
			return zerr.Wrap(err, "failed to create directory")
		}

		// Restoring over an earlier restore replaces files and links in place.
		if info, err := os.Lstat(target); err == nil && !info.IsDir() {
			if err := os.Remove(target); err != nil {
				return zerr.With(zerr.Wrap(err, "failed to replace existing entry"), "entry", hdr.Name)
			}
		}

		switch hdr.Typeflag {
		case tar.TypeSymlink:
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return zerr.Wrap(err, "failed to create symlink")
			}
		case tar.TypeReg:
			//nolint:gosec // Mode comes from an archive this store wrote
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fs.FileMode(hdr.Mode).Perm()|0o600)
			if err != nil {
				return zerr.Wrap(err, "failed to create file")
			}
			//nolint:gosec // Size is bounded by the tar header
			_, copyErr := io.Copy(out, tr)
			closeErr := out.Close()
			if err := errors.Join(copyErr, closeErr); err != nil {
				return zerr.Wrap(err, "failed to write file")
			}
		}
	}
}

func writeFileAtomic(dst string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".record-*")
	if err != nil {
		return zerr.Wrap(err, "failed to create temporary record")
	}
	tmpName := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		_ = os.Remove(tmpName)
		return zerr.Wrap(err, "failed to write record")
	}
	if err := os.Chmod(tmpName, domain.FilePerm); err != nil {
		_ = os.Remove(tmpName)
		return zerr.Wrap(err, "failed to set record permissions")
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return zerr.Wrap(err, "failed to move record into place")
	}
	return nil
}
