package lifecycle

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
)

// ledger records the names of patches applied to a source tree.
type ledger struct {
	path    string
	applied map[string]struct{}
}

func loadLedger(path string) (*ledger, error) {
	l := &ledger{path: path, applied: make(map[string]struct{})}

	f, err := os.Open(path) //nolint:gosec // ledger lives in the run's workspace
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return l, nil
		}
		return nil, zerr.Wrap(err, "failed to read patch ledger")
	}
	defer f.Close() //nolint:errcheck // read-only

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if name := strings.TrimSpace(scanner.Text()); name != "" {
			l.applied[name] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, zerr.Wrap(err, "failed to read patch ledger")
	}
	return l, nil
}

func (l *ledger) has(name string) bool {
	_, ok := l.applied[name]
	return ok
}

func (l *ledger) record(name string) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, domain.FilePerm) //nolint:gosec // see loadLedger
	if err != nil {
		return zerr.Wrap(err, "failed to open patch ledger")
	}
	if _, err := f.WriteString(name + "\n"); err != nil {
		_ = f.Close()
		return zerr.Wrap(err, "failed to write patch ledger")
	}
	if err := f.Close(); err != nil {
		return zerr.Wrap(err, "failed to close patch ledger")
	}
	l.applied[name] = struct{}{}
	return nil
}

// applyPatch replaces every occurrence of p.Old in the target file.
// A patch is refused with AlreadyPatchedError when the ledger already lists
// it or when the file shows the replacement but not the original text.
func applyPatch(root string, p domain.Patch, l *ledger) error {
	if l.has(p.Name) {
		return &domain.AlreadyPatchedError{Patch: p.Name, File: p.File}
	}

	path := filepath.Join(root, filepath.FromSlash(p.File))
	info, err := os.Stat(path)
	if err != nil {
		return zerr.With(zerr.With(zerr.Wrap(domain.ErrPatchNotApplicable, "patch target missing"), "patch", p.Name), "file", p.File)
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is below the workspace source root
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to read patch target"), "file", p.File)
	}

	content := string(data)
	if !strings.Contains(content, p.Old) {
		if p.New != "" && strings.Contains(content, p.New) {
			return &domain.AlreadyPatchedError{Patch: p.Name, File: p.File}
		}
		return zerr.With(zerr.With(zerr.Wrap(domain.ErrPatchNotApplicable, "original text not found"), "patch", p.Name), "file", p.File)
	}

	updated := strings.ReplaceAll(content, p.Old, p.New)
	if err := atomicWriteFile(path, []byte(updated), info.Mode().Perm()); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to write patched file"), "file", p.File)
	}
	return l.record(p.Name)
}

// atomicWriteFile writes data to a file atomically by writing to a temp file and renaming it.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".patch-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()

	// Clean up temp file on error
	defer func() {
		if _, statErr := os.Stat(tmpName); statErr == nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
