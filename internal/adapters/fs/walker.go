// Package fs provides file system adapters for walking, hashing and verifying files.
package fs

import (
	"io/fs"
	"iter"
	"path"
	"path/filepath"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
)

var _ ports.FileWalker = (*Walker)(nil)

// Walker enumerates source, install and package trees.
type Walker struct{}

// NewWalker creates a new Walker.
func NewWalker() *Walker {
	return &Walker{}
}

// WalkFiles yields every non-directory entry below root in lexical order.
// Symlinks are yielded, not followed. Yielded paths include root.
//
// VCS metadata and the workspace bookkeeping directory are always skipped.
// An ignore pattern ending in "/" drops the directory at that root-relative
// path; any other pattern is a glob tried against the root-relative path and
// then the base name, so both "*.la" and "share/man/*" select what they say.
func (w *Walker) WalkFiles(root string, ignores []string) iter.Seq[string] {
	return func(yield func(string) bool) {
		_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if p == root {
				return nil
			}

			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			if ignored(filepath.ToSlash(rel), d, ignores) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if d.IsDir() {
				return nil
			}
			if !yield(p) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

func ignored(rel string, d fs.DirEntry, ignores []string) bool {
	name := d.Name()
	if d.IsDir() {
		switch name {
		case ".git", ".hg", ".svn", domain.KilnDirName:
			return true
		}
	}

	for _, pattern := range ignores {
		if dir, ok := strings.CutSuffix(pattern, "/"); ok {
			if rel == dir || strings.HasPrefix(rel, pattern) {
				return true
			}
			continue
		}
		if ok, _ := path.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
