package domain

import "path/filepath"

// Workspace is the directory tree owned by a single lifecycle run.
type Workspace struct {
	Root string
	// Raw receives the extracted archive.
	Raw string
	// Source is the prepared, patched source tree.
	Source string
	// Build is the out-of-tree build directory.
	Build string
	// Install is the prefix the build strategy installs into.
	Install string
	// Package holds the canonical include/lib/bin layout.
	Package string
	// Test is where the package test consumer is built.
	Test string
	// Meta holds bookkeeping such as the patch ledger.
	Meta string
}

// NewWorkspace lays out a workspace below root. It does not touch the filesystem.
func NewWorkspace(root string) Workspace {
	return Workspace{
		Root:    root,
		Raw:     filepath.Join(root, "raw"),
		Source:  filepath.Join(root, "src"),
		Build:   filepath.Join(root, "build"),
		Install: filepath.Join(root, "install"),
		Package: filepath.Join(root, "package"),
		Test:    filepath.Join(root, "test"),
		Meta:    filepath.Join(root, KilnDirName),
	}
}

// Dirs returns every directory a run needs created up front.
// Source and Test are excluded because they are produced by copying a tree.
func (w Workspace) Dirs() []string {
	return []string{w.Raw, w.Build, w.Install, w.Package, w.Meta}
}

// PatchLedger is the file recording patches applied to the source tree.
func (w Workspace) PatchLedger() string {
	return filepath.Join(w.Meta, "patches")
}
