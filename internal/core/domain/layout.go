package domain

import "path/filepath"

const (
	// KilnDirName is the name of the internal working directory.
	KilnDirName = ".kiln"

	// StoreDirName is the name of the package store directory.
	StoreDirName = "store"

	// WorkDirName is the name of the directory holding per-run workspaces.
	WorkDirName = "work"

	// DownloadsDirName is the name of the download cache directory.
	DownloadsDirName = "downloads"

	// AppName names the application's directories below XDG roots.
	AppName = "kiln"

	// DirPerm is the default permission for directories (rwxr-x---).
	DirPerm = 0o750

	// FilePerm is the default permission for files (rw-r--r--).
	FilePerm = 0o644
)

// DefaultStorePath returns the default path for the package store.
// It joins .kiln and store.
func DefaultStorePath() string {
	return filepath.Join(KilnDirName, StoreDirName)
}

// DefaultWorkPath returns the default root of run workspaces.
// It joins .kiln and work.
func DefaultWorkPath() string {
	return filepath.Join(KilnDirName, WorkDirName)
}
