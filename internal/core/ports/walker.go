package ports

import "iter"

// FileWalker enumerates files below a directory.
//
//go:generate go run go.uber.org/mock/mockgen -source=walker.go -destination=mocks/mock_walker.go -package=mocks
type FileWalker interface {
	// WalkFiles yields the path of every non-directory entry below root.
	WalkFiles(root string, ignores []string) iter.Seq[string]
}
