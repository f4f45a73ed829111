package ports

// Hasher defines the interface for computing content hashes.
//
//go:generate go run go.uber.org/mock/mockgen -source=hasher.go -destination=mocks/mock_hasher.go -package=mocks
type Hasher interface {
	// ComputeFileHash computes the hash of a single file's content.
	ComputeFileHash(path string) (uint64, error)

	// ComputeTreeHash computes a single hash over every file below root,
	// including the files' root-relative paths.
	ComputeTreeHash(root string) (string, error)
}
