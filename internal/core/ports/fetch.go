package ports

import "context"

// Downloader obtains source archives.
//
//go:generate go run go.uber.org/mock/mockgen -source=fetch.go -destination=mocks/mock_fetch.go -package=mocks
type Downloader interface {
	// Fetch returns the local path of the archive at url, verifying checksum when it is not empty.
	// Concurrent calls for the same url download at most once.
	//
	// Failures are reported as *domain.FetchError.
	Fetch(ctx context.Context, url, checksum string) (string, error)
}

// Extractor unpacks source archives.
type Extractor interface {
	// Extract unpacks archive into dest. Entries escaping dest are rejected.
	Extract(ctx context.Context, archive, dest string) error
}
