package ports

import (
	"context"

	"go.trai.ch/kiln/internal/core/domain"
)

// PackageStore persists package artifacts.
//
//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
type PackageStore interface {
	// Publish stores the artifact's files and record.
	// Failures are reported as *domain.StoreError.
	Publish(ctx context.Context, artifact domain.PackageArtifact) (*domain.PublishRecord, error)

	// Lookup retrieves the record of a published package.
	// Returns nil, nil if not found.
	Lookup(id domain.PackageID) (*domain.PublishRecord, error)

	// Restore unpacks a published package into dest.
	// Returns an error wrapping domain.ErrPackageNotFound if it was never published.
	Restore(ctx context.Context, id domain.PackageID, dest string) error
}
