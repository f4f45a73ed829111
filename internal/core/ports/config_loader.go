package ports

import "go.trai.ch/kiln/internal/core/domain"

// ConfigLoader defines the interface for loading recipe and matrix descriptors.
//
//go:generate go run go.uber.org/mock/mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// LoadRecipe reads and validates the recipe descriptor at path.
	LoadRecipe(path string) (*domain.Recipe, error)

	// LoadMatrix reads a matrix spec. Its exclusion predicates are compiled
	// against the axes the spec declares.
	LoadMatrix(path string) (*domain.MatrixSpec, error)
}
