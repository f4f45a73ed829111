package ports

import (
	"context"

	"go.trai.ch/kiln/internal/core/domain"
)

// RequirementResolver turns build requirements into environment entries.
//
// Implementations are responsible for:
//   - Locating the binary each requirement names
//   - Constructing environment variables (PATH and tool-specific variables) that expose it
//
//go:generate go run go.uber.org/mock/mockgen -source=environment.go -destination=mocks/mock_environment.go -package=mocks
type RequirementResolver interface {
	// Resolve returns "KEY=VALUE" entries that make every requirement available.
	// PATH entries are meant to be prepended to the inherited PATH.
	//
	// Returns an error wrapping domain.ErrRequirementUnresolved if a tool cannot be found.
	Resolve(ctx context.Context, reqs []domain.BuildRequirement) ([]string, error)
}
