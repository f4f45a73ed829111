package fs

import (
	"go.trai.ch/kiln/internal/core/ports"
)

var _ ports.Verifier = (*Verifier)(nil)

// Verifier checks that an install step produced the files a recipe expects.
type Verifier struct {
	resolver *Resolver
}

// NewVerifier creates a new Verifier.
func NewVerifier(resolver *Resolver) *Verifier {
	return &Verifier{resolver: resolver}
}

// VerifyOutputs returns the outputs that have no match below root.
// Outputs may be globs; a glob is satisfied by any match.
func (v *Verifier) VerifyOutputs(root string, outputs []string) ([]string, error) {
	_, missing, err := v.resolver.Resolve(root, outputs)
	if err != nil {
		return nil, err
	}
	return missing, nil
}
