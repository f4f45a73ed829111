package fs

import (
	"path/filepath"
	"slices"

	"go.trai.ch/zerr"
)

// Resolver expands output patterns against a directory using filepath.Glob.
type Resolver struct{}

// NewResolver creates a new Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve returns the sorted, de-duplicated matches of every pattern below
// root, together with the patterns that matched nothing.
func (r *Resolver) Resolve(root string, patterns []string) (matches, unmatched []string, err error) {
	unique := make(map[string]struct{})

	for _, pattern := range patterns {
		path := filepath.Join(root, filepath.FromSlash(pattern))

		found, err := filepath.Glob(path)
		if err != nil {
			return nil, nil, zerr.With(zerr.Wrap(err, "failed to glob path"), "path", path)
		}

		if len(found) == 0 {
			unmatched = append(unmatched, pattern)
			continue
		}

		for _, match := range found {
			unique[match] = struct{}{}
		}
	}

	matches = make([]string, 0, len(unique))
	for path := range unique {
		matches = append(matches, path)
	}
	slices.Sort(matches)

	return matches, unmatched, nil
}
