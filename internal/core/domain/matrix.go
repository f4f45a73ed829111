package domain

// BuildPolicy decides whether configurations already in the store are rebuilt.
type BuildPolicy string

const (
	// BuildMissing builds only configurations that are not yet published.
	BuildMissing BuildPolicy = "missing"
	// BuildAlways rebuilds every configuration.
	BuildAlways BuildPolicy = "always"
)

// ParseBuildPolicy validates a policy string. The empty string selects BuildMissing.
func ParseBuildPolicy(s string) (BuildPolicy, error) {
	switch BuildPolicy(s) {
	case "", BuildMissing:
		return BuildMissing, nil
	case BuildAlways:
		return BuildAlways, nil
	default:
		return "", ErrInvalidBuildPolicy
	}
}

// Axis is one dimension of a build matrix.
type Axis struct {
	Name   string
	Values []string
}

// MatrixSpec is a loaded build matrix description.
type MatrixSpec struct {
	// RecipePath is resolved relative to the matrix file.
	RecipePath string
	Axes       []Axis
	Exclude    []Predicate
	Parallel   int
	Policy     BuildPolicy
}
