package domain

// Predicate is a boolean condition over the axis values of a configuration or matrix cell.
type Predicate interface {
	// Eval reports whether the predicate holds for the given axis values.
	Eval(values map[string]string) (bool, error)
	// String returns the source form of the predicate.
	String() string
}

// PredicateFunc adapts a plain function to the Predicate interface.
type PredicateFunc func(values map[string]string) (bool, error)

// Eval calls f.
func (f PredicateFunc) Eval(values map[string]string) (bool, error) {
	return f(values)
}

func (f PredicateFunc) String() string {
	return "<func>"
}

// Matches evaluates p, treating a nil predicate as always true.
func Matches(p Predicate, values map[string]string) (bool, error) {
	if p == nil {
		return true, nil
	}
	return p.Eval(values)
}
