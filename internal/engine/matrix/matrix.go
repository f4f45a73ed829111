// Package matrix expands build matrix axes into cells.
package matrix

import (
	"iter"
	"maps"
	"math"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
)

// Cell is one point of an expanded matrix.
type Cell struct {
	// Index is the position of the cell in the unfiltered product.
	Index int
	Axes  domain.RawAxes
	// Err is set when an exclusion predicate could not be evaluated for the cell.
	Err error
}

// Matrix is a lazy, restartable Cartesian product of axes with exclusions.
type Matrix struct {
	axes       []domain.Axis
	exclusions []domain.Predicate
	size       int
}

// Expand validates the axes and returns the matrix. Nothing is materialized:
// cells are produced on iteration. A product too large to index is rejected.
func Expand(axes []domain.Axis, exclusions []domain.Predicate) (*Matrix, error) {
	seen := make(map[string]struct{}, len(axes))
	for _, axis := range axes {
		if axis.Name == "" {
			return nil, zerr.Wrap(domain.ErrInvalidMatrix, "axis name is empty")
		}
		if _, dup := seen[axis.Name]; dup {
			return nil, zerr.With(zerr.Wrap(domain.ErrInvalidMatrix, "duplicate axis"), "axis", axis.Name)
		}
		seen[axis.Name] = struct{}{}
	}

	size := 0
	if len(axes) > 0 {
		size = 1
		for _, axis := range axes {
			n := len(axis.Values)
			if n > 0 && size > math.MaxInt/n {
				return nil, zerr.With(zerr.Wrap(domain.ErrInvalidMatrix, "matrix has too many cells"), "axis", axis.Name)
			}
			size *= n
		}
	}
	return &Matrix{axes: axes, exclusions: exclusions, size: size}, nil
}

// Size returns the number of cells before exclusions.
func (m *Matrix) Size() int {
	return m.size
}

// Count returns the number of cells that survive the exclusions.
// Cells whose exclusion check failed are counted.
func (m *Matrix) Count() int {
	n := 0
	for range m.Cells() {
		n++
	}
	return n
}

// Cells yields the surviving cells in declaration order, the last axis varying fastest.
// An axis without values yields no cells.
func (m *Matrix) Cells() iter.Seq[Cell] {
	return func(yield func(Cell) bool) {
		size := m.Size()
		if size == 0 {
			return
		}

		idx := make([]int, len(m.axes))
		for n := range size {
			axes := make(domain.RawAxes, len(m.axes))
			for i, axis := range m.axes {
				axes[axis.Name] = axis.Values[idx[i]]
			}

			excluded, err := m.excluded(axes)
			if err != nil || !excluded {
				if !yield(Cell{Index: n, Axes: axes, Err: err}) {
					return
				}
			}

			// Advance the odometer.
			for i := len(idx) - 1; i >= 0; i-- {
				idx[i]++
				if idx[i] < len(m.axes[i].Values) {
					break
				}
				idx[i] = 0
			}
		}
	}
}

// Axes yields the raw axis values of the surviving cells.
func (m *Matrix) Axes() iter.Seq[domain.RawAxes] {
	return func(yield func(domain.RawAxes) bool) {
		for cell := range m.Cells() {
			if !yield(maps.Clone(cell.Axes)) {
				return
			}
		}
	}
}

func (m *Matrix) excluded(axes domain.RawAxes) (bool, error) {
	for _, p := range m.exclusions {
		ok, err := p.Eval(axes)
		if err != nil {
			return false, zerr.With(zerr.Wrap(err, "exclusion predicate failed"), "predicate", p.String())
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
