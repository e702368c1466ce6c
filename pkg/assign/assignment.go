package assign

import (
	"github.com/matzehuels/pixelmorph/pkg/cost"
	"github.com/matzehuels/pixelmorph/pkg/errors"
)

// Assignment maps source index i to target index a[i]. A valid assignment is
// a permutation of 0..N-1.
type Assignment []int

// Validate reports an INTERNAL_ERROR unless a is a bijection over 0..n-1.
func (a Assignment) Validate(n int) error {
	if len(a) != n {
		return errors.New(errors.ErrCodeInternal, "assignment has %d entries, want %d", len(a), n)
	}
	seen := make([]bool, n)
	for i, j := range a {
		if j < 0 || j >= n {
			return errors.New(errors.ErrCodeInternal, "source %d assigned out-of-range target %d", i, j)
		}
		if seen[j] {
			return errors.New(errors.ErrCodeInternal, "target %d assigned twice", j)
		}
		seen[j] = true
	}
	return nil
}

// Cost returns Σ m(i, a[i]).
func (a Assignment) Cost(m cost.Matrix) float64 {
	var total float64
	for i, j := range a {
		total += m.At(i, j)
	}
	return total
}

// Inverse returns the assignment mapping targets back to sources.
func (a Assignment) Inverse() Assignment {
	inv := make(Assignment, len(a))
	for i, j := range a {
		inv[j] = i
	}
	return inv
}

// Clone returns a copy of a.
func (a Assignment) Clone() Assignment {
	return append(Assignment(nil), a...)
}
