package assign

import (
	"context"
	"math"

	"github.com/matzehuels/pixelmorph/pkg/cost"
	"github.com/matzehuels/pixelmorph/pkg/errors"
)

// DefaultMaxCells is the default Hungarian ceiling, a 64×64 grid.
const DefaultMaxCells = 4096

// Hungarian is the exact Kuhn-Munkres solver.
//
// It keeps row and column potentials and inserts one row at a time along a
// shortest augmenting path, for O(N³) total work. Among equal reduced costs
// the lowest column index wins, so results are deterministic.
type Hungarian struct {
	// MaxCells rejects larger matrices with SOLVER_RESOURCE_EXCEEDED.
	// Zero uses DefaultMaxCells; negative disables the ceiling.
	MaxCells int
	Progress func(float64)
}

func (h *Hungarian) Solve(ctx context.Context, m cost.Matrix) (Result, error) {
	n := m.Size()
	limit := h.MaxCells
	if limit == 0 {
		limit = DefaultMaxCells
	}
	if limit > 0 && n > limit {
		return Result{}, errors.New(errors.ErrCodeSolverExceeded,
			"exact solver limited to %d cells, got %d; use the genetic solver or a lower resolution", limit, n)
	}
	if n == 0 {
		return Result{Assignment: Assignment{}}, nil
	}

	// 1-based: row/column 0 is the virtual start of each augmenting path.
	inf := math.Inf(1)
	u := make([]float64, n+1)
	v := make([]float64, n+1)
	match := make([]int, n+1) // match[j] = row assigned to column j
	way := make([]int, n+1)
	minv := make([]float64, n+1)
	used := make([]bool, n+1)

	for i := 1; i <= n; i++ {
		if ctx.Err() != nil {
			return Result{}, cancelled(ctx, "exact solve")
		}
		match[0] = i
		j0 := 0
		for j := range minv {
			minv[j] = inf
			used[j] = false
		}
		for {
			used[j0] = true
			i0 := match[j0]
			delta := inf
			j1 := 0
			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				cur := m.At(i0-1, j-1) - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			if j1 == 0 {
				return Result{}, errors.New(errors.ErrCodeInternal, "no augmenting path for row %d (non-finite costs?)", i-1)
			}
			for j := 0; j <= n; j++ {
				if used[j] {
					u[match[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if match[j0] == 0 {
				break
			}
		}
		for j0 != 0 {
			j1 := way[j0]
			match[j0] = match[j1]
			j0 = j1
		}
		report(h.Progress, float64(i)/float64(n))
	}

	a := make(Assignment, n)
	for j := 1; j <= n; j++ {
		a[match[j]-1] = j - 1
	}
	return Result{Assignment: a, Cost: a.Cost(m)}, nil
}
