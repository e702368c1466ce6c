// Package assign solves the linear assignment problem between two grids.
//
// Given an N×N cost matrix, a [Solver] returns a permutation π minimizing
// Σ c(i, π(i)). Two solvers are provided:
//
//   - [Hungarian]: exact Kuhn-Munkres in O(N³). Deterministic; refuses matrices
//     above its MaxCells ceiling with SOLVER_RESOURCE_EXCEEDED instead of
//     silently degrading.
//   - [Genetic]: an evolutionary approximation with tournament selection,
//     order crossover, swap mutation and elitism. Reproducible for a given seed.
//
// Both solvers observe context cancellation and never return a partial
// assignment: a cancelled solve returns a CANCELLED error and a zero Result.
package assign

import (
	"context"
	"strings"

	"github.com/matzehuels/pixelmorph/pkg/cost"
	"github.com/matzehuels/pixelmorph/pkg/errors"
)

// Solver computes a minimum-cost assignment for a square cost matrix.
type Solver interface {
	Solve(ctx context.Context, m cost.Matrix) (Result, error)
}

// Result is a solved assignment.
type Result struct {
	Assignment Assignment
	Cost       float64

	// Generations is the number of generations the genetic solver ran.
	// Zero for exact solves.
	Generations int
	// History holds the best fitness after each generation.
	History []float64
}

// Algorithm selects a solver.
type Algorithm string

const (
	AlgorithmExact   Algorithm = "exact"
	AlgorithmGenetic Algorithm = "genetic"
)

// ParseAlgorithm parses an algorithm name, case-insensitively.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(s))); a {
	case AlgorithmExact, AlgorithmGenetic:
		return a, nil
	case "hungarian":
		return AlgorithmExact, nil
	}
	return "", errors.New(errors.ErrCodeInvalidConfig, "unknown algorithm %q (want exact or genetic)", s)
}

func (a Algorithm) String() string { return string(a) }

// Options configures [New].
type Options struct {
	// MaxExactCells is the Hungarian ceiling. Zero uses DefaultMaxCells.
	MaxExactCells int
	Genetic       GeneticParams
	// Progress receives solve progress in [0, 1]. Optional.
	Progress func(float64)
}

// New returns the solver for algorithm.
func New(algorithm Algorithm, opts Options) (Solver, error) {
	switch algorithm {
	case AlgorithmExact:
		return &Hungarian{MaxCells: opts.MaxExactCells, Progress: opts.Progress}, nil
	case AlgorithmGenetic:
		params := opts.Genetic
		if err := params.ValidateAndSetDefaults(); err != nil {
			return nil, err
		}
		return &Genetic{Params: params, Progress: opts.Progress}, nil
	}
	return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown algorithm %q", algorithm)
}

func cancelled(ctx context.Context, stage string) error {
	return errors.Cancelled(ctx.Err(), "%s cancelled", stage)
}

func report(fn func(float64), f float64) {
	if fn != nil {
		fn(f)
	}
}
