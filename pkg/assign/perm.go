package assign

import (
	"iter"

	"github.com/matzehuels/pixelmorph/pkg/cost"
)

// Identity returns the assignment [0, 1, ..., n-1].
// For n <= 0 it returns an empty assignment.
func Identity(n int) Assignment {
	a := make(Assignment, max(n, 0))
	for i := range a {
		a[i] = i
	}
	return a
}

// Factorial returns n!, or 1 for n <= 1.
// 13! already overflows 32-bit integers.
func Factorial(n int) int {
	result := 1
	for i := 2; i <= n; i++ {
		result *= i
	}
	return result
}

// Permutations yields every permutation of 0..n-1 once, in the order of
// Heap's algorithm. The yielded slice is reused between iterations; clone it
// to keep it.
func Permutations(n int) iter.Seq[Assignment] {
	return func(yield func(Assignment) bool) {
		p := Identity(n)
		if !yield(p) || n < 2 {
			return
		}
		state := make([]int, n)
		for i := 0; i < n; {
			if state[i] >= i {
				state[i] = 0
				i++
				continue
			}
			if i%2 == 0 {
				p[0], p[i] = p[i], p[0]
			} else {
				p[state[i]], p[i] = p[i], p[state[i]]
			}
			if !yield(p) {
				return
			}
			state[i]++
			i = 0
		}
	}
}

// BruteForce returns a minimum-cost assignment by enumerating all n!
// permutations. It is only practical for n <= 10.
func BruteForce(m cost.Matrix) (Assignment, float64) {
	var best Assignment
	bestCost := 0.0
	for p := range Permutations(m.Size()) {
		c := p.Cost(m)
		if best == nil || c < bestCost {
			best, bestCost = p.Clone(), c
		}
	}
	return best, bestCost
}
