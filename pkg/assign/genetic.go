package assign

import (
	"cmp"
	"context"
	"math/rand/v2"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/pixelmorph/pkg/cost"
	"github.com/matzehuels/pixelmorph/pkg/errors"
)

// Default genetic parameters.
const (
	DefaultPopulationSize = 64
	DefaultGenerations    = 400
	DefaultMutationRate   = 0.3
	DefaultTournamentSize = 3
	DefaultElite          = 2
	DefaultPlateau        = 80
	DefaultRefineSwaps    = 512
	DefaultSeed           = 1
)

// GeneticParams tunes the [Genetic] solver.
//
// PopulationSize, Generations and MutationRate must be positive; start from
// [DefaultGeneticParams] to get working values. The remaining fields take
// their defaults when zero.
type GeneticParams struct {
	PopulationSize int     `json:"population_size" toml:"population_size"`
	Generations    int     `json:"generations" toml:"generations"`
	MutationRate   float64 `json:"mutation_rate" toml:"mutation_rate"`
	TournamentSize int     `json:"tournament_size" toml:"tournament_size"`
	Elite          int     `json:"elite" toml:"elite"`
	// Plateau stops the run after this many generations without improvement.
	Plateau int `json:"plateau" toml:"plateau"`
	// RefineSwaps is the number of random pair swaps tried on the best
	// individual each generation; only improving swaps are kept.
	RefineSwaps int    `json:"refine_swaps" toml:"refine_swaps"`
	Seed        uint64 `json:"seed" toml:"seed"`
	// Workers bounds parallel fitness evaluation. Zero uses GOMAXPROCS.
	Workers int `json:"workers" toml:"workers"`

	validated bool
}

// DefaultGeneticParams returns the default genetic parameters.
func DefaultGeneticParams() GeneticParams {
	return GeneticParams{
		PopulationSize: DefaultPopulationSize,
		Generations:    DefaultGenerations,
		MutationRate:   DefaultMutationRate,
		TournamentSize: DefaultTournamentSize,
		Elite:          DefaultElite,
		Plateau:        DefaultPlateau,
		RefineSwaps:    DefaultRefineSwaps,
		Seed:           DefaultSeed,
	}
}

// ValidateAndSetDefaults fills the optional zero fields and rejects
// non-positive population size, generations or mutation rate with
// INVALID_CONFIG. Safe to call multiple times.
func (p *GeneticParams) ValidateAndSetDefaults() error {
	if p.validated {
		return nil
	}
	if p.TournamentSize == 0 {
		p.TournamentSize = DefaultTournamentSize
	}
	if p.Elite == 0 {
		p.Elite = DefaultElite
	}
	if p.Plateau == 0 {
		p.Plateau = DefaultPlateau
	}
	if p.RefineSwaps == 0 {
		p.RefineSwaps = DefaultRefineSwaps
	}
	if p.Seed == 0 {
		p.Seed = DefaultSeed
	}
	if p.Workers == 0 {
		p.Workers = runtime.GOMAXPROCS(0)
	}

	if p.PopulationSize < 2 {
		return errors.New(errors.ErrCodeInvalidConfig, "population size must be at least 2, got %d", p.PopulationSize)
	}
	if err := errors.ValidatePositive("generations", p.Generations); err != nil {
		return err
	}
	if p.MutationRate <= 0 || p.MutationRate > 1 {
		return errors.New(errors.ErrCodeInvalidConfig, "mutation rate must be in (0, 1], got %v", p.MutationRate)
	}
	if p.TournamentSize < 1 || p.TournamentSize > p.PopulationSize {
		return errors.New(errors.ErrCodeInvalidConfig,
			"tournament size must be in [1, %d], got %d", p.PopulationSize, p.TournamentSize)
	}
	if p.Elite < 1 || p.Elite >= p.PopulationSize {
		return errors.New(errors.ErrCodeInvalidConfig,
			"elite must be in [1, %d), got %d", p.PopulationSize, p.Elite)
	}
	if err := errors.ValidatePositive("plateau", p.Plateau); err != nil {
		return err
	}
	if p.RefineSwaps < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "refine swaps must not be negative, got %d", p.RefineSwaps)
	}
	if err := errors.ValidatePositive("workers", p.Workers); err != nil {
		return err
	}
	p.validated = true
	return nil
}

// Genetic approximates the optimal assignment with an evolutionary search.
//
// Individuals are permutations and fitness is total cost. Each generation
// keeps the Elite best unchanged, fills the rest with order-crossover children
// of tournament winners, applies swap mutation, and tries RefineSwaps
// improving swaps on the best individual. Because elites survive unchanged and
// refinement only accepts improvements, the best fitness never increases.
//
// All randomness comes from a PCG generator seeded with Params.Seed, so equal
// inputs yield equal results.
type Genetic struct {
	Params   GeneticParams
	Progress func(float64)
}

type individual struct {
	genes   Assignment
	fitness float64
}

func (g *Genetic) Solve(ctx context.Context, m cost.Matrix) (Result, error) {
	p := g.Params
	if err := p.ValidateAndSetDefaults(); err != nil {
		return Result{}, err
	}
	n := m.Size()
	if n < 2 {
		a := Identity(n)
		return Result{Assignment: a, Cost: a.Cost(m)}, nil
	}

	rng := rand.New(rand.NewPCG(p.Seed, p.Seed^0xdeadbeef))

	pop := make([]individual, p.PopulationSize)
	for i := range pop {
		genes := Identity(n)
		rng.Shuffle(n, func(a, b int) { genes[a], genes[b] = genes[b], genes[a] })
		pop[i].genes = genes
	}
	if err := evaluate(ctx, m, pop, p.Workers); err != nil {
		return Result{}, err
	}
	sortPopulation(pop)

	history := make([]float64, 0, p.Generations)
	best := pop[0].fitness
	stale := 0
	gen := 0
	next := make([]individual, p.PopulationSize)
	for gen < p.Generations && stale < p.Plateau {
		if ctx.Err() != nil {
			return Result{}, cancelled(ctx, "genetic solve")
		}

		for i := 0; i < p.Elite; i++ {
			next[i] = individual{genes: pop[i].genes.Clone(), fitness: pop[i].fitness}
		}
		for i := p.Elite; i < len(next); i++ {
			a := tournament(rng, pop, p.TournamentSize)
			b := tournament(rng, pop, p.TournamentSize)
			child := orderCrossover(rng, a.genes, b.genes)
			if rng.Float64() < p.MutationRate {
				x, y := rng.IntN(n), rng.IntN(n)
				child[x], child[y] = child[y], child[x]
			}
			next[i] = individual{genes: child}
		}
		if err := evaluate(ctx, m, next[p.Elite:], p.Workers); err != nil {
			return Result{}, err
		}
		pop, next = next, pop
		sortPopulation(pop)
		refine(rng, m, &pop[0], p.RefineSwaps)

		gen++
		if pop[0].fitness < best {
			best = pop[0].fitness
			stale = 0
		} else {
			stale++
		}
		history = append(history, pop[0].fitness)
		report(g.Progress, float64(gen)/float64(p.Generations))
	}

	return Result{
		Assignment:  pop[0].genes,
		Cost:        pop[0].genes.Cost(m),
		Generations: gen,
		History:     history,
	}, nil
}

func evaluate(ctx context.Context, m cost.Matrix, pop []individual, workers int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range pop {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			pop[i].fitness = pop[i].genes.Cost(m)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Cancelled(err, "genetic solve cancelled")
	}
	return nil
}

// sortPopulation orders by ascending fitness. The sort is stable so equal
// inputs keep their order across runs.
func sortPopulation(pop []individual) {
	slices.SortStableFunc(pop, func(a, b individual) int {
		return cmp.Compare(a.fitness, b.fitness)
	})
}

func tournament(rng *rand.Rand, pop []individual, k int) *individual {
	best := &pop[rng.IntN(len(pop))]
	for i := 1; i < k; i++ {
		c := &pop[rng.IntN(len(pop))]
		if c.fitness < best.fitness {
			best = c
		}
	}
	return best
}

// orderCrossover (OX1) copies a random slice of a and fills the remaining
// positions with the missing targets in the order they appear in b.
func orderCrossover(rng *rand.Rand, a, b Assignment) Assignment {
	n := len(a)
	lo, hi := rng.IntN(n), rng.IntN(n)
	if lo > hi {
		lo, hi = hi, lo
	}
	child := make(Assignment, n)
	taken := make([]bool, n)
	for i := lo; i <= hi; i++ {
		child[i] = a[i]
		taken[a[i]] = true
	}
	pos := (hi + 1) % n
	for k := 0; k < n; k++ {
		gene := b[(hi+1+k)%n]
		if taken[gene] {
			continue
		}
		child[pos] = gene
		taken[gene] = true
		pos = (pos + 1) % n
	}
	return child
}

// refine tries random pair swaps on ind and keeps those lowering its cost.
func refine(rng *rand.Rand, m cost.Matrix, ind *individual, swaps int) {
	a := ind.genes
	n := len(a)
	for s := 0; s < swaps; s++ {
		i, j := rng.IntN(n), rng.IntN(n)
		if i == j {
			continue
		}
		delta := m.At(i, a[j]) + m.At(j, a[i]) - m.At(i, a[i]) - m.At(j, a[j])
		if delta < 0 {
			a[i], a[j] = a[j], a[i]
			ind.fitness += delta
		}
	}
}
