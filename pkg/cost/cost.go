// Package cost builds the N×N cost matrix between the cells of two grids.
//
// The cost of sending source cell i to target cell j mixes color similarity
// and spatial proximity:
//
//	c(i, j) = wColor*dColor(i, j)² + wSpatial*dSpatial(i, j)²
//
// where dColor is the Euclidean RGB distance with channels in [0, 1] and
// dSpatial is the centroid distance divided by the grid resolution. Both terms
// are therefore independent of the resolution and the weights are comparable.
//
// Small matrices are materialized into a [gonum.org/v1/gonum/mat.Dense]; above
// [DenseLimit] cells entries are computed on demand from the grids, which
// yields the same values with memory linear in N.
package cost

import (
	"context"
	"runtime"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/matzehuels/pixelmorph/pkg/errors"
	"github.com/matzehuels/pixelmorph/pkg/geom"
	"github.com/matzehuels/pixelmorph/pkg/grid"
)

// DenseLimit is the largest cell count materialized as a dense matrix.
// A 2048×2048 float64 matrix takes 32 MiB.
const DenseLimit = 2048

// Matrix is a read-only square cost matrix.
type Matrix interface {
	// Size returns N, the number of rows and columns.
	Size() int
	// At returns the cost of assigning source i to target j.
	At(i, j int) float64
}

// Weights balances color against spatial distance.
type Weights struct {
	Color   float64
	Spatial float64
}

// WeightsFor derives weights from a proximity importance p in [0, 1].
// Higher p biases the assignment toward spatially coherent matches.
func WeightsFor(p float64) Weights {
	return Weights{Color: 1 - p, Spatial: p}
}

// Pair returns the cost between two cells of grids with the given resolution.
func (w Weights) Pair(a, b grid.Cell, resolution int) float64 {
	dc := a.Color.DistanceRgb(b.Color)
	ds := a.Position.Dist(b.Position) / float64(resolution)
	return w.Color*dc*dc + w.Spatial*ds*ds
}

// Build computes the cost matrix between src and dst for proximity
// importance p. It fails with INVALID_CONFIG when the grids differ in cell
// count or resolution or when p lies outside [0, 1].
func Build(ctx context.Context, src, dst grid.Grid, p float64) (Matrix, error) {
	if err := errors.ValidateUnitInterval("proximity importance", p); err != nil {
		return nil, err
	}
	if src.Len() != dst.Len() || src.Resolution != dst.Resolution {
		return nil, errors.New(errors.ErrCodeInvalidConfig,
			"grid cell counts differ: %d vs %d", src.Len(), dst.Len())
	}
	if src.Len() == 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "grids are empty")
	}

	w := WeightsFor(p)
	if src.Len() > DenseLimit {
		return newLazy(src, dst, w), nil
	}
	return buildDense(ctx, src, dst, w)
}

// Dense is a materialized cost matrix.
type Dense struct {
	m *mat.Dense
}

func (d *Dense) Size() int {
	r, _ := d.m.Dims()
	return r
}

func (d *Dense) At(i, j int) float64 { return d.m.At(i, j) }

// Raw exposes the backing gonum matrix.
func (d *Dense) Raw() *mat.Dense { return d.m }

func buildDense(ctx context.Context, src, dst grid.Grid, w Weights) (*Dense, error) {
	n := src.Len()
	m := mat.NewDense(n, n, nil)

	g, ctx := errgroup.WithContext(ctx)
	workers := runtime.GOMAXPROCS(0)
	rows := (n + workers - 1) / workers
	for lo := 0; lo < n; lo += rows {
		hi := min(lo+rows, n)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				row := m.RawRowView(i)
				a := src.Cells[i]
				for j := range row {
					row[j] = w.Pair(a, dst.Cells[j], src.Resolution)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Cancelled(err, "cost matrix build aborted")
	}
	return &Dense{m: m}, nil
}

// Lazy computes entries from the grids on every access.
type Lazy struct {
	colors     []colorful.Color
	positions  []geom.Vec2
	targets    []colorful.Color
	targetPos  []geom.Vec2
	resolution float64
	w          Weights
}

func newLazy(src, dst grid.Grid, w Weights) *Lazy {
	l := &Lazy{
		colors:     make([]colorful.Color, src.Len()),
		positions:  make([]geom.Vec2, src.Len()),
		targets:    make([]colorful.Color, dst.Len()),
		targetPos:  make([]geom.Vec2, dst.Len()),
		resolution: float64(src.Resolution),
		w:          w,
	}
	for i, c := range src.Cells {
		l.colors[i], l.positions[i] = c.Color, c.Position
	}
	for j, c := range dst.Cells {
		l.targets[j], l.targetPos[j] = c.Color, c.Position
	}
	return l
}

func (l *Lazy) Size() int { return len(l.colors) }

func (l *Lazy) At(i, j int) float64 {
	a, b := l.colors[i], l.targets[j]
	dr, dg, db := a.R-b.R, a.G-b.G, a.B-b.B
	ds := l.positions[i].Dist(l.targetPos[j]) / l.resolution
	return l.w.Color*(dr*dr+dg*dg+db*db) + l.w.Spatial*ds*ds
}

// FromDense wraps an explicit row-major n×n cost table. It is used by tests
// and by callers that bring their own costs.
func FromDense(n int, data []float64) *Dense {
	return &Dense{m: mat.NewDense(n, n, data)}
}
