package particle

import (
	"math"

	"github.com/matzehuels/pixelmorph/pkg/geom"
)

type binKey struct{ x, y int32 }

// spatialHash buckets particle indices into square bins of the repulsion
// radius, so a neighbour query only visits the 3×3 bins around a point.
// Bins hold indices in ascending order, which keeps force sums deterministic.
type spatialHash struct {
	size float64
	bins map[binKey][]int32
}

func newSpatialHash(size float64) *spatialHash {
	return &spatialHash{size: size, bins: make(map[binKey][]int32)}
}

func (h *spatialHash) key(p geom.Vec2) binKey {
	return binKey{int32(math.Floor(p.X / h.size)), int32(math.Floor(p.Y / h.size))}
}

// rebuild re-buckets ps. Bin slices are reused between steps.
func (h *spatialHash) rebuild(ps []Particle) {
	for k, b := range h.bins {
		h.bins[k] = b[:0]
	}
	for i := range ps {
		k := h.key(ps[i].Position)
		h.bins[k] = append(h.bins[k], int32(i))
	}
	for k, b := range h.bins {
		if len(b) == 0 {
			delete(h.bins, k)
		}
	}
}

// neighbors calls fn for every index in the bins surrounding p.
func (h *spatialHash) neighbors(p geom.Vec2, fn func(j int)) {
	c := h.key(p)
	for dy := int32(-1); dy <= 1; dy++ {
		for dx := int32(-1); dx <= 1; dx++ {
			for _, j := range h.bins[binKey{c.x + dx, c.y + dy}] {
				fn(int(j))
			}
		}
	}
}
