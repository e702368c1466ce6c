// Package voronoi renders nearest-seed diagrams with the Jump Flooding
// Algorithm.
//
// Each frame, every particle becomes a [Seed] and every output pixel takes
// the color of the seed nearest to its center. Jump flooding finds that seed
// in ceil(log2(max(w, h)))+1 passes: each pass is a pure function from the
// previous per-pixel seed buffer to the next, where a pixel keeps the nearest
// of its current seed and the seeds of the 8 pixels at ±step, and the step
// halves every pass. Two extra passes with steps 2 and 1 (JFA+2) repair most
// of the pixels that plain JFA loses to ties.
//
// JFA+2 is still an approximation for large seed sets. Frames with at most
// Options.ExactSeeds seeds are resolved by scanning every seed per pixel, so
// small diagrams are exact.
//
// Passes run sequentially; pixels within a pass are processed in parallel
// row bands.
package voronoi

import (
	"image"
	"image/color"
	"math"
	"math/bits"
	"runtime"
	"sync"

	"github.com/matzehuels/pixelmorph/pkg/errors"
	"github.com/matzehuels/pixelmorph/pkg/geom"
)

// DefaultMaxPixels caps the frame size at 16 megapixels.
const DefaultMaxPixels = 4096 * 4096

// DefaultExactSeeds is the default Options.ExactSeeds.
const DefaultExactSeeds = 16

// Empty marks a pixel that has not been reached by any seed.
const Empty int32 = -1

// Seed is a nearest-neighbour anchor in pixel coordinates.
type Seed struct {
	Position geom.Vec2
	Color    color.RGBA
}

// Options configures a Renderer.
type Options struct {
	// Workers is the number of row bands per pass. Zero uses GOMAXPROCS.
	Workers int
	// MaxPixels rejects larger frames. Zero uses DefaultMaxPixels.
	MaxPixels int
	// Background fills pixels when there are no seeds.
	Background color.RGBA
	// ExactSeeds is the largest seed count resolved by a full scan instead
	// of jump flooding. Zero uses DefaultExactSeeds; negative always floods.
	ExactSeeds int
}

// Renderer owns the ping-pong seed buffers for one frame size.
// It is not safe for concurrent use.
type Renderer struct {
	width, height int
	buf           [2][]int32
	steps         []int
	opts          Options
}

// NewRenderer allocates seed buffers for width×height frames.
// It returns RENDER_ALLOCATION_FAILURE for empty or oversized frames.
func NewRenderer(width, height int, opts Options) (*Renderer, error) {
	if opts.MaxPixels == 0 {
		opts.MaxPixels = DefaultMaxPixels
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.ExactSeeds == 0 {
		opts.ExactSeeds = DefaultExactSeeds
	}
	if width <= 0 || height <= 0 {
		return nil, errors.New(errors.ErrCodeRenderAllocation, "invalid frame size %dx%d", width, height)
	}
	if int64(width)*int64(height) > int64(opts.MaxPixels) {
		return nil, errors.New(errors.ErrCodeRenderAllocation,
			"frame %dx%d exceeds %d pixels", width, height, opts.MaxPixels)
	}
	n := width * height
	return &Renderer{
		width:  width,
		height: height,
		buf:    [2][]int32{make([]int32, n), make([]int32, n)},
		steps:  Steps(width, height),
		opts:   opts,
	}, nil
}

// Bounds returns the frame rectangle.
func (r *Renderer) Bounds() image.Rectangle { return image.Rect(0, 0, r.width, r.height) }

// Steps returns the jump sizes 2^L, 2^(L-1), ..., 1 with
// L = ceil(log2(max(w, h))), followed by the correction steps 2 and 1 when
// L >= 2.
func Steps(width, height int) []int {
	m := max(width, height, 1)
	l := bits.Len(uint(m - 1))
	steps := make([]int, 0, l+3)
	for k := 0; k <= l; k++ {
		steps = append(steps, 1<<(l-k))
	}
	if l >= 2 {
		steps = append(steps, 2, 1)
	}
	return steps
}

// Flood returns, for every pixel in row-major order, the index of its
// nearest seed, or Empty when seeds is empty. Equidistant seeds resolve to
// the lower index. The returned slice is owned by the renderer and
// overwritten by the next call.
func (r *Renderer) Flood(seeds []Seed) []int32 {
	if len(seeds) > 0 && len(seeds) <= r.opts.ExactSeeds {
		return r.scan(seeds)
	}
	src := r.buf[0]
	for i := range src {
		src[i] = Empty
	}
	for id := range seeds {
		r.plant(src, seeds, int32(id))
	}
	if len(seeds) == 0 {
		return src
	}

	dst := r.buf[1]
	for _, step := range r.steps {
		r.parallelRows(func(y0, y1 int) {
			r.pass(seeds, src, dst, step, y0, y1)
		})
		src, dst = dst, src
	}
	return src
}

// scan assigns every pixel by checking all seeds.
func (r *Renderer) scan(seeds []Seed) []int32 {
	out := r.buf[0]
	w := r.width
	r.parallelRows(func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			cy := float64(y) + 0.5
			for x := 0; x < w; x++ {
				center := geom.V(float64(x)+0.5, cy)
				best, bestD := int32(0), seeds[0].Position.Sub(center).Len2()
				for id := 1; id < len(seeds); id++ {
					if d := seeds[id].Position.Sub(center).Len2(); d < bestD {
						best, bestD = int32(id), d
					}
				}
				out[y*w+x] = best
			}
		}
	})
	return out
}

// plant writes seed id into the pixel containing it. Positions outside the
// frame are clamped to the border. When two seeds share a pixel the one
// nearer the pixel center wins, then the lower id.
func (r *Renderer) plant(buf []int32, seeds []Seed, id int32) {
	p := seeds[id].Position
	x := min(max(int(math.Floor(p.X)), 0), r.width-1)
	y := min(max(int(math.Floor(p.Y)), 0), r.height-1)
	i := y*r.width + x
	cur := buf[i]
	if cur == Empty {
		buf[i] = id
		return
	}
	center := geom.V(float64(x)+0.5, float64(y)+0.5)
	if p.Sub(center).Len2() < seeds[cur].Position.Sub(center).Len2() {
		buf[i] = id
	}
}

// pass computes rows [y0, y1) of dst from src.
func (r *Renderer) pass(seeds []Seed, src, dst []int32, step, y0, y1 int) {
	w, h := r.width, r.height
	for y := y0; y < y1; y++ {
		cy := float64(y) + 0.5
		for x := 0; x < w; x++ {
			center := geom.V(float64(x)+0.5, cy)
			best := src[y*w+x]
			bestD := math.Inf(1)
			if best != Empty {
				bestD = seeds[best].Position.Sub(center).Len2()
			}
			for dy := -step; dy <= step; dy += step {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -step; dx <= step; dx += step {
					nx := x + dx
					if nx < 0 || nx >= w || (dx == 0 && dy == 0) {
						continue
					}
					id := src[ny*w+nx]
					if id == Empty || id == best {
						continue
					}
					d := seeds[id].Position.Sub(center).Len2()
					if d < bestD || (d == bestD && id < best) {
						best, bestD = id, d
					}
				}
			}
			dst[y*w+x] = best
		}
	}
}

func (r *Renderer) parallelRows(fn func(y0, y1 int)) {
	bands := min(r.opts.Workers, r.height)
	rows := (r.height + bands - 1) / bands
	var wg sync.WaitGroup
	for y0 := 0; y0 < r.height; y0 += rows {
		y1 := min(y0+rows, r.height)
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(y0, y1)
		}()
	}
	wg.Wait()
}

// Render floods seeds and paints dst with the nearest seed's color.
// dst must have the renderer's bounds.
func (r *Renderer) Render(seeds []Seed, dst *image.RGBA) error {
	if dst.Bounds().Dx() != r.width || dst.Bounds().Dy() != r.height {
		return errors.New(errors.ErrCodeRenderAllocation,
			"destination is %v, renderer is %dx%d", dst.Bounds(), r.width, r.height)
	}
	ids := r.Flood(seeds)
	b := dst.Bounds()
	r.parallelRows(func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			off := dst.PixOffset(b.Min.X, b.Min.Y+y)
			row := dst.Pix[off : off+r.width*4]
			for x := 0; x < r.width; x++ {
				c := r.opts.Background
				if id := ids[y*r.width+x]; id != Empty {
					c = seeds[id].Color
				}
				row[4*x], row[4*x+1], row[4*x+2], row[4*x+3] = c.R, c.G, c.B, c.A
			}
		}
	})
	return nil
}

// NewFrame allocates a destination image matching the renderer.
func (r *Renderer) NewFrame() *image.RGBA { return image.NewRGBA(r.Bounds()) }
