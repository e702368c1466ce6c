// Package grid reduces raster images to R×R grids of cells.
//
// A [Cell] is one partition of the image reduced to its mean color and its
// centroid in grid units. Grids are the input of the cost matrix builder and
// of the particle system: cell i of the source grid becomes particle i, and the
// solver decides which target cell it travels to.
//
// # Sampling
//
//	g, err := grid.Sample(img, 64)
//	if err != nil {
//	    return err // INVALID_CONFIG or IMAGE_SIZE_MISMATCH
//	}
//	fmt.Println(len(g.Cells)) // 4096
//
// Preparing inputs (cropping, zooming and resampling to a common square) is a
// caller responsibility; [CropScale] and [LimitSize] are provided for it.
package grid

import (
	"image"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/matzehuels/pixelmorph/pkg/errors"
	"github.com/matzehuels/pixelmorph/pkg/geom"
)

// Cell is one grid partition reduced to its average color and centroid.
type Cell struct {
	Position geom.Vec2
	Color    colorful.Color
}

// Grid is an R×R row-major array of cells.
type Grid struct {
	Resolution int
	Cells      []Cell
}

// Len returns the number of cells, R².
func (g Grid) Len() int { return len(g.Cells) }

// Index returns the row-major index of cell (x, y).
func (g Grid) Index(x, y int) int { return y*g.Resolution + x }

// Sample partitions img into resolution×resolution cells.
//
// Cell (cx, cy) covers the pixel range [cx*W/R, (cx+1)*W/R) × [cy*H/R, (cy+1)*H/R)
// of the image bounds, so every pixel belongs to exactly one cell. Colors are
// averaged in non-premultiplied RGB; fully transparent pixels contribute black.
//
// Sample returns INVALID_CONFIG for a non-positive resolution and
// IMAGE_SIZE_MISMATCH when the image is smaller than the grid in either
// dimension (some cells would be empty).
func Sample(img image.Image, resolution int) (Grid, error) {
	if err := errors.ValidateResolution(resolution); err != nil {
		return Grid{}, err
	}
	if img == nil {
		return Grid{}, errors.New(errors.ErrCodeImageSizeMismatch, "image is nil")
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < resolution || h < resolution {
		return Grid{}, errors.New(errors.ErrCodeImageSizeMismatch,
			"image %dx%d is smaller than a %dx%d grid", w, h, resolution, resolution)
	}

	g := Grid{
		Resolution: resolution,
		Cells:      make([]Cell, resolution*resolution),
	}
	for cy := 0; cy < resolution; cy++ {
		y0 := b.Min.Y + cy*h/resolution
		y1 := b.Min.Y + (cy+1)*h/resolution
		for cx := 0; cx < resolution; cx++ {
			x0 := b.Min.X + cx*w/resolution
			x1 := b.Min.X + (cx+1)*w/resolution
			g.Cells[g.Index(cx, cy)] = Cell{
				Position: geom.V(float64(cx)+0.5, float64(cy)+0.5),
				Color:    averageColor(img, x0, y0, x1, y1),
			}
		}
	}
	return g, nil
}

// averageColor returns the mean color of the half-open pixel rectangle.
func averageColor(img image.Image, x0, y0, x1, y1 int) colorful.Color {
	var r, g, b float64
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if c.A == 0 {
				continue
			}
			r += float64(c.R)
			g += float64(c.G)
			b += float64(c.B)
		}
	}
	n := float64((x1 - x0) * (y1 - y0) * 255)
	return colorful.Color{R: r / n, G: g / n, B: b / n}
}

// Uniform returns a grid whose cells all carry c.
// It is mostly useful for tests and placeholder targets.
func Uniform(resolution int, c colorful.Color) Grid {
	g := Grid{Resolution: resolution, Cells: make([]Cell, resolution*resolution)}
	for i := range g.Cells {
		g.Cells[i] = Cell{
			Position: geom.V(float64(i%resolution)+0.5, float64(i/resolution)+0.5),
			Color:    c,
		}
	}
	return g
}

// Image renders the grid as flat scale×scale blocks, one per cell.
func (g Grid) Image(scale int) *image.RGBA {
	if scale < 1 {
		scale = 1
	}
	side := g.Resolution * scale
	img := image.NewRGBA(image.Rect(0, 0, side, side))
	for i, c := range g.Cells {
		col := ToRGBA(c.Color)
		x0 := (i % g.Resolution) * scale
		y0 := (i / g.Resolution) * scale
		for y := y0; y < y0+scale; y++ {
			for x := x0; x < x0+scale; x++ {
				img.SetRGBA(x, y, col)
			}
		}
	}
	return img
}

// ToRGBA converts a [0,1] color to an opaque 8-bit RGBA value, clamping
// out-of-gamut channels.
func ToRGBA(c colorful.Color) color.RGBA {
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}
