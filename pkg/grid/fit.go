package grid

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// CropScale selects a square region of an input image.
//
// Scale zooms in (1 keeps the largest centered square, 5 keeps a fifth of
// it); X and Y shift the region across the remaining margin, -1 and 1 being
// the image edges.
type CropScale struct {
	Scale float64 `json:"scale" toml:"scale"`
	X     float64 `json:"x" toml:"x"`
	Y     float64 `json:"y" toml:"y"`
}

// DefaultCropScale keeps the largest centered square.
var DefaultCropScale = CropScale{Scale: 1}

// Clamped returns c with Scale in [1, 5] and offsets in [-1, 1].
func (c CropScale) Clamped() CropScale {
	return CropScale{
		Scale: min(max(c.Scale, 1), 5),
		X:     min(max(c.X, -1), 1),
		Y:     min(max(c.Y, -1), 1),
	}
}

// Region returns the source rectangle selected within bounds.
func (c CropScale) Region(bounds image.Rectangle) image.Rectangle {
	c = c.Clamped()
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	size := math.Min(w, h) / c.Scale
	cx := w/2 + c.X*(w-size)/2
	cy := h/2 + c.Y*(h-size)/2
	x0 := int(math.Round(cx - size/2))
	y0 := int(math.Round(cy - size/2))
	s := max(int(math.Round(size)), 1)
	r := image.Rect(x0, y0, x0+s, y0+s).Add(bounds.Min)
	return r.Intersect(bounds)
}

// Apply crops img according to c and resamples the region to side×side.
func (c CropScale) Apply(img image.Image, side int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, c.Region(img.Bounds()), draw.Src, nil)
	return dst
}

// LimitSize downscales img so that neither side exceeds maxSide, keeping the
// aspect ratio. Images already within the limit are returned unchanged.
func LimitSize(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxSide && h <= maxSide {
		return img
	}
	scale := math.Min(float64(maxSide)/float64(w), float64(maxSide)/float64(h))
	nw := max(int(math.Round(float64(w)*scale)), 1)
	nh := max(int(math.Round(float64(h)*scale)), 1)
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
