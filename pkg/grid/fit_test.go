package grid

import (
	"image"
	"image/color"
	"testing"
)

func TestCropScaleRegion(t *testing.T) {
	bounds := image.Rect(0, 0, 200, 100)
	tests := []struct {
		name string
		crop CropScale
		want image.Rectangle
	}{
		{"centered square", DefaultCropScale, image.Rect(50, 0, 150, 100)},
		{"left edge", CropScale{Scale: 1, X: -1}, image.Rect(0, 0, 100, 100)},
		{"right edge", CropScale{Scale: 1, X: 1}, image.Rect(100, 0, 200, 100)},
		{"zoomed", CropScale{Scale: 2}, image.Rect(75, 25, 125, 75)},
		{"zoomed top left", CropScale{Scale: 2, X: -1, Y: -1}, image.Rect(0, 0, 50, 50)},
		{"clamped", CropScale{Scale: 0, X: 3}, image.Rect(100, 0, 200, 100)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.crop.Region(bounds); got != tt.want {
				t.Errorf("Region() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCropScaleApply(t *testing.T) {
	img := solid(40, 20, color.NRGBA{G: 255, A: 255})
	out := DefaultCropScale.Apply(img, 16)
	if out.Bounds() != image.Rect(0, 0, 16, 16) {
		t.Fatalf("bounds = %v", out.Bounds())
	}
	if got := out.RGBAAt(8, 8); got.G < 250 || got.R > 5 {
		t.Errorf("center pixel = %v, want green", got)
	}
}

func TestLimitSize(t *testing.T) {
	small := solid(30, 20, color.White)
	if got := LimitSize(small, 64); got != image.Image(small) {
		t.Error("LimitSize() resampled an image within the limit")
	}

	big := solid(1000, 500, color.White)
	got := LimitSize(big, 100)
	if got.Bounds().Dx() != 100 || got.Bounds().Dy() != 50 {
		t.Errorf("LimitSize() bounds = %v, want 100x50", got.Bounds())
	}
}
