package record

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"path/filepath"
	"testing"
	"time"
)

func frame(c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func TestRecorderSamplesFrames(t *testing.T) {
	r := New(Options{Every: 2, Delay: 30 * time.Millisecond, HoldLast: 500 * time.Millisecond})
	for i := 0; i < 5; i++ {
		r.Add(frame(color.RGBA{R: uint8(i * 50), A: 255}))
	}
	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}

	var buf bytes.Buffer
	if err := r.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	g, err := gif.DecodeAll(&buf)
	if err != nil {
		t.Fatalf("DecodeAll: %v", err)
	}
	if len(g.Image) != 3 {
		t.Fatalf("decoded %d frames, want 3", len(g.Image))
	}
	want := []int{3, 3, 53}
	for i, d := range g.Delay {
		if d != want[i] {
			t.Errorf("delay[%d] = %d, want %d", i, d, want[i])
		}
	}
}

func TestRecorderAddLast(t *testing.T) {
	r := New(Options{Every: 3})
	r.Add(frame(color.RGBA{A: 255}))
	r.Add(frame(color.RGBA{A: 255}))
	r.AddLast(frame(color.RGBA{R: 255, A: 255}))
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
}

func TestRecorderEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := New(Options{}).Encode(&buf); err == nil {
		t.Error("Encode() with no frames should fail")
	}
}

func TestRecorderSave(t *testing.T) {
	r := New(Options{})
	r.Seed(frame(color.RGBA{B: 255, A: 255}))
	r.Add(frame(color.RGBA{G: 255, A: 255}))
	path := filepath.Join(t.TempDir(), "out.gif")
	if err := r.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
}

func TestPalette(t *testing.T) {
	a := frame(color.RGBA{R: 255, A: 255})
	b := frame(color.RGBA{B: 255, A: 255})
	b.Set(0, 0, color.RGBA{G: 255, A: 255})

	pal := Palette(a, b)
	if len(pal) != 3 {
		t.Fatalf("len(Palette) = %d, want 3", len(pal))
	}
	// red appears 16 times, blue 15, green once
	r, g, bl, _ := pal[0].RGBA()
	if r>>8 < 0xf0 || g>>8 > 0x10 || bl>>8 > 0x10 {
		t.Errorf("most frequent color = %v, want red", pal[0])
	}
	_, _, bl, _ = pal[1].RGBA()
	if bl>>8 < 0xf0 {
		t.Errorf("second color = %v, want blue", pal[1])
	}
}

func TestHundredths(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want int
	}{
		{0, 0},
		{time.Millisecond, 1},
		{40 * time.Millisecond, 4},
		{16 * time.Millisecond, 2},
		{time.Second, 100},
	}
	for _, tt := range tests {
		if got := hundredths(tt.d); got != tt.want {
			t.Errorf("hundredths(%v) = %d, want %d", tt.d, got, tt.want)
		}
	}
}
