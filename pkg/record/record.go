// Package record encodes morph frames as an animated GIF.
package record

import (
	"cmp"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"io"
	"os"
	"slices"
	"time"

	"golang.org/x/image/draw"
)

// Defaults.
const (
	DefaultDelay    = 40 * time.Millisecond
	DefaultHoldLast = time.Second
)

// Options configures a Recorder.
type Options struct {
	// Delay is the display time of each recorded frame. GIF stores delays in
	// hundredths of a second. Zero uses DefaultDelay.
	Delay time.Duration
	// Every records one of every Every added frames. Zero records all.
	Every int
	// HoldLast extends the display time of the final frame.
	HoldLast time.Duration
	// Palette quantizes frames. Nil builds one from the first added frame
	// and the frames passed to Seed.
	Palette color.Palette
	// Loop is the GIF loop count; 0 loops forever, -1 plays once.
	Loop int
}

// Recorder collects frames and encodes them as a GIF.
type Recorder struct {
	opts   Options
	seeds  []image.Image
	frames []*image.Paletted
	added  int
}

// New creates a recorder.
func New(opts Options) *Recorder {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.Every <= 0 {
		opts.Every = 1
	}
	return &Recorder{opts: opts}
}

// Seed contributes images (typically the source and target) to the palette
// built on the first Add. It has no effect once recording started or when a
// palette was configured.
func (r *Recorder) Seed(imgs ...image.Image) {
	r.seeds = append(r.seeds, imgs...)
}

// Add records img if it falls on the sampling interval. img may be reused by
// the caller afterwards.
func (r *Recorder) Add(img image.Image) { r.add(img, false) }

// AddLast records img regardless of the sampling interval, so the final
// frame of an animation is never skipped.
func (r *Recorder) AddLast(img image.Image) { r.add(img, true) }

func (r *Recorder) add(img image.Image, force bool) {
	defer func() { r.added++ }()
	if !force && r.added%r.opts.Every != 0 {
		return
	}
	if r.opts.Palette == nil {
		r.opts.Palette = Palette(append(r.seeds, img)...)
	}
	b := img.Bounds()
	p := image.NewPaletted(image.Rect(0, 0, b.Dx(), b.Dy()), r.opts.Palette)
	draw.FloydSteinberg.Draw(p, p.Bounds(), img, b.Min)
	r.frames = append(r.frames, p)
}

// Len returns the number of recorded frames.
func (r *Recorder) Len() int { return len(r.frames) }

// Encode writes the animation to w.
func (r *Recorder) Encode(w io.Writer) error {
	if len(r.frames) == 0 {
		return fmt.Errorf("no frames recorded")
	}
	delay := hundredths(r.opts.Delay)
	anim := &gif.GIF{
		Image:     r.frames,
		Delay:     make([]int, len(r.frames)),
		LoopCount: r.opts.Loop,
	}
	for i := range anim.Delay {
		anim.Delay[i] = delay
	}
	anim.Delay[len(anim.Delay)-1] += hundredths(r.opts.HoldLast)
	return gif.EncodeAll(w, anim)
}

// Save encodes the animation to path.
func (r *Recorder) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.Encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func hundredths(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return max(int((d+5*time.Millisecond)/(10*time.Millisecond)), 1)
}

// Palette builds a palette of at most 256 colors from the most frequent
// colors of imgs, after reducing every channel to 5 bits.
func Palette(imgs ...image.Image) color.Palette {
	counts := make(map[color.RGBA]int)
	for _, img := range imgs {
		b := img.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
				c.R, c.G, c.B, c.A = c.R&0xf8|0x04, c.G&0xf8|0x04, c.B&0xf8|0x04, 0xff
				counts[c]++
			}
		}
	}
	type entry struct {
		c color.RGBA
		n int
	}
	entries := make([]entry, 0, len(counts))
	for c, n := range counts {
		entries = append(entries, entry{c, n})
	}
	slices.SortFunc(entries, func(a, b entry) int {
		if a.n != b.n {
			return cmp.Compare(b.n, a.n)
		}
		return cmp.Compare(packRGB(a.c), packRGB(b.c))
	})
	pal := make(color.Palette, 0, 256)
	for _, e := range entries {
		if len(pal) == 256 {
			break
		}
		pal = append(pal, e.c)
	}
	if len(pal) == 0 {
		pal = append(pal, color.RGBA{A: 0xff})
	}
	return pal
}

func packRGB(c color.RGBA) uint32 {
	return uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}
