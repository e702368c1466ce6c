package morph

import (
	"context"
	stderrors "errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/pixelmorph/pkg/assign"
	"github.com/matzehuels/pixelmorph/pkg/cache"
	"github.com/matzehuels/pixelmorph/pkg/errors"
	"github.com/matzehuels/pixelmorph/pkg/grid"
	"github.com/matzehuels/pixelmorph/pkg/observability"
)

const frameDT = time.Second / 60

// palette returns r*r distinct 8-bit colors.
func palette(r int) []colorful.Color {
	cs := make([]colorful.Color, r*r)
	for i := range cs {
		cs[i] = colorful.Color{
			R: float64((i*37)%256) / 255,
			G: float64((i*91+40)%256) / 255,
			B: float64((i*13+200)%256) / 255,
		}
	}
	return cs
}

// imageOf renders colors as an r×r grid image with scale pixels per cell.
func imageOf(r, scale int, colors []colorful.Color) image.Image {
	g := grid.Uniform(r, colorful.Color{})
	for i := range g.Cells {
		g.Cells[i].Color = colors[i]
	}
	return g.Image(scale)
}

// swapped returns colors with entries a and b exchanged.
func swapped(colors []colorful.Color, a, b int) []colorful.Color {
	out := append([]colorful.Color(nil), colors...)
	out[a], out[b] = out[b], out[a]
	return out
}

func testConfig(r int) Config {
	return Config{Resolution: r, ProximityImportance: 0.25, Scale: 2}
}

func TestConfigValidateAndSetDefaults(t *testing.T) {
	c := Config{Resolution: DefaultResolution}
	require.NoError(t, c.ValidateAndSetDefaults())
	assert.Equal(t, assign.AlgorithmExact, c.Algorithm)
	assert.Equal(t, DefaultStepsPerFrame, c.StepsPerFrame)
	assert.Equal(t, DefaultSpeed, c.Speed)
	assert.Equal(t, assign.DefaultMaxCells, c.MaxExactCells)
	assert.NotNil(t, c.Logger)
	w, h := c.FrameSize()
	assert.Equal(t, DefaultResolution*DefaultScale, w)
	assert.Equal(t, DefaultResolution*DefaultScale, h)

	// idempotent
	require.NoError(t, c.ValidateAndSetDefaults())

	seeded := Config{Resolution: 4, Seed: 7}
	require.NoError(t, seeded.ValidateAndSetDefaults())
	assert.Equal(t, int64(7), seeded.Physics.NoiseSeed)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero resolution", func(c *Config) { c.Resolution = 0 }},
		{"negative resolution", func(c *Config) { c.Resolution = -1 }},
		{"huge resolution", func(c *Config) { c.Resolution = 5000 }},
		{"proximity above one", func(c *Config) { c.ProximityImportance = 1.2 }},
		{"proximity negative", func(c *Config) { c.ProximityImportance = -0.1 }},
		{"unknown algorithm", func(c *Config) { c.Algorithm = "annealing" }},
		{"negative speed", func(c *Config) { c.Speed = -1 }},
		{"speed too high", func(c *Config) { c.Speed = 100 }},
		{"negative scale", func(c *Config) { c.Scale = -2 }},
		{"negative output", func(c *Config) { c.OutputWidth = -5 }},
		{"negative steps", func(c *Config) { c.StepsPerFrame = -1 }},
		{"bad genetic", func(c *Config) { c.Algorithm = assign.AlgorithmGenetic; c.Genetic.PopulationSize = 1 }},
		{"zero genetic params", func(c *Config) { c.Algorithm = assign.AlgorithmGenetic; c.Genetic = assign.GeneticParams{} }},
		{"zero generations", func(c *Config) { c.Algorithm = assign.AlgorithmGenetic; c.Genetic.Generations = 0 }},
		{"zero mutation rate", func(c *Config) { c.Algorithm = assign.AlgorithmGenetic; c.Genetic.MutationRate = 0 }},
		{"bad physics", func(c *Config) { c.Physics = DefaultConfig().Physics; c.Physics.MaxVelocity = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(&c)
			err := c.ValidateAndSetDefaults()
			assert.True(t, errors.Is(err, errors.ErrCodeInvalidConfig), "got %v", err)
		})
	}
}

func TestStartErrors(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(nil, nil, nil)
	small := imageOf(4, 2, palette(4)) // 8x8 pixels

	tests := []struct {
		name string
		cfg  Config
		code errors.Code
	}{
		{"invalid config", Config{Resolution: -3}, errors.ErrCodeInvalidConfig},
		{"zero resolution", Config{}, errors.ErrCodeInvalidConfig},
		{"image too small", Config{Resolution: 16}, errors.ErrCodeImageSizeMismatch},
		{"exact ceiling", Config{Resolution: 8, MaxExactCells: 32}, errors.ErrCodeSolverExceeded},
		{"frame too large", Config{Resolution: 4, OutputWidth: 5000, OutputHeight: 5000}, errors.ErrCodeRenderAllocation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := e.Start(ctx, small, small, tt.cfg)
			assert.Nil(t, h)
			assert.True(t, errors.Is(err, tt.code), "got %v", err)
		})
	}
}

func TestIdenticalImagesGiveIdentity(t *testing.T) {
	img := imageOf(2, 4, palette(2))
	h, err := NewEngine(nil, nil, nil).Start(context.Background(), img, img, testConfig(2))
	require.NoError(t, err)
	require.NoError(t, h.Wait(context.Background()))

	assert.Equal(t, assign.Assignment{0, 1, 2, 3}, h.Assignment())
	assert.Zero(t, h.Status().Cost)

	_, err = h.AdvanceAndRender(frameDT)
	require.NoError(t, err)
	assert.True(t, h.IsSettled(), "particles already on target should settle on the first frame")
}

func TestSwapFollowsColors(t *testing.T) {
	colors := palette(4)
	src := imageOf(4, 4, colors)
	dst := imageOf(4, 4, swapped(colors, 0, 5))
	cfg := testConfig(4)
	cfg.ProximityImportance = 0
	h, err := NewEngine(nil, nil, nil).Start(context.Background(), src, dst, cfg)
	require.NoError(t, err)
	require.NoError(t, h.Wait(context.Background()))

	a := h.Assignment()
	assert.Equal(t, 5, a[0])
	assert.Equal(t, 0, a[5])
	assert.Equal(t, 3, a[3])
}

func TestAdvanceBeforeSolveReturnsPreview(t *testing.T) {
	gate := make(chan struct{})
	cfg := testConfig(4)
	cfg.OnProgress = func(p Progress) {
		if p.Stage == StageSolving && p.Fraction == 0 {
			<-gate
		}
	}
	colors := palette(4)
	src := imageOf(4, 2, colors)
	dst := imageOf(4, 2, swapped(colors, 1, 2))

	h, err := NewEngine(nil, nil, nil).Start(context.Background(), src, dst, cfg)
	require.NoError(t, err)

	frame, err := h.AdvanceAndRender(frameDT)
	require.NoError(t, err)
	assert.False(t, h.Ready())
	assert.Nil(t, h.Assignment())
	assert.Equal(t, 0, h.Frame())
	assert.Equal(t, src.(*image.RGBA).Pix, frame.Pix, "preview should show the source grid")

	close(gate)
	require.NoError(t, h.Wait(context.Background()))
	assert.True(t, h.Ready())
	_, err = h.AdvanceAndRender(frameDT)
	require.NoError(t, err)
	assert.Equal(t, 1, h.Frame())
}

func TestCancel(t *testing.T) {
	img := imageOf(4, 2, palette(4))
	h, err := NewEngine(nil, nil, nil).Start(context.Background(), img, img, testConfig(4))
	require.NoError(t, err)
	require.NoError(t, h.Wait(context.Background()))

	h.Cancel()
	h.Cancel() // idempotent

	_, err = h.AdvanceAndRender(frameDT)
	assert.True(t, errors.Is(err, errors.ErrCodeCancelled), "got %v", err)
	assert.True(t, stderrors.Is(err, context.Canceled))
	assert.Nil(t, h.Assignment())
	assert.False(t, h.IsSettled())
	assert.Equal(t, StageCancelled, h.Status().Stage)
	assert.True(t, errors.Is(h.Wait(context.Background()), errors.ErrCodeCancelled))
}

func TestStartSupersedesInFlightMorph(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(nil, nil, nil)

	gate := make(chan struct{})
	var once sync.Once
	release := func() { once.Do(func() { close(gate) }) }
	defer release()

	colors := palette(4)
	first := testConfig(4)
	first.OnProgress = func(p Progress) {
		if p.Stage == StageSolving && p.Fraction == 0 {
			<-gate
		}
	}
	a, err := e.Start(ctx, imageOf(4, 2, colors), imageOf(4, 2, swapped(colors, 0, 15)), first)
	require.NoError(t, err)

	img := imageOf(4, 2, palette(4))
	b, err := e.Start(ctx, img, img, testConfig(4))
	require.NoError(t, err)
	assert.Same(t, b, e.Current())

	release()

	_, err = a.AdvanceAndRender(frameDT)
	assert.True(t, errors.Is(err, errors.ErrCodeCancelled), "superseded handle: got %v", err)
	assert.True(t, errors.Is(a.Wait(ctx), errors.ErrCodeCancelled))
	<-a.Done()
	assert.Nil(t, a.Assignment(), "superseded handle exposed an assignment")

	require.NoError(t, b.Wait(ctx))
	assert.Equal(t, assign.Identity(16), b.Assignment())
	assert.NotEqual(t, a.ID(), b.ID())

	frame, err := b.AdvanceAndRender(frameDT)
	require.NoError(t, err)
	assert.Equal(t, img.(*image.RGBA).Pix, frame.Pix, "new handle rendered state from the superseded morph")
}

func TestSpeedScalesSteps(t *testing.T) {
	tests := []struct {
		speed  float64
		frames int
		steps  int
	}{
		{0.25, 4, 2},
		{0.5, 3, 3},
		{1, 3, 6},
		{2, 2, 8},
	}
	colors := palette(3)
	src := imageOf(3, 2, colors)
	dst := imageOf(3, 2, swapped(colors, 0, 8))
	for _, tt := range tests {
		cfg := testConfig(3)
		cfg.Speed = tt.speed
		h, err := NewEngine(nil, nil, nil).Start(context.Background(), src, dst, cfg)
		require.NoError(t, err)
		require.NoError(t, h.Wait(context.Background()))
		for i := 0; i < tt.frames; i++ {
			_, err := h.AdvanceAndRender(frameDT)
			require.NoError(t, err)
		}
		st := h.Status()
		assert.Equal(t, tt.steps, st.Steps, "speed %v", tt.speed)
		assert.InDelta(t, float64(tt.frames)*frameDT.Seconds()*tt.speed, st.Elapsed, 1e-9, "speed %v", tt.speed)
	}
}

func TestRunUntilSettled(t *testing.T) {
	colors := palette(4)
	src := imageOf(4, 2, colors)
	dst := imageOf(4, 2, swapped(colors, 0, 2))
	h, err := NewEngine(nil, nil, nil).Start(context.Background(), src, dst, testConfig(4))
	require.NoError(t, err)

	frames := 0
	var last *image.RGBA
	err = Run(context.Background(), h, 60, func(f *image.RGBA) bool {
		frames++
		last = f
		return true
	})
	require.NoError(t, err)
	assert.True(t, h.IsSettled())
	assert.Less(t, frames, MaxRunFrames)
	assert.Equal(t, frames, h.Frame())
	assert.Equal(t, dst.(*image.RGBA).Pix, last.Pix, "settled frame should show the target")
}

func TestRunStopsWhenYieldReturnsFalse(t *testing.T) {
	colors := palette(4)
	h, err := NewEngine(nil, nil, nil).Start(context.Background(),
		imageOf(4, 2, colors), imageOf(4, 2, swapped(colors, 3, 12)), testConfig(4))
	require.NoError(t, err)

	frames := 0
	err = Run(context.Background(), h, 60, func(*image.RGBA) bool {
		frames++
		return frames < 3
	})
	require.NoError(t, err)
	assert.Equal(t, 3, frames)
}

func TestGeneticMorph(t *testing.T) {
	colors := palette(4)
	cfg := testConfig(4)
	cfg.Algorithm = assign.AlgorithmGenetic
	cfg.Genetic = assign.DefaultGeneticParams()
	cfg.Genetic.Generations = 40
	cfg.Seed = 3
	h, err := NewEngine(nil, nil, nil).Start(context.Background(),
		imageOf(4, 2, colors), imageOf(4, 2, swapped(colors, 1, 14)), cfg)
	require.NoError(t, err)
	require.NoError(t, h.Wait(context.Background()))
	assert.NoError(t, h.Assignment().Validate(16))
	assert.Positive(t, h.Status().Generations)
}

type cacheCounter struct {
	observability.NoopCacheHooks
	mu   sync.Mutex
	hits int
}

func (c *cacheCounter) OnCacheHit(context.Context, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits++
}

func TestAssignmentCache(t *testing.T) {
	counter := &cacheCounter{}
	observability.SetCacheHooks(counter)
	defer observability.Reset()

	fc, err := cache.NewFileCache(t.TempDir())
	require.NoError(t, err)

	colors := palette(4)
	src := imageOf(4, 2, colors)
	dst := imageOf(4, 2, swapped(colors, 2, 9))
	ctx := context.Background()

	first, err := NewEngine(fc, nil, nil).Start(ctx, src, dst, testConfig(4))
	require.NoError(t, err)
	require.NoError(t, first.Wait(ctx))
	assert.False(t, first.Status().CacheHit)

	progress := make(chan Progress, 16)
	cfg := testConfig(4)
	cfg.OnProgress = func(p Progress) { progress <- p }
	second, err := NewEngine(fc, nil, nil).Start(ctx, src, dst, cfg)
	require.NoError(t, err)
	require.NoError(t, second.Wait(ctx))

	assert.True(t, second.Status().CacheHit)
	assert.Equal(t, first.Assignment(), second.Assignment())
	assert.Equal(t, 1, counter.hits)

	close(progress)
	sawSolved := false
	for p := range progress {
		assert.NotEqual(t, StageSolving, p.Stage, "cache hit should skip solving")
		if p.Stage == StageSolved {
			sawSolved = p.CacheHit
		}
	}
	assert.True(t, sawSolved)

	// A different proximity importance is a different key.
	other := testConfig(4)
	other.ProximityImportance = 0.9
	third, err := NewEngine(fc, nil, nil).Start(ctx, src, dst, other)
	require.NoError(t, err)
	require.NoError(t, third.Wait(ctx))
	assert.False(t, third.Status().CacheHit)
}
