package morph

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/pixelmorph/pkg/assign"
	"github.com/matzehuels/pixelmorph/pkg/cache"
	"github.com/matzehuels/pixelmorph/pkg/cost"
	"github.com/matzehuels/pixelmorph/pkg/errors"
	"github.com/matzehuels/pixelmorph/pkg/grid"
	"github.com/matzehuels/pixelmorph/pkg/observability"
	"github.com/matzehuels/pixelmorph/pkg/voronoi"
)

// Engine runs at most one morph at a time.
//
// The Engine is stateless apart from its current handle, cache and logger.
// Servers that need several concurrent morphs use one Engine per session.
type Engine struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger

	mu      sync.Mutex
	current *Handle
}

// NewEngine creates an engine with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewEngine(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Engine {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		Cache:  cache.NewInstrumented(c, "assignment"),
		Keyer:  keyer,
		Logger: logger,
	}
}

// Start begins a morph from src to dst and supersedes the current one.
//
// Configuration, sampling, solver ceiling and frame allocation errors are
// returned directly. The cost and solve stages run in the background;
// their errors surface through the handle. ctx scopes the setup only: the
// morph keeps running after ctx is done until it is cancelled or superseded.
func (e *Engine) Start(ctx context.Context, src, dst image.Image, cfg Config) (*Handle, error) {
	if cfg.Logger == nil {
		cfg.Logger = e.Logger
	}
	if err := cfg.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	e.mu.Lock()
	prev := e.current
	e.current = nil
	e.mu.Unlock()
	if prev != nil {
		prev.supersede()
	}

	h, err := newHandle(ctx, src, dst, cfg)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	raced := e.current
	e.current = h
	e.mu.Unlock()
	if raced != nil {
		raced.supersede()
	}

	go h.run(e.Cache, e.Keyer)
	return h, nil
}

// Current returns the active handle, or nil.
func (e *Engine) Current() *Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Close cancels the active morph.
func (e *Engine) Close() {
	e.mu.Lock()
	h := e.current
	e.current = nil
	e.mu.Unlock()
	if h != nil {
		h.Cancel()
	}
}

func newHandle(ctx context.Context, src, dst image.Image, cfg Config) (*Handle, error) {
	id := uuid.New()
	logger := cfg.Logger.With("morph", id.String()[:8])
	report(cfg, Progress{ID: id, Stage: StageSampling})

	srcGrid, err := grid.Sample(src, cfg.Resolution)
	if err != nil {
		return nil, fmt.Errorf("sample source: %w", err)
	}
	dstGrid, err := grid.Sample(dst, cfg.Resolution)
	if err != nil {
		return nil, fmt.Errorf("sample target: %w", err)
	}
	report(cfg, Progress{ID: id, Stage: StageSampling, Fraction: 1})

	if cfg.Algorithm == assign.AlgorithmExact && cfg.MaxExactCells > 0 && cfg.Cells() > cfg.MaxExactCells {
		return nil, errors.New(errors.ErrCodeSolverExceeded,
			"exact solver limited to %d cells, resolution %d needs %d; use the genetic solver or a lower resolution",
			cfg.MaxExactCells, cfg.Resolution, cfg.Cells())
	}

	width, height := cfg.FrameSize()
	renderer, err := voronoi.NewRenderer(width, height, voronoi.Options{})
	if err != nil {
		return nil, err
	}

	hctx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	h := &Handle{
		id:       id,
		cfg:      cfg,
		logger:   logger,
		src:      srcGrid,
		dst:      dstGrid,
		renderer: renderer,
		ctx:      hctx,
		cancel:   cancel,
		ready:    make(chan struct{}),
		stage:    StageCost,
		seeds:    make([]voronoi.Seed, srcGrid.Len()),
		scaleX:   float64(width) / float64(cfg.Resolution),
		scaleY:   float64(height) / float64(cfg.Resolution),
	}
	h.solver, err = assign.New(cfg.Algorithm, assign.Options{
		MaxExactCells: cfg.MaxExactCells,
		Genetic:       cfg.Genetic,
		Progress: func(f float64) {
			report(cfg, Progress{ID: id, Stage: StageSolving, Fraction: f})
		},
	})
	if err != nil {
		cancel(nil)
		return nil, err
	}
	logger.Debug("started morph",
		"resolution", cfg.Resolution,
		"algorithm", cfg.Algorithm,
		"frame", fmt.Sprintf("%dx%d", width, height))
	return h, nil
}

func report(cfg Config, p Progress) {
	if cfg.OnProgress != nil {
		cfg.OnProgress(p)
	}
}

// run builds the cost matrix and solves it, or loads the assignment from
// the cache, then installs the particle system.
func (h *Handle) run(c cache.Cache, keyer cache.Keyer) {
	defer close(h.ready)

	start := time.Now()
	res, hit, err := h.assignment(c, keyer)
	if err == nil {
		err = h.install(res, hit)
	}
	if err != nil {
		h.fail(err)
		return
	}
	h.logger.Info("solved assignment",
		"cells", len(res.Assignment),
		"cost", res.Cost,
		"cached", hit,
		"duration", time.Since(start))
	report(h.cfg, Progress{ID: h.id, Stage: StageSolved, Fraction: 1, CacheHit: hit})
}

type cachedAssignment struct {
	Assignment  []int   `json:"assignment"`
	Cost        float64 `json:"cost"`
	Generations int     `json:"generations,omitempty"`
}

func (h *Handle) assignment(c cache.Cache, keyer cache.Keyer) (assign.Result, bool, error) {
	ctx := h.ctx
	key := keyer.AssignmentKey(gridsHash(h.src, h.dst), h.cfg.AssignmentKeyOpts())
	if data, ok, err := c.Get(ctx, key); err != nil {
		h.logger.Warn("assignment cache read failed", "error", err)
	} else if ok {
		var cached cachedAssignment
		if err := json.Unmarshal(data, &cached); err == nil && assign.Assignment(cached.Assignment).Validate(h.src.Len()) == nil {
			return assign.Result{
				Assignment:  cached.Assignment,
				Cost:        cached.Cost,
				Generations: cached.Generations,
			}, true, nil
		}
		h.logger.Warn("ignoring invalid cached assignment", "key", key)
	}

	report(h.cfg, Progress{ID: h.id, Stage: StageCost})
	m, err := cost.Build(ctx, h.src, h.dst, h.cfg.ProximityImportance)
	if err != nil {
		return assign.Result{}, false, fmt.Errorf("build cost matrix: %w", err)
	}
	report(h.cfg, Progress{ID: h.id, Stage: StageCost, Fraction: 1})

	report(h.cfg, Progress{ID: h.id, Stage: StageSolving})
	h.setStage(StageSolving)
	alg := string(h.cfg.Algorithm)
	observability.Morph().OnSolveStart(ctx, alg, m.Size())
	start := time.Now()
	res, err := h.solver.Solve(ctx, m)
	observability.Morph().OnSolveComplete(ctx, alg, res.Cost, time.Since(start), err)
	if err != nil {
		return assign.Result{}, false, fmt.Errorf("solve: %w", err)
	}

	data, err := json.Marshal(cachedAssignment{
		Assignment:  res.Assignment,
		Cost:        res.Cost,
		Generations: res.Generations,
	})
	if err == nil {
		if err := c.Set(ctx, key, data, cache.DefaultTTL); err != nil {
			h.logger.Warn("assignment cache write failed", "error", err)
		}
	}
	return res, false, nil
}

// gridsHash fingerprints a grid pair by the exact bits of every cell.
func gridsHash(src, dst grid.Grid) string {
	d := cache.NewDigest().Uint64(uint64(src.Resolution))
	for _, g := range []grid.Grid{src, dst} {
		for _, c := range g.Cells {
			d.Float64(c.Position.X, c.Position.Y, c.Color.R, c.Color.G, c.Color.B)
		}
	}
	return d.Sum()
}
