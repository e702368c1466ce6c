package morph

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/pixelmorph/pkg/assign"
	"github.com/matzehuels/pixelmorph/pkg/errors"
	"github.com/matzehuels/pixelmorph/pkg/geom"
	"github.com/matzehuels/pixelmorph/pkg/grid"
	"github.com/matzehuels/pixelmorph/pkg/observability"
	"github.com/matzehuels/pixelmorph/pkg/particle"
	"github.com/matzehuels/pixelmorph/pkg/voronoi"
)

// Handle owns one morph: its grids, its assignment once solved, and its
// particle system. All methods are safe for concurrent use; frames are
// serialized internally.
type Handle struct {
	id       uuid.UUID
	cfg      Config
	logger   *log.Logger
	src, dst grid.Grid
	renderer *voronoi.Renderer
	solver   assign.Solver

	ctx        context.Context
	cancel     context.CancelCauseFunc
	cancelOnce sync.Once
	ready      chan struct{}

	mu         sync.Mutex
	stage      Stage
	solveErr   error
	result     *assign.Result
	cacheHit   bool
	sys        *particle.System
	frame      int
	stepBudget float64
	seeds      []voronoi.Seed
	scaleX     float64
	scaleY     float64
}

// Status is a snapshot of a morph.
type Status struct {
	ID           uuid.UUID `json:"id"`
	Stage        Stage     `json:"stage"`
	Resolution   int       `json:"resolution"`
	Algorithm    string    `json:"algorithm"`
	Frame        int       `json:"frame"`
	Steps        int       `json:"steps"`
	Particles    int       `json:"particles"`
	SettledCount int       `json:"settled_count"`
	Settled      bool      `json:"settled"`
	Cost         float64   `json:"cost"`
	Generations  int       `json:"generations,omitempty"`
	CacheHit     bool      `json:"cache_hit"`
	Elapsed      float64   `json:"elapsed"`
	Error        string    `json:"error,omitempty"`
}

// ID returns the morph id.
func (h *Handle) ID() uuid.UUID { return h.id }

// Config returns the validated configuration.
func (h *Handle) Config() Config { return h.cfg }

// Bounds returns the frame rectangle.
func (h *Handle) Bounds() image.Rectangle { return h.renderer.Bounds() }

// AdvanceAndRender advances the animation by dt and renders one frame.
//
// Before the assignment is solved it returns a preview of the source image
// without advancing. Afterwards each call runs StepsPerFrame×Speed physics
// steps of dt/StepsPerFrame seconds each; fractional steps carry over to the
// next call. It returns the solve error if solving failed and a CANCELLED
// error once the handle is cancelled or superseded.
func (h *Handle) AdvanceAndRender(dt time.Duration) (*image.RGBA, error) {
	start := time.Now()
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.cancelled(); err != nil {
		return nil, err
	}
	if !h.isReady() {
		return h.renderCells(h.src), nil
	}
	if h.solveErr != nil {
		return nil, h.solveErr
	}

	h.stepBudget += float64(h.cfg.StepsPerFrame) * h.cfg.Speed
	stepDT := dt.Seconds() / float64(h.cfg.StepsPerFrame)
	for h.stepBudget >= 1 {
		h.sys.Step(stepDT)
		h.stepBudget--
	}
	if h.sys.Settled() {
		h.stage = StageSettled
	} else {
		h.stage = StageAnimating
	}

	for i, p := range h.sys.Particles() {
		h.seeds[i] = voronoi.Seed{
			Position: geom.V(p.Position.X*h.scaleX, p.Position.Y*h.scaleY),
			Color:    grid.ToRGBA(p.Color()),
		}
	}
	frame := h.renderer.NewFrame()
	if err := h.renderer.Render(h.seeds, frame); err != nil {
		return nil, err
	}
	h.frame++
	observability.Morph().OnFrame(h.ctx, h.frame, h.sys.SettledCount(), time.Since(start))
	return frame, nil
}

// Preview renders the source grid, or the target grid when target is set.
func (h *Handle) Preview(target bool) *image.RGBA {
	h.mu.Lock()
	defer h.mu.Unlock()
	if target {
		return h.renderCells(h.dst)
	}
	return h.renderCells(h.src)
}

// renderCells draws g as its own Voronoi diagram, one seed per cell center.
func (h *Handle) renderCells(g grid.Grid) *image.RGBA {
	for i, c := range g.Cells {
		h.seeds[i] = voronoi.Seed{
			Position: geom.V(c.Position.X*h.scaleX, c.Position.Y*h.scaleY),
			Color:    grid.ToRGBA(c.Color),
		}
	}
	frame := h.renderer.NewFrame()
	_ = h.renderer.Render(h.seeds, frame)
	return frame
}

// Cancel aborts the solve or animation and releases the morph state.
// It is idempotent.
func (h *Handle) Cancel() {
	h.cancelWith(errors.Cancelled(context.Canceled, "morph %s cancelled", h.id))
}

func (h *Handle) supersede() {
	h.cancelWith(errors.Cancelled(context.Canceled, "morph %s superseded", h.id))
}

func (h *Handle) cancelWith(cause error) {
	h.cancelOnce.Do(func() {
		h.cancel(cause)
		h.mu.Lock()
		h.stage = StageCancelled
		h.sys = nil
		h.result = nil
		h.mu.Unlock()
		observability.Morph().OnCancel(context.WithoutCancel(h.ctx), h.id.String())
		h.logger.Debug("cancelled morph", "reason", errors.UserMessage(cause))
		report(h.cfg, Progress{ID: h.id, Stage: StageCancelled, Err: cause})
	})
}

// cancelled returns the cancellation cause, or nil. Callers hold h.mu.
func (h *Handle) cancelled() error {
	if h.ctx.Err() == nil {
		return nil
	}
	return context.Cause(h.ctx)
}

func (h *Handle) isReady() bool {
	select {
	case <-h.ready:
		return true
	default:
		return false
	}
}

// IsSettled reports whether every particle has settled on its target.
func (h *Handle) IsSettled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sys != nil && h.sys.Settled()
}

// Ready reports whether the assignment is solved and the animation can run.
func (h *Handle) Ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sys != nil
}

// Wait blocks until the solve finishes and returns its error, or until ctx
// is done or the handle is cancelled.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.ready:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.ctx.Done():
		return context.Cause(h.ctx)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.cancelled(); err != nil {
		return err
	}
	return h.solveErr
}

// Done is closed when the solve finishes, successfully or not.
func (h *Handle) Done() <-chan struct{} { return h.ready }

// Err returns the solve or cancellation error, if any.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.cancelled(); err != nil {
		return err
	}
	return h.solveErr
}

// Assignment returns a copy of the solved assignment, or nil before solving
// and after cancellation.
func (h *Handle) Assignment() assign.Assignment {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.result == nil {
		return nil
	}
	return h.result.Assignment.Clone()
}

// Frame returns the number of frames rendered since the solve completed.
func (h *Handle) Frame() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frame
}

// Status returns a snapshot of the morph.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := Status{
		ID:         h.id,
		Stage:      h.stage,
		Resolution: h.cfg.Resolution,
		Algorithm:  string(h.cfg.Algorithm),
		Frame:      h.frame,
		Particles:  h.src.Len(),
		CacheHit:   h.cacheHit,
	}
	if h.result != nil {
		s.Cost = h.result.Cost
		s.Generations = h.result.Generations
	}
	if h.sys != nil {
		s.Steps = h.sys.Steps()
		s.SettledCount = h.sys.SettledCount()
		s.Settled = h.sys.Settled()
		s.Elapsed = h.sys.Elapsed()
	}
	if err := h.cancelled(); err != nil {
		s.Error = errors.UserMessage(err)
	} else if h.solveErr != nil {
		s.Error = errors.UserMessage(h.solveErr)
	}
	return s
}

func (h *Handle) setStage(s Stage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctx.Err() == nil {
		h.stage = s
	}
}

// install publishes a solved assignment unless the handle was cancelled
// meanwhile, in which case the result is dropped.
func (h *Handle) install(res assign.Result, hit bool) error {
	sys, err := particle.New(h.src, h.dst, res.Assignment, h.cfg.Physics)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.cancelled(); err != nil {
		return err
	}
	h.result = &res
	h.cacheHit = hit
	h.sys = sys
	h.stage = StageSolved
	return nil
}

func (h *Handle) fail(err error) {
	h.mu.Lock()
	if h.cancelled() != nil {
		h.mu.Unlock()
		return
	}
	h.solveErr = err
	h.stage = StageFailed
	h.mu.Unlock()

	h.logger.Error("morph setup failed", "error", err)
	report(h.cfg, Progress{ID: h.id, Stage: StageFailed, Err: err})
}
