package morph

import (
	"context"
	"image"

	"github.com/matzehuels/pixelmorph/pkg/errors"
)

// MaxRunFrames bounds Run: two minutes of animation at 60 fps.
const MaxRunFrames = 120 * DefaultFPS

// Run waits for h to be solved, then advances and renders frames at a fixed
// simulated frame rate and passes each to yield. It returns nil once the
// morph settles (after yielding the settled frame), when yield returns false
// or after MaxRunFrames frames; otherwise it returns the solve error, ctx's
// error or CANCELLED.
//
// Run does not pace frames in wall-clock time.
func Run(ctx context.Context, h *Handle, fps int, yield func(*image.RGBA) bool) error {
	if err := h.Wait(ctx); err != nil {
		return err
	}
	dt := FrameInterval(fps)
	for i := 0; i < MaxRunFrames; i++ {
		if err := ctx.Err(); err != nil {
			return errors.Cancelled(err, "morph %s interrupted", h.ID())
		}
		frame, err := h.AdvanceAndRender(dt)
		if err != nil {
			return err
		}
		if !yield(frame) || h.IsSettled() {
			return nil
		}
	}
	h.logger.Warn("morph did not settle", "frames", MaxRunFrames, "settled", h.Status().SettledCount)
	return nil
}
