// Package morph coordinates a complete image morph.
//
// An [Engine] turns two images into an animation in four stages:
//
//  1. Sample: both images are reduced to R×R grids (package grid)
//  2. Cost: the N×N cost matrix between the grids is built (package cost)
//  3. Solve: a permutation minimizing total cost is found (package assign)
//  4. Animate: one particle per cell travels to its assigned target and every
//     frame is rendered as a nearest-particle diagram (packages particle and
//     voronoi)
//
// Sampling happens synchronously in [Engine.Start]; the cost and solve stages
// run in the background. Until they finish, [Handle.AdvanceAndRender] returns
// a preview of the source image.
//
// # Usage
//
//	engine := morph.NewEngine(nil, nil, logger)
//	h, err := engine.Start(ctx, src, dst, morph.Config{Resolution: 48})
//	if err != nil {
//	    return err
//	}
//	for !h.IsSettled() {
//	    frame, err := h.AdvanceAndRender(time.Second / 60)
//	    if err != nil {
//	        return err // solve failure or CANCELLED
//	    }
//	    show(frame)
//	}
//
// Starting a new morph on the same engine cancels the previous handle: its
// solve is aborted and its state released, and it answers CANCELLED from
// then on.
package morph
