// Package pkg provides the libraries behind pixelmorph, which animates one
// image turning into another by moving its pixels.
//
// # Overview
//
// Both images are averaged onto the same R×R grid. Every source cell is
// matched to exactly one target cell so that the total color and distance
// cost is minimal; the matched cells then travel to their targets as
// particles, and each frame is drawn as the Voronoi diagram of the particles.
//
// # Architecture
//
// The typical data flow through pixelmorph:
//
//	source image, target image
//	         ↓
//	    [grid] package (sample R×R cells)
//	         ↓
//	    [cost] package (pairwise color + distance costs)
//	         ↓
//	    [assign] package (exact or genetic assignment)
//	         ↓
//	    [particle] package (physics toward the targets)
//	         ↓
//	    [voronoi] package (jump-flood rendering)
//	         ↓
//	    RGBA frames → [record] GIF, HTTP PNG, terminal preview
//
// [morph] ties the stages together behind Engine.Start, Handle.AdvanceAndRender,
// Handle.Cancel and Handle.IsSettled.
//
// # Quick Start
//
//	engine := morph.NewEngine(nil, nil, logger)
//	h, err := engine.Start(ctx, src, dst, morph.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	rec := record.New(record.Options{})
//	err = morph.Run(ctx, h, morph.DefaultFPS, func(frame *image.RGBA) bool {
//	    rec.Add(frame)
//	    return true
//	})
//
// # Main Packages
//
// ## Core Domain Logic
//
// [grid] - Sampling of images into R×R cells with averaged colors, plus
// cropping and size limiting of inputs.
//
// [cost] - Cost matrices, dense (gonum) for small grids and computed on
// demand for large ones.
//
// [assign] - Assignment solvers: the exact Hungarian method and a genetic
// search for grids too large to solve exactly.
//
// [particle] - The particle system: attraction to targets, short-range
// repulsion, swirl and turbulence motion styles, settling.
//
// [voronoi] - Parallel jump-flood Voronoi rendering.
//
// ## Orchestration
//
// [morph] - Engine and handles: configuration defaults, background solving,
// supersession, cancellation and frame stepping.
//
// [record] - GIF encoding of rendered frames.
//
// ## Infrastructure
//
// [cache] - Assignment caching with file, Redis and null backends.
//
// [errors] - Coded errors shared by the library, CLI and HTTP server.
//
// [observability] - Hooks for solve, frame, cache and HTTP events.
//
// [buildinfo] - Version information injected at build time.
//
// # Testing
//
// Run tests:
//
//	go test ./pkg/...                    # All tests
//	go test ./pkg/assign/...             # Specific package
//	go test -run Example ./pkg/...       # Examples only
//	PIXELMORPH_TEST_REDIS=localhost:6379 go test ./pkg/cache/...
//
// [grid]: https://pkg.go.dev/github.com/matzehuels/pixelmorph/pkg/grid
// [cost]: https://pkg.go.dev/github.com/matzehuels/pixelmorph/pkg/cost
// [assign]: https://pkg.go.dev/github.com/matzehuels/pixelmorph/pkg/assign
// [particle]: https://pkg.go.dev/github.com/matzehuels/pixelmorph/pkg/particle
// [voronoi]: https://pkg.go.dev/github.com/matzehuels/pixelmorph/pkg/voronoi
// [morph]: https://pkg.go.dev/github.com/matzehuels/pixelmorph/pkg/morph
// [record]: https://pkg.go.dev/github.com/matzehuels/pixelmorph/pkg/record
// [cache]: https://pkg.go.dev/github.com/matzehuels/pixelmorph/pkg/cache
// [errors]: https://pkg.go.dev/github.com/matzehuels/pixelmorph/pkg/errors
// [observability]: https://pkg.go.dev/github.com/matzehuels/pixelmorph/pkg/observability
// [buildinfo]: https://pkg.go.dev/github.com/matzehuels/pixelmorph/pkg/buildinfo
package pkg
