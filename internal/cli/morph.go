package cli

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/matzehuels/pixelmorph/pkg/assign"
	"github.com/matzehuels/pixelmorph/pkg/errors"
	"github.com/matzehuels/pixelmorph/pkg/grid"
	"github.com/matzehuels/pixelmorph/pkg/morph"
	"github.com/matzehuels/pixelmorph/pkg/record"
)

// morphOpts holds the command-line flags for the morph command. Zero values
// mean "not given"; loadConfig supplies the defaults.
type morphOpts struct {
	output      string  // GIF output path
	resolution  int     // grid side length
	proximity   float64 // spatial weight in [0, 1]
	algorithm   string  // exact or genetic
	speed       float64 // playback speed multiplier
	scale       int     // output pixels per cell
	seed        uint64  // solver and noise seed
	swirl       float64 // swirl motion strength
	turbulence  float64 // turbulence motion strength
	reverse     bool    // swap source and target
	crop        grid.CropScale
	maxSize     int  // longest input side after decoding
	fps         int  // simulated frame rate
	gifEvery    int  // record every Nth frame
	noCache     bool // disable the assignment cache
	redis       string
	interactive bool // show the TUI instead of a spinner
}

// morphCommand creates the morph command, which renders a morph to a GIF.
func (c *CLI) morphCommand() *cobra.Command {
	var opts morphOpts

	cmd := &cobra.Command{
		Use:   "morph SOURCE TARGET",
		Short: "Morph one image into another and record the animation as a GIF",
		Long: `Morph rearranges the pixels of SOURCE into TARGET.

Both images are cropped to a square, averaged onto a resolution×resolution
grid and matched cell by cell. The matched cells then travel to their
targets as particles until every particle has settled; each frame is
rendered as a Voronoi diagram of the particles and recorded to the output GIF.`,
		Example: `  pixelmorph morph cat.png dog.jpg -o cat-dog.gif
  pixelmorph morph a.png b.png --resolution 64 --algorithm genetic --speed 2
  pixelmorph morph a.png b.png --crop-scale 2 --crop-x -0.5 --interactive`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(c.configPath)
			if err != nil {
				return err
			}
			if err := opts.apply(cmd, &cfg); err != nil {
				return err
			}
			if opts.output == "" {
				opts.output = defaultOutput(args[0], args[1])
			}
			return c.runMorph(cmd.Context(), args[0], args[1], &opts, cfg)
		},
	}

	opts.register(cmd.Flags())

	return cmd
}

// register binds the morph flags to o.
func (o *morphOpts) register(f *pflag.FlagSet) {
	f.StringVarP(&o.output, "output", "o", "", "output GIF (default SOURCE-TARGET.gif)")
	f.IntVarP(&o.resolution, "resolution", "r", morph.DefaultResolution, "grid side length; the morph animates resolution² particles")
	f.Float64VarP(&o.proximity, "proximity", "p", morph.DefaultProximityImportance, "weight of spatial distance against color, in [0, 1]")
	f.StringVarP(&o.algorithm, "algorithm", "a", string(morph.DefaultAlgorithm), "assignment solver: exact, genetic")
	f.Float64Var(&o.speed, "speed", morph.DefaultSpeed, "playback speed: 0.25, 0.5, 1, 2")
	f.IntVar(&o.scale, "scale", morph.DefaultScale, "output pixels per grid cell")
	f.Uint64Var(&o.seed, "seed", 0, "seed for the genetic solver and turbulence (0 keeps defaults)")
	f.Float64Var(&o.swirl, "swirl", 0, "swirl motion strength")
	f.Float64Var(&o.turbulence, "turbulence", 0, "turbulence motion strength")
	f.BoolVar(&o.reverse, "reverse", false, "play the morph backwards (TARGET into SOURCE)")
	f.Float64Var(&o.crop.Scale, "crop-scale", 1, "zoom into the inputs, from 1 (whole square) to 5")
	f.Float64Var(&o.crop.X, "crop-x", 0, "horizontal crop offset, from -1 (left) to 1 (right)")
	f.Float64Var(&o.crop.Y, "crop-y", 0, "vertical crop offset, from -1 (top) to 1 (bottom)")
	f.IntVar(&o.maxSize, "max-size", defaultMaxSize, "downscale inputs so neither side exceeds this")
	f.IntVar(&o.fps, "fps", morph.DefaultFPS, "simulated frames per second")
	f.IntVar(&o.gifEvery, "gif-every", 2, "record every Nth frame to the GIF")
	f.BoolVar(&o.noCache, "no-cache", false, "disable the assignment cache")
	f.StringVar(&o.redis, "redis", "", "share solved assignments through redis at this address")
	f.BoolVarP(&o.interactive, "interactive", "i", false, "show interactive progress")
}

// apply layers flags given on the command line over cfg.
func (o *morphOpts) apply(cmd *cobra.Command, cfg *fileConfig) error {
	f := cmd.Flags()
	m := &cfg.Morph
	if f.Changed("resolution") {
		m.Resolution = o.resolution
	}
	if f.Changed("proximity") {
		m.ProximityImportance = o.proximity
	}
	if f.Changed("algorithm") {
		alg, err := assign.ParseAlgorithm(o.algorithm)
		if err != nil {
			return err
		}
		m.Algorithm = alg
	}
	if f.Changed("speed") {
		m.Speed = o.speed
	}
	if f.Changed("scale") {
		m.Scale = o.scale
	}
	if f.Changed("seed") {
		m.Seed = o.seed
	}
	if f.Changed("swirl") {
		m.Physics.Swirl = o.swirl
	}
	if f.Changed("turbulence") {
		m.Physics.Turbulence = o.turbulence
	}
	if f.Changed("crop-scale") {
		cfg.Input.Crop.Scale = o.crop.Scale
	}
	if f.Changed("crop-x") {
		cfg.Input.Crop.X = o.crop.X
	}
	if f.Changed("crop-y") {
		cfg.Input.Crop.Y = o.crop.Y
	}
	if f.Changed("max-size") {
		cfg.Input.MaxSize = o.maxSize
	}
	if f.Changed("fps") {
		cfg.Output.FPS = o.fps
	}
	if f.Changed("gif-every") {
		cfg.Output.GIFEvery = o.gifEvery
	}
	if o.noCache {
		cfg.Cache.Disabled = true
	}
	if o.redis != "" {
		cfg.Cache.Redis = o.redis
	}
	if cfg.Output.FPS <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "fps must be positive, got %d", cfg.Output.FPS)
	}
	if cfg.Input.MaxSize <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "max-size must be positive, got %d", cfg.Input.MaxSize)
	}
	return nil
}

// runMorph loads both inputs, runs the morph to completion and writes the GIF.
func (c *CLI) runMorph(ctx context.Context, source, target string, opts *morphOpts, cfg fileConfig) error {
	logger := loggerFromContext(ctx)

	src, err := loadInput(source, cfg.Input, logger)
	if err != nil {
		return err
	}
	dst, err := loadInput(target, cfg.Input, logger)
	if err != nil {
		return err
	}
	if opts.reverse {
		src, dst = dst, src
	}

	store, err := newCache(ctx, cfg.Cache)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer store.Close()

	engine := morph.NewEngine(store, nil, logger)
	defer engine.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var rep reporter
	if opts.interactive {
		rep = newTUIReporter(source, target, cancel)
	} else {
		rep = newSpinnerReporter(ctx)
	}

	mcfg := cfg.Morph
	mcfg.Logger = logger
	mcfg.OnProgress = logStages(logger, rep.progress)

	prog := newProgress(logger)
	h, err := engine.Start(ctx, src, dst, mcfg)
	if err != nil {
		rep.finish(err)
		return err
	}

	every := max(cfg.Output.GIFEvery, 1)
	rec := record.New(record.Options{
		Delay:    time.Duration(every) * morph.FrameInterval(cfg.Output.FPS),
		Every:    every,
		HoldLast: record.DefaultHoldLast,
	})
	rec.Seed(h.Preview(false), h.Preview(true))

	side := h.Config().Resolution
	err = morph.Run(ctx, h, cfg.Output.FPS, func(frame *image.RGBA) bool {
		settled := h.IsSettled()
		if settled {
			rec.AddLast(frame)
		} else {
			rec.Add(frame)
		}
		if n := h.Frame(); settled || n%every == 0 {
			rep.frame(h.Status(), frame, side)
		}
		return true
	})
	rep.finish(err)
	if err != nil {
		return err
	}
	if rep.interrupted() {
		return errors.Cancelled(context.Canceled, "morph interrupted")
	}

	if err := rec.Save(opts.output); err != nil {
		return fmt.Errorf("write %s: %w", opts.output, err)
	}

	s := h.Status()
	prog.done(fmt.Sprintf("Morphed %d particles", s.Particles))
	printSuccess("Morphed %s into %s", StyleHighlight.Render(filepath.Base(source)), StyleHighlight.Render(filepath.Base(target)))
	printMorphStats(s, rec.Len())
	if !s.Settled {
		printWarning("Stopped after %d frames with %d of %d particles settled", s.Frame, s.SettledCount, s.Particles)
	}
	printFile(opts.output)
	return nil
}

// loadInput decodes the image file at path and prepares it for sampling.
func loadInput(path string, cfg inputConfig, logger *log.Logger) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "open %s", path)
	}
	defer f.Close()

	img, err := decodeInput(f, path, cfg)
	if err != nil {
		return nil, err
	}
	logger.Debug("loaded input", "path", path, "side", img.Bounds().Dx())
	return img, nil
}

// defaultOutput names the GIF after both inputs.
func defaultOutput(source, target string) string {
	stem := func(p string) string {
		base := filepath.Base(p)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	return stem(source) + "-" + stem(target) + ".gif"
}

// =============================================================================
// Progress Reporting
// =============================================================================

// reporter shows morph progress either as a spinner or as the TUI.
type reporter interface {
	progress(morph.Progress)
	frame(s morph.Status, img *image.RGBA, side int)
	finish(err error)
	interrupted() bool
}

type spinnerReporter struct {
	spinner *Spinner
}

func newSpinnerReporter(ctx context.Context) *spinnerReporter {
	s := newSpinnerWithContext(ctx, "Sampling...")
	s.Start()
	return &spinnerReporter{spinner: s}
}

func (r *spinnerReporter) progress(p morph.Progress) {
	switch p.Stage {
	case morph.StageSolving:
		r.spinner.SetMessage(fmt.Sprintf("Solving assignment %3.0f%%", p.Fraction*100))
	case morph.StageSolved:
		r.spinner.SetMessage("Animating...")
	default:
		r.spinner.SetMessage(strings.ToUpper(string(p.Stage[:1])) + string(p.Stage[1:]) + "...")
	}
}

func (r *spinnerReporter) frame(s morph.Status, _ *image.RGBA, _ int) {
	r.spinner.SetMessage(fmt.Sprintf("Animating frame %d, %d/%d settled", s.Frame, s.SettledCount, s.Particles))
}

func (r *spinnerReporter) finish(err error) {
	if err != nil && !errors.Is(err, errors.ErrCodeCancelled) {
		r.spinner.StopWithError(errors.UserMessage(err))
		return
	}
	r.spinner.Stop()
}

func (r *spinnerReporter) interrupted() bool { return false }

type tuiReporter struct {
	program *tea.Program
	done    chan MorphModel
}

func newTUIReporter(source, target string, cancel func()) *tuiReporter {
	model := NewMorphModel(filepath.Base(source), filepath.Base(target), cancel)
	r := &tuiReporter{
		program: tea.NewProgram(model, tea.WithOutput(os.Stderr)),
		done:    make(chan MorphModel, 1),
	}
	go func() {
		final, err := r.program.Run()
		m, _ := final.(MorphModel)
		if err != nil {
			cancel()
		}
		r.done <- m
	}()
	return r
}

func (r *tuiReporter) progress(p morph.Progress) { r.program.Send(progressMsg(p)) }

func (r *tuiReporter) frame(s morph.Status, img *image.RGBA, side int) {
	r.program.Send(frameMsg{status: s, preview: newThumbnail(img, side)})
}

func (r *tuiReporter) finish(err error) {
	r.program.Send(doneMsg{err: err})
	m := <-r.done
	r.done <- m
}

func (r *tuiReporter) interrupted() bool {
	m := <-r.done
	r.done <- m
	return m.Interrupted()
}
