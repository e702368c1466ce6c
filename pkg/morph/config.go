package morph

import (
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/pixelmorph/pkg/assign"
	"github.com/matzehuels/pixelmorph/pkg/cache"
	"github.com/matzehuels/pixelmorph/pkg/errors"
	"github.com/matzehuels/pixelmorph/pkg/particle"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI, server and library callers
// =============================================================================

const (
	// DefaultResolution is the default grid side length (1024 particles).
	DefaultResolution = 32

	// DefaultProximityImportance weights spatial distance against color.
	DefaultProximityImportance = 0.25

	// DefaultAlgorithm is the default assignment solver.
	DefaultAlgorithm = assign.AlgorithmExact

	// DefaultScale is the number of output pixels per grid cell.
	DefaultScale = 8

	// DefaultStepsPerFrame is the number of physics steps per rendered frame.
	DefaultStepsPerFrame = 2

	// DefaultSpeed is the playback speed multiplier.
	DefaultSpeed = 1.0

	// MaxSpeed bounds the playback speed multiplier.
	MaxSpeed = 8.0

	// DefaultFPS is the frame rate used by Run and the CLI recorder.
	DefaultFPS = 60
)

// Speeds are the playback presets offered by the CLI and TUI.
var Speeds = []float64{0.25, 0.5, 1, 2}

// =============================================================================
// Config - Morph Configuration
// =============================================================================

// Config configures one morph. It supports JSON so the HTTP server can accept
// it as a request body, and TOML for the CLI config file.
type Config struct {
	// Resolution is the grid side length R; the morph animates R² particles.
	// It must be positive.
	Resolution int `json:"resolution,omitempty" toml:"resolution"`

	// ProximityImportance in [0, 1] biases matches toward spatially close
	// cells. Zero matches on color alone.
	ProximityImportance float64 `json:"proximity_importance" toml:"proximity_importance"`

	// Algorithm selects the exact or genetic solver.
	Algorithm assign.Algorithm `json:"algorithm,omitempty" toml:"algorithm"`

	// Genetic tunes the genetic solver. Its population size, generations
	// and mutation rate must be positive when Algorithm is genetic.
	Genetic assign.GeneticParams `json:"genetic,omitempty" toml:"genetic"`

	// MaxExactCells is the exact solver's ceiling; larger grids fail with
	// SOLVER_RESOURCE_EXCEEDED. Zero uses assign.DefaultMaxCells.
	MaxExactCells int `json:"max_exact_cells,omitempty" toml:"max_exact_cells"`

	// Physics holds the particle parameters. The zero value uses
	// particle.DefaultConfig.
	Physics particle.Config `json:"physics,omitempty" toml:"physics"`

	// Scale is the number of output pixels per cell. OutputWidth and
	// OutputHeight override it when set.
	Scale        int `json:"scale,omitempty" toml:"scale"`
	OutputWidth  int `json:"output_width,omitempty" toml:"output_width"`
	OutputHeight int `json:"output_height,omitempty" toml:"output_height"`

	// StepsPerFrame is the number of physics steps per frame at speed 1.
	StepsPerFrame int `json:"steps_per_frame,omitempty" toml:"steps_per_frame"`

	// Speed multiplies playback speed; fractional step counts carry over
	// between frames.
	Speed float64 `json:"speed,omitempty" toml:"speed"`

	// Seed, when non-zero, seeds both the genetic solver and turbulence noise.
	Seed uint64 `json:"seed,omitempty" toml:"seed"`

	// Runtime options (not serialized)
	Logger *log.Logger `json:"-" toml:"-"`
	// OnProgress receives setup progress. It is called from the solving
	// goroutine and must not block for long.
	OnProgress func(Progress) `json:"-" toml:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
}

// DefaultConfig returns a fully populated default configuration.
func DefaultConfig() Config {
	return Config{
		Resolution:          DefaultResolution,
		ProximityImportance: DefaultProximityImportance,
		Algorithm:           DefaultAlgorithm,
		Genetic:             assign.DefaultGeneticParams(),
		Physics:             particle.DefaultConfig(),
		Scale:               DefaultScale,
		StepsPerFrame:       DefaultStepsPerFrame,
		Speed:               DefaultSpeed,
	}
}

// ValidateAndSetDefaults fills unset optional fields and rejects invalid ones
// with INVALID_CONFIG. Resolution and the genetic solver's population size,
// generations and mutation rate are never defaulted: zero is rejected like
// any other non-positive value, so start from [DefaultConfig].
// This method is idempotent.
func (c *Config) ValidateAndSetDefaults() error {
	if c.validated {
		return nil
	}
	if c.Algorithm == "" {
		c.Algorithm = DefaultAlgorithm
	}
	if c.Physics == (particle.Config{}) {
		c.Physics = particle.DefaultConfig()
	}
	if c.Scale == 0 {
		c.Scale = DefaultScale
	}
	if c.StepsPerFrame == 0 {
		c.StepsPerFrame = DefaultStepsPerFrame
	}
	if c.Speed == 0 {
		c.Speed = DefaultSpeed
	}
	if c.MaxExactCells == 0 {
		c.MaxExactCells = assign.DefaultMaxCells
	}
	if c.Seed != 0 {
		c.Genetic.Seed = c.Seed
		c.Physics.NoiseSeed = int64(c.Seed)
	}
	if c.Logger == nil {
		c.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}

	if err := errors.ValidateResolution(c.Resolution); err != nil {
		return err
	}
	if err := errors.ValidateUnitInterval("proximity importance", c.ProximityImportance); err != nil {
		return err
	}
	alg, err := assign.ParseAlgorithm(string(c.Algorithm))
	if err != nil {
		return err
	}
	c.Algorithm = alg
	if alg == assign.AlgorithmGenetic {
		if err := c.Genetic.ValidateAndSetDefaults(); err != nil {
			return err
		}
	}
	if err := c.Physics.Validate(); err != nil {
		return err
	}
	if err := errors.ValidatePositive("scale", c.Scale); err != nil {
		return err
	}
	if c.OutputWidth < 0 || c.OutputHeight < 0 {
		return errors.New(errors.ErrCodeInvalidConfig,
			"output size must not be negative, got %dx%d", c.OutputWidth, c.OutputHeight)
	}
	if err := errors.ValidatePositive("steps per frame", c.StepsPerFrame); err != nil {
		return err
	}
	if err := errors.ValidatePositiveFloat("speed", c.Speed); err != nil {
		return err
	}
	if c.Speed > MaxSpeed {
		return errors.New(errors.ErrCodeInvalidConfig, "speed must not exceed %v, got %v", MaxSpeed, c.Speed)
	}
	c.validated = true
	return nil
}

// Cells returns the number of particles, R².
func (c *Config) Cells() int { return c.Resolution * c.Resolution }

// FrameSize returns the output frame dimensions in pixels.
func (c *Config) FrameSize() (width, height int) {
	width, height = c.OutputWidth, c.OutputHeight
	if width == 0 {
		width = c.Resolution * c.Scale
	}
	if height == 0 {
		height = c.Resolution * c.Scale
	}
	return width, height
}

// FrameInterval returns the frame duration at fps frames per second.
func FrameInterval(fps int) time.Duration {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return time.Second / time.Duration(fps)
}

// AssignmentKeyOpts returns cache key options for the solve stage.
func (c *Config) AssignmentKeyOpts() cache.AssignmentKeyOpts {
	opts := cache.AssignmentKeyOpts{
		Algorithm:           string(c.Algorithm),
		ProximityImportance: c.ProximityImportance,
	}
	if c.Algorithm == assign.AlgorithmGenetic {
		g := c.Genetic
		g.Workers = 0 // results do not depend on parallelism
		opts.Params = g
	}
	return opts
}
