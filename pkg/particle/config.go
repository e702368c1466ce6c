package particle

import (
	"runtime"

	"github.com/matzehuels/pixelmorph/pkg/errors"
)

// Default physics constants. A 64×64 random permutation settles within a few
// seconds of 120 Hz steps with these values.
const (
	DefaultDstForce          = 1e-5
	DefaultDstForceRate      = 5.0
	DefaultMaxVelocity       = 0.5
	DefaultDamping           = 0.97
	DefaultPersonalSpace     = 0.9
	DefaultRepulsionStrength = 0.05
	DefaultSettleEpsilon     = 0.05
	DefaultSettleVelocity    = 0.01

	// MaxForceFactor caps the destination force ramp.
	MaxForceFactor = 1000.0
)

// Config holds the physics parameters.
type Config struct {
	// DstForce scales the pull toward the target, k in k·Δ·|Δ|·factor(t).
	DstForce float64 `json:"dst_force" toml:"dst_force"`
	// DstForceRate sets how fast factor(t) = min((t·rate)³, 1000) ramps up.
	DstForceRate float64 `json:"dst_force_rate" toml:"dst_force_rate"`
	MaxVelocity  float64 `json:"max_velocity" toml:"max_velocity"`
	Damping      float64 `json:"damping" toml:"damping"`

	// PersonalSpace is the repulsion radius. Zero disables repulsion.
	// Repulsion is scaled by 1 - factor(t)/MaxForceFactor, so it vanishes
	// once the destination force saturates, like Swirl and Turbulence.
	// Without repulsion, swirl and turbulence each particle moves straight
	// to its target and its distance never grows.
	PersonalSpace     float64 `json:"personal_space" toml:"personal_space"`
	RepulsionStrength float64 `json:"repulsion_strength" toml:"repulsion_strength"`

	SettleEpsilon  float64 `json:"settle_epsilon" toml:"settle_epsilon"`
	SettleVelocity float64 `json:"settle_velocity" toml:"settle_velocity"`

	// Swirl adds a tangential force around each particle's target.
	Swirl float64 `json:"swirl" toml:"swirl"`
	// Turbulence adds a Perlin-noise force. Both fade out as the
	// destination force saturates.
	Turbulence float64 `json:"turbulence" toml:"turbulence"`
	NoiseSeed  int64   `json:"noise_seed" toml:"noise_seed"`

	// Workers is the number of goroutines per step. Zero uses GOMAXPROCS.
	Workers int `json:"workers" toml:"workers"`
}

// DefaultConfig returns the default physics.
func DefaultConfig() Config {
	return Config{
		DstForce:          DefaultDstForce,
		DstForceRate:      DefaultDstForceRate,
		MaxVelocity:       DefaultMaxVelocity,
		Damping:           DefaultDamping,
		PersonalSpace:     DefaultPersonalSpace,
		RepulsionStrength: DefaultRepulsionStrength,
		SettleEpsilon:     DefaultSettleEpsilon,
		SettleVelocity:    DefaultSettleVelocity,
	}
}

// Validate rejects non-physical parameters.
func (c Config) Validate() error {
	checks := []error{
		errors.ValidateNonNegative("dst force", c.DstForce),
		errors.ValidatePositiveFloat("dst force rate", c.DstForceRate),
		errors.ValidatePositiveFloat("max velocity", c.MaxVelocity),
		errors.ValidateUnitInterval("damping", c.Damping),
		errors.ValidateNonNegative("personal space", c.PersonalSpace),
		errors.ValidateNonNegative("repulsion strength", c.RepulsionStrength),
		errors.ValidatePositiveFloat("settle epsilon", c.SettleEpsilon),
		errors.ValidatePositiveFloat("settle velocity", c.SettleVelocity),
		errors.ValidateNonNegative("swirl", c.Swirl),
		errors.ValidateNonNegative("turbulence", c.Turbulence),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	if c.Workers < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "workers must not be negative, got %d", c.Workers)
	}
	return nil
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// ForceFactor returns the destination force ramp at elapsed time t seconds.
func (c Config) ForceFactor(t float64) float64 {
	x := t * c.DstForceRate
	return min(x*x*x, MaxForceFactor)
}
