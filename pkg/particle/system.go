package particle

import (
	"math"
	"sync"

	"github.com/aquilax/go-perlin"

	"github.com/matzehuels/pixelmorph/pkg/assign"
	"github.com/matzehuels/pixelmorph/pkg/errors"
	"github.com/matzehuels/pixelmorph/pkg/geom"
	"github.com/matzehuels/pixelmorph/pkg/grid"
)

// noiseScale maps grid units to Perlin input space.
const noiseScale = 0.35

// System is the simulation state of one morph.
//
// A System is not safe for concurrent use: one goroutine drives Step and
// reads Particles between steps. Step itself fans out across Workers
// goroutines internally.
type System struct {
	cfg       Config
	cur, next []Particle
	hash      *spatialHash
	noise     *perlin.Perlin

	elapsed float64
	steps   int
	settled int
}

// New places particle i on source cell i, aimed at target cell a[i].
func New(src, dst grid.Grid, a assign.Assignment, cfg Config) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := src.Len()
	if dst.Len() != n {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "grid cell counts differ: %d vs %d", n, dst.Len())
	}
	if err := a.Validate(n); err != nil {
		return nil, err
	}

	s := &System{
		cfg:  cfg,
		cur:  make([]Particle, n),
		next: make([]Particle, n),
	}
	for i, c := range src.Cells {
		t := dst.Cells[a[i]]
		s.cur[i] = Particle{
			Position:    c.Position,
			Start:       c.Position,
			Target:      t.Position,
			SourceColor: c.Color,
			TargetColor: t.Color,
			Phase:       Initialized,
		}
	}
	if cfg.PersonalSpace > 0 && cfg.RepulsionStrength > 0 {
		s.hash = newSpatialHash(cfg.PersonalSpace)
	}
	if cfg.Turbulence > 0 {
		s.noise = perlin.NewPerlin(2, 2, 3, cfg.NoiseSeed)
	}
	return s, nil
}

// Particles returns the current snapshot. It must not be modified and is
// only valid until the next Step.
func (s *System) Particles() []Particle { return s.cur }

// Len returns the number of particles.
func (s *System) Len() int { return len(s.cur) }

// Elapsed returns the simulated time in seconds.
func (s *System) Elapsed() float64 { return s.elapsed }

// Steps returns the number of integration steps taken.
func (s *System) Steps() int { return s.steps }

// SettledCount returns how many particles were settled after the last step.
func (s *System) SettledCount() int { return s.settled }

// Settled reports whether every particle is settled.
func (s *System) Settled() bool { return s.steps > 0 && s.settled == len(s.cur) }

// Config returns the physics parameters.
func (s *System) Config() Config { return s.cfg }

// Step advances the simulation by dt seconds.
//
// The destination force ramps with the elapsed time; dt does not scale
// velocities, which are per step.
func (s *System) Step(dt float64) {
	s.elapsed += dt
	if s.hash != nil {
		s.hash.rebuild(s.cur)
	}
	factor := s.cfg.ForceFactor(s.elapsed)
	fade := 1 - factor/MaxForceFactor

	n := len(s.cur)
	workers := min(s.cfg.workers(), max(n, 1))
	chunk := (n + workers - 1) / workers
	counts := make([]int, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo, hi := w*chunk, min((w+1)*chunk, n)
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				s.next[i] = s.integrate(i, factor, fade)
				if s.next[i].Phase == Settled {
					counts[w]++
				}
			}
		}()
	}
	wg.Wait()

	s.cur, s.next = s.next, s.cur
	s.steps++
	s.settled = 0
	for _, c := range counts {
		s.settled += c
	}
}

// integrate computes particle i of the next buffer from the current one.
func (s *System) integrate(i int, factor, fade float64) Particle {
	p := s.cur[i]
	diff := p.Target.Sub(p.Position)
	dist := diff.Len()

	force := diff.Scale(s.cfg.DstForce * dist * factor)
	if s.hash != nil && fade > 0 {
		force = force.Add(s.repulsion(i).Scale(fade))
	}
	if fade > 0 && dist > 1e-9 {
		if s.cfg.Swirl > 0 {
			force = force.Add(diff.Perp().Scale(s.cfg.Swirl * fade / dist))
		}
		if s.noise != nil {
			angle := s.noise.Noise3D(p.Position.X*noiseScale, p.Position.Y*noiseScale, s.elapsed) * 2 * math.Pi
			force = force.Add(geom.V(math.Cos(angle), math.Sin(angle)).Scale(s.cfg.Turbulence * fade))
		}
	}

	v := p.Velocity.Scale(s.cfg.Damping).Add(force).ClampLen(s.cfg.MaxVelocity)
	if arrived, side := arrive(diff, dist, v); arrived {
		// Stop on the target and keep only the sideways motion.
		p.Velocity = side
		p.Position = p.Target.Add(side)
	} else {
		p.Velocity = v
		p.Position = p.Position.Add(v)
	}

	if p.Position.Dist(p.Target) < s.cfg.SettleEpsilon && p.Velocity.Len() < s.cfg.SettleVelocity {
		p.Phase = Settled
	} else {
		p.Phase = Animating
	}
	return p
}

// arrive reports whether velocity v carries a particle that is dist away
// from its target along diff onto or past the target. It also returns the
// part of v perpendicular to diff.
func arrive(diff geom.Vec2, dist float64, v geom.Vec2) (bool, geom.Vec2) {
	if dist <= 0 {
		return false, v
	}
	u := diff.Scale(1 / dist)
	along := v.Dot(u)
	if along < dist {
		return false, v
	}
	return true, v.Sub(u.Scale(along))
}

// repulsion sums the push from neighbours closer than the personal space.
func (s *System) repulsion(i int) geom.Vec2 {
	ps := s.cfg.PersonalSpace
	pi := s.cur[i].Position
	var sum geom.Vec2
	s.hash.neighbors(pi, func(j int) {
		if j == i {
			return
		}
		delta := s.cur[j].Position.Sub(pi)
		d := delta.Len()
		if d <= 0 || d >= ps {
			return
		}
		w := (ps - d) / (d * ps)
		sum = sum.Add(delta.Scale(w / d))
	})
	return sum.Scale(-s.cfg.RepulsionStrength)
}
