// Package particle animates one particle per assigned cell pair.
//
// Every particle starts on its source cell and is pulled toward its target
// cell by a destination force that ramps up over time, pushed away from
// close neighbours, damped and speed-limited. A step that would reach or pass
// the target stops on it instead, so particles never overshoot. The [System]
// double-buffers its particles: a step reads only the current snapshot and
// writes the next one, then swaps, so the update is free of read/write races
// without locks.
//
// Coordinates are grid units (see package geom); velocities are grid units
// per step.
package particle

import (
	"github.com/lucasb-eyer/go-colorful"

	"github.com/matzehuels/pixelmorph/pkg/geom"
)

// Phase is the lifecycle state of a particle.
type Phase uint8

const (
	Initialized Phase = iota
	Animating
	Settled
)

func (p Phase) String() string {
	switch p {
	case Initialized:
		return "initialized"
	case Animating:
		return "animating"
	case Settled:
		return "settled"
	}
	return "unknown"
}

// Particle is one moving cell.
type Particle struct {
	Position geom.Vec2
	Velocity geom.Vec2
	Start    geom.Vec2
	Target   geom.Vec2

	SourceColor colorful.Color
	TargetColor colorful.Color

	Phase Phase
}

// Progress returns how far the particle has travelled toward its target,
// 0 at the start and 1 on arrival. Particles whose start equals their target
// report 1.
func (p Particle) Progress() float64 {
	total := p.Start.Dist(p.Target)
	if total < 1e-12 {
		return 1
	}
	return min(max(1-p.Position.Dist(p.Target)/total, 0), 1)
}

// Color blends the source and target colors by travel progress. Settled
// particles show their target color.
func (p Particle) Color() colorful.Color {
	if p.Phase == Settled {
		return p.TargetColor
	}
	return p.SourceColor.BlendRgb(p.TargetColor, p.Progress())
}
