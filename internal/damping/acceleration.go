// Package damping animates displayed angles toward a moving target with the
// closed-form response of a critically damped second-order system:
//
//	x(t) = (x0 + (x0·δ + v0)·t)·e^(−δt)
//
// x is the remaining offset from the target and t is elapsed seconds divided
// by the configured factor. Past SettleTime the offset is zero.
package damping

import (
	"math"
	"time"

	"ahrs-ng/internal/rotation"
)

const (
	Decay      = 5.0
	SettleTime = 2.0

	MinFactor     = 0.01
	MaxFactor     = 10.0
	DefaultFactor = 1.0
)

// ClampFactor limits a time-to-target factor to [MinFactor, MaxFactor].
func ClampFactor(f float64) float64 {
	if math.IsNaN(f) || f <= 0 {
		return DefaultFactor
	}
	return math.Min(math.Max(f, MinFactor), MaxFactor)
}

// offset returns x(t) and dx/dt at scaled time t.
func offset(x0, v0, t float64) (x, v float64) {
	if t < 0 {
		return x0, v0
	}
	if t > SettleTime {
		return 0, 0
	}
	e := math.Exp(-Decay * t)
	k := x0*Decay + v0
	return (x0 + k*t) * e, (v0 - Decay*k*t) * e
}

// Acceleration smooths one angle in degrees. It is not safe for concurrent
// use; owners serialize access.
type Acceleration struct {
	factor float64
	target float64
	x0, v0 float64
	start  time.Time
}

func NewAcceleration(factor float64) *Acceleration {
	return &Acceleration{factor: ClampFactor(factor)}
}

func (a *Acceleration) elapsed(now time.Time) float64 {
	if a.start.IsZero() {
		return math.Inf(1)
	}
	return now.Sub(a.start).Seconds() / a.factor
}

// RotateTo retargets the animation. The position and velocity at now carry
// over, and the offset is taken along the shorter way around the circle.
func (a *Acceleration) RotateTo(target float64, now time.Time) {
	x, v := offset(a.x0, a.v0, a.elapsed(now))
	pos := a.target + x
	a.x0 = rotation.DegreeDifference(target, pos)
	a.v0 = v
	a.target = target
	a.start = now
}

// Position is a pure function of the time since the last RotateTo.
func (a *Acceleration) Position(now time.Time) float64 {
	x, _ := offset(a.x0, a.v0, a.elapsed(now))
	return a.target + x
}

func (a *Acceleration) Target() float64 { return a.target }

// Reset jumps to value with no motion.
func (a *Acceleration) Reset(value float64) {
	a.target = value
	a.x0, a.v0 = 0, 0
	a.start = time.Time{}
}
