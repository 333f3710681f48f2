package damping

import (
	"math"
	"time"

	"ahrs-ng/internal/rotation"
)

// QuaternionAcceleration drives the SLERP parameter from the previous
// position to the new target with the same damped response as Acceleration.
type QuaternionAcceleration struct {
	factor   float64
	from, to rotation.Quaternion
	start    time.Time
}

func NewQuaternionAcceleration(factor float64) *QuaternionAcceleration {
	return &QuaternionAcceleration{
		factor: ClampFactor(factor),
		from:   rotation.Identity,
		to:     rotation.Identity,
	}
}

func (a *QuaternionAcceleration) fraction(now time.Time) float64 {
	if a.start.IsZero() {
		return 1
	}
	x, _ := offset(1, 0, now.Sub(a.start).Seconds()/a.factor)
	return math.Min(math.Max(1-x, 0), 1)
}

func (a *QuaternionAcceleration) RotateTo(target rotation.Quaternion, now time.Time) {
	a.from = a.Position(now)
	a.to = target.Normalize()
	a.start = now
}

func (a *QuaternionAcceleration) Position(now time.Time) rotation.Quaternion {
	return rotation.Slerp(a.from, a.to, a.fraction(now))
}

func (a *QuaternionAcceleration) Target() rotation.Quaternion { return a.to }

func (a *QuaternionAcceleration) Reset(q rotation.Quaternion) {
	a.from = q.Normalize()
	a.to = a.from
	a.start = time.Time{}
}
