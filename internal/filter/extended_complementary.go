package filter

import "ahrs-ng/internal/rotation"

// ExtendedComplementaryGain scales the vector-error feedback in rad/s per
// unit error.
const ExtendedComplementaryGain = 0.01

// extendedComplementary corrects the gyroscope rate with the cross products
// between measured and predicted gravity and west directions, then integrates
// the corrected rate.
type extendedComplementary struct {
	gain float64

	readings accelMag
	ticker   gyroTicker
	estimate rotation.Quaternion
	seeded   bool
}

// vectorError returns the feedback error for estimate q: zero when the
// predicted up and west directions match the normalized measurements.
func vectorError(q rotation.Quaternion, accel, mag rotation.Vector) rotation.Vector {
	m := q.ToRotationMatrix()
	up := accel.NormalizeOr(rotation.Vector{})
	west := accel.Cross(mag).NormalizeOr(rotation.Vector{})
	predictedUp := m.Row3()
	predictedWest := m.Row1().Negate()
	return predictedUp.Cross(up).Add(predictedWest.Cross(west))
}

func (e *extendedComplementary) update(r reading) (rotation.Quaternion, bool) {
	if e.readings.store(r) || r.sensor != Gyroscope {
		return e.estimate, false
	}
	dt := e.ticker.tick(r.at)
	if !e.seeded {
		qam, ok := e.readings.quaternion()
		if !ok {
			return e.estimate, false
		}
		e.estimate = qam
		e.seeded = true
		return e.estimate, true
	}
	rate := r.vector
	if e.readings.ready() {
		rate = rate.Sub(vectorError(e.estimate, e.readings.accel, e.readings.mag).Scale(e.gain))
	}
	dq := rotation.RateQuaternion(e.estimate, rate).Scale(dt)
	e.estimate = e.estimate.Add(dq).NormalizeOr(e.estimate)
	return e.estimate, true
}

func (e *extendedComplementary) reset() {
	e.readings.reset()
	e.ticker.reset()
	e.estimate = rotation.Identity
	e.seeded = false
}
