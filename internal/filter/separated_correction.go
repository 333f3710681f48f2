package filter

import (
	"math"

	"ahrs-ng/internal/rotation"
)

// separatedCorrection predicts with the gyroscope, then applies independent
// gravity and heading corrections, each capped at min(angle·λ1, λ2) radians.
type separatedCorrection struct {
	lambda1, lambda2 float64
	mode             SeparatedCorrectionMode

	readings accelMag
	ticker   gyroTicker
	estimate rotation.Quaternion
	seeded   bool
}

func newSeparatedCorrection(opts Options) *separatedCorrection {
	return &separatedCorrection{
		lambda1:  opts.Lambda1,
		lambda2:  opts.Lambda2,
		mode:     opts.SeparatedCorrectionMode,
		estimate: rotation.Identity,
	}
}

func (c *separatedCorrection) capped(angle float64) float64 {
	return math.Copysign(math.Min(math.Abs(angle)*c.lambda1, c.lambda2), angle)
}

// correctionVector returns the rotation vector (axis·angle, sensor frame) that
// moves the predicted up and flux directions toward the measured ones.
func (c *separatedCorrection) correctionVector(predicted rotation.Quaternion, accel, mag rotation.Vector) rotation.Vector {
	a := accel.NormalizeOr(rotation.Vector{})
	if a.NormSquared() == 0 {
		return rotation.Vector{}
	}
	r := predicted.ToRotationMatrix()
	up := r.Row3()

	var total rotation.Vector
	axis := a.Cross(up)
	if sin := axis.Norm(); sin > zeroAngle {
		angle := math.Atan2(sin, a.Dot(up))
		total = total.Add(axis.Scale(c.capped(angle) / sin))
	}

	// Flux predicted from the gyro-propagated orientation.
	h := mag.Transform(r)
	b := rotation.NewVector(0, math.Hypot(h.X, h.Y), h.Z)
	predictedFlux := b.Transform(r.Transpose())
	measured := mag.Sub(up.Scale(mag.Dot(up)))
	expected := predictedFlux.Sub(up.Scale(predictedFlux.Dot(up)))
	if measured.NormSquared() > zeroAngle && expected.NormSquared() > zeroAngle {
		heading := math.Atan2(up.Dot(measured.Cross(expected)), measured.Dot(expected))
		total = total.Add(up.Scale(c.capped(heading)))
	}
	return total
}

// correctionQuaternion turns a small rotation vector into a unit quaternion.
func (c *separatedCorrection) correctionQuaternion(v rotation.Vector) rotation.Quaternion {
	half := v.Scale(0.5)
	s := 1.0
	if c.mode == SCF {
		// Large corrections would make the radicand negative.
		s = math.Sqrt(math.Max(0, 1-half.NormSquared()))
	}
	return rotation.NewQuaternion(half.X, half.Y, half.Z, s).Normalize()
}

func (c *separatedCorrection) update(r reading) (rotation.Quaternion, bool) {
	if c.readings.store(r) || r.sensor != Gyroscope {
		return c.estimate, false
	}
	dt := c.ticker.tick(r.at)
	if !c.seeded {
		qam, ok := c.readings.quaternion()
		if !ok {
			return c.estimate, false
		}
		c.estimate = qam
		c.seeded = true
		return c.estimate, true
	}
	predicted := c.estimate.Multiply(rotation.FromGyro(r.vector, dt)).Normalize()
	if c.readings.ready() {
		v := c.correctionVector(predicted, c.readings.accel, c.readings.mag)
		predicted = predicted.Multiply(c.correctionQuaternion(v)).Normalize()
	}
	c.estimate = predicted
	return c.estimate, true
}

func (c *separatedCorrection) reset() {
	c.readings.reset()
	c.ticker.reset()
	c.estimate = rotation.Identity
	c.seeded = false
}

const zeroAngle = 1e-12
