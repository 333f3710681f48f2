package rotation

import "math"

// StandardGravity in m/s².
const StandardGravity = 9.81

const (
	freeFallFraction       = 0.01
	minFluxCrossNormSq     = 0.01
	minAngularVelocityNorm = 1e-7
)

// FromAccelerationMagnetometer returns the sensor→earth matrix whose rows are
// east, north and up in sensor coordinates. It fails in free fall
// (|a|² < 0.01·g²) and when the field is nearly parallel to gravity
// (|m×a|² < 0.01), e.g. close to a magnetic pole.
func FromAccelerationMagnetometer(a, m Vector) (RotationMatrix, bool) {
	if a.NormSquared() < freeFallFraction*StandardGravity*StandardGravity {
		return RotationMatrix{}, false
	}
	h := m.Cross(a)
	if h.NormSquared() < minFluxCrossNormSq {
		return RotationMatrix{}, false
	}
	east := h.Normalize()
	up := a.Normalize()
	north := up.Cross(east)
	return NewRotationMatrixFromRows(east, north, up), true
}

// QuaternionFromAccelerationMagnetometer is FromAccelerationMagnetometer in
// quaternion form, returning fallback on failure.
func QuaternionFromAccelerationMagnetometer(a, m Vector, fallback Quaternion) (Quaternion, bool) {
	r, ok := FromAccelerationMagnetometer(a, m)
	if !ok {
		return fallback, false
	}
	return r.ToQuaternion(), true
}

// FromGyro integrates the body rate omega (rad/s) over dt seconds with the
// quaternion exponential of v = ½·ω·dt. Very small rates use the first-order
// term instead of dividing by |ω|.
func FromGyro(omega Vector, dt float64) Quaternion {
	v := omega.Scale(dt / 2)
	if omega.Norm() < minAngularVelocityNorm {
		return Quaternion{X: v.X, Y: v.Y, Z: v.Z, S: 1}.Normalize()
	}
	angle := v.Norm()
	if angle < zeroNormTolerance {
		return Identity
	}
	s := math.Sin(angle) / angle
	return Quaternion{X: v.X * s, Y: v.Y * s, Z: v.Z * s, S: math.Cos(angle)}
}

// RateQuaternion returns dq/dt = ½·q ⊗ (ω, 0).
func RateQuaternion(q Quaternion, omega Vector) Quaternion {
	return q.Multiply(omega.AsQuaternion()).Scale(0.5)
}
