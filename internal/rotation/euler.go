package rotation

import "math"

// EulerAngles holds radians: X is pitch, Y is roll, Z is azimuth.
type EulerAngles struct {
	X, Y, Z float64
}

// NewEulerAngles takes angles in degrees.
func NewEulerAngles(azimuthDeg, pitchDeg, rollDeg float64) EulerAngles {
	return EulerAngles{X: ToRadians(pitchDeg), Y: ToRadians(rollDeg), Z: ToRadians(azimuthDeg)}
}

func (e EulerAngles) Pitch() float64   { return e.X }
func (e EulerAngles) Roll() float64    { return e.Y }
func (e EulerAngles) Azimuth() float64 { return e.Z }

// ToQuaternion composes qz(-azimuth) ⊗ qx(-pitch) ⊗ qy(-roll).
func (e EulerAngles) ToQuaternion() Quaternion {
	qz := AxisAngle(Vector{Z: 1}, -e.Z)
	qx := AxisAngle(Vector{X: 1}, -e.X)
	qy := AxisAngle(Vector{Y: 1}, -e.Y)
	return qz.Multiply(qx).Multiply(qy).Normalize()
}

// ToRotationMatrix composes Rz(-azimuth)·Rx(-pitch)·Ry(-roll) in closed form.
func (e EulerAngles) ToRotationMatrix() RotationMatrix {
	sp, cp := math.Sincos(e.X)
	sr, cr := math.Sincos(e.Y)
	sa, ca := math.Sincos(e.Z)
	return RotationMatrix{
		M11: ca*cr + sa*sp*sr, M12: sa * cp, M13: -ca*sr + sa*sp*cr,
		M21: -sa*cr + ca*sp*sr, M22: ca * cp, M23: sa*sr + ca*sp*cr,
		M31: cp * sr, M32: -sp, M33: cp * cr,
	}
}
