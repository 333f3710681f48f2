package rotation

import "math"

// RotationMatrix is an orthonormal 3x3 matrix mapping sensor-frame vectors to
// the earth frame (x east, y north, z up). Rows are the earth axes expressed
// in sensor coordinates.
type RotationMatrix struct {
	M11, M12, M13 float64
	M21, M22, M23 float64
	M31, M32, M33 float64
}

// IdentityMatrix is the matrix form of Identity.
var IdentityMatrix = RotationMatrix{M11: 1, M22: 1, M33: 1}

// NewRotationMatrixFromRows builds a matrix from three row vectors.
func NewRotationMatrixFromRows(r1, r2, r3 Vector) RotationMatrix {
	return RotationMatrix{
		M11: r1.X, M12: r1.Y, M13: r1.Z,
		M21: r2.X, M22: r2.Y, M23: r2.Z,
		M31: r3.X, M32: r3.Y, M33: r3.Z,
	}
}

// Row1, Row2 and Row3 return the east, north and up axes in sensor
// coordinates.
func (m RotationMatrix) Row1() Vector { return Vector{m.M11, m.M12, m.M13} }
func (m RotationMatrix) Row2() Vector { return Vector{m.M21, m.M22, m.M23} }
func (m RotationMatrix) Row3() Vector { return Vector{m.M31, m.M32, m.M33} }

// Transpose swaps the frames: the result maps earth to sensor coordinates.
func (m RotationMatrix) Transpose() RotationMatrix {
	return RotationMatrix{
		M11: m.M11, M12: m.M21, M13: m.M31,
		M21: m.M12, M22: m.M22, M23: m.M32,
		M31: m.M13, M32: m.M23, M33: m.M33,
	}
}

// Inverse of an orthonormal matrix is its transpose.
func (m RotationMatrix) Inverse() RotationMatrix { return m.Transpose() }

// Multiply returns the matrix product m · o, applying o first.
func (m RotationMatrix) Multiply(o RotationMatrix) RotationMatrix {
	return RotationMatrix{
		M11: m.M11*o.M11 + m.M12*o.M21 + m.M13*o.M31,
		M12: m.M11*o.M12 + m.M12*o.M22 + m.M13*o.M32,
		M13: m.M11*o.M13 + m.M12*o.M23 + m.M13*o.M33,
		M21: m.M21*o.M11 + m.M22*o.M21 + m.M23*o.M31,
		M22: m.M21*o.M12 + m.M22*o.M22 + m.M23*o.M32,
		M23: m.M21*o.M13 + m.M22*o.M23 + m.M23*o.M33,
		M31: m.M31*o.M11 + m.M32*o.M21 + m.M33*o.M31,
		M32: m.M31*o.M12 + m.M32*o.M22 + m.M33*o.M32,
		M33: m.M31*o.M13 + m.M32*o.M23 + m.M33*o.M33,
	}
}

// ToQuaternion converts m with Shepperd's method, branching on the largest
// diagonal term so the divisor stays away from zero.
func (m RotationMatrix) ToQuaternion() Quaternion {
	trace := m.M11 + m.M22 + m.M33
	var q Quaternion
	switch {
	case trace > 0:
		f := math.Sqrt(trace+1) * 2
		q = Quaternion{
			X: (m.M32 - m.M23) / f,
			Y: (m.M13 - m.M31) / f,
			Z: (m.M21 - m.M12) / f,
			S: f / 4,
		}
	case m.M11 > m.M22 && m.M11 > m.M33:
		f := math.Sqrt(1+m.M11-m.M22-m.M33) * 2
		q = Quaternion{
			X: f / 4,
			Y: (m.M12 + m.M21) / f,
			Z: (m.M13 + m.M31) / f,
			S: (m.M32 - m.M23) / f,
		}
	case m.M22 > m.M33:
		f := math.Sqrt(1+m.M22-m.M11-m.M33) * 2
		q = Quaternion{
			X: (m.M12 + m.M21) / f,
			Y: f / 4,
			Z: (m.M23 + m.M32) / f,
			S: (m.M13 - m.M31) / f,
		}
	default:
		f := math.Sqrt(1+m.M33-m.M11-m.M22) * 2
		q = Quaternion{
			X: (m.M13 + m.M31) / f,
			Y: (m.M23 + m.M32) / f,
			Z: f / 4,
			S: (m.M21 - m.M12) / f,
		}
	}
	return q.Normalize()
}

// ToEulerAngles extracts (pitch, roll, azimuth) for the composition
// R = Rz(-azimuth)·Rx(-pitch)·Ry(-roll).
//
// At gimbal lock only roll∓azimuth is observable; azimuth is pinned to 0.
func (m RotationMatrix) ToEulerAngles() EulerAngles {
	sinPitch := -m.M32
	if IsGimbalLock(sinPitch) {
		if sinPitch > 0 {
			return EulerAngles{
				X: math.Pi / 2,
				Y: math.Atan2(m.M21, m.M23),
				Z: 0,
			}
		}
		return EulerAngles{
			X: -math.Pi / 2,
			Y: math.Atan2(-m.M21, -m.M23),
			Z: 0,
		}
	}
	return EulerAngles{
		X: math.Asin(clamp(sinPitch, -1, 1)),
		Y: math.Atan2(m.M31, m.M33),
		Z: math.Atan2(m.M12, m.M22),
	}
}

// IsGimbalLock reports whether pitch is within ~0.08° of ±90°.
func IsGimbalLock(sinPitch float64) bool {
	return math.Abs(sinPitch) > gimbalLockSinThreshold
}

func (m RotationMatrix) IsFinite() bool {
	return m.Row1().IsFinite() && m.Row2().IsFinite() && m.Row3().IsFinite()
}

const gimbalLockSinThreshold = 0.999999

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
