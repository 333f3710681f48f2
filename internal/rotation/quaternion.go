package rotation

import "math"

// Quaternion rotates sensor-frame vectors into the earth frame:
// v_earth = q ⊗ v_sensor ⊗ q*.
//
// Only unit quaternions are rotations. Rate and bias accumulators reuse the
// type without being normalized.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	S float64 `json:"s"`
}

// Identity is the rotation of a device lying flat, screen up, top edge north.
var Identity = Quaternion{S: 1}

// NewQuaternion returns x·i + y·j + z·k + s. The scalar part comes last.
func NewQuaternion(x, y, z, s float64) Quaternion { return Quaternion{X: x, Y: y, Z: z, S: s} }

// AxisAngle returns the rotation by angle radians about axis. A zero axis
// yields the identity.
func AxisAngle(axis Vector, angle float64) Quaternion {
	n := axis.Norm()
	if n < zeroNormTolerance {
		return Identity
	}
	f := math.Sin(angle/2) / n
	return Quaternion{X: axis.X * f, Y: axis.Y * f, Z: axis.Z * f, S: math.Cos(angle / 2)}
}

// Vector returns the imaginary part of q.
func (q Quaternion) Vector() Vector { return Vector{q.X, q.Y, q.Z} }

func (q Quaternion) Add(o Quaternion) Quaternion {
	return Quaternion{q.X + o.X, q.Y + o.Y, q.Z + o.Z, q.S + o.S}
}

func (q Quaternion) Sub(o Quaternion) Quaternion {
	return Quaternion{q.X - o.X, q.Y - o.Y, q.Z - o.Z, q.S - o.S}
}

func (q Quaternion) Scale(f float64) Quaternion {
	return Quaternion{q.X * f, q.Y * f, q.Z * f, q.S * f}
}

func (q Quaternion) Negate() Quaternion { return q.Scale(-1) }

// Multiply returns the Hamilton product q ⊗ o.
func (q Quaternion) Multiply(o Quaternion) Quaternion {
	return Quaternion{
		X: q.S*o.X + q.X*o.S + q.Y*o.Z - q.Z*o.Y,
		Y: q.S*o.Y - q.X*o.Z + q.Y*o.S + q.Z*o.X,
		Z: q.S*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.S,
		S: q.S*o.S - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
	}
}

// Conjugate returns q* = (-x, -y, -z, s), the inverse of a unit quaternion.
func (q Quaternion) Conjugate() Quaternion { return Quaternion{-q.X, -q.Y, -q.Z, q.S} }

// Inverse returns q⁻¹. For a zero quaternion it returns the identity.
func (q Quaternion) Inverse() Quaternion {
	n := q.NormSquared()
	if n < zeroNormTolerance {
		return Identity
	}
	return q.Conjugate().Scale(1 / n)
}

func (q Quaternion) Dot(o Quaternion) float64 {
	return q.X*o.X + q.Y*o.Y + q.Z*o.Z + q.S*o.S
}

func (q Quaternion) NormSquared() float64 { return q.Dot(q) }

func (q Quaternion) Norm() float64 { return math.Sqrt(q.NormSquared()) }

// Normalize returns q scaled to unit length, or the identity for a zero
// quaternion.
func (q Quaternion) Normalize() Quaternion {
	return q.NormalizeOr(Identity)
}

// NormalizeOr is Normalize with a caller-chosen result for a zero quaternion.
func (q Quaternion) NormalizeOr(fallback Quaternion) Quaternion {
	n := q.Norm()
	if n < zeroNormTolerance || !isFinite(n) {
		return fallback
	}
	return q.Scale(1 / n)
}

func (q Quaternion) IsFinite() bool {
	return isFinite(q.X) && isFinite(q.Y) && isFinite(q.Z) && isFinite(q.S)
}

// SameRotation reports whether q and o describe the same rotation within tol,
// accounting for q and -q being equal rotations.
func (q Quaternion) SameRotation(o Quaternion, tol float64) bool {
	return math.Abs(math.Abs(q.Dot(o))-1) <= tol
}

// ToRotationMatrix returns the matrix of the unit quaternion q.
func (q Quaternion) ToRotationMatrix() RotationMatrix {
	xx, yy, zz := q.X*q.X, q.Y*q.Y, q.Z*q.Z
	xy, xz, yz := q.X*q.Y, q.X*q.Z, q.Y*q.Z
	sx, sy, sz := q.S*q.X, q.S*q.Y, q.S*q.Z
	return RotationMatrix{
		M11: 1 - 2*(yy+zz), M12: 2 * (xy - sz), M13: 2 * (xz + sy),
		M21: 2 * (xy + sz), M22: 1 - 2*(xx+zz), M23: 2 * (yz - sx),
		M31: 2 * (xz - sy), M32: 2 * (yz + sx), M33: 1 - 2*(xx+yy),
	}
}

// ToEulerAngles goes through the rotation matrix, so it shares its gimbal
// lock handling.
func (q Quaternion) ToEulerAngles() EulerAngles {
	return q.ToRotationMatrix().ToEulerAngles()
}

// Slerp interpolates from a to b by t in [0,1] along the shorter arc.
func Slerp(a, b Quaternion, t float64) Quaternion {
	d := a.Dot(b)
	if d < 0 {
		b = b.Negate()
		d = -d
	}
	if d > slerpLinearThreshold {
		return a.Add(b.Sub(a).Scale(t)).Normalize()
	}
	theta := math.Acos(d)
	sinTheta := math.Sin(theta)
	wa := math.Sin((1-t)*theta) / sinTheta
	wb := math.Sin(t*theta) / sinTheta
	return a.Scale(wa).Add(b.Scale(wb)).Normalize()
}

// Angle returns the rotation angle in radians between a and b along the
// shorter arc.
func Angle(a, b Quaternion) float64 {
	d := math.Abs(a.Dot(b))
	if d > 1 {
		d = 1
	}
	return 2 * math.Acos(d)
}

const slerpLinearThreshold = 0.9995
