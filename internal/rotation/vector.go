package rotation

import "math"

// Vector is a 3-D vector in either the sensor or the earth frame.
type Vector struct {
	X, Y, Z float64
}

// NewVector returns the vector (x, y, z).
func NewVector(x, y, z float64) Vector { return Vector{X: x, Y: y, Z: z} }

func (v Vector) Add(o Vector) Vector { return Vector{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

func (v Vector) Sub(o Vector) Vector { return Vector{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

func (v Vector) Scale(f float64) Vector { return Vector{v.X * f, v.Y * f, v.Z * f} }

func (v Vector) Negate() Vector { return Vector{-v.X, -v.Y, -v.Z} }

func (v Vector) Dot(o Vector) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

// Cross returns the right-handed cross product v × o.
func (v Vector) Cross(o Vector) Vector {
	return Vector{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

func (v Vector) NormSquared() float64 { return v.Dot(v) }

func (v Vector) Norm() float64 { return math.Sqrt(v.NormSquared()) }

// Normalize returns v scaled to unit length. The zero vector yields NaN
// components; callers that can see a zero vector use NormalizeOr.
func (v Vector) Normalize() Vector {
	return v.Scale(1 / v.Norm())
}

// NormalizeOr returns the unit vector along v, or fallback when v is too short
// to have a direction.
func (v Vector) NormalizeOr(fallback Vector) Vector {
	n := v.Norm()
	if n < zeroNormTolerance {
		return fallback
	}
	return v.Scale(1 / n)
}

// RotateBy applies q to v: q ⊗ v ⊗ q*.
func (v Vector) RotateBy(q Quaternion) Vector {
	p := q.Multiply(Quaternion{X: v.X, Y: v.Y, Z: v.Z}).Multiply(q.Conjugate())
	return Vector{p.X, p.Y, p.Z}
}

// Transform applies m to v: m · v.
func (v Vector) Transform(m RotationMatrix) Vector {
	return Vector{
		m.M11*v.X + m.M12*v.Y + m.M13*v.Z,
		m.M21*v.X + m.M22*v.Y + m.M23*v.Z,
		m.M31*v.X + m.M32*v.Y + m.M33*v.Z,
	}
}

// IsFinite reports whether no component is NaN or infinite.
func (v Vector) IsFinite() bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

// AsQuaternion embeds v as a pure quaternion (s = 0).
func (v Vector) AsQuaternion() Quaternion { return Quaternion{X: v.X, Y: v.Y, Z: v.Z} }

const zeroNormTolerance = 1e-12

func isFinite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
