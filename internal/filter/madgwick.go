package filter

import (
	"math"

	"ahrs-ng/internal/matrix"
	"ahrs-ng/internal/rotation"
)

const (
	// numericGradientStep is the central-difference step of the modified mode.
	numericGradientStep = 1e-8
	minGradientNorm     = 1e-12
)

var sqrtThreeQuarters = math.Sqrt(3.0 / 4.0)

// flux is the earth-frame magnetic reference (0, by, bz) in the ENU frame.
type flux struct {
	by, bz float64
}

// estimateFlux re-projects the sensor field through q and folds the horizontal
// component onto north.
func estimateFlux(q rotation.Quaternion, mag rotation.Vector) flux {
	h := mag.RotateBy(q)
	return flux{by: math.Hypot(h.X, h.Y), bz: h.Z}
}

// measuredFlux derives the reference from the dip angle between the
// normalized accelerometer and magnetometer vectors alone.
func measuredFlux(accel, mag rotation.Vector) flux {
	bz := accel.Dot(mag)
	return flux{by: math.Sqrt(math.Max(0, 1-bz*bz)), bz: bz}
}

// objective returns the gravity and flux residuals in sensor coordinates for
// normalized accel and mag.
func objective(q rotation.Quaternion, accel, mag rotation.Vector, b flux) [6]float64 {
	x, y, z, s := q.X, q.Y, q.Z, q.S
	return [6]float64{
		2*(x*z-s*y) - accel.X,
		2*(y*z+s*x) - accel.Y,
		1 - 2*(x*x+y*y) - accel.Z,
		2*b.by*(x*y+s*z) + 2*b.bz*(x*z-s*y) - mag.X,
		b.by*(1-2*(x*x+z*z)) + 2*b.bz*(y*z+s*x) - mag.Y,
		2*b.by*(y*z-s*x) + b.bz*(1-2*(x*x+y*y)) - mag.Z,
	}
}

func objectiveNormSquared(f [6]float64) float64 {
	var sum float64
	for _, v := range f {
		sum += v * v
	}
	return sum
}

// jacobian is the 6×4 derivative of objective with respect to (x, y, z, s).
func jacobian(q rotation.Quaternion, b flux) *matrix.Matrix {
	x, y, z, s := q.X, q.Y, q.Z, q.S
	by, bz := b.by, b.bz
	return matrix.FromRows([][]float64{
		{2 * z, -2 * s, 2 * x, -2 * y},
		{2 * s, 2 * z, 2 * y, 2 * x},
		{-4 * x, -4 * y, 0, 0},
		{2*by*y + 2*bz*z, 2*by*x - 2*bz*s, 2*by*s + 2*bz*x, 2*by*z - 2*bz*y},
		{-4*by*x + 2*bz*s, 2 * bz * z, -4*by*z + 2*bz*y, 2 * bz * x},
		{-2*by*s - 4*bz*x, 2*by*z - 4*bz*y, 2 * by * y, -2 * by * x},
	})
}

// analyticGradient returns 2·Jᵀ·f, the gradient of |f|².
func analyticGradient(q rotation.Quaternion, accel, mag rotation.Vector, b flux) rotation.Quaternion {
	f := objective(q, accel, mag, b)
	g := jacobian(q, b).Transpose().Multiply(matrix.Column(f[:]...)).Scale(2)
	return rotation.NewQuaternion(g.At(0, 0), g.At(1, 0), g.At(2, 0), g.At(3, 0))
}

// numericGradient differentiates |f|² by central differences and keeps only
// the component tangent to the unit sphere at q.
func numericGradient(q rotation.Quaternion, accel, mag rotation.Vector, b flux) rotation.Quaternion {
	basis := [4]rotation.Quaternion{{X: 1}, {Y: 1}, {Z: 1}, {S: 1}}
	var g [4]float64
	for i, e := range basis {
		d := e.Scale(numericGradientStep)
		hi := objectiveNormSquared(objective(q.Add(d), accel, mag, b))
		lo := objectiveNormSquared(objective(q.Sub(d), accel, mag, b))
		g[i] = (hi - lo) / (2 * numericGradientStep)
	}
	return tangent(q, rotation.NewQuaternion(g[0], g[1], g[2], g[3]))
}

// tangent removes the component of g along the unit quaternion q.
func tangent(q, g rotation.Quaternion) rotation.Quaternion {
	return g.Sub(q.Scale(g.Dot(q)))
}

// madgwick is the gradient-descent AHRS with gyroscope bias compensation.
type madgwick struct {
	beta, gamma float64
	mode        MadgwickMode

	readings accelMag
	ticker   gyroTicker
	estimate rotation.Quaternion
	bias     rotation.Vector
	seeded   bool
}

func newMadgwick(opts Options) *madgwick {
	return &madgwick{
		beta:     sqrtThreeQuarters * opts.GyroscopeMeanError,
		gamma:    sqrtThreeQuarters * opts.GyroscopeDrift,
		mode:     opts.MadgwickMode,
		estimate: rotation.Identity,
	}
}

// correction returns the normalized descent direction for the latest
// accel/mag pair, or a zero quaternion when there is nothing to correct.
func (f *madgwick) correction() rotation.Quaternion {
	accel := f.readings.accel.NormalizeOr(rotation.Vector{})
	mag := f.readings.mag.NormalizeOr(rotation.Vector{})
	if accel.NormSquared() == 0 || mag.NormSquared() == 0 {
		return rotation.Quaternion{}
	}
	var g rotation.Quaternion
	if f.mode == MadgwickModified {
		g = numericGradient(f.estimate, accel, mag, measuredFlux(accel, mag))
	} else {
		g = analyticGradient(f.estimate, accel, mag, estimateFlux(f.estimate, mag))
	}
	n := g.Norm()
	if n < minGradientNorm || math.IsNaN(n) {
		return rotation.Quaternion{}
	}
	return g.Scale(1 / n)
}

func (f *madgwick) update(r reading) (rotation.Quaternion, bool) {
	if f.readings.store(r) || r.sensor != Gyroscope {
		return f.estimate, false
	}
	dt := f.ticker.tick(r.at)
	if !f.seeded {
		qam, ok := f.readings.quaternion()
		if !ok {
			return f.estimate, false
		}
		f.estimate = qam
		f.seeded = true
		return f.estimate, true
	}

	var step rotation.Quaternion
	if f.readings.ready() {
		step = f.correction()
	}
	// Angular error of the step, fed back into the bias.
	angularError := f.estimate.Conjugate().Multiply(step).Scale(2).Vector()
	f.bias = f.bias.Add(angularError.Scale(f.gamma * dt))

	rate := rotation.RateQuaternion(f.estimate, r.vector.Sub(f.bias)).Sub(step.Scale(f.beta))
	f.estimate = f.estimate.Add(rate.Scale(dt)).NormalizeOr(f.estimate)
	return f.estimate, true
}

func (f *madgwick) reset() {
	f.readings.reset()
	f.ticker.reset()
	f.estimate = rotation.Identity
	f.bias = rotation.Vector{}
	f.seeded = false
}
