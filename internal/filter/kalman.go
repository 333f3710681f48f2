package filter

import (
	"gonum.org/v1/gonum/mat"

	"ahrs-ng/internal/matrix"
	"ahrs-ng/internal/rotation"
)

// kalman is a linear Kalman filter over the quaternion components (x, y, z, s).
// The gyroscope drives the prediction and the accel/mag quaternion is the
// direct measurement.
type kalman struct {
	processNoise     float64
	measurementNoise float64

	readings accelMag
	ticker   gyroTicker
	state    *mat.VecDense
	cov      *mat.Dense
	seeded   bool
}

func newKalman(opts Options) *kalman {
	k := &kalman{
		processNoise:     opts.KalmanProcessNoise,
		measurementNoise: opts.KalmanMeasurementNoise,
	}
	k.reset()
	return k
}

func (k *kalman) quaternion() rotation.Quaternion {
	return rotation.NewQuaternion(k.state.AtVec(0), k.state.AtVec(1), k.state.AtVec(2), k.state.AtVec(3))
}

func (k *kalman) setQuaternion(q rotation.Quaternion) {
	k.state.SetVec(0, q.X)
	k.state.SetVec(1, q.Y)
	k.state.SetVec(2, q.Z)
	k.state.SetVec(3, q.S)
}

// transition returns Φ with Φ·q = q ⊗ p.
func transition(p rotation.Quaternion) *mat.Dense {
	return mat.NewDense(4, 4, []float64{
		p.S, p.Z, -p.Y, p.X,
		-p.Z, p.S, p.X, p.Y,
		p.Y, -p.X, p.S, p.Z,
		-p.X, -p.Y, -p.Z, p.S,
	})
}

func scaledIdentity(n int, f float64) *mat.DiagDense {
	d := make([]float64, n)
	for i := range d {
		d[i] = f
	}
	return mat.NewDiagDense(n, d)
}

func (k *kalman) predict(omega rotation.Vector, dt float64) {
	phi := transition(rotation.FromGyro(omega, dt))
	var x mat.VecDense
	x.MulVec(phi, k.state)
	k.state.CopyVec(&x)

	var p mat.Dense
	p.Product(phi, k.cov, phi.T())
	p.Add(&p, scaledIdentity(4, k.processNoise*dt))
	k.cov.Copy(&p)
}

// correct fuses measurement z. It reports false when the innovation
// covariance is singular (matrix.ErrSingular) and leaves the state alone.
func (k *kalman) correct(z rotation.Quaternion) bool {
	if z.Dot(k.quaternion()) < 0 {
		z = z.Negate()
	}
	var s mat.Dense
	s.Add(k.cov, scaledIdentity(4, k.measurementNoise))
	sInv, err := matrix.Inverse(matrix.FromDense(&s))
	if err != nil {
		return false
	}
	var gain mat.Dense
	gain.Mul(k.cov, sInv)

	innovation := mat.NewVecDense(4, []float64{z.X, z.Y, z.Z, z.S})
	innovation.SubVec(innovation, k.state)
	var dx mat.VecDense
	dx.MulVec(&gain, innovation)
	k.state.AddVec(k.state, &dx)

	var ikh mat.Dense
	ikh.Sub(scaledIdentity(4, 1), &gain)
	var p mat.Dense
	p.Mul(&ikh, k.cov)
	k.cov.Copy(&p)
	return true
}

func (k *kalman) update(r reading) (rotation.Quaternion, bool) {
	if k.readings.store(r) || r.sensor != Gyroscope {
		return k.quaternion(), false
	}
	dt := k.ticker.tick(r.at)
	qam, ok := k.readings.quaternion()
	if !k.seeded {
		if !ok {
			return k.quaternion(), false
		}
		k.setQuaternion(qam)
		k.seeded = true
		return qam, true
	}
	k.predict(r.vector, dt)
	if ok {
		k.correct(qam)
	}
	q := k.quaternion().Normalize()
	k.setQuaternion(q)
	return q, true
}

func (k *kalman) reset() {
	k.readings.reset()
	k.ticker.reset()
	k.state = mat.NewVecDense(4, []float64{0, 0, 0, 1})
	k.cov = mat.NewDense(4, 4, nil)
	k.cov.Copy(scaledIdentity(4, k.measurementNoise))
	k.seeded = false
}
