package filter

import "ahrs-ng/internal/rotation"

// accMag derives the rotation directly from each accelerometer sample and the
// latest magnetometer sample. It never uses the gyroscope.
type accMag struct {
	mag    rotation.Vector
	hasMag bool
}

func (a *accMag) update(r reading) (rotation.Quaternion, bool) {
	switch r.sensor {
	case Magnetometer:
		a.mag, a.hasMag = r.vector, true
	case Accelerometer:
		if !a.hasMag {
			return rotation.Identity, false
		}
		return rotation.QuaternionFromAccelerationMagnetometer(r.vector, a.mag, rotation.Identity)
	}
	return rotation.Identity, false
}

func (a *accMag) reset() { *a = accMag{} }
