package filter

import (
	"fmt"
	"math"
	"time"

	"ahrs-ng/internal/rotation"
)

// reading is a validated sample already remapped into screen axes.
type reading struct {
	sensor     SensorType
	vector     rotation.Vector
	quaternion rotation.Quaternion
	at         time.Time
}

func parseReading(sensor SensorType, values []float64, at time.Time, dr rotation.DeviceRotation) (reading, error) {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return reading{}, fmt.Errorf("%w: %s value %d is %v", ErrInvalidReading, sensor, i, v)
		}
	}
	r := reading{sensor: sensor, at: at}
	switch sensor {
	case Accelerometer, Magnetometer, Gyroscope:
		if len(values) != 3 {
			return reading{}, fmt.Errorf("%w: %s needs 3 values, got %d", ErrInvalidReading, sensor, len(values))
		}
		r.vector = dr.Remap(rotation.NewVector(values[0], values[1], values[2]))
	case RotationVector:
		q, err := rotationVectorQuaternion(values)
		if err != nil {
			return reading{}, err
		}
		r.quaternion = dr.RemapQuaternion(q)
	default:
		return reading{}, fmt.Errorf("%w: %d", ErrUnknownSensor, int(sensor))
	}
	return r, nil
}

// rotationVectorQuaternion accepts (x, y, z), (x, y, z, s) or the five-value
// form with a trailing accuracy. A missing scalar is reconstructed from the
// unit-norm constraint.
func rotationVectorQuaternion(values []float64) (rotation.Quaternion, error) {
	if len(values) < 3 || len(values) > 5 {
		return rotation.Quaternion{}, fmt.Errorf("%w: %s needs 3 to 5 values, got %d", ErrInvalidReading, RotationVector, len(values))
	}
	x, y, z := values[0], values[1], values[2]
	var s float64
	if len(values) >= 4 {
		s = values[3]
	} else {
		s = math.Sqrt(math.Max(0, 1-x*x-y*y-z*z))
	}
	q := rotation.NewQuaternion(x, y, z, s)
	if q.Norm() < 0.5 {
		return rotation.Quaternion{}, fmt.Errorf("%w: %s is not a rotation", ErrInvalidReading, RotationVector)
	}
	return q.Normalize(), nil
}

// maxGyroGap bounds the integration step; longer gaps restart the tick clock.
const maxGyroGap = 500 * time.Millisecond

// gyroTicker turns consecutive gyroscope sample times into dt seconds.
type gyroTicker struct {
	last time.Time
}

// tick returns the seconds since the previous tick, or 0 for the first tick,
// a non-increasing clock, or a gap beyond maxGyroGap.
func (g *gyroTicker) tick(at time.Time) float64 {
	prev := g.last
	g.last = at
	if prev.IsZero() {
		return 0
	}
	d := at.Sub(prev)
	if d <= 0 || d > maxGyroGap {
		return 0
	}
	return d.Seconds()
}

func (g *gyroTicker) reset() { g.last = time.Time{} }

// accelMag keeps the latest accelerometer and magnetometer vectors.
type accelMag struct {
	accel, mag       rotation.Vector
	hasAccel, hasMag bool
}

// store keeps r when it is an accelerometer or magnetometer sample and
// reports whether it was.
func (s *accelMag) store(r reading) bool {
	switch r.sensor {
	case Accelerometer:
		s.accel, s.hasAccel = r.vector, true
	case Magnetometer:
		s.mag, s.hasMag = r.vector, true
	default:
		return false
	}
	return true
}

func (s *accelMag) ready() bool { return s.hasAccel && s.hasMag }

// quaternion derives the accel/mag rotation, reporting false when the pair is
// missing or degenerate.
func (s *accelMag) quaternion() (rotation.Quaternion, bool) {
	if !s.ready() {
		return rotation.Identity, false
	}
	return rotation.QuaternionFromAccelerationMagnetometer(s.accel, s.mag, rotation.Identity)
}

func (s *accelMag) reset() { *s = accelMag{} }
