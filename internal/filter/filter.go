// Package filter turns raw accelerometer, magnetometer, gyroscope and
// rotation-vector samples into a smoothed display orientation.
//
// Samples are pushed with UpdateReadings; the orientation is pulled with
// CurrentOrientation, typically from a timer on another goroutine. Every
// filter serializes its own state, so the two sides may run concurrently.
package filter

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"ahrs-ng/internal/rotation"
)

var (
	ErrInvalidReading = errors.New("filter: invalid reading")
	ErrUnknownSensor  = errors.New("filter: unknown sensor type")
	ErrUnknownMethod  = errors.New("filter: unknown method")
)

type SensorType int

const (
	Accelerometer SensorType = iota + 1
	Magnetometer
	Gyroscope
	RotationVector
)

var sensorNames = map[SensorType]string{
	Accelerometer:  "accelerometer",
	Magnetometer:   "magnetometer",
	Gyroscope:      "gyroscope",
	RotationVector: "rotation_vector",
}

func (s SensorType) String() string {
	if n, ok := sensorNames[s]; ok {
		return n
	}
	return fmt.Sprintf("sensor(%d)", int(s))
}

func ParseSensorType(name string) (SensorType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for s, n := range sensorNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSensor, name)
}

// Method names a fusion algorithm.
type Method string

const (
	MethodAccelerometerMagnetometer Method = "accmag"
	MethodRotationVector            Method = "rotation_vector"
	MethodComplementary             Method = "complementary"
	MethodMadgwick                  Method = "madgwick"
	MethodExtendedComplementary     Method = "extended_complementary"
	MethodSeparatedCorrection       Method = "separated_correction"
	MethodComposition               Method = "composition"
	MethodKalman                    Method = "kalman"
)

var Methods = []Method{
	MethodAccelerometerMagnetometer,
	MethodRotationVector,
	MethodComplementary,
	MethodMadgwick,
	MethodExtendedComplementary,
	MethodSeparatedCorrection,
	MethodComposition,
	MethodKalman,
}

func ParseMethod(name string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Methods {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMethod, name)
}

// Filter is the contract shared by every fusion algorithm.
type Filter interface {
	// UpdateReadings consumes one sample. Samples of one sensor type must
	// arrive in order. A rejected sample leaves the state untouched.
	UpdateReadings(sensor SensorType, values []float64) error
	// CurrentOrientation returns the smoothed orientation at the filter clock's
	// current time, or rotation.DefaultOrientation before the first estimate.
	CurrentOrientation() rotation.Orientation
	// FuseSensors runs a fusion step that does not depend on a new sample.
	FuseSensors()
	Reset()
	DeviceRotation() rotation.DeviceRotation
	// SetDeviceRotation changes the screen rotation. Stored readings are in the
	// old axes, so the estimator restarts.
	SetDeviceRotation(r rotation.DeviceRotation)
	Method() Method
}

// Recorder receives every raw estimate before smoothing.
type Recorder interface {
	Record(method Method, o rotation.Orientation)
}

// Clock supplies the time used for gyroscope integration and smoothing.
type Clock func() time.Time

// New builds the filter for method.
func New(method Method, opts Options) (Filter, error) {
	opts = opts.normalized()
	switch method {
	case MethodAccelerometerMagnetometer:
		return newSmoothed(method, opts, &accMag{}), nil
	case MethodRotationVector:
		return newRotationVectorFilter(opts), nil
	case MethodComplementary:
		return newSmoothed(method, opts, newComplementary(opts)), nil
	case MethodMadgwick:
		return newSmoothed(method, opts, newMadgwick(opts)), nil
	case MethodExtendedComplementary:
		return newSmoothed(method, opts, &extendedComplementary{gain: ExtendedComplementaryGain}), nil
	case MethodSeparatedCorrection:
		return newSmoothed(method, opts, newSeparatedCorrection(opts)), nil
	case MethodComposition:
		return newComposition(opts), nil
	case MethodKalman:
		return newSmoothed(method, opts, newKalman(opts)), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, string(method))
}

// HasEstimate reports whether f has produced an orientation yet.
func HasEstimate(f Filter) bool {
	if e, ok := f.(estimating); ok {
		return e.hasEstimate()
	}
	return false
}
