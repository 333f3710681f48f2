package filter

import (
	"fmt"
	"strings"
	"time"

	"ahrs-ng/internal/damping"
	"ahrs-ng/internal/rotation"
)

type MadgwickMode int

const (
	// MadgwickDefault derives the flux reference from the current estimate and
	// uses the analytic Jacobian.
	MadgwickDefault MadgwickMode = iota
	// MadgwickModified derives the flux reference from the raw accel/mag pair
	// and differentiates the objective numerically in the tangent space.
	MadgwickModified
)

func (m MadgwickMode) String() string {
	if m == MadgwickModified {
		return "modified"
	}
	return "default"
}

func ParseMadgwickMode(s string) (MadgwickMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return MadgwickDefault, nil
	case "modified":
		return MadgwickModified, nil
	}
	return MadgwickDefault, fmt.Errorf("filter: unknown madgwick mode %q", s)
}

type SeparatedCorrectionMode int

const (
	// SCF solves the scalar part from |v|²+s²=1.
	SCF SeparatedCorrectionMode = iota
	// FSCF uses the first-order form s=1.
	FSCF
)

func (m SeparatedCorrectionMode) String() string {
	if m == FSCF {
		return "fscf"
	}
	return "scf"
}

func ParseSeparatedCorrectionMode(s string) (SeparatedCorrectionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "scf":
		return SCF, nil
	case "fscf":
		return FSCF, nil
	}
	return SCF, fmt.Errorf("filter: unknown separated correction mode %q", s)
}

// Options configures every filter. Zero numeric fields take the defaults.
type Options struct {
	// AccelerationFactor is the display smoothing time constant in seconds,
	// clamped to [0.01, 10].
	AccelerationFactor float64
	DeviceRotation     rotation.DeviceRotation

	// Complementary.
	FilterCoefficient float64

	// Madgwick. Mean error in rad/s, drift in rad/s².
	GyroscopeMeanError float64
	GyroscopeDrift     float64
	MadgwickMode       MadgwickMode

	// Separated correction.
	Lambda1                 float64
	Lambda2                 float64
	SeparatedCorrectionMode SeparatedCorrectionMode

	// Kalman.
	KalmanProcessNoise     float64
	KalmanMeasurementNoise float64

	Clock    Clock
	Recorder Recorder
}

const (
	DefaultFilterCoefficient      = 0.98
	DefaultLambda1                = 0.1
	DefaultLambda2                = 0.7
	DefaultKalmanProcessNoise     = 1e-3
	DefaultKalmanMeasurementNoise = 1e-1
)

var (
	DefaultGyroscopeMeanError = rotation.ToRadians(5)
	DefaultGyroscopeDrift     = rotation.ToRadians(0.2)
)

func DefaultOptions() Options {
	return Options{
		AccelerationFactor:     damping.DefaultFactor,
		FilterCoefficient:      DefaultFilterCoefficient,
		GyroscopeMeanError:     DefaultGyroscopeMeanError,
		GyroscopeDrift:         DefaultGyroscopeDrift,
		Lambda1:                DefaultLambda1,
		Lambda2:                DefaultLambda2,
		KalmanProcessNoise:     DefaultKalmanProcessNoise,
		KalmanMeasurementNoise: DefaultKalmanMeasurementNoise,
		Clock:                  time.Now,
	}
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	o.AccelerationFactor = damping.ClampFactor(o.AccelerationFactor)
	if o.FilterCoefficient <= 0 || o.FilterCoefficient > 1 {
		o.FilterCoefficient = d.FilterCoefficient
	}
	if o.GyroscopeMeanError <= 0 {
		o.GyroscopeMeanError = d.GyroscopeMeanError
	}
	if o.GyroscopeDrift <= 0 {
		o.GyroscopeDrift = d.GyroscopeDrift
	}
	if o.Lambda1 <= 0 {
		o.Lambda1 = d.Lambda1
	}
	if o.Lambda2 <= 0 {
		o.Lambda2 = d.Lambda2
	}
	if o.KalmanProcessNoise <= 0 {
		o.KalmanProcessNoise = d.KalmanProcessNoise
	}
	if o.KalmanMeasurementNoise <= 0 {
		o.KalmanMeasurementNoise = d.KalmanMeasurementNoise
	}
	if o.Clock == nil {
		o.Clock = d.Clock
	}
	return o
}
