package filter

import (
	"sync"

	"ahrs-ng/internal/damping"
	"ahrs-ng/internal/rotation"
)

// estimator is one fusion algorithm. update returns a new sensor→earth
// estimate when the reading completes an iteration.
type estimator interface {
	update(r reading) (rotation.Quaternion, bool)
	reset()
}

// smoothed wraps an estimator with the shared pipeline: device rotation
// remap, the looking-from-below correction, per-axis damping and the
// recording hook.
type smoothed struct {
	method   Method
	clock    Clock
	recorder Recorder
	est      estimator

	mu             sync.Mutex
	deviceRotation rotation.DeviceRotation
	haveEstimate   bool
	azimuth        *damping.Acceleration
	pitch          *damping.Acceleration
	roll           *damping.Acceleration
	centerAzimuth  *damping.Acceleration
	centerAltitude *damping.Acceleration
	attitude       *damping.QuaternionAcceleration
}

func newSmoothed(method Method, opts Options, est estimator) *smoothed {
	f := opts.AccelerationFactor
	return &smoothed{
		method:         method,
		clock:          opts.Clock,
		recorder:       opts.Recorder,
		est:            est,
		deviceRotation: opts.DeviceRotation,
		azimuth:        damping.NewAcceleration(f),
		pitch:          damping.NewAcceleration(f),
		roll:           damping.NewAcceleration(f),
		centerAzimuth:  damping.NewAcceleration(f),
		centerAltitude: damping.NewAcceleration(f),
		attitude:       damping.NewQuaternionAcceleration(f),
	}
}

func (s *smoothed) Method() Method { return s.method }

func (s *smoothed) UpdateReadings(sensor SensorType, values []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := parseReading(sensor, values, s.clock(), s.deviceRotation)
	if err != nil {
		return err
	}
	if q, ok := s.est.update(r); ok {
		s.emitLocked(q, r)
	}
	return nil
}

func (s *smoothed) emitLocked(q rotation.Quaternion, r reading) {
	if !q.IsFinite() {
		return
	}
	o := rotation.OrientationFromQuaternion(q).FromBelow()
	if s.recorder != nil {
		s.recorder.Record(s.method, o.Normalized())
	}
	if !s.haveEstimate {
		// Start at the first estimate instead of sweeping in from zero.
		s.azimuth.Reset(o.Azimuth)
		s.pitch.Reset(o.Pitch)
		s.roll.Reset(o.Roll)
		s.centerAzimuth.Reset(o.CenterAzimuth)
		s.centerAltitude.Reset(o.CenterAltitude)
		s.attitude.Reset(q)
		s.haveEstimate = true
		return
	}
	s.azimuth.RotateTo(o.Azimuth, r.at)
	s.pitch.RotateTo(o.Pitch, r.at)
	s.roll.RotateTo(o.Roll, r.at)
	s.centerAzimuth.RotateTo(o.CenterAzimuth, r.at)
	s.centerAltitude.RotateTo(o.CenterAltitude, r.at)
	s.attitude.RotateTo(q, r.at)
}

func (s *smoothed) CurrentOrientation() rotation.Orientation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.haveEstimate {
		return rotation.DefaultOrientation
	}
	now := s.clock()
	return rotation.Orientation{
		Azimuth:        s.azimuth.Position(now),
		Pitch:          s.pitch.Position(now),
		Roll:           s.roll.Position(now),
		CenterAzimuth:  s.centerAzimuth.Position(now),
		CenterAltitude: s.centerAltitude.Position(now),
		Rotation:       s.attitude.Position(now),
	}.Normalized()
}

func (s *smoothed) hasEstimate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.haveEstimate
}

// FuseSensors is a no-op: every estimator here fuses on sample arrival.
func (s *smoothed) FuseSensors() {}

func (s *smoothed) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.est.reset()
	s.haveEstimate = false
}

func (s *smoothed) DeviceRotation() rotation.DeviceRotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceRotation
}

func (s *smoothed) SetDeviceRotation(r rotation.DeviceRotation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r == s.deviceRotation {
		return
	}
	s.deviceRotation = r
	s.est.reset()
}
