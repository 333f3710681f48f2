package filter

import (
	"sync"

	"ahrs-ng/internal/rotation"
)

// rotationVectorFilter passes the platform's fused rotation vector straight
// through, without smoothing.
type rotationVectorFilter struct {
	clock    Clock
	recorder Recorder

	mu             sync.Mutex
	deviceRotation rotation.DeviceRotation
	last           rotation.Orientation
	have           bool
}

func newRotationVectorFilter(opts Options) *rotationVectorFilter {
	return &rotationVectorFilter{
		clock:          opts.Clock,
		recorder:       opts.Recorder,
		deviceRotation: opts.DeviceRotation,
		last:           rotation.DefaultOrientation,
	}
}

func (f *rotationVectorFilter) Method() Method { return MethodRotationVector }

func (f *rotationVectorFilter) UpdateReadings(sensor SensorType, values []float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := parseReading(sensor, values, f.clock(), f.deviceRotation)
	if err != nil {
		return err
	}
	if r.sensor != RotationVector {
		return nil
	}
	f.last = rotation.OrientationFromQuaternion(r.quaternion).Normalized()
	f.have = true
	if f.recorder != nil {
		f.recorder.Record(MethodRotationVector, f.last)
	}
	return nil
}

func (f *rotationVectorFilter) CurrentOrientation() rotation.Orientation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *rotationVectorFilter) hasEstimate() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.have
}

func (f *rotationVectorFilter) FuseSensors() {}

func (f *rotationVectorFilter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = rotation.DefaultOrientation
	f.have = false
}

func (f *rotationVectorFilter) DeviceRotation() rotation.DeviceRotation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deviceRotation
}

func (f *rotationVectorFilter) SetDeviceRotation(r rotation.DeviceRotation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deviceRotation = r
}
