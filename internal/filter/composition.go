package filter

import (
	"sync"

	"ahrs-ng/internal/rotation"
)

// estimating is implemented by filters that can tell whether they have
// produced anything yet.
type estimating interface {
	Filter
	hasEstimate() bool
}

// composition runs the accel/mag, rotation-vector and complementary filters
// side by side and reports the circular mean of whichever have an estimate.
// It exists for comparing methods on screen.
type composition struct {
	clock    Clock
	recorder Recorder

	mu             sync.Mutex
	deviceRotation rotation.DeviceRotation
	children       []estimating
}

func newComposition(opts Options) *composition {
	child := opts
	child.Recorder = nil
	return &composition{
		clock:          opts.Clock,
		recorder:       opts.Recorder,
		deviceRotation: opts.DeviceRotation,
		children: []estimating{
			newSmoothed(MethodAccelerometerMagnetometer, child, &accMag{}),
			newRotationVectorFilter(child),
			newSmoothed(MethodComplementary, child, newComplementary(child)),
		},
	}
}

func (c *composition) Method() Method { return MethodComposition }

func (c *composition) UpdateReadings(sensor SensorType, values []float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Validate once so a bad sample reaches none of the children.
	if _, err := parseReading(sensor, values, c.clock(), c.deviceRotation); err != nil {
		return err
	}
	for _, f := range c.children {
		if err := f.UpdateReadings(sensor, values); err != nil {
			return err
		}
	}
	if c.recorder != nil && sensor != Magnetometer {
		if o, ok := c.meanLocked(); ok {
			c.recorder.Record(MethodComposition, o)
		}
	}
	return nil
}

// meanLocked averages every angle of the children that have an estimate. The
// rotation is the normalized sum of sign-aligned quaternions.
func (c *composition) meanLocked() (rotation.Orientation, bool) {
	var az, pitch, roll, cAz, cAlt []float64
	var sum rotation.Quaternion
	for _, f := range c.children {
		if !f.hasEstimate() {
			continue
		}
		o := f.CurrentOrientation()
		az = append(az, o.Azimuth)
		pitch = append(pitch, o.Pitch)
		roll = append(roll, o.Roll)
		cAz = append(cAz, o.CenterAzimuth)
		cAlt = append(cAlt, o.CenterAltitude)
		q := o.Rotation
		if len(az) > 1 && q.Dot(sum) < 0 {
			q = q.Negate()
		}
		sum = sum.Add(q)
	}
	if len(az) == 0 {
		return rotation.DefaultOrientation, false
	}
	return rotation.Orientation{
		Azimuth:        rotation.CircularMean(az...),
		Pitch:          rotation.CircularMean(pitch...),
		Roll:           rotation.CircularMean(roll...),
		CenterAzimuth:  rotation.CircularMean(cAz...),
		CenterAltitude: rotation.CircularMean(cAlt...),
		Rotation:       sum.Normalize(),
	}.Normalized(), true
}

func (c *composition) CurrentOrientation() rotation.Orientation {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, _ := c.meanLocked()
	return o
}

func (c *composition) hasEstimate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.children {
		if f.hasEstimate() {
			return true
		}
	}
	return false
}

func (c *composition) FuseSensors() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.children {
		f.FuseSensors()
	}
}

func (c *composition) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.children {
		f.Reset()
	}
}

func (c *composition) DeviceRotation() rotation.DeviceRotation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceRotation
}

func (c *composition) SetDeviceRotation(r rotation.DeviceRotation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deviceRotation = r
	for _, f := range c.children {
		f.SetDeviceRotation(r)
	}
}
