package rotation

import "math"

// Orientation is the display-facing attitude in degrees.
//
// Azimuth, Pitch and Roll follow the device's top edge. CenterAzimuth and
// CenterAltitude follow the direction the back of the device (-z) points.
type Orientation struct {
	Azimuth        float64 `json:"azimuth"`
	Pitch          float64 `json:"pitch"`
	Roll           float64 `json:"roll"`
	CenterAzimuth  float64 `json:"center_azimuth"`
	CenterAltitude float64 `json:"center_altitude"`

	Rotation Quaternion `json:"rotation"`
}

// DefaultOrientation is a device lying flat, screen up.
var DefaultOrientation = Orientation{CenterAltitude: -90, Rotation: Identity}

// Altitude of the top edge above the horizon.
func (o Orientation) Altitude() float64 { return -o.Pitch }

// OrientationFromMatrix derives an Orientation from a sensor→earth matrix.
func OrientationFromMatrix(m RotationMatrix) Orientation {
	e := m.ToEulerAngles()
	o := Orientation{
		Azimuth:  ToDegrees(e.Azimuth()),
		Pitch:    ToDegrees(e.Pitch()),
		Roll:     ToDegrees(e.Roll()),
		Rotation: m.ToQuaternion(),
	}

	// Back of the device in earth coordinates is m · (0,0,-1).
	east, north, up := -m.M13, -m.M23, -m.M33
	if math.Abs(east) < centerDegenerateTolerance && math.Abs(north) < centerDegenerateTolerance {
		o.CenterAzimuth = o.Azimuth
		o.CenterAltitude = o.Roll - 90
	} else {
		o.CenterAzimuth = ToDegrees(math.Atan2(east, north))
		o.CenterAltitude = ToDegrees(math.Asin(clamp(up, -1, 1)))
	}
	return o
}

func OrientationFromQuaternion(q Quaternion) Orientation {
	o := OrientationFromMatrix(q.ToRotationMatrix())
	o.Rotation = q
	return o
}

// LookingFromBelow reports whether the device is rolled past the vertical so
// the top edge is best read with the user looking up at the screen.
func (o Orientation) LookingFromBelow() bool {
	return math.Abs(o.Roll) >= 90
}

// FromBelow remaps azimuth, pitch and roll for a device viewed from below.
// It is the identity when the roll is within (-90, 90).
func (o Orientation) FromBelow() Orientation {
	if !o.LookingFromBelow() {
		return o
	}
	o.Azimuth = NormalizeDegreesTo180(180 + o.Azimuth)
	o.Pitch = NormalizeDegreesTo180(180 - o.Pitch)
	o.Roll = NormalizeDegreesTo180(180 - o.Roll)
	return o
}

// Normalized maps azimuths into [0,360) and the other angles into (-180,180].
func (o Orientation) Normalized() Orientation {
	o.Azimuth = NormalizeDegrees(o.Azimuth)
	o.CenterAzimuth = NormalizeDegrees(o.CenterAzimuth)
	o.Pitch = NormalizeDegreesTo180(o.Pitch)
	o.Roll = NormalizeDegreesTo180(o.Roll)
	o.CenterAltitude = NormalizeDegreesTo180(o.CenterAltitude)
	return o
}

const centerDegenerateTolerance = 1e-6
