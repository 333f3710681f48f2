package rotation

import "fmt"

// DeviceRotation is the screen rotation relative to the device's natural
// orientation. Raw sensor axes are remapped into screen axes before any
// algorithm sees them.
type DeviceRotation int

const (
	Rotation0   DeviceRotation = 0
	Rotation90  DeviceRotation = 90
	Rotation180 DeviceRotation = 180
	Rotation270 DeviceRotation = 270
)

// ParseDeviceRotation accepts any multiple of 90 degrees and folds it into
// [0, 360), so -90 parses as Rotation270 and 450 as Rotation90.
func ParseDeviceRotation(deg int) (DeviceRotation, error) {
	switch DeviceRotation(NormalizeDegrees(float64(deg))) {
	case Rotation0:
		return Rotation0, nil
	case Rotation90:
		return Rotation90, nil
	case Rotation180:
		return Rotation180, nil
	case Rotation270:
		return Rotation270, nil
	}
	return Rotation0, fmt.Errorf("rotation: invalid device rotation %d (want 0, 90, 180 or 270)", deg)
}

// Remap expresses a sensor-frame vector in screen axes.
func (r DeviceRotation) Remap(v Vector) Vector {
	switch r {
	case Rotation90:
		return Vector{X: v.Y, Y: -v.X, Z: v.Z}
	case Rotation180:
		return Vector{X: -v.X, Y: -v.Y, Z: v.Z}
	case Rotation270:
		return Vector{X: -v.Y, Y: v.X, Z: v.Z}
	}
	return v
}

// RemapMatrix re-expresses a sensor→earth matrix as screen→earth: R·Pᵀ,
// where P is the axis permutation applied by Remap.
func (r DeviceRotation) RemapMatrix(m RotationMatrix) RotationMatrix {
	return NewRotationMatrixFromRows(r.Remap(m.Row1()), r.Remap(m.Row2()), r.Remap(m.Row3()))
}

// RemapQuaternion is RemapMatrix for an orientation given as a quaternion.
func (r DeviceRotation) RemapQuaternion(q Quaternion) Quaternion {
	if r == Rotation0 {
		return q
	}
	return r.RemapMatrix(q.ToRotationMatrix()).ToQuaternion()
}
