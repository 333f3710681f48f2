package gdl90

import (
	"math"

	"ahrs-ng/internal/rotation"
)

// Attitude is what the AHRS messages carry, in degrees. Pitch is positive nose
// up. Fields this service cannot measure (airspeed, slip, g, baro) are always
// sent as invalid.
type Attitude struct {
	Valid      bool
	RollDeg    float64
	PitchDeg   float64
	HeadingDeg float64
}

// AttitudeFromOrientation treats the device's top edge as the aircraft nose.
func AttitudeFromOrientation(o rotation.Orientation, valid bool) Attitude {
	return Attitude{
		Valid:      valid,
		RollDeg:    o.Roll,
		PitchDeg:   o.Altitude(),
		HeadingDeg: rotation.NormalizeDegrees(o.Azimuth),
	}
}

const (
	invalidS16 = 0x7FFF
	invalidU16 = 0xFFFF
)

// ForeFlightAHRSFrame builds the ForeFlight AHRS message (0x65, sub-id 0x01):
// roll, pitch, heading, IAS, TAS in 0.1° units.
func ForeFlightAHRSFrame(a Attitude) []byte {
	msg := make([]byte, 12)
	msg[0], msg[1] = 0x65, 0x01

	roll, pitch := uint16(invalidS16), uint16(invalidS16)
	if a.Valid {
		roll, pitch = uint16(tenths(a.RollDeg)), uint16(tenths(a.PitchDeg))
	}
	putU16(msg[2:], roll)
	putU16(msg[4:], pitch)
	// ForeFlight takes heading from its own sources; leave it, IAS and TAS unset.
	putU16(msg[6:], invalidU16)
	putU16(msg[8:], invalidU16)
	putU16(msg[10:], invalidU16)
	return Frame(msg)
}

// AHRSLEFrame builds the "LE" AHRS report (0x4C 0x45 0x01 0x01) read by apps
// that accept Stratux attitude.
func AHRSLEFrame(a Attitude) []byte {
	msg := make([]byte, 24)
	copy(msg, []byte{0x4C, 0x45, 0x01, 0x01})

	roll, pitch, hdg := uint16(invalidS16), uint16(invalidS16), uint16(invalidS16)
	if a.Valid {
		roll = uint16(tenths(a.RollDeg))
		pitch = uint16(tenths(a.PitchDeg))
		hdg = uint16(tenths(a.HeadingDeg))
	}
	putU16(msg[4:], roll)
	putU16(msg[6:], pitch)
	putU16(msg[8:], hdg)
	// Slip/skid, yaw rate, g, IAS.
	for off := 10; off <= 16; off += 2 {
		putU16(msg[off:], invalidS16)
	}
	putU16(msg[18:], invalidU16) // pressure altitude
	putU16(msg[20:], invalidS16) // vertical speed
	putU16(msg[22:], invalidS16) // reserved
	return Frame(msg)
}

func tenths(deg float64) int16 {
	v := math.Round(deg * 10)
	return int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, v)))
}
