package rotation

import "math"

// ToRadians converts degrees to radians.
func ToRadians(deg float64) float64 { return deg * math.Pi / 180 }

// ToDegrees converts radians to degrees.
func ToDegrees(rad float64) float64 { return rad * 180 / math.Pi }

// NormalizeDegrees maps deg into [0, 360).
func NormalizeDegrees(deg float64) float64 {
	r := math.Mod(deg, 360)
	if r < 0 {
		r += 360
	}
	if r >= 360 {
		// -tiny + 360 rounds to 360.
		r = 0
	}
	return r
}

// NormalizeDegreesTo180 maps deg into (-180, 180].
func NormalizeDegreesTo180(deg float64) float64 {
	r := math.Mod(deg, 360)
	if r > 180 {
		r -= 360
	} else if r <= -180 {
		r += 360
	}
	return r
}

// DegreeDifference returns the signed shortest rotation from `from` to `to`,
// in (-180, 180].
func DegreeDifference(from, to float64) float64 {
	return NormalizeDegreesTo180(to - from)
}

// CircularMean averages angles in degrees as unit vectors. It returns 0 for an
// empty slice.
func CircularMean(degs ...float64) float64 {
	var sumSin, sumCos float64
	for _, d := range degs {
		s, c := math.Sincos(ToRadians(d))
		sumSin += s
		sumCos += c
	}
	if len(degs) == 0 {
		return 0
	}
	return ToDegrees(math.Atan2(sumSin, sumCos))
}
