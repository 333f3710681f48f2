package filter

import "ahrs-ng/internal/rotation"

// complementary propagates the estimate with the gyroscope and pulls it a
// fixed fraction of the way toward the accel/mag rotation on every tick.
type complementary struct {
	coefficient float64

	readings accelMag
	ticker   gyroTicker
	estimate rotation.Quaternion
	seeded   bool
}

func newComplementary(opts Options) *complementary {
	return &complementary{coefficient: opts.FilterCoefficient, estimate: rotation.Identity}
}

func (c *complementary) update(r reading) (rotation.Quaternion, bool) {
	if c.readings.store(r) || r.sensor != Gyroscope {
		return c.estimate, false
	}
	dt := c.ticker.tick(r.at)
	qam, ok := c.readings.quaternion()
	if !c.seeded {
		if !ok {
			return c.estimate, false
		}
		c.estimate = qam
		c.seeded = true
		return c.estimate, true
	}
	predicted := c.estimate.Multiply(rotation.FromGyro(r.vector, dt)).Normalize()
	if ok {
		predicted = rotation.Slerp(predicted, qam, 1-c.coefficient)
	}
	c.estimate = predicted
	return c.estimate, true
}

func (c *complementary) reset() {
	c.readings.reset()
	c.ticker.reset()
	c.estimate = rotation.Identity
	c.seeded = false
}
