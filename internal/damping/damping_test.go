package damping

import (
	"math"
	"testing"
	"time"

	"ahrs-ng/internal/rotation"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func seconds(s float64) time.Time {
	return t0.Add(time.Duration(s * float64(time.Second)))
}

func TestAcceleration_Boundaries(t *testing.T) {
	a := NewAcceleration(1)
	a.RotateTo(40, seconds(0))
	a.RotateTo(10, seconds(0.3))

	before := a.Position(seconds(0.5))
	a.RotateTo(-20, seconds(0.5))
	if got := a.Position(seconds(0.5)); math.Abs(got-before) > 1e-12 {
		t.Fatalf("position after retarget=%v want %v", got, before)
	}
	if got := a.Position(seconds(2.6)); got != -20 {
		t.Fatalf("settled position=%v want -20", got)
	}
	// Reads before the retarget time hold the starting offset.
	if got := a.Position(seconds(0.4)); math.Abs(got-before) > 1e-12 {
		t.Fatalf("position before start=%v want %v", got, before)
	}
}

func TestAcceleration_ShortestWay(t *testing.T) {
	a := NewAcceleration(1)
	a.Reset(350)
	a.RotateTo(10, seconds(0))
	mid := a.Position(seconds(0.2))
	// Moving 350 -> 10 passes through 360, not 180.
	if d := rotation.DegreeDifference(350, mid); d < 0 || d > 20 {
		t.Fatalf("mid=%v went the long way", mid)
	}
}

func TestAcceleration_MonotonicWithoutOvershoot(t *testing.T) {
	a := NewAcceleration(1)
	a.Reset(0)
	a.RotateTo(90, seconds(0))
	prev := a.Position(seconds(0))
	for s := 0.05; s <= 2.0; s += 0.05 {
		p := a.Position(seconds(s))
		if p < prev-1e-12 || p > 90+1e-12 {
			t.Fatalf("t=%v position=%v prev=%v", s, p, prev)
		}
		prev = p
	}
}

func TestAcceleration_FactorScalesTime(t *testing.T) {
	fast := NewAcceleration(0.5)
	slow := NewAcceleration(2)
	for _, a := range []*Acceleration{fast, slow} {
		a.Reset(0)
		a.RotateTo(100, seconds(0))
	}
	if f, s := fast.Position(seconds(0.25)), slow.Position(seconds(1)); math.Abs(f-s) > 1e-9 {
		t.Fatalf("fast=%v slow=%v want equal at scaled time", f, s)
	}
	if got := fast.Position(seconds(1.01)); got != 100 {
		t.Fatalf("fast settled=%v want 100", got)
	}
}

func TestClampFactor(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{0.001, MinFactor},
		{50, MaxFactor},
		{0, DefaultFactor},
		{-1, DefaultFactor},
		{math.NaN(), DefaultFactor},
		{0.5, 0.5},
	}
	for _, tc := range cases {
		if got := ClampFactor(tc.in); got != tc.want {
			t.Fatalf("ClampFactor(%v)=%v want %v", tc.in, got, tc.want)
		}
	}
}

func TestQuaternionAcceleration(t *testing.T) {
	a := NewQuaternionAcceleration(1)
	target := rotation.AxisAngle(rotation.Vector{Z: 1}, math.Pi/2)
	a.RotateTo(target, seconds(0))
	if got := a.Position(seconds(0)); !got.SameRotation(rotation.Identity, 1e-12) {
		t.Fatalf("start=%+v want identity", got)
	}
	mid := a.Position(seconds(0.3))
	angle := rotation.Angle(rotation.Identity, mid)
	if angle <= 0 || angle >= math.Pi/2 {
		t.Fatalf("mid angle=%v", angle)
	}
	before := a.Position(seconds(0.3))
	other := rotation.AxisAngle(rotation.Vector{X: 1}, math.Pi/3)
	a.RotateTo(other, seconds(0.3))
	if got := a.Position(seconds(0.3)); !got.SameRotation(before, 1e-12) {
		t.Fatalf("after retarget=%+v want %+v", got, before)
	}
	if got := a.Position(seconds(3)); !got.SameRotation(other, 1e-12) {
		t.Fatalf("settled=%+v want %+v", got, other)
	}
}

func TestQuaternionAcceleration_ShorterArc(t *testing.T) {
	a := NewQuaternionAcceleration(1)
	target := rotation.AxisAngle(rotation.Vector{Z: 1}, 0.2).Negate()
	a.RotateTo(target, seconds(0))
	for s := 0.0; s <= 2.5; s += 0.1 {
		if angle := rotation.Angle(rotation.Identity, a.Position(seconds(s))); angle > 0.2+1e-9 {
			t.Fatalf("t=%v angle=%v left the short arc", s, angle)
		}
	}
}
