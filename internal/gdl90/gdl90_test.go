package gdl90

import (
	"bytes"
	"testing"
	"time"

	"ahrs-ng/internal/rotation"
)

func unframeAndCheckCRC(t *testing.T, frame []byte) []byte {
	t.Helper()
	msg, ok, err := Unframe(frame)
	if err != nil {
		t.Fatalf("Unframe: %v", err)
	}
	if !ok {
		t.Fatalf("crc mismatch for frame % X", frame)
	}
	return msg
}

func requireBytes(t *testing.T, got, want []byte) {
	t.Helper()
	if !bytes.Equal(got, want) {
		t.Fatalf("msg=% X want % X", got, want)
	}
}

func TestFrame_EscapesControlBytes(t *testing.T) {
	in := []byte{0x00, flagByte, escapeByte}
	got := Frame(in)
	if got[0] != flagByte || got[len(got)-1] != flagByte {
		t.Fatalf("missing flags: % X", got)
	}
	for i := 1; i < len(got)-1; i++ {
		if got[i] == flagByte {
			t.Fatalf("unescaped flag byte found at %d", i)
		}
	}
	requireBytes(t, unframeAndCheckCRC(t, got), in)
}

func TestUnframe_Errors(t *testing.T) {
	cases := map[string][]byte{
		"short":     {flagByte, 0x00, flagByte},
		"no flags":  {0x00, 0x01, 0x02, 0x03},
		"truncated": {flagByte, 0x00, 0x01, escapeByte, flagByte},
	}
	for name, frame := range cases {
		if _, _, err := Unframe(frame); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	frame := Frame([]byte{0x00, 0x01})
	frame[1] ^= 0x01
	if _, ok, err := Unframe(frame); err != nil || ok {
		t.Fatalf("corrupted frame ok=%v err=%v", ok, err)
	}
}

func TestHeartbeat_Packing(t *testing.T) {
	now := time.Date(2020, time.January, 1, 1, 2, 3, 0, time.UTC) // 3723 s
	requireBytes(t, unframeAndCheckCRC(t, HeartbeatFrameAt(now, true, false)),
		[]byte{0x00, 0x91, 0x01, 0x8B, 0x0E, 0x00, 0x00})

	late := time.Date(2020, time.January, 1, 23, 0, 0, 0, time.UTC) // 82800 s, bit 16 set
	msg := unframeAndCheckCRC(t, HeartbeatFrameAt(late, false, true))
	if msg[1] != 0x51 || msg[2] != 0x81 {
		t.Fatalf("msg=% X", msg)
	}
}

func TestStratuxHeartbeat(t *testing.T) {
	requireBytes(t, unframeAndCheckCRC(t, StratuxHeartbeatFrame(false, true)), []byte{0xCC, 0x05})
	requireBytes(t, unframeAndCheckCRC(t, StratuxHeartbeatFrame(false, false)), []byte{0xCC, 0x04})
}

func TestAHRSLE_LevelFlightVector(t *testing.T) {
	msg := unframeAndCheckCRC(t, AHRSLEFrame(Attitude{Valid: true, RollDeg: -12.34, PitchDeg: 5, HeadingDeg: 90}))
	requireBytes(t, msg, []byte{
		0x4C, 0x45, 0x01, 0x01,
		0xFF, 0x85, // roll -12.3 => -123
		0x00, 0x32, // pitch 5.0 => 50
		0x03, 0x84, // heading 90.0 => 900
		0x7F, 0xFF, // slip/skid
		0x7F, 0xFF, // yaw rate
		0x7F, 0xFF, // g
		0x7F, 0xFF, // airspeed
		0xFF, 0xFF, // pressure altitude
		0x7F, 0xFF, // vertical speed
		0x7F, 0xFF,
	})
}

func TestForeFlightAHRS_InvalidSentinels(t *testing.T) {
	msg := unframeAndCheckCRC(t, ForeFlightAHRSFrame(Attitude{RollDeg: 10}))
	requireBytes(t, msg, []byte{0x65, 0x01, 0x7F, 0xFF, 0x7F, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})

	msg = unframeAndCheckCRC(t, ForeFlightAHRSFrame(Attitude{Valid: true, RollDeg: 10, PitchDeg: -2.5}))
	requireBytes(t, msg[2:6], []byte{0x00, 0x64, 0xFF, 0xE7})
}

func TestForeFlightID_Names(t *testing.T) {
	msg := unframeAndCheckCRC(t, ForeFlightIDFrame("", "a very long device name"))
	if len(msg) != 39 {
		t.Fatalf("len=%d want 39", len(msg))
	}
	if got := string(bytes.TrimRight(msg[11:19], "\x00")); got != DefaultShortName {
		t.Fatalf("short=%q", got)
	}
	if got := string(msg[19:35]); got != "a very long devi" {
		t.Fatalf("long=%q", got)
	}
}

func TestAttitudeFromOrientation(t *testing.T) {
	a := AttitudeFromOrientation(rotation.Orientation{Azimuth: -30, Pitch: -10, Roll: 20}, true)
	if !a.Valid || a.HeadingDeg != 330 || a.PitchDeg != 10 || a.RollDeg != 20 {
		t.Fatalf("attitude=%+v", a)
	}
}

func TestEncoder_HeartbeatOncePerSecond(t *testing.T) {
	var e Encoder
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := len(e.Frames(t0, Attitude{})); got != 5 {
		t.Fatalf("first frames=%d want 5", got)
	}
	if got := len(e.Frames(t0.Add(500*time.Millisecond), Attitude{})); got != 2 {
		t.Fatalf("frames=%d want 2", got)
	}
	frames := e.Frames(t0.Add(time.Second), Attitude{Valid: true})
	if len(frames) != 5 {
		t.Fatalf("frames=%d want 5", len(frames))
	}
	requireBytes(t, unframeAndCheckCRC(t, frames[1]), []byte{0xCC, 0x05})
}
