package gdl90

import "time"

// Encoder turns a stream of attitudes into GDL90 frames, adding the heartbeat
// and ID messages once per second. Not safe for concurrent use.
type Encoder struct {
	ShortName, LongName string

	lastHeartbeat time.Time
}

func (e *Encoder) Frames(now time.Time, a Attitude) [][]byte {
	var out [][]byte
	if e.lastHeartbeat.IsZero() || now.Sub(e.lastHeartbeat) >= time.Second || now.Before(e.lastHeartbeat) {
		out = append(out,
			HeartbeatFrameAt(now, false, false),
			StratuxHeartbeatFrame(false, a.Valid),
			ForeFlightIDFrame(e.ShortName, e.LongName),
		)
		e.lastHeartbeat = now
	}
	return append(out, ForeFlightAHRSFrame(a), AHRSLEFrame(a))
}
