package gdl90

import "time"

// HeartbeatFrameAt builds the standard heartbeat (0x00) for now.
func HeartbeatFrameAt(now time.Time, utcOK, maintenanceRequired bool) []byte {
	msg := make([]byte, 7)
	// UAT initialized and address talkback.
	status := byte(0x01 | 0x10)
	if utcOK {
		status |= 0x80
	}
	if maintenanceRequired {
		status |= 0x40
	}
	msg[1] = status

	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	secs := uint32(now.Sub(midnight) / time.Second)
	// Bit 16 of the timestamp rides in the high bit of byte 2; bit 0 flags UTC time.
	msg[2] = byte((secs>>16)<<7) | 0x01
	msg[3] = byte(secs)
	msg[4] = byte(secs >> 8)
	return Frame(msg)
}

// StratuxHeartbeatFrame builds the 0xCC heartbeat apps use to detect an AHRS.
func StratuxHeartbeatFrame(gpsValid, ahrsValid bool) []byte {
	const protocolVersion = 1
	status := byte(protocolVersion << 2)
	if ahrsValid {
		status |= 0x01
	}
	if gpsValid {
		status |= 0x02
	}
	return Frame([]byte{0xCC, status})
}
