package gdl90

import "strings"

const (
	DefaultShortName = "AHRS-NG"
	DefaultLongName  = "ahrs-ng"
)

// ForeFlightIDFrame builds the ForeFlight ID message (0x65, sub-id 0x00).
// Names are truncated to 8 and 16 bytes.
func ForeFlightIDFrame(shortName, longName string) []byte {
	msg := make([]byte, 39)
	msg[0], msg[1], msg[2] = 0x65, 0x00, 0x01
	// Serial number unknown.
	for i := 3; i <= 10; i++ {
		msg[i] = 0xFF
	}
	copy(msg[11:19], nameOr(shortName, DefaultShortName, 8))
	copy(msg[19:35], nameOr(longName, DefaultLongName, 16))
	// Capabilities: none of the ownship altitude bits apply.
	msg[38] = 0x00
	return Frame(msg)
}

func nameOr(name, fallback string, limit int) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = fallback
	}
	if len(name) > limit {
		name = name[:limit]
	}
	return name
}
