// Package gdl90 encodes orientation snapshots as GDL90 attitude messages so
// EFB apps listening on the usual port can show them.
package gdl90

import "fmt"

const (
	flagByte   = 0x7E
	escapeByte = 0x7D
	escapeXor  = 0x20
)

// Frame appends the CRC to message (ID + payload), byte-stuffs it and wraps it
// in flag bytes.
func Frame(message []byte) []byte {
	crc := crc16(message)
	raw := append(append(make([]byte, 0, len(message)+2), message...), byte(crc), byte(crc>>8))

	out := make([]byte, 0, 2+len(raw)*2)
	out = append(out, flagByte)
	for _, b := range raw {
		if b == flagByte || b == escapeByte {
			out = append(out, escapeByte, b^escapeXor)
		} else {
			out = append(out, b)
		}
	}
	return append(out, flagByte)
}

// Unframe undoes Frame. crcOK is false when the trailing CRC does not match.
func Unframe(frame []byte) (msg []byte, crcOK bool, err error) {
	if len(frame) < 4 {
		return nil, false, fmt.Errorf("gdl90: frame too short: %d", len(frame))
	}
	if frame[0] != flagByte || frame[len(frame)-1] != flagByte {
		return nil, false, fmt.Errorf("gdl90: missing start/end flags")
	}
	raw := make([]byte, 0, len(frame))
	body := frame[1 : len(frame)-1]
	for i := 0; i < len(body); i++ {
		b := body[i]
		if b == escapeByte {
			i++
			if i >= len(body) {
				return nil, false, fmt.Errorf("gdl90: truncated escape at end of frame")
			}
			b = body[i] ^ escapeXor
		}
		raw = append(raw, b)
	}
	if len(raw) < 3 {
		return nil, false, fmt.Errorf("gdl90: unescaped payload too short: %d", len(raw))
	}
	msg = raw[:len(raw)-2]
	got := uint16(raw[len(raw)-2]) | uint16(raw[len(raw)-1])<<8
	return msg, got == crc16(msg), nil
}

// crc16 is CRC-CCITT (polynomial 0x1021, zero init) as GDL90 uses it.
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc = crcTable[crc>>8] ^ (crc << 8) ^ uint16(b)
	}
	return crc
}

var crcTable = func() (t [256]uint16) {
	for i := range t {
		crc := uint16(i) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}()

func putU16(b []byte, v uint16) {
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}
