package jimi

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrBadIMEI indicates a login frame whose BCD IMEI did not decode to 14 to
// 16 decimal digits. Such logins are rejected without an acknowledgement.
var ErrBadIMEI = errors.New("invalid IMEI in login frame")

// Decoder turns validated frames into typed messages.
//
// Short payloads never fail decoding: the frame is downgraded to Unknown so
// the acknowledgement policy can still run. The only hard error is a
// malformed login IMEI.
type Decoder struct {
	// HemisphereWest forces decoded longitudes negative. GT06 firmware in
	// the field routinely reports western longitudes without the west bit
	// set; the deployment decides per port.
	HemisphereWest bool
}

// Decode dispatches on the frame's protocol number.
func (d *Decoder) Decode(f *Frame) (Message, error) {
	b := base{Serial: f.Serial, Protocol: f.Protocol}

	switch f.Protocol {
	case ProtoLogin:
		return d.decodeLogin(b, f.Payload)
	case ProtoGPS2G, ProtoGPS4G:
		fix, ok := d.decodeFix(b, f.Payload, f.Protocol == ProtoGPS4G)
		if !ok {
			return d.unknown(b, f.Payload), nil
		}
		return fix, nil
	case ProtoAlarm, ProtoAlarmFence, ProtoAlarm4G:
		fix, ok := d.decodeFix(b, f.Payload, f.Protocol == ProtoAlarm4G)
		if !ok {
			return d.unknown(b, f.Payload), nil
		}
		return &Alarm{base: b, Fix: *fix, Type: f.Payload[len(f.Payload)-1]}, nil
	case ProtoHeartbeat, ProtoHeartbeat2:
		hb := &Heartbeat{base: b}
		if len(f.Payload) > 0 {
			hb.Status = f.Payload[0]
		}
		return hb, nil
	case ProtoTimeRequest:
		return &TimeRequest{base: b}, nil
	default:
		return d.unknown(b, f.Payload), nil
	}
}

func (d *Decoder) unknown(b base, payload []byte) *Unknown {
	p := make([]byte, len(payload))
	copy(p, payload)
	return &Unknown{base: b, Payload: p}
}

// decodeLogin extracts the BCD IMEI, device type and timezone word.
func (d *Decoder) decodeLogin(b base, payload []byte) (Message, error) {
	if len(payload) < 8 {
		return d.unknown(b, payload), nil
	}

	imei, err := decodeIMEI(payload[0:8])
	if err != nil {
		return nil, err
	}

	login := &Login{base: b, IMEI: imei}
	if len(payload) >= 10 {
		login.TypeID = binary.BigEndian.Uint16(payload[8:10])
	}
	if len(payload) >= 12 {
		login.TZLang = binary.BigEndian.Uint16(payload[10:12])
	}
	return login, nil
}

// decodeIMEI unpacks 8 BCD bytes into a decimal IMEI string. Nibbles above
// 9 are padding and are skipped; a leading zero on a full 16-digit result
// is the usual BCD left-pad and is trimmed.
func decodeIMEI(raw []byte) (string, error) {
	var sb strings.Builder
	sb.Grow(16)
	for _, octet := range raw {
		for _, nibble := range [2]byte{octet >> 4, octet & 0x0F} {
			if nibble <= 9 {
				sb.WriteByte('0' + nibble)
			}
		}
	}

	imei := sb.String()
	if len(imei) == 16 && imei[0] == '0' {
		imei = imei[1:]
	}
	if len(imei) < 14 || len(imei) > 16 {
		return "", fmt.Errorf("%w: %d digits", ErrBadIMEI, len(imei))
	}
	return imei, nil
}

// decodeFix parses the positioning payload shared by GPS and alarm frames.
// Reports ok=false when the payload is shorter than the fixed 18-byte GPS
// section; cell information is parsed when present and left zero otherwise.
func (d *Decoder) decodeFix(b base, p []byte, wide bool) (*GPSFix, bool) {
	if len(p) < 18 {
		return nil, false
	}

	fix := &GPSFix{
		base:       b,
		Timestamp:  decodeTimestamp(p[0:6]),
		Satellites: int(p[6] & 0x0F),
		Speed:      float64(p[15]),
	}

	lat := float64(binary.BigEndian.Uint32(p[7:11])) / coordDivisor
	lon := float64(binary.BigEndian.Uint32(p[11:15])) / coordDivisor

	cs := binary.BigEndian.Uint16(p[16:18])
	fix.Course = cs & courseMask
	fix.RealTime = cs&flagRealTime != 0
	fix.Positioned = cs&flagPositioned != 0
	if cs&flagSouth != 0 {
		lat = -lat
	}
	if cs&flagWest != 0 {
		lon = -lon
	}
	if d.HemisphereWest && lon > 0 {
		lon = -lon
	}
	fix.Latitude = lat
	fix.Longitude = lon

	fix.Cell = decodeCell(p[18:], wide)
	return fix, true
}

// decodeTimestamp treats the six date bytes as UTC components.
func decodeTimestamp(p []byte) time.Time {
	return time.Date(2000+int(p[0]), time.Month(p[1]), int(p[2]),
		int(p[3]), int(p[4]), int(p[5]), 0, time.UTC)
}

// decodeCell parses the trailing cell tower section. The 4G variant widens
// LAC to four bytes and the cell id to eight.
func decodeCell(p []byte, wide bool) CellInfo {
	var c CellInfo
	if len(p) < 2 {
		return c
	}

	mcc := binary.BigEndian.Uint16(p[0:2])
	c.MCC = mcc &^ mncWideFlag
	p = p[2:]

	if mcc&mncWideFlag != 0 {
		if len(p) < 2 {
			return c
		}
		c.MNC = binary.BigEndian.Uint16(p[0:2])
		p = p[2:]
	} else {
		if len(p) < 1 {
			return c
		}
		c.MNC = uint16(p[0])
		p = p[1:]
	}

	if wide {
		if len(p) < 12 {
			return c
		}
		c.LAC = binary.BigEndian.Uint32(p[0:4])
		c.CellID = binary.BigEndian.Uint64(p[4:12])
	} else {
		if len(p) < 5 {
			return c
		}
		c.LAC = uint32(binary.BigEndian.Uint16(p[0:2]))
		c.CellID = uint64(p[2])<<16 | uint64(p[3])<<8 | uint64(p[4])
	}
	return c
}
