package ruptela

import (
	"encoding/binary"
	"math"
	"time"
)

// Decode turns a validated frame into a typed message. Records batches that
// run short mid-record keep the records already parsed; nothing here
// returns an error, frames with undecodable commands come back as Unknown.
func Decode(f *Frame) Message {
	b := base{IMEI: f.IMEI, Command: f.Command}

	switch f.Command {
	case CmdRecords, CmdRecordsExt:
		return decodeRecords(b, f.Payload, f.Command == CmdRecordsExt)
	case CmdIdentification, CmdDynamicIdent:
		return decodeIdentification(b, f.Payload)
	case CmdHeartbeat:
		return &Heartbeat{base: b}
	default:
		return &Unknown{base: b, Payload: copyBytes(f.Payload)}
	}
}

func copyBytes(p []byte) []byte {
	out := make([]byte, len(p))
	copy(out, p)
	return out
}

// recordHeaderSize is 23 bytes for the standard batch and 25 for the
// extended one (extra record-extension byte and 16-bit event id).
func recordHeaderSize(ext bool) int {
	if ext {
		return 25
	}
	return 23
}

func decodeRecords(b base, p []byte, ext bool) *Records {
	batch := &Records{base: b}
	if len(p) < 2 {
		return batch
	}
	batch.Left = p[0]
	count := int(p[1])
	p = p[2:]

	hdr := recordHeaderSize(ext)
	for i := 0; i < count && len(p) >= hdr; i++ {
		rec, rest := decodeRecord(p, ext)
		batch.Records = append(batch.Records, rec)
		p = rest
	}
	return batch
}

func decodeRecord(p []byte, ext bool) (Record, []byte) {
	var rec Record

	rec.Timestamp = time.Unix(int64(binary.BigEndian.Uint32(p[0:4])), 0).UTC()
	rec.TimestampExt = p[4]
	off := 5
	if ext {
		rec.RecordExt = p[5]
		off = 6
	}
	rec.Priority = p[off]
	rec.Longitude = float64(int32(binary.BigEndian.Uint32(p[off+1:off+5]))) / coordDivisor
	rec.Latitude = float64(int32(binary.BigEndian.Uint32(p[off+5:off+9]))) / coordDivisor
	rec.Altitude = float64(binary.BigEndian.Uint16(p[off+9:off+11])) / altitudeDivisor
	rec.Angle = float64(binary.BigEndian.Uint16(p[off+11:off+13])) / angleDivisor
	rec.Satellites = int(p[off+13])
	rec.Speed = binary.BigEndian.Uint16(p[off+14 : off+16])
	rec.HDOP = float64(p[off+16]) / hdopDivisor
	if ext {
		rec.EventID = binary.BigEndian.Uint16(p[off+17 : off+19])
		p = p[off+19:]
	} else {
		rec.EventID = uint16(p[off+17])
		p = p[off+18:]
	}

	rec.IO = make(map[int]map[uint16]int64, 4)
	for _, size := range [4]int{1, 2, 4, 8} {
		var ok bool
		p, ok = decodeIOSection(rec.IO, p, size, ext)
		if !ok {
			break
		}
	}
	return rec, p
}

// decodeIOSection reads one width section: a count byte then count
// (id, value) pairs. On overrun the elements parsed so far are kept and the
// remaining payload is abandoned.
func decodeIOSection(io map[int]map[uint16]int64, p []byte, size int, ext bool) ([]byte, bool) {
	if len(p) < 1 {
		return nil, false
	}
	count := int(p[0])
	p = p[1:]

	idSize := 1
	if ext {
		idSize = 2
	}

	elems := make(map[uint16]int64, count)
	io[size] = elems
	for i := 0; i < count; i++ {
		if len(p) < idSize+size {
			return nil, false
		}
		var id uint16
		if ext {
			id = binary.BigEndian.Uint16(p[0:2])
		} else {
			id = uint16(p[0])
		}
		p = p[idSize:]

		var val int64
		switch size {
		case 1:
			val = int64(p[0])
		case 2:
			val = int64(binary.BigEndian.Uint16(p[0:2]))
		case 4:
			val = int64(binary.BigEndian.Uint32(p[0:4]))
		case 8:
			u := binary.BigEndian.Uint64(p[0:8])
			if u > math.MaxInt64 {
				u = math.MaxInt64
			}
			val = int64(u)
		}
		p = p[size:]
		elems[id] = val
	}
	return p, true
}

// decodeIdentification extracts the self-description fields that are
// present. The payload layout varies across firmware generations, so the
// raw bytes are kept alongside the parsed fields.
func decodeIdentification(b base, p []byte) *Identification {
	ident := &Identification{base: b, Payload: copyBytes(p)}
	if len(p) == 0 {
		return ident
	}
	ident.DeviceType = p[0]
	p = p[1:]

	ident.Firmware, p = takePrintable(p)
	ident.IMSI, p = takeDigits(p)
	ident.Operator, _ = takePrintable(p)
	return ident
}

// takePrintable consumes a run of printable ASCII, skipping leading
// separators.
func takePrintable(p []byte) (string, []byte) {
	for len(p) > 0 && (p[0] < 0x20 || p[0] > 0x7E) {
		p = p[1:]
	}
	n := 0
	for n < len(p) && p[n] >= 0x20 && p[n] <= 0x7E {
		n++
	}
	return string(p[:n]), p[n:]
}

// takeDigits consumes a run of ASCII digits, skipping leading separators.
func takeDigits(p []byte) (string, []byte) {
	for len(p) > 0 && (p[0] < '0' || p[0] > '9') {
		p = p[1:]
	}
	n := 0
	for n < len(p) && p[n] >= '0' && p[n] <= '9' {
		n++
	}
	return string(p[:n]), p[n:]
}
