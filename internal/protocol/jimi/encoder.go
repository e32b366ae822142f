package jimi

import (
	"encoding/binary"
	"time"
)

// appendFrame builds a complete short frame around proto/content/serial:
// start marker, length, checksum and end marker included.
func appendFrame(proto byte, content []byte, serial uint16) []byte {
	// length covers proto + content + serial + crc
	length := byte(1 + len(content) + serialSize + crcSize)
	buf := make([]byte, 0, startSize+1+int(length)+endSize)

	buf = binary.BigEndian.AppendUint16(buf, StartShort)
	buf = append(buf, length, proto)
	buf = append(buf, content...)
	buf = binary.BigEndian.AppendUint16(buf, serial)
	buf = binary.BigEndian.AppendUint16(buf, Checksum(buf[2:]))
	return binary.BigEndian.AppendUint16(buf, EndMarker)
}

// EncodeAck builds the 10-byte generic acknowledgement echoing the protocol
// number and serial of the frame it acknowledges.
func EncodeAck(proto byte, serial uint16) []byte {
	return appendFrame(proto, nil, serial)
}

// EncodeTimeResponse builds the 16-byte reply to a time calibration request
// carrying the given wall clock as UTC components.
func EncodeTimeResponse(now time.Time, serial uint16) []byte {
	now = now.UTC()
	content := []byte{
		byte(now.Year() - 2000),
		byte(now.Month()),
		byte(now.Day()),
		byte(now.Hour()),
		byte(now.Minute()),
		byte(now.Second()),
	}
	return appendFrame(ProtoTimeRequest, content, serial)
}

// EncodeRequestLocation builds the online-command frame that asks the
// device to report its position immediately. The serial must come from the
// session's outbound counter.
func EncodeRequestLocation(serial uint16) []byte {
	return appendFrame(ProtoCommand, nil, serial)
}
