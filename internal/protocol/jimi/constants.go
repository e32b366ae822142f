// Package jimi implements the wire protocol of Jimi/Concox GT06-family
// trackers (JM-LL301 and compatible firmwares).
//
// This includes stream reassembly of length-delimited frames, CRC-ITU
// checksum validation, decoding of login / heartbeat / GPS / alarm frames
// into typed messages, and encoding of the acknowledgement and command
// frames the device expects.
package jimi

// Frame markers. Every frame opens with a two-byte start marker and closes
// with CR LF.
const (
	// StartShort opens a frame with a 1-byte length field (content <= 255 bytes).
	StartShort uint16 = 0x7878

	// StartLong opens a frame with a 2-byte length field.
	StartLong uint16 = 0x7979

	// EndMarker closes every frame.
	EndMarker uint16 = 0x0D0A
)

// Protocol numbers observed from JM-LL301 devices.
const (
	// ProtoLogin carries the device IMEI and type identifier. First frame
	// on every connection; the device disconnects if it is not acknowledged.
	ProtoLogin = 0x01

	// ProtoGPS2G is a positioning frame with 2G cell tower information.
	ProtoGPS2G = 0x22

	// ProtoHeartbeat and ProtoHeartbeat2 are keep-alive frames. Both expect
	// an echo acknowledgement.
	ProtoHeartbeat  = 0x23
	ProtoHeartbeat2 = 0x36

	// ProtoAlarm, ProtoAlarmFence and ProtoAlarm4G carry a positioning
	// payload plus an alarm type byte.
	ProtoAlarm      = 0x26
	ProtoAlarmFence = 0x27
	ProtoAlarm4G    = 0xA4

	// ProtoCommand is the server-to-terminal online command frame. Used for
	// the "request location" poll.
	ProtoCommand = 0x80

	// ProtoTimeRequest is a device-initiated time calibration request. The
	// server replies with its current UTC wall clock.
	ProtoTimeRequest = 0x8A

	// ProtoGPS4G is a positioning frame with 4G cell tower information
	// (wider LAC and cell id fields than ProtoGPS2G).
	ProtoGPS4G = 0xA0
)

// noReplyProtocols lists protocol numbers that must never be acknowledged.
// Replying to these confuses LL301 firmware into re-sending the frame.
var noReplyProtocols = map[byte]bool{
	0x12: true,
	0x13: true,
	0x16: true,
}

// NoReply reports whether frames with the given protocol number must not
// receive any acknowledgement.
func NoReply(proto byte) bool { return noReplyProtocols[proto] }

// Field and frame sizes in bytes.
const (
	startSize  = 2
	serialSize = 2
	crcSize    = 2
	endSize    = 2

	// minFrameShort is the smallest well-formed 0x7878 frame:
	// start(2) + len(1) + proto(1) + serial(2) + crc(2) + end(2).
	minFrameShort = 10

	// headerProbe is the minimum buffered bytes needed before the total
	// frame size can be determined.
	headerProbe = 5

	// MaxBuffer is the reassembly ceiling. If this many bytes accumulate
	// without a parseable frame the buffer is dropped (soft reset).
	MaxBuffer = 10 * 1024
)

// Course/status bit layout of positioning frames. The low 10 bits carry the
// course in degrees; the remaining bits are flags.
const (
	courseMask     = 0x03FF
	flagRealTime   = 1 << 10
	flagPositioned = 1 << 11
	flagWest       = 1 << 12
	flagSouth      = 1 << 13
)

// coordDivisor converts the raw coordinate field (minutes * 30000) into
// decimal degrees.
const coordDivisor = 1800000.0

// mncWideFlag in the MCC field signals that the MNC occupies two bytes.
const mncWideFlag = 0x8000
