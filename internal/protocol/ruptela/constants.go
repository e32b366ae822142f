// Package ruptela implements the wire protocol of Ruptela FM/ECO-family
// trackers: length-prefixed frame reassembly, CRC-16/Kermit validation,
// record batch decoding and the acknowledgement frames the device expects.
package ruptela

// Command identifiers observed from FM-Pro5 and FM-Eco5 devices.
const (
	// CmdRecords is the standard record batch.
	CmdRecords = 1

	// CmdIdentification carries device type, firmware and SIM details.
	CmdIdentification = 15

	// CmdHeartbeat is the keep-alive frame.
	CmdHeartbeat = 16

	// CmdDynamicIdent is the extended identification variant.
	CmdDynamicIdent = 18

	// CmdRecordsExt is the extended record batch with 16-bit IO ids and
	// event ids.
	CmdRecordsExt = 68
)

// Reply command identifiers. The device treats anything else as a protocol
// violation and reconnects.
const (
	ReplyRecords        = 100
	ReplyIdentification = 115
	ReplyHeartbeat      = 116
)

// ackCommands maps each inbound command to its reply command.
var ackCommands = map[byte]byte{
	CmdRecords:        ReplyRecords,
	CmdRecordsExt:     ReplyRecords,
	CmdIdentification: ReplyIdentification,
	CmdHeartbeat:      ReplyHeartbeat,
}

// AckCommand returns the reply command for an inbound command. ok is false
// for commands that receive no acknowledgement.
func AckCommand(cmd byte) (byte, bool) {
	reply, ok := ackCommands[cmd]
	return reply, ok
}

// Frame geometry in bytes.
const (
	lenSize = 2
	crcSize = 2

	// headerSize covers length, IMEI and command.
	headerSize = lenSize + 8 + 1

	// minFrame is the smallest well-formed frame: header plus CRC with an
	// empty payload.
	minFrame = headerSize + crcSize

	// MaxBuffer is the reassembly ceiling before a soft buffer reset.
	MaxBuffer = 10 * 1024
)

// Record field divisors.
const (
	coordDivisor    = 1e7
	altitudeDivisor = 10.0
	angleDivisor    = 100.0
	hdopDivisor     = 10.0
)
