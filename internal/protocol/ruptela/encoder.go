package ruptela

import "encoding/binary"

// appendReply builds a complete reply frame: two-byte length, command,
// payload and the Kermit CRC over command plus payload.
func appendReply(cmd byte, payload []byte) []byte {
	body := append([]byte{cmd}, payload...)
	buf := make([]byte, 0, lenSize+len(body)+crcSize)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(body)))
	buf = append(buf, body...)
	return binary.BigEndian.AppendUint16(buf, Checksum(body))
}

// EncodeRecordsAck builds the reply to a records batch. accepted reports
// whether at least one record survived validation; a negative reply makes
// the device retransmit the batch later.
func EncodeRecordsAck(accepted bool) []byte {
	status := byte(0)
	if accepted {
		status = 1
	}
	return appendReply(ReplyRecords, []byte{status})
}

// EncodeIdentificationAck builds the reply to an identification frame.
// When authorized is false the device is told to back off delayMinutes
// before reconnecting.
func EncodeIdentificationAck(authorized bool, delayMinutes byte) []byte {
	if authorized {
		return appendReply(ReplyIdentification, []byte{0x01})
	}
	return appendReply(ReplyIdentification, []byte{0x02, delayMinutes})
}

// EncodeHeartbeatAck builds the keep-alive reply.
func EncodeHeartbeatAck() []byte {
	return appendReply(ReplyHeartbeat, []byte{0x01})
}
