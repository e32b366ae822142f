package ruptela

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeRecordsAck(t *testing.T) {
	assert.Equal(t, mustHex(t, "0002640113bc"), EncodeRecordsAck(true))
	assert.Equal(t, mustHex(t, "000264000235"), EncodeRecordsAck(false))
}

func TestEncodeIdentificationAck(t *testing.T) {
	assert.Equal(t, mustHex(t, "00027301cb25"), EncodeIdentificationAck(true, 0))

	rejected := EncodeIdentificationAck(false, 5)
	assert.Equal(t, byte(ReplyIdentification), rejected[2])
	assert.Equal(t, []byte{0x02, 0x05}, rejected[3:5])
	assert.Equal(t, Checksum(rejected[2:5]), uint16(rejected[5])<<8|uint16(rejected[6]))
}

func TestEncodeHeartbeatAck(t *testing.T) {
	assert.Equal(t, mustHex(t, "00027401862d"), EncodeHeartbeatAck())
}

func TestAckCommandMapping(t *testing.T) {
	tests := []struct {
		cmd   byte
		reply byte
		ok    bool
	}{
		{cmd: CmdRecords, reply: ReplyRecords, ok: true},
		{cmd: CmdRecordsExt, reply: ReplyRecords, ok: true},
		{cmd: CmdIdentification, reply: ReplyIdentification, ok: true},
		{cmd: CmdHeartbeat, reply: ReplyHeartbeat, ok: true},
		{cmd: CmdDynamicIdent, ok: false},
		{cmd: 0x2A, ok: false},
	}

	for _, tt := range tests {
		reply, ok := AckCommand(tt.cmd)
		assert.Equal(t, tt.ok, ok, "cmd %d", tt.cmd)
		if tt.ok {
			assert.Equal(t, tt.reply, reply, "cmd %d", tt.cmd)
		}
	}
}
