package ruptela

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeFrame(t *testing.T, frameHex string) Message {
	t.Helper()
	r := NewReader()
	r.Push(mustHex(t, frameHex))
	f, err := r.Next()
	require.NoError(t, err)
	require.NotNil(t, f)
	return Decode(f)
}

func TestDecodeRecordsBatch(t *testing.T) {
	msg := decodeFrame(t, recordsFrameHex)

	batch, ok := msg.(*Records)
	require.True(t, ok)
	assert.Equal(t, "356938035643809", batch.MessageIMEI())
	assert.Equal(t, byte(0), batch.Left)
	require.Len(t, batch.Records, 2)

	rec := batch.Records[0]
	assert.Equal(t, time.Date(2024, 2, 3, 15, 5, 6, 0, time.UTC), rec.Timestamp)
	assert.Equal(t, byte(1), rec.Priority)
	assert.InDelta(t, 27.5672, rec.Longitude, 1e-6)
	assert.InDelta(t, 53.8926, rec.Latitude, 1e-6)
	assert.InDelta(t, 215.0, rec.Altitude, 0.01)
	assert.InDelta(t, 90.0, rec.Angle, 0.01)
	assert.Equal(t, 11, rec.Satellites)
	assert.Equal(t, uint16(63), rec.Speed)
	assert.InDelta(t, 1.2, rec.HDOP, 0.01)
	assert.Equal(t, uint16(5), rec.EventID)

	assert.True(t, batch.Records[1].Timestamp.After(rec.Timestamp))
}

func TestDecodeExtendedRecords(t *testing.T) {
	// Command 68: record extension byte, 16-bit IO ids and event id.
	frameHex := "003c000144a21cd245a144030165be5622000701106e6bc0201f5bb00866" +
		"23280b003f0c010502001e0100aaff010041303900010100ffffffffffffffffd2d1"
	msg := decodeFrame(t, frameHex)

	batch, ok := msg.(*Records)
	require.True(t, ok)
	assert.Equal(t, byte(CmdRecordsExt), batch.MessageCommand())
	assert.Equal(t, byte(3), batch.Left)
	require.Len(t, batch.Records, 1)

	rec := batch.Records[0]
	assert.Equal(t, byte(0x07), rec.RecordExt)
	assert.Equal(t, byte(1), rec.Priority)
	assert.Equal(t, uint16(0x0105), rec.EventID)

	require.Contains(t, rec.IO, 1)
	assert.Equal(t, int64(1), rec.IO[1][0x1E])
	assert.Equal(t, int64(0xFF), rec.IO[1][0xAA])
	assert.Equal(t, int64(0x3039), rec.IO[2][0x41])
	assert.Empty(t, rec.IO[4])
	// Unsigned values past the signed range clamp to the maximum.
	assert.Equal(t, int64(math.MaxInt64), rec.IO[8][0x100])
}

func TestDecodeRecordsIOOverrun(t *testing.T) {
	// The one-byte IO section declares 3 elements but carries only one;
	// the parsed element survives and decoding stops cleanly.
	frameHex := "0025000144a21cd245a101000165be56220000106e6bc0201f5bb0086623280b003f0c05031e017cd5"
	msg := decodeFrame(t, frameHex)

	batch, ok := msg.(*Records)
	require.True(t, ok)
	require.Len(t, batch.Records, 1)
	assert.Equal(t, int64(1), batch.Records[0].IO[1][0x1E])
}

func TestDecodeIdentification(t *testing.T) {
	frameHex := "0027000144a21cd245a10f0e464d342e3700323436303132333435363738393031004c542042495445f326"
	msg := decodeFrame(t, frameHex)

	ident, ok := msg.(*Identification)
	require.True(t, ok)
	assert.Equal(t, byte(0x0E), ident.DeviceType)
	assert.Equal(t, "FM4.7", ident.Firmware)
	assert.Equal(t, "246012345678901", ident.IMSI)
	assert.Equal(t, "LT BITE", ident.Operator)
}

func TestDecodeHeartbeat(t *testing.T) {
	msg := decodeFrame(t, heartbeatFrameHex)

	hb, ok := msg.(*Heartbeat)
	require.True(t, ok)
	assert.Equal(t, "356938035643809", hb.MessageIMEI())
}

func TestDecodeUnknownCommand(t *testing.T) {
	raw := appendUnknownFrame(t, 0x2A, []byte{0x01, 0x02})
	r := NewReader()
	r.Push(raw)
	f, err := r.Next()
	require.NoError(t, err)

	u, ok := Decode(f).(*Unknown)
	require.True(t, ok)
	assert.Equal(t, byte(0x2A), u.MessageCommand())
	assert.Equal(t, []byte{0x01, 0x02}, u.Payload)
}

// appendUnknownFrame builds a raw device frame for commands the encoder has
// no constructor for.
func appendUnknownFrame(t *testing.T, cmd byte, payload []byte) []byte {
	t.Helper()
	body := append([]byte{0x00, 0x01, 0x44, 0xA2, 0x1C, 0xD2, 0x45, 0xA1, cmd}, payload...)
	buf := []byte{byte(len(body) >> 8), byte(len(body))}
	buf = append(buf, body...)
	crc := Checksum(body)
	return append(buf, byte(crc>>8), byte(crc))
}
