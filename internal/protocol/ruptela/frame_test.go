package ruptela

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

const (
	// Command 1 batch with two records for IMEI 356938035643809.
	recordsFrameHex = "0041000144a21cd245a101000265be56220001106e6bc0201f5bb0086623280b003f0c050000000065be56400001106ed920201fb9700866235a0b00460c0500000000b37a"

	heartbeatFrameHex = "0009000144a21cd245a1103a48"
)

func TestReaderSingleFrame(t *testing.T) {
	r := NewReader()
	r.Push(mustHex(t, recordsFrameHex))

	f, err := r.Next()
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "356938035643809", f.IMEI)
	assert.Equal(t, byte(CmdRecords), f.Command)
	assert.Equal(t, 0, r.Buffered())

	f, err = r.Next()
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestReaderFragmented(t *testing.T) {
	raw := mustHex(t, heartbeatFrameHex)
	r := NewReader()

	for i := 0; i < len(raw); i++ {
		r.Push(raw[i : i+1])
		f, err := r.Next()
		require.NoError(t, err)
		if i < len(raw)-1 {
			require.Nil(t, f)
			continue
		}
		require.NotNil(t, f)
		assert.Equal(t, byte(CmdHeartbeat), f.Command)
	}
}

func TestReaderCoalescedFrames(t *testing.T) {
	r := NewReader()
	r.Push(mustHex(t, heartbeatFrameHex+recordsFrameHex))

	f1, err := r.Next()
	require.NoError(t, err)
	require.NotNil(t, f1)
	assert.Equal(t, byte(CmdHeartbeat), f1.Command)

	f2, err := r.Next()
	require.NoError(t, err)
	require.NotNil(t, f2)
	assert.Equal(t, byte(CmdRecords), f2.Command)
}

func TestReaderChecksumFailure(t *testing.T) {
	corrupt := mustHex(t, recordsFrameHex)
	corrupt[20] ^= 0xFF

	r := NewReader()
	r.Push(corrupt)
	r.Push(mustHex(t, heartbeatFrameHex))

	f, err := r.Next()
	assert.Nil(t, f)
	var fe *FramingError
	require.ErrorAs(t, err, &fe)
	assert.True(t, fe.Recoverable)
	require.ErrorIs(t, err, ErrChecksumMismatch)

	f, err = r.Next()
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, byte(CmdHeartbeat), f.Command)
}

func TestReaderBadLength(t *testing.T) {
	r := NewReader()
	// Declared body of 3 bytes cannot hold IMEI and command.
	r.Push(mustHex(t, "0003000144a21cd245a1103a48"))

	f, err := r.Next()
	assert.Nil(t, f)
	require.ErrorIs(t, err, ErrBadLength)
	assert.Equal(t, 0, r.Buffered())
}

func TestReaderOverflowReset(t *testing.T) {
	r := NewReader()
	r.Push([]byte{0xFF, 0xFF})
	r.Push(make([]byte, MaxBuffer))

	f, err := r.Next()
	assert.Nil(t, f)
	require.ErrorIs(t, err, ErrBufferOverflow)
	assert.Equal(t, 0, r.Buffered())

	r.Push(mustHex(t, heartbeatFrameHex))
	f, err = r.Next()
	require.NoError(t, err)
	require.NotNil(t, f)
}
