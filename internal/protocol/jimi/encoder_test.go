package jimi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeAck(t *testing.T) {
	got := EncodeAck(ProtoLogin, 1)
	assert.Equal(t, mustHex(t, "78780501"+"0001"+"d9dc"+"0d0a"), got)
}

func TestEncodeRequestLocation(t *testing.T) {
	got := EncodeRequestLocation(7)
	assert.Equal(t, mustHex(t, "78780580"+"0007"+"eada"+"0d0a"), got)
}

func TestEncodeTimeResponse(t *testing.T) {
	now := time.Date(2024, 2, 3, 14, 5, 6, 0, time.UTC)
	got := EncodeTimeResponse(now, 0x12)
	assert.Equal(t, mustHex(t, "78780b8a"+"1802030e0506"+"0012"+"f978"+"0d0a"), got)
	assert.Len(t, got, 16)
}

func TestEncodedFramesRoundTrip(t *testing.T) {
	// Every encoder output must pass the reader's own validation.
	frames := [][]byte{
		EncodeAck(ProtoHeartbeat, 9),
		EncodeAck(0x94, 1),
		EncodeRequestLocation(65535),
		EncodeTimeResponse(time.Now(), 3),
	}

	for _, raw := range frames {
		r := NewReader()
		r.Push(raw)
		f, err := r.Next()
		require.NoError(t, err)
		require.NotNil(t, f)
		assert.Equal(t, raw, f.Raw)
	}
}
