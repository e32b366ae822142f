package jimi

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// -------------------------------------------------------------------------
// Framing errors
// -------------------------------------------------------------------------

// Sentinel errors for frame extraction failures.
var (
	// ErrBadStartMarker indicates the buffer does not begin with 0x7878 or 0x7979.
	ErrBadStartMarker = errors.New("bad start marker")

	// ErrBadEndMarker indicates the frame does not close with 0x0D0A.
	ErrBadEndMarker = errors.New("bad end marker")

	// ErrChecksumMismatch indicates the CRC-ITU over the frame body does not
	// match the trailing checksum field.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrBufferOverflow indicates the reassembly buffer exceeded MaxBuffer
	// without yielding a parseable frame.
	ErrBufferOverflow = errors.New("reassembly buffer overflow")
)

// FramingError wraps a frame extraction failure. Recoverable errors discard
// the offending frame but keep the connection; the device's own retry
// cadence recovers the stream.
type FramingError struct {
	Err         error
	Recoverable bool
}

func (e *FramingError) Error() string { return fmt.Sprintf("jimi framing: %v", e.Err) }

func (e *FramingError) Unwrap() error { return e.Err }

// -------------------------------------------------------------------------
// Frame
// -------------------------------------------------------------------------

// Frame is one validated on-wire message: markers checked, declared length
// consistent, checksum verified.
type Frame struct {
	// Start is the start marker, StartShort or StartLong.
	Start uint16

	// Protocol is the protocol number byte.
	Protocol byte

	// Payload is the content between the protocol number and the serial.
	// It aliases the raw frame; callers must not retain it across Next calls.
	Payload []byte

	// Serial is the information serial number from the frame tail. Every
	// acknowledgement echoes it.
	Serial uint16

	// Raw is the complete frame including markers and checksum.
	Raw []byte
}

// -------------------------------------------------------------------------
// Reader — stream reassembler
// -------------------------------------------------------------------------

// Reader reassembles frames from an unreliable TCP byte stream. Push
// appends raw bytes; Next yields one validated frame at a time.
//
// A Reader is owned by a single connection worker and is not safe for
// concurrent use.
type Reader struct {
	buf []byte
}

// NewReader returns a Reader with an empty reassembly buffer.
func NewReader() *Reader {
	return &Reader{buf: make([]byte, 0, 512)}
}

// Push appends raw bytes received from the transport.
func (r *Reader) Push(p []byte) {
	r.buf = append(r.buf, p...)
}

// Buffered returns the number of bytes awaiting extraction.
func (r *Reader) Buffered() int { return len(r.buf) }

// Next extracts the next complete frame from the buffer.
//
// Returns (nil, nil) when more bytes are needed. On a framing error the
// offending bytes are discarded (whole frame for checksum failures, whole
// buffer for marker failures and overflow) and a *FramingError is returned;
// the caller decides whether to keep the connection based on Recoverable.
func (r *Reader) Next() (*Frame, error) {
	if len(r.buf) < headerProbe {
		return nil, r.checkOverflow()
	}

	start := binary.BigEndian.Uint16(r.buf[0:2])
	if start != StartShort && start != StartLong {
		// No resynchronization on a sliding window: drop everything and let
		// the device's next transmission realign the stream.
		r.buf = r.buf[:0]
		return nil, &FramingError{Err: ErrBadStartMarker, Recoverable: true}
	}

	total, ok := r.frameSize(start)
	if !ok {
		return nil, r.checkOverflow()
	}
	if len(r.buf) < total {
		return nil, r.checkOverflow()
	}

	frame := r.buf[:total]
	if end := binary.BigEndian.Uint16(frame[total-endSize:]); end != EndMarker {
		r.buf = r.buf[:0]
		return nil, &FramingError{Err: ErrBadEndMarker, Recoverable: true}
	}

	want := binary.BigEndian.Uint16(frame[total-4 : total-2])
	if got := Checksum(frame[2 : total-4]); got != want {
		r.consume(total)
		return nil, &FramingError{
			Err:         fmt.Errorf("%w: got 0x%04X, want 0x%04X", ErrChecksumMismatch, got, want),
			Recoverable: true,
		}
	}

	f := r.buildFrame(start, frame, total)
	r.consume(total)
	return f, nil
}

// frameSize computes the total frame size from the declared length field.
// Returns ok=false when the buffer is too short to hold the length field.
func (r *Reader) frameSize(start uint16) (int, bool) {
	if start == StartShort {
		// start(2) + len(1) + len bytes + end(2); the declared length covers
		// protocol, content, serial and checksum.
		return int(r.buf[2]) + 5, true
	}
	if len(r.buf) < 6 {
		return 0, false
	}
	return int(binary.BigEndian.Uint16(r.buf[2:4])) + 6, true
}

// buildFrame slices the validated frame into its fields.
func (r *Reader) buildFrame(start uint16, frame []byte, total int) *Frame {
	protoOff := 3
	if start == StartLong {
		protoOff = 4
	}
	raw := make([]byte, total)
	copy(raw, frame)

	payload := raw[protoOff+1 : total-6]
	return &Frame{
		Start:    start,
		Protocol: raw[protoOff],
		Payload:  payload,
		Serial:   binary.BigEndian.Uint16(raw[total-6 : total-4]),
		Raw:      raw,
	}
}

// consume drops n bytes from the front of the buffer.
func (r *Reader) consume(n int) {
	r.buf = r.buf[:copy(r.buf, r.buf[n:])]
}

// checkOverflow enforces the reassembly ceiling. A buffer past MaxBuffer
// with no parseable frame is garbage; drop it and soft-reset.
func (r *Reader) checkOverflow() error {
	if len(r.buf) <= MaxBuffer {
		return nil
	}
	r.buf = r.buf[:0]
	return &FramingError{Err: ErrBufferOverflow, Recoverable: true}
}
