package ruptela

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
)

// Sentinel errors for frame extraction failures.
var (
	// ErrChecksumMismatch indicates the Kermit CRC over the frame body does
	// not match the trailing checksum.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrBadLength indicates a declared length too short to hold the
	// mandatory IMEI and command header.
	ErrBadLength = errors.New("declared length too short")

	// ErrBufferOverflow indicates the reassembly buffer exceeded MaxBuffer
	// without yielding a parseable frame.
	ErrBufferOverflow = errors.New("reassembly buffer overflow")
)

// FramingError wraps a frame extraction failure, mirroring the Jimi reader.
type FramingError struct {
	Err         error
	Recoverable bool
}

func (e *FramingError) Error() string { return fmt.Sprintf("ruptela framing: %v", e.Err) }

func (e *FramingError) Unwrap() error { return e.Err }

// Frame is one validated length-prefixed message. There is no end marker;
// framing relies entirely on the declared length and the CRC.
type Frame struct {
	// IMEI is the device identifier rendered as its decimal string. Every
	// frame carries it; there is no separate login.
	IMEI string

	// Command distinguishes frame kinds.
	Command byte

	// Payload is the content after the command byte. It aliases the raw
	// frame; callers must not retain it across Next calls.
	Payload []byte

	// Raw is the complete frame including length prefix and CRC.
	Raw []byte
}

// Reader reassembles frames from the TCP byte stream. Owned by a single
// connection worker; not safe for concurrent use.
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

// Next extracts the next complete frame. Returns (nil, nil) when more bytes
// are needed; a *FramingError on checksum failure or buffer overflow, with
// the offending bytes discarded.
func (r *Reader) Next() (*Frame, error) {
	if len(r.buf) < minFrame {
		return nil, r.checkOverflow()
	}

	total := int(binary.BigEndian.Uint16(r.buf[0:2])) + lenSize + crcSize
	if total < minFrame {
		// Declared length shorter than the mandatory header; the stream is
		// corrupt beyond resynchronization.
		r.buf = r.buf[:0]
		return nil, &FramingError{
			Err:         fmt.Errorf("%w: %d bytes total", ErrBadLength, total),
			Recoverable: true,
		}
	}
	if len(r.buf) < total {
		return nil, r.checkOverflow()
	}

	frame := r.buf[:total]
	want := binary.BigEndian.Uint16(frame[total-crcSize:])
	if got := Checksum(frame[lenSize : total-crcSize]); got != want {
		r.consume(total)
		return nil, &FramingError{
			Err:         fmt.Errorf("%w: got 0x%04X, want 0x%04X", ErrChecksumMismatch, got, want),
			Recoverable: true,
		}
	}

	raw := make([]byte, total)
	copy(raw, frame)
	r.consume(total)

	return &Frame{
		IMEI:    strconv.FormatUint(binary.BigEndian.Uint64(raw[2:10]), 10),
		Command: raw[10],
		Payload: raw[headerSize : total-crcSize],
		Raw:     raw,
	}, nil
}

// consume drops n bytes from the front of the buffer.
func (r *Reader) consume(n int) {
	r.buf = r.buf[:copy(r.buf, r.buf[n:])]
}

// checkOverflow enforces the reassembly ceiling.
func (r *Reader) checkOverflow() error {
	if len(r.buf) <= MaxBuffer {
		return nil
	}
	r.buf = r.buf[:0]
	return &FramingError{Err: ErrBufferOverflow, Recoverable: true}
}
