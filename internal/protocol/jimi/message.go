package jimi

import "time"

// Message is a decoded inbound frame. Concrete types are Login, GPSFix,
// Heartbeat, TimeRequest, Alarm and Unknown; handlers dispatch with a type
// switch.
type Message interface {
	// MessageSerial returns the information serial number of the source frame.
	MessageSerial() uint16

	// MessageProtocol returns the protocol number of the source frame.
	MessageProtocol() byte
}

// base carries the fields every message shares.
type base struct {
	Serial   uint16
	Protocol byte
}

func (b base) MessageSerial() uint16 { return b.Serial }
func (b base) MessageProtocol() byte { return b.Protocol }

// Login is the first frame on every connection. The device disconnects
// unless it is acknowledged.
type Login struct {
	base

	// IMEI is the decoded device identifier, 14 to 16 decimal digits.
	IMEI string

	// TypeID is the device model identifier.
	TypeID uint16

	// TZLang is the timezone and language word. Informational only; all
	// timestamps are handled as UTC.
	TZLang uint16
}

// CellInfo identifies the serving cell of a positioning frame.
type CellInfo struct {
	MCC    uint16 `json:"mcc"`
	MNC    uint16 `json:"mnc"`
	LAC    uint32 `json:"lac"`
	CellID uint64 `json:"cell_id"`
}

// GPSFix is a decoded positioning frame (2G or 4G variant).
type GPSFix struct {
	base

	// Timestamp is the device-reported time, taken as UTC.
	Timestamp time.Time

	Latitude  float64
	Longitude float64

	// Speed in km/h.
	Speed float64

	// Course in degrees from north, 0..359.
	Course uint16

	Satellites int

	// Positioned is the GPS-has-fix flag. Unpositioned frames carry the
	// last known coordinates and must not be emitted.
	Positioned bool

	// RealTime distinguishes live reports from flash-stored replays.
	RealTime bool

	Cell CellInfo
}

// Heartbeat is a keep-alive frame (0x23 or 0x36).
type Heartbeat struct {
	base

	// Status is the terminal information byte when present.
	Status byte
}

// TimeRequest asks the server for its current UTC wall clock.
type TimeRequest struct {
	base
}

// Alarm is a positioning frame with an alarm type byte (0x26, 0x27, 0xA4).
type Alarm struct {
	base

	Fix GPSFix

	// Type is the alarm code from the frame tail.
	Type byte
}

// Unknown is any frame whose protocol number has no dedicated decoder, or
// whose payload was too short for its variant.
type Unknown struct {
	base

	Payload []byte
}
