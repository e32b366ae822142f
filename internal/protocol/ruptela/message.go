package ruptela

import "time"

// Message is a decoded inbound frame. Concrete types are Records,
// Identification, Heartbeat and Unknown.
type Message interface {
	// MessageIMEI returns the device identifier from the frame header.
	MessageIMEI() string

	// MessageCommand returns the command identifier of the source frame.
	MessageCommand() byte
}

type base struct {
	IMEI    string
	Command byte
}

func (b base) MessageIMEI() string  { return b.IMEI }
func (b base) MessageCommand() byte { return b.Command }

// Record is one position report inside a Records batch.
type Record struct {
	// Timestamp is the GPS time of the report, UTC.
	Timestamp time.Time

	// TimestampExt is the sub-second extension byte.
	TimestampExt byte

	// RecordExt is the record extension byte of the extended batch format.
	RecordExt byte

	Priority byte

	// Longitude and Latitude in decimal degrees.
	Longitude float64
	Latitude  float64

	// Altitude in metres.
	Altitude float64

	// Angle in degrees from north.
	Angle float64

	Satellites int

	// Speed in km/h.
	Speed uint16

	// HDOP, dimensionless.
	HDOP float64

	EventID uint16

	// IO maps element value width in bytes (1, 2, 4 or 8) to the elements
	// read at that width.
	IO map[int]map[uint16]int64
}

// Records is a batch of position reports (commands 1 and 68).
type Records struct {
	base

	// Left is the number of records the device still holds after this
	// batch.
	Left byte

	Records []Record
}

// Identification carries the device self-description (commands 15 and 18).
type Identification struct {
	base

	DeviceType byte
	Firmware   string
	IMSI       string
	Operator   string

	// Payload keeps the raw content for fields this decoder does not model.
	Payload []byte
}

// Heartbeat is the keep-alive frame (command 16).
type Heartbeat struct {
	base
}

// Unknown is any frame whose command has no dedicated decoder.
type Unknown struct {
	base

	Payload []byte
}
