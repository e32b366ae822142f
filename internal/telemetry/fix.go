// Package telemetry defines the canonical position record and the
// validation pipeline between protocol decoders and subscriber fan-out:
// coordinate sanity checks, range clamps, per-IMEI duplicate suppression
// and stationary consolidation.
package telemetry

import (
	"fmt"
	"time"
)

// Protocol family tags carried on emitted fixes.
const (
	FamilyJimi    = "jimi"
	FamilyRuptela = "ruptela"
	FamilyBypass  = "bypass"
)

// CellInfo identifies the serving cell reported with a fix.
type CellInfo struct {
	MCC    uint16 `json:"mcc"`
	MNC    uint16 `json:"mnc"`
	LAC    uint32 `json:"lac"`
	CellID uint64 `json:"cell_id"`
}

// Fix is the canonical position record, protocol-independent. Decoders fill
// it, the normalizer validates it, subscribers receive it as JSON.
type Fix struct {
	IMEI      string    `json:"imei"`
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lon"`

	// Speed in km/h, Course in degrees, Altitude in metres.
	Speed    float64 `json:"speed"`
	Course   float64 `json:"course"`
	Altitude float64 `json:"altitude,omitempty"`

	Satellites int     `json:"satellites"`
	HDOP       float64 `json:"hdop,omitempty"`

	// Positioned reports whether the device claimed a live GPS fix.
	Positioned bool `json:"positioned"`

	// Valid is set by the normalizer once the record passes validation.
	Valid bool `json:"valid"`

	// Family is the protocol family tag, ProtocolID the family-specific
	// frame identifier (protocol number or command).
	Family     string `json:"protocol"`
	ProtocolID uint16 `json:"protocol_id"`

	Serial     uint16 `json:"serial,omitempty"`
	SourcePort int    `json:"source_port"`

	Cell *CellInfo `json:"cell_info,omitempty"`

	// IO carries Ruptela IO elements keyed by value width then element id.
	IO map[int]map[uint16]int64 `json:"io_elements,omitempty"`
}

// Key returns the dedup fingerprint: timestamp plus coordinates quantized
// to six decimal places.
func (f *Fix) Key() string {
	return fmt.Sprintf("%d|%.6f|%.6f", f.Timestamp.Unix(), f.Latitude, f.Longitude)
}
