// Package fanout delivers normalized telemetry to the set of live
// subscribers. One Hub serves the whole process; producers publish typed
// messages, subscribers attach over any transport that can carry JSON.
package fanout

import (
	"github.com/intelcon-group/trackgw/internal/telemetry"
)

// Message types on the subscriber channel.
const (
	// TypeGPSData tags fixes from record-batch protocols (Ruptela).
	TypeGPSData = "gps-data"

	// TypeJimiData tags fixes from GT06-family devices.
	TypeJimiData = "jimi-data"

	// TypeAlertData tags alarm reports.
	TypeAlertData = "alert-data"
)

// Message is the self-describing envelope pushed to subscribers.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// FixMessage wraps a normalized fix in the envelope for its protocol
// family.
func FixMessage(f *telemetry.Fix) Message {
	t := TypeGPSData
	if f.Family == telemetry.FamilyJimi {
		t = TypeJimiData
	}
	return Message{Type: t, Data: f}
}

// alertData is the alert envelope payload: the fix plus the device's alarm
// code.
type alertData struct {
	*telemetry.Fix

	AlarmType uint8 `json:"alarm_type"`
}

// AlertMessage wraps an alarm report.
func AlertMessage(f *telemetry.Fix, alarmType uint8) Message {
	return Message{Type: TypeAlertData, Data: alertData{Fix: f, AlarmType: alarmType}}
}
