// Package commands implements the trackgwctl CLI commands.
package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/intelcon-group/trackgw/internal/session"
	"github.com/intelcon-group/trackgw/internal/telemetry"
)

const (
	formatJSON  = "json"
	formatTable = "table"
	valueNever  = "never"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// formatStats renders the gateway summary in the requested format.
func formatStats(reply *statsReply, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalIndented(reply)
	case formatTable:
		return formatStatsTable(reply)
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatDevices renders the device session list in the requested format.
func formatDevices(sessions []session.Snapshot, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalIndented(sessions)
	case formatTable:
		return formatDevicesTable(sessions)
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatFeedMessage renders one live-feed message in the requested format.
func formatFeedMessage(msg *feedMessage, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalIndented(msg)
	case formatTable:
		return formatFeedLine(msg), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// --- Table formatters ---

func formatStatsTable(reply *statsReply) (string, error) {
	byFamily := make(map[string]int)
	byState := make(map[string]int)
	for _, s := range reply.Sessions {
		byFamily[s.Family]++
		byState[s.State]++
	}

	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "Connected Devices:\t%d\n", reply.DeviceCount)
	for _, family := range sortedKeys(byFamily) {
		fmt.Fprintf(w, "  %s:\t%d\n", family, byFamily[family])
	}
	for _, state := range sortedKeys(byState) {
		fmt.Fprintf(w, "  state %s:\t%d\n", state, byState[state])
	}

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("flush tabwriter: %w", err)
	}

	return buf.String(), nil
}

func formatDevicesTable(sessions []session.Snapshot) (string, error) {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IMEI\tFAMILY\tPORT\tSTATE\tREMOTE\tLAST-FIX\tFIXES\tFRAMES\tERRORS")

	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%d\t%d\t%d\n",
			orDash(s.IMEI),
			s.Family,
			s.Port,
			s.State,
			s.Remote,
			shortTime(s.LastFix),
			s.FixesEmitted,
			s.FramesIn,
			s.FramingErrors,
		)
	}

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("flush tabwriter: %w", err)
	}

	return buf.String(), nil
}

func formatFeedLine(msg *feedMessage) string {
	var fix telemetry.Fix
	if err := json.Unmarshal(msg.Data, &fix); err != nil {
		return fmt.Sprintf("[%s] %s", time.Now().Format(time.RFC3339), msg.Type)
	}

	return fmt.Sprintf("[%s] %s  imei=%s  lat=%.6f  lon=%.6f  speed=%.0f  course=%.0f",
		fix.Timestamp.Format(time.RFC3339),
		msg.Type,
		fix.IMEI,
		fix.Latitude,
		fix.Longitude,
		fix.Speed,
		fix.Course,
	)
}

// --- JSON formatter ---

func marshalIndented(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal to JSON: %w", err)
	}

	return string(data) + "\n", nil
}

// --- Helpers ---

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func shortTime(t time.Time) string {
	if t.IsZero() {
		return valueNever
	}
	return t.Format(time.RFC3339)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
