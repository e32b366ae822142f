package session

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/intelcon-group/trackgw/internal/fanout"
	gwmetrics "github.com/intelcon-group/trackgw/internal/metrics"
	"github.com/intelcon-group/trackgw/internal/protocol/jimi"
	"github.com/intelcon-group/trackgw/internal/telemetry"
)

// readBufferSize is the per-connection read buffer. Tracker frames are
// tens of bytes; 4 KiB absorbs the largest reconnect burst seen.
const readBufferSize = 4096

// Deps bundles the process-wide collaborators every handler needs.
type Deps struct {
	Logger   *slog.Logger
	Metrics  *gwmetrics.Collector
	Hub      *fanout.Hub
	Registry *Registry
	Dedup    *telemetry.Deduper
	Clock    clock.Clock

	// IdleTimeout closes connections with no traffic for this long.
	IdleTimeout time.Duration
}

// JimiHandler serves one GT06-family port.
type JimiHandler struct {
	Deps

	Port int

	// HemisphereWest forces decoded longitudes negative on this port.
	HemisphereWest bool
}

// Handle owns one accepted connection until it closes. Blocks for the
// connection lifetime; cancel ctx to shut the session down.
func (h *JimiHandler) Handle(ctx context.Context, conn net.Conn) {
	sess := New(conn, telemetry.FamilyJimi, h.Port, h.Logger)
	id := h.Registry.Add(sess)
	defer h.Registry.Remove(id)
	defer sess.Close()

	stop := context.AfterFunc(ctx, sess.Close)
	defer stop()

	dec := &jimi.Decoder{HemisphereWest: h.HemisphereWest}
	reader := jimi.NewReader()
	buf := make([]byte, readBufferSize)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(h.IdleTimeout)); err != nil {
			return
		}
		n, err := conn.Read(buf)
		if n > 0 {
			reader.Push(buf[:n])
			if !h.drain(sess, dec, reader) {
				return
			}
		}
		if err != nil {
			logReadEnd(sess, err)
			return
		}
	}
}

// drain extracts every complete frame from the reassembly buffer. Returns
// false when the connection should be torn down.
func (h *JimiHandler) drain(sess *Session, dec *jimi.Decoder, reader *jimi.Reader) bool {
	for {
		frame, err := reader.Next()
		if err != nil {
			sess.CountFramingError()
			h.Metrics.IncFramingErrors(h.Port, telemetry.FamilyJimi)

			var fe *jimi.FramingError
			if errors.As(err, &fe) && fe.Recoverable {
				sess.Logger().Warn("frame discarded", slog.Any("error", err))
				continue
			}
			sess.Logger().Error("unrecoverable framing error", slog.Any("error", err))
			return false
		}
		if frame == nil {
			return true
		}

		sess.CountFrame()
		sess.Touch()
		h.Metrics.IncFramesReceived(h.Port, telemetry.FamilyJimi)

		if !h.dispatch(sess, dec, frame) {
			return false
		}
	}
}

func (h *JimiHandler) dispatch(sess *Session, dec *jimi.Decoder, frame *jimi.Frame) bool {
	msg, err := dec.Decode(frame)
	if err != nil {
		// Bad IMEI: the login is rejected without an ACK. The connection
		// stays up so a re-sent, well-formed login can still succeed.
		sess.Logger().Warn("login rejected", slog.Any("error", err))
		return true
	}

	switch m := msg.(type) {
	case *jimi.Login:
		return h.handleLogin(sess, m)
	case *jimi.GPSFix:
		h.handleFix(sess, m)
		return true
	case *jimi.Alarm:
		if !h.writeAck(sess, jimi.EncodeAck(m.MessageProtocol(), m.MessageSerial())) {
			return false
		}
		h.handleAlarm(sess, m)
		return true
	case *jimi.Heartbeat:
		return h.writeAck(sess, jimi.EncodeAck(m.MessageProtocol(), m.MessageSerial()))
	case *jimi.TimeRequest:
		return h.writeAck(sess, jimi.EncodeTimeResponse(h.Clock.Now(), m.MessageSerial()))
	case *jimi.Unknown:
		if jimi.NoReply(m.MessageProtocol()) {
			sess.Logger().Debug("frame without reply",
				slog.Int("protocol", int(m.MessageProtocol())))
			return true
		}
		return h.writeAck(sess, jimi.EncodeAck(m.MessageProtocol(), m.MessageSerial()))
	default:
		return true
	}
}

// handleLogin acknowledges a first login and arms the poll scheduler. A
// duplicate login is ignored outright.
func (h *JimiHandler) handleLogin(sess *Session, m *jimi.Login) bool {
	res := sess.Apply(EventLogin)
	if !res.Changed {
		sess.Logger().Debug("duplicate login", slog.String("imei", m.IMEI))
		return true
	}

	for _, action := range res.Actions {
		switch action {
		case ActionStampIMEI:
			sess.StampIMEI(m.IMEI)
		case ActionSendLoginAck:
			if !h.writeAck(sess, jimi.EncodeAck(jimi.ProtoLogin, m.MessageSerial())) {
				return false
			}
			sess.Logger().Info("device logged in",
				slog.Int("type_id", int(m.TypeID)))
		case ActionSchedulePoller:
			h.startPoller(sess)
		}
	}
	return true
}

// startPoller attaches the poll scheduler. The poller itself waits out the
// settle delay before its first fire.
func (h *JimiHandler) startPoller(sess *Session) {
	p := NewPoller(h.Clock, sess.Logger(), func(phase string) error {
		frame := jimi.EncodeRequestLocation(sess.NextSerial())
		if err := sess.Write(frame); err != nil {
			return err
		}
		h.Metrics.IncPollRequests(phase)
		return nil
	}, sess.LastFix)

	if !sess.SetPoller(p) {
		// Lost a race with close; never start a timer for a dead session.
		p.Stop()
		return
	}
	p.Start()
	sess.Apply(EventPollerStart)
}

// handleFix normalizes and publishes one positioning frame. GPS frames get
// no acknowledgement.
func (h *JimiHandler) handleFix(sess *Session, m *jimi.GPSFix) {
	fix, ok := h.normalizeFix(sess, m)
	if !ok {
		return
	}
	sess.CountFix()
	h.Metrics.IncFixesEmitted(telemetry.FamilyJimi)
	h.Hub.Publish(fanout.FixMessage(fix))
}

// handleAlarm publishes an alarm report through the alert channel.
func (h *JimiHandler) handleAlarm(sess *Session, m *jimi.Alarm) {
	fix, ok := h.normalizeFix(sess, &m.Fix)
	if !ok {
		return
	}
	sess.CountFix()
	h.Metrics.IncFixesEmitted(telemetry.FamilyJimi)
	h.Hub.Publish(fanout.AlertMessage(fix, m.Type))
	sess.Logger().Warn("device alarm", slog.Int("alarm_type", int(m.Type)))
}

// normalizeFix runs one decoded fix through validation and dedup. Returns
// ok=false when nothing should be emitted.
func (h *JimiHandler) normalizeFix(sess *Session, m *jimi.GPSFix) (*telemetry.Fix, bool) {
	imei := sess.IMEI()
	if imei == "" {
		sess.Logger().Debug("fix before login, dropped")
		return nil, false
	}
	if !m.Positioned {
		return nil, false
	}

	fix := telemetry.Fix{
		IMEI:       imei,
		Timestamp:  m.Timestamp,
		Latitude:   m.Latitude,
		Longitude:  m.Longitude,
		Speed:      m.Speed,
		Course:     float64(m.Course),
		Satellites: m.Satellites,
		Positioned: m.Positioned,
		Family:     telemetry.FamilyJimi,
		ProtocolID: uint16(m.MessageProtocol()),
		Serial:     m.MessageSerial(),
		SourcePort: h.Port,
		Cell: &telemetry.CellInfo{
			MCC:    m.Cell.MCC,
			MNC:    m.Cell.MNC,
			LAC:    m.Cell.LAC,
			CellID: m.Cell.CellID,
		},
	}

	out := telemetry.Normalize([]telemetry.Fix{fix})
	if len(out) == 0 {
		h.Metrics.IncFixesRejected(telemetry.FamilyJimi)
		return nil, false
	}

	// A valid fix counts as the device responding, duplicates included.
	sess.MarkFix(h.Clock.Now())

	if h.Dedup.Seen(&out[0]) {
		h.Metrics.IncFixesSuppressed(telemetry.FamilyJimi)
		return nil, false
	}
	return &out[0], true
}

// writeAck sends one reply frame. Returns false when the socket is gone.
func (h *JimiHandler) writeAck(sess *Session, frame []byte) bool {
	if err := sess.Write(frame); err != nil {
		if !errors.Is(err, ErrClosed) {
			sess.Logger().Debug("ack write failed", slog.Any("error", err))
		}
		return false
	}
	sess.CountAck()
	h.Metrics.IncAcksSent(h.Port, telemetry.FamilyJimi)
	return true
}

// logReadEnd classifies why the read loop ended.
func logReadEnd(sess *Session, err error) {
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		sess.Logger().Info("idle timeout, closing")
	case errors.Is(err, net.ErrClosed):
		// Closed by our own shutdown path.
	default:
		sess.Logger().Debug("connection ended", slog.Any("error", err))
	}
}
