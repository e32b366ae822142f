package session

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/intelcon-group/trackgw/internal/fanout"
	"github.com/intelcon-group/trackgw/internal/protocol/ruptela"
	"github.com/intelcon-group/trackgw/internal/telemetry"
)

// RuptelaHandler serves one Ruptela records port. The FM-Pro5 and FM-Eco5
// variants share the wire format, so one handler covers both.
type RuptelaHandler struct {
	Deps

	Port int
}

// Handle owns one accepted connection until it closes.
func (h *RuptelaHandler) Handle(ctx context.Context, conn net.Conn) {
	sess := New(conn, telemetry.FamilyRuptela, h.Port, h.Logger)
	id := h.Registry.Add(sess)
	defer h.Registry.Remove(id)
	defer sess.Close()

	stop := context.AfterFunc(ctx, sess.Close)
	defer stop()

	reader := ruptela.NewReader()
	buf := make([]byte, readBufferSize)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(h.IdleTimeout)); err != nil {
			return
		}
		n, err := conn.Read(buf)
		if n > 0 {
			reader.Push(buf[:n])
			if !h.drain(sess, reader) {
				return
			}
		}
		if err != nil {
			logReadEnd(sess, err)
			return
		}
	}
}

func (h *RuptelaHandler) drain(sess *Session, reader *ruptela.Reader) bool {
	for {
		frame, err := reader.Next()
		if err != nil {
			sess.CountFramingError()
			h.Metrics.IncFramingErrors(h.Port, telemetry.FamilyRuptela)

			var fe *ruptela.FramingError
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
		h.Metrics.IncFramesReceived(h.Port, telemetry.FamilyRuptela)

		if !h.dispatch(sess, frame) {
			return false
		}
	}
}

func (h *RuptelaHandler) dispatch(sess *Session, frame *ruptela.Frame) bool {
	// Every Ruptela frame carries the IMEI; the first one doubles as the
	// login.
	h.identify(sess, frame.IMEI)

	switch m := ruptela.Decode(frame).(type) {
	case *ruptela.Records:
		accepted := h.handleRecords(sess, m)
		return h.writeAck(sess, ruptela.EncodeRecordsAck(accepted))
	case *ruptela.Identification:
		sess.Logger().Info("device identification",
			slog.Int("device_type", int(m.DeviceType)),
			slog.String("firmware", m.Firmware),
			slog.String("operator", m.Operator))
		return h.writeAck(sess, ruptela.EncodeIdentificationAck(true, 0))
	case *ruptela.Heartbeat:
		return h.writeAck(sess, ruptela.EncodeHeartbeatAck())
	case *ruptela.Unknown:
		sess.Logger().Debug("unknown command, no reply",
			slog.Int("command", int(m.MessageCommand())))
		return true
	default:
		return true
	}
}

// identify stamps the IMEI and advances the lifecycle on the first frame.
func (h *RuptelaHandler) identify(sess *Session, imei string) {
	res := sess.Apply(EventLogin)
	if !res.Changed {
		return
	}
	for _, action := range res.Actions {
		// The per-frame acknowledgement covers the login ACK, and Ruptela
		// devices report unprompted, so only the identity action applies.
		if action == ActionStampIMEI {
			sess.StampIMEI(imei)
			sess.Logger().Info("device identified")
		}
	}
}

// handleRecords validates, deduplicates and publishes one batch. Reports
// whether at least one record survived normalization, which drives the
// positive or negative ACK.
func (h *RuptelaHandler) handleRecords(sess *Session, m *ruptela.Records) bool {
	fixes := make([]telemetry.Fix, 0, len(m.Records))
	for _, rec := range m.Records {
		fixes = append(fixes, telemetry.Fix{
			IMEI:       m.MessageIMEI(),
			Timestamp:  rec.Timestamp,
			Latitude:   rec.Latitude,
			Longitude:  rec.Longitude,
			Speed:      float64(rec.Speed),
			Course:     rec.Angle,
			Altitude:   rec.Altitude,
			Satellites: rec.Satellites,
			HDOP:       rec.HDOP,
			Positioned: true,
			Family:     telemetry.FamilyRuptela,
			ProtocolID: uint16(m.MessageCommand()),
			SourcePort: h.Port,
			IO:         rec.IO,
		})
	}

	normalized := telemetry.Normalize(fixes)
	if rejected := len(fixes) - len(normalized); rejected > 0 {
		for i := 0; i < rejected; i++ {
			h.Metrics.IncFixesRejected(telemetry.FamilyRuptela)
		}
	}
	if len(normalized) == 0 {
		return false
	}

	for _, fix := range telemetry.Consolidate(normalized) {
		if h.Dedup.Seen(&fix) {
			h.Metrics.IncFixesSuppressed(telemetry.FamilyRuptela)
			continue
		}
		sess.CountFix()
		h.Metrics.IncFixesEmitted(telemetry.FamilyRuptela)
		h.Hub.Publish(fanout.FixMessage(&fix))
	}
	return true
}

func (h *RuptelaHandler) writeAck(sess *Session, frame []byte) bool {
	if err := sess.Write(frame); err != nil {
		if !errors.Is(err, ErrClosed) {
			sess.Logger().Debug("ack write failed", slog.Any("error", err))
		}
		return false
	}
	sess.CountAck()
	h.Metrics.IncAcksSent(h.Port, telemetry.FamilyRuptela)
	return true
}
