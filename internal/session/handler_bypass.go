package session

import (
	"context"
	"encoding/hex"
	"log/slog"
	"net"
	"time"

	"github.com/intelcon-group/trackgw/internal/telemetry"
)

// BypassHandler serves a log-only port: inbound traffic is hex-dumped at
// debug level and never answered. Used to capture unknown device firmware
// before committing to a decoder.
type BypassHandler struct {
	Deps

	Port int
}

// Handle owns one accepted connection until it closes.
func (h *BypassHandler) Handle(ctx context.Context, conn net.Conn) {
	sess := New(conn, telemetry.FamilyBypass, h.Port, h.Logger)
	id := h.Registry.Add(sess)
	defer h.Registry.Remove(id)
	defer sess.Close()

	stop := context.AfterFunc(ctx, sess.Close)
	defer stop()

	buf := make([]byte, readBufferSize)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(h.IdleTimeout)); err != nil {
			return
		}
		n, err := conn.Read(buf)
		if n > 0 {
			sess.CountFrame()
			sess.Touch()
			sess.Logger().Debug("bypass traffic",
				slog.Int("bytes", n),
				slog.String("hex", hex.EncodeToString(buf[:n])))
		}
		if err != nil {
			logReadEnd(sess, err)
			return
		}
	}
}
