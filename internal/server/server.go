// Package server implements the admin HTTP surface: device stats,
// health, and the live WebSocket feed.
package server

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"nhooyr.io/websocket"

	"github.com/intelcon-group/trackgw/internal/fanout"
	gwmetrics "github.com/intelcon-group/trackgw/internal/metrics"
	"github.com/intelcon-group/trackgw/internal/session"
)

// Server exposes the admin endpoints. It is a thin adapter between HTTP
// and the internal registry and fan-out hub.
type Server struct {
	logger   *slog.Logger
	registry *session.Registry
	hub      *fanout.Hub
	metrics  *gwmetrics.Collector
	token    string
}

// New creates the admin server. An empty token lets subscribers attach
// without authenticating.
func New(registry *session.Registry, hub *fanout.Hub, metrics *gwmetrics.Collector, token string, logger *slog.Logger) *Server {
	return &Server{
		logger:   logger.With(slog.String("component", "admin")),
		registry: registry,
		hub:      hub,
		metrics:  metrics,
		token:    token,
	}
}

// Handler returns the admin HTTP handler with logging and panic recovery
// applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /jimi/stats", s.handleStats)
	mux.HandleFunc("GET /subscribe", s.handleSubscribe)

	return RecoveryMiddleware(s.logger)(LoggingMiddleware(s.logger)(mux))
}

// ---- health ----

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// ---- stats ----

// statsResponse is the GET /jimi/stats body.
type statsResponse struct {
	DeviceCount int                `json:"device_count"`
	Sessions    []session.Snapshot `json:"sessions"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	snaps := s.registry.Snapshots()
	s.writeJSON(w, statsResponse{
		DeviceCount: len(snaps),
		Sessions:    snaps,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		s.logger.Warn("encode response", slog.Any("error", err))
	}
}

// ---- live feed ----

// handleSubscribe upgrades the request to a WebSocket, attaches it to the
// fan-out hub, and holds the connection until the peer goes away. Inbound
// messages are read and discarded to service control frames.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logger.Warn("websocket accept failed",
			slog.String("remote", r.RemoteAddr),
			slog.Any("error", err))
		return
	}

	id := s.hub.Attach(fanout.NewWSSubscriber(conn))
	s.hub.Authenticate(id)
	s.metrics.SetSubscribers(s.hub.Count())

	s.logger.Info("subscriber connected",
		slog.String("subscriber", id),
		slog.String("remote", r.RemoteAddr))

	defer func() {
		s.hub.Detach(id)
		s.metrics.SetSubscribers(s.hub.Count())
		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Info("subscriber disconnected", slog.String("subscriber", id))
	}()

	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

// authorize checks the subscriber token from the query string or a bearer
// header. Comparison is constant-time.
func (s *Server) authorize(r *http.Request) bool {
	if s.token == "" {
		return true
	}

	presented := r.URL.Query().Get("token")
	if presented == "" {
		presented = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}

	return subtle.ConstantTimeCompare([]byte(presented), []byte(s.token)) == 1
}
