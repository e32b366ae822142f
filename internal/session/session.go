// Package session owns the per-connection state of one tracker device: the
// lifecycle state machine, serialized socket writes, counters for the admin
// API, and the GPS poll scheduler for devices that must be prompted.
package session

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed is returned by Write after the session entered Closed. Nothing
// is ever written to a closed session's socket.
var ErrClosed = errors.New("session closed")

// writeTimeout bounds one socket write. Close waits on the write lock, so a
// stalled peer must fail the write rather than hold the session open.
const writeTimeout = 10 * time.Second

// Session is the per-connection device state. The connection worker owns
// all lifecycle decisions; Write and the snapshot accessors are safe to
// call from the poll scheduler and the registry.
type Session struct {
	logger *slog.Logger

	conn   net.Conn
	family string
	port   int
	remote string

	connectedAt time.Time

	// mu guards state, imei, lastFix and poller. The write path holds it
	// across conn.Write so frames stay atomic on the wire and nothing is
	// written after close.
	mu      sync.Mutex
	state   State
	imei    string
	lastFix time.Time
	poller  *Poller

	// outSerial feeds the monotonic serial for server-initiated frames.
	outSerial atomic.Uint32

	// Counters for the admin API and logs.
	framesIn  atomic.Uint64
	fixesOut  atomic.Uint64
	acksOut   atomic.Uint64
	frameErrs atomic.Uint64
	lastSeen  atomic.Int64
}

// New wraps an accepted connection. The session starts in Connected with no
// identity.
func New(conn net.Conn, family string, port int, logger *slog.Logger) *Session {
	s := &Session{
		logger: logger.With(
			slog.String("remote", conn.RemoteAddr().String()),
			slog.String("family", family),
			slog.Int("port", port),
		),
		conn:        conn,
		family:      family,
		port:        port,
		remote:      conn.RemoteAddr().String(),
		connectedAt: time.Now(),
	}
	s.lastSeen.Store(s.connectedAt.Unix())
	return s
}

// Logger returns the session's child logger. Once the IMEI is stamped it
// carries the device identity.
func (s *Session) Logger() *slog.Logger { return s.logger }

// Family returns the protocol family tag of the owning port.
func (s *Session) Family() string { return s.family }

// Port returns the listener port the device connected to.
func (s *Session) Port() int { return s.port }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IMEI returns the device identity, empty before login.
func (s *Session) IMEI() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.imei
}

// StampIMEI records the device identity once. Later calls are ignored; the
// identity is immutable until close.
func (s *Session) StampIMEI(imei string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.imei != "" {
		return
	}
	s.imei = imei
	s.logger = s.logger.With(slog.String("imei", imei))
}

// Apply runs the state machine and stores the new state. The caller
// executes the returned actions.
func (s *Session) Apply(event Event) FSMResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := ApplyEvent(s.state, event)
	s.state = res.NewState
	return res
}

// Write sends one frame to the device. Writes are serialized and bounded
// by writeTimeout; a session in Closed returns ErrClosed without touching
// the socket.
func (s *Session) Write(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return ErrClosed
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	_, err := s.conn.Write(frame)
	return err
}

// NextSerial returns the next outbound serial. Wraps at 16 bits like the
// wire field.
func (s *Session) NextSerial() uint16 {
	return uint16(s.outSerial.Add(1))
}

// Touch updates the last-seen stamp. Called for every validated frame.
func (s *Session) Touch() {
	s.lastSeen.Store(time.Now().Unix())
}

// MarkFix stores the wall-clock time a valid fix arrived. The poll
// scheduler reads it to decide whether the device reports autonomously.
func (s *Session) MarkFix(now time.Time) {
	s.mu.Lock()
	s.lastFix = now
	s.mu.Unlock()
}

// LastFix returns the wall-clock time of the last valid fix, zero if none.
func (s *Session) LastFix() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFix
}

// SetPoller attaches the poll scheduler handle. At most one poller exists
// per session; attaching to a closed session stops the poller immediately.
func (s *Session) SetPoller(p *Poller) bool {
	s.mu.Lock()
	if s.state == StateClosed || s.poller != nil {
		s.mu.Unlock()
		return false
	}
	s.poller = p
	s.mu.Unlock()
	return true
}

// takePoller detaches and returns the poller handle, nil if none.
func (s *Session) takePoller() *Poller {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.poller
	s.poller = nil
	return p
}

// Close drives the session to Closed: the poller is stopped synchronously,
// the socket is closed, and no further write succeeds. Safe to call more
// than once.
func (s *Session) Close() {
	res := s.Apply(EventClose)
	if !res.Changed {
		return
	}

	for _, action := range res.Actions {
		if action == ActionCancelPoller {
			if p := s.takePoller(); p != nil {
				p.Stop()
			}
		}
	}

	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Debug("socket close", slog.Any("error", err))
	}

	s.logger.Info("session closed",
		slog.String("state", res.OldState.String()),
		slog.Uint64("frames_in", s.framesIn.Load()),
		slog.Uint64("fixes_out", s.fixesOut.Load()))
}

// Counter bumps. Named for what crossed the wire.

func (s *Session) CountFrame()        { s.framesIn.Add(1) }
func (s *Session) CountFix()          { s.fixesOut.Add(1) }
func (s *Session) CountAck()          { s.acksOut.Add(1) }
func (s *Session) CountFramingError() { s.frameErrs.Add(1) }

// Snapshot is the read-only view exposed by the registry and the admin
// API.
type Snapshot struct {
	IMEI          string    `json:"imei"`
	Remote        string    `json:"remote_addr"`
	Port          int       `json:"port"`
	Family        string    `json:"family"`
	State         string    `json:"state"`
	ConnectedAt   time.Time `json:"connected_at"`
	LastSeen      time.Time `json:"last_seen"`
	LastFix       time.Time `json:"last_fix"`
	FramesIn      uint64    `json:"frames_in"`
	FixesEmitted  uint64    `json:"fixes_emitted"`
	AcksSent      uint64    `json:"acks_sent"`
	FramingErrors uint64    `json:"framing_errors"`
}

// Snapshot captures the session's current counters and identity.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	imei, state, lastFix := s.imei, s.state, s.lastFix
	s.mu.Unlock()

	return Snapshot{
		IMEI:          imei,
		Remote:        s.remote,
		Port:          s.port,
		Family:        s.family,
		State:         state.String(),
		ConnectedAt:   s.connectedAt,
		LastSeen:      time.Unix(s.lastSeen.Load(), 0).UTC(),
		LastFix:       lastFix,
		FramesIn:      s.framesIn.Load(),
		FixesEmitted:  s.fixesOut.Load(),
		AcksSent:      s.acksOut.Load(),
		FramingErrors: s.frameErrs.Load(),
	}
}
