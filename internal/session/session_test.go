package session

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(t *testing.T) (*Session, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	return New(server, "jimi", 7000, discardLogger()), client
}

func TestSessionIMEIImmutable(t *testing.T) {
	sess, _ := newTestSession(t)

	sess.StampIMEI("356938035643809")
	sess.StampIMEI("111111111111111")

	if got := sess.IMEI(); got != "356938035643809" {
		t.Errorf("IMEI() = %q, want the first stamp to stick", got)
	}
}

func TestSessionSerialMonotonic(t *testing.T) {
	sess, _ := newTestSession(t)

	prev := sess.NextSerial()
	for i := 0; i < 100; i++ {
		next := sess.NextSerial()
		if next != prev+1 {
			t.Fatalf("serial jumped from %d to %d", prev, next)
		}
		prev = next
	}
}

func TestSessionWriteAfterClose(t *testing.T) {
	sess, client := newTestSession(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 64)
		for {
			if _, err := client.Read(buf); err != nil {
				return
			}
		}
	}()

	if err := sess.Write([]byte{0x78, 0x78}); err != nil {
		t.Fatalf("Write before close: %v", err)
	}

	sess.Close()

	if err := sess.Write([]byte{0x78, 0x78}); !errors.Is(err, ErrClosed) {
		t.Errorf("Write after close = %v, want ErrClosed", err)
	}
	if got := sess.State(); got != StateClosed {
		t.Errorf("State() = %v, want Closed", got)
	}

	// Close is idempotent.
	sess.Close()
	<-done
}

// deadlineConn records write deadlines set on the wrapped connection.
type deadlineConn struct {
	net.Conn

	mu        sync.Mutex
	deadlines []time.Time
}

func (c *deadlineConn) SetWriteDeadline(t time.Time) error {
	c.mu.Lock()
	c.deadlines = append(c.deadlines, t)
	c.mu.Unlock()
	return c.Conn.SetWriteDeadline(t)
}

func TestSessionWriteSetsDeadline(t *testing.T) {
	server, client := net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	conn := &deadlineConn{Conn: server}
	sess := New(conn, "jimi", 7000, discardLogger())

	go func() {
		buf := make([]byte, 64)
		_, _ = client.Read(buf)
	}()

	before := time.Now()
	if err := sess.Write([]byte{0x78, 0x78}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.deadlines) != 1 {
		t.Fatalf("SetWriteDeadline called %d times, want 1", len(conn.deadlines))
	}
	if !conn.deadlines[0].After(before) {
		t.Errorf("write deadline %v not in the future", conn.deadlines[0])
	}
}

func TestSessionSnapshot(t *testing.T) {
	sess, _ := newTestSession(t)

	sess.StampIMEI("356938035643809")
	sess.CountFrame()
	sess.CountFrame()
	sess.CountFix()
	sess.CountAck()
	sess.MarkFix(time.Date(2024, 2, 3, 15, 5, 6, 0, time.UTC))

	snap := sess.Snapshot()
	if snap.IMEI != "356938035643809" {
		t.Errorf("snapshot IMEI = %q", snap.IMEI)
	}
	if snap.Family != "jimi" || snap.Port != 7000 {
		t.Errorf("snapshot port/family = %d/%q", snap.Port, snap.Family)
	}
	if snap.FramesIn != 2 || snap.FixesEmitted != 1 || snap.AcksSent != 1 {
		t.Errorf("snapshot counters = %+v", snap)
	}
	if snap.LastFix.IsZero() {
		t.Error("snapshot LastFix is zero")
	}
	if snap.State != "Connected" {
		t.Errorf("snapshot State = %q", snap.State)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	a, _ := newTestSession(t)
	b, _ := newTestSession(t)
	a.StampIMEI("356938035643809")

	idA := reg.Add(a)
	idB := reg.Add(b)

	if reg.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", reg.Count())
	}

	snaps := reg.Snapshots()
	if len(snaps) != 2 {
		t.Fatalf("Snapshots() returned %d entries", len(snaps))
	}

	reg.Remove(idA)
	reg.Remove(idA)
	if reg.Count() != 1 {
		t.Errorf("Count() after remove = %d, want 1", reg.Count())
	}
	reg.Remove(idB)
	if reg.Count() != 0 {
		t.Errorf("Count() = %d, want 0", reg.Count())
	}
}
