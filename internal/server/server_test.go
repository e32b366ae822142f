package server_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"nhooyr.io/websocket"

	"github.com/intelcon-group/trackgw/internal/fanout"
	gwmetrics "github.com/intelcon-group/trackgw/internal/metrics"
	"github.com/intelcon-group/trackgw/internal/server"
	"github.com/intelcon-group/trackgw/internal/session"
	"github.com/intelcon-group/trackgw/internal/telemetry"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer spins up the admin surface on an httptest server.
func newTestServer(t *testing.T, token string) (*httptest.Server, *fanout.Hub, *session.Registry) {
	t.Helper()

	logger := discardLogger()
	hub := fanout.NewHub(logger)
	registry := session.NewRegistry()
	metrics := gwmetrics.NewCollector(prometheus.NewRegistry())

	srv := server.New(registry, hub, metrics, token, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return ts, hub, registry
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	ts, _, _ := newTestServer(t, "")

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok\n" {
		t.Errorf("body = %q, want %q", body, "ok\n")
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	ts, _, registry := newTestServer(t, "")

	client, srvConn := net.Pipe()
	t.Cleanup(func() {
		_ = client.Close()
		_ = srvConn.Close()
	})

	sess := session.New(srvConn, "jimi", 7000, discardLogger())
	sess.Apply(session.EventLogin)
	sess.StampIMEI("356938035643809")
	registry.Add(sess)

	resp, err := http.Get(ts.URL + "/jimi/stats")
	if err != nil {
		t.Fatalf("GET /jimi/stats: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var body struct {
		DeviceCount int                `json:"device_count"`
		Sessions    []session.Snapshot `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if body.DeviceCount != 1 {
		t.Fatalf("device_count = %d, want 1", body.DeviceCount)
	}

	snap := body.Sessions[0]
	if snap.IMEI != "356938035643809" {
		t.Errorf("imei = %q", snap.IMEI)
	}
	if snap.Family != "jimi" || snap.Port != 7000 {
		t.Errorf("family/port = %q/%d", snap.Family, snap.Port)
	}
}

func TestStatsEmpty(t *testing.T) {
	t.Parallel()

	ts, _, _ := newTestServer(t, "")

	resp, err := http.Get(ts.URL + "/jimi/stats")
	if err != nil {
		t.Fatalf("GET /jimi/stats: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		DeviceCount int `json:"device_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.DeviceCount != 0 {
		t.Errorf("device_count = %d, want 0", body.DeviceCount)
	}
}

func TestSubscribeRejectsBadToken(t *testing.T) {
	t.Parallel()

	ts, _, _ := newTestServer(t, "s3cret")

	resp, err := http.Get(ts.URL + "/subscribe?token=wrong")
	if err != nil {
		t.Fatalf("GET /subscribe: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestSubscribeReceivesPublishedFixes(t *testing.T) {
	t.Parallel()

	ts, hub, _ := newTestServer(t, "s3cret")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/subscribe?token=s3cret"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	waitForSubscribers(t, hub, 1)

	fix := &telemetry.Fix{
		IMEI:      "356938035643809",
		Timestamp: time.Date(2024, 2, 3, 14, 5, 6, 0, time.UTC),
		Latitude:  46.38888,
		Longitude: 56.76288,
		Family:    telemetry.FamilyJimi,
		Valid:     true,
	}
	if n := hub.Publish(fanout.FixMessage(fix)); n != 1 {
		t.Fatalf("Publish delivered to %d subscribers, want 1", n)
	}

	_, payload, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var msg struct {
		Type string        `json:"type"`
		Data telemetry.Fix `json:"data"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("unmarshal %q: %v", payload, err)
	}

	if msg.Type != fanout.TypeJimiData {
		t.Errorf("type = %q, want %q", msg.Type, fanout.TypeJimiData)
	}
	if msg.Data.IMEI != fix.IMEI {
		t.Errorf("imei = %q, want %q", msg.Data.IMEI, fix.IMEI)
	}
}

func TestSubscribeDetachOnClose(t *testing.T) {
	t.Parallel()

	ts, hub, _ := newTestServer(t, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/subscribe"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	waitForSubscribers(t, hub, 1)

	_ = conn.Close(websocket.StatusNormalClosure, "")

	waitForSubscribers(t, hub, 0)
}

func TestRecoveryMiddleware(t *testing.T) {
	t.Parallel()

	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	handler := server.RecoveryMiddleware(discardLogger())(panicky)
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}
}

// waitForSubscribers polls the hub until the attached count matches.
func waitForSubscribers(t *testing.T, hub *fanout.Hub, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		attached, _ := hub.Count()
		if attached == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	attached, _ := hub.Count()
	t.Fatalf("attached subscribers = %d, want %d", attached, want)
}
