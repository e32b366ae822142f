package gwmetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	gwmetrics "github.com/intelcon-group/trackgw/internal/metrics"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := gwmetrics.NewCollector(reg)

	if c.Connections == nil {
		t.Error("Connections is nil")
	}
	if c.ConnectionsRejected == nil {
		t.Error("ConnectionsRejected is nil")
	}
	if c.FramesReceived == nil {
		t.Error("FramesReceived is nil")
	}
	if c.FramingErrors == nil {
		t.Error("FramingErrors is nil")
	}
	if c.AcksSent == nil {
		t.Error("AcksSent is nil")
	}
	if c.FixesEmitted == nil {
		t.Error("FixesEmitted is nil")
	}
	if c.FixesRejected == nil {
		t.Error("FixesRejected is nil")
	}
	if c.FixesSuppressed == nil {
		t.Error("FixesSuppressed is nil")
	}
	if c.PollRequests == nil {
		t.Error("PollRequests is nil")
	}
	if c.Subscribers == nil {
		t.Error("Subscribers is nil")
	}

	// Verify all metrics are registered by gathering them.
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
}

func TestConnectionGauge(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := gwmetrics.NewCollector(reg)

	c.ConnOpened(7000, "jimi")
	c.ConnOpened(7000, "jimi")
	c.ConnOpened(6000, "ruptela")

	if val := gaugeValue(t, c.Connections, "7000", "jimi"); val != 2 {
		t.Errorf("connections gauge = %v, want 2", val)
	}

	c.ConnClosed(7000, "jimi")

	if val := gaugeValue(t, c.Connections, "7000", "jimi"); val != 1 {
		t.Errorf("after ConnClosed: connections gauge = %v, want 1", val)
	}
	if val := gaugeValue(t, c.Connections, "6000", "ruptela"); val != 1 {
		t.Errorf("ruptela gauge = %v, want 1 (should be unaffected)", val)
	}

	c.ConnRejected(7000, "jimi")
	if val := counterValue(t, c.ConnectionsRejected, "7000", "jimi"); val != 1 {
		t.Errorf("ConnectionsRejected = %v, want 1", val)
	}
}

func TestFrameCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := gwmetrics.NewCollector(reg)

	c.IncFramesReceived(7000, "jimi")
	c.IncFramesReceived(7000, "jimi")
	c.IncFramesReceived(7000, "jimi")
	c.IncFramingErrors(7000, "jimi")
	c.IncAcksSent(7000, "jimi")
	c.IncAcksSent(7000, "jimi")

	if val := counterValue(t, c.FramesReceived, "7000", "jimi"); val != 3 {
		t.Errorf("FramesReceived = %v, want 3", val)
	}
	if val := counterValue(t, c.FramingErrors, "7000", "jimi"); val != 1 {
		t.Errorf("FramingErrors = %v, want 1", val)
	}
	if val := counterValue(t, c.AcksSent, "7000", "jimi"); val != 2 {
		t.Errorf("AcksSent = %v, want 2", val)
	}
}

func TestFixCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := gwmetrics.NewCollector(reg)

	c.IncFixesEmitted("ruptela")
	c.IncFixesEmitted("ruptela")
	c.IncFixesRejected("ruptela")
	c.IncFixesSuppressed("jimi")

	if val := counterValue(t, c.FixesEmitted, "ruptela"); val != 2 {
		t.Errorf("FixesEmitted = %v, want 2", val)
	}
	if val := counterValue(t, c.FixesRejected, "ruptela"); val != 1 {
		t.Errorf("FixesRejected = %v, want 1", val)
	}
	if val := counterValue(t, c.FixesSuppressed, "jimi"); val != 1 {
		t.Errorf("FixesSuppressed = %v, want 1", val)
	}
}

func TestPollAndSubscriberMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := gwmetrics.NewCollector(reg)

	c.IncPollRequests("aggressive")
	c.IncPollRequests("aggressive")
	c.IncPollRequests("steady")

	if val := counterValue(t, c.PollRequests, "aggressive"); val != 2 {
		t.Errorf("PollRequests(aggressive) = %v, want 2", val)
	}
	if val := counterValue(t, c.PollRequests, "steady"); val != 1 {
		t.Errorf("PollRequests(steady) = %v, want 1", val)
	}

	c.SetSubscribers(5, 3)

	if val := gaugeValue(t, c.Subscribers, gwmetrics.StateAttached); val != 5 {
		t.Errorf("Subscribers(attached) = %v, want 5", val)
	}
	if val := gaugeValue(t, c.Subscribers, gwmetrics.StateAuthenticated); val != 3 {
		t.Errorf("Subscribers(authenticated) = %v, want 3", val)
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

// gaugeValue reads the current value of a GaugeVec with the given labels.
func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()

	gauge, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := gauge.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetGauge().GetValue()
}

// counterValue reads the current value of a CounterVec with the given labels.
func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetCounter().GetValue()
}
