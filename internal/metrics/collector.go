package gwmetrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "trackgw"
	subsystem = "ingest"
)

// Label names for gateway metrics.
const (
	labelPort   = "port"
	labelFamily = "family"
	labelPhase  = "phase"
	labelState  = "state"
)

// Subscriber gauge states.
const (
	StateAttached      = "attached"
	StateAuthenticated = "authenticated"
)

// -------------------------------------------------------------------------
// Collector — Prometheus Gateway Metrics
// -------------------------------------------------------------------------

// Collector holds all gateway Prometheus metrics.
//
// Connection and frame counters carry the listener port and protocol family
// so a misbehaving device population on one port is visible in isolation.
// Fix counters are per family only; per-IMEI labels would explode
// cardinality on large fleets.
type Collector struct {
	// Connections tracks currently open device connections per port.
	Connections *prometheus.GaugeVec

	// ConnectionsRejected counts connections refused by the per-port limit.
	ConnectionsRejected *prometheus.CounterVec

	// FramesReceived counts validated frames per port.
	FramesReceived *prometheus.CounterVec

	// FramingErrors counts checksum, marker and overflow failures per port.
	FramingErrors *prometheus.CounterVec

	// AcksSent counts acknowledgement frames written back to devices.
	AcksSent *prometheus.CounterVec

	// FixesEmitted counts normalized fixes delivered to the fan-out.
	FixesEmitted *prometheus.CounterVec

	// FixesRejected counts records dropped by coordinate validation.
	FixesRejected *prometheus.CounterVec

	// FixesSuppressed counts records suppressed as duplicates.
	FixesSuppressed *prometheus.CounterVec

	// PollRequests counts request-location frames sent, per scheduler phase.
	PollRequests *prometheus.CounterVec

	// Subscribers tracks attached and authenticated subscriber counts.
	Subscribers *prometheus.GaugeVec
}

// NewCollector creates a Collector with all gateway metrics registered
// against the provided prometheus.Registerer. If reg is nil,
// prometheus.DefaultRegisterer is used.
//
// All metrics carry the "trackgw_ingest_" prefix (namespace_subsystem).
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Connections,
		c.ConnectionsRejected,
		c.FramesReceived,
		c.FramingErrors,
		c.AcksSent,
		c.FixesEmitted,
		c.FixesRejected,
		c.FixesSuppressed,
		c.PollRequests,
		c.Subscribers,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	portLabels := []string{labelPort, labelFamily}
	familyLabels := []string{labelFamily}

	return &Collector{
		Connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connections",
			Help:      "Number of currently open device connections.",
		}, portLabels),

		ConnectionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connections_rejected_total",
			Help:      "Total connections refused by the per-port connection limit.",
		}, portLabels),

		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_received_total",
			Help:      "Total validated frames extracted from device streams.",
		}, portLabels),

		FramingErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "framing_errors_total",
			Help:      "Total framing failures: bad markers, bad checksums, buffer overflows.",
		}, portLabels),

		AcksSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "acks_sent_total",
			Help:      "Total acknowledgement frames written back to devices.",
		}, portLabels),

		FixesEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fixes_emitted_total",
			Help:      "Total normalized position fixes delivered to subscribers.",
		}, familyLabels),

		FixesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fixes_rejected_total",
			Help:      "Total records dropped by coordinate validation.",
		}, familyLabels),

		FixesSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fixes_suppressed_total",
			Help:      "Total records suppressed as duplicates of the recent window.",
		}, familyLabels),

		PollRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "poll_requests_total",
			Help:      "Total request-location frames sent, per scheduler phase.",
		}, []string{labelPhase}),

		Subscribers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "subscribers",
			Help:      "Current subscriber counts by state.",
		}, []string{labelState}),
	}
}

// -------------------------------------------------------------------------
// Connection Lifecycle
// -------------------------------------------------------------------------

// ConnOpened increments the open connections gauge for the given port.
func (c *Collector) ConnOpened(port int, family string) {
	c.Connections.WithLabelValues(strconv.Itoa(port), family).Inc()
}

// ConnClosed decrements the open connections gauge for the given port.
func (c *Collector) ConnClosed(port int, family string) {
	c.Connections.WithLabelValues(strconv.Itoa(port), family).Dec()
}

// ConnRejected increments the rejected connections counter for the given port.
func (c *Collector) ConnRejected(port int, family string) {
	c.ConnectionsRejected.WithLabelValues(strconv.Itoa(port), family).Inc()
}

// -------------------------------------------------------------------------
// Frame Counters
// -------------------------------------------------------------------------

// IncFramesReceived increments the validated frames counter.
func (c *Collector) IncFramesReceived(port int, family string) {
	c.FramesReceived.WithLabelValues(strconv.Itoa(port), family).Inc()
}

// IncFramingErrors increments the framing failure counter.
func (c *Collector) IncFramingErrors(port int, family string) {
	c.FramingErrors.WithLabelValues(strconv.Itoa(port), family).Inc()
}

// IncAcksSent increments the acknowledgement counter.
func (c *Collector) IncAcksSent(port int, family string) {
	c.AcksSent.WithLabelValues(strconv.Itoa(port), family).Inc()
}

// -------------------------------------------------------------------------
// Fix Counters
// -------------------------------------------------------------------------

// IncFixesEmitted increments the emitted fixes counter.
func (c *Collector) IncFixesEmitted(family string) {
	c.FixesEmitted.WithLabelValues(family).Inc()
}

// IncFixesRejected increments the validation-rejected counter.
func (c *Collector) IncFixesRejected(family string) {
	c.FixesRejected.WithLabelValues(family).Inc()
}

// IncFixesSuppressed increments the duplicate-suppressed counter.
func (c *Collector) IncFixesSuppressed(family string) {
	c.FixesSuppressed.WithLabelValues(family).Inc()
}

// -------------------------------------------------------------------------
// Poll Scheduler
// -------------------------------------------------------------------------

// IncPollRequests increments the request-location counter for a phase.
func (c *Collector) IncPollRequests(phase string) {
	c.PollRequests.WithLabelValues(phase).Inc()
}

// -------------------------------------------------------------------------
// Subscribers
// -------------------------------------------------------------------------

// SetSubscribers records the current subscriber gauge values.
func (c *Collector) SetSubscribers(attached, authenticated int) {
	c.Subscribers.WithLabelValues(StateAttached).Set(float64(attached))
	c.Subscribers.WithLabelValues(StateAuthenticated).Set(float64(authenticated))
}
