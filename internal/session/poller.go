package session

import (
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
)

// Poll scheduler phases. A fresh login gets polled hard until the device
// proves it reports on its own, then the cadence backs off.
const (
	PhaseAggressive = "aggressive"
	PhaseSteady     = "steady"
	PhaseIdle       = "idle"
)

// Scheduler timing. The settle delay lets the device finish its own
// post-login burst before the first request lands.
const (
	settleDelay        = 500 * time.Millisecond
	aggressiveInterval = 15 * time.Second
	aggressiveMaxFires = 6
	steadyInterval     = 60 * time.Second
	steadyThreshold    = 90 * time.Second
	idleInterval       = 300 * time.Second
)

// Poller drives request-location frames toward one Jimi session. It runs
// as its own goroutine; Stop cancels it synchronously, so after Stop
// returns no further frame is sent.
type Poller struct {
	logger *slog.Logger
	clk    clock.Clock

	// send transmits one request-location frame. A send error stops the
	// poller; the session is going away.
	send func(phase string) error

	// lastFix reports when the device last delivered a valid fix, zero for
	// never.
	lastFix func() time.Time

	cancel chan struct{}
	done   chan struct{}
}

// NewPoller builds a poller bound to a session's send path. Nothing runs
// until Start.
func NewPoller(clk clock.Clock, logger *slog.Logger, send func(phase string) error, lastFix func() time.Time) *Poller {
	return &Poller{
		logger:  logger.With(slog.String("component", "poller")),
		clk:     clk,
		send:    send,
		lastFix: lastFix,
		cancel:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the scheduler goroutine.
func (p *Poller) Start() {
	go p.run()
}

// Stop cancels the scheduler and waits for the goroutine to exit. Safe to
// call more than once from one goroutine, and concurrently with a
// finished run.
func (p *Poller) Stop() {
	select {
	case <-p.cancel:
	default:
		close(p.cancel)
	}
	<-p.done
}

func (p *Poller) run() {
	defer close(p.done)

	if !p.sleep(settleDelay) {
		return
	}

	if !p.aggressive() {
		return
	}
	if !p.steady() {
		return
	}
	p.idle()
}

// aggressive fires immediately and then every 15 seconds, six fires total.
func (p *Poller) aggressive() bool {
	for i := 0; i < aggressiveMaxFires; i++ {
		if i > 0 && !p.sleep(aggressiveInterval) {
			return false
		}
		if !p.fire(PhaseAggressive) {
			return false
		}
	}
	p.logger.Debug("poll phase change", slog.String("phase", PhaseSteady))
	return true
}

// steady checks every minute; once the device delivered a fix on its own
// within the threshold, it is reporting autonomously and the poller backs
// off to idle.
func (p *Poller) steady() bool {
	for {
		if !p.sleep(steadyInterval) {
			return false
		}
		if p.sinceLastFix() < steadyThreshold {
			p.logger.Debug("device reporting autonomously",
				slog.String("phase", PhaseIdle))
			return true
		}
		if !p.fire(PhaseSteady) {
			return false
		}
	}
}

// idle nudges the device every five minutes, and only if it went quiet for
// that long.
func (p *Poller) idle() {
	for {
		if !p.sleep(idleInterval) {
			return
		}
		if p.sinceLastFix() < idleInterval {
			continue
		}
		if !p.fire(PhaseIdle) {
			return
		}
	}
}

func (p *Poller) sinceLastFix() time.Duration {
	last := p.lastFix()
	if last.IsZero() {
		return idleInterval * 1000
	}
	return p.clk.Now().Sub(last)
}

// fire sends one request-location frame. Returns false when the session is
// gone.
func (p *Poller) fire(phase string) bool {
	if err := p.send(phase); err != nil {
		p.logger.Debug("poll send failed, stopping",
			slog.String("phase", phase),
			slog.Any("error", err))
		return false
	}
	return true
}

// sleep waits d on the mock-friendly clock. Returns false on cancellation.
func (p *Poller) sleep(d time.Duration) bool {
	t := p.clk.Timer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-p.cancel:
		return false
	}
}
