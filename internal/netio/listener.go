package netio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	gwmetrics "github.com/intelcon-group/trackgw/internal/metrics"
)

// acceptRetryDelay backs off the accept loop after a transient error
// (EMFILE and friends) instead of spinning.
const acceptRetryDelay = 100 * time.Millisecond

// Handler owns one accepted connection for its lifetime. Implementations
// must return when ctx is cancelled or the peer goes away.
type Handler interface {
	Handle(ctx context.Context, conn net.Conn)
}

// PortConfig describes one listening port.
type PortConfig struct {
	// Addr is the listen address, e.g. ":7000".
	Addr string

	// Port is the advertised port number used in logs, metrics and
	// emitted fixes.
	Port int

	// Family is the protocol family tag for metrics.
	Family string

	// MaxConns caps concurrent connections on this port. Excess
	// connections are accepted and immediately closed, which devices
	// treat as a signal to back off and retry.
	MaxConns int

	// KeepAlive is the TCP keep-alive probe interval.
	KeepAlive time.Duration
}

// Listener accepts device connections on one port and hands each to a
// Handler in its own goroutine.
type Listener struct {
	logger  *slog.Logger
	metrics *gwmetrics.Collector
	cfg     PortConfig
	handler Handler

	ln  net.Listener
	sem chan struct{}
	wg  sync.WaitGroup
}

// NewListener binds the port. Nothing is accepted until Run.
func NewListener(cfg PortConfig, handler Handler, logger *slog.Logger, metrics *gwmetrics.Collector) (*Listener, error) {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", cfg.Addr, err)
	}

	return &Listener{
		logger: logger.With(
			slog.Int("port", cfg.Port),
			slog.String("family", cfg.Family),
		),
		metrics: metrics,
		cfg:     cfg,
		handler: handler,
		ln:      ln,
		sem:     make(chan struct{}, cfg.MaxConns),
	}, nil
}

// Addr returns the bound address, useful when the config asked for port 0.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close releases the listening socket. A running accept loop returns.
func (l *Listener) Close() error { return l.ln.Close() }

// Run accepts connections until ctx is cancelled, then waits for every
// connection worker to finish.
func (l *Listener) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		_ = l.ln.Close()
	})
	defer stop()

	l.logger.Info("listening", slog.String("addr", l.ln.Addr().String()))

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			l.logger.Warn("accept failed", slog.Any("error", err))
			time.Sleep(acceptRetryDelay)
			continue
		}

		select {
		case l.sem <- struct{}{}:
		default:
			l.metrics.ConnRejected(l.cfg.Port, l.cfg.Family)
			l.logger.Warn("connection limit reached, refusing",
				slog.String("remote", conn.RemoteAddr().String()),
				slog.Int("limit", l.cfg.MaxConns))
			_ = conn.Close()
			continue
		}

		l.tune(conn)
		l.metrics.ConnOpened(l.cfg.Port, l.cfg.Family)
		l.logger.Debug("connection accepted",
			slog.String("remote", conn.RemoteAddr().String()))

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			defer func() {
				<-l.sem
				l.metrics.ConnClosed(l.cfg.Port, l.cfg.Family)
			}()
			l.handler.Handle(ctx, conn)
		}()
	}

	l.wg.Wait()
	l.logger.Info("listener stopped")
	return nil
}

// tune applies socket options to an accepted connection: keep-alive probes
// so half-dead cellular links are detected, and TCP_USER_TIMEOUT so queued
// ACKs do not linger toward a vanished device.
func (l *Listener) tune(conn net.Conn) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	if err := tc.SetKeepAlive(true); err != nil {
		l.logger.Debug("set keepalive", slog.Any("error", err))
		return
	}
	if err := tc.SetKeepAlivePeriod(l.cfg.KeepAlive); err != nil {
		l.logger.Debug("set keepalive period", slog.Any("error", err))
	}
	if err := setUserTimeout(tc, 3*l.cfg.KeepAlive); err != nil {
		l.logger.Debug("set user timeout", slog.Any("error", err))
	}
}
