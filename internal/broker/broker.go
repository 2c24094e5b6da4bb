// Package broker implements the control acceptor: the long-lived listener
// that accepts producer and consumer control connections, runs the session
// handshake on each, and spawns the appropriate worker for the connection's
// lifetime.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kstaniek/qpipe-broker/internal/logging"
	"github.com/kstaniek/qpipe-broker/internal/queue"
	"github.com/kstaniek/qpipe-broker/internal/session"
	"github.com/kstaniek/qpipe-broker/internal/stats"
)

const defaultCapacity = 10_000

// defaultHandshakeTimeout is applied when no WithHandshakeTimeout option is
// given.
const defaultHandshakeTimeout = session.DefaultAuthTimeout

// Broker owns the control listener and coordinates connection lifecycle.
type Broker struct {
	mu   sync.RWMutex
	addr string

	Queue *queue.Queue

	readyOnce sync.Once
	readyCh   chan struct{}
	errCh     chan error

	lastErrMu sync.Mutex
	lastErr   error

	listener   net.Listener
	wg         sync.WaitGroup
	logger     *slog.Logger
	nextConnID uint64

	handshakeTimeout time.Duration

	totalAccepted      atomic.Uint64
	totalHandshakeFail atomic.Uint64
	totalConnected     atomic.Uint64
	totalDisconnected  atomic.Uint64
}

// Option configures a Broker at construction time.
type Option func(*Broker)

// New creates a Broker with the given queue capacity (defaults to 10 000
// when capacity <= 0) and applies opts.
func New(capacity int, opts ...Option) *Broker {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	b := &Broker{
		Queue:            queue.New(capacity),
		readyCh:          make(chan struct{}),
		errCh:            make(chan error, 1),
		logger:           logging.L(),
		handshakeTimeout: defaultHandshakeTimeout,
	}
	for _, o := range opts {
		o(b)
	}
	if b.addr == "" {
		b.addr = ":0"
	}
	if b.handshakeTimeout <= 0 {
		b.handshakeTimeout = defaultHandshakeTimeout
	}
	stats.SetDepthFunc(b.Queue.Depth)
	return b
}

// WithListenAddr sets the control bind address.
func WithListenAddr(addr string) Option { return func(b *Broker) { b.addr = addr } }

// WithLogger overrides the broker's logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithHandshakeTimeout overrides the read deadline applied to a client on
// the ephemeral data port while it authenticates. Non-positive values fall
// back to defaultHandshakeTimeout.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(b *Broker) { b.handshakeTimeout = d }
}

// Addr returns the control listener's bound address (valid once Ready()
// has fired).
func (b *Broker) Addr() string { b.mu.RLock(); defer b.mu.RUnlock(); return b.addr }

func (b *Broker) setAddr(a string) { b.mu.Lock(); b.addr = a; b.mu.Unlock() }

// Ready closes once the control listener is bound.
func (b *Broker) Ready() <-chan struct{} { return b.readyCh }

// Errors surfaces fatal listener errors; buffered depth 1.
func (b *Broker) Errors() <-chan error { return b.errCh }

func (b *Broker) setError(err error) {
	if err == nil {
		return
	}
	b.lastErrMu.Lock()
	b.lastErr = err
	b.lastErrMu.Unlock()
	select {
	case b.errCh <- err:
	default:
	}
}

// LastError returns the most recently recorded error, if any.
func (b *Broker) LastError() error {
	b.lastErrMu.Lock()
	defer b.lastErrMu.Unlock()
	return b.lastErr
}

// Serve binds the control listener and accepts sessions until ctx is
// cancelled or a fatal listener error occurs. Accept errors that are
// merely transient do not terminate the loop.
func (b *Broker) Serve(ctx context.Context) error {
	b.mu.Lock()
	addr := b.addr
	b.mu.Unlock()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		wrap := fmt.Errorf("%w: %v", ErrListen, err)
		stats.IncError(stats.ErrListen)
		b.setError(wrap)
		return wrap
	}
	b.setAddr(ln.Addr().String())
	b.mu.Lock()
	b.listener = ln
	b.mu.Unlock()
	b.readyOnce.Do(func() { close(b.readyCh) })
	b.logger.Info("control_listen", "addr", b.Addr())

	go func() { <-ctx.Done(); _ = ln.Close() }()
	for {
		if err := b.acceptOnce(ctx, ln); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (b *Broker) acceptOnce(ctx context.Context, ln net.Listener) error {
	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			time.Sleep(200 * time.Millisecond)
			return nil
		}
		wrap := fmt.Errorf("%w: %v", ErrAccept, err)
		stats.IncError(stats.ErrAccept)
		b.setError(wrap)
		return wrap
	}
	b.totalAccepted.Add(1)
	connID := atomic.AddUint64(&b.nextConnID, 1)
	connLogger := b.logger.With("conn_id", connID, "remote", conn.RemoteAddr().String())
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.runSession(ctx, conn, connLogger)
	}()
	return nil
}

func (b *Broker) runSession(ctx context.Context, ctrl net.Conn, logger *slog.Logger) {
	role, data, err := session.Handshake(ctx, ctrl, b.handshakeTimeout)
	if err != nil {
		b.totalHandshakeFail.Add(1)
		stats.IncError(stats.ErrHandshake)
		logger.Warn("handshake_failed", "error", err)
		return
	}
	b.totalConnected.Add(1)
	logger.Info("client_connected", "role", string(role))
	defer func() {
		b.totalDisconnected.Add(1)
		logger.Info("client_disconnected", "role", string(role))
	}()

	var workerErr error
	switch role {
	case session.RoleProducer:
		workerErr = session.RunProducer(ctx, data, b.Queue, logger)
	case session.RoleConsumer:
		workerErr = session.RunConsumer(ctx, data, b.Queue, logger)
	}
	_ = data.Close()
	if workerErr != nil && ctx.Err() == nil {
		logger.Warn("session_worker_error", "role", string(role), "error", workerErr)
	}
}

// Shutdown closes the listener and every live connection, then waits for
// all session goroutines to exit or ctx to expire.
func (b *Broker) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	ln := b.listener
	b.listener = nil
	b.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	b.Queue.Close()

	done := make(chan struct{})
	go func() { b.wg.Wait(); close(done) }()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrShutdownTimeout, ctx.Err())
	case <-done:
		b.logger.Info("shutdown_summary",
			"accepted", b.totalAccepted.Load(),
			"handshake_fail", b.totalHandshakeFail.Load(),
			"connected", b.totalConnected.Load(),
			"disconnected", b.totalDisconnected.Load(),
		)
		return nil
	}
}
