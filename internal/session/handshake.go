// Package session implements the two-stage session-establishment protocol
// (control port role/token exchange, then ephemeral data port
// authentication) and the producer/consumer worker loops that run on an
// authenticated data connection.
package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// AwaitRole reads exactly one role byte from ctrl. Any byte other than 'P'
// or 'C' is ErrInvalidRole.
func AwaitRole(ctrl net.Conn) (Role, error) {
	var b [1]byte
	if _, err := io.ReadFull(ctrl, b[:]); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	switch Role(b[0]) {
	case RoleProducer, RoleConsumer:
		return Role(b[0]), nil
	default:
		return 0, ErrInvalidRole
	}
}

// BindEphemeral binds a fresh TCP listener on port 0, on the same IP family
// as ctrl's local address, for the upcoming data connection.
func BindEphemeral(ctrl net.Conn) (net.Listener, error) {
	local, ok := ctrl.LocalAddr().(*net.TCPAddr)
	if !ok {
		return nil, fmt.Errorf("%w: control socket is not TCP", ErrHandshake)
	}
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{IP: local.IP, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("%w: bind ephemeral: %v", ErrHandshake, err)
	}
	return ln, nil
}

// IssueToken draws TokenSize random bytes, writes the 2-byte big-endian
// ephemeral port followed by the token to ctrl, flushes (TCP has no
// explicit flush call, so this is just the final Write), and closes ctrl.
func IssueToken(ctrl net.Conn, ln net.Listener) ([]byte, error) {
	token := make([]byte, TokenSize)
	if _, err := rand.Read(token); err != nil {
		return nil, fmt.Errorf("%w: generate token: %v", ErrHandshake, err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	out := make([]byte, 2+TokenSize)
	out[0] = byte(port >> 8)
	out[1] = byte(port)
	copy(out[2:], token)
	if _, err := ctrl.Write(out); err != nil {
		_ = ctrl.Close()
		return nil, fmt.Errorf("%w: write port+token: %v", ErrHandshake, err)
	}
	_ = ctrl.Close()
	return token, nil
}

// DefaultAuthTimeout is the per-connection read deadline applied on the
// ephemeral data port when AwaitData is called with a non-positive timeout.
const DefaultAuthTimeout = 5 * time.Second

// AwaitData accepts connections on ln until one presents the exact token
// within timeout, or ctx is cancelled, or ln.Accept fails. A non-positive
// timeout falls back to DefaultAuthTimeout. The winning connection has its
// read deadline cleared and ln is closed before it is returned. Any
// connection presenting the wrong token is closed and the loop continues —
// the listener stays open for a legitimate client that loses the race to a
// stale or malicious one.
func AwaitData(ctx context.Context, ln net.Listener, token []byte, timeout time.Duration) (net.Conn, error) {
	if timeout <= 0 {
		timeout = DefaultAuthTimeout
	}
	go func() { <-ctx.Done(); _ = ln.Close() }()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: accept data: %v", ErrHandshake, err)
		}
		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
		got := make([]byte, TokenSize)
		if _, err := io.ReadFull(conn, got); err != nil || !tokensEqual(got, token) {
			_ = conn.Close()
			continue
		}
		_ = conn.SetReadDeadline(time.Time{})
		_ = ln.Close()
		return conn, nil
	}
}

func tokensEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Handshake runs the complete control-port state machine: read the role
// byte, bind an ephemeral data listener, issue a token over the control
// connection, then wait for a data connection that presents it within
// authTimeout (a non-positive value falls back to DefaultAuthTimeout). It
// returns the authenticated role and data connection. The control
// connection is terminal: Handshake never revisits AwaitRole, and each
// control connection yields at most one worker.
func Handshake(ctx context.Context, ctrl net.Conn, authTimeout time.Duration) (Role, net.Conn, error) {
	role, err := AwaitRole(ctrl)
	if err != nil {
		_ = ctrl.Close()
		return 0, nil, err
	}
	ln, err := BindEphemeral(ctrl)
	if err != nil {
		_ = ctrl.Close()
		return 0, nil, err
	}
	token, err := IssueToken(ctrl, ln)
	if err != nil {
		_ = ln.Close()
		return 0, nil, err
	}
	data, err := AwaitData(ctx, ln, token, authTimeout)
	if err != nil {
		return 0, nil, err
	}
	return role, data, nil
}

// IsPeerGone reports whether err represents a peer that has simply gone
// away — BrokenPipe, ConnectionReset, io.EOF/io.ErrUnexpectedEOF, or a
// closed connection (net.ErrClosed, io.ErrClosedPipe) — which consumer
// workers must treat as a normal shutdown rather than an error.
func IsPeerGone(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	return isBrokenPipeOrReset(err)
}
