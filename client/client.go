// Package client implements the Producer and Consumer connectors used by
// cmd/producer and cmd/consumer: dial the control port, run the client side
// of the session handshake, then dial the ephemeral data port and
// authenticate with the issued token.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/kstaniek/qpipe-broker/internal/frame"
	"github.com/kstaniek/qpipe-broker/internal/session"
)

// ErrUnexpectedClose is returned by Consumer.Recv when the orchestrator
// closes the data connection cleanly — there is no "none" value for a
// blocking recv, unlike the broker-side frame.Read contract.
var ErrUnexpectedClose = errors.New("client: orchestrator closed the connection")

const dialTimeout = 5 * time.Second

func dialControl(ctx context.Context, addr string) (net.Conn, error) {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial control: %w", err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	return conn, nil
}

func sendRole(ctrl net.Conn, role session.Role) error {
	if _, err := ctrl.Write([]byte{byte(role)}); err != nil {
		return fmt.Errorf("client: send role: %w", err)
	}
	return nil
}

func readPortToken(ctrl net.Conn) (int, []byte, error) {
	var hdr [2 + session.TokenSize]byte
	if _, err := io.ReadFull(ctrl, hdr[:]); err != nil {
		return 0, nil, fmt.Errorf("client: read port+token: %w", err)
	}
	port := int(hdr[0])<<8 | int(hdr[1])
	token := append([]byte(nil), hdr[2:]...)
	return port, token, nil
}

func dialData(ctx context.Context, ctrlAddr net.Addr, port int, token []byte) (net.Conn, error) {
	tcpAddr, ok := ctrlAddr.(*net.TCPAddr)
	if !ok {
		return nil, fmt.Errorf("client: control address is not TCP: %v", ctrlAddr)
	}
	dataAddr := net.JoinHostPort(tcpAddr.IP.String(), fmt.Sprintf("%d", port))
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", dataAddr)
	if err != nil {
		return nil, fmt.Errorf("client: dial data: %w", err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	if _, err := conn.Write(token); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("client: send token: %w", err)
	}
	return conn, nil
}

func handshake(ctx context.Context, addr string, role session.Role) (net.Conn, error) {
	ctrl, err := dialControl(ctx, addr)
	if err != nil {
		return nil, err
	}
	if err := sendRole(ctrl, role); err != nil {
		_ = ctrl.Close()
		return nil, err
	}
	port, token, err := readPortToken(ctrl)
	if err != nil {
		_ = ctrl.Close()
		return nil, err
	}
	ctrlAddr := ctrl.RemoteAddr()
	_ = ctrl.Close()

	data, err := dialData(ctx, ctrlAddr, port, token)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Producer is a connected producer session: Send enqueues one frame per
// call and never blocks locally beyond the TCP send buffer filling under
// broker backpressure.
type Producer struct {
	conn net.Conn
}

// ConnectProducer dials addr, presents the producer role, and authenticates
// on the ephemeral data port.
func ConnectProducer(ctx context.Context, addr string) (*Producer, error) {
	conn, err := handshake(ctx, addr, session.RoleProducer)
	if err != nil {
		return nil, err
	}
	return &Producer{conn: conn}, nil
}

// Send encodes payload as a length-prefixed frame and writes it.
func (p *Producer) Send(payload []byte) error {
	if err := frame.Write(p.conn, payload); err != nil {
		return fmt.Errorf("client: send: %w", err)
	}
	return nil
}

// Close closes the underlying data connection.
func (p *Producer) Close() error { return p.conn.Close() }

// Consumer is a connected consumer session: Recv blocks until the
// orchestrator delivers a frame or the connection ends.
type Consumer struct {
	conn net.Conn
}

// ConnectConsumer dials addr, presents the consumer role, and authenticates
// on the ephemeral data port.
func ConnectConsumer(ctx context.Context, addr string) (*Consumer, error) {
	conn, err := handshake(ctx, addr, session.RoleConsumer)
	if err != nil {
		return nil, err
	}
	return &Consumer{conn: conn}, nil
}

// Recv blocks until the next frame arrives. Unlike frame.Read, a clean EOF
// has no meaningful "no more data" interpretation for a live consumer
// session, so it is reported as ErrUnexpectedClose rather than io.EOF.
func (c *Consumer) Recv() ([]byte, error) {
	payload, err := frame.Read(c.conn)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrUnexpectedClose
		}
		return nil, fmt.Errorf("client: recv: %w", err)
	}
	return payload, nil
}

// Close closes the underlying data connection.
func (c *Consumer) Close() error { return c.conn.Close() }
