package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/kstaniek/qpipe-broker/internal/frame"
	"github.com/kstaniek/qpipe-broker/internal/queue"
	"github.com/kstaniek/qpipe-broker/internal/stats"
)

// RunProducer drives a producer's data connection for its lifetime: decode
// frames, push them onto q (which may block under backpressure), and
// account posted msgs/bytes. It increments active_producers on entry and
// guarantees a decrement on every exit path. A clean peer disconnect
// (io.EOF at a frame boundary) returns nil; any other error is returned so
// the caller can log it.
//
// Backpressure is implicit: when q.Push blocks, this goroutine stops
// reading conn, the OS receive buffer fills, and the producer's own send
// eventually blocks — no explicit flow-control message is ever sent.
func RunProducer(ctx context.Context, conn net.Conn, q *queue.Queue, logger *slog.Logger) error {
	guard := newProducerGuard()
	defer guard.release()

	for {
		payload, err := frame.Read(conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil // producer disconnected cleanly at a frame boundary
			}
			if errors.Is(err, frame.ErrInvalidData) {
				stats.IncError(stats.ErrOversize)
				return fmt.Errorf("%w: %v", ErrConnRead, err)
			}
			stats.IncError(stats.ErrConnRead)
			return fmt.Errorf("%w: %v", ErrConnRead, err)
		}
		if err := q.Push(ctx, payload); err != nil {
			return err
		}
		stats.AddPosted(len(payload))
	}
}

// RunConsumer drives a consumer's data connection for its lifetime: pop
// frames from q (which may block on an empty queue), encode and write them,
// and account collected or dropped msgs/bytes. It increments
// active_consumers on entry and guarantees a decrement on every exit path.
//
// A frame is dropped — not re-queued — the instant its write fails; this is
// the only way a frame leaves the system without delivery (at-most-once).
// A write failure classified as peer-gone by IsPeerGone (BrokenPipe,
// ConnectionReset, EOF, closed connection) is treated as a normal shutdown
// and returns nil; any other write error is returned.
func RunConsumer(ctx context.Context, conn net.Conn, q *queue.Queue, logger *slog.Logger) error {
	guard := newConsumerGuard()
	defer guard.release()

	for {
		payload, err := q.Pop(ctx)
		if err != nil {
			return err
		}
		if werr := frame.Write(conn, payload); werr != nil {
			stats.AddDropped(len(payload))
			if IsPeerGone(werr) {
				return nil
			}
			stats.IncError(stats.ErrConnWrite)
			return fmt.Errorf("%w: %v", ErrConnWrite, werr)
		}
		stats.AddCollected(len(payload))
	}
}
