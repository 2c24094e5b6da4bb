package session

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/kstaniek/qpipe-broker/internal/frame"
	"github.com/kstaniek/qpipe-broker/internal/queue"
)

func TestRunProducerPushesFramesAndExitsOnEOF(t *testing.T) {
	srv, cli := net.Pipe()
	q := queue.New(10)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- RunProducer(ctx, srv, q, nil) }()

	if err := frame.Write(cli, []byte("one")); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if err := frame.Write(cli, []byte("two")); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	_ = cli.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunProducer returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("RunProducer did not exit on clean EOF")
	}

	got1, _ := q.Pop(ctx)
	got2, _ := q.Pop(ctx)
	if string(got1) != "one" || string(got2) != "two" {
		t.Fatalf("got %q, %q, want one, two", got1, got2)
	}
}

func TestRunConsumerDeliversFramesInPopOrder(t *testing.T) {
	srv, cli := net.Pipe()
	q := queue.New(10)
	ctx := context.Background()

	_ = q.Push(ctx, []byte("a"))
	_ = q.Push(ctx, []byte("b"))

	done := make(chan error, 1)
	go func() { done <- RunConsumer(ctx, srv, q, nil) }()

	got1, err := frame.Read(cli)
	if err != nil {
		t.Fatalf("read frame 1: %v", err)
	}
	got2, err := frame.Read(cli)
	if err != nil {
		t.Fatalf("read frame 2: %v", err)
	}
	if string(got1) != "a" || string(got2) != "b" {
		t.Fatalf("got %q, %q, want a, b", got1, got2)
	}
	_ = cli.Close()
	// The worker is blocked in Pop on an empty queue; it only notices the
	// closed peer when its next write fails.
	_ = q.Push(ctx, []byte("c"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("RunConsumer did not exit after peer closed")
	}
}

func TestRunConsumerDropsFrameOnWriteFailure(t *testing.T) {
	srv, cli := net.Pipe()
	q := queue.New(10)
	ctx := context.Background()

	_ = q.Push(ctx, []byte("will-be-dropped"))
	_ = cli.Close() // peer already gone before the write is attempted

	done := make(chan error, 1)
	go func() { done <- RunConsumer(ctx, srv, q, nil) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil (peer-gone treated as clean shutdown), got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("RunConsumer did not exit after write failure")
	}
	if d := q.Depth(); d != 0 {
		t.Fatalf("frame should have been popped (and dropped), depth = %d", d)
	}
}
