package client_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kstaniek/qpipe-broker/client"
	"github.com/kstaniek/qpipe-broker/internal/broker"
)

func startTestBroker(t *testing.T) (addr string, shutdown func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	b := broker.New(10, broker.WithListenAddr("127.0.0.1:0"))
	go b.Serve(ctx) //nolint:errcheck
	select {
	case <-b.Ready():
	case <-time.After(time.Second):
		t.Fatalf("broker did not become ready")
	}
	return b.Addr(), cancel
}

func TestProducerConsumerRoundTrip(t *testing.T) {
	addr, shutdown := startTestBroker(t)
	defer shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	prod, err := client.ConnectProducer(ctx, addr)
	require.NoError(t, err)
	defer prod.Close()

	cons, err := client.ConnectConsumer(ctx, addr)
	require.NoError(t, err)
	defer cons.Close()

	require.NoError(t, prod.Send([]byte("payload-1")))

	got, err := cons.Recv()
	require.NoError(t, err)
	require.Equal(t, "payload-1", string(got))
}

func TestConsumerRecvFailsWhenOrchestratorHangsUp(t *testing.T) {
	addr, shutdown := startTestBroker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cons, err := client.ConnectConsumer(ctx, addr)
	if err != nil {
		t.Fatalf("connect consumer: %v", err)
	}
	defer cons.Close()

	shutdown() // tear down the broker before the consumer calls Recv

	if _, err := cons.Recv(); err == nil {
		t.Fatalf("expected an error once the orchestrator goes away")
	}
}

func TestMultipleProducersFanInToSingleConsumer(t *testing.T) {
	addr, shutdown := startTestBroker(t)
	defer shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	prodA, err := client.ConnectProducer(ctx, addr)
	if err != nil {
		t.Fatalf("connect producer a: %v", err)
	}
	defer prodA.Close()
	prodB, err := client.ConnectProducer(ctx, addr)
	if err != nil {
		t.Fatalf("connect producer b: %v", err)
	}
	defer prodB.Close()

	cons, err := client.ConnectConsumer(ctx, addr)
	if err != nil {
		t.Fatalf("connect consumer: %v", err)
	}
	defer cons.Close()

	if err := prodA.Send([]byte("from-a")); err != nil {
		t.Fatalf("send a: %v", err)
	}
	if err := prodB.Send([]byte("from-b")); err != nil {
		t.Fatalf("send b: %v", err)
	}

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		got, err := cons.Recv()
		if err != nil {
			t.Fatalf("recv %d: %v", i, err)
		}
		seen[string(got)] = true
	}
	if !seen["from-a"] || !seen["from-b"] {
		t.Fatalf("got %v, want both from-a and from-b", seen)
	}
}
