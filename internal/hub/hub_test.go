package hub

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"perp-gateway/internal/bus"
	"perp-gateway/internal/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStopUnblocksClientTeardown(t *testing.T) {
	t.Parallel()

	b := bus.NewMemoryBus(testLogger())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		b.Close(ctx)
	})
	h := New(nil, testLogger())
	h.Start(b)
	h.Stop()

	// A connection dropping after Stop must not hang in its teardown.
	done := make(chan struct{})
	go func() {
		h.drop(&Client{hub: h})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("drop blocked after the hub stopped")
	}

	done = make(chan struct{})
	go func() {
		h.enlist(&Client{hub: h})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enlist blocked after the hub stopped")
	}
}

func TestRelayRoutesPortfolioMetrics(t *testing.T) {
	t.Parallel()

	h := New(nil, testLogger())

	h.relay(context.Background(), events.New("", &events.SystemUpdate{
		Component: "portfolio",
		Message:   "metrics",
		Data:      map[string]any{"metrics": map[string]any{"position_count": 2}},
	}))
	select {
	case msg := <-h.broadcast:
		if msg.topic != TopicPortfolio {
			t.Fatalf("topic = %s, want %s", msg.topic, TopicPortfolio)
		}
	default:
		t.Fatal("portfolio metrics event not relayed")
	}

	// system chatter from other components stays off the client topics
	h.relay(context.Background(), events.New("", &events.SystemUpdate{
		Component: "venue_manager",
		Message:   "health check",
	}))
	select {
	case msg := <-h.broadcast:
		t.Fatalf("unexpected relay of %s system event", msg.topic)
	default:
	}
}
