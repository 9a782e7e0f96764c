package bus

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"perp-gateway/internal/events"
	"perp-gateway/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func systemEvent(msg string) events.Event {
	return events.New("", &events.SystemUpdate{Component: "test", Message: msg})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached within deadline")
}

func TestMemoryBusOrderedDelivery(t *testing.T) {
	t.Parallel()

	b := NewMemoryBus(testLogger())
	defer b.Close(context.Background())

	var mu sync.Mutex
	var got []string
	b.Subscribe(events.ChannelSystem, func(_ context.Context, ev events.Event) {
		mu.Lock()
		got = append(got, ev.Payload.(*events.SystemUpdate).Message)
		mu.Unlock()
	})

	want := []string{"a", "b", "c", "d"}
	for _, msg := range want {
		if err := b.Publish(context.Background(), systemEvent(msg)); err != nil {
			t.Fatalf("publish %q: %v", msg, err)
		}
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == len(want)
	})

	mu.Lock()
	defer mu.Unlock()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delivery order %v, want %v", got, want)
		}
	}
}

func TestMemoryBusVenueChannelCopy(t *testing.T) {
	t.Parallel()

	b := NewMemoryBus(testLogger())
	defer b.Close(context.Background())

	var typeCh, venueCh sync.WaitGroup
	typeCh.Add(1)
	venueCh.Add(1)
	b.Subscribe(events.ChannelConnections, func(_ context.Context, ev events.Event) {
		typeCh.Done()
	})
	b.Subscribe(events.VenueChannel(types.VenueHyperliquid), func(_ context.Context, ev events.Event) {
		venueCh.Done()
	})

	ev := events.New(types.VenueHyperliquid, &events.ConnectionUpdate{
		Venue:  types.VenueHyperliquid,
		Status: types.StatusConnected,
	})
	if err := b.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	done := make(chan struct{})
	go func() {
		typeCh.Wait()
		venueCh.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event did not reach both type and venue channels")
	}
}

func TestMemoryBusUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	b := NewMemoryBus(testLogger())
	defer b.Close(context.Background())

	var mu sync.Mutex
	count := 0
	sub := b.Subscribe(events.ChannelSystem, func(_ context.Context, _ events.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	if err := b.Publish(context.Background(), systemEvent("before")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	})

	b.Unsubscribe(sub)
	b.Unsubscribe(sub) // repeated removal is a no-op

	if err := b.Publish(context.Background(), systemEvent("after")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("handler ran %d times after unsubscribe, want 1", count)
	}
}

func TestMemoryBusSlowHandlerDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	b := NewMemoryBus(testLogger(), WithHandlerTimeout(20*time.Millisecond))
	defer b.Close(context.Background())

	var mu sync.Mutex
	fastCount := 0
	b.Subscribe(events.ChannelSystem, func(ctx context.Context, _ events.Event) {
		<-ctx.Done() // stalls until the invocation timeout fires
	})
	b.Subscribe(events.ChannelSystem, func(_ context.Context, _ events.Event) {
		mu.Lock()
		fastCount++
		mu.Unlock()
	})

	for i := 0; i < 2; i++ {
		if err := b.Publish(context.Background(), systemEvent("x")); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fastCount == 2
	})

	if b.Stats().Dropped == 0 {
		t.Fatal("expected timed-out invocations to be counted as dropped")
	}
}

func TestMemoryBusHandlerPanicIsolated(t *testing.T) {
	t.Parallel()

	b := NewMemoryBus(testLogger())
	defer b.Close(context.Background())

	var mu sync.Mutex
	delivered := 0
	b.Subscribe(events.ChannelSystem, func(_ context.Context, _ events.Event) {
		panic("boom")
	})
	b.Subscribe(events.ChannelSystem, func(_ context.Context, _ events.Event) {
		mu.Lock()
		delivered++
		mu.Unlock()
	})

	if err := b.Publish(context.Background(), systemEvent("x")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return delivered == 1
	})
}

func TestMemoryBusCloseDrainsThenRejects(t *testing.T) {
	t.Parallel()

	b := NewMemoryBus(testLogger())

	var mu sync.Mutex
	got := 0
	b.Subscribe(events.ChannelSystem, func(_ context.Context, _ events.Event) {
		mu.Lock()
		got++
		mu.Unlock()
	})

	const n = 20
	for i := 0; i < n; i++ {
		if err := b.Publish(context.Background(), systemEvent("x")); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	if err := b.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	mu.Lock()
	drained := got
	mu.Unlock()
	if drained != n {
		t.Fatalf("drained %d events, want %d", drained, n)
	}

	err := b.Publish(context.Background(), systemEvent("late"))
	ge := types.AsGatewayError(err)
	if ge == nil || ge.Code != types.ErrCodeShuttingDown {
		t.Fatalf("publish after close returned %v, want SHUTTING_DOWN", err)
	}
	if b.Healthy() {
		t.Fatal("closed bus reports healthy")
	}
}
