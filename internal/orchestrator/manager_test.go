package orchestrator

import (
	"context"
	"testing"
	"time"

	"perp-gateway/internal/bus"
	"perp-gateway/internal/config"
	"perp-gateway/pkg/types"
)

func newTestManager(t *testing.T, fake *fakeAdapter) *VenueManager {
	t.Helper()
	b := bus.NewMemoryBus(testLogger())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		b.Close(ctx)
	})

	m := newVenueManager(fake, config.BreakerConfig{Threshold: 3, Timeout: time.Minute}, b, testLogger())
	if err := m.start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		m.stop(ctx)
	})
	return m
}

func TestStartOpensPrivateStreams(t *testing.T) {
	t.Parallel()

	fake := &fakeAdapter{venue: types.VenueHyperliquid}
	newTestManager(t, fake)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.privateSubs != 3 {
		t.Fatalf("private subscriptions = %d, want orders+positions+balances", fake.privateSubs)
	}
}

func TestRestartStreamReinitializesErroredAdapter(t *testing.T) {
	t.Parallel()

	fake := &fakeAdapter{venue: types.VenueLighter}
	m := newTestManager(t, fake)

	fake.mu.Lock()
	fake.status = types.StatusError
	fake.mu.Unlock()

	m.restartStream()

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.initCount != 2 {
		t.Fatalf("initialize called %d times, want 2", fake.initCount)
	}
	if fake.status != "" {
		t.Fatalf("adapter still in %s after restart", fake.status)
	}
}
