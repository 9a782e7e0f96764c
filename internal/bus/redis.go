package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"perp-gateway/internal/events"
	"perp-gateway/internal/metrics"
)

const (
	redisChannelPrefix = "gateway:events:"
	deadLetterCap      = 1000
	healthInterval     = 30 * time.Second
)

// RedisBus mirrors every event through a Redis broker. Local subscribers
// receive events via the broker round-trip, so an external consumer
// subscribed to the same Redis channels observes exactly the stream the
// gateway's own components do.
//
// Publishes run through a circuit breaker: five consecutive failures open
// it for 60s, after which a single probe decides whether it closes again.
// Events that fail to publish land in a bounded dead-letter buffer and are
// replayed in order once the broker recovers.
type RedisBus struct {
	log    *slog.Logger
	client *redis.Client
	local  *MemoryBus
	brk    *gobreaker.CircuitBreaker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	pubsubs map[events.Channel]*redis.PubSub
	dead    []deadLetter
	closed  bool

	deadLost atomic.Uint64
	healthy  atomic.Bool
}

type deadLetter struct {
	channel events.Channel
	payload []byte
}

// NewRedisBus builds a broker-backed bus on an existing client. Memory
// options apply to the local delivery engine.
func NewRedisBus(log *slog.Logger, client *redis.Client, opts ...MemoryOption) *RedisBus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &RedisBus{
		log:     log.With("component", "bus"),
		client:  client,
		local:   NewMemoryBus(log, opts...),
		ctx:     ctx,
		cancel:  cancel,
		pubsubs: make(map[events.Channel]*redis.PubSub),
	}
	b.healthy.Store(true)
	b.brk = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-publish",
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.log.Warn("publish breaker state change", "from", from.String(), "to", to.String())
		},
	})

	b.wg.Add(1)
	go b.healthLoop()
	return b
}

// Publish sends ev to its type channel and, when set, its venue channel.
func (b *RedisBus) Publish(ctx context.Context, ev events.Event) error {
	for _, ch := range ev.Channels() {
		if err := b.PublishTo(ctx, ch, ev); err != nil {
			return err
		}
	}
	return nil
}

// PublishTo sends ev through the broker on one channel. A broker failure
// parks the event in the dead-letter buffer and returns nil: delivery is
// deferred, not refused.
func (b *RedisBus) PublishTo(ctx context.Context, ch events.Channel, ev events.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.ID, err)
	}

	_, err = b.brk.Execute(func() (any, error) {
		return nil, b.client.Publish(ctx, redisChannelPrefix+string(ch), payload).Err()
	})
	if err != nil {
		metrics.EventsDropped.WithLabelValues(string(ch), "publish_failed").Inc()
		b.park(ch, payload)
		b.log.Warn("publish failed, event dead-lettered",
			"channel", ch, "event_type", ev.Type, "error", err)
		return nil
	}

	metrics.EventsPublished.WithLabelValues(string(ch)).Inc()
	return nil
}

// park appends a failed publish to the dead-letter buffer, evicting the
// oldest entry when full.
func (b *RedisBus) park(ch events.Channel, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.dead) >= deadLetterCap {
		b.dead = b.dead[1:]
		b.deadLost.Add(1)
	}
	b.dead = append(b.dead, deadLetter{channel: ch, payload: payload})
}

// Subscribe registers fn locally and ensures a broker subscription exists
// for the channel.
func (b *RedisBus) Subscribe(ch events.Channel, fn Handler) *Subscription {
	sub := b.local.Subscribe(ch, fn)
	b.ensureReceiver(ch)
	return sub
}

// Unsubscribe removes a subscription. The broker subscription stays; a
// channel once consumed keeps its receiver until Close.
func (b *RedisBus) Unsubscribe(sub *Subscription) {
	b.local.Unsubscribe(sub)
}

func (b *RedisBus) ensureReceiver(ch events.Channel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if _, ok := b.pubsubs[ch]; ok {
		return
	}
	ps := b.client.Subscribe(b.ctx, redisChannelPrefix+string(ch))
	b.pubsubs[ch] = ps
	b.wg.Add(1)
	go b.receiveLoop(ch, ps)
}

// receiveLoop decodes broker messages and hands them to the local delivery
// engine, preserving per-channel ordering.
func (b *RedisBus) receiveLoop(ch events.Channel, ps *redis.PubSub) {
	defer b.wg.Done()
	for {
		msg, err := ps.ReceiveMessage(b.ctx)
		if err != nil {
			if b.ctx.Err() != nil {
				return
			}
			b.log.Warn("broker receive failed", "channel", ch, "error", err)
			continue
		}
		var ev events.Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			b.log.Warn("discarding undecodable broker message", "channel", ch, "error", err)
			continue
		}
		if err := b.local.PublishTo(b.ctx, ch, ev); err != nil {
			return
		}
	}
}

// healthLoop pings the broker periodically and replays dead letters once
// it recovers.
func (b *RedisBus) healthLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(b.ctx, 5*time.Second)
			err := b.client.Ping(ctx).Err()
			cancel()
			if err != nil {
				b.healthy.Store(false)
				b.log.Warn("broker health check failed", "error", err)
				continue
			}
			if !b.healthy.Swap(true) {
				b.log.Info("broker recovered")
			}
			b.replayDeadLetters()
		}
	}
}

// replayDeadLetters re-publishes parked events in arrival order, stopping
// at the first failure.
func (b *RedisBus) replayDeadLetters() {
	b.mu.Lock()
	pending := b.dead
	b.dead = nil
	b.mu.Unlock()

	for i, dl := range pending {
		err := b.client.Publish(b.ctx, redisChannelPrefix+string(dl.channel), dl.payload).Err()
		if err != nil {
			b.mu.Lock()
			b.dead = append(pending[i:], b.dead...)
			if n := len(b.dead) - deadLetterCap; n > 0 {
				b.dead = b.dead[:deadLetterCap]
				b.deadLost.Add(uint64(n))
			}
			b.mu.Unlock()
			return
		}
	}
	if len(pending) > 0 {
		b.log.Info("replayed dead-lettered events", "count", len(pending))
	}
}

// Healthy reports broker reachability and breaker state.
func (b *RedisBus) Healthy() bool {
	return b.healthy.Load() && b.brk.State() != gobreaker.StateOpen && b.local.Healthy()
}

// Stats returns counters including the dead-letter backlog.
func (b *RedisBus) Stats() Stats {
	s := b.local.Stats()
	b.mu.Lock()
	s.DeadLetters = len(b.dead)
	b.mu.Unlock()
	s.DeadLetterLost = b.deadLost.Load()
	return s
}

// Close tears down broker subscriptions, drains local delivery, and closes
// the client.
func (b *RedisBus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	pubsubs := b.pubsubs
	b.pubsubs = map[events.Channel]*redis.PubSub{}
	b.mu.Unlock()

	b.cancel()
	for _, ps := range pubsubs {
		_ = ps.Close()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := b.local.Close(ctx); err != nil {
		return err
	}
	return b.client.Close()
}
