package bus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"perp-gateway/internal/events"
	"perp-gateway/internal/metrics"
	"perp-gateway/pkg/types"
)

const defaultQueueSize = 1024

// MemoryBus is the in-process bus. Each channel gets a bounded queue and a
// single delivery goroutine, which gives per-channel FIFO ordering: two
// events published to the same channel reach every subscriber in publish
// order. Publishing blocks when a queue is full, bounded by the caller's
// context, so a stalled consumer backpressures producers instead of
// silently losing events.
type MemoryBus struct {
	log            *slog.Logger
	handlerTimeout time.Duration
	queueSize      int

	mu     sync.RWMutex
	subs   map[events.Channel][]*Subscription
	queues map[events.Channel]chan events.Event
	closed bool

	wg sync.WaitGroup

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// MemoryOption tweaks MemoryBus construction. Used by tests to shorten
// the handler timeout.
type MemoryOption func(*MemoryBus)

// WithHandlerTimeout overrides the per-handler invocation timeout.
func WithHandlerTimeout(d time.Duration) MemoryOption {
	return func(b *MemoryBus) { b.handlerTimeout = d }
}

// WithQueueSize overrides the per-channel queue capacity.
func WithQueueSize(n int) MemoryOption {
	return func(b *MemoryBus) { b.queueSize = n }
}

// NewMemoryBus builds an in-process bus.
func NewMemoryBus(log *slog.Logger, opts ...MemoryOption) *MemoryBus {
	b := &MemoryBus{
		log:            log.With("component", "bus"),
		handlerTimeout: DefaultHandlerTimeout,
		queueSize:      defaultQueueSize,
		subs:           make(map[events.Channel][]*Subscription),
		queues:         make(map[events.Channel]chan events.Event),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish delivers ev on its type channel and, when set, its venue channel.
func (b *MemoryBus) Publish(ctx context.Context, ev events.Event) error {
	for _, ch := range ev.Channels() {
		if err := b.PublishTo(ctx, ch, ev); err != nil {
			return err
		}
	}
	return nil
}

// PublishTo enqueues ev on one channel.
func (b *MemoryBus) PublishTo(ctx context.Context, ch events.Channel, ev events.Event) error {
	q, err := b.queueFor(ch)
	if err != nil {
		return err
	}

	select {
	case q <- ev:
		b.published.Add(1)
		metrics.EventsPublished.WithLabelValues(string(ch)).Inc()
		return nil
	case <-ctx.Done():
		b.dropped.Add(1)
		metrics.EventsDropped.WithLabelValues(string(ch), "queue_full").Inc()
		b.log.Warn("event dropped, queue full",
			"channel", ch, "event_type", ev.Type, "event_id", ev.ID)
		return ctx.Err()
	}
}

// queueFor returns the channel's queue, starting its delivery goroutine on
// first use.
func (b *MemoryBus) queueFor(ch events.Channel) (chan events.Event, error) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, types.ErrShuttingDown()
	}
	if q, ok := b.queues[ch]; ok {
		b.mu.RUnlock()
		return q, nil
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, types.ErrShuttingDown()
	}
	if q, ok := b.queues[ch]; ok {
		return q, nil
	}
	q := make(chan events.Event, b.queueSize)
	b.queues[ch] = q
	b.wg.Add(1)
	go b.deliverLoop(ch, q)
	return q, nil
}

// deliverLoop drains one channel queue until the queue is closed. Closing
// after Close() drains whatever was already accepted.
func (b *MemoryBus) deliverLoop(ch events.Channel, q chan events.Event) {
	defer b.wg.Done()
	for ev := range q {
		b.dispatch(ch, ev)
	}
}

// dispatch invokes every subscriber sequentially. Each invocation gets its
// own timeout and panic guard so one handler cannot starve or kill the rest.
func (b *MemoryBus) dispatch(ch events.Channel, ev events.Event) {
	b.mu.RLock()
	subs := make([]*Subscription, len(b.subs[ch]))
	copy(subs, b.subs[ch])
	b.mu.RUnlock()

	for _, sub := range subs {
		b.invoke(ch, sub, ev)
	}
}

func (b *MemoryBus) invoke(ch events.Channel, sub *Subscription, ev events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), b.handlerTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				b.dropped.Add(1)
				metrics.EventsDropped.WithLabelValues(string(ch), "handler_panic").Inc()
				b.log.Error("handler panicked",
					"channel", ch, "event_type", ev.Type, "panic", r)
			}
		}()
		sub.fn(ctx, ev)
	}()

	select {
	case <-done:
		b.delivered.Add(1)
	case <-ctx.Done():
		// The handler forfeits this event; it keeps receiving later ones.
		b.dropped.Add(1)
		metrics.EventsDropped.WithLabelValues(string(ch), "handler_timeout").Inc()
		b.log.Warn("handler timed out",
			"channel", ch, "event_type", ev.Type, "event_id", ev.ID,
			"timeout", b.handlerTimeout)
	}
}

// Subscribe registers fn on ch.
func (b *MemoryBus) Subscribe(ch events.Channel, fn Handler) *Subscription {
	sub := newSubscription(ch, fn)
	b.mu.Lock()
	b.subs[ch] = append(b.subs[ch], sub)
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes sub. Removing twice is a no-op.
func (b *MemoryBus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[sub.channel]
	for i, s := range list {
		if s.id == sub.id {
			b.subs[sub.channel] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Healthy reports whether the bus is open.
func (b *MemoryBus) Healthy() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

// Stats returns counter snapshots.
func (b *MemoryBus) Stats() Stats {
	b.mu.RLock()
	n := 0
	for _, list := range b.subs {
		n += len(list)
	}
	b.mu.RUnlock()
	return Stats{
		Published:     b.published.Load(),
		Delivered:     b.delivered.Load(),
		Dropped:       b.dropped.Load(),
		Subscriptions: n,
	}
}

// Close rejects further publishes, drains queued events, and waits for the
// delivery goroutines, bounded by ctx.
func (b *MemoryBus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, q := range b.queues {
		close(q)
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
