// Package bus is the pub/sub fabric connecting venue adapters to the
// orchestrator, aggregators, and the client hub.
//
// Two implementations share the Bus interface: MemoryBus delivers events
// in-process with per-channel ordering, and RedisBus additionally mirrors
// every event through a Redis broker so external consumers can tap the
// stream. Handlers are registered per channel and invoked sequentially in
// subscription order; a slow or panicking handler never poisons delivery
// to the others.
package bus

import (
	"context"
	"sync/atomic"
	"time"

	"perp-gateway/internal/events"
)

// DefaultHandlerTimeout bounds a single handler invocation. A handler that
// exceeds it forfeits the event; delivery continues with the next handler.
const DefaultHandlerTimeout = 5 * time.Second

// Handler consumes one event. The context carries the per-invocation
// timeout; long-running handlers must observe it.
type Handler func(ctx context.Context, ev events.Event)

// Subscription identifies one registered handler. Handlers are not
// comparable in Go, so the subscription token is what Unsubscribe keys on.
type Subscription struct {
	id      uint64
	channel events.Channel
	fn      Handler
}

// Channel returns the channel the subscription is registered on.
func (s *Subscription) Channel() events.Channel { return s.channel }

// Stats is a point-in-time counter snapshot for observability surfaces.
type Stats struct {
	Published      uint64 `json:"events_published"`
	Delivered      uint64 `json:"events_delivered"`
	Dropped        uint64 `json:"events_dropped"`
	Subscriptions  int    `json:"subscriptions"`
	DeadLetters    int    `json:"dead_letters"`
	DeadLetterLost uint64 `json:"dead_letters_lost"`
}

// Bus routes events to channel subscribers.
type Bus interface {
	// Publish delivers ev on its derived channels: the type channel plus
	// the venue channel when the event names a venue.
	Publish(ctx context.Context, ev events.Event) error
	// PublishTo delivers ev on one explicit channel.
	PublishTo(ctx context.Context, ch events.Channel, ev events.Event) error
	// Subscribe registers a handler; events arrive in publish order
	// relative to other events on the same channel.
	Subscribe(ch events.Channel, fn Handler) *Subscription
	// Unsubscribe removes a subscription. Unknown or already-removed
	// subscriptions are a no-op.
	Unsubscribe(sub *Subscription)
	// Healthy reports whether the bus is accepting and delivering events.
	Healthy() bool
	// Stats returns counter snapshots.
	Stats() Stats
	// Close stops delivery after draining queued events, bounded by ctx.
	Close(ctx context.Context) error
}

var subSeq atomic.Uint64

func newSubscription(ch events.Channel, fn Handler) *Subscription {
	return &Subscription{id: subSeq.Add(1), channel: ch, fn: fn}
}
