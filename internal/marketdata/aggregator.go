package marketdata

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"perp-gateway/internal/bus"
	"perp-gateway/internal/events"
	"perp-gateway/pkg/types"
)

// LatencyFn reports a venue's current average request latency in
// milliseconds. Used to break ties between equal prices.
type LatencyFn func(types.Venue) float64

// Aggregator computes the cross-venue best bid/ask per symbol from the
// cache, fed by market_data_update events. Aggregated views are memoized
// for a short TTL.
//
// Tie-breaking when two venues quote the same price: the venue with lower
// average latency wins; latency ties fall back to the canonical venue
// order.
type Aggregator struct {
	cache   *Cache
	bus     bus.Bus
	latency LatencyFn
	ttl     time.Duration
	logger  *slog.Logger

	sub *bus.Subscription

	aggMu sync.Mutex
	agg   map[string]aggEntry
}

type aggEntry struct {
	data     types.AggregatedMarketData
	computed time.Time
}

// NewAggregator builds an aggregator over cache. latency may be nil, in
// which case ties resolve by venue order alone.
func NewAggregator(cache *Cache, b bus.Bus, latency LatencyFn, ttl time.Duration, logger *slog.Logger) *Aggregator {
	if latency == nil {
		latency = func(types.Venue) float64 { return 0 }
	}
	return &Aggregator{
		cache:   cache,
		bus:     b,
		latency: latency,
		ttl:     ttl,
		logger:  logger.With("component", "marketdata"),
		agg:     make(map[string]aggEntry),
	}
}

// Start subscribes to the market data channel.
func (a *Aggregator) Start() {
	a.sub = a.bus.Subscribe(events.ChannelMarketData, a.onMarketData)
}

// Stop removes the bus subscription.
func (a *Aggregator) Stop() {
	if a.sub != nil {
		a.bus.Unsubscribe(a.sub)
		a.sub = nil
	}
}

func (a *Aggregator) onMarketData(_ context.Context, ev events.Event) {
	mu, ok := ev.Payload.(*events.MarketDataUpdate)
	if !ok {
		return
	}
	a.cache.Update(mu.MarketData)

	// Invalidate the memoized view; next read recomputes.
	a.aggMu.Lock()
	delete(a.agg, mu.MarketData.Symbol)
	a.aggMu.Unlock()
}

// Get returns the aggregated view for a symbol, or nil when no venue has
// quoted it.
func (a *Aggregator) Get(symbol string) *types.AggregatedMarketData {
	a.aggMu.Lock()
	if e, ok := a.agg[symbol]; ok && time.Since(e.computed) < a.ttl {
		a.aggMu.Unlock()
		out := e.data
		return &out
	}
	a.aggMu.Unlock()

	agg := a.compute(symbol)
	if agg == nil {
		return nil
	}

	a.aggMu.Lock()
	a.agg[symbol] = aggEntry{data: *agg, computed: time.Now()}
	a.aggMu.Unlock()
	return agg
}

// Sources returns the raw per-venue snapshots for a symbol.
func (a *Aggregator) Sources(symbol string) []types.MarketData {
	return a.cache.Get(symbol)
}

// Symbols lists every symbol with cached data.
func (a *Aggregator) Symbols() []string {
	return a.cache.Symbols()
}

// compute scans the per-venue snapshots and picks the best quote per side.
func (a *Aggregator) compute(symbol string) *types.AggregatedMarketData {
	sources := a.cache.Get(symbol)
	if len(sources) == 0 {
		return nil
	}

	agg := &types.AggregatedMarketData{
		Symbol:    symbol,
		Sources:   sources,
		Timestamp: time.Now().UTC(),
	}

	haveBid, haveAsk := false, false
	for _, md := range sources {
		if md.BidPrice != nil {
			if !haveBid || a.better(md.BidPrice.Cmp(agg.BestBid), md.Venue, agg.BestBidVenue) {
				agg.BestBid = *md.BidPrice
				agg.BestBidVenue = md.Venue
				if md.BidSize != nil {
					agg.BestBidSize = *md.BidSize
				}
				haveBid = true
			}
		}
		if md.AskPrice != nil {
			if !haveAsk || a.better(-md.AskPrice.Cmp(agg.BestAsk), md.Venue, agg.BestAskVenue) {
				agg.BestAsk = *md.AskPrice
				agg.BestAskVenue = md.Venue
				if md.AskSize != nil {
					agg.BestAskSize = *md.AskSize
				}
				haveAsk = true
			}
		}
	}

	if !haveBid && !haveAsk {
		return nil
	}
	return agg
}

// better reports whether a candidate quote beats the incumbent. cmp is the
// price comparison oriented so that positive means strictly better. Equal
// prices fall to the latency comparison, then the venue order.
func (a *Aggregator) better(cmp int, candidate, incumbent types.Venue) bool {
	if cmp != 0 {
		return cmp > 0
	}
	cl, il := a.latency(candidate), a.latency(incumbent)
	if cl != il {
		return cl < il
	}
	return candidate.Ordinal() < incumbent.Ordinal()
}
