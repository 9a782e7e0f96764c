package marketdata

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"perp-gateway/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func snapshot(v types.Venue, symbol, bid, ask string) types.MarketData {
	b := decimal.RequireFromString(bid)
	a := decimal.RequireFromString(ask)
	size := decimal.NewFromInt(1)
	return types.MarketData{
		Venue:     v,
		Symbol:    symbol,
		BidPrice:  &b,
		BidSize:   &size,
		AskPrice:  &a,
		AskSize:   &size,
		Timestamp: time.Now(),
	}
}

func TestAggregatorPicksBestQuotes(t *testing.T) {
	t.Parallel()

	cache := NewCache()
	cache.Update(snapshot(types.VenueHyperliquid, "BTC-PERP", "50950", "51010"))
	cache.Update(snapshot(types.VenueLighter, "BTC-PERP", "50960", "51005"))

	agg := NewAggregator(cache, nil, nil, time.Second, testLogger())
	got := agg.Get("BTC-PERP")
	if got == nil {
		t.Fatal("expected aggregated view")
	}

	if !got.BestBid.Equal(decimal.RequireFromString("50960")) || got.BestBidVenue != types.VenueLighter {
		t.Fatalf("best bid %s@%s, want 50960@lighter", got.BestBid, got.BestBidVenue)
	}
	if !got.BestAsk.Equal(decimal.RequireFromString("51005")) || got.BestAskVenue != types.VenueLighter {
		t.Fatalf("best ask %s@%s, want 51005@lighter", got.BestAsk, got.BestAskVenue)
	}
	if len(got.Sources) != 2 {
		t.Fatalf("sources %d, want 2", len(got.Sources))
	}
}

func TestAggregatorTieBreakByLatencyThenOrder(t *testing.T) {
	t.Parallel()

	cache := NewCache()
	cache.Update(snapshot(types.VenueHyperliquid, "ETH-PERP", "3000", "3001"))
	cache.Update(snapshot(types.VenueLighter, "ETH-PERP", "3000", "3001"))

	// Lighter is faster, so equal prices resolve to lighter.
	latency := func(v types.Venue) float64 {
		if v == types.VenueLighter {
			return 5
		}
		return 50
	}
	agg := NewAggregator(cache, nil, latency, time.Second, testLogger())
	got := agg.Get("ETH-PERP")
	if got == nil || got.BestBidVenue != types.VenueLighter || got.BestAskVenue != types.VenueLighter {
		t.Fatalf("tie should resolve to lower-latency venue, got %+v", got)
	}

	// Equal latency falls back to the canonical venue order.
	agg2 := NewAggregator(cache, nil, nil, time.Second, testLogger())
	got2 := agg2.Get("ETH-PERP")
	if got2 == nil || got2.BestBidVenue != types.VenueHyperliquid {
		t.Fatalf("latency tie should resolve to first venue, got %+v", got2)
	}
}

func TestAggregatorPartialSides(t *testing.T) {
	t.Parallel()

	bid := decimal.RequireFromString("99.5")
	cache := NewCache()
	cache.Update(types.MarketData{
		Venue:     types.VenueTradeXYZ,
		Symbol:    "SOL-PERP",
		BidPrice:  &bid,
		Timestamp: time.Now(),
	})

	agg := NewAggregator(cache, nil, nil, time.Second, testLogger())
	got := agg.Get("SOL-PERP")
	if got == nil {
		t.Fatal("expected aggregated view from one-sided quote")
	}
	if !got.BestBid.Equal(bid) || got.BestBidVenue != types.VenueTradeXYZ {
		t.Fatalf("best bid %s@%s, want 99.5@tradexyz", got.BestBid, got.BestBidVenue)
	}
	if !got.BestAsk.IsZero() {
		t.Fatalf("best ask should stay zero with no asks, got %s", got.BestAsk)
	}

	if agg.Get("UNQUOTED-PERP") != nil {
		t.Fatal("unknown symbol should aggregate to nil")
	}
}

func TestCacheStaleness(t *testing.T) {
	t.Parallel()

	cache := NewCache()
	if !cache.IsStale(time.Second) {
		t.Fatal("empty cache should be stale")
	}
	cache.Update(snapshot(types.VenueLighter, "BTC-PERP", "1", "2"))
	if cache.IsStale(time.Minute) {
		t.Fatal("fresh cache reported stale")
	}
}
