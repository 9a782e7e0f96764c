package portfolio

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"perp-gateway/pkg/types"
)

func position(v types.Venue, symbol, size, entry, mark string, updated time.Time) types.Position {
	return types.Position{
		Venue:      v,
		Symbol:     symbol,
		Size:       decimal.RequireFromString(size),
		EntryPrice: decimal.RequireFromString(entry),
		MarkPrice:  decimal.RequireFromString(mark),
		UpdatedAt:  updated,
	}
}

func TestConsolidatePartialHedge(t *testing.T) {
	t.Parallel()

	now := time.Now()
	book := NewPositionBook()
	book.Apply(position(types.VenueHyperliquid, "ETH-PERP", "2.0", "3000", "3050", now.Add(-time.Minute)))
	book.Apply(position(types.VenueLighter, "ETH-PERP", "-0.5", "3100", "3060", now))

	got := book.Consolidated("ETH-PERP")
	if got == nil {
		t.Fatal("expected consolidated position")
	}
	if !got.Size.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("size %s, want 1.5", got.Size)
	}
	// entry = (2.0*3000 + 0.5*3100) / 2.5 = 3020
	if !got.EntryPrice.Equal(decimal.RequireFromString("3020")) {
		t.Fatalf("entry price %s, want 3020", got.EntryPrice)
	}
	// mark comes from the most recently updated leg
	if !got.MarkPrice.Equal(decimal.RequireFromString("3060")) {
		t.Fatalf("mark price %s, want 3060", got.MarkPrice)
	}
	venues, _ := got.VenueData["venues"].([]string)
	if len(venues) != 2 {
		t.Fatalf("venue data %v, want two contributing venues", got.VenueData)
	}
}

func TestConsolidateFullyHedgedNetsToZero(t *testing.T) {
	t.Parallel()

	now := time.Now()
	book := NewPositionBook()
	book.Apply(position(types.VenueHyperliquid, "BTC-PERP", "1.0", "50000", "51000", now))
	book.Apply(position(types.VenueTradeXYZ, "BTC-PERP", "-1.0", "50500", "51000", now))

	got := book.Consolidated("BTC-PERP")
	if got == nil {
		t.Fatal("hedged position should still be reported")
	}
	if !got.Size.IsZero() {
		t.Fatalf("size %s, want 0", got.Size)
	}
	// entry = (1*50000 + 1*50500) / 2 = 50250
	if !got.EntryPrice.Equal(decimal.RequireFromString("50250")) {
		t.Fatalf("entry price %s, want 50250", got.EntryPrice)
	}
}

func TestZeroSizeRemovesLeg(t *testing.T) {
	t.Parallel()

	now := time.Now()
	book := NewPositionBook()
	book.Apply(position(types.VenueHyperliquid, "SOL-PERP", "10", "100", "101", now))
	book.Apply(position(types.VenueLighter, "SOL-PERP", "5", "102", "101", now))

	book.Apply(position(types.VenueLighter, "SOL-PERP", "0", "0", "0", now))
	got := book.Consolidated("SOL-PERP")
	if got == nil || !got.Size.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("after removing one leg got %+v, want size 10", got)
	}

	book.Apply(position(types.VenueHyperliquid, "SOL-PERP", "0", "0", "0", now))
	if book.Consolidated("SOL-PERP") != nil {
		t.Fatal("removing the last leg should drop the symbol")
	}
}

func TestReplaceDropsMissingLegs(t *testing.T) {
	t.Parallel()

	now := time.Now()
	book := NewPositionBook()
	book.Apply(position(types.VenueHyperliquid, "ETH-PERP", "1", "3000", "3000", now))
	book.Apply(position(types.VenueHyperliquid, "BTC-PERP", "1", "50000", "50000", now))

	// The venue snapshot only contains ETH now; BTC must disappear.
	book.Replace(types.VenueHyperliquid, []types.Position{
		position(types.VenueHyperliquid, "ETH-PERP", "2", "3010", "3010", now),
	})

	if book.Consolidated("BTC-PERP") != nil {
		t.Fatal("leg absent from snapshot should be dropped")
	}
	got := book.Consolidated("ETH-PERP")
	if got == nil || !got.Size.Equal(decimal.RequireFromString("2")) {
		t.Fatalf("replaced leg got %+v, want size 2", got)
	}
}

func TestBalanceConsolidation(t *testing.T) {
	t.Parallel()

	now := time.Now()
	usdA := decimal.RequireFromString("1000")
	usdB := decimal.RequireFromString("500")
	book := NewBalanceBook()
	book.Apply(types.Balance{
		Venue: types.VenueHyperliquid, Asset: "USDC",
		Total:     decimal.RequireFromString("1000"),
		Available: decimal.RequireFromString("800"),
		Locked:    decimal.RequireFromString("200"),
		USDValue:  &usdA,
		UpdatedAt: now,
	})
	book.Apply(types.Balance{
		Venue: types.VenueLighter, Asset: "USDC",
		Total:     decimal.RequireFromString("500"),
		Available: decimal.RequireFromString("500"),
		Locked:    decimal.Zero,
		USDValue:  &usdB,
		UpdatedAt: now,
	})

	all := book.Consolidated()
	if len(all) != 1 {
		t.Fatalf("consolidated %d assets, want 1", len(all))
	}
	got := all[0]
	if !got.Total.Equal(decimal.RequireFromString("1500")) ||
		!got.Available.Equal(decimal.RequireFromString("1300")) ||
		!got.Locked.Equal(decimal.RequireFromString("200")) {
		t.Fatalf("consolidated balance %+v", got)
	}
	if !got.Total.Equal(got.Available.Add(got.Locked)) {
		t.Fatal("total != available + locked")
	}
	if got.USDValue == nil || !got.USDValue.Equal(decimal.RequireFromString("1500")) {
		t.Fatalf("usd value %v, want 1500", got.USDValue)
	}
}

func TestBalanceConsolidationWithoutUSDValue(t *testing.T) {
	t.Parallel()

	book := NewBalanceBook()
	book.Apply(types.Balance{
		Venue: types.VenueTradeXYZ, Asset: "USD",
		Total:     decimal.RequireFromString("250"),
		Available: decimal.RequireFromString("250"),
		UpdatedAt: time.Now(),
	})

	all := book.Consolidated()
	if len(all) != 1 {
		t.Fatalf("consolidated %d assets, want 1", len(all))
	}
	// no venue reported a USD valuation, so none is invented
	if all[0].USDValue != nil {
		t.Fatalf("usd value %v, want nil", all[0].USDValue)
	}
}
