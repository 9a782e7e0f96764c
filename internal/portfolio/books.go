// Package portfolio consolidates positions and balances across venues and
// tracks the gateway's active orders.
//
// Venue adapters stay the source of truth; everything here is a derived
// view rebuilt from events and periodically reconciled against REST pulls.
package portfolio

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"perp-gateway/pkg/types"
)

// PositionBook holds per-venue position legs and their consolidated view,
// keyed by symbol.
type PositionBook struct {
	mu   sync.RWMutex
	legs map[string]map[types.Venue]types.Position
}

// NewPositionBook returns an empty book.
func NewPositionBook() *PositionBook {
	return &PositionBook{legs: make(map[string]map[types.Venue]types.Position)}
}

// Apply updates one venue leg. A zero-size position removes the leg; the
// symbol disappears when its last leg is removed.
func (b *PositionBook) Apply(p types.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()

	byVenue, ok := b.legs[p.Symbol]
	if p.Size.IsZero() {
		if ok {
			delete(byVenue, p.Venue)
			if len(byVenue) == 0 {
				delete(b.legs, p.Symbol)
			}
		}
		return
	}

	if !ok {
		byVenue = make(map[types.Venue]types.Position)
		b.legs[p.Symbol] = byVenue
	}
	byVenue[p.Venue] = p
}

// Replace swaps in a full per-venue snapshot, dropping the venue's legs
// that the snapshot no longer contains. Used by reconciliation.
func (b *PositionBook) Replace(v types.Venue, positions []types.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sym, byVenue := range b.legs {
		delete(byVenue, v)
		if len(byVenue) == 0 {
			delete(b.legs, sym)
		}
	}
	for _, p := range positions {
		if p.Size.IsZero() {
			continue
		}
		byVenue, ok := b.legs[p.Symbol]
		if !ok {
			byVenue = make(map[types.Venue]types.Position)
			b.legs[p.Symbol] = byVenue
		}
		byVenue[p.Venue] = p
	}
}

// Venue returns one venue's legs across all symbols.
func (b *PositionBook) Venue(v types.Venue) []types.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []types.Position
	for _, byVenue := range b.legs {
		if p, ok := byVenue[v]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Legs returns the per-venue legs for one symbol.
func (b *PositionBook) Legs(symbol string) []types.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	byVenue := b.legs[symbol]
	out := make([]types.Position, 0, len(byVenue))
	for _, v := range types.AllVenues() {
		if p, ok := byVenue[v]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Consolidated returns the cross-venue position for one symbol, or nil
// when no venue has a leg.
//
// Rules: size is the signed sum; entry price is the size-weighted mean of
// the legs' entries; mark price comes from the most recently updated leg;
// PnL and margin sum; opened_at is the earliest leg.
func (b *PositionBook) Consolidated(symbol string) *types.Position {
	legs := b.Legs(symbol)
	if len(legs) == 0 {
		return nil
	}
	return consolidate(symbol, legs)
}

// ConsolidatedAll returns consolidated positions for every symbol.
func (b *PositionBook) ConsolidatedAll() []types.Position {
	b.mu.RLock()
	symbols := make([]string, 0, len(b.legs))
	for sym := range b.legs {
		symbols = append(symbols, sym)
	}
	b.mu.RUnlock()

	out := make([]types.Position, 0, len(symbols))
	for _, sym := range symbols {
		if p := b.Consolidated(sym); p != nil {
			out = append(out, *p)
		}
	}
	return out
}

func consolidate(symbol string, legs []types.Position) *types.Position {
	out := &types.Position{Symbol: symbol}

	var weighted, absTotal decimal.Decimal
	var latest time.Time
	venues := make([]string, 0, len(legs))

	for _, leg := range legs {
		out.Size = out.Size.Add(leg.Size)
		out.UnrealizedPnL = out.UnrealizedPnL.Add(leg.UnrealizedPnL)
		out.RealizedPnL = out.RealizedPnL.Add(leg.RealizedPnL)
		out.MarginUsed = out.MarginUsed.Add(leg.MarginUsed)

		abs := leg.Size.Abs()
		weighted = weighted.Add(abs.Mul(leg.EntryPrice))
		absTotal = absTotal.Add(abs)

		if leg.UpdatedAt.After(latest) {
			latest = leg.UpdatedAt
			out.MarkPrice = leg.MarkPrice
		}
		if leg.OpenedAt != nil && (out.OpenedAt == nil || leg.OpenedAt.Before(*out.OpenedAt)) {
			opened := *leg.OpenedAt
			out.OpenedAt = &opened
		}
		venues = append(venues, string(leg.Venue))
	}

	if !absTotal.IsZero() {
		out.EntryPrice = weighted.Div(absTotal)
	}
	out.UpdatedAt = latest
	out.VenueData = map[string]any{"venues": venues}
	return out
}

// BalanceBook holds per-venue balances keyed by asset.
type BalanceBook struct {
	mu       sync.RWMutex
	balances map[string]map[types.Venue]types.Balance
}

// NewBalanceBook returns an empty book.
func NewBalanceBook() *BalanceBook {
	return &BalanceBook{balances: make(map[string]map[types.Venue]types.Balance)}
}

// Apply updates one venue's balance for an asset.
func (b *BalanceBook) Apply(bal types.Balance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	byVenue, ok := b.balances[bal.Asset]
	if !ok {
		byVenue = make(map[types.Venue]types.Balance)
		b.balances[bal.Asset] = byVenue
	}
	byVenue[bal.Venue] = bal
}

// Replace swaps in a full per-venue balance snapshot.
func (b *BalanceBook) Replace(v types.Venue, balances []types.Balance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for asset, byVenue := range b.balances {
		delete(byVenue, v)
		if len(byVenue) == 0 {
			delete(b.balances, asset)
		}
	}
	for _, bal := range balances {
		byVenue, ok := b.balances[bal.Asset]
		if !ok {
			byVenue = make(map[types.Venue]types.Balance)
			b.balances[bal.Asset] = byVenue
		}
		byVenue[bal.Venue] = bal
	}
}

// Venue returns one venue's balances across all assets.
func (b *BalanceBook) Venue(v types.Venue) []types.Balance {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []types.Balance
	for _, byVenue := range b.balances {
		if bal, ok := byVenue[v]; ok {
			out = append(out, bal)
		}
	}
	return out
}

// Consolidated sums each asset across venues.
func (b *BalanceBook) Consolidated() []types.Balance {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]types.Balance, 0, len(b.balances))
	for asset, byVenue := range b.balances {
		sum := types.Balance{Asset: asset}
		venues := make([]string, 0, len(byVenue))
		var usd decimal.Decimal
		hasUSD := false
		for _, v := range types.AllVenues() {
			bal, ok := byVenue[v]
			if !ok {
				continue
			}
			sum.Total = sum.Total.Add(bal.Total)
			sum.Available = sum.Available.Add(bal.Available)
			sum.Locked = sum.Locked.Add(bal.Locked)
			if bal.USDValue != nil {
				usd = usd.Add(*bal.USDValue)
				hasUSD = true
			}
			if bal.UpdatedAt.After(sum.UpdatedAt) {
				sum.UpdatedAt = bal.UpdatedAt
			}
			venues = append(venues, string(v))
		}
		if hasUSD {
			sum.USDValue = &usd
		}
		sum.VenueData = map[string]any{"venues": venues}
		out = append(out, sum)
	}
	return out
}
