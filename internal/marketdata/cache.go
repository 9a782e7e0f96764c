// Package marketdata maintains the cross-venue price view.
//
// A Cache mirrors the latest per-venue snapshot for every symbol, fed by
// market_data_update events. The Aggregator computes best bid/ask across
// venues on top of it, with a short TTL on aggregated views so hot read
// paths do not recompute on every request.
package marketdata

import (
	"sync"
	"time"

	"perp-gateway/pkg/types"
)

// Cache holds the latest market data snapshot per symbol and venue.
// It is concurrency-safe; writers are bus handlers, readers are the
// aggregator and the REST layer.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]map[types.Venue]types.MarketData
	updated time.Time
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]map[types.Venue]types.MarketData)}
}

// Update stores a snapshot, replacing the venue's previous one for the
// symbol.
func (c *Cache) Update(md types.MarketData) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byVenue, ok := c.entries[md.Symbol]
	if !ok {
		byVenue = make(map[types.Venue]types.MarketData)
		c.entries[md.Symbol] = byVenue
	}
	byVenue[md.Venue] = md
	c.updated = time.Now()
}

// Get returns the per-venue snapshots for a symbol.
func (c *Cache) Get(symbol string) []types.MarketData {
	c.mu.RLock()
	defer c.mu.RUnlock()

	byVenue := c.entries[symbol]
	out := make([]types.MarketData, 0, len(byVenue))
	for _, v := range types.AllVenues() {
		if md, ok := byVenue[v]; ok {
			out = append(out, md)
		}
	}
	return out
}

// GetVenue returns one venue's snapshot for a symbol.
func (c *Cache) GetVenue(symbol string, v types.Venue) (types.MarketData, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	md, ok := c.entries[symbol][v]
	return md, ok
}

// Symbols lists every symbol with at least one snapshot.
func (c *Cache) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.entries))
	for sym := range c.entries {
		out = append(out, sym)
	}
	return out
}

// IsStale returns true if nothing has been cached within maxAge.
func (c *Cache) IsStale(maxAge time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.updated.IsZero() {
		return true
	}
	return time.Since(c.updated) > maxAge
}

// LastUpdated returns the timestamp of the last cache write.
func (c *Cache) LastUpdated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updated
}
