package portfolio

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"perp-gateway/internal/bus"
	"perp-gateway/internal/config"
	"perp-gateway/internal/events"
	"perp-gateway/pkg/types"
)

// VenueSource exposes the orchestrator surface the aggregator pulls from
// during reconciliation. Defined here so the dependency points upward.
type VenueSource interface {
	Venues() []types.Venue
	VenueHealthy(v types.Venue) bool
	VenuePositions(ctx context.Context, v types.Venue) ([]types.Position, error)
	VenueBalances(ctx context.Context, v types.Venue) ([]types.Balance, error)
}

// Metrics is the portfolio-level summary recomputed from the books.
// Allocations are notional sums: per asset (symbol prefix) and per venue.
type Metrics struct {
	TotalValueUSD      decimal.Decimal            `json:"total_value_usd"`
	TotalNotional      decimal.Decimal            `json:"total_notional"`
	TotalUnrealizedPnL decimal.Decimal            `json:"total_unrealized_pnl"`
	TotalRealizedPnL   decimal.Decimal            `json:"total_realized_pnl"`
	TotalMarginUsed    decimal.Decimal            `json:"total_margin_used"`
	PositionCount      int                        `json:"position_count"`
	ActiveOrderCount   int                        `json:"active_order_count"`
	AssetAllocation    map[string]decimal.Decimal `json:"asset_allocation"`
	VenueAllocation    map[string]decimal.Decimal `json:"venue_allocation"`
	ComputedAt         time.Time                  `json:"computed_at"`
}

// Aggregator keeps the cross-venue portfolio view current. It applies
// position, balance, and order events as they arrive, recomputes metrics
// on a coalescing interval, and reconciles the books against full venue
// pulls periodically. The view is healthy while the last full
// reconciliation is recent enough.
type Aggregator struct {
	positions *PositionBook
	balances  *BalanceBook
	source    VenueSource
	bus       bus.Bus
	cfg       config.PortfolioConfig
	logger    *slog.Logger

	subs []*bus.Subscription

	ordersMu sync.RWMutex
	active   map[string]types.Order // working orders by client id

	metricsMu sync.RWMutex
	metrics   Metrics
	dirty     atomic.Bool

	forceCh  chan struct{}
	lastFull atomic.Int64 // unix nanos of last complete reconciliation

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAggregator builds the aggregator.
func NewAggregator(source VenueSource, b bus.Bus, cfg config.PortfolioConfig, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		positions: NewPositionBook(),
		balances:  NewBalanceBook(),
		source:    source,
		bus:       b,
		cfg:       cfg,
		logger:    logger.With("component", "portfolio"),
		active:    make(map[string]types.Order),
		forceCh:   make(chan struct{}, 1),
	}
}

// Start subscribes to the event channels and launches the background loops.
func (a *Aggregator) Start() {
	a.ctx, a.cancel = context.WithCancel(context.Background())
	a.subs = []*bus.Subscription{
		a.bus.Subscribe(events.ChannelPositions, a.onPosition),
		a.bus.Subscribe(events.ChannelBalances, a.onBalance),
		a.bus.Subscribe(events.ChannelOrders, a.onOrder),
	}

	a.wg.Add(2)
	go a.metricsLoop()
	go a.reconcileLoop()
}

// Stop unsubscribes and stops the loops.
func (a *Aggregator) Stop() {
	if a.cancel == nil {
		return
	}
	for _, sub := range a.subs {
		a.bus.Unsubscribe(sub)
	}
	a.subs = nil
	a.cancel()
	a.wg.Wait()
}

// ————————————————————————————————————————————————————————————————————————
// Event handlers
// ————————————————————————————————————————————————————————————————————————

func (a *Aggregator) onPosition(_ context.Context, ev events.Event) {
	pu, ok := ev.Payload.(*events.PositionUpdate)
	if !ok {
		return
	}
	a.positions.Apply(pu.Position)
	a.dirty.Store(true)
}

func (a *Aggregator) onBalance(_ context.Context, ev events.Event) {
	bu, ok := ev.Payload.(*events.BalanceUpdate)
	if !ok {
		return
	}
	a.balances.Apply(bu.Balance)
	a.dirty.Store(true)
}

// onOrder tracks working orders by client id. Terminal updates remove the
// entry; a repeated terminal update for an unknown id is a no-op.
func (a *Aggregator) onOrder(_ context.Context, ev events.Event) {
	ou, ok := ev.Payload.(*events.OrderUpdate)
	if !ok {
		return
	}
	order := ou.Order

	a.ordersMu.Lock()
	if order.Status.IsTerminal() {
		delete(a.active, order.ClientID)
	} else {
		a.active[order.ClientID] = order
	}
	a.ordersMu.Unlock()
	a.dirty.Store(true)
}

// ————————————————————————————————————————————————————————————————————————
// Background loops
// ————————————————————————————————————————————————————————————————————————

// metricsLoop recomputes portfolio metrics at most once per interval, and
// only when something changed since the last pass.
func (a *Aggregator) metricsLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.cfg.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			if a.dirty.Swap(false) {
				a.recomputeMetrics()
			}
		}
	}
}

func (a *Aggregator) recomputeMetrics() {
	positions := a.positions.ConsolidatedAll()

	m := Metrics{
		AssetAllocation: make(map[string]decimal.Decimal),
		VenueAllocation: make(map[string]decimal.Decimal),
	}
	for _, p := range positions {
		notional := p.Notional()
		m.TotalNotional = m.TotalNotional.Add(notional)
		m.TotalUnrealizedPnL = m.TotalUnrealizedPnL.Add(p.UnrealizedPnL)
		m.TotalRealizedPnL = m.TotalRealizedPnL.Add(p.RealizedPnL)
		m.TotalMarginUsed = m.TotalMarginUsed.Add(p.MarginUsed)

		asset := p.Symbol
		if i := strings.Index(asset, "-"); i > 0 {
			asset = asset[:i]
		}
		m.AssetAllocation[asset] = m.AssetAllocation[asset].Add(notional)
	}
	m.TotalValueUSD = m.TotalNotional
	for _, v := range types.AllVenues() {
		var sum decimal.Decimal
		for _, p := range a.positions.Venue(v) {
			sum = sum.Add(p.Notional())
		}
		if !sum.IsZero() {
			m.VenueAllocation[string(v)] = sum
		}
	}

	m.PositionCount = len(positions)
	a.ordersMu.RLock()
	m.ActiveOrderCount = len(a.active)
	a.ordersMu.RUnlock()
	m.ComputedAt = time.Now().UTC()

	a.metricsMu.Lock()
	a.metrics = m
	a.metricsMu.Unlock()

	a.publishMetrics(m)
}

// publishMetrics pushes the fresh summary to the bus as a system event so
// downstream consumers see metrics without polling the REST surface.
func (a *Aggregator) publishMetrics(m Metrics) {
	ev := events.New("", &events.SystemUpdate{
		Component: "portfolio",
		Message:   "metrics",
		Data:      map[string]any{"metrics": m},
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.bus.Publish(ctx, ev); err != nil {
		a.logger.Warn("publish portfolio metrics", "error", err)
	}
}

// reconcileLoop pulls full snapshots from every healthy venue on the
// interval or on demand.
func (a *Aggregator) reconcileLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.reconcile()
		case <-a.forceCh:
			a.reconcile()
		}
	}
}

func (a *Aggregator) reconcile() {
	venues := a.source.Venues()
	complete := len(venues) > 0

	for _, v := range venues {
		if !a.source.VenueHealthy(v) {
			complete = false
			continue
		}
		ctx, cancel := context.WithTimeout(a.ctx, 10*time.Second)
		positions, perr := a.source.VenuePositions(ctx, v)
		balances, berr := a.source.VenueBalances(ctx, v)
		cancel()

		if perr != nil || berr != nil {
			complete = false
			a.logger.Warn("reconciliation pull failed",
				"venue", v, "positions_error", perr, "balances_error", berr)
			continue
		}
		a.positions.Replace(v, positions)
		a.balances.Replace(v, balances)
	}

	a.dirty.Store(true)
	if complete {
		a.lastFull.Store(time.Now().UnixNano())
	}
}

// ForceReconcile schedules an immediate reconciliation pass.
func (a *Aggregator) ForceReconcile() {
	select {
	case a.forceCh <- struct{}{}:
	default:
	}
}

// ————————————————————————————————————————————————————————————————————————
// Read surface
// ————————————————————————————————————————————————————————————————————————

// ConsolidatedPositions returns the cross-venue positions.
func (a *Aggregator) ConsolidatedPositions() []types.Position {
	return a.positions.ConsolidatedAll()
}

// ConsolidatedPosition returns the cross-venue position for one symbol.
func (a *Aggregator) ConsolidatedPosition(symbol string) *types.Position {
	return a.positions.Consolidated(symbol)
}

// PositionLegs returns the per-venue legs for one symbol.
func (a *Aggregator) PositionLegs(symbol string) []types.Position {
	return a.positions.Legs(symbol)
}

// VenuePositions returns one venue's view of its positions.
func (a *Aggregator) VenuePositions(v types.Venue) []types.Position {
	return a.positions.Venue(v)
}

// ConsolidatedBalances returns balances summed per asset.
func (a *Aggregator) ConsolidatedBalances() []types.Balance {
	return a.balances.Consolidated()
}

// VenueBalances returns one venue's balances.
func (a *Aggregator) VenueBalances(v types.Venue) []types.Balance {
	return a.balances.Venue(v)
}

// ActiveOrders returns the working orders.
func (a *Aggregator) ActiveOrders() []types.Order {
	a.ordersMu.RLock()
	defer a.ordersMu.RUnlock()
	out := make([]types.Order, 0, len(a.active))
	for _, o := range a.active {
		out = append(out, o)
	}
	return out
}

// Metrics returns the latest computed summary.
func (a *Aggregator) Metrics() Metrics {
	a.metricsMu.RLock()
	defer a.metricsMu.RUnlock()
	return a.metrics
}

// Healthy reports whether the last complete reconciliation is recent.
func (a *Aggregator) Healthy() bool {
	n := a.lastFull.Load()
	if n == 0 {
		return false
	}
	return time.Since(time.Unix(0, n)) < a.cfg.StaleAfter
}

// LastFullReconcile returns when every venue was last pulled successfully.
func (a *Aggregator) LastFullReconcile() time.Time {
	n := a.lastFull.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
