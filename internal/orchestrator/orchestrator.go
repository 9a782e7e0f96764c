package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"perp-gateway/internal/bus"
	"perp-gateway/internal/config"
	"perp-gateway/internal/events"
	"perp-gateway/internal/marketdata"
	"perp-gateway/internal/metrics"
	"perp-gateway/internal/portfolio"
	"perp-gateway/internal/venue"
	"perp-gateway/pkg/types"
)

// Orchestrator is the gateway's unified trading surface. Every operation
// takes an optional venue: routed directly when given, fanned out or served
// from the consolidated books when not.
type Orchestrator struct {
	managers map[types.Venue]*VenueManager
	bus      bus.Bus
	cfg      *config.Config
	logger   *slog.Logger

	portfolio *portfolio.Aggregator
	market    *marketdata.Aggregator

	ordersMu sync.RWMutex
	orders   map[string]*types.Order // by client id
	sequence []string                // client ids in placement order

	shuttingDown bool
	shutdownMu   sync.RWMutex

	startedAt time.Time
}

// New builds the orchestrator over the given adapters. Aggregators are
// attached separately because they take the orchestrator as their source.
func New(adapters []venue.Adapter, b bus.Bus, cfg *config.Config, logger *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		managers:  make(map[types.Venue]*VenueManager, len(adapters)),
		bus:       b,
		cfg:       cfg,
		logger:    logger.With("component", "orchestrator"),
		orders:    make(map[string]*types.Order),
		startedAt: time.Now().UTC(),
	}
	for _, a := range adapters {
		o.managers[a.Venue()] = newVenueManager(a, cfg.Breaker, b, logger)
	}
	return o
}

// AttachPortfolio wires the portfolio aggregator for consolidated reads.
func (o *Orchestrator) AttachPortfolio(p *portfolio.Aggregator) { o.portfolio = p }

// AttachMarketData wires the market data aggregator for best-quote reads.
func (o *Orchestrator) AttachMarketData(m *marketdata.Aggregator) { o.market = m }

// Start initializes every venue. A venue that fails to start is left
// disconnected and logged; the gateway runs with whatever connected.
func (o *Orchestrator) Start(ctx context.Context) error {
	started := 0
	for _, v := range o.Venues() {
		if err := o.managers[v].start(ctx); err != nil {
			o.logger.Error("venue failed to start", "venue", v, "error", err)
			continue
		}
		started++
	}
	if started == 0 {
		return types.NewConfigurationError("no venue started")
	}
	o.logger.Info("orchestrator started", "venues", started)
	return nil
}

// Shutdown drains the gateway: new operations are refused, aggregators
// stop, venues disconnect, and the bus closes.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.shutdownMu.Lock()
	o.shuttingDown = true
	o.shutdownMu.Unlock()

	o.logger.Info("shutting down")
	if o.market != nil {
		o.market.Stop()
	}
	if o.portfolio != nil {
		o.portfolio.Stop()
	}
	for _, v := range o.Venues() {
		if err := o.managers[v].stop(ctx); err != nil {
			o.logger.Warn("venue shutdown failed", "venue", v, "error", err)
		}
	}
	return o.bus.Close(ctx)
}

func (o *Orchestrator) isShuttingDown() bool {
	o.shutdownMu.RLock()
	defer o.shutdownMu.RUnlock()
	return o.shuttingDown
}

// manager resolves a venue to its manager.
func (o *Orchestrator) manager(v types.Venue) (*VenueManager, error) {
	m, ok := o.managers[v]
	if !ok {
		return nil, types.NewConfigurationError("venue not enabled: " + string(v))
	}
	return m, nil
}

// ————————————————————————————————————————————————————————————————————————
// VenueSource and latency surface
// ————————————————————————————————————————————————————————————————————————

// Venues lists enabled venues in canonical order.
func (o *Orchestrator) Venues() []types.Venue {
	out := make([]types.Venue, 0, len(o.managers))
	for _, v := range types.AllVenues() {
		if _, ok := o.managers[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

// VenueHealthy reports whether a venue can serve requests.
func (o *Orchestrator) VenueHealthy(v types.Venue) bool {
	m, ok := o.managers[v]
	return ok && m.healthy()
}

// VenuePositions pulls one venue's positions through its breaker.
func (o *Orchestrator) VenuePositions(ctx context.Context, v types.Venue) ([]types.Position, error) {
	m, err := o.manager(v)
	if err != nil {
		return nil, err
	}
	var out []types.Position
	err = m.do(ctx, func(ctx context.Context) error {
		var err error
		out, err = m.adapter.GetPositions(ctx)
		return err
	})
	return out, err
}

// VenueBalances pulls one venue's balances through its breaker.
func (o *Orchestrator) VenueBalances(ctx context.Context, v types.Venue) ([]types.Balance, error) {
	m, err := o.manager(v)
	if err != nil {
		return nil, err
	}
	var out []types.Balance
	err = m.do(ctx, func(ctx context.Context) error {
		var err error
		out, err = m.adapter.GetBalances(ctx)
		return err
	})
	return out, err
}

// Latency reports a venue's rolling mean request latency, for quote
// tie-breaking.
func (o *Orchestrator) Latency(v types.Venue) float64 {
	if m, ok := o.managers[v]; ok {
		return m.avgLatencyMs()
	}
	return 0
}

// ————————————————————————————————————————————————————————————————————————
// Trading
// ————————————————————————————————————————————————————————————————————————

// PlaceOrder validates, routes, and records one order. Every outcome,
// rejection included, is published as an order_update event.
func (o *Orchestrator) PlaceOrder(ctx context.Context, order *types.Order) (*types.Order, error) {
	if o.isShuttingDown() {
		return nil, types.ErrShuttingDown()
	}
	if err := order.Validate(); err != nil {
		return nil, err
	}

	if order.ClientID == "" {
		order.ClientID = uuid.NewString()
	} else if o.lookupOrder(order.ClientID) != nil {
		return nil, types.NewOrderValidationError("client_order_id", "client order id already used")
	}

	m, err := o.manager(order.Venue)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order.Status = types.OrderStatusPending
	order.CreatedAt = now
	order.UpdatedAt = now

	var placed *types.Order
	err = m.do(ctx, func(ctx context.Context) error {
		var err error
		placed, err = m.adapter.PlaceOrder(ctx, order)
		return err
	})
	if err != nil {
		rejected := *order
		rejected.Status = types.OrderStatusRejected
		rejected.UpdatedAt = time.Now().UTC()
		o.recordOrder(&rejected)
		o.publishOrder(&rejected, err.Error())
		metrics.OrdersPlaced.WithLabelValues(string(order.Venue), "rejected").Inc()
		return nil, err
	}

	o.recordOrder(placed)
	o.publishOrder(placed, "")
	metrics.OrdersPlaced.WithLabelValues(string(placed.Venue), string(placed.Status)).Inc()
	o.logger.Info("order placed",
		"venue", placed.Venue, "symbol", placed.Symbol, "side", placed.Side,
		"client_order_id", placed.ClientID, "order_id", placed.VenueID,
		"status", placed.Status)
	return placed, nil
}

// CancelOrder cancels by client order id.
func (o *Orchestrator) CancelOrder(ctx context.Context, clientID string) (*types.Order, error) {
	if o.isShuttingDown() {
		return nil, types.ErrShuttingDown()
	}
	order := o.lookupOrder(clientID)
	if order == nil {
		return nil, types.NewOrderNotFoundError(clientID)
	}
	if order.Status.IsTerminal() {
		return nil, types.NewOrderValidationError("status", "order is already "+string(order.Status))
	}

	m, err := o.manager(order.Venue)
	if err != nil {
		return nil, err
	}
	err = m.do(ctx, func(ctx context.Context) error {
		return m.adapter.CancelOrder(ctx, order.Symbol, order.VenueID)
	})
	if err != nil {
		return nil, err
	}

	cancelled := *order
	cancelled.Status = types.OrderStatusCancelled
	cancelled.UpdatedAt = time.Now().UTC()
	o.recordOrder(&cancelled)
	o.publishOrder(&cancelled, "")
	return &cancelled, nil
}

// CancelAllOrders cancels working orders, optionally narrowed to one venue
// and one symbol. Returns how many cancels were accepted; per-order
// failures are logged and skipped.
func (o *Orchestrator) CancelAllOrders(ctx context.Context, only *types.Venue, symbol string) (int, error) {
	if o.isShuttingDown() {
		return 0, types.ErrShuttingDown()
	}

	venues := o.Venues()
	if only != nil {
		if _, err := o.manager(*only); err != nil {
			return 0, err
		}
		venues = []types.Venue{*only}
	}

	cancelled := 0
	for _, v := range venues {
		m := o.managers[v]
		var open []types.Order
		err := m.do(ctx, func(ctx context.Context) error {
			var err error
			open, err = m.adapter.GetOpenOrders(ctx, symbol)
			return err
		})
		if err != nil {
			o.logger.Warn("cancel-all: listing open orders failed", "venue", v, "error", err)
			continue
		}
		for i := range open {
			ord := open[i]
			err := m.do(ctx, func(ctx context.Context) error {
				return m.adapter.CancelOrder(ctx, ord.Symbol, ord.VenueID)
			})
			if err != nil {
				o.logger.Warn("cancel-all: cancel failed",
					"venue", v, "order_id", ord.VenueID, "error", err)
				continue
			}
			ord.Status = types.OrderStatusCancelled
			ord.UpdatedAt = time.Now().UTC()
			if ord.ClientID != "" {
				o.recordOrder(&ord)
			}
			o.publishOrder(&ord, "")
			cancelled++
		}
	}
	return cancelled, nil
}

// GetOrder returns the order for a client id, refreshed from the venue
// while it is still working.
func (o *Orchestrator) GetOrder(ctx context.Context, clientID string) (*types.Order, error) {
	order := o.lookupOrder(clientID)
	if order == nil {
		return nil, types.NewOrderNotFoundError(clientID)
	}
	if order.Status.IsTerminal() || order.VenueID == "" {
		return order, nil
	}

	m, err := o.manager(order.Venue)
	if err != nil {
		return order, nil
	}
	var fresh *types.Order
	err = m.do(ctx, func(ctx context.Context) error {
		var err error
		fresh, err = m.adapter.GetOrder(ctx, order.Symbol, order.VenueID)
		return err
	})
	if err != nil {
		// serve the cached copy when the venue is unreachable
		o.logger.Warn("order refresh failed", "client_order_id", clientID, "error", err)
		return order, nil
	}
	fresh.ClientID = order.ClientID
	o.recordOrder(fresh)
	return fresh, nil
}

// GetOpenOrders lists working orders across venues, optionally narrowed.
func (o *Orchestrator) GetOpenOrders(ctx context.Context, only *types.Venue, symbol string) ([]types.Order, error) {
	venues := o.Venues()
	if only != nil {
		if _, err := o.manager(*only); err != nil {
			return nil, err
		}
		venues = []types.Venue{*only}
	}

	var out []types.Order
	for _, v := range venues {
		m := o.managers[v]
		var open []types.Order
		err := m.do(ctx, func(ctx context.Context) error {
			var err error
			open, err = m.adapter.GetOpenOrders(ctx, symbol)
			return err
		})
		if err != nil {
			if only != nil {
				return nil, err
			}
			o.logger.Warn("open orders pull failed", "venue", v, "error", err)
			continue
		}
		out = append(out, open...)
	}
	return out, nil
}

// OrderFilter narrows order history queries.
type OrderFilter struct {
	Venue  *types.Venue
	Symbol string
	Status types.OrderStatus
	Limit  int
	Offset int
}

// OrderHistory returns placed orders, newest first.
func (o *Orchestrator) OrderHistory(f OrderFilter) []types.Order {
	o.ordersMu.RLock()
	defer o.ordersMu.RUnlock()

	var matched []types.Order
	for i := len(o.sequence) - 1; i >= 0; i-- {
		ord := o.orders[o.sequence[i]]
		if f.Venue != nil && ord.Venue != *f.Venue {
			continue
		}
		if f.Symbol != "" && ord.Symbol != f.Symbol {
			continue
		}
		if f.Status != "" && ord.Status != f.Status {
			continue
		}
		matched = append(matched, *ord)
	}

	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched
}

// ————————————————————————————————————————————————————————————————————————
// Positions and balances
// ————————————————————————————————————————————————————————————————————————

// GetPositions returns one venue's positions, or the consolidated
// cross-venue view when no venue is given.
func (o *Orchestrator) GetPositions(ctx context.Context, only *types.Venue) ([]types.Position, error) {
	if only != nil {
		return o.VenuePositions(ctx, *only)
	}
	return o.portfolio.ConsolidatedPositions(), nil
}

// GetPosition returns the consolidated position for one symbol along with
// its per-venue legs.
func (o *Orchestrator) GetPosition(symbol string) (*types.Position, []types.Position, error) {
	p := o.portfolio.ConsolidatedPosition(symbol)
	if p == nil {
		return nil, nil, types.NewPositionNotFoundError(symbol)
	}
	return p, o.portfolio.PositionLegs(symbol), nil
}

// GetBalances returns one venue's balances, or per-asset sums across
// venues when no venue is given.
func (o *Orchestrator) GetBalances(ctx context.Context, only *types.Venue) ([]types.Balance, error) {
	if only != nil {
		return o.VenueBalances(ctx, *only)
	}
	return o.portfolio.ConsolidatedBalances(), nil
}

// ClosePosition flattens a symbol with market reduce-only orders. With a
// venue it closes that leg alone; without, every leg in canonical venue
// order. A size closes partially, consumed leg by leg.
func (o *Orchestrator) ClosePosition(ctx context.Context, symbol string, only *types.Venue, size *decimal.Decimal) ([]types.Order, error) {
	if o.isShuttingDown() {
		return nil, types.ErrShuttingDown()
	}
	if size != nil && !size.IsPositive() {
		return nil, types.NewOrderValidationError("size", "size must be positive")
	}

	legs := o.portfolio.PositionLegs(symbol)
	if only != nil {
		filtered := legs[:0]
		for _, leg := range legs {
			if leg.Venue == *only {
				filtered = append(filtered, leg)
			}
		}
		legs = filtered
	}
	if len(legs) == 0 {
		return nil, types.NewPositionNotFoundError(symbol)
	}

	var remaining decimal.Decimal
	if size != nil {
		remaining = *size
	}

	var placed []types.Order
	for _, leg := range legs {
		qty := leg.Size.Abs()
		if size != nil {
			if !remaining.IsPositive() {
				break
			}
			qty = decimal.Min(qty, remaining)
		}
		if qty.IsZero() {
			continue
		}

		order := &types.Order{
			Venue:      leg.Venue,
			Symbol:     symbol,
			Side:       closeSide(leg),
			Type:       types.OrderTypeMarket,
			Quantity:   qty,
			ReduceOnly: true,
		}
		result, err := o.PlaceOrder(ctx, order)
		if err != nil {
			return placed, err
		}
		placed = append(placed, *result)
		if size != nil {
			remaining = remaining.Sub(qty)
		}
	}
	o.portfolio.ForceReconcile()
	return placed, nil
}

func closeSide(leg types.Position) types.Side {
	if leg.Size.IsPositive() {
		return types.SideSell
	}
	return types.SideBuy
}

// ————————————————————————————————————————————————————————————————————————
// Market data
// ————————————————————————————————————————————————————————————————————————

// GetMarketData returns a snapshot from one venue, or the cached per-venue
// snapshots when no venue is given.
func (o *Orchestrator) GetMarketData(ctx context.Context, only *types.Venue, symbol string) ([]types.MarketData, error) {
	if only == nil {
		return o.market.Sources(symbol), nil
	}
	m, err := o.manager(*only)
	if err != nil {
		return nil, err
	}
	var md *types.MarketData
	err = m.do(ctx, func(ctx context.Context) error {
		var err error
		md, err = m.adapter.GetMarketData(ctx, symbol)
		return err
	})
	if err != nil {
		return nil, err
	}
	return []types.MarketData{*md}, nil
}

// GetAggregatedMarketData returns the best bid and ask across venues.
func (o *Orchestrator) GetAggregatedMarketData(symbol string) (*types.AggregatedMarketData, error) {
	agg := o.market.Get(symbol)
	if agg == nil {
		return nil, types.NewMarketDataError("", symbol, nil)
	}
	return agg, nil
}

// GetOrderBook returns a depth snapshot from one venue.
func (o *Orchestrator) GetOrderBook(ctx context.Context, v types.Venue, symbol string, depth int) (*types.OrderBook, error) {
	m, err := o.manager(v)
	if err != nil {
		return nil, err
	}
	var book *types.OrderBook
	err = m.do(ctx, func(ctx context.Context) error {
		var err error
		book, err = m.adapter.GetOrderBook(ctx, symbol, depth)
		return err
	})
	return book, err
}

// GetKlines returns candlesticks from one venue.
func (o *Orchestrator) GetKlines(ctx context.Context, v types.Venue, symbol string, interval types.Interval, limit int, start, end time.Time) ([]types.Kline, error) {
	m, err := o.manager(v)
	if err != nil {
		return nil, err
	}
	var klines []types.Kline
	err = m.do(ctx, func(ctx context.Context) error {
		var err error
		klines, err = m.adapter.GetKlines(ctx, symbol, interval, limit, start, end)
		return err
	})
	return klines, err
}

// GetRecentTrades returns recent public trades from one venue.
func (o *Orchestrator) GetRecentTrades(ctx context.Context, v types.Venue, symbol string, limit int) ([]types.Trade, error) {
	m, err := o.manager(v)
	if err != nil {
		return nil, err
	}
	var trades []types.Trade
	err = m.do(ctx, func(ctx context.Context) error {
		var err error
		trades, err = m.adapter.GetRecentTrades(ctx, symbol, limit)
		return err
	})
	return trades, err
}

// GetSymbols lists tradable symbols, per venue or the union across venues.
func (o *Orchestrator) GetSymbols(ctx context.Context, only *types.Venue) ([]string, error) {
	venues := o.Venues()
	if only != nil {
		if _, err := o.manager(*only); err != nil {
			return nil, err
		}
		venues = []types.Venue{*only}
	}

	seen := make(map[string]bool)
	var out []string
	for _, v := range venues {
		m := o.managers[v]
		var symbols []string
		err := m.do(ctx, func(ctx context.Context) error {
			var err error
			symbols, err = m.adapter.GetSymbols(ctx)
			return err
		})
		if err != nil {
			if only != nil {
				return nil, err
			}
			o.logger.Warn("symbol listing failed", "venue", v, "error", err)
			continue
		}
		for _, s := range symbols {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out, nil
}

// SubscribeMarketData fans a streaming subscription out to every healthy
// venue. A venue without the symbol just skips it.
func (o *Orchestrator) SubscribeMarketData(ctx context.Context, symbols []string) error {
	for _, v := range o.Venues() {
		m := o.managers[v]
		if !m.healthy() {
			continue
		}
		if err := m.adapter.SubscribeMarketData(ctx, symbols); err != nil {
			o.logger.Warn("market data subscribe failed", "venue", v, "error", err)
		}
	}
	return nil
}

// UnsubscribeMarketData drops streaming subscriptions on every venue.
func (o *Orchestrator) UnsubscribeMarketData(ctx context.Context, symbols []string) error {
	for _, v := range o.Venues() {
		if err := o.managers[v].adapter.UnsubscribeMarketData(ctx, symbols); err != nil {
			o.logger.Warn("market data unsubscribe failed", "venue", v, "error", err)
		}
	}
	return nil
}

// ————————————————————————————————————————————————————————————————————————
// Venue administration
// ————————————————————————————————————————————————————————————————————————

// ConnectVenue brings a stopped venue back online.
func (o *Orchestrator) ConnectVenue(ctx context.Context, v types.Venue) error {
	m, err := o.manager(v)
	if err != nil {
		return err
	}
	return m.start(ctx)
}

// DisconnectVenue takes a venue offline without removing it.
func (o *Orchestrator) DisconnectVenue(ctx context.Context, v types.Venue) error {
	m, err := o.manager(v)
	if err != nil {
		return err
	}
	return m.stop(ctx)
}

// VenueStatuses reports health for every enabled venue.
func (o *Orchestrator) VenueStatuses() []types.VenueStatus {
	out := make([]types.VenueStatus, 0, len(o.managers))
	for _, v := range o.Venues() {
		out = append(out, o.managers[v].status())
	}
	return out
}

// VenueStatus reports health for one venue.
func (o *Orchestrator) VenueStatus(v types.Venue) (*types.VenueStatus, error) {
	m, err := o.manager(v)
	if err != nil {
		return nil, err
	}
	st := m.status()
	return &st, nil
}

// Stats is the gateway-wide runtime summary.
type Stats struct {
	UptimeSeconds    float64             `json:"uptime_seconds"`
	Venues           []types.VenueStatus `json:"venues"`
	Bus              bus.Stats           `json:"bus"`
	Portfolio        portfolio.Metrics   `json:"portfolio"`
	PortfolioHealthy bool                `json:"portfolio_healthy"`
	OrdersTracked    int                 `json:"orders_tracked"`
}

// Stats assembles the runtime summary.
func (o *Orchestrator) Stats() Stats {
	o.ordersMu.RLock()
	tracked := len(o.orders)
	o.ordersMu.RUnlock()

	return Stats{
		UptimeSeconds:    time.Since(o.startedAt).Seconds(),
		Venues:           o.VenueStatuses(),
		Bus:              o.bus.Stats(),
		Portfolio:        o.portfolio.Metrics(),
		PortfolioHealthy: o.portfolio.Healthy(),
		OrdersTracked:    tracked,
	}
}

// ————————————————————————————————————————————————————————————————————————
// Order log
// ————————————————————————————————————————————————————————————————————————

func (o *Orchestrator) lookupOrder(clientID string) *types.Order {
	o.ordersMu.RLock()
	defer o.ordersMu.RUnlock()
	ord, ok := o.orders[clientID]
	if !ok {
		return nil
	}
	cp := *ord
	return &cp
}

func (o *Orchestrator) recordOrder(ord *types.Order) {
	cp := *ord
	o.ordersMu.Lock()
	if _, ok := o.orders[cp.ClientID]; !ok {
		o.sequence = append(o.sequence, cp.ClientID)
	}
	o.orders[cp.ClientID] = &cp
	o.ordersMu.Unlock()
}

func (o *Orchestrator) publishOrder(ord *types.Order, errMsg string) {
	ev := events.New(ord.Venue, &events.OrderUpdate{Order: *ord, ErrorMessage: errMsg})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := o.bus.Publish(ctx, ev); err != nil {
		o.logger.Warn("publish order update", "client_order_id", ord.ClientID, "error", err)
	}
}
