package hyperliquid

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"perp-gateway/internal/bus"
	"perp-gateway/internal/config"
	"perp-gateway/internal/events"
	"perp-gateway/internal/venue"
	"perp-gateway/pkg/types"
)

const (
	symbolSuffix           = "-PERP"
	catalogRefreshInterval = 10 * time.Minute
)

// Adapter is the Hyperliquid implementation of venue.Adapter.
type Adapter struct {
	client  *client
	session *venue.Session
	bus     bus.Bus
	logger  *slog.Logger

	// Symbol catalog, refreshed periodically while the adapter runs.
	catalogMu sync.RWMutex
	catalog   map[string]types.SymbolInfo // unified symbol → constraints

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup

	initMu      sync.Mutex
	initialized bool
}

// New builds the adapter. Registered in cmd/gateway under types.VenueHyperliquid.
func New(cfg config.VenueConfig, deps venue.Deps) (venue.Adapter, error) {
	if cfg.RESTURL == "" || cfg.WSURL == "" {
		return nil, types.NewConfigurationError("hyperliquid requires rest_url and ws_url")
	}

	logger := deps.Logger.With("component", "adapter", "venue", types.VenueHyperliquid)
	a := &Adapter{
		client:  newClient(cfg.RESTURL, newAuth(cfg.APIKey, cfg.APISecret), logger),
		bus:     deps.Bus,
		logger:  logger,
		catalog: make(map[string]types.SymbolInfo),
	}

	a.session = venue.NewSession(types.VenueHyperliquid, venue.SessionConfig{
		URL:               cfg.WSURL,
		HeartbeatInterval: deps.WS.HeartbeatInterval,
		ReconnectBase:     deps.WS.ReconnectBaseDelay,
		ReconnectMax:      deps.WS.ReconnectMaxDelay,
		MaxAttempts:       deps.WS.MaxReconnectAttempts,
	}, a.handleMessage, a.publishConnection, logger)

	return a, nil
}

func (a *Adapter) Venue() types.Venue { return types.VenueHyperliquid }

// Initialize loads the symbol catalog and starts the stream session.
func (a *Adapter) Initialize(ctx context.Context) error {
	a.initMu.Lock()
	defer a.initMu.Unlock()
	if a.initialized {
		return nil
	}

	if err := a.refreshCatalog(ctx); err != nil {
		return fmt.Errorf("load symbol catalog: %w", err)
	}

	a.runCtx, a.runCancel = context.WithCancel(context.Background())
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := a.session.Run(a.runCtx); err != nil && a.runCtx.Err() == nil {
			a.logger.Error("stream session terminated", "error", err)
		}
	}()
	go a.catalogLoop()

	a.initialized = true
	a.logger.Info("adapter initialized", "symbols", a.symbolCount())
	return nil
}

// Shutdown stops the stream and background loops.
func (a *Adapter) Shutdown(ctx context.Context) error {
	a.initMu.Lock()
	defer a.initMu.Unlock()
	if !a.initialized {
		return nil
	}

	a.runCancel()
	_ = a.session.Close()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	a.initialized = false
	a.logger.Info("adapter shut down")
	return nil
}

// HealthCheck probes the REST API with a catalog fetch.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	if _, err := a.client.meta(ctx); err != nil {
		return err
	}
	return nil
}

func (a *Adapter) Status() types.ConnectionStatus {
	a.initMu.Lock()
	initialized := a.initialized
	a.initMu.Unlock()
	if !initialized {
		return types.StatusDisconnected
	}
	return a.session.Status()
}

func (a *Adapter) StreamHealthy() bool { return a.session.Healthy() }

// ————————————————————————————————————————————————————————————————————————
// Trading
// ————————————————————————————————————————————————————————————————————————

// PlaceOrder validates against the symbol catalog, translates to the wire
// format, and maps the venue's response back onto the order.
func (a *Adapter) PlaceOrder(ctx context.Context, order *types.Order) (*types.Order, error) {
	info, err := a.symbolInfo(order.Symbol)
	if err != nil {
		return nil, err
	}
	if order.Quantity.LessThan(info.MinSize) {
		return nil, types.NewOrderValidationError("quantity",
			fmt.Sprintf("quantity below venue minimum %s", info.MinSize))
	}
	if order.Price != nil && !order.Price.Mod(info.TickSize).IsZero() {
		return nil, types.NewOrderValidationError("price",
			fmt.Sprintf("price not a multiple of tick size %s", info.TickSize))
	}

	w := wireOrder{
		Coin:       toCoin(order.Symbol),
		IsBuy:      order.Side == types.SideBuy,
		Px:         order.Price,
		TriggerPx:  order.StopPrice,
		Sz:         order.Quantity,
		ReduceOnly: order.ReduceOnly,
		OrderType:  wireOrderType(order.Type),
		Tif:        wireTif(order.TimeInForce),
		Cloid:      order.ClientID,
	}

	status, err := a.client.placeOrder(ctx, w)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	placed := *order
	placed.UpdatedAt = now
	switch {
	case status.Filled != nil:
		placed.VenueID = status.Filled.Oid.String()
		placed.Status = types.OrderStatusFilled
		placed.FilledQuantity = status.Filled.TotalSz
		avg := status.Filled.AvgPx
		placed.AvgFillPrice = &avg
		placed.FilledAt = &now
	case status.Resting != nil:
		placed.VenueID = status.Resting.Oid.String()
		placed.Status = types.OrderStatusOpen
	default:
		placed.Status = types.OrderStatusRejected
	}

	return &placed, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, symbol, venueID string) error {
	if _, err := a.symbolInfo(symbol); err != nil {
		return err
	}
	return a.client.cancelOrder(ctx, toCoin(symbol), venueID)
}

func (a *Adapter) GetOrder(ctx context.Context, symbol, venueID string) (*types.Order, error) {
	w, err := a.client.orderStatus(ctx, venueID)
	if err != nil {
		return nil, err
	}
	order := a.fromWireOrder(*w)
	return &order, nil
}

func (a *Adapter) GetOpenOrders(ctx context.Context, symbol string) ([]types.Order, error) {
	rows, err := a.client.openOrders(ctx)
	if err != nil {
		return nil, err
	}
	var out []types.Order
	for _, w := range rows {
		o := a.fromWireOrder(w)
		if symbol != "" && o.Symbol != symbol {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// ————————————————————————————————————————————————————————————————————————
// Account
// ————————————————————————————————————————————————————————————————————————

func (a *Adapter) GetPositions(ctx context.Context) ([]types.Position, error) {
	state, err := a.client.accountState(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var out []types.Position
	for _, ap := range state.AssetPositions {
		if ap.Szi.IsZero() {
			continue
		}
		out = append(out, types.Position{
			Venue:            types.VenueHyperliquid,
			Symbol:           fromCoin(ap.Coin),
			Size:             ap.Szi,
			EntryPrice:       ap.EntryPx,
			MarkPrice:        ap.MarkPx,
			LiquidationPrice: ap.LiqPx,
			UnrealizedPnL:    ap.UnrealizedPnl,
			MarginUsed:       ap.MarginUsed,
			Leverage:         ap.LeverageValue,
			UpdatedAt:        now,
		})
	}
	return out, nil
}

func (a *Adapter) GetBalances(ctx context.Context) ([]types.Balance, error) {
	state, err := a.client.accountState(ctx)
	if err != nil {
		return nil, err
	}

	// Hyperliquid is USDC-margined; the clearinghouse state is the one balance.
	locked := state.AccountValue.Sub(state.Withdrawable)
	if locked.IsNegative() {
		locked = decimal.Zero
	}
	return []types.Balance{{
		Venue:     types.VenueHyperliquid,
		Asset:     "USDC",
		Total:     state.AccountValue,
		Available: state.Withdrawable,
		Locked:    locked,
		UpdatedAt: time.Now().UTC(),
	}}, nil
}

// ————————————————————————————————————————————————————————————————————————
// Market data
// ————————————————————————————————————————————————————————————————————————

func (a *Adapter) GetMarketData(ctx context.Context, symbol string) (*types.MarketData, error) {
	if _, err := a.symbolInfo(symbol); err != nil {
		return nil, err
	}
	coin := toCoin(symbol)

	book, err := a.client.l2Book(ctx, coin)
	if err != nil {
		return nil, types.NewMarketDataError(types.VenueHyperliquid, symbol, err)
	}
	tick, err := a.client.ticker(ctx, coin)
	if err != nil {
		return nil, types.NewMarketDataError(types.VenueHyperliquid, symbol, err)
	}

	md := marketDataFromBook(symbol, book)
	md.LastPrice = tick.MidPx
	vol := tick.DayVlm
	md.Volume24h = &vol
	funding := tick.Funding
	md.FundingRate = &funding
	oi := tick.OpenInterest
	md.OpenInterest = &oi
	if !tick.PrevDayPx.IsZero() {
		change := tick.MarkPx.Sub(tick.PrevDayPx).Div(tick.PrevDayPx).Mul(decimal.NewFromInt(100))
		md.Change24h = &change
	}
	return md, nil
}

func (a *Adapter) GetOrderBook(ctx context.Context, symbol string, depth int) (*types.OrderBook, error) {
	if _, err := a.symbolInfo(symbol); err != nil {
		return nil, err
	}
	book, err := a.client.l2Book(ctx, toCoin(symbol))
	if err != nil {
		return nil, types.NewMarketDataError(types.VenueHyperliquid, symbol, err)
	}

	out := &types.OrderBook{
		Venue:     types.VenueHyperliquid,
		Symbol:    symbol,
		Bids:      levelsToBook(book.Levels[0], depth),
		Asks:      levelsToBook(book.Levels[1], depth),
		Timestamp: time.UnixMilli(book.TimeMs).UTC(),
	}
	return out, nil
}

func (a *Adapter) GetRecentTrades(ctx context.Context, symbol string, limit int) ([]types.Trade, error) {
	if _, err := a.symbolInfo(symbol); err != nil {
		return nil, err
	}
	rows, err := a.client.recentTrades(ctx, toCoin(symbol))
	if err != nil {
		return nil, types.NewMarketDataError(types.VenueHyperliquid, symbol, err)
	}

	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]types.Trade, 0, len(rows))
	for _, t := range rows {
		side := types.SideSell
		if t.Side == "B" {
			side = types.SideBuy
		}
		out = append(out, types.Trade{
			Venue:     types.VenueHyperliquid,
			Symbol:    symbol,
			TradeID:   fmt.Sprintf("%d", t.TID),
			Side:      side,
			Price:     t.Px,
			Quantity:  t.Sz,
			Timestamp: time.UnixMilli(t.TimeMs).UTC(),
		})
	}
	return out, nil
}

func (a *Adapter) GetKlines(ctx context.Context, symbol string, interval types.Interval, limit int, start, end time.Time) ([]types.Kline, error) {
	if _, err := a.symbolInfo(symbol); err != nil {
		return nil, err
	}
	rows, err := a.client.candles(ctx, toCoin(symbol), string(interval), start, end)
	if err != nil {
		return nil, types.NewMarketDataError(types.VenueHyperliquid, symbol, err)
	}

	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	out := make([]types.Kline, 0, len(rows))
	for _, c := range rows {
		out = append(out, types.Kline{
			Venue:     types.VenueHyperliquid,
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  time.UnixMilli(c.OpenMs).UTC(),
			CloseTime: time.UnixMilli(c.CloseMs).UTC(),
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
		})
	}
	return out, nil
}

func (a *Adapter) GetSymbols(ctx context.Context) ([]string, error) {
	a.catalogMu.RLock()
	defer a.catalogMu.RUnlock()
	out := make([]string, 0, len(a.catalog))
	for sym := range a.catalog {
		out = append(out, sym)
	}
	return out, nil
}

func (a *Adapter) GetSymbolInfo(ctx context.Context, symbol string) (*types.SymbolInfo, error) {
	info, err := a.symbolInfo(symbol)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// ————————————————————————————————————————————————————————————————————————
// Streaming
// ————————————————————————————————————————————————————————————————————————

// SubscribeMarketData subscribes the stream session to each symbol's book.
func (a *Adapter) SubscribeMarketData(ctx context.Context, symbols []string) error {
	for _, sym := range symbols {
		if _, err := a.symbolInfo(sym); err != nil {
			return err
		}
		coin := toCoin(sym)
		msg := wsSubscribe{Method: "subscribe", Subscription: wsSubscription{Type: "l2Book", Coin: coin}}
		if err := a.session.Subscribe(coin, msg); err != nil {
			return types.NewWebSocketError(types.VenueHyperliquid, err)
		}
	}
	return nil
}

func (a *Adapter) UnsubscribeMarketData(ctx context.Context, symbols []string) error {
	for _, sym := range symbols {
		coin := toCoin(sym)
		msg := wsSubscribe{Method: "unsubscribe", Subscription: wsSubscription{Type: "l2Book", Coin: coin}}
		if err := a.session.Unsubscribe(coin, msg); err != nil {
			return types.NewWebSocketError(types.VenueHyperliquid, err)
		}
	}
	return nil
}

// subscribeUser registers one user-scoped stream subscription, keyed by
// stream type so the session replays it after reconnects.
func (a *Adapter) subscribeUser(streamType string) error {
	msg := wsSubscribe{Method: "subscribe", Subscription: wsSubscription{
		Type: streamType,
		User: a.client.auth.apiKey,
	}}
	if err := a.session.Subscribe(streamType, msg); err != nil {
		return types.NewWebSocketError(types.VenueHyperliquid, err)
	}
	return nil
}

// SubscribeOrderUpdates opens the private order stream plus the fill
// stream that accompanies it.
func (a *Adapter) SubscribeOrderUpdates(ctx context.Context) error {
	if err := a.subscribeUser("orderUpdates"); err != nil {
		return err
	}
	return a.subscribeUser("userFills")
}

// SubscribePositionUpdates and SubscribeBalanceUpdates share webData2:
// the account snapshot carries both. The session keys subscriptions by
// stream type, so the second call reuses the first one's registration.
func (a *Adapter) SubscribePositionUpdates(ctx context.Context) error {
	return a.subscribeUser("webData2")
}

func (a *Adapter) SubscribeBalanceUpdates(ctx context.Context) error {
	return a.subscribeUser("webData2")
}

// handleMessage routes one raw stream message.
func (a *Adapter) handleMessage(data []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		a.logger.Debug("ignoring non-json stream message")
		return
	}

	switch env.Channel {
	case "l2Book":
		var book l2BookResponse
		if err := json.Unmarshal(env.Data, &book); err != nil {
			a.logger.Error("decode l2Book payload", "error", err)
			return
		}
		md := marketDataFromBook(fromCoin(book.Coin), &book)
		a.publish(&events.MarketDataUpdate{MarketData: *md})
	case "orderUpdates":
		var rows []wsOrderUpdate
		if err := json.Unmarshal(env.Data, &rows); err != nil {
			a.logger.Error("decode orderUpdates payload", "error", err)
			return
		}
		for _, r := range rows {
			r.Order.Status = r.Status
			a.publish(&events.OrderUpdate{Order: a.fromWireOrder(r.Order)})
		}
	case "userFills":
		var p wsUserFills
		if err := json.Unmarshal(env.Data, &p); err != nil {
			a.logger.Error("decode userFills payload", "error", err)
			return
		}
		for _, f := range p.Fills {
			side := types.SideSell
			if f.Side == "B" {
				side = types.SideBuy
			}
			a.publish(&events.TradeUpdate{Trade: types.Trade{
				Venue:     types.VenueHyperliquid,
				Symbol:    fromCoin(f.Coin),
				TradeID:   fmt.Sprintf("%d", f.TID),
				Side:      side,
				Price:     f.Px,
				Quantity:  f.Sz,
				Timestamp: time.UnixMilli(f.TimeMs).UTC(),
			}})
		}
	case "webData2":
		var p wsWebData2
		if err := json.Unmarshal(env.Data, &p); err != nil {
			a.logger.Error("decode webData2 payload", "error", err)
			return
		}
		a.publishAccountState(p.Clearinghouse)
	case "subscriptionResponse", "pong":
		// acknowledgements, nothing to do
	default:
		a.logger.Debug("unknown stream channel", "channel", env.Channel)
	}
}

// publishAccountState fans an account snapshot out as per-position and
// balance events. Zero-size rows go out too, so consumers drop closed legs.
func (a *Adapter) publishAccountState(state clearinghouseState) {
	now := time.Now().UTC()
	for _, ap := range state.AssetPositions {
		a.publish(&events.PositionUpdate{Position: types.Position{
			Venue:            types.VenueHyperliquid,
			Symbol:           fromCoin(ap.Coin),
			Size:             ap.Szi,
			EntryPrice:       ap.EntryPx,
			MarkPrice:        ap.MarkPx,
			LiquidationPrice: ap.LiqPx,
			UnrealizedPnL:    ap.UnrealizedPnl,
			MarginUsed:       ap.MarginUsed,
			Leverage:         ap.LeverageValue,
			UpdatedAt:        now,
		}})
	}

	locked := state.AccountValue.Sub(state.Withdrawable)
	if locked.IsNegative() {
		locked = decimal.Zero
	}
	a.publish(&events.BalanceUpdate{Balance: types.Balance{
		Venue:     types.VenueHyperliquid,
		Asset:     "USDC",
		Total:     state.AccountValue,
		Available: state.Withdrawable,
		Locked:    locked,
		UpdatedAt: now,
	}})
}

func (a *Adapter) publish(payload events.Payload) {
	ev := events.New(types.VenueHyperliquid, payload)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.bus.Publish(ctx, ev); err != nil {
		a.logger.Warn("publish event", "type", ev.Type, "error", err)
	}
}

// publishConnection emits a connection_update whenever the session changes
// state.
func (a *Adapter) publishConnection(status types.ConnectionStatus, reason string) {
	a.publish(&events.ConnectionUpdate{
		Venue:  types.VenueHyperliquid,
		Status: status,
		Reason: reason,
	})
}

// ————————————————————————————————————————————————————————————————————————
// Catalog + translation
// ————————————————————————————————————————————————————————————————————————

func (a *Adapter) catalogLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(catalogRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.runCtx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(a.runCtx, 15*time.Second)
			if err := a.refreshCatalog(ctx); err != nil {
				a.logger.Warn("catalog refresh failed", "error", err)
			}
			cancel()
		}
	}
}

func (a *Adapter) refreshCatalog(ctx context.Context) error {
	meta, err := a.client.meta(ctx)
	if err != nil {
		return err
	}

	catalog := make(map[string]types.SymbolInfo, len(meta.Universe))
	for _, m := range meta.Universe {
		sym := fromCoin(m.Name)
		tick := decimal.New(1, int32(-m.PxDecimals))
		minSize, err := decimal.NewFromString(m.MinSize)
		if err != nil || minSize.IsZero() {
			minSize = decimal.New(1, int32(-m.SzDecimals))
		}
		maxLev := decimal.NewFromInt(int64(m.MaxLeverage))
		catalog[sym] = types.SymbolInfo{
			Venue:       types.VenueHyperliquid,
			Symbol:      sym,
			BaseAsset:   m.Name,
			QuoteAsset:  "USDC",
			TickSize:    tick,
			MinSize:     minSize,
			MaxLeverage: &maxLev,
		}
	}

	a.catalogMu.Lock()
	a.catalog = catalog
	a.catalogMu.Unlock()
	return nil
}

func (a *Adapter) symbolInfo(symbol string) (types.SymbolInfo, error) {
	a.catalogMu.RLock()
	info, ok := a.catalog[symbol]
	a.catalogMu.RUnlock()
	if !ok {
		return types.SymbolInfo{}, types.NewOrderValidationError("symbol",
			fmt.Sprintf("symbol %s not listed on hyperliquid", symbol))
	}
	return info, nil
}

func (a *Adapter) symbolCount() int {
	a.catalogMu.RLock()
	defer a.catalogMu.RUnlock()
	return len(a.catalog)
}

func (a *Adapter) fromWireOrder(w orderStateWire) types.Order {
	side := types.SideSell
	if w.Side == "B" {
		side = types.SideBuy
	}
	var status types.OrderStatus
	switch w.Status {
	case "open":
		if w.Sz.LessThan(w.OrigSz) {
			status = types.OrderStatusPartiallyFilled
		} else {
			status = types.OrderStatusOpen
		}
	case "filled":
		status = types.OrderStatusFilled
	case "canceled":
		status = types.OrderStatusCancelled
	case "rejected":
		status = types.OrderStatusRejected
	default:
		status = types.OrderStatusPending
	}

	px := w.LimitPx
	return types.Order{
		Venue:          types.VenueHyperliquid,
		Symbol:         fromCoin(w.Coin),
		Side:           side,
		Type:           types.OrderTypeLimit,
		Quantity:       w.OrigSz,
		Price:          &px,
		ClientID:       w.Cloid,
		VenueID:        w.Oid.String(),
		Status:         status,
		FilledQuantity: w.OrigSz.Sub(w.Sz),
		CreatedAt:      time.UnixMilli(w.TimestampMs).UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
}

// marketDataFromBook derives the top-of-book snapshot from an l2 book.
func marketDataFromBook(symbol string, book *l2BookResponse) *types.MarketData {
	md := &types.MarketData{
		Venue:     types.VenueHyperliquid,
		Symbol:    symbol,
		Timestamp: time.UnixMilli(book.TimeMs).UTC(),
	}
	if len(book.Levels[0]) > 0 {
		bid := book.Levels[0][0]
		md.BidPrice = &bid.Px
		md.BidSize = &bid.Sz
	}
	if len(book.Levels[1]) > 0 {
		ask := book.Levels[1][0]
		md.AskPrice = &ask.Px
		md.AskSize = &ask.Sz
	}
	return md
}

func levelsToBook(levels []bookLevel, depth int) []types.OrderBookLevel {
	if depth > 0 && len(levels) > depth {
		levels = levels[:depth]
	}
	out := make([]types.OrderBookLevel, 0, len(levels))
	for _, l := range levels {
		out = append(out, types.OrderBookLevel{Price: l.Px, Size: l.Sz})
	}
	return out
}

func wireOrderType(t types.OrderType) string {
	switch t {
	case types.OrderTypeMarket:
		return "market"
	case types.OrderTypeStopMarket:
		return "stopMarket"
	case types.OrderTypeStopLimit:
		return "stopLimit"
	}
	return "limit"
}

func wireTif(t types.TimeInForce) string {
	switch t {
	case types.TIFImmediateOrCancel:
		return "Ioc"
	case types.TIFFillOrKill:
		return "Fok"
	case types.TIFGoodTillCancel:
		return "Gtc"
	}
	return ""
}

func toCoin(symbol string) string {
	return strings.TrimSuffix(symbol, symbolSuffix)
}

func fromCoin(coin string) string {
	return coin + symbolSuffix
}
