// Package lighter implements the Lighter venue adapter. Lighter exposes a
// conventional REST surface under /api/v1 and a stream with
// "<market>@ticker" subscription params; markets are named "BTC-USDC" for
// the unified symbol "BTC-PERP".
package lighter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"perp-gateway/internal/bus"
	"perp-gateway/internal/config"
	"perp-gateway/internal/events"
	"perp-gateway/internal/venue"
	"perp-gateway/pkg/types"
)

// Adapter is the Lighter implementation of venue.Adapter.
type Adapter struct {
	http    *resty.Client
	session *venue.Session
	bus     bus.Bus
	rl      *venue.RateLimiter
	logger  *slog.Logger

	catalogMu sync.RWMutex
	catalog   map[string]types.SymbolInfo

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup

	initMu      sync.Mutex
	initialized bool
	subSeq      int
}

// New builds the adapter. Registered in cmd/gateway under types.VenueLighter.
func New(cfg config.VenueConfig, deps venue.Deps) (venue.Adapter, error) {
	if cfg.RESTURL == "" || cfg.WSURL == "" {
		return nil, types.NewConfigurationError("lighter requires rest_url and ws_url")
	}

	logger := deps.Logger.With("component", "adapter", "venue", types.VenueLighter)
	a := &Adapter{
		http: resty.New().
			SetBaseURL(cfg.RESTURL).
			SetTimeout(10 * time.Second).
			SetRetryCount(3).
			SetRetryWaitTime(500 * time.Millisecond).
			SetRetryMaxWaitTime(5 * time.Second).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				return err != nil || r.StatusCode() >= 500
			}).
			SetHeader("Content-Type", "application/json").
			SetHeader("X-API-KEY", cfg.APIKey),
		bus:     deps.Bus,
		rl:      venue.NewRateLimiter(),
		logger:  logger,
		catalog: make(map[string]types.SymbolInfo),
	}

	a.session = venue.NewSession(types.VenueLighter, venue.SessionConfig{
		URL:               cfg.WSURL,
		HeartbeatInterval: deps.WS.HeartbeatInterval,
		ReconnectBase:     deps.WS.ReconnectBaseDelay,
		ReconnectMax:      deps.WS.ReconnectMaxDelay,
		MaxAttempts:       deps.WS.MaxReconnectAttempts,
	}, a.handleMessage, a.publishConnection, logger)

	return a, nil
}

func (a *Adapter) Venue() types.Venue { return types.VenueLighter }

func (a *Adapter) Initialize(ctx context.Context) error {
	a.initMu.Lock()
	defer a.initMu.Unlock()
	if a.initialized {
		return nil
	}

	if err := a.refreshCatalog(ctx); err != nil {
		return fmt.Errorf("load markets: %w", err)
	}

	a.runCtx, a.runCancel = context.WithCancel(context.Background())
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.session.Run(a.runCtx); err != nil && a.runCtx.Err() == nil {
			a.logger.Error("stream session terminated", "error", err)
		}
	}()

	a.initialized = true
	return nil
}

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
	return nil
}

func (a *Adapter) HealthCheck(ctx context.Context) error {
	return a.get(ctx, "/api/v1/ping", nil, nil)
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
// Wire model
// ————————————————————————————————————————————————————————————————————————

type marketWire struct {
	Market      string          `json:"market"` // "BTC-USDC"
	Base        string          `json:"base"`
	Quote       string          `json:"quote"`
	TickSize    decimal.Decimal `json:"tick_size"`
	MinQuantity decimal.Decimal `json:"min_quantity"`
	MaxLeverage decimal.Decimal `json:"max_leverage"`
}

type orderWire struct {
	OrderID   string          `json:"order_id"`
	ClientID  string          `json:"client_id"`
	Market    string          `json:"market"`
	Side      string          `json:"side"` // "buy"/"sell"
	Type      string          `json:"type"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Filled    decimal.Decimal `json:"filled"`
	AvgPrice  decimal.Decimal `json:"avg_price"`
	Status    string          `json:"status"` // "open","partial","filled","cancelled","rejected"
	CreatedMs int64           `json:"created_at"`
}

type tickerWire struct {
	Market    string          `json:"market"`
	Bid       decimal.Decimal `json:"bid"`
	BidQty    decimal.Decimal `json:"bid_qty"`
	Ask       decimal.Decimal `json:"ask"`
	AskQty    decimal.Decimal `json:"ask_qty"`
	Last      decimal.Decimal `json:"last"`
	Volume    decimal.Decimal `json:"volume"`
	Funding   decimal.Decimal `json:"funding_rate"`
	TimeMs    int64           `json:"timestamp"`
}

type positionWire struct {
	Market     string          `json:"market"`
	Quantity   decimal.Decimal `json:"quantity"` // signed
	EntryPrice decimal.Decimal `json:"entry_price"`
	MarkPrice  decimal.Decimal `json:"mark_price"`
	Unrealized decimal.Decimal `json:"unrealized_pnl"`
	Margin     decimal.Decimal `json:"margin"`
	OpenedMs   int64           `json:"opened_at"`
}

type balanceWire struct {
	Asset     string          `json:"asset"`
	Total     decimal.Decimal `json:"total"`
	Available decimal.Decimal `json:"available"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ————————————————————————————————————————————————————————————————————————
// REST helpers
// ————————————————————————————————————————————————————————————————————————

func (a *Adapter) get(ctx context.Context, path string, query map[string]string, out any) error {
	if err := a.rl.Read.Wait(ctx); err != nil {
		return err
	}
	req := a.http.R().SetContext(ctx)
	if query != nil {
		req.SetQueryParams(query)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Get(path)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	return a.checkStatus(resp, path)
}

func (a *Adapter) checkStatus(resp *resty.Response, path string) error {
	code := resp.StatusCode()
	if code == http.StatusOK || code == http.StatusCreated {
		return nil
	}

	var apiErr apiError
	_ = json.Unmarshal(resp.Body(), &apiErr)
	msg := apiErr.Message
	if msg == "" {
		msg = resp.String()
	}

	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return types.NewAuthenticationError(types.VenueLighter, fmt.Errorf("%s: %s", path, msg))
	case code == http.StatusTooManyRequests:
		return types.NewRateLimitError(types.VenueLighter, path)
	case code == http.StatusNotFound && strings.Contains(path, "/orders/"):
		return types.NewOrderNotFoundError("")
	case strings.EqualFold(apiErr.Code, "INSUFFICIENT_MARGIN"):
		return types.NewInsufficientBalanceError(types.VenueLighter, "USDC")
	}
	return types.NewVenueConnectionError(types.VenueLighter,
		fmt.Errorf("%s: status %d: %s", path, code, msg))
}

// ————————————————————————————————————————————————————————————————————————
// Trading
// ————————————————————————————————————————————————————————————————————————

func (a *Adapter) PlaceOrder(ctx context.Context, order *types.Order) (*types.Order, error) {
	info, err := a.symbolInfo(order.Symbol)
	if err != nil {
		return nil, err
	}
	if order.Quantity.LessThan(info.MinSize) {
		return nil, types.NewOrderValidationError("quantity",
			fmt.Sprintf("quantity below venue minimum %s", info.MinSize))
	}
	if err := a.rl.Order.Wait(ctx); err != nil {
		return nil, err
	}

	body := map[string]any{
		"market":    toMarket(order.Symbol),
		"side":      string(order.Side),
		"type":      string(order.Type),
		"quantity":  order.Quantity,
		"client_id": order.ClientID,
	}
	if order.Price != nil {
		body["price"] = *order.Price
	}
	if order.StopPrice != nil {
		body["stop_price"] = *order.StopPrice
	}
	if order.TimeInForce != "" {
		body["time_in_force"] = string(order.TimeInForce)
	}

	var w orderWire
	resp, err := a.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&w).
		Post("/api/v1/orders")
	if err != nil {
		return nil, fmt.Errorf("post order: %w", err)
	}
	if err := a.checkStatus(resp, "/api/v1/orders"); err != nil {
		return nil, err
	}

	placed := a.fromOrderWire(w)
	// Preserve request fields the venue echoes incompletely.
	placed.Type = order.Type
	placed.TimeInForce = order.TimeInForce
	placed.StopPrice = order.StopPrice
	return &placed, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, symbol, venueID string) error {
	if err := a.rl.Cancel.Wait(ctx); err != nil {
		return err
	}
	resp, err := a.http.R().
		SetContext(ctx).
		Delete("/api/v1/orders/" + venueID)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	return a.checkStatus(resp, "/api/v1/orders/"+venueID)
}

func (a *Adapter) GetOrder(ctx context.Context, symbol, venueID string) (*types.Order, error) {
	var w orderWire
	if err := a.get(ctx, "/api/v1/orders/"+venueID, nil, &w); err != nil {
		return nil, err
	}
	o := a.fromOrderWire(w)
	return &o, nil
}

func (a *Adapter) GetOpenOrders(ctx context.Context, symbol string) ([]types.Order, error) {
	query := map[string]string{"status": "open"}
	if symbol != "" {
		query["market"] = toMarket(symbol)
	}
	var rows []orderWire
	if err := a.get(ctx, "/api/v1/orders", query, &rows); err != nil {
		return nil, err
	}
	out := make([]types.Order, 0, len(rows))
	for _, w := range rows {
		out = append(out, a.fromOrderWire(w))
	}
	return out, nil
}

func (a *Adapter) GetPositions(ctx context.Context) ([]types.Position, error) {
	var rows []positionWire
	if err := a.get(ctx, "/api/v1/positions", nil, &rows); err != nil {
		return nil, err
	}
	var out []types.Position
	for _, p := range rows {
		if p.Quantity.IsZero() {
			continue
		}
		out = append(out, a.fromPositionWire(p))
	}
	return out, nil
}

func (a *Adapter) GetBalances(ctx context.Context) ([]types.Balance, error) {
	var rows []balanceWire
	if err := a.get(ctx, "/api/v1/balances", nil, &rows); err != nil {
		return nil, err
	}
	out := make([]types.Balance, 0, len(rows))
	for _, b := range rows {
		out = append(out, a.fromBalanceWire(b))
	}
	return out, nil
}

// ————————————————————————————————————————————————————————————————————————
// Market data
// ————————————————————————————————————————————————————————————————————————

func (a *Adapter) GetMarketData(ctx context.Context, symbol string) (*types.MarketData, error) {
	if _, err := a.symbolInfo(symbol); err != nil {
		return nil, err
	}
	var t tickerWire
	if err := a.get(ctx, "/api/v1/ticker", map[string]string{"market": toMarket(symbol)}, &t); err != nil {
		return nil, types.NewMarketDataError(types.VenueLighter, symbol, err)
	}
	md := a.fromTicker(symbol, t)
	return &md, nil
}

func (a *Adapter) GetOrderBook(ctx context.Context, symbol string, depth int) (*types.OrderBook, error) {
	if _, err := a.symbolInfo(symbol); err != nil {
		return nil, err
	}
	var w struct {
		Bids   [][2]decimal.Decimal `json:"bids"`
		Asks   [][2]decimal.Decimal `json:"asks"`
		TimeMs int64                `json:"timestamp"`
	}
	query := map[string]string{"market": toMarket(symbol)}
	if depth > 0 {
		query["depth"] = fmt.Sprintf("%d", depth)
	}
	if err := a.get(ctx, "/api/v1/depth", query, &w); err != nil {
		return nil, types.NewMarketDataError(types.VenueLighter, symbol, err)
	}

	book := &types.OrderBook{
		Venue:     types.VenueLighter,
		Symbol:    symbol,
		Timestamp: time.UnixMilli(w.TimeMs).UTC(),
	}
	for _, l := range w.Bids {
		book.Bids = append(book.Bids, types.OrderBookLevel{Price: l[0], Size: l[1]})
	}
	for _, l := range w.Asks {
		book.Asks = append(book.Asks, types.OrderBookLevel{Price: l[0], Size: l[1]})
	}
	return book, nil
}

func (a *Adapter) GetRecentTrades(ctx context.Context, symbol string, limit int) ([]types.Trade, error) {
	if _, err := a.symbolInfo(symbol); err != nil {
		return nil, err
	}
	var rows []struct {
		TradeID  string          `json:"trade_id"`
		Side     string          `json:"side"`
		Price    decimal.Decimal `json:"price"`
		Quantity decimal.Decimal `json:"quantity"`
		TimeMs   int64           `json:"timestamp"`
	}
	query := map[string]string{"market": toMarket(symbol)}
	if limit > 0 {
		query["limit"] = fmt.Sprintf("%d", limit)
	}
	if err := a.get(ctx, "/api/v1/trades", query, &rows); err != nil {
		return nil, types.NewMarketDataError(types.VenueLighter, symbol, err)
	}

	out := make([]types.Trade, 0, len(rows))
	for _, t := range rows {
		out = append(out, types.Trade{
			Venue:     types.VenueLighter,
			Symbol:    symbol,
			TradeID:   t.TradeID,
			Side:      types.Side(t.Side),
			Price:     t.Price,
			Quantity:  t.Quantity,
			Timestamp: time.UnixMilli(t.TimeMs).UTC(),
		})
	}
	return out, nil
}

func (a *Adapter) GetKlines(ctx context.Context, symbol string, interval types.Interval, limit int, start, end time.Time) ([]types.Kline, error) {
	if _, err := a.symbolInfo(symbol); err != nil {
		return nil, err
	}
	var rows []struct {
		OpenMs  int64           `json:"open_time"`
		CloseMs int64           `json:"close_time"`
		Open    decimal.Decimal `json:"open"`
		High    decimal.Decimal `json:"high"`
		Low     decimal.Decimal `json:"low"`
		Close   decimal.Decimal `json:"close"`
		Volume  decimal.Decimal `json:"volume"`
	}
	query := map[string]string{
		"market":   toMarket(symbol),
		"interval": string(interval),
	}
	if limit > 0 {
		query["limit"] = fmt.Sprintf("%d", limit)
	}
	if !start.IsZero() {
		query["start"] = fmt.Sprintf("%d", start.UnixMilli())
	}
	if !end.IsZero() {
		query["end"] = fmt.Sprintf("%d", end.UnixMilli())
	}
	if err := a.get(ctx, "/api/v1/klines", query, &rows); err != nil {
		return nil, types.NewMarketDataError(types.VenueLighter, symbol, err)
	}

	out := make([]types.Kline, 0, len(rows))
	for _, k := range rows {
		out = append(out, types.Kline{
			Venue:     types.VenueLighter,
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  time.UnixMilli(k.OpenMs).UTC(),
			CloseTime: time.UnixMilli(k.CloseMs).UTC(),
			Open:      k.Open,
			High:      k.High,
			Low:       k.Low,
			Close:     k.Close,
			Volume:    k.Volume,
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

type wsCommand struct {
	ID     int      `json:"id"`
	Method string   `json:"method"` // "subscribe" / "unsubscribe"
	Params []string `json:"params"`
}

func (a *Adapter) SubscribeMarketData(ctx context.Context, symbols []string) error {
	for _, sym := range symbols {
		if _, err := a.symbolInfo(sym); err != nil {
			return err
		}
		stream := toMarket(sym) + "@ticker"
		a.initMu.Lock()
		a.subSeq++
		id := a.subSeq
		a.initMu.Unlock()
		msg := wsCommand{ID: id, Method: "subscribe", Params: []string{stream}}
		if err := a.session.Subscribe(stream, msg); err != nil {
			return types.NewWebSocketError(types.VenueLighter, err)
		}
	}
	return nil
}

func (a *Adapter) UnsubscribeMarketData(ctx context.Context, symbols []string) error {
	for _, sym := range symbols {
		stream := toMarket(sym) + "@ticker"
		a.initMu.Lock()
		a.subSeq++
		id := a.subSeq
		a.initMu.Unlock()
		msg := wsCommand{ID: id, Method: "unsubscribe", Params: []string{stream}}
		if err := a.session.Unsubscribe(stream, msg); err != nil {
			return types.NewWebSocketError(types.VenueLighter, err)
		}
	}
	return nil
}

// subscribeStream registers one bare stream name. The venue scopes the
// private streams to the authenticated API key.
func (a *Adapter) subscribeStream(stream string) error {
	a.initMu.Lock()
	a.subSeq++
	id := a.subSeq
	a.initMu.Unlock()
	msg := wsCommand{ID: id, Method: "subscribe", Params: []string{stream}}
	if err := a.session.Subscribe(stream, msg); err != nil {
		return types.NewWebSocketError(types.VenueLighter, err)
	}
	return nil
}

func (a *Adapter) SubscribeOrderUpdates(ctx context.Context) error {
	return a.subscribeStream("orders")
}

func (a *Adapter) SubscribePositionUpdates(ctx context.Context) error {
	return a.subscribeStream("positions")
}

func (a *Adapter) SubscribeBalanceUpdates(ctx context.Context) error {
	return a.subscribeStream("balances")
}

func (a *Adapter) handleMessage(data []byte) {
	var env struct {
		Stream string          `json:"stream"`
		Data   json.RawMessage `json:"data"`
		Result json.RawMessage `json:"result"` // command acks
	}
	if err := json.Unmarshal(data, &env); err != nil {
		a.logger.Debug("ignoring non-json stream message")
		return
	}
	if env.Stream == "" {
		return // command ack
	}

	switch {
	case strings.HasSuffix(env.Stream, "@ticker"):
		var t tickerWire
		if err := json.Unmarshal(env.Data, &t); err != nil {
			a.logger.Error("decode ticker payload", "error", err)
			return
		}
		a.publish(&events.MarketDataUpdate{MarketData: a.fromTicker(fromMarket(t.Market), t)})
	case env.Stream == "orders":
		var w orderWire
		if err := json.Unmarshal(env.Data, &w); err != nil {
			a.logger.Error("decode order payload", "error", err)
			return
		}
		a.publish(&events.OrderUpdate{Order: a.fromOrderWire(w)})
	case env.Stream == "positions":
		var p positionWire
		if err := json.Unmarshal(env.Data, &p); err != nil {
			a.logger.Error("decode position payload", "error", err)
			return
		}
		a.publish(&events.PositionUpdate{Position: a.fromPositionWire(p)})
	case env.Stream == "balances":
		var b balanceWire
		if err := json.Unmarshal(env.Data, &b); err != nil {
			a.logger.Error("decode balance payload", "error", err)
			return
		}
		a.publish(&events.BalanceUpdate{Balance: a.fromBalanceWire(b)})
	default:
		a.logger.Debug("unknown stream", "stream", env.Stream)
	}
}

func (a *Adapter) publish(payload events.Payload) {
	ev := events.New(types.VenueLighter, payload)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.bus.Publish(ctx, ev); err != nil {
		a.logger.Warn("publish event", "type", ev.Type, "error", err)
	}
}

func (a *Adapter) publishConnection(status types.ConnectionStatus, reason string) {
	a.publish(&events.ConnectionUpdate{
		Venue:  types.VenueLighter,
		Status: status,
		Reason: reason,
	})
}

// ————————————————————————————————————————————————————————————————————————
// Catalog + translation
// ————————————————————————————————————————————————————————————————————————

func (a *Adapter) refreshCatalog(ctx context.Context) error {
	var rows []marketWire
	if err := a.get(ctx, "/api/v1/markets", nil, &rows); err != nil {
		return err
	}

	catalog := make(map[string]types.SymbolInfo, len(rows))
	for _, m := range rows {
		sym := fromMarket(m.Market)
		maxLev := m.MaxLeverage
		catalog[sym] = types.SymbolInfo{
			Venue:       types.VenueLighter,
			Symbol:      sym,
			BaseAsset:   m.Base,
			QuoteAsset:  m.Quote,
			TickSize:    m.TickSize,
			MinSize:     m.MinQuantity,
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
			fmt.Sprintf("symbol %s not listed on lighter", symbol))
	}
	return info, nil
}

func (a *Adapter) fromOrderWire(w orderWire) types.Order {
	var status types.OrderStatus
	switch w.Status {
	case "open":
		status = types.OrderStatusOpen
	case "partial":
		status = types.OrderStatusPartiallyFilled
	case "filled":
		status = types.OrderStatusFilled
	case "cancelled":
		status = types.OrderStatusCancelled
	case "rejected":
		status = types.OrderStatusRejected
	default:
		status = types.OrderStatusPending
	}

	o := types.Order{
		Venue:          types.VenueLighter,
		Symbol:         fromMarket(w.Market),
		Side:           types.Side(w.Side),
		Type:           types.OrderType(w.Type),
		Quantity:       w.Quantity,
		ClientID:       w.ClientID,
		VenueID:        w.OrderID,
		Status:         status,
		FilledQuantity: w.Filled,
		CreatedAt:      time.UnixMilli(w.CreatedMs).UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	if !w.Price.IsZero() {
		px := w.Price
		o.Price = &px
	}
	if !w.AvgPrice.IsZero() {
		avg := w.AvgPrice
		o.AvgFillPrice = &avg
	}
	return o
}

// fromPositionWire keeps zero sizes: the stream uses them to signal a
// closed leg. REST pulls filter them out before returning.
func (a *Adapter) fromPositionWire(p positionWire) types.Position {
	out := types.Position{
		Venue:         types.VenueLighter,
		Symbol:        fromMarket(p.Market),
		Size:          p.Quantity,
		EntryPrice:    p.EntryPrice,
		MarkPrice:     p.MarkPrice,
		UnrealizedPnL: p.Unrealized,
		MarginUsed:    p.Margin,
		UpdatedAt:     time.Now().UTC(),
	}
	if p.OpenedMs > 0 {
		opened := time.UnixMilli(p.OpenedMs).UTC()
		out.OpenedAt = &opened
	}
	return out
}

func (a *Adapter) fromBalanceWire(b balanceWire) types.Balance {
	return types.Balance{
		Venue:     types.VenueLighter,
		Asset:     b.Asset,
		Total:     b.Total,
		Available: b.Available,
		Locked:    b.Total.Sub(b.Available),
		UpdatedAt: time.Now().UTC(),
	}
}

func (a *Adapter) fromTicker(symbol string, t tickerWire) types.MarketData {
	md := types.MarketData{
		Venue:     types.VenueLighter,
		Symbol:    symbol,
		Timestamp: time.UnixMilli(t.TimeMs).UTC(),
	}
	if !t.Bid.IsZero() {
		bid, sz := t.Bid, t.BidQty
		md.BidPrice, md.BidSize = &bid, &sz
	}
	if !t.Ask.IsZero() {
		ask, sz := t.Ask, t.AskQty
		md.AskPrice, md.AskSize = &ask, &sz
	}
	if !t.Last.IsZero() {
		last := t.Last
		md.LastPrice = &last
	}
	vol := t.Volume
	md.Volume24h = &vol
	funding := t.Funding
	md.FundingRate = &funding
	return md
}

// toMarket converts "BTC-PERP" to the venue's "BTC-USDC" market name.
func toMarket(symbol string) string {
	return strings.TrimSuffix(symbol, "-PERP") + "-USDC"
}

func fromMarket(market string) string {
	return strings.TrimSuffix(market, "-USDC") + "-PERP"
}
