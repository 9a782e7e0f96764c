// Package tradexyz implements the trade.xyz venue adapter. The venue names
// instruments without separators ("BTCUSD") and uses op/args stream
// subscriptions ({"op":"subscribe","args":["ticker.BTCUSD"]}).
package tradexyz

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

// Adapter is the trade.xyz implementation of venue.Adapter.
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
}

// New builds the adapter. Registered in cmd/gateway under types.VenueTradeXYZ.
func New(cfg config.VenueConfig, deps venue.Deps) (venue.Adapter, error) {
	if cfg.RESTURL == "" || cfg.WSURL == "" {
		return nil, types.NewConfigurationError("tradexyz requires rest_url and ws_url")
	}

	logger := deps.Logger.With("component", "adapter", "venue", types.VenueTradeXYZ)
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
			SetHeader("Authorization", "Bearer "+cfg.APIKey),
		bus:     deps.Bus,
		rl:      venue.NewRateLimiter(),
		logger:  logger,
		catalog: make(map[string]types.SymbolInfo),
	}

	a.session = venue.NewSession(types.VenueTradeXYZ, venue.SessionConfig{
		URL:               cfg.WSURL,
		HeartbeatInterval: deps.WS.HeartbeatInterval,
		ReconnectBase:     deps.WS.ReconnectBaseDelay,
		ReconnectMax:      deps.WS.ReconnectMaxDelay,
		MaxAttempts:       deps.WS.MaxReconnectAttempts,
	}, a.handleMessage, a.publishConnection, logger)

	return a, nil
}

func (a *Adapter) Venue() types.Venue { return types.VenueTradeXYZ }

func (a *Adapter) Initialize(ctx context.Context) error {
	a.initMu.Lock()
	defer a.initMu.Unlock()
	if a.initialized {
		return nil
	}
	if err := a.refreshCatalog(ctx); err != nil {
		return fmt.Errorf("load instruments: %w", err)
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
	return a.request(ctx, http.MethodGet, "/v1/time", nil, nil)
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

// envelope wraps every REST response: {"ok":bool,"error":...,"data":...}.
type envelope struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data"`
}

type instrumentWire struct {
	Symbol      string          `json:"symbol"` // "BTCUSD"
	Base        string          `json:"base"`
	TickSize    decimal.Decimal `json:"tickSize"`
	MinOrder    decimal.Decimal `json:"minOrder"`
	MaxLeverage decimal.Decimal `json:"maxLeverage"`
}

type orderWire struct {
	ID        string          `json:"id"`
	ClientID  string          `json:"clientId"`
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"` // "buy"/"sell"
	Kind      string          `json:"kind"` // "limit","market","stopMarket","stopLimit"
	Price     decimal.Decimal `json:"price"`
	Qty       decimal.Decimal `json:"qty"`
	FilledQty decimal.Decimal `json:"filledQty"`
	AvgPrice  decimal.Decimal `json:"avgPrice"`
	State     string          `json:"state"` // "live","partial","done","canceled","rejected"
	CreatedMs int64           `json:"createdAt"`
}

type tickerWire struct {
	Symbol string          `json:"symbol"`
	Bid    decimal.Decimal `json:"bid"`
	BidSz  decimal.Decimal `json:"bidSz"`
	Ask    decimal.Decimal `json:"ask"`
	AskSz  decimal.Decimal `json:"askSz"`
	Last   decimal.Decimal `json:"last"`
	Vol    decimal.Decimal `json:"vol24h"`
	TimeMs int64           `json:"ts"`
}

type positionWire struct {
	Symbol     string          `json:"symbol"`
	Qty        decimal.Decimal `json:"qty"` // signed
	EntryPrice decimal.Decimal `json:"entryPrice"`
	MarkPrice  decimal.Decimal `json:"markPrice"`
	Unrealized decimal.Decimal `json:"unrealizedPnl"`
	Margin     decimal.Decimal `json:"margin"`
}

type balanceWire struct {
	Asset     string          `json:"asset"`
	Total     decimal.Decimal `json:"total"`
	Available decimal.Decimal `json:"available"`
}

// request performs one call and decodes the data member into out.
func (a *Adapter) request(ctx context.Context, method, path string, body, out any) error {
	bucket := a.rl.Read
	switch {
	case method == http.MethodPost:
		bucket = a.rl.Order
	case method == http.MethodDelete:
		bucket = a.rl.Cancel
	}
	if err := bucket.Wait(ctx); err != nil {
		return err
	}

	req := a.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	var env envelope
	req.SetResult(&env)

	var resp *resty.Response
	var err error
	switch method {
	case http.MethodPost:
		resp, err = req.Post(path)
	case http.MethodDelete:
		resp, err = req.Delete(path)
	default:
		resp, err = req.Get(path)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return types.NewAuthenticationError(types.VenueTradeXYZ,
			fmt.Errorf("%s: %s", path, resp.String()))
	case http.StatusTooManyRequests:
		return types.NewRateLimitError(types.VenueTradeXYZ, path)
	default:
		return types.NewVenueConnectionError(types.VenueTradeXYZ,
			fmt.Errorf("%s: status %d: %s", path, resp.StatusCode(), resp.String()))
	}

	if !env.OK {
		return a.venueError(env.Error)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}

func (a *Adapter) venueError(msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "insufficient"):
		return types.NewInsufficientBalanceError(types.VenueTradeXYZ, "USD")
	case strings.Contains(lower, "order not found"):
		return types.NewOrderNotFoundError("")
	}
	return types.NewVenueConnectionError(types.VenueTradeXYZ, fmt.Errorf("venue rejected: %s", msg))
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

	body := map[string]any{
		"symbol":   toSymbol(order.Symbol),
		"side":     string(order.Side),
		"kind":     wireKind(order.Type),
		"qty":      order.Quantity,
		"clientId": order.ClientID,
	}
	if order.Price != nil {
		body["price"] = *order.Price
	}
	if order.StopPrice != nil {
		body["triggerPrice"] = *order.StopPrice
	}

	var w orderWire
	if err := a.request(ctx, http.MethodPost, "/v1/orders", body, &w); err != nil {
		return nil, err
	}

	placed := a.fromOrderWire(w)
	placed.Type = order.Type
	placed.TimeInForce = order.TimeInForce
	placed.StopPrice = order.StopPrice
	return &placed, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, symbol, venueID string) error {
	return a.request(ctx, http.MethodDelete, "/v1/orders/"+venueID, nil, nil)
}

func (a *Adapter) GetOrder(ctx context.Context, symbol, venueID string) (*types.Order, error) {
	var w orderWire
	if err := a.request(ctx, http.MethodGet, "/v1/orders/"+venueID, nil, &w); err != nil {
		return nil, err
	}
	o := a.fromOrderWire(w)
	return &o, nil
}

func (a *Adapter) GetOpenOrders(ctx context.Context, symbol string) ([]types.Order, error) {
	path := "/v1/orders?state=live"
	if symbol != "" {
		path += "&symbol=" + toSymbol(symbol)
	}
	var rows []orderWire
	if err := a.request(ctx, http.MethodGet, path, nil, &rows); err != nil {
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
	if err := a.request(ctx, http.MethodGet, "/v1/positions", nil, &rows); err != nil {
		return nil, err
	}
	var out []types.Position
	for _, p := range rows {
		if p.Qty.IsZero() {
			continue
		}
		out = append(out, a.fromPositionWire(p))
	}
	return out, nil
}

func (a *Adapter) GetBalances(ctx context.Context) ([]types.Balance, error) {
	var rows []balanceWire
	if err := a.request(ctx, http.MethodGet, "/v1/account/balances", nil, &rows); err != nil {
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
	if err := a.request(ctx, http.MethodGet, "/v1/ticker/"+toSymbol(symbol), nil, &t); err != nil {
		return nil, types.NewMarketDataError(types.VenueTradeXYZ, symbol, err)
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
		TimeMs int64                `json:"ts"`
	}
	path := fmt.Sprintf("/v1/orderbook/%s?depth=%d", toSymbol(symbol), depth)
	if err := a.request(ctx, http.MethodGet, path, nil, &w); err != nil {
		return nil, types.NewMarketDataError(types.VenueTradeXYZ, symbol, err)
	}

	book := &types.OrderBook{
		Venue:     types.VenueTradeXYZ,
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
		ID     string          `json:"id"`
		Side   string          `json:"side"`
		Price  decimal.Decimal `json:"price"`
		Qty    decimal.Decimal `json:"qty"`
		TimeMs int64           `json:"ts"`
	}
	path := fmt.Sprintf("/v1/trades/%s?limit=%d", toSymbol(symbol), limit)
	if err := a.request(ctx, http.MethodGet, path, nil, &rows); err != nil {
		return nil, types.NewMarketDataError(types.VenueTradeXYZ, symbol, err)
	}

	out := make([]types.Trade, 0, len(rows))
	for _, t := range rows {
		out = append(out, types.Trade{
			Venue:     types.VenueTradeXYZ,
			Symbol:    symbol,
			TradeID:   t.ID,
			Side:      types.Side(t.Side),
			Price:     t.Price,
			Quantity:  t.Qty,
			Timestamp: time.UnixMilli(t.TimeMs).UTC(),
		})
	}
	return out, nil
}

func (a *Adapter) GetKlines(ctx context.Context, symbol string, interval types.Interval, limit int, start, end time.Time) ([]types.Kline, error) {
	if _, err := a.symbolInfo(symbol); err != nil {
		return nil, err
	}
	var rows [][6]decimal.Decimal // [openTimeMs, open, high, low, close, volume]
	path := fmt.Sprintf("/v1/klines/%s?interval=%s&limit=%d", toSymbol(symbol), interval, limit)
	if !start.IsZero() {
		path += fmt.Sprintf("&start=%d", start.UnixMilli())
	}
	if !end.IsZero() {
		path += fmt.Sprintf("&end=%d", end.UnixMilli())
	}
	if err := a.request(ctx, http.MethodGet, path, nil, &rows); err != nil {
		return nil, types.NewMarketDataError(types.VenueTradeXYZ, symbol, err)
	}

	step := intervalDuration(interval)
	out := make([]types.Kline, 0, len(rows))
	for _, k := range rows {
		open := time.UnixMilli(k[0].IntPart()).UTC()
		out = append(out, types.Kline{
			Venue:     types.VenueTradeXYZ,
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  open,
			CloseTime: open.Add(step),
			Open:      k[1],
			High:      k[2],
			Low:       k[3],
			Close:     k[4],
			Volume:    k[5],
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
	Op   string   `json:"op"` // "subscribe" / "unsubscribe"
	Args []string `json:"args"`
}

func (a *Adapter) SubscribeMarketData(ctx context.Context, symbols []string) error {
	for _, sym := range symbols {
		if _, err := a.symbolInfo(sym); err != nil {
			return err
		}
		topic := "ticker." + toSymbol(sym)
		msg := wsCommand{Op: "subscribe", Args: []string{topic}}
		if err := a.session.Subscribe(topic, msg); err != nil {
			return types.NewWebSocketError(types.VenueTradeXYZ, err)
		}
	}
	return nil
}

func (a *Adapter) UnsubscribeMarketData(ctx context.Context, symbols []string) error {
	for _, sym := range symbols {
		topic := "ticker." + toSymbol(sym)
		msg := wsCommand{Op: "unsubscribe", Args: []string{topic}}
		if err := a.session.Unsubscribe(topic, msg); err != nil {
			return types.NewWebSocketError(types.VenueTradeXYZ, err)
		}
	}
	return nil
}

// subscribePrivate registers one account-scoped topic; the venue binds it
// to the bearer token's account.
func (a *Adapter) subscribePrivate(topic string) error {
	msg := wsCommand{Op: "subscribe", Args: []string{topic}}
	if err := a.session.Subscribe(topic, msg); err != nil {
		return types.NewWebSocketError(types.VenueTradeXYZ, err)
	}
	return nil
}

func (a *Adapter) SubscribeOrderUpdates(ctx context.Context) error {
	return a.subscribePrivate("order")
}

func (a *Adapter) SubscribePositionUpdates(ctx context.Context) error {
	return a.subscribePrivate("position")
}

func (a *Adapter) SubscribeBalanceUpdates(ctx context.Context) error {
	return a.subscribePrivate("wallet")
}

func (a *Adapter) handleMessage(data []byte) {
	var env struct {
		Topic string          `json:"topic"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		a.logger.Debug("ignoring non-json stream message")
		return
	}

	switch {
	case strings.HasPrefix(env.Topic, "ticker."):
		var t tickerWire
		if err := json.Unmarshal(env.Data, &t); err != nil {
			a.logger.Error("decode ticker payload", "error", err)
			return
		}
		a.publish(&events.MarketDataUpdate{MarketData: a.fromTicker(fromSymbol(t.Symbol), t)})
	case env.Topic == "order":
		var w orderWire
		if err := json.Unmarshal(env.Data, &w); err != nil {
			a.logger.Error("decode order payload", "error", err)
			return
		}
		a.publish(&events.OrderUpdate{Order: a.fromOrderWire(w)})
	case env.Topic == "position":
		var p positionWire
		if err := json.Unmarshal(env.Data, &p); err != nil {
			a.logger.Error("decode position payload", "error", err)
			return
		}
		a.publish(&events.PositionUpdate{Position: a.fromPositionWire(p)})
	case env.Topic == "wallet":
		var b balanceWire
		if err := json.Unmarshal(env.Data, &b); err != nil {
			a.logger.Error("decode wallet payload", "error", err)
			return
		}
		a.publish(&events.BalanceUpdate{Balance: a.fromBalanceWire(b)})
	}
}

func (a *Adapter) publish(payload events.Payload) {
	ev := events.New(types.VenueTradeXYZ, payload)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.bus.Publish(ctx, ev); err != nil {
		a.logger.Warn("publish event", "type", ev.Type, "error", err)
	}
}

func (a *Adapter) publishConnection(status types.ConnectionStatus, reason string) {
	a.publish(&events.ConnectionUpdate{
		Venue:  types.VenueTradeXYZ,
		Status: status,
		Reason: reason,
	})
}

// ————————————————————————————————————————————————————————————————————————
// Catalog + translation
// ————————————————————————————————————————————————————————————————————————

func (a *Adapter) refreshCatalog(ctx context.Context) error {
	var rows []instrumentWire
	if err := a.request(ctx, http.MethodGet, "/v1/instruments", nil, &rows); err != nil {
		return err
	}

	catalog := make(map[string]types.SymbolInfo, len(rows))
	for _, m := range rows {
		sym := fromSymbol(m.Symbol)
		maxLev := m.MaxLeverage
		catalog[sym] = types.SymbolInfo{
			Venue:       types.VenueTradeXYZ,
			Symbol:      sym,
			BaseAsset:   m.Base,
			QuoteAsset:  "USD",
			TickSize:    m.TickSize,
			MinSize:     m.MinOrder,
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
			fmt.Sprintf("symbol %s not listed on tradexyz", symbol))
	}
	return info, nil
}

func (a *Adapter) fromOrderWire(w orderWire) types.Order {
	var status types.OrderStatus
	switch w.State {
	case "live":
		status = types.OrderStatusOpen
	case "partial":
		status = types.OrderStatusPartiallyFilled
	case "done":
		status = types.OrderStatusFilled
	case "canceled":
		status = types.OrderStatusCancelled
	case "rejected":
		status = types.OrderStatusRejected
	default:
		status = types.OrderStatusPending
	}

	o := types.Order{
		Venue:          types.VenueTradeXYZ,
		Symbol:         fromSymbol(w.Symbol),
		Side:           types.Side(w.Side),
		Type:           fromKind(w.Kind),
		Quantity:       w.Qty,
		ClientID:       w.ClientID,
		VenueID:        w.ID,
		Status:         status,
		FilledQuantity: w.FilledQty,
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
	return types.Position{
		Venue:         types.VenueTradeXYZ,
		Symbol:        fromSymbol(p.Symbol),
		Size:          p.Qty,
		EntryPrice:    p.EntryPrice,
		MarkPrice:     p.MarkPrice,
		UnrealizedPnL: p.Unrealized,
		MarginUsed:    p.Margin,
		UpdatedAt:     time.Now().UTC(),
	}
}

func (a *Adapter) fromBalanceWire(b balanceWire) types.Balance {
	return types.Balance{
		Venue:     types.VenueTradeXYZ,
		Asset:     b.Asset,
		Total:     b.Total,
		Available: b.Available,
		Locked:    b.Total.Sub(b.Available),
		UpdatedAt: time.Now().UTC(),
	}
}

func (a *Adapter) fromTicker(symbol string, t tickerWire) types.MarketData {
	md := types.MarketData{
		Venue:     types.VenueTradeXYZ,
		Symbol:    symbol,
		Timestamp: time.UnixMilli(t.TimeMs).UTC(),
	}
	if !t.Bid.IsZero() {
		bid, sz := t.Bid, t.BidSz
		md.BidPrice, md.BidSize = &bid, &sz
	}
	if !t.Ask.IsZero() {
		ask, sz := t.Ask, t.AskSz
		md.AskPrice, md.AskSize = &ask, &sz
	}
	if !t.Last.IsZero() {
		last := t.Last
		md.LastPrice = &last
	}
	vol := t.Vol
	md.Volume24h = &vol
	return md
}

func wireKind(t types.OrderType) string {
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

func fromKind(kind string) types.OrderType {
	switch kind {
	case "market":
		return types.OrderTypeMarket
	case "stopMarket":
		return types.OrderTypeStopMarket
	case "stopLimit":
		return types.OrderTypeStopLimit
	}
	return types.OrderTypeLimit
}

func intervalDuration(i types.Interval) time.Duration {
	switch i {
	case types.Interval1m:
		return time.Minute
	case types.Interval5m:
		return 5 * time.Minute
	case types.Interval15m:
		return 15 * time.Minute
	case types.Interval30m:
		return 30 * time.Minute
	case types.Interval1h:
		return time.Hour
	case types.Interval4h:
		return 4 * time.Hour
	case types.Interval1d:
		return 24 * time.Hour
	case types.Interval1w:
		return 7 * 24 * time.Hour
	}
	return time.Minute
}

// toSymbol converts "BTC-PERP" to the venue's "BTCUSD" name.
func toSymbol(symbol string) string {
	return strings.TrimSuffix(symbol, "-PERP") + "USD"
}

func fromSymbol(s string) string {
	return strings.TrimSuffix(s, "USD") + "-PERP"
}
