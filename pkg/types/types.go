// Package types defines the canonical data model shared across all packages.
//
// This package is the common vocabulary for the gateway. Every venue adapter
// normalizes its wire formats into these types, and every layer above the
// adapters (orchestrator, aggregators, REST, client hub) speaks only this
// vocabulary. It has no dependencies on internal packages, so it can be
// imported by any layer.
//
// All monetary quantities are decimal.Decimal, never floats. shopspring
// decimals marshal to quoted JSON strings, which keeps precision stable
// across clients in other languages.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Venue identifies a connected derivatives venue. The set is closed and
// ordered; Ordinal is the final tie-breaker in price aggregation.
type Venue string

const (
	VenueHyperliquid Venue = "hyperliquid"
	VenueLighter     Venue = "lighter"
	VenueTradeXYZ    Venue = "tradexyz"
)

// AllVenues returns the supported venues in canonical order.
func AllVenues() []Venue {
	return []Venue{VenueHyperliquid, VenueLighter, VenueTradeXYZ}
}

// Valid reports whether v is a known venue.
func (v Venue) Valid() bool {
	return v.Ordinal() >= 0
}

// Ordinal returns the venue's position in the canonical order, or -1.
func (v Venue) Ordinal() int {
	for i, known := range AllVenues() {
		if v == known {
			return i
		}
	}
	return -1
}

// Side represents the direction of an order: buy or sell.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

// Opposite returns the other side. Used when closing positions.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType enumerates the supported order kinds.
type OrderType string

const (
	OrderTypeMarket     OrderType = "market"
	OrderTypeLimit      OrderType = "limit"
	OrderTypeStopMarket OrderType = "stop_market"
	OrderTypeStopLimit  OrderType = "stop_limit"
)

// Valid reports whether t is a known order type.
func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeMarket, OrderTypeLimit, OrderTypeStopMarket, OrderTypeStopLimit:
		return true
	}
	return false
}

// RequiresPrice reports whether the order type needs a limit price.
func (t OrderType) RequiresPrice() bool {
	return t == OrderTypeLimit || t == OrderTypeStopLimit
}

// RequiresStopPrice reports whether the order type needs a stop trigger.
func (t OrderType) RequiresStopPrice() bool {
	return t == OrderTypeStopMarket || t == OrderTypeStopLimit
}

// OrderStatus tracks an order through its lifecycle:
//
//	pending → open → (partially_filled)* → filled | cancelled | rejected | expired
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusExpired         OrderStatus = "expired"
)

// IsActive reports whether the order is still working on the venue.
func (s OrderStatus) IsActive() bool {
	return s == OrderStatusPending || s == OrderStatusOpen || s == OrderStatusPartiallyFilled
}

// IsTerminal reports whether the order has reached a final state.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled ||
		s == OrderStatusRejected || s == OrderStatusExpired
}

// CanTransitionTo reports whether moving from s to next respects the order
// state machine. Terminal states accept no transitions; repeating the same
// status is allowed, so duplicate venue updates stay idempotent.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s == next {
		return true
	}
	if s.IsTerminal() {
		return false
	}
	switch s {
	case OrderStatusPending:
		return true
	case OrderStatusOpen:
		return next != OrderStatusPending
	case OrderStatusPartiallyFilled:
		return next != OrderStatusPending && next != OrderStatusOpen
	}
	return false
}

// TimeInForce controls how long an order stays working.
type TimeInForce string

const (
	TIFGoodTillCancel    TimeInForce = "gtc"
	TIFImmediateOrCancel TimeInForce = "ioc"
	TIFFillOrKill        TimeInForce = "fok"
)

// Valid reports whether t is a known time-in-force.
func (t TimeInForce) Valid() bool {
	return t == TIFGoodTillCancel || t == TIFImmediateOrCancel || t == TIFFillOrKill
}

// ConnectionStatus describes the state of a venue connection (REST or WS).
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusReconnecting ConnectionStatus = "reconnecting"
	StatusError        ConnectionStatus = "error"
)

// Interval is a kline/candlestick interval.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
	Interval1w  Interval = "1w"
)

// Valid reports whether i is a supported interval.
func (i Interval) Valid() bool {
	switch i {
	case Interval1m, Interval5m, Interval15m, Interval30m,
		Interval1h, Interval4h, Interval1d, Interval1w:
		return true
	}
	return false
}

// ————————————————————————————————————————————————————————————————————————
// Orders
// ————————————————————————————————————————————————————————————————————————

// Order is the unified order representation across all venues. The owning
// venue is the source of truth for its fields; everything above the adapter
// holds derived, eventually-consistent copies.
type Order struct {
	Venue    Venue           `json:"venue"`
	Symbol   string          `json:"symbol"`
	Side     Side            `json:"side"`
	Type     OrderType       `json:"order_type"`
	Quantity decimal.Decimal `json:"quantity"`

	Price       *decimal.Decimal `json:"price,omitempty"`
	StopPrice   *decimal.Decimal `json:"stop_price,omitempty"`
	TimeInForce TimeInForce      `json:"time_in_force"`
	ReduceOnly  bool             `json:"reduce_only,omitempty"`

	// ClientID is unique across the gateway, supplied by the client or
	// minted at placement. VenueID is the venue's own order identifier.
	ClientID string `json:"client_order_id"`
	VenueID  string `json:"order_id,omitempty"`

	Status         OrderStatus      `json:"status"`
	FilledQuantity decimal.Decimal  `json:"filled_quantity"`
	AvgFillPrice   *decimal.Decimal `json:"average_fill_price,omitempty"`
	Fee            *decimal.Decimal `json:"fee,omitempty"`
	FeeAsset       string           `json:"fee_asset,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	FilledAt  *time.Time `json:"filled_at,omitempty"`
}

// RemainingQuantity returns quantity minus filled quantity.
func (o *Order) RemainingQuantity() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

// IsActive reports whether the order is still working.
func (o *Order) IsActive() bool { return o.Status.IsActive() }

// FillPercent returns the fill ratio as a percentage in [0, 100].
func (o *Order) FillPercent() decimal.Decimal {
	if o.Quantity.IsZero() {
		return decimal.Zero
	}
	return o.FilledQuantity.Div(o.Quantity).Mul(decimal.NewFromInt(100))
}

// Validate checks the structural order invariants that hold on every venue:
// known enums, positive quantity, price/stop presence per order type.
// Venue-specific constraints (tick size, min size) are checked by adapters.
func (o *Order) Validate() error {
	if !o.Venue.Valid() {
		return NewOrderValidationError("venue", "unknown venue: "+string(o.Venue))
	}
	if o.Symbol == "" {
		return NewOrderValidationError("symbol", "symbol is required")
	}
	if !o.Side.Valid() {
		return NewOrderValidationError("side", "side must be buy or sell")
	}
	if !o.Type.Valid() {
		return NewOrderValidationError("order_type", "unknown order type: "+string(o.Type))
	}
	if !o.Quantity.IsPositive() {
		return NewOrderValidationError("quantity", "quantity must be positive")
	}
	if o.Type.RequiresPrice() && o.Price == nil {
		return NewOrderValidationError("price", string(o.Type)+" orders require a price")
	}
	if o.Price != nil && !o.Price.IsPositive() {
		return NewOrderValidationError("price", "price must be positive")
	}
	if o.Type.RequiresStopPrice() && o.StopPrice == nil {
		return NewOrderValidationError("stop_price", string(o.Type)+" orders require a stop price")
	}
	if o.StopPrice != nil && !o.StopPrice.IsPositive() {
		return NewOrderValidationError("stop_price", "stop price must be positive")
	}
	if o.TimeInForce != "" && !o.TimeInForce.Valid() {
		return NewOrderValidationError("time_in_force", "time in force must be gtc, ioc, or fok")
	}
	return nil
}

// ————————————————————————————————————————————————————————————————————————
// Positions and balances
// ————————————————————————————————————————————————————————————————————————

// Position is a perpetual position on one venue. Size is signed: positive
// for long, negative for short. Consolidated cross-venue positions reuse
// this type with VenueData listing the contributing venues.
type Position struct {
	Venue  Venue           `json:"venue"`
	Symbol string          `json:"symbol"`
	Size   decimal.Decimal `json:"size"`

	EntryPrice       decimal.Decimal  `json:"entry_price"`
	MarkPrice        decimal.Decimal  `json:"mark_price"`
	LiquidationPrice *decimal.Decimal `json:"liquidation_price,omitempty"`

	UnrealizedPnL decimal.Decimal  `json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal  `json:"realized_pnl"`
	MarginUsed    decimal.Decimal  `json:"margin_used"`
	Leverage      *decimal.Decimal `json:"leverage,omitempty"`

	OpenedAt  *time.Time `json:"opened_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`

	VenueData map[string]any `json:"venue_data,omitempty"`
}

// IsLong reports whether the position is long.
func (p *Position) IsLong() bool { return p.Size.IsPositive() }

// IsShort reports whether the position is short.
func (p *Position) IsShort() bool { return p.Size.IsNegative() }

// AbsSize returns the unsigned position size.
func (p *Position) AbsSize() decimal.Decimal { return p.Size.Abs() }

// Notional returns |size| x mark price.
func (p *Position) Notional() decimal.Decimal {
	return p.Size.Abs().Mul(p.MarkPrice)
}

// PnLPercent returns unrealized PnL as a percentage of entry value.
func (p *Position) PnLPercent() decimal.Decimal {
	entryValue := p.Size.Abs().Mul(p.EntryPrice)
	if entryValue.IsZero() {
		return decimal.Zero
	}
	return p.UnrealizedPnL.Div(entryValue).Mul(decimal.NewFromInt(100))
}

// Balance is an asset balance on one venue.
// Invariant: Total = Available + Locked.
type Balance struct {
	Venue     Venue            `json:"venue"`
	Asset     string           `json:"asset"`
	Total     decimal.Decimal  `json:"total"`
	Available decimal.Decimal  `json:"available"`
	Locked    decimal.Decimal  `json:"locked"`
	USDValue  *decimal.Decimal `json:"usd_value,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`

	VenueData map[string]any `json:"venue_data,omitempty"`
}

// ————————————————————————————————————————————————————————————————————————
// Market data
// ————————————————————————————————————————————————————————————————————————

// MarketData is a point-in-time snapshot of one symbol on one venue.
type MarketData struct {
	Venue  Venue  `json:"venue"`
	Symbol string `json:"symbol"`

	BidPrice  *decimal.Decimal `json:"bid_price,omitempty"`
	AskPrice  *decimal.Decimal `json:"ask_price,omitempty"`
	BidSize   *decimal.Decimal `json:"bid_size,omitempty"`
	AskSize   *decimal.Decimal `json:"ask_size,omitempty"`
	LastPrice *decimal.Decimal `json:"last_price,omitempty"`

	Volume24h *decimal.Decimal `json:"volume_24h,omitempty"`
	High24h   *decimal.Decimal `json:"high_24h,omitempty"`
	Low24h    *decimal.Decimal `json:"low_24h,omitempty"`
	Change24h *decimal.Decimal `json:"change_24h,omitempty"`

	FundingRate     *decimal.Decimal `json:"funding_rate,omitempty"`
	NextFundingTime *time.Time       `json:"next_funding_time,omitempty"`
	OpenInterest    *decimal.Decimal `json:"open_interest,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Spread returns ask minus bid, or nil when either side is missing.
func (m *MarketData) Spread() *decimal.Decimal {
	if m.BidPrice == nil || m.AskPrice == nil {
		return nil
	}
	s := m.AskPrice.Sub(*m.BidPrice)
	return &s
}

// Mid returns (bid + ask) / 2, or nil when either side is missing.
func (m *MarketData) Mid() *decimal.Decimal {
	if m.BidPrice == nil || m.AskPrice == nil {
		return nil
	}
	mid := m.BidPrice.Add(*m.AskPrice).Div(decimal.NewFromInt(2))
	return &mid
}

// AggregatedMarketData is the cross-venue best bid/ask view for one symbol.
type AggregatedMarketData struct {
	Symbol       string          `json:"symbol"`
	BestBid      decimal.Decimal `json:"best_bid"`
	BestAsk      decimal.Decimal `json:"best_ask"`
	BestBidSize  decimal.Decimal `json:"best_bid_size"`
	BestAskSize  decimal.Decimal `json:"best_ask_size"`
	BestBidVenue Venue           `json:"best_bid_venue"`
	BestAskVenue Venue           `json:"best_ask_venue"`
	Sources      []MarketData    `json:"sources"`
	Timestamp    time.Time       `json:"timestamp"`
}

// OrderBookLevel is a single price level in an order book.
type OrderBookLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// OrderBook is a depth snapshot for one symbol on one venue.
// Bids are sorted descending by price, asks ascending.
type OrderBook struct {
	Venue     Venue            `json:"venue"`
	Symbol    string           `json:"symbol"`
	Bids      []OrderBookLevel `json:"bids"`
	Asks      []OrderBookLevel `json:"asks"`
	Timestamp time.Time        `json:"timestamp"`
}

// Kline is a single candlestick.
type Kline struct {
	Venue     Venue           `json:"venue"`
	Symbol    string          `json:"symbol"`
	Interval  Interval        `json:"interval"`
	OpenTime  time.Time       `json:"open_time"`
	CloseTime time.Time       `json:"close_time"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// Trade is a single executed fill.
type Trade struct {
	Venue     Venue            `json:"venue"`
	Symbol    string           `json:"symbol"`
	TradeID   string           `json:"trade_id"`
	Side      Side             `json:"side"`
	Price     decimal.Decimal  `json:"price"`
	Quantity  decimal.Decimal  `json:"quantity"`
	OrderID   string           `json:"order_id,omitempty"`
	Fee       *decimal.Decimal `json:"fee,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Notional returns price x quantity.
func (t *Trade) Notional() decimal.Decimal { return t.Price.Mul(t.Quantity) }

// SymbolInfo describes a venue's trading constraints for one symbol.
type SymbolInfo struct {
	Venue       Venue            `json:"venue"`
	Symbol      string           `json:"symbol"`
	BaseAsset   string           `json:"base_asset"`
	QuoteAsset  string           `json:"quote_asset"`
	TickSize    decimal.Decimal  `json:"tick_size"`
	MinSize     decimal.Decimal  `json:"min_size"`
	MaxLeverage *decimal.Decimal `json:"max_leverage,omitempty"`
}

// ————————————————————————————————————————————————————————————————————————
// Venue status
// ————————————————————————————————————————————————————————————————————————

// VenueStatus is the health summary the orchestrator maintains per venue.
type VenueStatus struct {
	Venue            Venue            `json:"venue"`
	ConnectionStatus ConnectionStatus `json:"connection_status"`
	APIStatus        ConnectionStatus `json:"api_status"`
	WSStatus         ConnectionStatus `json:"websocket_status"`

	LatencyMs   float64 `json:"latency_ms"`
	SuccessRate float64 `json:"success_rate"`

	LastError  string `json:"last_error,omitempty"`
	ErrorCount int64  `json:"error_count"`

	LastCheck   time.Time  `json:"last_check"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
}
