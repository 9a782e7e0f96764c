// Package venue defines the adapter contract every connected venue
// implements, plus the shared plumbing adapters are built on: the
// constructor registry, a reconnecting WebSocket session, and token-bucket
// rate limiting.
//
// Adapters own all venue-specific knowledge — wire formats, symbol naming,
// authentication — and normalize everything into pkg/types before it leaves
// the adapter. Layers above never see a venue payload.
package venue

import (
	"context"
	"log/slog"
	"time"

	"perp-gateway/internal/bus"
	"perp-gateway/internal/config"
	"perp-gateway/pkg/types"
)

// Adapter is the uniform capability surface of one venue. All blocking
// operations take a context; adapters return taxonomy errors
// (*types.GatewayError) for conditions a client can act on and plain
// wrapped errors for transport noise.
type Adapter interface {
	// Venue returns the adapter's venue identity.
	Venue() types.Venue

	// Initialize connects REST and WebSocket transports and loads the
	// symbol catalog. Called once before any other operation.
	Initialize(ctx context.Context) error
	// Shutdown closes transports. The adapter is unusable afterwards.
	Shutdown(ctx context.Context) error
	// HealthCheck probes the venue's REST API.
	HealthCheck(ctx context.Context) error
	// Status reports the adapter's current connection state.
	Status() types.ConnectionStatus
	// StreamHealthy reports whether the market data stream is live.
	StreamHealthy() bool

	// PlaceOrder submits the order and returns it with venue identifiers
	// and initial status filled in.
	PlaceOrder(ctx context.Context, order *types.Order) (*types.Order, error)
	// CancelOrder cancels by venue order ID.
	CancelOrder(ctx context.Context, symbol, venueID string) error
	// GetOrder fetches the current state of one order.
	GetOrder(ctx context.Context, symbol, venueID string) (*types.Order, error)
	// GetOpenOrders lists working orders, optionally filtered by symbol.
	GetOpenOrders(ctx context.Context, symbol string) ([]types.Order, error)

	// GetPositions returns all open positions.
	GetPositions(ctx context.Context) ([]types.Position, error)
	// GetBalances returns all asset balances.
	GetBalances(ctx context.Context) ([]types.Balance, error)

	// GetMarketData returns a snapshot for one symbol.
	GetMarketData(ctx context.Context, symbol string) (*types.MarketData, error)
	// GetOrderBook returns a depth snapshot, at most depth levels per side.
	GetOrderBook(ctx context.Context, symbol string, depth int) (*types.OrderBook, error)
	// GetRecentTrades returns the venue's recent public trades.
	GetRecentTrades(ctx context.Context, symbol string, limit int) ([]types.Trade, error)
	// GetKlines returns candlesticks for the interval and window.
	GetKlines(ctx context.Context, symbol string, interval types.Interval, limit int, start, end time.Time) ([]types.Kline, error)

	// GetSymbols lists tradable symbols in unified form.
	GetSymbols(ctx context.Context) ([]string, error)
	// GetSymbolInfo returns trading constraints for one symbol.
	GetSymbolInfo(ctx context.Context, symbol string) (*types.SymbolInfo, error)

	// SubscribeMarketData starts streaming updates for the symbols; each
	// update is published as a market_data_update event.
	SubscribeMarketData(ctx context.Context, symbols []string) error
	// UnsubscribeMarketData stops streaming for the symbols.
	UnsubscribeMarketData(ctx context.Context, symbols []string) error

	// SubscribeOrderUpdates starts streaming the account's order lifecycle
	// changes; each change is published as an order_update event.
	SubscribeOrderUpdates(ctx context.Context) error
	// SubscribePositionUpdates starts streaming position changes as
	// position_update events. A zero-size position signals a closed leg.
	SubscribePositionUpdates(ctx context.Context) error
	// SubscribeBalanceUpdates starts streaming balance changes as
	// balance_update events.
	SubscribeBalanceUpdates(ctx context.Context) error
}

// Deps carries the shared infrastructure handed to every adapter.
type Deps struct {
	Bus    bus.Bus
	Logger *slog.Logger
	WS     config.WSConfig
}
