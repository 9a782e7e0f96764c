package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"perp-gateway/internal/bus"
	"perp-gateway/internal/config"
	"perp-gateway/internal/events"
	"perp-gateway/internal/marketdata"
	"perp-gateway/internal/portfolio"
	"perp-gateway/internal/venue"
	"perp-gateway/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Breaker: config.BreakerConfig{Threshold: 3, Timeout: time.Minute},
		Portfolio: config.PortfolioConfig{
			ReconcileInterval: time.Hour,
			MetricsInterval:   time.Hour,
			StaleAfter:        time.Hour,
		},
		Cache: config.CacheConfig{PriceTTL: time.Second},
	}
}

// fakeAdapter is a scriptable in-memory venue.
type fakeAdapter struct {
	venue types.Venue

	mu           sync.Mutex
	placed       []types.Order
	cancelled    []string
	placeErr     error
	positionsErr error
	positions    []types.Position
	open         []types.Order
	status       types.ConnectionStatus // zero value means connected
	initCount    int
	privateSubs  int
}

func (f *fakeAdapter) Venue() types.Venue { return f.venue }

func (f *fakeAdapter) Initialize(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCount++
	f.status = ""
	return nil
}

func (f *fakeAdapter) Shutdown(context.Context) error    { return nil }
func (f *fakeAdapter) HealthCheck(context.Context) error { return nil }

func (f *fakeAdapter) Status() types.ConnectionStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == "" {
		return types.StatusConnected
	}
	return f.status
}

func (f *fakeAdapter) StreamHealthy() bool { return true }

func (f *fakeAdapter) PlaceOrder(_ context.Context, order *types.Order) (*types.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	placed := *order
	placed.VenueID = "v-" + placed.ClientID
	placed.Status = types.OrderStatusOpen
	f.placed = append(f.placed, placed)
	return &placed, nil
}

func (f *fakeAdapter) CancelOrder(_ context.Context, _, venueID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, venueID)
	return nil
}

func (f *fakeAdapter) GetOrder(context.Context, string, string) (*types.Order, error) {
	return nil, types.NewOrderNotFoundError("")
}

func (f *fakeAdapter) GetOpenOrders(context.Context, string) ([]types.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Order(nil), f.open...), nil
}

func (f *fakeAdapter) GetPositions(context.Context) ([]types.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.positionsErr != nil {
		return nil, f.positionsErr
	}
	return append([]types.Position(nil), f.positions...), nil
}

func (f *fakeAdapter) GetBalances(context.Context) ([]types.Balance, error) { return nil, nil }

func (f *fakeAdapter) GetMarketData(context.Context, string) (*types.MarketData, error) {
	return &types.MarketData{Venue: f.venue}, nil
}

func (f *fakeAdapter) GetOrderBook(context.Context, string, int) (*types.OrderBook, error) {
	return &types.OrderBook{Venue: f.venue}, nil
}

func (f *fakeAdapter) GetRecentTrades(context.Context, string, int) ([]types.Trade, error) {
	return nil, nil
}

func (f *fakeAdapter) GetKlines(context.Context, string, types.Interval, int, time.Time, time.Time) ([]types.Kline, error) {
	return nil, nil
}

func (f *fakeAdapter) GetSymbols(context.Context) ([]string, error) {
	return []string{"BTC-PERP"}, nil
}

func (f *fakeAdapter) GetSymbolInfo(context.Context, string) (*types.SymbolInfo, error) {
	return nil, nil
}

func (f *fakeAdapter) SubscribeMarketData(context.Context, []string) error   { return nil }
func (f *fakeAdapter) UnsubscribeMarketData(context.Context, []string) error { return nil }

func (f *fakeAdapter) SubscribeOrderUpdates(context.Context) error { return f.countPrivateSub() }

func (f *fakeAdapter) SubscribePositionUpdates(context.Context) error { return f.countPrivateSub() }

func (f *fakeAdapter) SubscribeBalanceUpdates(context.Context) error { return f.countPrivateSub() }

func (f *fakeAdapter) countPrivateSub() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.privateSubs++
	return nil
}

var _ venue.Adapter = (*fakeAdapter)(nil)

func newTestOrchestrator(t *testing.T, adapters ...venue.Adapter) (*Orchestrator, *bus.MemoryBus) {
	t.Helper()
	b := bus.NewMemoryBus(testLogger())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		b.Close(ctx)
	})

	o := New(adapters, b, testConfig(), testLogger())
	o.AttachPortfolio(portfolio.NewAggregator(o, b, testConfig().Portfolio, testLogger()))
	o.AttachMarketData(marketdata.NewAggregator(marketdata.NewCache(), b, o.Latency, time.Second, testLogger()))
	return o, b
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestPlaceOrderValidation(t *testing.T) {
	t.Parallel()

	fake := &fakeAdapter{venue: types.VenueHyperliquid}
	o, _ := newTestOrchestrator(t, fake)

	_, err := o.PlaceOrder(context.Background(), &types.Order{
		Venue:  types.VenueHyperliquid,
		Symbol: "BTC-PERP",
		Side:   types.SideBuy,
		Type:   types.OrderTypeLimit,
		// limit order without a price
		Quantity: decimal.NewFromInt(1),
	})
	ge := types.AsGatewayError(err)
	if ge == nil || ge.Code != types.ErrCodeOrderValidation {
		t.Fatalf("err = %v, want ORDER_VALIDATION_ERROR", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.placed) != 0 {
		t.Fatal("invalid order must not reach the venue")
	}
}

func TestPlaceOrderMintsClientIDAndPublishes(t *testing.T) {
	t.Parallel()

	fake := &fakeAdapter{venue: types.VenueHyperliquid}
	o, b := newTestOrchestrator(t, fake)

	var mu sync.Mutex
	var got []events.Event
	b.Subscribe(events.ChannelOrders, func(_ context.Context, ev events.Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})

	price := decimal.RequireFromString("50000")
	placed, err := o.PlaceOrder(context.Background(), &types.Order{
		Venue:    types.VenueHyperliquid,
		Symbol:   "BTC-PERP",
		Side:     types.SideBuy,
		Type:     types.OrderTypeLimit,
		Quantity: decimal.NewFromInt(1),
		Price:    &price,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if placed.ClientID == "" {
		t.Fatal("client id should be minted when absent")
	}
	if placed.Status != types.OrderStatusOpen {
		t.Fatalf("status %s, want open", placed.Status)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, "order update never published")

	mu.Lock()
	ou, ok := got[0].Payload.(*events.OrderUpdate)
	mu.Unlock()
	if !ok || ou.Order.ClientID != placed.ClientID {
		t.Fatalf("published payload %+v, want order %s", got[0].Payload, placed.ClientID)
	}
}

func TestPlaceOrderRejectionIsPublishedAndRecorded(t *testing.T) {
	t.Parallel()

	fake := &fakeAdapter{
		venue:    types.VenueLighter,
		placeErr: types.NewInsufficientBalanceError(types.VenueLighter, "USDC"),
	}
	o, b := newTestOrchestrator(t, fake)

	var mu sync.Mutex
	var got []*events.OrderUpdate
	b.Subscribe(events.ChannelOrders, func(_ context.Context, ev events.Event) {
		if ou, ok := ev.Payload.(*events.OrderUpdate); ok {
			mu.Lock()
			got = append(got, ou)
			mu.Unlock()
		}
	})

	price := decimal.RequireFromString("3000")
	_, err := o.PlaceOrder(context.Background(), &types.Order{
		Venue:    types.VenueLighter,
		Symbol:   "ETH-PERP",
		Side:     types.SideBuy,
		Type:     types.OrderTypeLimit,
		Quantity: decimal.NewFromInt(10),
		Price:    &price,
	})
	ge := types.AsGatewayError(err)
	if ge == nil || ge.Code != types.ErrCodeInsufficientBalance {
		t.Fatalf("err = %v, want INSUFFICIENT_BALANCE_ERROR", err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, "rejection never published")

	mu.Lock()
	ou := got[0]
	mu.Unlock()
	if ou.Order.Status != types.OrderStatusRejected || ou.ErrorMessage == "" {
		t.Fatalf("published %+v, want rejected with error message", ou)
	}

	rejected := types.OrderStatusRejected
	history := o.OrderHistory(OrderFilter{Status: rejected})
	if len(history) != 1 {
		t.Fatalf("history has %d rejected orders, want 1", len(history))
	}
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	t.Parallel()

	fake := &fakeAdapter{
		venue:        types.VenueTradeXYZ,
		positionsErr: errors.New("venue down"),
	}
	o, _ := newTestOrchestrator(t, fake)
	ctx := context.Background()

	// threshold consecutive failures still reach the adapter
	for i := 0; i < 3; i++ {
		_, err := o.VenuePositions(ctx, types.VenueTradeXYZ)
		if err == nil {
			t.Fatal("expected failure from adapter")
		}
		if ge := types.AsGatewayError(err); ge != nil && ge.Code == types.ErrCodeCircuitBreaker {
			t.Fatalf("breaker opened after %d failures, threshold is 3", i)
		}
	}

	// breaker is now open: calls are rejected without reaching the adapter
	_, err := o.VenuePositions(ctx, types.VenueTradeXYZ)
	ge := types.AsGatewayError(err)
	if ge == nil || ge.Code != types.ErrCodeCircuitBreaker {
		t.Fatalf("err = %v, want CIRCUIT_BREAKER_ERROR", err)
	}

	// recovery: venue heals, but the breaker stays open until its timeout
	fake.mu.Lock()
	fake.positionsErr = nil
	fake.mu.Unlock()
	if _, err := o.VenuePositions(ctx, types.VenueTradeXYZ); types.AsGatewayError(err) == nil {
		t.Fatal("breaker should still reject before its timeout")
	}
}

func TestCancelUnknownOrder(t *testing.T) {
	t.Parallel()

	o, _ := newTestOrchestrator(t, &fakeAdapter{venue: types.VenueHyperliquid})
	_, err := o.CancelOrder(context.Background(), "no-such-id")
	ge := types.AsGatewayError(err)
	if ge == nil || ge.Code != types.ErrCodeOrderNotFound {
		t.Fatalf("err = %v, want ORDER_NOT_FOUND_ERROR", err)
	}
}

func TestCancelAllOrders(t *testing.T) {
	t.Parallel()

	fake := &fakeAdapter{
		venue: types.VenueHyperliquid,
		open: []types.Order{
			{Venue: types.VenueHyperliquid, Symbol: "BTC-PERP", VenueID: "a"},
			{Venue: types.VenueHyperliquid, Symbol: "ETH-PERP", VenueID: "b"},
		},
	}
	o, _ := newTestOrchestrator(t, fake)

	n, err := o.CancelAllOrders(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("CancelAllOrders: %v", err)
	}
	if n != 2 {
		t.Fatalf("cancelled %d, want 2", n)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.cancelled) != 2 {
		t.Fatalf("venue saw %d cancels, want 2", len(fake.cancelled))
	}
}

func TestClosePositionWithoutLegs(t *testing.T) {
	t.Parallel()

	o, _ := newTestOrchestrator(t, &fakeAdapter{venue: types.VenueHyperliquid})
	_, err := o.ClosePosition(context.Background(), "BTC-PERP", nil, nil)
	ge := types.AsGatewayError(err)
	if ge == nil || ge.Code != types.ErrCodePositionNotFound {
		t.Fatalf("err = %v, want POSITION_NOT_FOUND_ERROR", err)
	}
}

func TestShutdownRejectsNewOrders(t *testing.T) {
	t.Parallel()

	fake := &fakeAdapter{venue: types.VenueHyperliquid}
	b := bus.NewMemoryBus(testLogger())
	o := New([]venue.Adapter{fake}, b, testConfig(), testLogger())
	o.AttachPortfolio(portfolio.NewAggregator(o, b, testConfig().Portfolio, testLogger()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := o.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	price := decimal.RequireFromString("50000")
	_, err := o.PlaceOrder(context.Background(), &types.Order{
		Venue:    types.VenueHyperliquid,
		Symbol:   "BTC-PERP",
		Side:     types.SideBuy,
		Type:     types.OrderTypeLimit,
		Quantity: decimal.NewFromInt(1),
		Price:    &price,
	})
	ge := types.AsGatewayError(err)
	if ge == nil || ge.Code != types.ErrCodeShuttingDown {
		t.Fatalf("err = %v, want SHUTTING_DOWN", err)
	}
}
