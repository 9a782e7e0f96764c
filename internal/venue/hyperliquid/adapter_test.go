package hyperliquid

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"perp-gateway/internal/bus"
	"perp-gateway/internal/events"
	"perp-gateway/pkg/types"
)

func TestSymbolTranslation(t *testing.T) {
	t.Parallel()

	if got := toCoin("BTC-PERP"); got != "BTC" {
		t.Fatalf("toCoin = %q, want BTC", got)
	}
	if got := fromCoin("ETH"); got != "ETH-PERP" {
		t.Fatalf("fromCoin = %q, want ETH-PERP", got)
	}
}

func TestFromWireOrderStatuses(t *testing.T) {
	t.Parallel()

	a := &Adapter{}
	base := orderStateWire{
		Coin:    "BTC",
		Oid:     json.Number("12345"),
		Cloid:   "client-1",
		Side:    "B",
		LimitPx: decimal.RequireFromString("50000"),
		Sz:      decimal.RequireFromString("1.0"),
		OrigSz:  decimal.RequireFromString("1.0"),
		Status:  "open",
	}

	order := a.fromWireOrder(base)
	if order.Symbol != "BTC-PERP" || order.Side != types.SideBuy {
		t.Fatalf("order = %+v", order)
	}
	if order.Status != types.OrderStatusOpen {
		t.Fatalf("status %s, want open", order.Status)
	}
	if order.VenueID != "12345" || order.ClientID != "client-1" {
		t.Fatalf("ids %q/%q", order.VenueID, order.ClientID)
	}

	// remaining size below original means a partial fill
	partial := base
	partial.Sz = decimal.RequireFromString("0.4")
	order = a.fromWireOrder(partial)
	if order.Status != types.OrderStatusPartiallyFilled {
		t.Fatalf("status %s, want partially_filled", order.Status)
	}
	if !order.FilledQuantity.Equal(decimal.RequireFromString("0.6")) {
		t.Fatalf("filled %s, want 0.6", order.FilledQuantity)
	}

	cancelled := base
	cancelled.Status = "canceled"
	if got := a.fromWireOrder(cancelled).Status; got != types.OrderStatusCancelled {
		t.Fatalf("status %s, want cancelled", got)
	}
}

func TestMarketDataFromBook(t *testing.T) {
	t.Parallel()

	book := &l2BookResponse{
		Coin: "BTC",
		Levels: [2][]bookLevel{
			{{Px: decimal.RequireFromString("50990"), Sz: decimal.RequireFromString("2.5")}},
			{{Px: decimal.RequireFromString("51010"), Sz: decimal.RequireFromString("1.1")}},
		},
		TimeMs: 1700000000000,
	}

	md := marketDataFromBook("BTC-PERP", book)
	if md.BidPrice == nil || !md.BidPrice.Equal(decimal.RequireFromString("50990")) {
		t.Fatalf("bid %v", md.BidPrice)
	}
	if md.AskPrice == nil || !md.AskPrice.Equal(decimal.RequireFromString("51010")) {
		t.Fatalf("ask %v", md.AskPrice)
	}
	if spread := md.Spread(); spread == nil || !spread.Equal(decimal.RequireFromString("20")) {
		t.Fatalf("spread %v, want 20", spread)
	}

	// one-sided book keeps the missing side nil
	empty := &l2BookResponse{Coin: "BTC", Levels: [2][]bookLevel{{}, book.Levels[1]}}
	md = marketDataFromBook("BTC-PERP", empty)
	if md.BidPrice != nil || md.AskPrice == nil {
		t.Fatalf("one-sided book: bid %v ask %v", md.BidPrice, md.AskPrice)
	}
}

func TestPrivateStreamMessagesPublishEvents(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := bus.NewMemoryBus(logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		b.Close(ctx)
	})
	a := &Adapter{bus: b, logger: logger}

	var mu sync.Mutex
	var orders []*events.OrderUpdate
	var positions []*events.PositionUpdate
	var balances []*events.BalanceUpdate
	var trades []*events.TradeUpdate
	b.Subscribe(events.ChannelOrders, func(_ context.Context, ev events.Event) {
		if p, ok := ev.Payload.(*events.OrderUpdate); ok {
			mu.Lock()
			orders = append(orders, p)
			mu.Unlock()
		}
	})
	b.Subscribe(events.ChannelPositions, func(_ context.Context, ev events.Event) {
		if p, ok := ev.Payload.(*events.PositionUpdate); ok {
			mu.Lock()
			positions = append(positions, p)
			mu.Unlock()
		}
	})
	b.Subscribe(events.ChannelBalances, func(_ context.Context, ev events.Event) {
		if p, ok := ev.Payload.(*events.BalanceUpdate); ok {
			mu.Lock()
			balances = append(balances, p)
			mu.Unlock()
		}
	})
	b.Subscribe(events.ChannelTrades, func(_ context.Context, ev events.Event) {
		if p, ok := ev.Payload.(*events.TradeUpdate); ok {
			mu.Lock()
			trades = append(trades, p)
			mu.Unlock()
		}
	})

	a.handleMessage([]byte(`{"channel":"orderUpdates","data":[{"order":{"coin":"BTC","oid":77,"cloid":"c-1","side":"B","limitPx":"50000","sz":"1.0","origSz":"1.0","timestamp":1700000000000},"status":"open"}]}`))
	a.handleMessage([]byte(`{"channel":"userFills","data":{"fills":[{"coin":"BTC","side":"B","px":"50000","sz":"0.5","time":1700000000000,"tid":9}]}}`))
	a.handleMessage([]byte(`{"channel":"webData2","data":{"clearinghouseState":{"assetPositions":[{"coin":"BTC","szi":"1.5","entryPx":"49000","markPx":"50000","unrealizedPnl":"1500","marginUsed":"7500"}],"withdrawable":"1000","accountValue":"9000"}}}`))

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		done := len(orders) == 1 && len(positions) == 1 && len(balances) == 1 && len(trades) == 1
		mu.Unlock()
		if done {
			break
		}
		if time.Now().After(deadline) {
			mu.Lock()
			t.Fatalf("events: %d orders, %d positions, %d balances, %d trades",
				len(orders), len(positions), len(balances), len(trades))
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	order := orders[0].Order
	if order.Symbol != "BTC-PERP" || order.Status != types.OrderStatusOpen || order.VenueID != "77" {
		t.Fatalf("order = %+v", order)
	}
	pos := positions[0].Position
	if pos.Symbol != "BTC-PERP" || !pos.Size.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("position = %+v", pos)
	}
	bal := balances[0].Balance
	if bal.Asset != "USDC" ||
		!bal.Total.Equal(decimal.RequireFromString("9000")) ||
		!bal.Locked.Equal(decimal.RequireFromString("8000")) {
		t.Fatalf("balance = %+v", bal)
	}
	fill := trades[0].Trade
	if fill.Side != types.SideBuy || !fill.Quantity.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("trade = %+v", fill)
	}
}

func TestWireTimeInForce(t *testing.T) {
	t.Parallel()

	cases := map[types.TimeInForce]string{
		types.TIFGoodTillCancel:    "Gtc",
		types.TIFImmediateOrCancel: "Ioc",
		types.TIFFillOrKill:        "Fok",
	}
	for tif, want := range cases {
		if got := wireTif(tif); got != want {
			t.Fatalf("wireTif(%s) = %q, want %q", tif, got, want)
		}
	}
}
