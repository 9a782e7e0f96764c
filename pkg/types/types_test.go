package types

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestOrderValidate(t *testing.T) {
	t.Parallel()

	price := decimal.RequireFromString("50000")
	stop := decimal.RequireFromString("49000")
	valid := Order{
		Venue:    VenueHyperliquid,
		Symbol:   "BTC-PERP",
		Side:     SideBuy,
		Type:     OrderTypeLimit,
		Quantity: decimal.NewFromInt(1),
		Price:    &price,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid order rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Order)
		field  string
	}{
		{"unknown venue", func(o *Order) { o.Venue = "binance" }, "venue"},
		{"missing symbol", func(o *Order) { o.Symbol = "" }, "symbol"},
		{"bad side", func(o *Order) { o.Side = "hold" }, "side"},
		{"bad type", func(o *Order) { o.Type = "trailing" }, "order_type"},
		{"zero quantity", func(o *Order) { o.Quantity = decimal.Zero }, "quantity"},
		{"negative quantity", func(o *Order) { o.Quantity = decimal.NewFromInt(-1) }, "quantity"},
		{"limit without price", func(o *Order) { o.Price = nil }, "price"},
		{"stop limit without stop", func(o *Order) { o.Type = OrderTypeStopLimit }, "stop_price"},
		{"bad time in force", func(o *Order) { o.TimeInForce = "gtd" }, "time_in_force"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			o := valid
			tt.mutate(&o)
			err := o.Validate()
			ge := AsGatewayError(err)
			if ge == nil || ge.Code != ErrCodeOrderValidation {
				t.Fatalf("err = %v, want ORDER_VALIDATION_ERROR", err)
			}
			if ge.Details["field"] != tt.field {
				t.Fatalf("field = %v, want %s", ge.Details["field"], tt.field)
			}
		})
	}

	// stop market needs a stop price but no limit price
	stopOrder := valid
	stopOrder.Type = OrderTypeStopMarket
	stopOrder.Price = nil
	stopOrder.StopPrice = &stop
	if err := stopOrder.Validate(); err != nil {
		t.Fatalf("stop market order rejected: %v", err)
	}
}

func TestOrderStatusTransitions(t *testing.T) {
	t.Parallel()

	if !OrderStatusPending.IsActive() || !OrderStatusPartiallyFilled.IsActive() {
		t.Fatal("pending and partially_filled are active")
	}
	if !OrderStatusFilled.IsTerminal() || !OrderStatusCancelled.IsTerminal() || !OrderStatusRejected.IsTerminal() {
		t.Fatal("filled, cancelled, rejected are terminal")
	}
	if OrderStatusFilled.IsActive() {
		t.Fatal("terminal status reported active")
	}

	if !OrderStatusOpen.CanTransitionTo(OrderStatusPartiallyFilled) {
		t.Fatal("open -> partially_filled must be allowed")
	}
	if OrderStatusFilled.CanTransitionTo(OrderStatusOpen) {
		t.Fatal("terminal states must not transition")
	}
}

func TestSideOpposite(t *testing.T) {
	t.Parallel()

	if SideBuy.Opposite() != SideSell || SideSell.Opposite() != SideBuy {
		t.Fatal("opposite sides mismatched")
	}
}

func TestPositionDerivedFields(t *testing.T) {
	t.Parallel()

	p := Position{
		Venue:      VenueLighter,
		Symbol:     "ETH-PERP",
		Size:       decimal.RequireFromString("-2"),
		EntryPrice: decimal.RequireFromString("3000"),
		MarkPrice:  decimal.RequireFromString("3100"),
	}
	if !p.IsShort() || p.IsLong() {
		t.Fatal("negative size is short")
	}
	if !p.AbsSize().Equal(decimal.NewFromInt(2)) {
		t.Fatalf("abs size %s, want 2", p.AbsSize())
	}
	if !p.Notional().Equal(decimal.RequireFromString("6200")) {
		t.Fatalf("notional %s, want 6200", p.Notional())
	}
}

func TestOrderRemainingAndFillPercent(t *testing.T) {
	t.Parallel()

	o := Order{
		Quantity:       decimal.RequireFromString("4"),
		FilledQuantity: decimal.RequireFromString("1"),
	}
	if !o.RemainingQuantity().Equal(decimal.RequireFromString("3")) {
		t.Fatalf("remaining %s, want 3", o.RemainingQuantity())
	}
	if !o.FillPercent().Equal(decimal.RequireFromString("25")) {
		t.Fatalf("fill percent %s, want 25", o.FillPercent())
	}

	var empty Order
	if !empty.FillPercent().IsZero() {
		t.Fatal("zero quantity order has zero fill percent")
	}
}

func TestVenueOrdinalOrder(t *testing.T) {
	t.Parallel()

	venues := AllVenues()
	for i := 1; i < len(venues); i++ {
		if venues[i-1].Ordinal() >= venues[i].Ordinal() {
			t.Fatalf("canonical order broken at %s", venues[i])
		}
	}
	if Venue("binance").Valid() {
		t.Fatal("unknown venue reported valid")
	}
}
