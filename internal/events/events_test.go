package events

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"perp-gateway/pkg/types"
)

func TestChannelForCoversAllTypes(t *testing.T) {
	t.Parallel()

	cases := map[Type]Channel{
		TypeOrderUpdate:      ChannelOrders,
		TypePositionUpdate:   ChannelPositions,
		TypeBalanceUpdate:    ChannelBalances,
		TypeMarketDataUpdate: ChannelMarketData,
		TypeTradeUpdate:      ChannelTrades,
		TypeConnectionUpdate: ChannelConnections,
		TypeSystemUpdate:     ChannelSystem,
	}
	for typ, want := range cases {
		if got := ChannelFor(typ); got != want {
			t.Fatalf("ChannelFor(%s) = %s, want %s", typ, got, want)
		}
	}
}

func TestEventChannelsIncludeVenue(t *testing.T) {
	t.Parallel()

	ev := New(types.VenueLighter, &ConnectionUpdate{
		Venue:  types.VenueLighter,
		Status: types.StatusConnected,
	})
	chs := ev.Channels()
	if len(chs) != 2 || chs[0] != ChannelConnections || chs[1] != Channel("lighter") {
		t.Fatalf("channels = %v, want [connections lighter]", chs)
	}

	sys := New("", &SystemUpdate{Component: "bus", Message: "up"})
	if chs := sys.Channels(); len(chs) != 1 || chs[0] != ChannelSystem {
		t.Fatalf("channels = %v, want [system]", chs)
	}
}

func TestEventRoundTripPreservesPrecision(t *testing.T) {
	t.Parallel()

	price := decimal.RequireFromString("50001.123456789012345678")
	qty := decimal.RequireFromString("0.000000000000000001")
	ev := New(types.VenueHyperliquid, &OrderUpdate{
		Order: types.Order{
			Venue:    types.VenueHyperliquid,
			Symbol:   "BTC-PERP",
			Side:     types.SideBuy,
			Type:     types.OrderTypeLimit,
			Quantity: qty,
			Price:    &price,
			ClientID: "c-1",
			Status:   types.OrderStatusOpen,
		},
	})

	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"50001.123456789012345678"`) {
		t.Fatalf("price not serialized as quoted string: %s", raw)
	}

	var back Event
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.ID != ev.ID || back.Type != TypeOrderUpdate || back.Venue != types.VenueHyperliquid {
		t.Fatalf("envelope mismatch: %+v", back)
	}

	ou, ok := back.Payload.(*OrderUpdate)
	if !ok {
		t.Fatalf("payload type %T, want *OrderUpdate", back.Payload)
	}
	if !ou.Order.Quantity.Equal(qty) {
		t.Fatalf("quantity %s, want %s", ou.Order.Quantity, qty)
	}
	if ou.Order.Price == nil || !ou.Order.Price.Equal(price) {
		t.Fatalf("price %v, want %s", ou.Order.Price, price)
	}
}

func TestEventUnmarshalRejectsUnknownType(t *testing.T) {
	t.Parallel()

	var ev Event
	err := json.Unmarshal([]byte(`{"event_id":"x","event_type":"mystery","payload":{}}`), &ev)
	if err == nil {
		t.Fatal("expected error for unknown event type")
	}
}
