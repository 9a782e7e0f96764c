// Package events defines the typed events flowing through the gateway bus
// and the channel taxonomy they are published on.
//
// Every state change in the system is an Event: an immutable envelope with
// a unique ID, a type tag, a timestamp, an optional originating venue, and
// a typed payload. Events publish to the channel derived from their type,
// plus the venue-specific channel when a venue is set.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"perp-gateway/pkg/types"
)

// Type tags the payload kind of an event.
type Type string

const (
	TypeOrderUpdate      Type = "order_update"
	TypePositionUpdate   Type = "position_update"
	TypeBalanceUpdate    Type = "balance_update"
	TypeMarketDataUpdate Type = "market_data_update"
	TypeTradeUpdate      Type = "trade_update"
	TypeConnectionUpdate Type = "connection_update"
	TypeSystemUpdate     Type = "system_update"
)

// Channel is a named bus topic.
type Channel string

const (
	ChannelOrders      Channel = "orders"
	ChannelPositions   Channel = "positions"
	ChannelBalances    Channel = "balances"
	ChannelMarketData  Channel = "market_data"
	ChannelTrades      Channel = "trades"
	ChannelConnections Channel = "connections"
	ChannelSystem      Channel = "system"
)

// ChannelFor returns the canonical channel for an event type.
func ChannelFor(t Type) Channel {
	switch t {
	case TypeOrderUpdate:
		return ChannelOrders
	case TypePositionUpdate:
		return ChannelPositions
	case TypeBalanceUpdate:
		return ChannelBalances
	case TypeMarketDataUpdate:
		return ChannelMarketData
	case TypeTradeUpdate:
		return ChannelTrades
	case TypeConnectionUpdate:
		return ChannelConnections
	}
	return ChannelSystem
}

// VenueChannel returns the per-venue channel for v.
func VenueChannel(v types.Venue) Channel {
	return Channel(v)
}

// Payload is implemented by every event payload type.
type Payload interface {
	Kind() Type
}

// OrderUpdate reports an order lifecycle change. ErrorMessage is set when
// the update is a rejection.
type OrderUpdate struct {
	Order        types.Order `json:"order"`
	ErrorMessage string      `json:"error_message,omitempty"`
}

func (OrderUpdate) Kind() Type { return TypeOrderUpdate }

// PositionUpdate reports a new per-venue position snapshot. A zero-size
// position signals the venue leg was closed.
type PositionUpdate struct {
	Position types.Position `json:"position"`
}

func (PositionUpdate) Kind() Type { return TypePositionUpdate }

// BalanceUpdate reports a new per-venue asset balance.
type BalanceUpdate struct {
	Balance types.Balance `json:"balance"`
}

func (BalanceUpdate) Kind() Type { return TypeBalanceUpdate }

// MarketDataUpdate reports a fresh per-venue market data snapshot.
type MarketDataUpdate struct {
	MarketData types.MarketData `json:"market_data"`
}

func (MarketDataUpdate) Kind() Type { return TypeMarketDataUpdate }

// TradeUpdate reports an executed fill.
type TradeUpdate struct {
	Trade types.Trade `json:"trade"`
}

func (TradeUpdate) Kind() Type { return TypeTradeUpdate }

// ConnectionUpdate reports a venue connection state change.
type ConnectionUpdate struct {
	Venue  types.Venue            `json:"venue"`
	Status types.ConnectionStatus `json:"status"`
	Reason string                 `json:"reason,omitempty"`
}

func (ConnectionUpdate) Kind() Type { return TypeConnectionUpdate }

// SystemUpdate reports gateway-level operational notices (health summaries,
// breaker trips, shutdown progress).
type SystemUpdate struct {
	Component string         `json:"component"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

func (SystemUpdate) Kind() Type { return TypeSystemUpdate }

// Event is the immutable envelope carried by the bus.
type Event struct {
	ID        string      `json:"event_id"`
	Type      Type        `json:"event_type"`
	Timestamp time.Time   `json:"timestamp"`
	Venue     types.Venue `json:"venue,omitempty"`
	Payload   Payload     `json:"payload"`
}

// New builds an event envelope for the payload, minting an ID and stamping
// the current time.
func New(venue types.Venue, payload Payload) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      payload.Kind(),
		Timestamp: time.Now().UTC(),
		Venue:     venue,
		Payload:   payload,
	}
}

// Channels returns every channel the event should be delivered on: the type
// channel, plus the venue channel when the event names a venue.
func (e Event) Channels() []Channel {
	chs := []Channel{ChannelFor(e.Type)}
	if e.Venue != "" {
		chs = append(chs, VenueChannel(e.Venue))
	}
	return chs
}

// eventJSON is the wire shape; payload stays raw until the type is known.
type eventJSON struct {
	ID        string          `json:"event_id"`
	Type      Type            `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	Venue     types.Venue     `json:"venue,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// UnmarshalJSON decodes the envelope and dispatches the payload on the
// event type, so events round-trip through the broker with concrete
// payload types intact.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode event envelope: %w", err)
	}

	e.ID = raw.ID
	e.Type = raw.Type
	e.Timestamp = raw.Timestamp
	e.Venue = raw.Venue

	var payload Payload
	switch raw.Type {
	case TypeOrderUpdate:
		payload = &OrderUpdate{}
	case TypePositionUpdate:
		payload = &PositionUpdate{}
	case TypeBalanceUpdate:
		payload = &BalanceUpdate{}
	case TypeMarketDataUpdate:
		payload = &MarketDataUpdate{}
	case TypeTradeUpdate:
		payload = &TradeUpdate{}
	case TypeConnectionUpdate:
		payload = &ConnectionUpdate{}
	case TypeSystemUpdate:
		payload = &SystemUpdate{}
	default:
		return fmt.Errorf("unknown event type %q", raw.Type)
	}

	if len(raw.Payload) > 0 {
		if err := json.Unmarshal(raw.Payload, payload); err != nil {
			return fmt.Errorf("decode %s payload: %w", raw.Type, err)
		}
	}
	e.Payload = payload
	return nil
}
