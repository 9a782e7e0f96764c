// Package hub fans gateway events out to client WebSocket connections.
//
// Clients connect to a topic endpoint, then manage subscriptions over the
// socket. The hub relays bus events to subscribed clients and serves a
// snapshot when a subscription starts, so clients render immediately
// instead of waiting for the next update.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"perp-gateway/internal/bus"
	"perp-gateway/internal/events"
	"perp-gateway/internal/metrics"
)

// Topic is a client-facing stream name.
type Topic string

const (
	TopicMarketData Topic = "market_data"
	TopicOrders     Topic = "orders"
	TopicPositions  Topic = "positions"
	TopicPortfolio  Topic = "portfolio"
)

// Valid reports whether t is a known topic.
func (t Topic) Valid() bool {
	switch t {
	case TopicMarketData, TopicOrders, TopicPositions, TopicPortfolio:
		return true
	}
	return false
}

// Message is the envelope for everything the hub sends to clients.
type Message struct {
	Type      string    `json:"type"`
	Topic     Topic     `json:"topic,omitempty"`
	Symbol    string    `json:"symbol,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// SnapshotFunc returns the current state for a topic, sent to a client
// right after it subscribes. A non-empty symbol narrows a market-data
// snapshot to one pair. May return nil when no snapshot applies.
type SnapshotFunc func(topic Topic, symbol string) any

type outbound struct {
	topic  Topic
	symbol string
	data   []byte
}

// Hub manages client connections and broadcasts topic messages to them.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan outbound
	snapshot   SnapshotFunc
	logger     *slog.Logger

	subs []*bus.Subscription
	b    bus.Bus

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a hub. snapshot may be nil.
func New(snapshot SnapshotFunc, logger *slog.Logger) *Hub {
	if snapshot == nil {
		snapshot = func(Topic, string) any { return nil }
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan outbound, 256),
		snapshot:   snapshot,
		logger:     logger.With("component", "hub"),
		done:       make(chan struct{}),
	}
}

// Start launches the hub loop and wires the bus relay.
func (h *Hub) Start(b bus.Bus) {
	h.ctx, h.cancel = context.WithCancel(context.Background())
	h.b = b
	h.subs = []*bus.Subscription{
		b.Subscribe(events.ChannelMarketData, h.relay),
		b.Subscribe(events.ChannelOrders, h.relay),
		b.Subscribe(events.ChannelPositions, h.relay),
		b.Subscribe(events.ChannelBalances, h.relay),
		b.Subscribe(events.ChannelSystem, h.relay),
	}
	go h.run()
}

// Stop disconnects every client and stops the loop.
func (h *Hub) Stop() {
	if h.cancel == nil {
		return
	}
	for _, sub := range h.subs {
		h.b.Unsubscribe(sub)
	}
	h.subs = nil
	h.cancel()
	<-h.done
}

// enlist and drop hand a client to the hub loop. Once the loop has
// exited the hand-off is abandoned, so connection teardown never blocks
// on a stopped hub.
func (h *Hub) enlist(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

func (h *Hub) drop(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) run() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			metrics.HubConnections.Set(0)
			return

		case client := <-h.register:
			h.clients[client] = true
			metrics.HubConnections.Set(float64(len(h.clients)))
			h.logger.Info("client connected", "client_id", client.id, "count", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			metrics.HubConnections.Set(float64(len(h.clients)))
			h.logger.Info("client disconnected", "client_id", client.id, "count", len(h.clients))

		case msg := <-h.broadcast:
			for client := range h.clients {
				if !client.wants(msg.topic, msg.symbol) {
					continue
				}
				select {
				case client.send <- msg.data:
					metrics.HubMessagesSent.WithLabelValues(string(msg.topic)).Inc()
				default:
					// client can't keep up
					close(client.send)
					delete(h.clients, client)
					metrics.HubConnections.Set(float64(len(h.clients)))
				}
			}
		}
	}
}

// Broadcast queues a message for every client subscribed to the topic.
// symbol narrows market data fan-out; empty matches everyone.
func (h *Hub) Broadcast(topic Topic, symbol string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "topic", topic, "error", err)
		return
	}
	select {
	case h.broadcast <- outbound{topic: topic, symbol: symbol, data: data}:
	default:
		h.logger.Warn("broadcast queue full, dropping message", "topic", topic)
	}
}

// relay converts a bus event into a client message on the matching topic.
func (h *Hub) relay(_ context.Context, ev events.Event) {
	var (
		topic  Topic
		symbol string
	)
	switch p := ev.Payload.(type) {
	case *events.MarketDataUpdate:
		topic, symbol = TopicMarketData, p.MarketData.Symbol
	case *events.OrderUpdate:
		topic = TopicOrders
	case *events.PositionUpdate:
		topic = TopicPositions
	case *events.BalanceUpdate:
		topic = TopicPortfolio
	case *events.SystemUpdate:
		// only the portfolio metrics feed has a client-facing topic
		if p.Component != "portfolio" {
			return
		}
		topic = TopicPortfolio
	default:
		return
	}

	h.Broadcast(topic, symbol, Message{
		Type:      string(ev.Type),
		Topic:     topic,
		Symbol:    symbol,
		Timestamp: ev.Timestamp,
		Data:      ev.Payload,
	})
}
