package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendQueueSize  = 256
)

// clientCommand is what clients send over the socket. pair and symbol
// are interchangeable; a bare pair implies the market_data topic.
type clientCommand struct {
	Action string `json:"action"` // subscribe, unsubscribe, ping
	Topic  Topic  `json:"topic,omitempty"`
	Pair   string `json:"pair,omitempty"`
	Symbol string `json:"symbol,omitempty"`
}

func (cmd *clientCommand) pair() string {
	if cmd.Pair != "" {
		return cmd.Pair
	}
	return cmd.Symbol
}

// Client is one WebSocket connection with its topic subscriptions.
// Market data subscriptions carry an optional symbol filter; a topic
// subscribed with no symbols receives everything on it.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu      sync.RWMutex
	topics  map[Topic]bool
	symbols map[string]bool
}

// NewClient registers a connection with the hub and starts its pumps.
// topic, when non-empty, is subscribed immediately so topic-specific
// endpoints stream without a subscribe command.
func NewClient(h *Hub, conn *websocket.Conn, topic Topic) *Client {
	c := &Client{
		id:      uuid.NewString(),
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendQueueSize),
		topics:  make(map[Topic]bool),
		symbols: make(map[string]bool),
	}
	if topic.Valid() {
		c.topics[topic] = true
	}

	h.enlist(c)
	go c.writePump()
	go c.readPump()

	subscriptions := []string{}
	if topic.Valid() {
		subscriptions = append(subscriptions, string(topic))
	}
	c.sendMessage(Message{
		Type:      "connection_established",
		Timestamp: time.Now().UTC(),
		Data: map[string]any{
			"connection_id": c.id,
			"subscriptions": subscriptions,
		},
	})
	if topic.Valid() {
		c.sendSnapshot(topic, "")
	}
	return c
}

// wants reports whether the client should receive a message on topic.
func (c *Client) wants(topic Topic, symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.topics[topic] {
		return false
	}
	if topic == TopicMarketData && symbol != "" && len(c.symbols) > 0 {
		return c.symbols[symbol]
	}
	return true
}

func (c *Client) subscribe(topic Topic, symbol string) {
	c.mu.Lock()
	c.topics[topic] = true
	if topic == TopicMarketData && symbol != "" {
		c.symbols[symbol] = true
	}
	c.mu.Unlock()
}

func (c *Client) unsubscribe(topic Topic, symbol string) {
	c.mu.Lock()
	if topic == TopicMarketData && symbol != "" {
		delete(c.symbols, symbol)
	} else {
		delete(c.topics, topic)
	}
	c.mu.Unlock()
}

// sendMessage marshals and queues a message for this client alone.
func (c *Client) sendMessage(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.logger.Error("marshal client message", "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) sendSnapshot(topic Topic, symbol string) {
	data := c.hub.snapshot(topic, symbol)
	if data == nil {
		return
	}
	c.sendMessage(Message{
		Type:      "snapshot",
		Topic:     topic,
		Symbol:    symbol,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}

func (c *Client) handleCommand(raw []byte) {
	var cmd clientCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		c.sendMessage(Message{
			Type:      "error",
			Timestamp: time.Now().UTC(),
			Data:      map[string]any{"message": "malformed command"},
		})
		return
	}

	topic, symbol := cmd.Topic, cmd.pair()
	if topic == "" && symbol != "" {
		topic = TopicMarketData
	}

	switch cmd.Action {
	case "ping":
		c.sendMessage(Message{Type: "pong", Timestamp: time.Now().UTC()})
	case "subscribe":
		if !topic.Valid() {
			c.sendMessage(Message{
				Type:      "error",
				Timestamp: time.Now().UTC(),
				Data:      map[string]any{"message": "unknown topic: " + string(topic)},
			})
			return
		}
		c.subscribe(topic, symbol)
		c.sendMessage(Message{
			Type:      "subscribed",
			Topic:     topic,
			Symbol:    symbol,
			Timestamp: time.Now().UTC(),
		})
		c.sendSnapshot(topic, symbol)
	case "unsubscribe":
		c.unsubscribe(topic, symbol)
		c.sendMessage(Message{
			Type:      "unsubscribed",
			Topic:     topic,
			Symbol:    symbol,
			Timestamp: time.Now().UTC(),
		})
	default:
		c.sendMessage(Message{
			Type:      "error",
			Timestamp: time.Now().UTC(),
			Data:      map[string]any{"message": "unknown action: " + cmd.Action},
		})
	}
}

// writePump drains the send queue onto the socket and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads subscription commands until the connection drops.
func (c *Client) readPump() {
	defer func() {
		c.hub.drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read error", "client_id", c.id, "error", err)
			}
			break
		}
		c.handleCommand(raw)
	}
}
