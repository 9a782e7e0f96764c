// session.go implements the reconnecting WebSocket session shared by all
// venue adapters.
//
// A Session owns one socket to a venue's stream endpoint. It handles the
// connection lifecycle, subscription replay, heartbeats, and automatic
// reconnection with full-jitter exponential backoff (base x 2^attempt,
// capped). After the configured number of consecutive failed attempts the
// session gives up and reports an error status; a read deadline ensures
// silent server failures are detected within ~2 missed pings.
package venue

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"perp-gateway/pkg/types"
)

const (
	sessionWriteTimeout = 10 * time.Second
	readTimeoutFactor   = 3 // read deadline = heartbeat interval x factor
)

// SessionConfig tunes one session's heartbeat and reconnect policy.
type SessionConfig struct {
	URL               string
	HeartbeatInterval time.Duration
	ReconnectBase     time.Duration
	ReconnectMax      time.Duration
	MaxAttempts       int
}

// StatusFunc is notified on every connection state change.
type StatusFunc func(status types.ConnectionStatus, reason string)

// Session manages a single venue WebSocket connection. Messages are
// dispatched sequentially to the handler, preserving the venue's ordering.
// Subscriptions registered through Subscribe are replayed after every
// reconnect.
type Session struct {
	cfg     SessionConfig
	venue   types.Venue
	handler func(data []byte)
	onState StatusFunc
	logger  *slog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex

	// Track subscription payloads for automatic replay on reconnect,
	// keyed by caller-chosen identity (usually symbol or stream name).
	subscribedMu sync.RWMutex
	subscribed   map[string]any

	status  atomic.Value // types.ConnectionStatus
	lastMsg atomic.Int64 // unix nanos of last received message
}

// NewSession builds a session. handler receives every raw message; onState
// may be nil.
func NewSession(v types.Venue, cfg SessionConfig, handler func([]byte), onState StatusFunc, logger *slog.Logger) *Session {
	s := &Session{
		cfg:        cfg,
		venue:      v,
		handler:    handler,
		onState:    onState,
		subscribed: make(map[string]any),
		logger:     logger.With("component", "ws_session", "venue", v),
	}
	s.status.Store(types.StatusDisconnected)
	return s
}

// Status returns the current connection state.
func (s *Session) Status() types.ConnectionStatus {
	return s.status.Load().(types.ConnectionStatus)
}

// LastMessageAt returns when the last message arrived, or the zero time.
func (s *Session) LastMessageAt() time.Time {
	n := s.lastMsg.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Healthy reports whether the session is connected and recently active.
func (s *Session) Healthy() bool {
	if s.Status() != types.StatusConnected {
		return false
	}
	last := s.LastMessageAt()
	return !last.IsZero() && time.Since(last) < s.readTimeout()
}

func (s *Session) readTimeout() time.Duration {
	return s.cfg.HeartbeatInterval * readTimeoutFactor
}

// Run connects and maintains the connection until ctx is cancelled or the
// reconnect budget is exhausted.
func (s *Session) Run(ctx context.Context) error {
	attempt := 0

	for {
		if attempt == 0 {
			s.setStatus(types.StatusConnecting, "")
		} else {
			s.setStatus(types.StatusReconnecting, "")
		}

		connected, err := s.connectAndRead(ctx)
		if ctx.Err() != nil {
			s.setStatus(types.StatusDisconnected, "shutdown")
			return ctx.Err()
		}

		// The budget counts consecutive failed attempts; an established
		// connection restarts it.
		if connected {
			attempt = 0
		}
		attempt++
		if attempt >= s.cfg.MaxAttempts {
			s.setStatus(types.StatusError, fmt.Sprintf("gave up after %d attempts", attempt))
			return types.NewWebSocketError(s.venue,
				fmt.Errorf("reconnect budget exhausted after %d attempts: %w", attempt, err))
		}

		wait := s.backoff(attempt)
		s.logger.Warn("websocket disconnected, reconnecting",
			"error", err,
			"attempt", attempt,
			"backoff", wait,
		)

		select {
		case <-ctx.Done():
			s.setStatus(types.StatusDisconnected, "shutdown")
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// backoff returns a full-jitter delay: uniform in [0, min(base x 2^attempt, max)].
func (s *Session) backoff(attempt int) time.Duration {
	ceil := s.cfg.ReconnectBase << uint(attempt-1)
	if ceil > s.cfg.ReconnectMax || ceil <= 0 {
		ceil = s.cfg.ReconnectMax
	}
	return time.Duration(rand.Int63n(int64(ceil) + 1))
}

// Subscribe registers a subscription payload under key and sends it if the
// socket is up. The payload is replayed after every reconnect until
// Unsubscribe removes it.
func (s *Session) Subscribe(key string, payload any) error {
	s.subscribedMu.Lock()
	s.subscribed[key] = payload
	s.subscribedMu.Unlock()

	if s.Status() != types.StatusConnected {
		return nil // replayed on connect
	}
	return s.WriteJSON(payload)
}

// Unsubscribe drops the stored subscription and sends the unsubscribe
// payload when the socket is up.
func (s *Session) Unsubscribe(key string, payload any) error {
	s.subscribedMu.Lock()
	delete(s.subscribed, key)
	s.subscribedMu.Unlock()

	if s.Status() != types.StatusConnected {
		return nil
	}
	return s.WriteJSON(payload)
}

// Close tears down the current socket. Run's read loop observes the closed
// connection and exits.
func (s *Session) Close() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// connectAndRead dials, replays subscriptions, and reads until the
// connection drops. connected reports whether the dial succeeded.
func (s *Session) connectAndRead(ctx context.Context) (connected bool, _ error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	defer func() {
		s.connMu.Lock()
		conn.Close()
		s.conn = nil
		s.connMu.Unlock()
	}()

	s.setStatus(types.StatusConnected, "")
	s.lastMsg.Store(time.Now().UnixNano())
	s.logger.Info("websocket connected")

	if err := s.replaySubscriptions(); err != nil {
		return true, fmt.Errorf("replay subscriptions: %w", err)
	}

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go s.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return true, ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(s.readTimeout()))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read: %w", err)
		}

		s.lastMsg.Store(time.Now().UnixNano())
		s.handler(msg)
	}
}

func (s *Session) replaySubscriptions() error {
	s.subscribedMu.RLock()
	payloads := make([]any, 0, len(s.subscribed))
	for _, p := range s.subscribed {
		payloads = append(payloads, p)
	}
	s.subscribedMu.RUnlock()

	for _, p := range payloads {
		if err := s.WriteJSON(p); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.writeMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

// WriteJSON sends v on the socket with a write deadline.
func (s *Session) WriteJSON(v any) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(sessionWriteTimeout))
	return s.conn.WriteJSON(v)
}

func (s *Session) writeMessage(msgType int, data []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(sessionWriteTimeout))
	return s.conn.WriteMessage(msgType, data)
}

func (s *Session) setStatus(st types.ConnectionStatus, reason string) {
	prev := s.status.Swap(st)
	if prev == st {
		return
	}
	if s.onState != nil {
		s.onState(st, reason)
	}
}
