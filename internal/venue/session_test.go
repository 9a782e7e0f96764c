package venue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"perp-gateway/pkg/types"
)

func sessionLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// A venue that accepts connections but drops them immediately. The session
// must keep reconnecting indefinitely: every established connection
// restarts the attempt count, so a small budget only limits consecutive
// failures, not lifetime disconnects.
func TestRunReconnectBudgetResetsAfterConnect(t *testing.T) {
	t.Parallel()

	var accepted atomic.Int32
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted.Add(1)
		conn.Close()
	}))
	defer srv.Close()

	s := NewSession(types.VenueHyperliquid, SessionConfig{
		URL:               "ws" + strings.TrimPrefix(srv.URL, "http"),
		HeartbeatInterval: 50 * time.Millisecond,
		ReconnectBase:     time.Millisecond,
		ReconnectMax:      5 * time.Millisecond,
		MaxAttempts:       2,
	}, func([]byte) {}, nil, sessionLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	// far more drops than the budget allows
	deadline := time.Now().Add(5 * time.Second)
	for accepted.Load() < 6 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d connections before deadline, session gave up early", accepted.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if s.Status() != types.StatusDisconnected {
		t.Fatalf("status %s, want disconnected", s.Status())
	}
}

func TestRunGivesUpWhenDialKeepsFailing(t *testing.T) {
	t.Parallel()

	s := NewSession(types.VenueLighter, SessionConfig{
		URL:               "ws://127.0.0.1:1", // nothing listens here
		HeartbeatInterval: 50 * time.Millisecond,
		ReconnectBase:     time.Millisecond,
		ReconnectMax:      5 * time.Millisecond,
		MaxAttempts:       2,
	}, func([]byte) {}, nil, sessionLogger())

	err := s.Run(context.Background())
	ge := types.AsGatewayError(err)
	if ge == nil || ge.Code != types.ErrCodeWebSocket {
		t.Fatalf("err = %v, want WEBSOCKET_ERROR", err)
	}
	if s.Status() != types.StatusError {
		t.Fatalf("status %s, want error", s.Status())
	}
}
