// Package orchestrator routes unified trading operations to venue
// adapters, guards each venue behind a circuit breaker, and owns the
// gateway's goroutine lifecycle.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"perp-gateway/internal/bus"
	"perp-gateway/internal/config"
	"perp-gateway/internal/events"
	"perp-gateway/internal/metrics"
	"perp-gateway/internal/venue"
	"perp-gateway/pkg/types"
)

const (
	healthCheckInterval = 30 * time.Second
	healthCheckTimeout  = 3 * time.Second
)

// VenueManager wraps one adapter with a circuit breaker, rolling request
// metrics, and a periodic health check loop. Every adapter call from the
// orchestrator goes through do(), so breaker accounting and latency
// tracking cover the whole surface.
type VenueManager struct {
	adapter venue.Adapter
	brk     *gobreaker.CircuitBreaker
	bus     bus.Bus
	logger  *slog.Logger

	statsMu    sync.Mutex
	requests   int64
	successes  int64
	failures   int64
	latencySum time.Duration
	lastError  string
	lastOK     time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	runMu   sync.Mutex
	running bool
}

func newVenueManager(adapter venue.Adapter, cfg config.BreakerConfig, b bus.Bus, logger *slog.Logger) *VenueManager {
	v := adapter.Venue()
	m := &VenueManager{
		adapter: adapter,
		bus:     b,
		logger:  logger.With("component", "venue_manager", "venue", v),
	}
	m.brk = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(v),
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(cfg.Threshold)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			m.logger.Warn("breaker state change", "from", from.String(), "to", to.String())
			metrics.BreakerState.WithLabelValues(string(v)).Set(breakerGauge(to))
			m.publishSystem("circuit breaker "+to.String(), map[string]any{
				"from": from.String(), "to": to.String(),
			})
		},
	})
	return m
}

func breakerGauge(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 2
	case gobreaker.StateHalfOpen:
		return 1
	}
	return 0
}

// start initializes the adapter and launches the health loop.
func (m *VenueManager) start(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.running {
		return nil
	}

	if err := m.adapter.Initialize(ctx); err != nil {
		return err
	}

	// Private streams keep the portfolio view current between
	// reconciliation pulls. A failed subscription is recoverable through
	// those pulls, so it only logs.
	if err := m.adapter.SubscribeOrderUpdates(ctx); err != nil {
		m.logger.Warn("subscribe order updates", "error", err)
	}
	if err := m.adapter.SubscribePositionUpdates(ctx); err != nil {
		m.logger.Warn("subscribe position updates", "error", err)
	}
	if err := m.adapter.SubscribeBalanceUpdates(ctx); err != nil {
		m.logger.Warn("subscribe balance updates", "error", err)
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.wg.Add(1)
	go m.healthLoop()
	m.running = true
	return nil
}

// stop shuts the adapter down and stops the health loop.
func (m *VenueManager) stop(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return nil
	}

	m.cancel()
	m.wg.Wait()
	m.running = false
	return m.adapter.Shutdown(ctx)
}

func (m *VenueManager) isRunning() bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.running
}

// do runs one adapter call through the breaker and records its outcome.
// Breaker rejections surface as CIRCUIT_BREAKER_ERROR without touching the
// adapter.
func (m *VenueManager) do(ctx context.Context, fn func(context.Context) error) error {
	v := m.adapter.Venue()
	start := time.Now()
	_, err := m.brk.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	elapsed := time.Since(start)

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.VenueRequests.WithLabelValues(string(v), "rejected").Inc()
		return types.NewCircuitBreakerError(v)
	}

	m.statsMu.Lock()
	m.requests++
	m.latencySum += elapsed
	if err != nil {
		m.failures++
		m.lastError = err.Error()
	} else {
		m.successes++
		m.lastOK = time.Now()
	}
	m.statsMu.Unlock()

	metrics.VenueLatency.WithLabelValues(string(v)).Observe(elapsed.Seconds())
	if err != nil {
		metrics.VenueRequests.WithLabelValues(string(v), "error").Inc()
		return err
	}
	metrics.VenueRequests.WithLabelValues(string(v), "ok").Inc()
	return nil
}

// avgLatencyMs returns the rolling mean request latency.
func (m *VenueManager) avgLatencyMs() float64 {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	if m.requests == 0 {
		return 0
	}
	return float64(m.latencySum.Milliseconds()) / float64(m.requests)
}

// status assembles the venue health summary.
func (m *VenueManager) status() types.VenueStatus {
	v := m.adapter.Venue()

	m.statsMu.Lock()
	requests, successes := m.requests, m.successes
	lastError, lastOK := m.lastError, m.lastOK
	failures := m.failures
	var latency float64
	if requests > 0 {
		latency = float64(m.latencySum.Milliseconds()) / float64(requests)
	}
	m.statsMu.Unlock()

	st := types.VenueStatus{
		Venue:     v,
		APIStatus: types.StatusConnected,
		LatencyMs: latency,
		LastError: lastError,
		LastCheck: time.Now().UTC(),
	}
	st.ErrorCount = failures
	if requests > 0 {
		st.SuccessRate = float64(successes) / float64(requests)
	} else {
		st.SuccessRate = 1
	}
	if !lastOK.IsZero() {
		t := lastOK
		st.LastSuccess = &t
	}

	if !m.isRunning() {
		st.ConnectionStatus = types.StatusDisconnected
		st.APIStatus = types.StatusDisconnected
		st.WSStatus = types.StatusDisconnected
		return st
	}

	st.WSStatus = m.adapter.Status()
	if m.brk.State() == gobreaker.StateOpen {
		st.ConnectionStatus = types.StatusError
		st.APIStatus = types.StatusError
	} else {
		st.ConnectionStatus = m.adapter.Status()
	}
	return st
}

// healthy reports whether the venue can serve requests right now.
func (m *VenueManager) healthy() bool {
	return m.isRunning() && m.brk.State() != gobreaker.StateOpen
}

// healthLoop probes the venue REST API periodically. Probes run through
// do(), so sustained failures trip the breaker and recovery closes it.
func (m *VenueManager) healthLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(m.ctx, healthCheckTimeout)
			err := m.do(ctx, m.adapter.HealthCheck)
			cancel()
			if err != nil {
				m.logger.Warn("health check failed", "error", err)
				continue
			}

			// A stream that exhausted its reconnect budget stays in
			// error until something restarts it; a passing REST probe
			// is that signal.
			if m.adapter.Status() == types.StatusError {
				m.restartStream()
			}

			st := m.status()
			m.publishSystem("health check", map[string]any{
				"connection_status": string(st.ConnectionStatus),
				"websocket_status":  string(st.WSStatus),
				"latency_ms":        st.LatencyMs,
				"success_rate":      st.SuccessRate,
			})
		}
	}
}

// restartStream bounces an adapter whose stream session gave up. The
// shutdown/initialize round trip rebuilds the session and replays its
// subscriptions.
func (m *VenueManager) restartStream() {
	ctx, cancel := context.WithTimeout(m.ctx, 30*time.Second)
	defer cancel()

	m.logger.Info("restarting adapter, stream in error state")
	if err := m.adapter.Shutdown(ctx); err != nil {
		m.logger.Warn("adapter shutdown for restart failed", "error", err)
		return
	}
	if err := m.adapter.Initialize(ctx); err != nil {
		m.logger.Warn("adapter restart failed", "error", err)
		return
	}
	m.publishSystem("adapter restarted", map[string]any{"reason": "stream error"})
}

func (m *VenueManager) publishSystem(message string, data map[string]any) {
	ev := events.New(m.adapter.Venue(), &events.SystemUpdate{
		Component: "venue_manager",
		Message:   message,
		Data:      data,
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.bus.Publish(ctx, ev); err != nil {
		m.logger.Warn("publish system update", "error", err)
	}
}
