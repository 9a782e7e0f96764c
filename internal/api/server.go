// Package api exposes the gateway's REST and WebSocket surface.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"perp-gateway/internal/config"
	"perp-gateway/internal/hub"
	"perp-gateway/internal/metrics"
	"perp-gateway/internal/orchestrator"
)

// Server runs the HTTP/WebSocket API.
type Server struct {
	cfg      config.ServerConfig
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewServer wires the router: versioned REST routes under /api/v1,
// Prometheus metrics at /metrics, and WebSocket endpoints under /ws.
func NewServer(cfg config.ServerConfig, orch *orchestrator.Orchestrator, h *hub.Hub, logger *slog.Logger) *Server {
	handlers := NewHandlers(orch, h, cfg.AllowedOrigins, logger)

	r := mux.NewRouter()
	r.Use(correlationID)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(requestLogger(logger.With("component", "api")))

	// trading; the fixed paths register before the {client_order_id} catch-all
	v1.HandleFunc("/trading/orders", handlers.placeOrder).Methods(http.MethodPost)
	v1.HandleFunc("/trading/orders", handlers.orderHistory).Methods(http.MethodGet)
	v1.HandleFunc("/trading/orders/active", handlers.openOrders).Methods(http.MethodGet)
	v1.HandleFunc("/trading/orders/cancel-all", handlers.cancelAllOrders).Methods(http.MethodPost)
	v1.HandleFunc("/trading/orders/{client_order_id}", handlers.getOrder).Methods(http.MethodGet)
	v1.HandleFunc("/trading/orders/{client_order_id}", handlers.cancelOrder).Methods(http.MethodDelete)

	// positions and balances
	v1.HandleFunc("/positions", handlers.positions).Methods(http.MethodGet)
	v1.HandleFunc("/positions/{symbol}", handlers.position).Methods(http.MethodGet)
	v1.HandleFunc("/positions/{symbol}/close", handlers.closePosition).Methods(http.MethodPost)
	v1.HandleFunc("/balances", handlers.balances).Methods(http.MethodGet)

	// market data
	v1.HandleFunc("/market-data/ticker/{symbol}", handlers.ticker).Methods(http.MethodGet)
	v1.HandleFunc("/market-data/orderbook/{symbol}", handlers.orderBook).Methods(http.MethodGet)
	v1.HandleFunc("/market-data/klines/{symbol}", handlers.klines).Methods(http.MethodGet)
	v1.HandleFunc("/market-data/trades/{symbol}", handlers.trades).Methods(http.MethodGet)
	v1.HandleFunc("/market-data/symbols", handlers.symbols).Methods(http.MethodGet)
	v1.HandleFunc("/market-data/subscribe", handlers.subscribeMarketData).Methods(http.MethodPost)
	v1.HandleFunc("/market-data/unsubscribe", handlers.unsubscribeMarketData).Methods(http.MethodPost)

	// venue administration
	v1.HandleFunc("/venues", handlers.venues).Methods(http.MethodGet)
	v1.HandleFunc("/venues/{venue}/status", handlers.venueStatus).Methods(http.MethodGet)
	v1.HandleFunc("/venues/{venue}/symbols", handlers.venueSymbols).Methods(http.MethodGet)
	v1.HandleFunc("/venues/{venue}/connect", handlers.connectVenue).Methods(http.MethodPost)
	v1.HandleFunc("/venues/{venue}/disconnect", handlers.disconnectVenue).Methods(http.MethodPost)

	v1.HandleFunc("/health", handlers.health).Methods(http.MethodGet)
	v1.HandleFunc("/stats", handlers.stats).Methods(http.MethodGet)

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	// streaming
	r.HandleFunc("/ws/market-data", handlers.handleWebSocket(hub.TopicMarketData))
	r.HandleFunc("/ws/orders", handlers.handleWebSocket(hub.TopicOrders))
	r.HandleFunc("/ws/positions", handlers.handleWebSocket(hub.TopicPositions))
	r.HandleFunc("/ws/portfolio", handlers.handleWebSocket(hub.TopicPortfolio))

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", correlationHeader},
	})

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      c.Handler(r),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Server{
		cfg:      cfg,
		handlers: handlers,
		server:   server,
		logger:   logger.With("component", "api_server"),
	}
}

// Start blocks serving requests until the listener closes.
func (s *Server) Start() error {
	s.logger.Info("api server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and closes the listener.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping api server")
	return s.server.Shutdown(ctx)
}
