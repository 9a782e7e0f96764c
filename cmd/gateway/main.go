// Perp Gateway — a unified trading gateway for perpetual futures venues.
//
// Architecture:
//
//	main.go                    — entry point: config, wiring, signal handling
//	orchestrator/              — routes unified operations to venues behind circuit breakers
//	venue/                     — adapter contract plus shared session/rate-limit plumbing
//	venue/{hyperliquid,lighter,tradexyz} — one adapter per venue
//	bus/                       — event bus: in-process, or Redis pub/sub for fan-out
//	portfolio/                 — cross-venue position/balance consolidation
//	marketdata/                — per-venue price cache and best-quote aggregation
//	hub/                       — client WebSocket fan-out with topic subscriptions
//	api/                       — REST surface under /api/v1 plus /ws endpoints
//
// Clients talk one protocol; adapters translate it per venue. Everything
// that happens — fills, position changes, price ticks, disconnects — flows
// through the event bus, so the REST surface, the client WebSocket hub, and
// the portfolio view all observe the same stream.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"perp-gateway/internal/api"
	"perp-gateway/internal/bus"
	"perp-gateway/internal/config"
	"perp-gateway/internal/hub"
	"perp-gateway/internal/marketdata"
	"perp-gateway/internal/orchestrator"
	"perp-gateway/internal/portfolio"
	"perp-gateway/internal/venue"
	"perp-gateway/internal/venue/hyperliquid"
	"perp-gateway/internal/venue/lighter"
	"perp-gateway/internal/venue/tradexyz"
	"perp-gateway/pkg/types"
)

const shutdownGrace = 30 * time.Second

func main() {
	defaultCfg := "configs/config.yaml"
	if p := os.Getenv("GATEWAY_CONFIG"); p != "" {
		defaultCfg = p
	}
	cfgPath := flag.String("config", defaultCfg, "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", *cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Set up logger
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	// Event bus: Redis when configured, in-process otherwise.
	var eventBus bus.Bus
	if cfg.Redis.Enabled {
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Error("invalid redis url", "error", err)
			os.Exit(1)
		}
		eventBus = bus.NewRedisBus(logger, redis.NewClient(redisOpts))
		logger.Info("event bus: redis", "addr", redisOpts.Addr)
	} else {
		eventBus = bus.NewMemoryBus(logger)
		logger.Info("event bus: in-process")
	}

	// Venue adapters
	registry := venue.NewRegistry()
	registry.Register(types.VenueHyperliquid, hyperliquid.New)
	registry.Register(types.VenueLighter, lighter.New)
	registry.Register(types.VenueTradeXYZ, tradexyz.New)

	deps := venue.Deps{Bus: eventBus, Logger: logger, WS: cfg.WS}
	var adapters []venue.Adapter
	for _, v := range cfg.EnabledVenues() {
		a, err := registry.Build(v, cfg.Venues[string(v)], deps)
		if err != nil {
			logger.Error("failed to build adapter", "venue", v, "error", err)
			os.Exit(1)
		}
		adapters = append(adapters, a)
	}

	orch := orchestrator.New(adapters, eventBus, cfg, logger)

	// Aggregators, fed by the bus, pulling through the orchestrator.
	prices := marketdata.NewAggregator(marketdata.NewCache(), eventBus, orch.Latency, cfg.Cache.PriceTTL, logger)
	folio := portfolio.NewAggregator(orch, eventBus, cfg.Portfolio, logger)
	orch.AttachMarketData(prices)
	orch.AttachPortfolio(folio)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	if err := orch.Start(ctx); err != nil {
		cancel()
		logger.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}
	cancel()
	prices.Start()
	folio.Start()
	folio.ForceReconcile()

	// Client WebSocket hub with snapshot-on-subscribe.
	wsHub := hub.New(func(topic hub.Topic, symbol string) any {
		switch topic {
		case hub.TopicMarketData:
			if symbol != "" {
				if agg := prices.Get(symbol); agg != nil {
					return agg
				}
				return nil
			}
			return prices.Symbols()
		case hub.TopicOrders:
			return folio.ActiveOrders()
		case hub.TopicPositions:
			return folio.ConsolidatedPositions()
		case hub.TopicPortfolio:
			return map[string]any{
				"metrics":  folio.Metrics(),
				"balances": folio.ConsolidatedBalances(),
			}
		}
		return nil
	}, logger)
	wsHub.Start(eventBus)

	apiServer := api.NewServer(cfg.Server, orch, wsHub, logger)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("api server failed", "error", err)
		}
	}()

	logger.Info("perp gateway started",
		"addr", cfg.Server.Addr,
		"venues", cfg.EnabledVenues(),
		"redis", cfg.Redis.Enabled,
	)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancelShutdown()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop api server", "error", err)
	}
	wsHub.Stop()
	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
