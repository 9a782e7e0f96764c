package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"perp-gateway/internal/hub"
	"perp-gateway/internal/orchestrator"
	"perp-gateway/pkg/types"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	orch     *orchestrator.Orchestrator
	hub      *hub.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandlers builds the handler set. allowedOrigins gates WebSocket
// upgrades; empty allows same-host and localhost only.
func NewHandlers(orch *orchestrator.Orchestrator, h *hub.Hub, allowedOrigins []string, logger *slog.Logger) *Handlers {
	return &Handlers{
		orch: orch,
		hub:  h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return isOriginAllowed(r.Header.Get("Origin"), allowedOrigins, r.Host)
			},
		},
		logger: logger.With("component", "api"),
	}
}

// isOriginAllowed checks a WebSocket origin against the allowlist. Without
// an allowlist, same-host and localhost origins pass.
func isOriginAllowed(origin string, allowed []string, reqHost string) bool {
	if origin == "" {
		return true
	}
	if len(allowed) > 0 {
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}

	trimmed := strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
	if strings.EqualFold(trimmed, reqHost) {
		return true
	}
	host := trimmed
	if i := strings.LastIndex(trimmed, ":"); i >= 0 {
		host = trimmed[:i]
	}
	return host == "localhost" || host == "127.0.0.1"
}

// ————————————————————————————————————————————————————————————————————————
// Responses
// ————————————————————————————————————————————————————————————————————————

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorEnvelope is the uniform error response body.
type errorEnvelope struct {
	Error         types.ErrorCode `json:"error"`
	Message       string          `json:"message"`
	Details       map[string]any  `json:"details,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ge := types.AsGatewayError(err)
	if ge == nil {
		// transport noise stays opaque to clients
		h.logger.Error("internal error", "error", err, "path", r.URL.Path)
		ge = &types.GatewayError{Code: "INTERNAL_ERROR", Message: "internal error"}
	}
	writeJSON(w, ge.HTTPStatus(), errorEnvelope{
		Error:         ge.Code,
		Message:       ge.Message,
		Details:       ge.Details,
		CorrelationID: correlationFrom(r.Context()),
	})
}

func (h *Handlers) badRequest(w http.ResponseWriter, r *http.Request, field, reason string) {
	h.writeError(w, r, types.NewOrderValidationError(field, reason))
}

// ————————————————————————————————————————————————————————————————————————
// Query helpers
// ————————————————————————————————————————————————————————————————————————

// queryVenue parses an optional ?venue= parameter.
func queryVenue(r *http.Request) (*types.Venue, error) {
	raw := r.URL.Query().Get("venue")
	if raw == "" {
		return nil, nil
	}
	v := types.Venue(raw)
	if !v.Valid() {
		return nil, types.NewConfigurationError("unknown venue: " + raw)
	}
	return &v, nil
}

// pathVenue parses the {venue} path variable.
func pathVenue(r *http.Request) (types.Venue, error) {
	raw := mux.Vars(r)["venue"]
	v := types.Venue(raw)
	if !v.Valid() {
		return "", types.NewConfigurationError("unknown venue: " + raw)
	}
	return v, nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func queryTime(r *http.Request, key string) time.Time {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms)
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	return time.Time{}
}

// ————————————————————————————————————————————————————————————————————————
// Trading
// ————————————————————————————————————————————————————————————————————————

func (h *Handlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	var order types.Order
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		h.badRequest(w, r, "body", "malformed order payload")
		return
	}

	placed, err := h.orch.PlaceOrder(r.Context(), &order)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, placed)
}

func (h *Handlers) openOrders(w http.ResponseWriter, r *http.Request) {
	v, err := queryVenue(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	orders, err := h.orch.GetOpenOrders(r.Context(), v, r.URL.Query().Get("symbol"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if orders == nil {
		orders = []types.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handlers) orderHistory(w http.ResponseWriter, r *http.Request) {
	v, err := queryVenue(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	orders := h.orch.OrderHistory(orchestrator.OrderFilter{
		Venue:  v,
		Symbol: r.URL.Query().Get("symbol"),
		Status: types.OrderStatus(r.URL.Query().Get("status")),
		Limit:  queryInt(r, "limit", 100),
		Offset: queryInt(r, "offset", 0),
	})
	if orders == nil {
		orders = []types.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handlers) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orch.GetOrder(r.Context(), mux.Vars(r)["client_order_id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orch.CancelOrder(r.Context(), mux.Vars(r)["client_order_id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handlers) cancelAllOrders(w http.ResponseWriter, r *http.Request) {
	v, err := queryVenue(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	cancelled, err := h.orch.CancelAllOrders(r.Context(), v, r.URL.Query().Get("symbol"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cancelled": cancelled})
}

// ————————————————————————————————————————————————————————————————————————
// Positions and balances
// ————————————————————————————————————————————————————————————————————————

func (h *Handlers) positions(w http.ResponseWriter, r *http.Request) {
	v, err := queryVenue(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	positions, err := h.orch.GetPositions(r.Context(), v)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if positions == nil {
		positions = []types.Position{}
	}
	writeJSON(w, http.StatusOK, positions)
}

func (h *Handlers) position(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	consolidated, legs, err := h.orch.GetPosition(symbol)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"position": consolidated,
		"legs":     legs,
	})
}

type closePositionRequest struct {
	Venue *types.Venue     `json:"venue,omitempty"`
	Size  *decimal.Decimal `json:"size,omitempty"`
}

func (h *Handlers) closePosition(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	var req closePositionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.badRequest(w, r, "body", "malformed close payload")
			return
		}
	}
	if req.Venue != nil && !req.Venue.Valid() {
		h.writeError(w, r, types.NewConfigurationError("unknown venue: "+string(*req.Venue)))
		return
	}

	orders, err := h.orch.ClosePosition(r.Context(), symbol, req.Venue, req.Size)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handlers) balances(w http.ResponseWriter, r *http.Request) {
	v, err := queryVenue(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	balances, err := h.orch.GetBalances(r.Context(), v)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if balances == nil {
		balances = []types.Balance{}
	}
	writeJSON(w, http.StatusOK, balances)
}

// ————————————————————————————————————————————————————————————————————————
// Market data
// ————————————————————————————————————————————————————————————————————————

// ticker serves the aggregated cross-venue snapshot, or a single venue's
// snapshot when ?venue= is given.
func (h *Handlers) ticker(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	v, err := queryVenue(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if v == nil {
		agg, err := h.orch.GetAggregatedMarketData(symbol)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, agg)
		return
	}

	data, err := h.orch.GetMarketData(r.Context(), v, symbol)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(data) == 0 {
		h.writeError(w, r, types.NewMarketDataError(*v, symbol, nil))
		return
	}
	writeJSON(w, http.StatusOK, data[0])
}

func (h *Handlers) orderBook(w http.ResponseWriter, r *http.Request) {
	v, err := queryVenue(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if v == nil {
		h.badRequest(w, r, "venue", "venue is required for order book queries")
		return
	}
	book, err := h.orch.GetOrderBook(r.Context(), *v, mux.Vars(r)["symbol"], queryInt(r, "depth", 20))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *Handlers) klines(w http.ResponseWriter, r *http.Request) {
	v, err := queryVenue(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if v == nil {
		h.badRequest(w, r, "venue", "venue is required for kline queries")
		return
	}
	interval := types.Interval(r.URL.Query().Get("interval"))
	if interval == "" {
		interval = types.Interval1m
	}
	if !interval.Valid() {
		h.badRequest(w, r, "interval", "unknown interval: "+string(interval))
		return
	}

	klines, err := h.orch.GetKlines(r.Context(), *v, mux.Vars(r)["symbol"], interval,
		queryInt(r, "limit", 100), queryTime(r, "start"), queryTime(r, "end"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if klines == nil {
		klines = []types.Kline{}
	}
	writeJSON(w, http.StatusOK, klines)
}

func (h *Handlers) trades(w http.ResponseWriter, r *http.Request) {
	v, err := queryVenue(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if v == nil {
		h.badRequest(w, r, "venue", "venue is required for trade queries")
		return
	}
	trades, err := h.orch.GetRecentTrades(r.Context(), *v, mux.Vars(r)["symbol"], queryInt(r, "limit", 100))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if trades == nil {
		trades = []types.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

func (h *Handlers) symbols(w http.ResponseWriter, r *http.Request) {
	v, err := queryVenue(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	symbols, err := h.orch.GetSymbols(r.Context(), v)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if symbols == nil {
		symbols = []string{}
	}
	writeJSON(w, http.StatusOK, symbols)
}

type subscribeRequest struct {
	Symbols []string `json:"symbols"`
}

func (h *Handlers) subscribeMarketData(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Symbols) == 0 {
		h.badRequest(w, r, "symbols", "at least one symbol is required")
		return
	}
	if err := h.orch.SubscribeMarketData(r.Context(), req.Symbols); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscribed": req.Symbols})
}

func (h *Handlers) unsubscribeMarketData(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Symbols) == 0 {
		h.badRequest(w, r, "symbols", "at least one symbol is required")
		return
	}
	if err := h.orch.UnsubscribeMarketData(r.Context(), req.Symbols); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unsubscribed": req.Symbols})
}

// ————————————————————————————————————————————————————————————————————————
// Venues, health, stats
// ————————————————————————————————————————————————————————————————————————

func (h *Handlers) venues(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orch.VenueStatuses())
}

func (h *Handlers) venueStatus(w http.ResponseWriter, r *http.Request) {
	v, err := pathVenue(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	st, err := h.orch.VenueStatus(v)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handlers) venueSymbols(w http.ResponseWriter, r *http.Request) {
	v, err := pathVenue(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	symbols, err := h.orch.GetSymbols(r.Context(), &v)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if symbols == nil {
		symbols = []string{}
	}
	writeJSON(w, http.StatusOK, symbols)
}

func (h *Handlers) connectVenue(w http.ResponseWriter, r *http.Request) {
	v, err := pathVenue(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.orch.ConnectVenue(r.Context(), v); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"venue": string(v), "status": "connected"})
}

func (h *Handlers) disconnectVenue(w http.ResponseWriter, r *http.Request) {
	v, err := pathVenue(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.orch.DisconnectVenue(r.Context(), v); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"venue": string(v), "status": "disconnected"})
}

func (h *Handlers) health(w http.ResponseWriter, r *http.Request) {
	statuses := h.orch.VenueStatuses()
	healthy := false
	for _, st := range statuses {
		if st.ConnectionStatus == types.StatusConnected {
			healthy = true
			break
		}
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"venues": statuses,
	})
}

func (h *Handlers) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orch.Stats())
}

// ————————————————————————————————————————————————————————————————————————
// WebSocket
// ————————————————————————————————————————————————————————————————————————

// handleWebSocket upgrades the connection and hands it to the hub, with
// the endpoint's topic pre-subscribed.
func (h *Handlers) handleWebSocket(topic hub.Topic) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Error("websocket upgrade failed", "error", err)
			return
		}
		hub.NewClient(h.hub, conn, topic)
	}
}
