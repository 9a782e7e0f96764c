package hyperliquid

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"perp-gateway/internal/venue"
	"perp-gateway/pkg/types"
)

// client wraps a resty HTTP client with rate limiting, retry, and auth.
// Public reads hit POST /info; trading goes through signed POST /exchange.
type client struct {
	http   *resty.Client
	auth   *auth
	rl     *venue.RateLimiter
	logger *slog.Logger
}

func newClient(baseURL string, auth *auth, logger *slog.Logger) *client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &client{
		http:   httpClient,
		auth:   auth,
		rl:     venue.NewRateLimiter(),
		logger: logger,
	}
}

// info posts one polymorphic read request and decodes into out.
func (c *client) info(ctx context.Context, req infoRequest, out any) error {
	if err := c.rl.Read.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(out).
		Post("/info")
	if err != nil {
		return fmt.Errorf("info %s: %w", req.Type, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return c.statusError(resp, "info "+req.Type)
	}
	return nil
}

// exchange posts one signed trading action.
func (c *client) exchange(ctx context.Context, action any, result *exchangeResponse) error {
	body, err := json.Marshal(exchangeRequest{Action: action})
	if err != nil {
		return fmt.Errorf("marshal exchange action: %w", err)
	}
	headers, err := c.auth.headers("POST", "/exchange", string(body))
	if err != nil {
		return err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(json.RawMessage(body)).
		SetResult(result).
		Post("/exchange")
	if err != nil {
		return fmt.Errorf("exchange: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return c.statusError(resp, "exchange")
	}
	if result.Status != "ok" {
		return c.actionError(result.Error)
	}
	return nil
}

// statusError maps an HTTP failure onto the error taxonomy.
func (c *client) statusError(resp *resty.Response, op string) error {
	switch resp.StatusCode() {
	case http.StatusUnauthorized, http.StatusForbidden:
		return types.NewAuthenticationError(types.VenueHyperliquid,
			fmt.Errorf("%s: status %d: %s", op, resp.StatusCode(), resp.String()))
	case http.StatusTooManyRequests:
		return types.NewRateLimitError(types.VenueHyperliquid, op)
	}
	return types.NewVenueConnectionError(types.VenueHyperliquid,
		fmt.Errorf("%s: status %d: %s", op, resp.StatusCode(), resp.String()))
}

// actionError maps a venue-level rejection string onto the taxonomy.
func (c *client) actionError(msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "insufficient"):
		return types.NewInsufficientBalanceError(types.VenueHyperliquid, "USDC")
	case strings.Contains(lower, "not found") || strings.Contains(lower, "unknown oid"):
		return types.NewOrderNotFoundError("")
	}
	return types.NewVenueConnectionError(types.VenueHyperliquid, fmt.Errorf("exchange rejected: %s", msg))
}

func (c *client) meta(ctx context.Context) (*metaResponse, error) {
	var out metaResponse
	if err := c.info(ctx, infoRequest{Type: "meta"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) l2Book(ctx context.Context, coin string) (*l2BookResponse, error) {
	var out l2BookResponse
	if err := c.info(ctx, infoRequest{Type: "l2Book", Coin: coin}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) ticker(ctx context.Context, coin string) (*tickerResponse, error) {
	var out tickerResponse
	if err := c.info(ctx, infoRequest{Type: "ticker", Coin: coin}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) candles(ctx context.Context, coin, interval string, start, end time.Time) ([]candle, error) {
	req := infoRequest{Type: "candleSnapshot", Coin: coin, Interval: interval}
	if !start.IsZero() {
		req.StartMs = start.UnixMilli()
	}
	if !end.IsZero() {
		req.EndMs = end.UnixMilli()
	}
	var out []candle
	if err := c.info(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) recentTrades(ctx context.Context, coin string) ([]publicTrade, error) {
	var out []publicTrade
	if err := c.info(ctx, infoRequest{Type: "recentTrades", Coin: coin}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) accountState(ctx context.Context) (*clearinghouseState, error) {
	var out clearinghouseState
	req := infoRequest{Type: "clearinghouseState", User: c.auth.apiKey}
	if err := c.info(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) openOrders(ctx context.Context) ([]orderStateWire, error) {
	var out []orderStateWire
	req := infoRequest{Type: "openOrders", User: c.auth.apiKey}
	if err := c.info(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) orderStatus(ctx context.Context, oid string) (*orderStateWire, error) {
	var out orderStateWire
	req := infoRequest{Type: "orderStatus", User: c.auth.apiKey, Coin: oid}
	if err := c.info(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) placeOrder(ctx context.Context, w wireOrder) (*orderStatusWire, error) {
	if err := c.rl.Order.Wait(ctx); err != nil {
		return nil, err
	}

	var result exchangeResponse
	if err := c.exchange(ctx, orderAction{Type: "order", Orders: []wireOrder{w}}, &result); err != nil {
		return nil, err
	}
	statuses := result.Response.Data.Statuses
	if len(statuses) == 0 {
		return nil, types.NewVenueConnectionError(types.VenueHyperliquid,
			fmt.Errorf("exchange returned no order status"))
	}
	if statuses[0].Error != "" {
		return nil, c.actionError(statuses[0].Error)
	}
	return &statuses[0], nil
}

func (c *client) cancelOrder(ctx context.Context, coin, oid string) error {
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return err
	}

	var result exchangeResponse
	return c.exchange(ctx, cancelAction{Type: "cancel", Coin: coin, Oid: oid}, &result)
}
