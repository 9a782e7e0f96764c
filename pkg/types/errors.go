package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is a stable, machine-readable error classification. Codes are
// part of the API contract: clients match on them, and the REST layer maps
// them to HTTP statuses.
type ErrorCode string

const (
	ErrCodeVenueConnection     ErrorCode = "VENUE_CONNECTION_ERROR"
	ErrCodeAuthentication      ErrorCode = "AUTHENTICATION_ERROR"
	ErrCodeOrderValidation     ErrorCode = "ORDER_VALIDATION_ERROR"
	ErrCodeInsufficientBalance ErrorCode = "INSUFFICIENT_BALANCE_ERROR"
	ErrCodeOrderNotFound       ErrorCode = "ORDER_NOT_FOUND_ERROR"
	ErrCodePositionNotFound    ErrorCode = "POSITION_NOT_FOUND_ERROR"
	ErrCodeMarketData          ErrorCode = "MARKET_DATA_ERROR"
	ErrCodeWebSocket           ErrorCode = "WEBSOCKET_ERROR"
	ErrCodeRateLimit           ErrorCode = "RATE_LIMIT_ERROR"
	ErrCodeCircuitBreaker      ErrorCode = "CIRCUIT_BREAKER_ERROR"
	ErrCodeConfiguration       ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeShuttingDown        ErrorCode = "SHUTTING_DOWN"
)

// GatewayError is the semantic error type crossing package boundaries.
// Transport-level failures stay plain wrapped errors; anything a client can
// act on is converted into a GatewayError before it leaves the adapter or
// orchestrator layer.
type GatewayError struct {
	Code    ErrorCode      `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// HTTPStatus maps the error code to a REST response status.
func (e *GatewayError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeOrderValidation, ErrCodeConfiguration, ErrCodeInsufficientBalance:
		return http.StatusBadRequest
	case ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodeOrderNotFound, ErrCodePositionNotFound, ErrCodeMarketData:
		return http.StatusNotFound
	case ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case ErrCodeVenueConnection, ErrCodeWebSocket, ErrCodeCircuitBreaker, ErrCodeShuttingDown:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// WithDetail returns e with an extra detail field set.
func (e *GatewayError) WithDetail(key string, value any) *GatewayError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// AsGatewayError unwraps err into a *GatewayError, or nil.
func AsGatewayError(err error) *GatewayError {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge
	}
	return nil
}

// NewVenueConnectionError reports a failure to reach or stay connected to
// a venue.
func NewVenueConnectionError(venue Venue, err error) *GatewayError {
	return &GatewayError{
		Code:    ErrCodeVenueConnection,
		Message: fmt.Sprintf("venue %s unreachable", venue),
		Details: map[string]any{"venue": string(venue)},
		Err:     err,
	}
}

// NewAuthenticationError reports rejected credentials for a venue.
func NewAuthenticationError(venue Venue, err error) *GatewayError {
	return &GatewayError{
		Code:    ErrCodeAuthentication,
		Message: fmt.Sprintf("authentication with %s failed", venue),
		Details: map[string]any{"venue": string(venue)},
		Err:     err,
	}
}

// NewOrderValidationError reports an order parameter that failed validation.
func NewOrderValidationError(field, reason string) *GatewayError {
	return &GatewayError{
		Code:    ErrCodeOrderValidation,
		Message: reason,
		Details: map[string]any{"field": field},
	}
}

// NewInsufficientBalanceError reports that an order exceeds free collateral.
func NewInsufficientBalanceError(venue Venue, asset string) *GatewayError {
	return &GatewayError{
		Code:    ErrCodeInsufficientBalance,
		Message: fmt.Sprintf("insufficient %s balance on %s", asset, venue),
		Details: map[string]any{"venue": string(venue), "asset": asset},
	}
}

// NewOrderNotFoundError reports an unknown order identifier.
func NewOrderNotFoundError(clientID string) *GatewayError {
	return &GatewayError{
		Code:    ErrCodeOrderNotFound,
		Message: "order not found",
		Details: map[string]any{"client_order_id": clientID},
	}
}

// NewPositionNotFoundError reports a close request for a symbol with no
// open position.
func NewPositionNotFoundError(symbol string) *GatewayError {
	return &GatewayError{
		Code:    ErrCodePositionNotFound,
		Message: fmt.Sprintf("no open position for %s", symbol),
		Details: map[string]any{"symbol": symbol},
	}
}

// NewMarketDataError reports a market data fetch or parse failure.
func NewMarketDataError(venue Venue, symbol string, err error) *GatewayError {
	return &GatewayError{
		Code:    ErrCodeMarketData,
		Message: fmt.Sprintf("market data for %s on %s unavailable", symbol, venue),
		Details: map[string]any{"venue": string(venue), "symbol": symbol},
		Err:     err,
	}
}

// NewWebSocketError reports a streaming connection failure.
func NewWebSocketError(venue Venue, err error) *GatewayError {
	return &GatewayError{
		Code:    ErrCodeWebSocket,
		Message: fmt.Sprintf("websocket stream for %s failed", venue),
		Details: map[string]any{"venue": string(venue)},
		Err:     err,
	}
}

// NewRateLimitError reports a local or venue-side rate limit hit.
func NewRateLimitError(venue Venue, category string) *GatewayError {
	return &GatewayError{
		Code:    ErrCodeRateLimit,
		Message: fmt.Sprintf("rate limit exceeded for %s %s requests", venue, category),
		Details: map[string]any{"venue": string(venue), "category": category},
	}
}

// NewCircuitBreakerError reports a request rejected because the venue's
// breaker is open.
func NewCircuitBreakerError(venue Venue) *GatewayError {
	return &GatewayError{
		Code:    ErrCodeCircuitBreaker,
		Message: fmt.Sprintf("circuit breaker open for %s", venue),
		Details: map[string]any{"venue": string(venue)},
	}
}

// NewConfigurationError reports invalid or missing configuration.
func NewConfigurationError(reason string) *GatewayError {
	return &GatewayError{
		Code:    ErrCodeConfiguration,
		Message: reason,
	}
}

// ErrShuttingDown reports an operation rejected during graceful shutdown.
func ErrShuttingDown() *GatewayError {
	return &GatewayError{
		Code:    ErrCodeShuttingDown,
		Message: "gateway is shutting down",
	}
}
