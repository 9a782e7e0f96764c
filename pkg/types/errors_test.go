package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestGatewayErrorHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  *GatewayError
		want int
	}{
		{NewOrderValidationError("price", "required"), http.StatusBadRequest},
		{NewConfigurationError("missing venue"), http.StatusBadRequest},
		{NewInsufficientBalanceError(VenueLighter, "USDC"), http.StatusBadRequest},
		{NewAuthenticationError(VenueHyperliquid, nil), http.StatusUnauthorized},
		{NewOrderNotFoundError("c-1"), http.StatusNotFound},
		{NewPositionNotFoundError("BTC-PERP"), http.StatusNotFound},
		{NewMarketDataError(VenueHyperliquid, "BTC-PERP", nil), http.StatusNotFound},
		{NewRateLimitError(VenueTradeXYZ, "orders"), http.StatusTooManyRequests},
		{NewVenueConnectionError(VenueHyperliquid, nil), http.StatusServiceUnavailable},
		{NewWebSocketError(VenueLighter, nil), http.StatusServiceUnavailable},
		{NewCircuitBreakerError(VenueTradeXYZ), http.StatusServiceUnavailable},
		{ErrShuttingDown(), http.StatusServiceUnavailable},
		{&GatewayError{Code: "SOMETHING_ELSE"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := tt.err.HTTPStatus(); got != tt.want {
			t.Fatalf("%s → %d, want %d", tt.err.Code, got, tt.want)
		}
	}
}

func TestAsGatewayErrorUnwraps(t *testing.T) {
	t.Parallel()

	inner := NewVenueConnectionError(VenueHyperliquid, errors.New("dial refused"))
	wrapped := fmt.Errorf("place order: %w", inner)
	if ge := AsGatewayError(wrapped); ge == nil || ge.Code != ErrCodeVenueConnection {
		t.Fatalf("AsGatewayError(%v) = %v", wrapped, AsGatewayError(wrapped))
	}
	if AsGatewayError(errors.New("plain")) != nil {
		t.Fatal("plain error must not convert")
	}
}
