package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"perp-gateway/pkg/types"
)

const minimalYAML = `
venues:
  hyperliquid:
    enabled: true
    rest_url: "https://api.hyperliquid.xyz"
    ws_url: "wss://api.hyperliquid.xyz/ws"
  lighter:
    enabled: false
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Fatalf("server.addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.WS.ReconnectBaseDelay != time.Second || cfg.WS.MaxReconnectAttempts != 10 {
		t.Fatalf("ws defaults = %+v", cfg.WS)
	}
	if cfg.Breaker.Threshold != 5 || cfg.Breaker.Timeout != time.Minute {
		t.Fatalf("breaker defaults = %+v", cfg.Breaker)
	}
	if cfg.Redis.Enabled {
		t.Fatal("redis must default to disabled")
	}
}

func TestCredentialsComeFromEnv(t *testing.T) {
	t.Setenv("GATEWAY_HYPERLIQUID_API_KEY", "key-from-env")
	t.Setenv("GATEWAY_HYPERLIQUID_API_SECRET", "secret-from-env")

	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	vc := cfg.Venues["hyperliquid"]
	if vc.APIKey != "key-from-env" || vc.APISecret != "secret-from-env" {
		t.Fatalf("credentials = %q/%q, want env values", vc.APIKey, vc.APISecret)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	t.Parallel()

	base := func() *Config {
		return &Config{
			Server: ServerConfig{Addr: ":8080"},
			Venues: map[string]VenueConfig{
				"hyperliquid": {Enabled: true, RESTURL: "https://x", WSURL: "wss://x"},
			},
			WS:        WSConfig{ReconnectBaseDelay: time.Second, ReconnectMaxDelay: time.Minute, MaxReconnectAttempts: 10},
			Breaker:   BreakerConfig{Threshold: 5, Timeout: time.Minute},
			Portfolio: PortfolioConfig{StaleAfter: 5 * time.Minute},
		}
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("base config invalid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no venues enabled", func(c *Config) {
			c.Venues["hyperliquid"] = VenueConfig{Enabled: false}
		}},
		{"unknown venue", func(c *Config) {
			c.Venues["binance"] = VenueConfig{Enabled: true, RESTURL: "https://x", WSURL: "wss://x"}
		}},
		{"missing rest url", func(c *Config) {
			c.Venues["hyperliquid"] = VenueConfig{Enabled: true, WSURL: "wss://x"}
		}},
		{"redis enabled without url", func(c *Config) {
			c.Redis = RedisConfig{Enabled: true}
		}},
		{"backoff bounds inverted", func(c *Config) {
			c.WS.ReconnectMaxDelay = c.WS.ReconnectBaseDelay / 2
		}},
		{"zero breaker threshold", func(c *Config) {
			c.Breaker.Threshold = 0
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			ge := types.AsGatewayError(err)
			if ge == nil || ge.Code != types.ErrCodeConfiguration {
				t.Fatalf("err = %v, want CONFIGURATION_ERROR", err)
			}
		})
	}
}

func TestEnabledVenuesCanonicalOrder(t *testing.T) {
	t.Parallel()

	cfg := &Config{Venues: map[string]VenueConfig{
		"tradexyz":    {Enabled: true},
		"hyperliquid": {Enabled: true},
		"lighter":     {Enabled: false},
	}}
	got := cfg.EnabledVenues()
	if len(got) != 2 || got[0] != types.VenueHyperliquid || got[1] != types.VenueTradeXYZ {
		t.Fatalf("enabled venues = %v", got)
	}
}
