// Package config defines all configuration for the gateway.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// fields overridable via GATEWAY_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"perp-gateway/pkg/types"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Server    ServerConfig           `mapstructure:"server"`
	Redis     RedisConfig            `mapstructure:"redis"`
	Venues    map[string]VenueConfig `mapstructure:"venues"`
	WS        WSConfig               `mapstructure:"ws"`
	Cache     CacheConfig            `mapstructure:"cache"`
	Breaker   BreakerConfig          `mapstructure:"breaker"`
	Portfolio PortfolioConfig        `mapstructure:"portfolio"`
	Logging   LoggingConfig          `mapstructure:"logging"`
}

// ServerConfig controls the REST/WebSocket listener.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

// RedisConfig selects the event bus backend. When disabled, events stay
// in-process.
type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// VenueConfig holds one venue's endpoints and API credentials.
// Credentials use env vars: GATEWAY_<VENUE>_API_KEY, GATEWAY_<VENUE>_API_SECRET.
type VenueConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	RESTURL   string `mapstructure:"rest_url"`
	WSURL     string `mapstructure:"ws_url"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
}

// WSConfig tunes venue stream connections and reconnect policy.
//
//   - HeartbeatInterval: how often adapters ping the venue socket.
//   - ReconnectBaseDelay/ReconnectMaxDelay: exponential backoff bounds.
//   - MaxReconnectAttempts: give up and mark the stream errored after this
//     many consecutive failures.
type WSConfig struct {
	HeartbeatInterval    time.Duration `mapstructure:"heartbeat_interval"`
	ReconnectBaseDelay   time.Duration `mapstructure:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `mapstructure:"reconnect_max_delay"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
}

// CacheConfig sets TTLs for aggregated read paths.
type CacheConfig struct {
	PriceTTL time.Duration `mapstructure:"price_ttl"`
}

// BreakerConfig tunes the per-venue circuit breakers.
type BreakerConfig struct {
	Threshold int           `mapstructure:"threshold"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// PortfolioConfig tunes the cross-venue aggregator.
type PortfolioConfig struct {
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	MetricsInterval   time.Duration `mapstructure:"metrics_interval"`
	StaleAfter        time.Duration `mapstructure:"stale_after"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Credentials come from env, never the YAML file.
	for name, vc := range cfg.Venues {
		prefix := "GATEWAY_" + strings.ToUpper(name)
		if key := os.Getenv(prefix + "_API_KEY"); key != "" {
			vc.APIKey = key
		}
		if secret := os.Getenv(prefix + "_API_SECRET"); secret != "" {
			vc.APISecret = secret
		}
		cfg.Venues[name] = vc
	}
	if url := os.Getenv("GATEWAY_REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("ws.heartbeat_interval", 30*time.Second)
	v.SetDefault("ws.reconnect_base_delay", time.Second)
	v.SetDefault("ws.reconnect_max_delay", 60*time.Second)
	v.SetDefault("ws.max_reconnect_attempts", 10)
	v.SetDefault("cache.price_ttl", time.Second)
	v.SetDefault("breaker.threshold", 5)
	v.SetDefault("breaker.timeout", 60*time.Second)
	v.SetDefault("portfolio.reconcile_interval", 30*time.Second)
	v.SetDefault("portfolio.metrics_interval", 10*time.Second)
	v.SetDefault("portfolio.stale_after", 300*time.Second)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return types.NewConfigurationError("server.addr is required")
	}
	if c.Redis.Enabled && c.Redis.URL == "" {
		return types.NewConfigurationError("redis.url is required when redis.enabled")
	}

	enabled := 0
	for name, vc := range c.Venues {
		if !types.Venue(name).Valid() {
			return types.NewConfigurationError("unknown venue in config: " + name)
		}
		if !vc.Enabled {
			continue
		}
		enabled++
		if vc.RESTURL == "" {
			return types.NewConfigurationError("venues." + name + ".rest_url is required")
		}
		if vc.WSURL == "" {
			return types.NewConfigurationError("venues." + name + ".ws_url is required")
		}
	}
	if enabled == 0 {
		return types.NewConfigurationError("at least one venue must be enabled")
	}

	if c.WS.ReconnectBaseDelay <= 0 || c.WS.ReconnectMaxDelay < c.WS.ReconnectBaseDelay {
		return types.NewConfigurationError("ws reconnect delays must satisfy 0 < base <= max")
	}
	if c.WS.MaxReconnectAttempts <= 0 {
		return types.NewConfigurationError("ws.max_reconnect_attempts must be > 0")
	}
	if c.Breaker.Threshold <= 0 {
		return types.NewConfigurationError("breaker.threshold must be > 0")
	}
	if c.Breaker.Timeout <= 0 {
		return types.NewConfigurationError("breaker.timeout must be > 0")
	}
	if c.Portfolio.StaleAfter <= 0 {
		return types.NewConfigurationError("portfolio.stale_after must be > 0")
	}
	return nil
}

// EnabledVenues returns the enabled venues in canonical order.
func (c *Config) EnabledVenues() []types.Venue {
	var out []types.Venue
	for _, v := range types.AllVenues() {
		if vc, ok := c.Venues[string(v)]; ok && vc.Enabled {
			out = append(out, v)
		}
	}
	return out
}
