package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ndewijer/strategy-index-backend/internal/apperrors"
)

// Cache backends supported by CacheConfig.Backend.
const (
	CacheBackendSQLite = "sqlite"
	CacheBackendRedis  = "redis"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	CORS     CORSConfig
	Log      LogConfig
	Market   MarketConfig
	Yahoo    YahooConfig
	Hydrate  HydrateConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port string
	Host string
	Addr string // Combined host:port for convenience
}

// DatabaseConfig holds database-specific configuration
type DatabaseConfig struct {
	Path string
}

// CacheConfig selects the persistent store behind the market cache.
type CacheConfig struct {
	Backend  string
	RedisURL string
}

// CORSConfig holds CORS-specific configuration
type CORSConfig struct {
	AllowedOrigins []string
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Pretty bool
}

// MarketConfig holds the cache freshness, refresh and provider policy.
type MarketConfig struct {
	CacheTTL              time.Duration
	CompletenessThreshold float64
	MaxSyncRefresh        int
	ProviderConcurrency   int
	ProviderTimeout       time.Duration
	RetryBase             time.Duration
	RetryMax              int
	RefreshDeadline       time.Duration
	DataCeiling           time.Time // zero means no ceiling
}

// YahooConfig holds the market data endpoint.
type YahooConfig struct {
	BaseURL string
}

// HydrateConfig controls background cache hydration.
type HydrateConfig struct {
	Schedule string // cron spec; empty disables the scheduler
	Delay    time.Duration
}

// Load reads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	p := &parser{}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "5001"),
			Host: getEnv("SERVER_HOST", "localhost"),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/market_cache.db"),
		},
		Cache: CacheConfig{
			Backend:  strings.ToLower(getEnv("CACHE_BACKEND", CacheBackendSQLite)),
			RedisURL: getEnv("REDIS_URL", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost")),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: p.bool("LOG_PRETTY", false),
		},
		Market: MarketConfig{
			CacheTTL:              p.duration("MARKET_CACHE_TTL", 4*time.Hour),
			CompletenessThreshold: p.float("MARKET_COMPLETENESS_THRESHOLD", 0.8),
			MaxSyncRefresh:        p.int("MARKET_MAX_SYNC_REFRESH", 5),
			ProviderConcurrency:   p.int("MARKET_PROVIDER_CONCURRENCY", 2),
			ProviderTimeout:       p.duration("MARKET_PROVIDER_TIMEOUT", 10*time.Second),
			RetryBase:             p.duration("MARKET_RETRY_BASE", 2*time.Second),
			RetryMax:              p.int("MARKET_RETRY_MAX", 3),
			RefreshDeadline:       p.duration("MARKET_REFRESH_DEADLINE", 20*time.Second),
			DataCeiling:           p.date("MARKET_DATA_CEILING"),
		},
		Yahoo: YahooConfig{
			BaseURL: getEnv("YAHOO_BASE_URL", "https://query1.finance.yahoo.com"),
		},
		Hydrate: HydrateConfig{
			Schedule: getEnv("HYDRATE_SCHEDULE", ""),
			Delay:    p.duration("HYDRATE_DELAY", 2*time.Second),
		},
	}

	if p.err != nil {
		return nil, p.err
	}
	if err := config.validate(); err != nil {
		return nil, err
	}

	// Combine host and port
	config.Server.Addr = fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port)

	return config, nil
}

func (c *Config) validate() error {
	switch c.Cache.Backend {
	case CacheBackendSQLite:
	case CacheBackendRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("%w: REDIS_URL is required for the redis cache backend", apperrors.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: CACHE_BACKEND %q", apperrors.ErrInvalidConfig, c.Cache.Backend)
	}

	m := c.Market
	if m.CompletenessThreshold < 0 || m.CompletenessThreshold > 1 {
		return fmt.Errorf("%w: MARKET_COMPLETENESS_THRESHOLD must be within [0,1]", apperrors.ErrInvalidConfig)
	}
	if m.ProviderConcurrency < 1 {
		return fmt.Errorf("%w: MARKET_PROVIDER_CONCURRENCY must be at least 1", apperrors.ErrInvalidConfig)
	}
	if m.MaxSyncRefresh < 0 || m.RetryMax < 0 {
		return fmt.Errorf("%w: MARKET_MAX_SYNC_REFRESH and MARKET_RETRY_MAX cannot be negative", apperrors.ErrInvalidConfig)
	}
	if m.CacheTTL <= 0 || m.ProviderTimeout <= 0 || m.RetryBase <= 0 || m.RefreshDeadline <= 0 {
		return fmt.Errorf("%w: durations must be positive", apperrors.ErrInvalidConfig)
	}
	return nil
}

// FetchBudget is the worst-case duration of one symbol fetch: a history call
// and a quote call, each with every retry timing out and the full backoff.
func (m MarketConfig) FetchBudget() time.Duration {
	attempts := time.Duration(m.RetryMax + 1)
	backoff := m.RetryBase * time.Duration((1<<m.RetryMax)-1)
	return 2 * (attempts*m.ProviderTimeout + backoff)
}

// WriteTimeout leaves the HTTP server room to write a response after the
// synchronous refresh deadline of an aggregate request has passed.
func (c *Config) WriteTimeout() time.Duration {
	return c.Market.RefreshDeadline + 30*time.Second
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parser collects the first parse failure so Load can report it once.
type parser struct {
	err error
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: %s=%q: %v", apperrors.ErrInvalidConfig, key, value, err)
	}
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		p.fail(key, value, err)
		return def
	}
	return d
}

func (p *parser) int(key string, def int) int {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		p.fail(key, value, err)
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		p.fail(key, value, err)
		return def
	}
	return f
}

func (p *parser) bool(key string, def bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		p.fail(key, value, err)
		return def
	}
	return b
}

func (p *parser) date(key string) time.Time {
	value := os.Getenv(key)
	if value == "" {
		return time.Time{}
	}
	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		p.fail(key, value, err)
		return time.Time{}
	}
	return d.UTC()
}
