// Package app wires configuration into the services shared by the server
// and the hydrate command.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ndewijer/strategy-index-backend/internal/cachestore"
	"github.com/ndewijer/strategy-index-backend/internal/catalog"
	"github.com/ndewijer/strategy-index-backend/internal/config"
	"github.com/ndewijer/strategy-index-backend/internal/database"
	"github.com/ndewijer/strategy-index-backend/internal/provider"
	"github.com/ndewijer/strategy-index-backend/internal/repository"
	"github.com/ndewijer/strategy-index-backend/internal/service"
	"github.com/ndewijer/strategy-index-backend/internal/yahoo"
)

// Store is a cache store that can also describe its contents.
type Store interface {
	service.CacheStore
	service.CacheSummarizer
}

// App holds the wired services.
type App struct {
	DB          *sql.DB
	Store       Store
	Catalog     *catalog.Catalog
	Market      *service.MarketDataService
	Performance *service.PerformanceService
	Hydration   *service.HydrationService
	System      *service.SystemService

	closers []func() error
}

// New opens the database and the configured cache store and builds every
// service on top of them. The caller must call Close.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a := &App{DB: db, closers: []func() error{db.Close}}

	switch cfg.Cache.Backend {
	case config.CacheBackendRedis:
		rs, err := cachestore.NewRedisStore(ctx, cfg.Cache.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.Store = rs
		a.closers = append(a.closers, rs.Close)
	default:
		a.Store = repository.NewMarketCacheRepository(db)
	}
	log.Info().Str("backend", cfg.Cache.Backend).Str("db_path", cfg.Database.Path).Msg("cache store ready")

	source := yahoo.NewFinanceClient(yahoo.Options{
		BaseURL: cfg.Yahoo.BaseURL,
		Timeout: cfg.Market.ProviderTimeout,
	})
	client := provider.NewClient(source, provider.NewLimiter(cfg.Market.ProviderConcurrency), provider.RetryPolicy{
		MaxRetries: uint64(cfg.Market.RetryMax),
		Base:       cfg.Market.RetryBase,
		Timeout:    cfg.Market.ProviderTimeout,
	}, log)

	a.Catalog = catalog.Default()
	a.Market = service.NewMarketDataService(a.Store, client, service.MarketDataOptions{
		TTL:          cfg.Market.CacheTTL,
		DataCeiling:  cfg.Market.DataCeiling,
		FetchTimeout: cfg.Market.FetchBudget(),
	}, log)
	a.Performance = service.NewPerformanceService(a.Catalog, a.Store, a.Market, service.RefreshPolicy{
		CompletenessThreshold: cfg.Market.CompletenessThreshold,
		MaxSyncRefresh:        cfg.Market.MaxSyncRefresh,
		Deadline:              cfg.Market.RefreshDeadline,
	}, log)
	a.Hydration = service.NewHydrationService(a.Catalog, a.Store, a.Market, log)
	a.System = service.NewSystemService(db, a.Store, map[string]bool{
		"hydration_scheduler": cfg.Hydrate.Schedule != "",
		"redis_cache":         cfg.Cache.Backend == config.CacheBackendRedis,
		"data_ceiling":        !cfg.Market.DataCeiling.IsZero(),
	})

	return a, nil
}

// Close releases the cache store and the database, in reverse order of opening.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}
