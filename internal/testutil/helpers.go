package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ndewijer/strategy-index-backend/internal/catalog"
	"github.com/ndewijer/strategy-index-backend/internal/model"
	"github.com/ndewijer/strategy-index-backend/internal/provider"
	"github.com/ndewijer/strategy-index-backend/internal/repository"
	"github.com/ndewijer/strategy-index-backend/internal/service"
)

// MarketFixture bundles a market data stack wired against test doubles.
type MarketFixture struct {
	DB       *sql.DB
	Store    *repository.MarketCacheRepository
	Provider *MockProvider
	Clock    *Clock
	Catalog  *catalog.Catalog
	Market   *service.MarketDataService
}

// TestEcosystem is the ecosystem of catalogs built by TestCatalog.
const TestEcosystem catalog.Ecosystem = "test"

// TestCatalog builds a single-ecosystem catalog over symbols.
func TestCatalog(symbols ...string) *catalog.Catalog {
	return catalog.New(catalog.Definition{
		Ecosystem:  TestEcosystem,
		Categories: []catalog.Category{{Name: "Test", Symbols: symbols}},
	})
}

// NewMarketFixture creates a market data service over an in-memory cache,
// a mock provider and a clock frozen at FixedNow. The provider calls go
// straight to the mock, without retries or a limiter.
func NewMarketFixture(t *testing.T, cat *catalog.Catalog) *MarketFixture {
	t.Helper()

	db := SetupTestDB(t)
	f := &MarketFixture{
		DB:       db,
		Store:    repository.NewMarketCacheRepository(db),
		Provider: NewMockProvider(),
		Clock:    NewClock(FixedNow),
		Catalog:  cat,
	}
	f.Market = service.NewMarketDataService(f.Store, f.Provider, service.MarketDataOptions{
		TTL: service.DefaultCacheTTL,
		Now: f.Clock.Now,
	}, zerolog.Nop())

	return f
}

// NewTestMarketDataService builds a MarketDataService with explicit collaborators.
func NewTestMarketDataService(t *testing.T, store service.CacheStore, source provider.Source, clock *Clock) *service.MarketDataService {
	t.Helper()

	return service.NewMarketDataService(store, source, service.MarketDataOptions{
		TTL: service.DefaultCacheTTL,
		Now: clock.Now,
	}, zerolog.Nop())
}

// PerformanceService returns an orchestrator over the fixture with policy.
func (f *MarketFixture) PerformanceService(policy service.RefreshPolicy) *service.PerformanceService {
	return service.NewPerformanceService(f.Catalog, f.Store, f.Market, policy, zerolog.Nop())
}

// HydrationService returns a hydrator over the fixture.
func (f *MarketFixture) HydrationService() *service.HydrationService {
	return service.NewHydrationService(f.Catalog, f.Store, f.Market, zerolog.Nop())
}

// Seed stores perf in the fixture cache as if it was written age ago.
func (f *MarketFixture) Seed(t *testing.T, rng model.TimeRange, perf model.StockPerformance, age time.Duration) {
	t.Helper()

	SeedCache(t, f.Store, rng, perf, f.Clock.Now().Add(-age))
}

// WaitCached blocks until symbol has a cache record for rng written after the
// fixture clock, or fails the test after timeout. Use it to let a fetch that
// outlived its caller finish before the test database is closed.
func (f *MarketFixture) WaitCached(t *testing.T, rng model.TimeRange, symbol string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		rec, err := f.Store.Get(context.Background(), symbol, rng)
		if err == nil && !rec.UpdatedAt.Before(f.Clock.Now()) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Expected %s/%s to be cached within %s", symbol, rng, timeout)
}

// NewTestSystemService creates a SystemService over db with its SQLite cache.
func NewTestSystemService(t *testing.T, db *sql.DB) *service.SystemService {
	t.Helper()

	return service.NewSystemService(db, repository.NewMarketCacheRepository(db), map[string]bool{
		"hydration_scheduler": false,
	})
}
