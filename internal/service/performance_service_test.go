package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ndewijer/strategy-index-backend/internal/apperrors"
	"github.com/ndewijer/strategy-index-backend/internal/catalog"
	"github.com/ndewijer/strategy-index-backend/internal/model"
	"github.com/ndewijer/strategy-index-backend/internal/service"
	"github.com/ndewijer/strategy-index-backend/internal/testutil"
)

const (
	fresh = time.Minute
	stale = 30 * time.Hour
)

// TestPerformanceService_BoundedRefresh tests the synchronous refresh cap.
//
// WHY: A request must stay fast even when most of the universe is cold or
// the provider is down. At most MaxSyncRefresh symbols may be fetched; the rest
// are served stale or left out.
func TestPerformanceService_BoundedRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("refreshes at most five of eighteen non-fresh symbols", func(t *testing.T) {
		// Setup: 2 fresh, 8 stale, 10 missing out of 20.
		symbols := testutil.Symbols(20)
		f := testutil.NewMarketFixture(t, testutil.TestCatalog(symbols...))
		for i, s := range symbols {
			f.Provider.WithSeries(s, testutil.SeriesStart, 100, 110)
			switch {
			case i < 2:
				f.Seed(t, model.RangeYTD, testutil.Performance(s, testutil.SeriesStart, 100, 100), fresh)
			case i < 10:
				f.Seed(t, model.RangeYTD, testutil.Performance(s, testutil.SeriesStart, 100, 100), stale)
			}
		}
		svc := f.PerformanceService(service.DefaultRefreshPolicy())

		// Execute
		result, err := svc.GetAggregatePerformance(ctx, model.RangeYTD, testutil.TestEcosystem)

		// Assert
		if err != nil {
			t.Fatalf("GetAggregatePerformance() returned unexpected error: %v", err)
		}
		if got := f.Provider.TotalHistoryCalls(); got != 5 {
			t.Errorf("Expected 5 synchronous fetches, got %d", got)
		}
		// Missing symbols are refreshed first.
		want := []string{"SYM10", "SYM11", "SYM12", "SYM13", "SYM14"}
		fetched := f.Provider.FetchedSymbols()
		if len(fetched) != len(want) {
			t.Fatalf("Expected fetched %v, got %v", want, fetched)
		}
		for i := range want {
			if fetched[i] != want[i] {
				t.Errorf("Expected fetched %v, got %v", want, fetched)
				break
			}
		}
		// 2 fresh + 8 stale + 5 refreshed; the other 5 missing are dropped.
		if len(result.Tickers) != 15 {
			t.Errorf("Expected 15 tickers, got %d", len(result.Tickers))
		}
	})

	t.Run("stale symbols are refreshed oldest first once nothing is missing", func(t *testing.T) {
		symbols := testutil.Symbols(4)
		f := testutil.NewMarketFixture(t, testutil.TestCatalog(symbols...))
		ages := []time.Duration{5 * time.Hour, 50 * time.Hour, 10 * time.Hour, 20 * time.Hour}
		for i, s := range symbols {
			f.Provider.WithSeries(s, testutil.SeriesStart, 100)
			f.Seed(t, model.RangeYTD, testutil.Performance(s, testutil.SeriesStart, 100), ages[i])
		}
		// Every symbol is stale but usable, so force the threshold above 100%.
		svc := f.PerformanceService(service.RefreshPolicy{CompletenessThreshold: 1.01, MaxSyncRefresh: 2})

		if _, err := svc.GetAggregatePerformance(ctx, model.RangeYTD, testutil.TestEcosystem); err != nil {
			t.Fatalf("GetAggregatePerformance() returned unexpected error: %v", err)
		}

		fetched := f.Provider.FetchedSymbols()
		if len(fetched) != 2 || fetched[0] != "SYM01" || fetched[1] != "SYM03" {
			t.Errorf("Expected the two oldest [SYM01 SYM03], got %v", fetched)
		}
	})

	t.Run("no refresh when enough data is usable", func(t *testing.T) {
		symbols := testutil.Symbols(10)
		f := testutil.NewMarketFixture(t, testutil.TestCatalog(symbols...))
		for i, s := range symbols[:8] {
			age := fresh
			if i%2 == 0 {
				age = stale
			}
			f.Seed(t, model.RangeYTD, testutil.Performance(s, testutil.SeriesStart, 100, 105), age)
		}
		svc := f.PerformanceService(service.DefaultRefreshPolicy())

		result, err := svc.GetAggregatePerformance(ctx, model.RangeYTD, testutil.TestEcosystem)
		if err != nil {
			t.Fatalf("GetAggregatePerformance() returned unexpected error: %v", err)
		}
		if got := f.Provider.TotalHistoryCalls(); got != 0 {
			t.Errorf("Expected no fetches at 80%% usable, got %d", got)
		}
		if len(result.Tickers) != 8 {
			t.Errorf("Expected 8 tickers, got %d", len(result.Tickers))
		}
		if !approx(result.CurrentValue, 105) {
			t.Errorf("Expected current value 105, got %v", result.CurrentValue)
		}
	})

	t.Run("failed refresh of a stale symbol keeps the stale data", func(t *testing.T) {
		symbols := testutil.Symbols(5)
		f := testutil.NewMarketFixture(t, testutil.TestCatalog(symbols...))
		f.Seed(t, model.RangeYTD, testutil.Performance("SYM00", testutil.SeriesStart, 100, 150), stale)
		for _, s := range symbols {
			f.Provider.WithError(s, testutil.ProviderFailure(s))
		}
		svc := f.PerformanceService(service.DefaultRefreshPolicy())

		result, err := svc.GetAggregatePerformance(ctx, model.RangeYTD, testutil.TestEcosystem)
		if err != nil {
			t.Fatalf("GetAggregatePerformance() returned unexpected error: %v", err)
		}
		if len(result.Tickers) != 1 || result.Tickers[0].Symbol != "SYM00" {
			t.Fatalf("Expected only the stale SYM00, got %+v", result.Tickers)
		}
		if !approx(result.CurrentValue, 150) {
			t.Errorf("Expected current value 150, got %v", result.CurrentValue)
		}
	})
}

func TestPerformanceService_GetAggregatePerformance(t *testing.T) {
	ctx := context.Background()

	t.Run("all fetches failing yields the empty aggregate", func(t *testing.T) {
		symbols := testutil.Symbols(3)
		f := testutil.NewMarketFixture(t, testutil.TestCatalog(symbols...))
		for _, s := range symbols {
			f.Provider.WithError(s, testutil.RateLimitedError(s))
		}
		svc := f.PerformanceService(service.DefaultRefreshPolicy())

		result, err := svc.GetAggregatePerformance(ctx, model.Range1Y, testutil.TestEcosystem)
		if err != nil {
			t.Fatalf("GetAggregatePerformance() returned unexpected error: %v", err)
		}
		if len(result.Tickers) != 0 || len(result.History) != 0 {
			t.Errorf("Expected no tickers and no history, got %+v", result)
		}
		if result.Tickers == nil || result.History == nil {
			t.Error("Expected empty slices, not nil")
		}
		if result.CurrentValue != 100 || result.StartValue != 100 || result.TotalChange != 0 {
			t.Errorf("Expected 100/100/0, got %v/%v/%v", result.CurrentValue, result.StartValue, result.TotalChange)
		}
	})

	t.Run("cold universe is fetched and aggregated", func(t *testing.T) {
		f := testutil.NewMarketFixture(t, testutil.TestCatalog("AAA", "BBB"))
		f.Provider.
			WithSeries("AAA", testutil.SeriesStart, 50, 60).
			WithSeries("BBB", testutil.SeriesStart, 10, 10)
		svc := f.PerformanceService(service.DefaultRefreshPolicy())

		result, err := svc.GetAggregatePerformance(ctx, model.RangeYTD, testutil.TestEcosystem)
		if err != nil {
			t.Fatalf("GetAggregatePerformance() returned unexpected error: %v", err)
		}
		if len(result.Tickers) != 2 || result.Tickers[0].Symbol != "AAA" || result.Tickers[1].Symbol != "BBB" {
			t.Errorf("Expected tickers in catalog order, got %+v", result.Tickers)
		}
		// (120 + 100) / 2
		if !approx(result.CurrentValue, 110) {
			t.Errorf("Expected current value 110, got %v", result.CurrentValue)
		}

		// The fetched data now serves the next request from cache.
		if _, err := svc.GetAggregatePerformance(ctx, model.RangeYTD, testutil.TestEcosystem); err != nil {
			t.Fatalf("GetAggregatePerformance() returned unexpected error: %v", err)
		}
		if got := f.Provider.TotalHistoryCalls(); got != 2 {
			t.Errorf("Expected 2 fetches in total, got %d", got)
		}
	})

	t.Run("bulk read failure treats the universe as missing", func(t *testing.T) {
		f := testutil.NewMarketFixture(t, testutil.TestCatalog("AAA"))
		f.Provider.WithSeries("AAA", testutil.SeriesStart, 50, 75)
		store := testutil.NewFaultyStore(f.Store)
		store.GetManyErr = errors.New("timeout")
		svc := service.NewPerformanceService(f.Catalog, store, f.Market, service.DefaultRefreshPolicy(), zerolog.Nop())

		result, err := svc.GetAggregatePerformance(ctx, model.RangeYTD, testutil.TestEcosystem)
		if err != nil {
			t.Fatalf("GetAggregatePerformance() returned unexpected error: %v", err)
		}
		if !approx(result.CurrentValue, 150) {
			t.Errorf("Expected current value 150, got %v", result.CurrentValue)
		}
	})

	t.Run("unknown ecosystem is rejected", func(t *testing.T) {
		f := testutil.NewMarketFixture(t, testutil.TestCatalog("AAA"))
		svc := f.PerformanceService(service.DefaultRefreshPolicy())

		_, err := svc.GetAggregatePerformance(ctx, model.RangeYTD, catalog.Ecosystem("crypto"))
		if !errors.Is(err, apperrors.ErrUnknownEcosystem) {
			t.Errorf("Expected ErrUnknownEcosystem, got %v", err)
		}
	})

	t.Run("invalid range is rejected", func(t *testing.T) {
		f := testutil.NewMarketFixture(t, testutil.TestCatalog("AAA"))
		svc := f.PerformanceService(service.DefaultRefreshPolicy())

		_, err := svc.GetAggregatePerformance(ctx, model.TimeRange("10Y"), testutil.TestEcosystem)
		if !errors.Is(err, apperrors.ErrInvalidRange) {
			t.Errorf("Expected ErrInvalidRange, got %v", err)
		}
	})

	t.Run("default catalog universes resolve", func(t *testing.T) {
		f := testutil.NewMarketFixture(t, catalog.Default())
		svc := f.PerformanceService(service.RefreshPolicy{CompletenessThreshold: 0.8, MaxSyncRefresh: 0})

		result, err := svc.GetAggregatePerformance(ctx, model.RangeYTD, catalog.EcosystemRobotics)
		if err != nil {
			t.Fatalf("GetAggregatePerformance() returned unexpected error: %v", err)
		}
		if len(result.Tickers) != 0 || f.Provider.TotalHistoryCalls() != 0 {
			t.Errorf("Expected an empty aggregate without fetches, got %+v", result)
		}
	})
}

// TestPerformanceService_RefreshDeadline tests the bound on synchronous refresh.
//
// WHY: A slow provider must not hold a request past the server write timeout.
// When the deadline passes, stale symbols are served from cache and missing
// ones are left out, while the fetches still complete into the cache.
func TestPerformanceService_RefreshDeadline(t *testing.T) {
	// Setup: one stale symbol and one missing, a provider slower than the deadline.
	f := testutil.NewMarketFixture(t, testutil.TestCatalog("SYM00", "SYM01"))
	f.Provider.
		WithSeries("SYM00", testutil.SeriesStart, 100, 200).
		WithSeries("SYM01", testutil.SeriesStart, 100, 200).
		WithDelay(100 * time.Millisecond)
	f.Seed(t, model.RangeYTD, testutil.Performance("SYM00", testutil.SeriesStart, 100, 100), stale)
	svc := f.PerformanceService(service.RefreshPolicy{
		CompletenessThreshold: 0.8,
		MaxSyncRefresh:        5,
		Deadline:              20 * time.Millisecond,
	})

	// Execute
	started := time.Now()
	result, err := svc.GetAggregatePerformance(context.Background(), model.RangeYTD, testutil.TestEcosystem)
	took := time.Since(started)

	// Assert
	if err != nil {
		t.Fatalf("GetAggregatePerformance() returned unexpected error: %v", err)
	}
	if took >= 150*time.Millisecond {
		t.Errorf("Expected the request to return near the deadline, took %s", took)
	}
	if len(result.Tickers) != 1 || result.Tickers[0].Symbol != "SYM00" {
		t.Fatalf("Expected only the stale SYM00, got %+v", result.Tickers)
	}
	if !approx(result.CurrentValue, 100) {
		t.Errorf("Expected the stale current value 100, got %v", result.CurrentValue)
	}

	f.WaitCached(t, model.RangeYTD, "SYM00", 2*time.Second)
	f.WaitCached(t, model.RangeYTD, "SYM01", 2*time.Second)
}
