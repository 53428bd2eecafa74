package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ndewijer/strategy-index-backend/internal/model"
)

// Reference instants shared by market tests.
var (
	// FixedNow is a Wednesday afternoon, well inside the 2026 trading year.
	FixedNow = time.Date(2026, 10, 14, 15, 0, 0, 0, time.UTC)
	// SeriesStart is the first bar of most fixture series.
	SeriesStart = time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
)

// Clock is a settable time source for services that take a now function.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock frozen at now.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// Series builds one price point per close on consecutive days from start.
func Series(start time.Time, closes ...float64) []model.PricePoint {
	points := make([]model.PricePoint, len(closes))
	for i, c := range closes {
		points[i] = model.PricePoint{Date: start.AddDate(0, 0, i), Close: c}
	}
	return points
}

// Performance builds a StockPerformance whose current price is the last close.
func Performance(symbol string, start time.Time, closes ...float64) model.StockPerformance {
	perf := model.StockPerformance{
		Symbol:  symbol,
		History: Series(start, closes...),
	}
	if n := len(closes); n > 0 {
		perf.CurrentPrice = closes[n-1]
	}
	return perf
}

// Upserter is the write side of a cache store.
type Upserter interface {
	Upsert(ctx context.Context, record model.CacheRecord) error
}

// SeedCache stores perf under (perf.Symbol, rng) as if it was written at updatedAt.
func SeedCache(t *testing.T, store Upserter, rng model.TimeRange, perf model.StockPerformance, updatedAt time.Time) {
	t.Helper()

	payload, err := model.EncodePerformance(perf)
	if err != nil {
		t.Fatalf("Failed to encode performance: %v", err)
	}

	record := model.CacheRecord{
		Symbol:    perf.Symbol,
		Range:     rng,
		Payload:   payload,
		UpdatedAt: updatedAt,
	}
	if err := store.Upsert(context.Background(), record); err != nil {
		t.Fatalf("Failed to seed cache record %s/%s: %v", perf.Symbol, rng, err)
	}
}

// Symbols returns n synthetic tickers SYM00, SYM01, ...
func Symbols(n int) []string {
	symbols := make([]string, n)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("SYM%02d", i)
	}
	return symbols
}
