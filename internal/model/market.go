package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/ndewijer/strategy-index-backend/internal/apperrors"
)

// TimeRange is the lookback window of a performance query.
type TimeRange string

const (
	RangeYTD TimeRange = "YTD"
	Range1Y  TimeRange = "1Y"
	Range2Y  TimeRange = "2Y"
	Range3Y  TimeRange = "3Y"
)

// DefaultRange is used when a request doesn't name one.
const DefaultRange = RangeYTD

// AllRanges returns every supported range in display order.
func AllRanges() []TimeRange {
	return []TimeRange{RangeYTD, Range1Y, Range2Y, Range3Y}
}

// ParseTimeRange accepts a range name case-insensitively.
func ParseTimeRange(s string) (TimeRange, error) {
	r := TimeRange(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", apperrors.ErrInvalidRange, s)
	}
	return r, nil
}

// Valid reports whether r is one of the supported ranges.
func (r TimeRange) Valid() bool {
	switch r {
	case RangeYTD, Range1Y, Range2Y, Range3Y:
		return true
	}
	return false
}

// Window returns the [start, end) calendar window for r anchored at now.
//
// When ceiling is non-zero and now is past it, end is clamped to ceiling and
// start is computed relative to the clamped end. If start does not precede end
// the window collapses to one year ending at end.
func (r TimeRange) Window(now, ceiling time.Time) (start, end time.Time) {
	end = now.UTC()
	if !ceiling.IsZero() && end.After(ceiling) {
		end = ceiling.UTC()
	}

	switch r {
	case RangeYTD:
		start = time.Date(end.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	case Range1Y:
		start = end.AddDate(-1, 0, 0)
	case Range2Y:
		start = end.AddDate(-2, 0, 0)
	case Range3Y:
		start = end.AddDate(-3, 0, 0)
	default:
		start = end
	}

	if !start.Before(end) {
		start = end.AddDate(-1, 0, 0)
	}
	return start, end
}

// PricePoint is one daily close. Date is midnight UTC of the trading day.
type PricePoint struct {
	Date  time.Time `json:"date" msgpack:"date"`
	Close float64   `json:"close" msgpack:"close"`
}

// Quote is a current price snapshot.
type Quote struct {
	Price         float64 `json:"price"`
	ChangePercent float64 `json:"changePercent"`
}

// StockPerformance is the per-symbol result of a fetch or a cache read.
// An empty History marks a quote-only placeholder: it is listed among the
// tickers of an aggregate but does not contribute to the index curve.
type StockPerformance struct {
	Symbol        string       `json:"symbol" msgpack:"symbol"`
	CurrentPrice  float64      `json:"currentPrice" msgpack:"currentPrice"`
	ChangePercent float64      `json:"changePercent" msgpack:"changePercent"`
	History       []PricePoint `json:"history" msgpack:"history"`
}

// CacheRecord is one persisted (symbol, range) entry. Payload is an encoded
// StockPerformance; the store treats it as opaque bytes.
type CacheRecord struct {
	Symbol    string
	Range     TimeRange
	Payload   []byte
	UpdatedAt time.Time
}

// Age returns how long ago the record was written.
func (c CacheRecord) Age(now time.Time) time.Duration {
	return now.Sub(c.UpdatedAt)
}

// IsFresh reports whether the record is younger than ttl.
func (c CacheRecord) IsFresh(now time.Time, ttl time.Duration) bool {
	return c.Age(now) < ttl
}

// TickerSummary is one entry of AggregateResult.Tickers.
type TickerSummary struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Change float64 `json:"change"`
}

// IndexPoint is one value of the synthetic index, keyed by "2006-01-02" date.
type IndexPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// IndexBase is the value every rebased series starts at.
const IndexBase = 100.0

// AggregateResult is the combined index for a set of symbols.
type AggregateResult struct {
	Tickers      []TickerSummary `json:"tickers"`
	History      []IndexPoint    `json:"history"`
	CurrentValue float64         `json:"currentValue"`
	StartValue   float64         `json:"startValue"`
	TotalChange  float64         `json:"totalChange"`
}

// EmptyAggregate returns the degenerate result used when no symbol is usable.
func EmptyAggregate() AggregateResult {
	return AggregateResult{
		Tickers:      []TickerSummary{},
		History:      []IndexPoint{},
		CurrentValue: IndexBase,
		StartValue:   IndexBase,
		TotalChange:  0,
	}
}

// CacheSummary describes the contents of the cache store.
type CacheSummary struct {
	Total        int               `json:"total"`
	ByRange      map[TimeRange]int `json:"byRange"`
	OldestUpdate *time.Time        `json:"oldestUpdate,omitempty"`
	NewestUpdate *time.Time        `json:"newestUpdate,omitempty"`
}

// DateKey formats t as the calendar date used to group index points.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
