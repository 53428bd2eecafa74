package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ndewijer/strategy-index-backend/internal/apperrors"
	"github.com/ndewijer/strategy-index-backend/internal/model"
	"github.com/ndewijer/strategy-index-backend/internal/provider"
)

// DefaultCacheTTL is the age below which a cache record is served without a refresh.
const DefaultCacheTTL = 4 * time.Hour

// DefaultFetchTimeout bounds one shared provider fetch, retries included.
const DefaultFetchTimeout = 2 * time.Minute

// CacheStore is the keyed store holding one record per (symbol, range).
// Implemented by repository.MarketCacheRepository and cachestore.RedisStore.
type CacheStore interface {
	Get(ctx context.Context, symbol string, rng model.TimeRange) (model.CacheRecord, error)
	GetMany(ctx context.Context, rng model.TimeRange, symbols []string) (map[string]model.CacheRecord, error)
	Upsert(ctx context.Context, record model.CacheRecord) error
}

// MarketDataOptions configures a MarketDataService.
type MarketDataOptions struct {
	// TTL defaults to DefaultCacheTTL.
	TTL time.Duration
	// DataCeiling, when set, is the latest instant the provider has data for.
	DataCeiling time.Time
	// Now defaults to time.Now.
	Now func() time.Time
	// FetchTimeout defaults to DefaultFetchTimeout.
	FetchTimeout time.Duration
}

// MarketDataService returns per-symbol performance, consulting the cache
// store before the provider and writing every successful fetch back.
type MarketDataService struct {
	store    CacheStore
	provider provider.Source
	ttl      time.Duration
	timeout  time.Duration
	ceiling  time.Time
	now      func() time.Time
	logger   zerolog.Logger
	flights  singleflight.Group
}

// NewMarketDataService creates a new MarketDataService.
func NewMarketDataService(store CacheStore, source provider.Source, opts MarketDataOptions, logger zerolog.Logger) *MarketDataService {
	if opts.TTL <= 0 {
		opts.TTL = DefaultCacheTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	return &MarketDataService{
		store:    store,
		provider: source,
		ttl:      opts.TTL,
		timeout:  opts.FetchTimeout,
		ceiling:  opts.DataCeiling,
		now:      opts.Now,
		logger:   logger.With().Str("component", "market_data").Logger(),
	}
}

// cached is a decoded cache record.
type cached struct {
	perf      model.StockPerformance
	updatedAt time.Time
}

// GetStockData returns the performance of symbol over rng.
//
// A fresh cache record is returned without touching the provider. Otherwise
// the provider is asked for new data; if that fails, a stale record is served
// in its place. apperrors.ErrSymbolUnavailable is returned when there is
// neither new nor cached data.
func (s *MarketDataService) GetStockData(ctx context.Context, symbol string, rng model.TimeRange) (model.StockPerformance, error) {
	if !rng.Valid() {
		return model.StockPerformance{}, fmt.Errorf("%w: %q", apperrors.ErrInvalidRange, rng)
	}

	candidate := s.readCache(ctx, symbol, rng)
	if candidate != nil && s.isFresh(candidate.updatedAt) {
		return candidate.perf, nil
	}

	return s.refresh(ctx, symbol, rng, candidate)
}

// refresh fetches symbol from the provider and falls back to candidate,
// which may be nil, when the fetch fails.
func (s *MarketDataService) refresh(ctx context.Context, symbol string, rng model.TimeRange, candidate *cached) (model.StockPerformance, error) {
	perf, err := s.fetch(ctx, symbol, rng)
	if err == nil {
		return perf, nil
	}

	event := s.logger.Warn().Err(err).Str("symbol", symbol).Str("range", string(rng))
	if candidate != nil {
		event.Dur("age", s.now().Sub(candidate.updatedAt)).Msg("fetch failed, serving stale cache")
		return candidate.perf, nil
	}
	event.Msg("fetch failed, no cached data")
	return model.StockPerformance{}, fmt.Errorf("%w: %s/%s", apperrors.ErrSymbolUnavailable, symbol, rng)
}

// fetch retrieves symbol from the provider and writes it to the cache.
//
// Concurrent fetches of the same pair share one round trip. The shared call
// is detached from the caller that started it and bounded by the fetch
// timeout instead, so one caller giving up does not fail the others. A
// caller whose ctx ends stops waiting, and the result still reaches the cache.
func (s *MarketDataService) fetch(ctx context.Context, symbol string, rng model.TimeRange) (model.StockPerformance, error) {
	ch := s.flights.DoChan(symbol+"|"+string(rng), func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.load(fetchCtx, symbol, rng)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return model.StockPerformance{}, res.Err
		}
		return res.Val.(model.StockPerformance), nil
	case <-ctx.Done():
		return model.StockPerformance{}, ctx.Err()
	}
}

func (s *MarketDataService) load(ctx context.Context, symbol string, rng model.TimeRange) (model.StockPerformance, error) {
	start, end := rng.Window(s.now(), s.ceiling)

	history, err := s.provider.FetchHistory(ctx, symbol, start, end)
	if err != nil {
		return model.StockPerformance{}, err
	}
	quote, err := s.provider.FetchQuote(ctx, symbol)
	if err != nil {
		return model.StockPerformance{}, err
	}

	perf := model.StockPerformance{
		Symbol:        symbol,
		CurrentPrice:  quote.Price,
		ChangePercent: quote.ChangePercent,
		History:       history,
	}
	if perf.History == nil {
		perf.History = []model.PricePoint{}
	}

	// The fetched data is returned even when it could not be cached.
	if err := s.writeCache(ctx, rng, perf); err != nil {
		s.logger.Error().Err(err).Str("symbol", symbol).Str("range", string(rng)).Msg("failed to write market cache")
	}
	return perf, nil
}

// readCache returns the decoded record of (symbol, rng), or nil on a miss.
// Read and decode failures count as misses.
func (s *MarketDataService) readCache(ctx context.Context, symbol string, rng model.TimeRange) *cached {
	record, err := s.store.Get(ctx, symbol, rng)
	if errors.Is(err, apperrors.ErrCacheRecordNotFound) {
		return nil
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Str("range", string(rng)).Msg("failed to read market cache")
		return nil
	}
	return s.decode(record)
}

// decode turns a record into a candidate, or nil if its payload is unreadable.
func (s *MarketDataService) decode(record model.CacheRecord) *cached {
	perf, err := model.DecodePerformance(record.Payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", record.Symbol).Str("range", string(record.Range)).Msg("discarding unreadable cache record")
		return nil
	}
	if perf.Symbol == "" {
		perf.Symbol = record.Symbol
	}
	return &cached{perf: perf, updatedAt: record.UpdatedAt}
}

func (s *MarketDataService) writeCache(ctx context.Context, rng model.TimeRange, perf model.StockPerformance) error {
	payload, err := model.EncodePerformance(perf)
	if err != nil {
		return err
	}
	return s.store.Upsert(ctx, model.CacheRecord{
		Symbol:    perf.Symbol,
		Range:     rng,
		Payload:   payload,
		UpdatedAt: s.now().UTC(),
	})
}

func (s *MarketDataService) isFresh(updatedAt time.Time) bool {
	return s.now().Sub(updatedAt) < s.ttl
}
