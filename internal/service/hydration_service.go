package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ndewijer/strategy-index-backend/internal/catalog"
	"github.com/ndewijer/strategy-index-backend/internal/model"
)

// HydrateOptions selects what a hydration run covers.
type HydrateOptions struct {
	// Ecosystems defaults to every ecosystem of the catalog.
	Ecosystems []catalog.Ecosystem
	// Ranges defaults to model.AllRanges.
	Ranges []model.TimeRange
	// Force refetches records that are still fresh.
	Force bool
	// Delay is the pause between two provider fetches.
	Delay time.Duration
}

// HydrationService warms the cache for whole universes, one symbol at a time.
type HydrationService struct {
	catalog *catalog.Catalog
	store   CacheStore
	market  *MarketDataService
	logger  zerolog.Logger
}

// NewHydrationService creates a new HydrationService.
func NewHydrationService(cat *catalog.Catalog, store CacheStore, market *MarketDataService, logger zerolog.Logger) *HydrationService {
	return &HydrationService{
		catalog: cat,
		store:   store,
		market:  market,
		logger:  logger.With().Str("component", "hydration").Logger(),
	}
}

// Hydrate fetches every (symbol, range) pair of the selected universes whose
// cache record is missing or stale. Symbols shared between ecosystems are
// fetched once per range. The run stops early, returning the partial report
// and the context error, when ctx ends.
func (s *HydrationService) Hydrate(ctx context.Context, opts HydrateOptions) (model.HydrationReport, error) {
	report := model.HydrationReport{
		RunID:     uuid.New().String(),
		StartedAt: s.market.now().UTC(),
		Failures:  []model.HydrationFailure{},
	}
	logger := s.logger.With().Str("run_id", report.RunID).Logger()

	symbols, err := s.universe(opts.Ecosystems)
	if err != nil {
		return report, err
	}
	ranges := opts.Ranges
	if len(ranges) == 0 {
		ranges = model.AllRanges()
	}

	logger.Info().Int("symbols", len(symbols)).Int("ranges", len(ranges)).Bool("force", opts.Force).Msg("hydration started")

	fetched := 0
	for _, rng := range ranges {
		var records map[string]model.CacheRecord
		if !opts.Force {
			records, err = s.store.GetMany(ctx, rng, symbols)
			if err != nil {
				logger.Warn().Err(err).Str("range", string(rng)).Msg("bulk cache read failed, hydrating every symbol")
				records = nil
			}
		}

		for _, symbol := range symbols {
			if record, ok := records[symbol]; ok && record.IsFresh(s.market.now(), s.market.ttl) {
				report.Skipped++
				continue
			}

			if fetched > 0 && opts.Delay > 0 {
				if err := sleep(ctx, opts.Delay); err != nil {
					return s.finish(report, logger), err
				}
			}
			if err := ctx.Err(); err != nil {
				return s.finish(report, logger), err
			}
			fetched++

			if _, err := s.market.fetch(ctx, symbol, rng); err != nil {
				report.Failed++
				report.Failures = append(report.Failures, model.HydrationFailure{
					Symbol: symbol,
					Range:  rng,
					Error:  err.Error(),
				})
				logger.Warn().Err(err).Str("symbol", symbol).Str("range", string(rng)).Msg("hydration fetch failed")
				continue
			}
			report.Succeeded++
			logger.Debug().Str("symbol", symbol).Str("range", string(rng)).Msg("hydrated")
		}
	}

	return s.finish(report, logger), nil
}

func (s *HydrationService) finish(report model.HydrationReport, logger zerolog.Logger) model.HydrationReport {
	report.FinishedAt = s.market.now().UTC()
	logger.Info().
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Msg("hydration finished")
	return report
}

// universe returns the union of the symbols of ecosystems, in catalog order.
func (s *HydrationService) universe(ecosystems []catalog.Ecosystem) ([]string, error) {
	if len(ecosystems) == 0 {
		return s.catalog.AllSymbols(), nil
	}

	seen := make(map[string]bool)
	var symbols []string
	for _, eco := range ecosystems {
		list, err := s.catalog.SymbolsFor(eco)
		if err != nil {
			return nil, err
		}
		for _, symbol := range list {
			if !seen[symbol] {
				seen[symbol] = true
				symbols = append(symbols, symbol)
			}
		}
	}
	return symbols, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
