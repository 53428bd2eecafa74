package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ndewijer/strategy-index-backend/internal/apperrors"
	"github.com/ndewijer/strategy-index-backend/internal/catalog"
	"github.com/ndewijer/strategy-index-backend/internal/model"
)

// RefreshPolicy bounds the synchronous work of one aggregate request.
type RefreshPolicy struct {
	// CompletenessThreshold is the usable fraction of the universe below
	// which a request refreshes symbols before answering.
	CompletenessThreshold float64
	// MaxSyncRefresh caps the symbols refreshed by one request.
	MaxSyncRefresh int
	// Deadline bounds the wait for refreshed symbols. Symbols still in
	// flight when it passes are served stale or left out, and their fetch
	// completes into the cache in the background. Zero means no bound.
	Deadline time.Duration
}

// DefaultRefreshDeadline is the default RefreshPolicy.Deadline.
const DefaultRefreshDeadline = 20 * time.Second

// DefaultRefreshPolicy refreshes at most five symbols when fewer than 80% of
// the universe has cached data.
func DefaultRefreshPolicy() RefreshPolicy {
	return RefreshPolicy{CompletenessThreshold: 0.8, MaxSyncRefresh: 5, Deadline: DefaultRefreshDeadline}
}

// PerformanceService builds the aggregate index of an ecosystem.
type PerformanceService struct {
	catalog *catalog.Catalog
	store   CacheStore
	market  *MarketDataService
	policy  RefreshPolicy
	logger  zerolog.Logger
}

// NewPerformanceService creates a new PerformanceService.
func NewPerformanceService(cat *catalog.Catalog, store CacheStore, market *MarketDataService, policy RefreshPolicy, logger zerolog.Logger) *PerformanceService {
	return &PerformanceService{
		catalog: cat,
		store:   store,
		market:  market,
		policy:  policy,
		logger:  logger.With().Str("component", "performance").Logger(),
	}
}

// refreshCandidate is a symbol without fresh data.
type refreshCandidate struct {
	symbol string
	stale  *cached // nil when nothing is cached
}

// GetAggregatePerformance returns the index of eco over rng.
//
// All cached records of the universe are read in one query. Fresh and stale
// records are both usable. When the usable share is below the completeness
// threshold, up to MaxSyncRefresh symbols without fresh data are refreshed
// before aggregating, missing ones first and then the oldest stale ones.
// Symbols that end up without data are left out of the aggregate.
func (s *PerformanceService) GetAggregatePerformance(ctx context.Context, rng model.TimeRange, eco catalog.Ecosystem) (model.AggregateResult, error) {
	if !rng.Valid() {
		return model.AggregateResult{}, fmt.Errorf("%w: %q", apperrors.ErrInvalidRange, rng)
	}
	symbols, err := s.catalog.SymbolsFor(eco)
	if err != nil {
		return model.AggregateResult{}, err
	}
	if len(symbols) == 0 {
		return model.EmptyAggregate(), nil
	}

	records, err := s.store.GetMany(ctx, rng, symbols)
	if err != nil {
		s.logger.Warn().Err(err).Str("range", string(rng)).Str("ecosystem", string(eco)).Msg("bulk cache read failed, treating universe as missing")
		records = nil
	}

	now := s.market.now()
	working := make(map[string]model.StockPerformance, len(symbols))
	var missing, stale []refreshCandidate

	for _, symbol := range symbols {
		record, ok := records[symbol]
		if !ok {
			missing = append(missing, refreshCandidate{symbol: symbol})
			continue
		}
		c := s.market.decode(record)
		if c == nil {
			missing = append(missing, refreshCandidate{symbol: symbol})
			continue
		}
		working[symbol] = c.perf
		if !record.IsFresh(now, s.market.ttl) {
			stale = append(stale, refreshCandidate{symbol: symbol, stale: c})
		}
	}

	usable := float64(len(working)) / float64(len(symbols))
	if usable < s.policy.CompletenessThreshold {
		batch := s.selectRefresh(missing, stale)
		s.logger.Info().
			Str("range", string(rng)).
			Str("ecosystem", string(eco)).
			Float64("usable", usable).
			Int("missing", len(missing)).
			Int("stale", len(stale)).
			Int("refreshing", len(batch)).
			Msg("cache below completeness threshold")

		for symbol, perf := range s.refreshBatch(ctx, rng, batch) {
			working[symbol] = perf
		}
	}

	results := make([]model.StockPerformance, 0, len(working))
	for _, symbol := range symbols {
		if perf, ok := working[symbol]; ok {
			results = append(results, perf)
		}
	}

	return Aggregate(results), nil
}

// selectRefresh picks at most MaxSyncRefresh candidates: missing symbols in
// catalog order, then stale ones from oldest to newest.
func (s *PerformanceService) selectRefresh(missing, stale []refreshCandidate) []refreshCandidate {
	limit := s.policy.MaxSyncRefresh
	if limit <= 0 {
		return nil
	}

	sort.SliceStable(stale, func(i, j int) bool {
		return stale[i].stale.updatedAt.Before(stale[j].stale.updatedAt)
	})

	batch := make([]refreshCandidate, 0, limit)
	for _, group := range [][]refreshCandidate{missing, stale} {
		for _, c := range group {
			if len(batch) == limit {
				return batch
			}
			batch = append(batch, c)
		}
	}
	return batch
}

// refreshBatch refreshes batch concurrently and returns the symbols that have
// data afterwards. The provider limiter caps how many calls actually overlap.
func (s *PerformanceService) refreshBatch(ctx context.Context, rng model.TimeRange, batch []refreshCandidate) map[string]model.StockPerformance {
	if len(batch) == 0 {
		return nil
	}

	if s.policy.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.policy.Deadline)
		defer cancel()
	}

	started := time.Now()
	out := make([]*model.StockPerformance, len(batch))

	var g errgroup.Group
	for i, c := range batch {
		g.Go(func() error {
			perf, err := s.market.refresh(ctx, c.symbol, rng, c.stale)
			if err != nil {
				return nil
			}
			out[i] = &perf
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors

	refreshed := make(map[string]model.StockPerformance, len(batch))
	for i, perf := range out {
		if perf != nil {
			refreshed[batch[i].symbol] = *perf
		}
	}

	s.logger.Debug().
		Str("range", string(rng)).
		Int("requested", len(batch)).
		Int("available", len(refreshed)).
		Dur("took", time.Since(started)).
		Msg("synchronous refresh finished")

	return refreshed
}
