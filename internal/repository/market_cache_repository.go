package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ndewijer/strategy-index-backend/internal/apperrors"
	"github.com/ndewijer/strategy-index-backend/internal/model"
)

// MarketCacheRepository provides data access methods for the market_cache table.
// Records are keyed by (symbol, time_range); writes overwrite in place.
type MarketCacheRepository struct {
	db *sql.DB
}

// NewMarketCacheRepository creates a new repository instance.
func NewMarketCacheRepository(db *sql.DB) *MarketCacheRepository {
	return &MarketCacheRepository{db: db}
}

// Get retrieves the record for one (symbol, range) pair.
// Returns apperrors.ErrCacheRecordNotFound when none exists.
func (r *MarketCacheRepository) Get(ctx context.Context, symbol string, rng model.TimeRange) (model.CacheRecord, error) {
	query := `
		SELECT symbol, time_range, payload, updated_at_ms
		FROM market_cache
		WHERE symbol = ? AND time_range = ?
	`

	record, err := scanRecord(r.db.QueryRowContext(ctx, query, symbol, string(rng)))
	if errors.Is(err, sql.ErrNoRows) {
		return model.CacheRecord{}, apperrors.ErrCacheRecordNotFound
	}
	if err != nil {
		return model.CacheRecord{}, fmt.Errorf("failed to query market_cache: %w", err)
	}
	return record, nil
}

// GetMany retrieves the records of range rng for every symbol in symbols with
// a single query. Symbols without a record are absent from the result map.
func (r *MarketCacheRepository) GetMany(ctx context.Context, rng model.TimeRange, symbols []string) (map[string]model.CacheRecord, error) {
	result := make(map[string]model.CacheRecord, len(symbols))
	if len(symbols) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(symbols))
	for i := range placeholders {
		placeholders[i] = "?"
	}

	query := `
		SELECT symbol, time_range, payload, updated_at_ms
		FROM market_cache
		WHERE time_range = ?
		AND symbol IN (` + strings.Join(placeholders, ",") + `)
	`

	args := make([]any, 0, len(symbols)+1)
	args = append(args, string(rng))
	for _, s := range symbols {
		args = append(args, s)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query market_cache: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result[record.Symbol] = record
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return result, nil
}

// Upsert writes record, replacing any existing record with the same key.
func (r *MarketCacheRepository) Upsert(ctx context.Context, record model.CacheRecord) error {
	if record.Symbol == "" {
		return apperrors.ErrInvalidSymbol
	}

	query := `
		INSERT INTO market_cache (symbol, time_range, payload, updated_at_ms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (symbol, time_range) DO UPDATE SET
			payload = excluded.payload,
			updated_at_ms = excluded.updated_at_ms
	`

	_, err := r.db.ExecContext(ctx, query,
		record.Symbol,
		string(record.Range),
		record.Payload,
		record.UpdatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert market_cache %s/%s: %w", record.Symbol, record.Range, err)
	}

	return nil
}

// Summary counts records per range and reports the oldest and newest writes.
func (r *MarketCacheRepository) Summary(ctx context.Context) (model.CacheSummary, error) {
	query := `
		SELECT time_range, COUNT(*), MIN(updated_at_ms), MAX(updated_at_ms)
		FROM market_cache
		GROUP BY time_range
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return model.CacheSummary{}, fmt.Errorf("failed to summarize market_cache: %w", err)
	}
	defer rows.Close()

	summary := model.CacheSummary{ByRange: make(map[model.TimeRange]int)}
	var oldest, newest int64
	for rows.Next() {
		var rng string
		var count int
		var minMs, maxMs int64
		if err := rows.Scan(&rng, &count, &minMs, &maxMs); err != nil {
			return model.CacheSummary{}, fmt.Errorf("failed to scan row: %w", err)
		}
		summary.ByRange[model.TimeRange(rng)] = count
		summary.Total += count
		if oldest == 0 || minMs < oldest {
			oldest = minMs
		}
		if maxMs > newest {
			newest = maxMs
		}
	}

	if err = rows.Err(); err != nil {
		return model.CacheSummary{}, fmt.Errorf("error iterating rows: %w", err)
	}

	if summary.Total > 0 {
		o := time.UnixMilli(oldest).UTC()
		n := time.UnixMilli(newest).UTC()
		summary.OldestUpdate = &o
		summary.NewestUpdate = &n
	}

	return summary, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (model.CacheRecord, error) {
	var record model.CacheRecord
	var rng string
	var updatedMs int64

	if err := row.Scan(&record.Symbol, &rng, &record.Payload, &updatedMs); err != nil {
		return model.CacheRecord{}, err
	}

	record.Range = model.TimeRange(rng)
	record.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	return record, nil
}
