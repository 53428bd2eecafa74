// Package cachestore holds a Redis implementation of the market cache store.
// It keeps the same contract as the SQLite repository: point reads, one bulk
// read per range and overwrite-in-place upserts. Keys never expire; freshness
// is decided by the reader from the stored timestamp.
package cachestore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ndewijer/strategy-index-backend/internal/apperrors"
	"github.com/ndewijer/strategy-index-backend/internal/model"
)

const keyPrefix = "market_cache"

// envelope is the value stored under each key.
type envelope struct {
	Payload     []byte `msgpack:"p"`
	UpdatedAtMs int64  `msgpack:"u"`
}

// RedisStore stores cache records as msgpack envelopes.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to url (redis:// or rediss://) and verifies the
// connection. rediss URLs get TLS 1.2 or newer.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if opts.TLSConfig != nil && opts.TLSConfig.MinVersion == 0 {
		opts.TLSConfig.MinVersion = tls.VersionTLS12
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Key returns the redis key of a (symbol, range) pair.
func Key(symbol string, rng model.TimeRange) string {
	return keyPrefix + ":" + string(rng) + ":" + symbol
}

// Get retrieves the record for one (symbol, range) pair.
func (s *RedisStore) Get(ctx context.Context, symbol string, rng model.TimeRange) (model.CacheRecord, error) {
	raw, err := s.client.Get(ctx, Key(symbol, rng)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.CacheRecord{}, apperrors.ErrCacheRecordNotFound
	}
	if err != nil {
		return model.CacheRecord{}, fmt.Errorf("redis GET %s/%s: %w", symbol, rng, err)
	}
	return decodeRecord(symbol, rng, raw)
}

// GetMany retrieves the records of rng for symbols with a single MGET.
// Absent and undecodable keys are left out of the result.
func (s *RedisStore) GetMany(ctx context.Context, rng model.TimeRange, symbols []string) (map[string]model.CacheRecord, error) {
	result := make(map[string]model.CacheRecord, len(symbols))
	if len(symbols) == 0 {
		return result, nil
	}

	keys := make([]string, len(symbols))
	for i, symbol := range symbols {
		keys[i] = Key(symbol, rng)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis MGET %s: %w", rng, err)
	}

	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		record, err := decodeRecord(symbols[i], rng, []byte(str))
		if err != nil {
			// An unreadable value is a miss for that symbol only.
			log.Warn().Err(err).Str("key", keys[i]).Msg("skipping unreadable cache envelope")
			continue
		}
		result[symbols[i]] = record
	}
	return result, nil
}

// Upsert overwrites the record stored under its key.
func (s *RedisStore) Upsert(ctx context.Context, record model.CacheRecord) error {
	if record.Symbol == "" {
		return apperrors.ErrInvalidSymbol
	}
	raw, err := msgpack.Marshal(&envelope{
		Payload:     record.Payload,
		UpdatedAtMs: record.UpdatedAt.UTC().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode cache envelope: %w", err)
	}
	if err := s.client.Set(ctx, Key(record.Symbol, record.Range), raw, 0).Err(); err != nil {
		return fmt.Errorf("redis SET %s/%s: %w", record.Symbol, record.Range, err)
	}
	return nil
}

// Summary scans every cache key and reports counts per range.
func (s *RedisStore) Summary(ctx context.Context) (model.CacheSummary, error) {
	summary := model.CacheSummary{ByRange: make(map[model.TimeRange]int)}
	var oldest, newest int64

	iter := s.client.Scan(ctx, 0, keyPrefix+":*", 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		symbol, rng, ok := parseKey(key)
		if !ok {
			continue
		}
		raw, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return model.CacheSummary{}, fmt.Errorf("redis GET %s: %w", key, err)
		}
		record, err := decodeRecord(symbol, rng, raw)
		if err != nil {
			continue
		}
		ms := record.UpdatedAt.UnixMilli()
		summary.ByRange[rng]++
		summary.Total++
		if oldest == 0 || ms < oldest {
			oldest = ms
		}
		if ms > newest {
			newest = ms
		}
	}
	if err := iter.Err(); err != nil {
		return model.CacheSummary{}, fmt.Errorf("redis SCAN: %w", err)
	}

	if summary.Total > 0 {
		o := time.UnixMilli(oldest).UTC()
		n := time.UnixMilli(newest).UTC()
		summary.OldestUpdate = &o
		summary.NewestUpdate = &n
	}
	return summary, nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func parseKey(key string) (string, model.TimeRange, bool) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 || parts[0] != keyPrefix || parts[2] == "" {
		return "", "", false
	}
	rng := model.TimeRange(parts[1])
	if !rng.Valid() {
		return "", "", false
	}
	return parts[2], rng, true
}

func decodeRecord(symbol string, rng model.TimeRange, raw []byte) (model.CacheRecord, error) {
	var env envelope
	if err := msgpack.Unmarshal(raw, &env); err != nil {
		return model.CacheRecord{}, fmt.Errorf("failed to decode cache envelope %s/%s: %w", symbol, rng, err)
	}
	return model.CacheRecord{
		Symbol:    symbol,
		Range:     rng,
		Payload:   env.Payload,
		UpdatedAt: time.UnixMilli(env.UpdatedAtMs).UTC(),
	}, nil
}
