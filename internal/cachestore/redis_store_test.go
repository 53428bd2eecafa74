package cachestore

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ndewijer/strategy-index-backend/internal/apperrors"
	"github.com/ndewijer/strategy-index-backend/internal/model"
)

var now = time.Date(2026, 10, 14, 15, 0, 0, 0, time.UTC)

// setupRedisStore returns a store over a fresh in-process redis server.
func setupRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisStoreFromClient(client), mr
}

func record(symbol string, rng model.TimeRange, payload string, updated time.Time) model.CacheRecord {
	return model.CacheRecord{Symbol: symbol, Range: rng, Payload: []byte(payload), UpdatedAt: updated}
}

func mustUpsert(t *testing.T, store *RedisStore, records ...model.CacheRecord) {
	t.Helper()
	for _, r := range records {
		if err := store.Upsert(context.Background(), r); err != nil {
			t.Fatalf("Upsert() returned unexpected error: %v", err)
		}
	}
}

func TestRedisStore_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("returns not found for a missing pair", func(t *testing.T) {
		store, _ := setupRedisStore(t)

		_, err := store.Get(ctx, "NVDA", model.RangeYTD)
		if !errors.Is(err, apperrors.ErrCacheRecordNotFound) {
			t.Errorf("Expected ErrCacheRecordNotFound, got %v", err)
		}
	})

	t.Run("round-trips payload and millisecond timestamp", func(t *testing.T) {
		store, _ := setupRedisStore(t)
		updated := time.Date(2026, 10, 14, 9, 30, 15, 123_000_000, time.UTC)
		mustUpsert(t, store, record("6954.T", model.Range2Y, "payload", updated))

		got, err := store.Get(ctx, "6954.T", model.Range2Y)
		if err != nil {
			t.Fatalf("Get() returned unexpected error: %v", err)
		}
		if got.Symbol != "6954.T" || got.Range != model.Range2Y {
			t.Errorf("Unexpected key %s/%s", got.Symbol, got.Range)
		}
		if !bytes.Equal(got.Payload, []byte("payload")) {
			t.Errorf("Unexpected payload %q", got.Payload)
		}
		if !got.UpdatedAt.Equal(updated) {
			t.Errorf("Expected updatedAt %s, got %s", updated, got.UpdatedAt)
		}
	})

	t.Run("ranges are separate keys", func(t *testing.T) {
		store, _ := setupRedisStore(t)
		mustUpsert(t, store, record("NVDA", model.RangeYTD, "ytd", now))

		if _, err := store.Get(ctx, "NVDA", model.Range1Y); !errors.Is(err, apperrors.ErrCacheRecordNotFound) {
			t.Errorf("Expected ErrCacheRecordNotFound for another range, got %v", err)
		}
	})

	t.Run("corrupt value is an error", func(t *testing.T) {
		store, mr := setupRedisStore(t)
		if err := mr.Set(Key("NVDA", model.RangeYTD), "\xc1"); err != nil {
			t.Fatalf("Failed to write raw value: %v", err)
		}

		_, err := store.Get(ctx, "NVDA", model.RangeYTD)
		if err == nil || errors.Is(err, apperrors.ErrCacheRecordNotFound) {
			t.Errorf("Expected a decode error, got %v", err)
		}
	})
}

func TestRedisStore_Upsert(t *testing.T) {
	ctx := context.Background()

	t.Run("overwrites instead of duplicating", func(t *testing.T) {
		store, mr := setupRedisStore(t)
		second := record("NVDA", model.RangeYTD, "new", now.Add(time.Hour))
		mustUpsert(t, store, record("NVDA", model.RangeYTD, "old", now), second)

		got, err := store.Get(ctx, "NVDA", model.RangeYTD)
		if err != nil {
			t.Fatalf("Get() returned unexpected error: %v", err)
		}
		if string(got.Payload) != "new" || !got.UpdatedAt.Equal(second.UpdatedAt) {
			t.Errorf("Expected the last write, got %q at %s", got.Payload, got.UpdatedAt)
		}
		if keys := mr.Keys(); len(keys) != 1 {
			t.Errorf("Expected 1 key, got %v", keys)
		}
	})

	t.Run("keys never expire", func(t *testing.T) {
		store, mr := setupRedisStore(t)
		mustUpsert(t, store, record("NVDA", model.RangeYTD, "x", now))

		if ttl := mr.TTL(Key("NVDA", model.RangeYTD)); ttl != 0 {
			t.Errorf("Expected no expiry, got %s", ttl)
		}
	})

	t.Run("rejects an empty symbol", func(t *testing.T) {
		store, _ := setupRedisStore(t)

		err := store.Upsert(ctx, record("", model.RangeYTD, "x", now))
		if !errors.Is(err, apperrors.ErrInvalidSymbol) {
			t.Errorf("Expected ErrInvalidSymbol, got %v", err)
		}
	})
}

func TestRedisStore_GetMany(t *testing.T) {
	ctx := context.Background()

	t.Run("returns only requested symbols of the range", func(t *testing.T) {
		store, _ := setupRedisStore(t)
		mustUpsert(t, store,
			record("AAA", model.RangeYTD, "a", now),
			record("BBB", model.RangeYTD, "b", now),
			record("AAA", model.Range1Y, "a1", now),
		)

		got, err := store.GetMany(ctx, model.RangeYTD, []string{"AAA", "CCC"})
		if err != nil {
			t.Fatalf("GetMany() returned unexpected error: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("Expected 1 record, got %d", len(got))
		}
		if string(got["AAA"].Payload) != "a" {
			t.Errorf("Expected the YTD payload, got %q", got["AAA"].Payload)
		}
		if _, ok := got["CCC"]; ok {
			t.Error("Expected absent symbol to be left out")
		}
	})

	t.Run("empty symbol list returns an empty map", func(t *testing.T) {
		store, _ := setupRedisStore(t)

		got, err := store.GetMany(ctx, model.RangeYTD, nil)
		if err != nil {
			t.Fatalf("GetMany() returned unexpected error: %v", err)
		}
		if got == nil || len(got) != 0 {
			t.Errorf("Expected empty map, got %v", got)
		}
	})

	t.Run("an unreadable value only drops its own symbol", func(t *testing.T) {
		store, mr := setupRedisStore(t)
		mustUpsert(t, store,
			record("AAA", model.RangeYTD, "a", now),
			record("BBB", model.RangeYTD, "b", now),
			record("CCC", model.RangeYTD, "c", now),
		)
		if err := mr.Set(Key("BBB", model.RangeYTD), "\xc1"); err != nil {
			t.Fatalf("Failed to write raw value: %v", err)
		}

		got, err := store.GetMany(ctx, model.RangeYTD, []string{"AAA", "BBB", "CCC"})
		if err != nil {
			t.Fatalf("GetMany() returned unexpected error: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("Expected 2 records, got %d", len(got))
		}
		if _, ok := got["BBB"]; ok {
			t.Error("Expected the unreadable record to be left out")
		}
		if string(got["AAA"].Payload) != "a" || string(got["CCC"].Payload) != "c" {
			t.Errorf("Unexpected payloads %q %q", got["AAA"].Payload, got["CCC"].Payload)
		}
	})

	t.Run("server failure is an error", func(t *testing.T) {
		store, mr := setupRedisStore(t)
		mr.Close()

		if _, err := store.GetMany(ctx, model.RangeYTD, []string{"AAA"}); err == nil {
			t.Error("Expected error when redis is down")
		}
	})
}

func TestRedisStore_Summary(t *testing.T) {
	ctx := context.Background()

	t.Run("empty cache", func(t *testing.T) {
		store, _ := setupRedisStore(t)

		summary, err := store.Summary(ctx)
		if err != nil {
			t.Fatalf("Summary() returned unexpected error: %v", err)
		}
		if summary.Total != 0 || summary.OldestUpdate != nil || summary.NewestUpdate != nil {
			t.Errorf("Expected empty summary, got %+v", summary)
		}
	})

	t.Run("groups by range and ignores foreign keys", func(t *testing.T) {
		store, mr := setupRedisStore(t)
		oldest := now.Add(-48 * time.Hour)
		mustUpsert(t, store,
			record("AAA", model.RangeYTD, "a", oldest),
			record("BBB", model.RangeYTD, "b", now),
			record("AAA", model.Range3Y, "c", now.Add(-time.Hour)),
		)
		if err := mr.Set("session:42", "other"); err != nil {
			t.Fatalf("Failed to write foreign key: %v", err)
		}
		if err := mr.Set(Key("BAD", model.Range1Y), "\xc1"); err != nil {
			t.Fatalf("Failed to write raw value: %v", err)
		}

		summary, err := store.Summary(ctx)
		if err != nil {
			t.Fatalf("Summary() returned unexpected error: %v", err)
		}
		if summary.Total != 3 || summary.ByRange[model.RangeYTD] != 2 || summary.ByRange[model.Range3Y] != 1 {
			t.Errorf("Unexpected counts %+v", summary)
		}
		if !summary.OldestUpdate.Equal(oldest) || !summary.NewestUpdate.Equal(now) {
			t.Errorf("Unexpected bounds %s .. %s", summary.OldestUpdate, summary.NewestUpdate)
		}
	})
}

func TestRedisStore_Ping(t *testing.T) {
	store, mr := setupRedisStore(t)

	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() returned unexpected error: %v", err)
	}

	mr.Close()
	if err := store.Ping(context.Background()); err == nil {
		t.Error("Expected error when redis is down")
	}
}
