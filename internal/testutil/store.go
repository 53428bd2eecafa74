package testutil

import (
	"context"
	"sync"

	"github.com/ndewijer/strategy-index-backend/internal/model"
	"github.com/ndewijer/strategy-index-backend/internal/service"
)

// FaultyStore wraps a cache store and fails selected operations on demand.
type FaultyStore struct {
	service.CacheStore

	mu         sync.Mutex
	GetErr     error
	GetManyErr error
	UpsertErr  error
	upserts    int
}

// NewFaultyStore wraps inner.
func NewFaultyStore(inner service.CacheStore) *FaultyStore {
	return &FaultyStore{CacheStore: inner}
}

// Get fails with GetErr when set.
func (s *FaultyStore) Get(ctx context.Context, symbol string, rng model.TimeRange) (model.CacheRecord, error) {
	s.mu.Lock()
	err := s.GetErr
	s.mu.Unlock()

	if err != nil {
		return model.CacheRecord{}, err
	}
	return s.CacheStore.Get(ctx, symbol, rng)
}

// GetMany fails with GetManyErr when set.
func (s *FaultyStore) GetMany(ctx context.Context, rng model.TimeRange, symbols []string) (map[string]model.CacheRecord, error) {
	s.mu.Lock()
	err := s.GetManyErr
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return s.CacheStore.GetMany(ctx, rng, symbols)
}

// Upsert counts every attempt and fails with UpsertErr when set.
func (s *FaultyStore) Upsert(ctx context.Context, record model.CacheRecord) error {
	s.mu.Lock()
	s.upserts++
	err := s.UpsertErr
	s.mu.Unlock()

	if err != nil {
		return err
	}
	return s.CacheStore.Upsert(ctx, record)
}

// Upserts returns the number of Upsert calls.
func (s *FaultyStore) Upserts() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.upserts
}
