package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ndewijer/strategy-index-backend/internal/apperrors"
	"github.com/ndewijer/strategy-index-backend/internal/database"
	"github.com/ndewijer/strategy-index-backend/internal/model"
	"github.com/ndewijer/strategy-index-backend/internal/version"
)

// CacheSummarizer reports what the cache store holds.
type CacheSummarizer interface {
	Summary(ctx context.Context) (model.CacheSummary, error)
}

// pinger is implemented by network-backed cache stores.
type pinger interface {
	Ping(ctx context.Context) error
}

// SystemService handles system-related operations
type SystemService struct {
	db       *sql.DB
	cache    CacheSummarizer
	features map[string]bool
}

// NewSystemService creates a new SystemService. features lists the optional
// capabilities reported by the version endpoint.
func NewSystemService(db *sql.DB, cache CacheSummarizer, features map[string]bool) *SystemService {
	if features == nil {
		features = map[string]bool{}
	}
	return &SystemService{
		db:       db,
		cache:    cache,
		features: features,
	}
}

// CheckHealth checks the database and, for network stores, the cache connection.
func (s *SystemService) CheckHealth(ctx context.Context) error {
	if err := database.HealthCheck(s.db); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if p, ok := s.cache.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	}
	return nil
}

// CheckVersion returns the application version, the applied schema version
// and feature flags.
func (s *SystemService) CheckVersion() (model.VersionInfo, error) {
	dbVersion, err := database.SchemaVersion(s.db)
	if err != nil {
		return model.VersionInfo{}, fmt.Errorf("%w: %w", apperrors.ErrFailedToGetVersionInfo, err)
	}

	features := make(map[string]bool, len(s.features))
	for k, v := range s.features {
		features[k] = v
	}

	return model.VersionInfo{
		AppVersion: version.Version,
		DbVersion:  fmt.Sprintf("%d", dbVersion),
		Features:   features,
	}, nil
}

// CacheSummary counts the cached records per range.
func (s *SystemService) CacheSummary(ctx context.Context) (model.CacheSummary, error) {
	summary, err := s.cache.Summary(ctx)
	if err != nil {
		return model.CacheSummary{}, fmt.Errorf("%w: %w", apperrors.ErrFailedToGetCacheSummary, err)
	}
	return summary, nil
}
