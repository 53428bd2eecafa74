package apperrors

import (
	"errors"
	"fmt"
)

// Domain entity errors represent missing or unusable data in the system.
var (
	// ErrSymbolUnavailable indicates that no fresh data, no stale fallback and no
	// successful fetch exist for a symbol and range.
	ErrSymbolUnavailable = errors.New("symbol unavailable")

	// ErrCacheRecordNotFound indicates the cache store holds no record for the key.
	ErrCacheRecordNotFound = errors.New("cache record not found")

	// ErrUnknownEcosystem indicates that an ecosystem name is not in the catalog.
	ErrUnknownEcosystem = errors.New("unknown ecosystem")
)

// Validation errors represent malformed input.
var (
	// ErrInvalidRange indicates a time range outside YTD, 1Y, 2Y and 3Y.
	ErrInvalidRange = errors.New("invalid time range")

	// ErrInvalidSymbol indicates an empty ticker symbol.
	ErrInvalidSymbol = errors.New("symbol is required")

	// ErrInvalidConfig indicates that an environment value could not be parsed.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Operation failure errors represent system-level failures.
var (
	ErrFailedToGetPerformance  = errors.New("failed to get aggregate performance")
	ErrFailedToGetCacheSummary = errors.New("failed to get cache summary")
	ErrFailedToGetVersionInfo  = errors.New("failed to get version information")
)

// ProviderErrorKind classifies a market data provider failure.
type ProviderErrorKind int

const (
	// KindOther covers unknown symbols, malformed payloads and network failures.
	// These are never retried.
	KindOther ProviderErrorKind = iota
	// KindRateLimited covers throttling (HTTP 429) and authentication/session
	// token failures. These are retried with backoff.
	KindRateLimited
)

func (k ProviderErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	default:
		return "other"
	}
}

// ProviderError is returned by market data sources for every failed call.
type ProviderError struct {
	Kind       ProviderErrorKind
	Op         string // "history" or "quote"
	Symbol     string
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s %s (%s, status %d): %v", e.Op, e.Symbol, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s %s (%s): %v", e.Op, e.Symbol, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewRateLimited builds a ProviderError of kind KindRateLimited.
func NewRateLimited(op, symbol string, status int, err error) *ProviderError {
	return &ProviderError{Kind: KindRateLimited, Op: op, Symbol: symbol, StatusCode: status, Err: err}
}

// NewProviderFailure builds a ProviderError of kind KindOther.
func NewProviderFailure(op, symbol string, status int, err error) *ProviderError {
	return &ProviderError{Kind: KindOther, Op: op, Symbol: symbol, StatusCode: status, Err: err}
}

// IsRateLimited reports whether err carries a rate-limited ProviderError.
func IsRateLimited(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == KindRateLimited
}
