// Package provider wraps a market data source with the process-wide
// concurrency cap and the retry policy for throttled calls.
package provider

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/ndewijer/strategy-index-backend/internal/apperrors"
	"github.com/ndewijer/strategy-index-backend/internal/model"
)

// Source is a market data provider. Implementations return
// *apperrors.ProviderError values so callers can tell throttling apart from
// other failures.
type Source interface {
	FetchHistory(ctx context.Context, symbol string, start, end time.Time) ([]model.PricePoint, error)
	FetchQuote(ctx context.Context, symbol string) (model.Quote, error)
}

// RetryPolicy controls how rate limited calls are retried. Calls that fail
// for any other reason are never retried.
type RetryPolicy struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries uint64
	// Base is the first backoff delay; each following delay doubles.
	Base time.Duration
	// Timeout bounds every single attempt. Zero disables it.
	Timeout time.Duration
}

// DefaultRetryPolicy retries three times after 2s, 4s and 8s, with a 10s
// timeout per attempt.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Base: 2 * time.Second, Timeout: 10 * time.Second}
}

// Client applies the limiter and retry policy to a Source. It satisfies
// Source itself.
type Client struct {
	source  Source
	limiter *Limiter
	policy  RetryPolicy
	logger  zerolog.Logger
}

// NewClient creates a Client. The limiter is shared and must not be nil.
func NewClient(source Source, limiter *Limiter, policy RetryPolicy, logger zerolog.Logger) *Client {
	if policy.Base <= 0 {
		policy.Base = DefaultRetryPolicy().Base
	}
	return &Client{
		source:  source,
		limiter: limiter,
		policy:  policy,
		logger:  logger.With().Str("component", "provider").Logger(),
	}
}

// FetchHistory returns the daily closes of symbol in [start, end).
func (c *Client) FetchHistory(ctx context.Context, symbol string, start, end time.Time) ([]model.PricePoint, error) {
	var points []model.PricePoint
	err := c.do(ctx, "history", symbol, func(ctx context.Context) error {
		var err error
		points, err = c.source.FetchHistory(ctx, symbol, start, end)
		return err
	})
	if err != nil {
		return nil, err
	}
	return points, nil
}

// FetchQuote returns the current quote of symbol.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (model.Quote, error) {
	var quote model.Quote
	err := c.do(ctx, "quote", symbol, func(ctx context.Context) error {
		var err error
		quote, err = c.source.FetchQuote(ctx, symbol)
		return err
	})
	if err != nil {
		return model.Quote{}, err
	}
	return quote, nil
}

// do runs call under the retry policy. Each attempt takes a limiter slot for
// the duration of the call only, so a backing-off caller never blocks others.
func (c *Client) do(ctx context.Context, op, symbol string, call func(context.Context) error) error {
	backoff := retry.WithMaxRetries(c.policy.MaxRetries, retry.NewExponential(c.policy.Base))

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++

		err := c.limiter.Do(ctx, func(ctx context.Context) error {
			if c.policy.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, c.policy.Timeout)
				defer cancel()
			}
			return call(ctx)
		})
		if err == nil {
			return nil
		}

		if apperrors.IsRateLimited(err) {
			c.logger.Warn().
				Err(err).
				Str("op", op).
				Str("symbol", symbol).
				Int("attempt", attempt).
				Msg("provider rate limited")
			return retry.RetryableError(err)
		}
		return err
	})
}
