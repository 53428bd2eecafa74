package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ndewijer/strategy-index-backend/internal/apperrors"
	"github.com/ndewijer/strategy-index-backend/internal/model"
)

// MockProvider is a scripted market data source for testing.
// Symbols without a configured series fail with a not-found provider error.
// It is safe for concurrent use and records every call it receives.
type MockProvider struct {
	mu sync.Mutex

	history map[string][]model.PricePoint
	quotes  map[string]model.Quote
	errs    map[string]error
	pending map[string][]error
	delay   time.Duration

	historyCalls map[string]int
	quoteCalls   map[string]int
	windows      map[string][2]time.Time
	inFlight     int
	maxInFlight  int
}

// NewMockProvider creates an empty mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		history:      make(map[string][]model.PricePoint),
		quotes:       make(map[string]model.Quote),
		errs:         make(map[string]error),
		pending:      make(map[string][]error),
		historyCalls: make(map[string]int),
		quoteCalls:   make(map[string]int),
		windows:      make(map[string][2]time.Time),
	}
}

// WithSeries configures symbol with one daily close per value starting at
// start. The quote is the last close with a zero change.
func (m *MockProvider) WithSeries(symbol string, start time.Time, closes ...float64) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history[symbol] = Series(start, closes...)
	var price float64
	if n := len(closes); n > 0 {
		price = closes[n-1]
	}
	m.quotes[symbol] = model.Quote{Price: price}
	return m
}

// WithQuote overrides the quote of symbol.
func (m *MockProvider) WithQuote(symbol string, quote model.Quote) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.quotes[symbol] = quote
	return m
}

// WithError makes every call for symbol fail with err.
func (m *MockProvider) WithError(symbol string, err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.errs[symbol] = err
	return m
}

// FailNext makes the next calls for symbol fail with errs, in order, before
// falling back to the configured behavior.
func (m *MockProvider) FailNext(symbol string, errs ...error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending[symbol] = append(m.pending[symbol], errs...)
	return m
}

// WithDelay makes every call take at least d.
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.delay = d
	return m
}

// FetchHistory returns the configured series of symbol.
func (m *MockProvider) FetchHistory(ctx context.Context, symbol string, start, end time.Time) ([]model.PricePoint, error) {
	if err := m.enter(ctx, symbol, m.historyCalls); err != nil {
		return nil, err
	}
	defer m.leave()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.windows[symbol] = [2]time.Time{start, end}

	if err := m.failure("history", symbol); err != nil {
		return nil, err
	}
	points := m.history[symbol]
	out := make([]model.PricePoint, len(points))
	copy(out, points)
	return out, nil
}

// FetchQuote returns the configured quote of symbol.
func (m *MockProvider) FetchQuote(ctx context.Context, symbol string) (model.Quote, error) {
	if err := m.enter(ctx, symbol, m.quoteCalls); err != nil {
		return model.Quote{}, err
	}
	defer m.leave()

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure("quote", symbol); err != nil {
		return model.Quote{}, err
	}
	return m.quotes[symbol], nil
}

// HistoryCalls returns how many history calls symbol received.
func (m *MockProvider) HistoryCalls(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.historyCalls[symbol]
}

// QuoteCalls returns how many quote calls symbol received.
func (m *MockProvider) QuoteCalls(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.quoteCalls[symbol]
}

// TotalHistoryCalls returns the number of history calls across all symbols.
func (m *MockProvider) TotalHistoryCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for _, n := range m.historyCalls {
		total += n
	}
	return total
}

// FetchedSymbols returns the sorted symbols that received a history call.
func (m *MockProvider) FetchedSymbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	symbols := make([]string, 0, len(m.historyCalls))
	for s := range m.historyCalls {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// LastWindow returns the [start, end) window of the latest history call for symbol.
func (m *MockProvider) LastWindow(symbol string) (time.Time, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.windows[symbol]
	return w[0], w[1]
}

// MaxInFlight returns the highest number of calls observed running at once.
func (m *MockProvider) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.maxInFlight
}

func (m *MockProvider) enter(ctx context.Context, symbol string, calls map[string]int) error {
	m.mu.Lock()
	calls[symbol]++
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	delay := m.delay
	m.mu.Unlock()

	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		m.leave()
		return apperrors.NewProviderFailure("call", symbol, 0, ctx.Err())
	}
}

func (m *MockProvider) leave() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.inFlight--
}

// failure must be called with m.mu held.
func (m *MockProvider) failure(op, symbol string) error {
	if queue := m.pending[symbol]; len(queue) > 0 {
		m.pending[symbol] = queue[1:]
		return queue[0]
	}
	if err, ok := m.errs[symbol]; ok {
		return err
	}
	if _, ok := m.history[symbol]; !ok {
		return apperrors.NewProviderFailure(op, symbol, 404, errors.New("symbol not found"))
	}
	return nil
}

// RateLimitedError returns a provider error classified as rate limiting.
func RateLimitedError(symbol string) error {
	return apperrors.NewRateLimited("history", symbol, 429, errors.New("too many requests"))
}

// ProviderFailure returns a provider error that is not rate limiting.
func ProviderFailure(symbol string) error {
	return apperrors.NewProviderFailure("history", symbol, 500, errors.New("upstream failure"))
}
