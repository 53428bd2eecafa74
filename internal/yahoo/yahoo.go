package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ndewijer/strategy-index-backend/internal/apperrors"
	"github.com/ndewijer/strategy-index-backend/internal/model"
)

const (
	// DefaultBaseURL is the public Yahoo Finance query host.
	DefaultBaseURL = "https://query1.finance.yahoo.com"

	chartPath = "/v8/finance/chart/{symbol}"
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Options configures a FinanceClient.
type Options struct {
	BaseURL string
	Timeout time.Duration
}

// FinanceClient fetches daily history and quote snapshots from the Yahoo
// Finance chart API. Every failure is returned as an *apperrors.ProviderError.
type FinanceClient struct {
	client *resty.Client
}

// NewFinanceClient creates a new Yahoo Finance client. Zero options fall back
// to the public endpoint and a 10 second timeout per call.
func NewFinanceClient(opts Options) *FinanceClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeaders(map[string]string{
			"Accept":     "application/json",
			"User-Agent": userAgent,
		})

	return &FinanceClient{client: client}
}

// FetchHistory returns the daily closes of symbol within [start, end),
// ascending by date. An empty slice means the provider had no bars for the window.
func (c *FinanceClient) FetchHistory(ctx context.Context, symbol string, start, end time.Time) ([]model.PricePoint, error) {
	resp, err := c.query(ctx, "history", symbol, map[string]string{
		"interval": "1d",
		"period1":  fmt.Sprintf("%d", start.Unix()),
		"period2":  fmt.Sprintf("%d", end.Unix()),
	})
	if err != nil {
		return nil, err
	}

	points, err := ParseHistory(resp)
	if err != nil {
		return nil, apperrors.NewProviderFailure("history", symbol, 0, err)
	}
	return points, nil
}

// FetchQuote returns the current price of symbol and its change against the
// previous close. It reads the last five trading days so the previous close
// is available even after weekends and holidays.
func (c *FinanceClient) FetchQuote(ctx context.Context, symbol string) (model.Quote, error) {
	resp, err := c.query(ctx, "quote", symbol, map[string]string{
		"interval": "1d",
		"range":    "5d",
	})
	if err != nil {
		return model.Quote{}, err
	}

	quote, err := ParseQuote(resp)
	if err != nil {
		return model.Quote{}, apperrors.NewProviderFailure("quote", symbol, 0, err)
	}
	return quote, nil
}

// query executes one chart request and classifies failures.
//
// Classification:
//   - HTTP 429, 401 and 403, and chart errors about crumbs, cookies or
//     authorization, are rate limiting (the session was throttled)
//   - transport failures, other statuses, malformed bodies and empty results
//     are other failures
func (c *FinanceClient) query(ctx context.Context, op, symbol string, params map[string]string) (Response, error) {
	if symbol == "" {
		return Response{}, apperrors.NewProviderFailure(op, symbol, 0, apperrors.ErrInvalidSymbol)
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("symbol", symbol).
		SetQueryParams(params).
		Get(chartPath)
	if err != nil {
		return Response{}, apperrors.NewProviderFailure(op, symbol, 0, err)
	}

	status := resp.StatusCode()
	if isThrottleStatus(status) {
		return Response{}, apperrors.NewRateLimited(op, symbol, status, fmt.Errorf("yahoo returned %s", http.StatusText(status)))
	}

	var response Response
	if err := json.Unmarshal(resp.Body(), &response); err != nil {
		if status < 200 || status >= 300 {
			return Response{}, apperrors.NewProviderFailure(op, symbol, status, fmt.Errorf("yahoo returned %s", http.StatusText(status)))
		}
		return Response{}, apperrors.NewProviderFailure(op, symbol, status, fmt.Errorf("malformed response: %w", err))
	}

	if e := response.Chart.Error; e != nil {
		cause := fmt.Errorf("yahoo error: %s: %s", e.Code, e.Description)
		if isThrottleError(e) {
			return Response{}, apperrors.NewRateLimited(op, symbol, status, cause)
		}
		return Response{}, apperrors.NewProviderFailure(op, symbol, status, cause)
	}

	if status < 200 || status >= 300 {
		return Response{}, apperrors.NewProviderFailure(op, symbol, status, fmt.Errorf("yahoo returned %s", http.StatusText(status)))
	}

	if len(response.Chart.Result) == 0 {
		return Response{}, apperrors.NewProviderFailure(op, symbol, status, fmt.Errorf("no results returned for symbol %s", symbol))
	}

	return response, nil
}

func isThrottleStatus(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusUnauthorized ||
		status == http.StatusForbidden
}

func isThrottleError(e *ChartError) bool {
	text := strings.ToLower(e.Code + " " + e.Description)
	return strings.Contains(text, "unauthorized") ||
		strings.Contains(text, "crumb") ||
		strings.Contains(text, "cookie") ||
		strings.Contains(text, "too many requests")
}

// ParseHistory converts a chart response into daily closes.
//
// Bars with a missing or non-positive close are skipped. Timestamps are shifted
// by the exchange GMT offset before truncation so each bar lands on its local
// trading day. Duplicate days keep the later bar.
func ParseHistory(resp Response) ([]model.PricePoint, error) {
	if len(resp.Chart.Result) == 0 {
		return nil, fmt.Errorf("no results returned")
	}
	result := resp.Chart.Result[0]

	if len(result.Timestamp) == 0 {
		return []model.PricePoint{}, nil
	}
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("no close prices returned")
	}
	closes := result.Indicators.Quote[0].Close
	if len(closes) != len(result.Timestamp) {
		return nil, fmt.Errorf("mismatched data lengths")
	}

	points := make([]model.PricePoint, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if closes[i] == nil || *closes[i] <= 0 {
			continue
		}
		local := time.Unix(ts+result.Meta.GmtOffset, 0).UTC()
		points = append(points, model.PricePoint{
			Date:  time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC),
			Close: *closes[i],
		})
	}

	slices.SortStableFunc(points, func(a, b model.PricePoint) int {
		return a.Date.Compare(b.Date)
	})

	deduped := points[:0]
	for _, p := range points {
		if n := len(deduped); n > 0 && deduped[n-1].Date.Equal(p.Date) {
			deduped[n-1] = p
			continue
		}
		deduped = append(deduped, p)
	}

	return deduped, nil
}

// ParseQuote derives the current price and day change from a short chart.
// The price is the meta regular market price, or the last close when absent.
// The reference is the close before the last bar, or the meta previous close.
func ParseQuote(resp Response) (model.Quote, error) {
	if len(resp.Chart.Result) == 0 {
		return model.Quote{}, fmt.Errorf("no results returned")
	}
	meta := resp.Chart.Result[0].Meta

	history, err := ParseHistory(resp)
	if err != nil {
		history = nil
	}

	var price float64
	if meta.RegularMarketPrice != nil && *meta.RegularMarketPrice > 0 {
		price = *meta.RegularMarketPrice
	} else if n := len(history); n > 0 {
		price = history[n-1].Close
	}
	if price <= 0 {
		return model.Quote{}, fmt.Errorf("no market price returned")
	}

	var previous float64
	switch {
	case len(history) >= 2:
		previous = history[len(history)-2].Close
	case meta.PreviousClose != nil:
		previous = *meta.PreviousClose
	case meta.ChartPreviousClose != nil:
		previous = *meta.ChartPreviousClose
	}

	quote := model.Quote{Price: price}
	if previous > 0 {
		quote.ChangePercent = (price - previous) / previous * 100
	}
	return quote, nil
}
