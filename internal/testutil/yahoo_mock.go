package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ndewijer/strategy-index-backend/internal/yahoo"
)

// CreateMockYahooResponse creates a Yahoo chart response with one daily bar
// per close, starting at start. A negative close is emitted as a null bar,
// the way Yahoo reports days without trading.
func CreateMockYahooResponse(symbol string, start time.Time, closes ...float64) yahoo.Response {
	timestamps := make([]int64, len(closes))
	values := make([]*float64, len(closes))

	for i, c := range closes {
		// 14:30 UTC is the US market open; keeps every bar inside its day.
		timestamps[i] = start.AddDate(0, 0, i).Add(14*time.Hour + 30*time.Minute).Unix()
		if c < 0 {
			continue
		}
		v := c
		values[i] = &v
	}

	var price *float64
	if n := len(closes); n > 0 && closes[n-1] > 0 {
		p := closes[n-1]
		price = &p
	}

	return yahoo.Response{
		Chart: yahoo.Chart{
			Result: []yahoo.Result{
				{
					Meta: yahoo.Meta{
						Symbol:             symbol,
						Currency:           "USD",
						ExchangeName:       "NMS",
						FullExchangeName:   "NASDAQ",
						RegularMarketPrice: price,
					},
					Timestamp: timestamps,
					Indicators: yahoo.IndicatorsContainer{
						Quote: []yahoo.Quote{{Close: values}},
					},
				},
			},
		},
	}
}

// CreateMockYahooErrorResponse creates a Yahoo response carrying a chart error.
func CreateMockYahooErrorResponse(code, description string) yahoo.Response {
	return yahoo.Response{
		Chart: yahoo.Chart{
			Error: &yahoo.ChartError{Code: code, Description: description},
		},
	}
}

// YahooServer is an httptest server answering the chart endpoint with a
// fixed status and body. Hits counts the requests it served.
type YahooServer struct {
	*httptest.Server
	Hits atomic.Int32
	// LastQuery holds the raw query string of the latest request.
	LastQuery atomic.Value
}

// NewYahooServer starts a server that replies with status and resp encoded
// as JSON. The server is closed when the test completes.
func NewYahooServer(t *testing.T, status int, resp yahoo.Response) *YahooServer {
	t.Helper()

	body, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Failed to encode yahoo response: %v", err)
	}
	return NewRawYahooServer(t, status, body)
}

// NewRawYahooServer starts a server that replies with status and body verbatim.
func NewRawYahooServer(t *testing.T, status int, body []byte) *YahooServer {
	t.Helper()

	ys := &YahooServer{}
	ys.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ys.Hits.Add(1)
		ys.LastQuery.Store(r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write(body) //nolint:errcheck // test server
	}))
	t.Cleanup(ys.Close)

	return ys
}
