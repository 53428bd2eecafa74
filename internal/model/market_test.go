package model

import (
	"errors"
	"testing"
	"time"

	"github.com/ndewijer/strategy-index-backend/internal/apperrors"
)

func TestParseTimeRange(t *testing.T) {
	t.Run("accepts supported ranges case-insensitively", func(t *testing.T) {
		for in, want := range map[string]TimeRange{"YTD": RangeYTD, "ytd": RangeYTD, " 1y ": Range1Y, "2Y": Range2Y, "3y": Range3Y} {
			got, err := ParseTimeRange(in)
			if err != nil {
				t.Fatalf("ParseTimeRange(%q) returned unexpected error: %v", in, err)
			}
			if got != want {
				t.Errorf("ParseTimeRange(%q) = %s, want %s", in, got, want)
			}
		}
	})

	t.Run("rejects unknown ranges", func(t *testing.T) {
		for _, in := range []string{"", "5Y", "1M", "max"} {
			if _, err := ParseTimeRange(in); !errors.Is(err, apperrors.ErrInvalidRange) {
				t.Errorf("ParseTimeRange(%q): expected ErrInvalidRange, got %v", in, err)
			}
		}
	})
}

func TestTimeRange_Window(t *testing.T) {
	now := time.Date(2026, 10, 14, 15, 30, 0, 0, time.UTC)

	t.Run("anchors every range at now", func(t *testing.T) {
		cases := map[TimeRange]time.Time{
			RangeYTD: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			Range1Y:  time.Date(2025, 10, 14, 15, 30, 0, 0, time.UTC),
			Range2Y:  time.Date(2024, 10, 14, 15, 30, 0, 0, time.UTC),
			Range3Y:  time.Date(2023, 10, 14, 15, 30, 0, 0, time.UTC),
		}
		for r, wantStart := range cases {
			start, end := r.Window(now, time.Time{})
			if !end.Equal(now) {
				t.Errorf("%s: expected end %s, got %s", r, now, end)
			}
			if !start.Equal(wantStart) {
				t.Errorf("%s: expected start %s, got %s", r, wantStart, start)
			}
		}
	})

	t.Run("clamps end to the data ceiling", func(t *testing.T) {
		ceiling := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)

		start, end := Range1Y.Window(now, ceiling)

		if !end.Equal(ceiling) {
			t.Errorf("Expected end %s, got %s", ceiling, end)
		}
		if want := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC); !start.Equal(want) {
			t.Errorf("Expected start %s, got %s", want, start)
		}
	})

	t.Run("ignores a ceiling that now has not reached", func(t *testing.T) {
		ceiling := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)

		_, end := Range2Y.Window(now, ceiling)

		if !end.Equal(now) {
			t.Errorf("Expected end %s, got %s", now, end)
		}
	})

	t.Run("falls back to one year when start does not precede end", func(t *testing.T) {
		ceiling := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

		start, end := RangeYTD.Window(now, ceiling)

		if !end.Equal(ceiling) {
			t.Errorf("Expected end %s, got %s", ceiling, end)
		}
		if want := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC); !start.Equal(want) {
			t.Errorf("Expected fallback start %s, got %s", want, start)
		}
		if !start.Before(end) {
			t.Error("Expected start to precede end")
		}
	})
}

func TestCacheRecord_IsFresh(t *testing.T) {
	ttl := 4 * time.Hour
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

	fresh := CacheRecord{UpdatedAt: now.Add(-ttl + time.Millisecond)}
	if !fresh.IsFresh(now, ttl) {
		t.Error("Expected record aged TTL-1ms to be fresh")
	}

	boundary := CacheRecord{UpdatedAt: now.Add(-ttl)}
	if boundary.IsFresh(now, ttl) {
		t.Error("Expected record aged exactly TTL to be stale")
	}

	stale := CacheRecord{UpdatedAt: now.Add(-ttl - time.Millisecond)}
	if stale.IsFresh(now, ttl) {
		t.Error("Expected record aged TTL+1ms to be stale")
	}
}

func TestEmptyAggregate(t *testing.T) {
	got := EmptyAggregate()

	if got.Tickers == nil || len(got.Tickers) != 0 {
		t.Errorf("Expected empty non-nil tickers, got %v", got.Tickers)
	}
	if got.History == nil || len(got.History) != 0 {
		t.Errorf("Expected empty non-nil history, got %v", got.History)
	}
	if got.CurrentValue != 100 || got.StartValue != 100 || got.TotalChange != 0 {
		t.Errorf("Unexpected degenerate values: %+v", got)
	}
}

func TestPerformanceCodec(t *testing.T) {
	t.Run("preserves history through a payload", func(t *testing.T) {
		in := StockPerformance{
			Symbol:        "6954.T",
			CurrentPrice:  4120.5,
			ChangePercent: -1.25,
			History: []PricePoint{
				{Date: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), Close: 4000},
				{Date: time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC), Close: 4050},
			},
		}

		payload, err := EncodePerformance(in)
		if err != nil {
			t.Fatalf("EncodePerformance() returned unexpected error: %v", err)
		}
		out, err := DecodePerformance(payload)
		if err != nil {
			t.Fatalf("DecodePerformance() returned unexpected error: %v", err)
		}

		if out.Symbol != in.Symbol || out.CurrentPrice != in.CurrentPrice || out.ChangePercent != in.ChangePercent {
			t.Errorf("Expected %+v, got %+v", in, out)
		}
		if len(out.History) != 2 || !out.History[1].Date.Equal(in.History[1].Date) || out.History[1].Close != 4050 {
			t.Errorf("Unexpected history: %+v", out.History)
		}
	})

	t.Run("rejects corrupt payloads", func(t *testing.T) {
		if _, err := DecodePerformance(nil); err == nil {
			t.Error("Expected error for empty payload")
		}
		if _, err := DecodePerformance([]byte{0xc1}); err == nil {
			t.Error("Expected error for invalid payload")
		}
	})
}
