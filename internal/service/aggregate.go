package service

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/ndewijer/strategy-index-backend/internal/model"
)

// Aggregate combines per-symbol performances into one index.
//
// Each history is rebased to model.IndexBase at its own first close, then the
// rebased values are averaged per calendar date over the symbols that have a
// close on that date. Results with an empty history are listed among the
// tickers but do not shape the curve. No input yields model.EmptyAggregate.
func Aggregate(results []model.StockPerformance) model.AggregateResult {
	if len(results) == 0 {
		return model.EmptyAggregate()
	}

	tickers := make([]model.TickerSummary, 0, len(results))
	byDate := make(map[string][]float64)

	for _, r := range results {
		tickers = append(tickers, model.TickerSummary{
			Symbol: r.Symbol,
			Price:  r.CurrentPrice,
			Change: r.ChangePercent,
		})

		for date, value := range Rebase(r.History) {
			byDate[date] = append(byDate[date], value)
		}
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	history := make([]model.IndexPoint, len(dates))
	for i, d := range dates {
		history[i] = model.IndexPoint{Date: d, Value: stat.Mean(byDate[d], nil)}
	}

	current := model.IndexBase
	if n := len(history); n > 0 {
		current = history[n-1].Value
	}

	return model.AggregateResult{
		Tickers:      tickers,
		History:      history,
		CurrentValue: current,
		StartValue:   model.IndexBase,
		TotalChange:  current - model.IndexBase,
	}
}

// Rebase scales history so its first close maps to model.IndexBase and
// returns the values keyed by date. A history whose first close isn't
// positive can't be rebased and yields nil.
func Rebase(history []model.PricePoint) map[string]float64 {
	if len(history) == 0 || history[0].Close <= 0 {
		return nil
	}

	first := history[0].Close
	out := make(map[string]float64, len(history))
	for _, p := range history {
		out[model.DateKey(p.Date)] = model.IndexBase * p.Close / first
	}
	return out
}
