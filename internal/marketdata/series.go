package marketdata

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one daily closing price observation.
type Bar struct {
	Time  time.Time       `json:"time"`
	Close decimal.Decimal `json:"close"`
}

// Series is the price history for a single symbol. Feed order is not
// trusted: consumers must call SortAscending or SortDescending before
// indexing into a series.
type Series []Bar

// SortAscending orders bars oldest first, in place.
func (s Series) SortAscending() {
	sort.Slice(s, func(i, j int) bool { return s[i].Time.Before(s[j].Time) })
}

// SortDescending orders bars newest first, in place.
func (s Series) SortDescending() {
	sort.Slice(s, func(i, j int) bool { return s[i].Time.After(s[j].Time) })
}

// History holds cycle-scoped price series for a set of symbols.
type History map[string]Series

// HistoryProvider fetches daily price history with enough lookback for
// the longest indicator window plus one bar. Implementations must be
// safe for concurrent use.
type HistoryProvider interface {
	PriceHistory(ctx context.Context, symbol string) (Series, error)
}

// Fetch loads history for every symbol. Symbols are fetched
// sequentially; providers rate-limit themselves.
func Fetch(ctx context.Context, provider HistoryProvider, symbols []string) (History, error) {
	h := make(History, len(symbols))
	for _, symbol := range symbols {
		series, err := provider.PriceHistory(ctx, symbol)
		if err != nil {
			return nil, err
		}
		h[symbol] = series
	}
	return h, nil
}
