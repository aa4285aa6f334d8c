package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rotatelab/rotator/internal/marketdata"
)

var hundred = decimal.NewFromInt(100)

// CumulativeReturn is the fractional price change over the last days
// bars: (mostRecentClose - closeNDaysAgo) / closeNDaysAgo. If the
// series is shorter than days, the oldest available bar substitutes for
// the N-days-ago close. The dividend term is currently always zero;
// reinvestment plugs in here when dividend data is wired up.
func CumulativeReturn(series marketdata.Series, days int) (decimal.Decimal, error) {
	if len(series) == 0 {
		return decimal.Zero, fmt.Errorf("no price history")
	}
	if days < 1 {
		return decimal.Zero, fmt.Errorf("invalid window %d", days)
	}

	series.SortDescending()

	current := series[0].Close
	idx := days - 1
	if idx >= len(series) {
		idx = len(series) - 1
	}
	past := series[idx].Close
	if past.IsZero() {
		return decimal.Zero, fmt.Errorf("zero close %d bars ago", idx)
	}

	dividends := decimal.Zero

	return current.Add(dividends).Sub(past).Div(past), nil
}

// RSI is the relative strength index over the last days daily changes,
// using simple (non-exponential) averages of gains and losses. When the
// window contains no losses, RS is treated as infinite and RSI is 100.
func RSI(series marketdata.Series, days int) (decimal.Decimal, error) {
	if len(series) < 2 {
		return decimal.Zero, fmt.Errorf("need at least 2 bars, have %d", len(series))
	}
	if days < 1 {
		return decimal.Zero, fmt.Errorf("invalid window %d", days)
	}

	series.SortAscending()

	gains := decimal.Zero
	losses := decimal.Zero
	changes := len(series) - 1
	start := changes - days
	if start < 0 {
		start = 0
	}
	for i := start; i < changes; i++ {
		change := series[i+1].Close.Sub(series[i].Close)
		if change.IsPositive() {
			gains = gains.Add(change)
		} else {
			losses = losses.Sub(change)
		}
	}

	window := decimal.NewFromInt(int64(days))
	avgGain := gains.Div(window)
	avgLoss := losses.Div(window)

	if avgLoss.IsZero() {
		return hundred, nil
	}

	rs := avgGain.Div(avgLoss)
	return hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs))), nil
}
