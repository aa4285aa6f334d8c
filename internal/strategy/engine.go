package strategy

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rotatelab/rotator/internal/marketdata"
)

// Instrument universe. The regime proxies (AGG risk, BIL cash-like,
// TLT duration) and the baskets are fixed policy, not configuration.
var (
	universe = []string{"AGG", "BIL", "SOXL", "TQQQ", "UPRO", "TECL", "TLT", "QID", "TBF"}

	riskOnBasket      = []string{"SOXL", "TQQQ", "UPRO", "TECL"}
	risingRatesBasket = []string{"QID", "TBF"}
	defensiveBasket   = []string{"UGL", "TMF", "BTAL", "XLP"}

	currencyHedge = "UUP"
)

// Engine turns historical prices for the fixed universe into an
// ordered list of target symbols. It runs once per rebalance cycle;
// its output is shared read-only across all account workers.
type Engine struct {
	provider marketdata.HistoryProvider
	logger   *logrus.Logger
}

func NewEngine(provider marketdata.HistoryProvider, logger *logrus.Logger) *Engine {
	return &Engine{provider: provider, logger: logger}
}

// Targets evaluates the regime decision tree:
//
//  1. 60d return(AGG) > 60d return(BIL): risk on. Pick the two
//     lowest-10d-RSI symbols of the leveraged-equity basket (the
//     weakest momentum, a mean-reversion tilt).
//  2. else 20d return(TLT) < 20d return(BIL): risk off, rising rates.
//     Pick the lowest-20d-RSI inverse symbol plus the currency hedge.
//  3. else: risk off, falling rates. The defensive basket verbatim.
func (e *Engine) Targets(ctx context.Context) ([]string, error) {
	data, err := marketdata.Fetch(ctx, e.provider, universe)
	if err != nil {
		return nil, fmt.Errorf("fetching universe history: %w", err)
	}

	riskReturn, err := e.cumulativeReturn(data, "AGG", 60)
	if err != nil {
		return nil, err
	}
	cashReturn, err := e.cumulativeReturn(data, "BIL", 60)
	if err != nil {
		return nil, err
	}

	if riskReturn.GreaterThan(cashReturn) {
		e.logger.Info("Strategy selected: risk on")
		ranked, err := e.rankByRSI(data, riskOnBasket, 10)
		if err != nil {
			return nil, err
		}
		return ranked[:2], nil
	}

	durationReturn, err := e.cumulativeReturn(data, "TLT", 20)
	if err != nil {
		return nil, err
	}
	cashReturn20, err := e.cumulativeReturn(data, "BIL", 20)
	if err != nil {
		return nil, err
	}

	if durationReturn.LessThan(cashReturn20) {
		e.logger.Info("Strategy selected: risk off, rising rates")
		ranked, err := e.rankByRSI(data, risingRatesBasket, 20)
		if err != nil {
			return nil, err
		}
		return []string{currencyHedge, ranked[0]}, nil
	}

	e.logger.WithField("basket", defensiveBasket).Info("Strategy selected: risk off, falling rates")
	targets := make([]string, len(defensiveBasket))
	copy(targets, defensiveBasket)
	return targets, nil
}

func (e *Engine) cumulativeReturn(data marketdata.History, symbol string, days int) (decimal.Decimal, error) {
	r, err := CumulativeReturn(data[symbol], days)
	if err != nil {
		return decimal.Zero, fmt.Errorf("cumulative return for %s: %w", symbol, err)
	}
	e.logger.WithFields(logrus.Fields{
		"symbol": symbol,
		"days":   days,
		"return": r.String(),
	}).Info("Cumulative return")
	return r, nil
}

// rankByRSI returns basket symbols sorted by RSI ascending. Equal RSI
// values keep basket order, so ties are deterministic.
func (e *Engine) rankByRSI(data marketdata.History, basket []string, days int) ([]string, error) {
	type strength struct {
		symbol string
		rsi    decimal.Decimal
	}

	strengths := make([]strength, 0, len(basket))
	for _, symbol := range basket {
		rsi, err := RSI(data[symbol], days)
		if err != nil {
			return nil, fmt.Errorf("RSI for %s: %w", symbol, err)
		}
		strengths = append(strengths, strength{symbol: symbol, rsi: rsi})
	}

	sort.SliceStable(strengths, func(i, j int) bool {
		return strengths[i].rsi.LessThan(strengths[j].rsi)
	})

	ranked := make([]string, 0, len(strengths))
	for _, s := range strengths {
		e.logger.WithFields(logrus.Fields{
			"symbol": s.symbol,
			"days":   days,
			"rsi":    s.rsi.StringFixed(2),
		}).Info("RSI rank")
		ranked = append(ranked, s.symbol)
	}
	return ranked, nil
}
