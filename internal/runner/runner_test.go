package runner

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotatelab/rotator/internal/broker"
	"github.com/rotatelab/rotator/internal/execution"
	"github.com/rotatelab/rotator/internal/marketdata"
	"github.com/rotatelab/rotator/internal/portfolio"
	"github.com/rotatelab/rotator/internal/strategy"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

type fakeHistoryProvider struct {
	histories marketdata.History
}

func (f *fakeHistoryProvider) PriceHistory(ctx context.Context, symbol string) (marketdata.Series, error) {
	return f.histories[symbol], nil
}

func trend(start, step float64, n int) marketdata.Series {
	base := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	s := make(marketdata.Series, 0, n)
	price := decimal.NewFromFloat(start)
	inc := decimal.NewFromFloat(step)
	for i := 0; i < n; i++ {
		s = append(s, marketdata.Bar{Time: base.AddDate(0, 0, i), Close: price})
		price = price.Add(inc)
	}
	return s
}

// risingRatesHistories steers the engine to the [UUP, QID] target pair
// so allocation and fills are deterministic.
func risingRatesHistories() marketdata.History {
	return marketdata.History{
		"AGG":  trend(100, -0.5, 70),
		"BIL":  trend(100, 0, 70),
		"SOXL": trend(200, 1, 70),
		"TQQQ": trend(100, 1, 70),
		"UPRO": trend(80, 1, 70),
		"TECL": trend(90, 1, 70),
		"TLT":  trend(100, -0.5, 70),
		"QID":  trend(30, -0.1, 70),
		"TBF":  trend(20, 0.1, 70),
	}
}

// fakeBrokerage serves quotes from a fixed table and fills every market
// order immediately at the quoted ask.
type fakeBrokerage struct {
	mu     sync.Mutex
	quotes map[string]broker.Quote
	orders map[string]broker.OrderDetail
	nextID int
}

func newFakeBrokerage(quotes map[string]broker.Quote) *fakeBrokerage {
	return &fakeBrokerage{quotes: quotes, orders: make(map[string]broker.OrderDetail)}
}

func (f *fakeBrokerage) CurrentQuotes(ctx context.Context, symbols []string) (map[string]broker.Quote, error) {
	out := make(map[string]broker.Quote, len(symbols))
	for _, symbol := range symbols {
		if q, ok := f.quotes[symbol]; ok {
			out[symbol] = q
		}
	}
	return out, nil
}

func (f *fakeBrokerage) Orders(ctx context.Context, account string, from, to time.Time) ([]broker.OrderSummary, error) {
	return nil, nil
}

func (f *fakeBrokerage) CancelOrder(ctx context.Context, account, orderID string) error {
	return nil
}

func (f *fakeBrokerage) PlaceMarketOrder(ctx context.Context, account, symbol string, quantity int64, side broker.Side) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("ord-%d", f.nextID)
	qty := decimal.NewFromInt(quantity)
	price := f.quotes[symbol].Ask
	f.orders[id] = broker.OrderDetail{
		ID:             id,
		Status:         broker.StatusFilled,
		FilledQuantity: qty,
		Activities: []broker.Activity{
			{Legs: []broker.ExecutionLeg{{Quantity: qty, Price: price}}},
		},
	}
	return id, nil
}

func (f *fakeBrokerage) Order(ctx context.Context, account, orderID string) (broker.OrderDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[orderID], nil
}

func TestRunRebalancesFlatAccount(t *testing.T) {
	logger := quietLogger()
	brokerage := newFakeBrokerage(map[string]broker.Quote{
		"UUP": {Symbol: "UUP", Ask: dec("100"), Bid: dec("99.90"), Realtime: true},
		"QID": {Symbol: "QID", Ask: dec("50"), Bid: dec("49.95"), Realtime: true},
	})
	store := portfolio.NewMemoryStore(&portfolio.Portfolio{
		AccountID: "acct-1",
		Cash:      dec("10000"),
	})

	r := New(Deps{
		Engine:    strategy.NewEngine(&fakeHistoryProvider{histories: risingRatesHistories()}, logger),
		Brokerage: brokerage,
		Store:     store,
		Pipeline:  execution.New(brokerage, nil, execution.Config{PollInterval: time.Millisecond}, logger),
		Logger:    logger,
	})

	require.NoError(t, r.Run(context.Background()))

	// 10000 split over UUP@100 and QID@50 buys 50 and 100 shares
	saved, ok := store.Get("acct-1")
	require.True(t, ok)
	assert.True(t, saved.Cash.IsZero(), "cash = %s", saved.Cash)
	assert.True(t, saved.Positions["UUP"].Equal(dec("50")))
	assert.True(t, saved.Positions["QID"].Equal(dec("100")))
}

func TestRunIsolatesAccountFailures(t *testing.T) {
	logger := quietLogger()
	brokerage := newFakeBrokerage(map[string]broker.Quote{
		"UUP": {Symbol: "UUP", Ask: dec("100"), Realtime: true},
		"QID": {Symbol: "QID", Ask: dec("50"), Realtime: true},
	})
	store := portfolio.NewMemoryStore(
		&portfolio.Portfolio{
			AccountID: "acct-good",
			Cash:      dec("10000"),
		},
		&portfolio.Portfolio{
			// holds a symbol with no quote, so valuation fails
			AccountID: "acct-bad",
			Cash:      dec("500"),
			Positions: map[string]decimal.Decimal{"GHOST": dec("1")},
		},
	)

	r := New(Deps{
		Engine:    strategy.NewEngine(&fakeHistoryProvider{histories: risingRatesHistories()}, logger),
		Brokerage: brokerage,
		Store:     store,
		Pipeline:  execution.New(brokerage, nil, execution.Config{PollInterval: time.Millisecond}, logger),
		Logger:    logger,
	})

	err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acct-bad")

	// the failing account never blocks the healthy one
	saved, ok := store.Get("acct-good")
	require.True(t, ok)
	assert.True(t, saved.Cash.IsZero(), "cash = %s", saved.Cash)
	assert.True(t, saved.Positions["UUP"].Equal(dec("50")))
	assert.True(t, saved.Positions["QID"].Equal(dec("100")))

	// the failing account's ledger is untouched
	bad, ok := store.Get("acct-bad")
	require.True(t, ok)
	assert.True(t, bad.Cash.Equal(dec("500")))
	assert.True(t, bad.Positions["GHOST"].Equal(dec("1")))
}

func TestRunFailsWhenStrategyFails(t *testing.T) {
	logger := quietLogger()
	brokerage := newFakeBrokerage(nil)

	r := New(Deps{
		Engine:    strategy.NewEngine(&fakeHistoryProvider{histories: marketdata.History{}}, logger),
		Brokerage: brokerage,
		Store:     portfolio.NewMemoryStore(),
		Pipeline:  execution.New(brokerage, nil, execution.Config{}, logger),
		Logger:    logger,
	})

	require.Error(t, r.Run(context.Background()))
}
