package portfolio

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotatelab/rotator/internal/broker"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestApplyFill(t *testing.T) {
	tests := []struct {
		name      string
		start     *Portfolio
		symbol    string
		side      broker.Side
		quantity  string
		notional  string
		wantCash  string
		wantQty   string
	}{
		{
			name:     "buy into empty portfolio",
			start:    &Portfolio{Cash: dec("1000")},
			symbol:   "AGG",
			side:     broker.SideBuy,
			quantity: "5",
			notional: "502.50",
			wantCash: "497.50",
			wantQty:  "5",
		},
		{
			name: "sell existing position",
			start: &Portfolio{
				Cash:      dec("100"),
				Positions: map[string]decimal.Decimal{"BIL": dec("10")},
			},
			symbol:   "BIL",
			side:     broker.SideSell,
			quantity: "4",
			notional: "200",
			wantCash: "300",
			wantQty:  "6",
		},
		{
			name: "sell to zero leaves the entry",
			start: &Portfolio{
				Cash:      dec("0"),
				Positions: map[string]decimal.Decimal{"XYZ": dec("3")},
			},
			symbol:   "XYZ",
			side:     broker.SideSell,
			quantity: "3",
			notional: "90",
			wantCash: "90",
			wantQty:  "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.start.ApplyFill(tt.symbol, tt.side, dec(tt.quantity), dec(tt.notional))

			assert.True(t, tt.start.Cash.Equal(dec(tt.wantCash)),
				"cash = %s, want %s", tt.start.Cash, tt.wantCash)
			assert.True(t, tt.start.Positions[tt.symbol].Equal(dec(tt.wantQty)),
				"position = %s, want %s", tt.start.Positions[tt.symbol], tt.wantQty)
		})
	}
}

func TestLiquidationValue(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	book := broker.NewBook(map[string]broker.Quote{
		"AGG": {Symbol: "AGG", Ask: dec("100"), Bid: dec("99"), Realtime: true},
		"BIL": {Symbol: "BIL", Ask: dec("50"), Bid: dec("49.90"), Realtime: true},
	}, false, logger)

	p := &Portfolio{
		Cash: dec("250"),
		Positions: map[string]decimal.Decimal{
			"AGG": dec("2"),
			"BIL": dec("3"),
		},
	}

	got, err := p.LiquidationValue(book)
	require.NoError(t, err)

	// 250 + 2*100 + 3*50, valued at ask
	assert.True(t, got.Equal(dec("600")), "liquidation value = %s", got)
}

func TestLiquidationValueMissingQuote(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	book := broker.NewBook(map[string]broker.Quote{}, false, logger)
	p := &Portfolio{
		Cash:      dec("100"),
		Positions: map[string]decimal.Decimal{"AGG": dec("1")},
	}

	_, err := p.LiquidationValue(book)
	require.Error(t, err)
}

func TestHeldSymbolsIncludesZeroRemnants(t *testing.T) {
	p := &Portfolio{Positions: map[string]decimal.Decimal{
		"AGG": dec("5"),
		"OLD": dec("0"),
	}}

	assert.ElementsMatch(t, []string{"AGG", "OLD"}, p.HeldSymbols())
}

func TestMemoryStoreIsolatesCopies(t *testing.T) {
	original := &Portfolio{
		AccountID: "acct-1",
		Cash:      dec("1000"),
		Positions: map[string]decimal.Decimal{"AGG": dec("5")},
	}
	store := NewMemoryStore(original)

	// mutating the caller's value must not reach the store
	original.Cash = dec("0")
	original.Positions["AGG"] = dec("99")

	all, err := store.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Cash.Equal(dec("1000")))
	assert.True(t, all[0].Positions["AGG"].Equal(dec("5")))

	// and mutating a loaded copy must not reach the store either
	all[0].Positions["AGG"] = dec("-1")
	stored, ok := store.Get("acct-1")
	require.True(t, ok)
	assert.True(t, stored.Positions["AGG"].Equal(dec("5")))
}
