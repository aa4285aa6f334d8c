package rebalance

import (
	"testing"

	"github.com/shopspring/decimal"
)

func positions(pairs map[string]int64) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(pairs))
	for symbol, qty := range pairs {
		out[symbol] = decimal.NewFromInt(qty)
	}
	return out
}

func TestPlan(t *testing.T) {
	tests := []struct {
		name     string
		current  map[string]decimal.Decimal
		desired  map[string]int64
		wantSell map[string]int64
		wantBuy  map[string]int64
	}{
		{
			name:     "sell everything",
			current:  positions(map[string]int64{"XYZ": 10}),
			desired:  map[string]int64{},
			wantSell: map[string]int64{"XYZ": 10},
			wantBuy:  map[string]int64{},
		},
		{
			name:     "buy from flat",
			current:  map[string]decimal.Decimal{},
			desired:  map[string]int64{"AGG": 50, "BIL": 100},
			wantSell: map[string]int64{},
			wantBuy:  map[string]int64{"AGG": 50, "BIL": 100},
		},
		{
			name:     "adjust in both directions",
			current:  positions(map[string]int64{"AGG": 80, "BIL": 40}),
			desired:  map[string]int64{"AGG": 50, "BIL": 100},
			wantSell: map[string]int64{"AGG": 30},
			wantBuy:  map[string]int64{"BIL": 60},
		},
		{
			name:     "unchanged position omitted",
			current:  positions(map[string]int64{"AGG": 50}),
			desired:  map[string]int64{"AGG": 50},
			wantSell: map[string]int64{},
			wantBuy:  map[string]int64{},
		},
		{
			name:     "zero-quantity remnant is not sold",
			current:  positions(map[string]int64{"OLD": 0}),
			desired:  map[string]int64{"AGG": 10},
			wantSell: map[string]int64{},
			wantBuy:  map[string]int64{"AGG": 10},
		},
		{
			name:     "zero desired quantity is not bought",
			current:  map[string]decimal.Decimal{},
			desired:  map[string]int64{"AGG": 0},
			wantSell: map[string]int64{},
			wantBuy:  map[string]int64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Plan(tt.current, tt.desired)

			assertSide(t, "sell", got.Sell, tt.wantSell)
			assertSide(t, "buy", got.Buy, tt.wantBuy)

			for symbol := range got.Sell {
				if _, both := got.Buy[symbol]; both {
					t.Errorf("%s appears in both buy and sell", symbol)
				}
			}
		})
	}
}

func assertSide(t *testing.T, side string, got map[string]decimal.Decimal, want map[string]int64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s = %v, want %v", side, got, want)
	}
	for symbol, qty := range want {
		if !got[symbol].Equal(decimal.NewFromInt(qty)) {
			t.Errorf("%s[%s] = %s, want %d", side, symbol, got[symbol], qty)
		}
	}
}

// Applying a fully-filled delta to the current positions must land
// exactly on the desired positions.
func TestPlanRoundTrip(t *testing.T) {
	current := positions(map[string]int64{"AGG": 80, "BIL": 40, "XYZ": 7})
	desired := map[string]int64{"AGG": 50, "BIL": 100, "UUP": 3}

	delta := Plan(current, desired)

	applied := make(map[string]decimal.Decimal, len(current))
	for symbol, qty := range current {
		applied[symbol] = qty
	}
	for symbol, qty := range delta.Buy {
		applied[symbol] = applied[symbol].Add(qty)
	}
	for symbol, qty := range delta.Sell {
		applied[symbol] = applied[symbol].Sub(qty)
	}

	for symbol, want := range desired {
		if !applied[symbol].Equal(decimal.NewFromInt(want)) {
			t.Errorf("applied[%s] = %s, want %d", symbol, applied[symbol], want)
		}
	}
	for symbol, qty := range applied {
		if _, wanted := desired[symbol]; !wanted && !qty.IsZero() {
			t.Errorf("applied[%s] = %s, want 0", symbol, qty)
		}
	}
}

func TestDeltaEmpty(t *testing.T) {
	if !(Delta{Sell: map[string]decimal.Decimal{}, Buy: map[string]decimal.Decimal{}}).Empty() {
		t.Error("empty delta reported as non-empty")
	}
	if (Delta{Buy: positions(map[string]int64{"AGG": 1})}).Empty() {
		t.Error("non-empty delta reported as empty")
	}
}
