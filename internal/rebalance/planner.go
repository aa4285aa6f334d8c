// Package rebalance diffs current holdings against desired positions
// into the minimal set of buy and sell quantities.
package rebalance

import "github.com/shopspring/decimal"

// Delta is the planned position change for one account. A symbol never
// appears on both sides, and zero quantities are never emitted.
type Delta struct {
	Sell map[string]decimal.Decimal
	Buy  map[string]decimal.Decimal
}

// Empty reports whether no orders are needed.
func (d Delta) Empty() bool {
	return len(d.Sell) == 0 && len(d.Buy) == 0
}

// Plan computes the delta over the union of current and desired
// symbols: a symbol only held is sold in full, a symbol only desired
// is bought in full, and a symbol in both trades the signed
// difference. Partial fills are not assumed at planning time.
func Plan(current map[string]decimal.Decimal, desired map[string]int64) Delta {
	delta := Delta{
		Sell: make(map[string]decimal.Decimal),
		Buy:  make(map[string]decimal.Decimal),
	}

	for symbol, qty := range current {
		target, wanted := desired[symbol]
		if !wanted {
			if !qty.IsZero() {
				delta.Sell[symbol] = qty
			}
			continue
		}
		diff := decimal.NewFromInt(target).Sub(qty)
		switch {
		case diff.IsPositive():
			delta.Buy[symbol] = diff
		case diff.IsNegative():
			delta.Sell[symbol] = diff.Neg()
		}
	}

	for symbol, target := range desired {
		if _, held := current[symbol]; held {
			continue
		}
		if target != 0 {
			delta.Buy[symbol] = decimal.NewFromInt(target)
		}
	}

	return delta
}
