// Package alloc turns a cash budget and a target symbol list into
// integer share quantities that spend as much of the budget as
// possible without ever exceeding it.
package alloc

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Allocation is the result of sizing a budget across target symbols.
type Allocation struct {
	Quantities map[string]int64
	Spent      decimal.Decimal
	Leftover   decimal.Decimal
}

// Allocate sizes budget across targets priced at ask.
//
// Step 1 splits the budget evenly and takes floor(share/ask) whole
// shares per symbol. Step 2 spends the leftover via unit share
// increments, choosing the combination that minimizes the final
// leftover: an unbounded-knapsack dynamic program over the leftover
// discretized to cents. Ask prices are rounded up to whole cents for
// the DP, so the result can never overspend; when asks are exact cents
// (the usual case for equity quotes) the DP is exactly
// leftover-optimal. Ties resolve to the earliest symbol in target
// order.
//
// Invariant: sum(ask[s] * qty[s]) <= budget.
func Allocate(targets []string, asks map[string]decimal.Decimal, budget decimal.Decimal) (Allocation, error) {
	if len(targets) == 0 {
		return Allocation{}, fmt.Errorf("no target symbols")
	}
	for _, symbol := range targets {
		ask, ok := asks[symbol]
		if !ok || !ask.IsPositive() {
			return Allocation{}, fmt.Errorf("no positive ask price for %s", symbol)
		}
	}

	quantities := make(map[string]int64, len(targets))
	perSymbol := budget.Div(decimal.NewFromInt(int64(len(targets))))

	spent := decimal.Zero
	for _, symbol := range targets {
		ask := asks[symbol]
		qty := perSymbol.Div(ask).Floor().IntPart()
		quantities[symbol] = qty
		spent = spent.Add(ask.Mul(decimal.NewFromInt(qty)))
	}

	leftover := budget.Sub(spent)
	extra := topUp(targets, asks, leftover)
	for symbol, add := range extra {
		quantities[symbol] += add
		cost := asks[symbol].Mul(decimal.NewFromInt(add))
		spent = spent.Add(cost)
		leftover = leftover.Sub(cost)
	}

	return Allocation{Quantities: quantities, Spent: spent, Leftover: leftover}, nil
}

// topUp finds unit share increments whose total cost is the largest
// amount not exceeding leftover. After the even split the leftover is
// strictly less than the sum of the ask prices, which bounds the DP
// table by total basket cost in cents.
func topUp(targets []string, asks map[string]decimal.Decimal, leftover decimal.Decimal) map[string]int64 {
	centsLimit := leftover.Mul(decimal.NewFromInt(100)).Floor().IntPart()
	if centsLimit <= 0 {
		return nil
	}

	prices := make([]int64, len(targets))
	for i, symbol := range targets {
		// round up so a DP-affordable increment is affordable in exact
		// decimal terms too
		prices[i] = asks[symbol].Mul(decimal.NewFromInt(100)).Ceil().IntPart()
	}

	// reachable[c] is true when exactly c cents can be spent; choice[c]
	// records the first symbol completing that spend, for reconstruction
	reachable := make([]bool, centsLimit+1)
	choice := make([]int, centsLimit+1)
	reachable[0] = true
	best := int64(0)

	for c := int64(1); c <= centsLimit; c++ {
		choice[c] = -1
		for i, p := range prices {
			if p <= c && reachable[c-p] {
				reachable[c] = true
				choice[c] = i
				best = c
				break
			}
		}
	}

	if best == 0 {
		return nil
	}

	extra := make(map[string]int64)
	for c := best; c > 0; c -= prices[choice[c]] {
		extra[targets[choice[c]]]++
	}
	return extra
}
