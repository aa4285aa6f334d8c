package portfolio

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/rotatelab/rotator/internal/broker"
)

// Portfolio is one account's cash/position ledger. It is owned by a
// single account worker for the duration of a rebalance cycle: loaded
// once, mutated in place as fills confirm, persisted exactly once.
type Portfolio struct {
	AccountID string
	Cash      decimal.Decimal
	Positions map[string]decimal.Decimal
}

// ApplyFill reconciles one filled order into the ledger. Buys add
// shares and subtract the realized notional from cash; sells do the
// reverse. Quantities for symbols not yet held start at zero.
func (p *Portfolio) ApplyFill(symbol string, side broker.Side, quantity, notional decimal.Decimal) {
	if p.Positions == nil {
		p.Positions = make(map[string]decimal.Decimal)
	}
	held := p.Positions[symbol]
	if side == broker.SideSell {
		p.Positions[symbol] = held.Sub(quantity)
		p.Cash = p.Cash.Add(notional)
	} else {
		p.Positions[symbol] = held.Add(quantity)
		p.Cash = p.Cash.Sub(notional)
	}
}

// LiquidationValue is cash plus every held position valued at ask.
// Ask, not bid, so sellable value is never overstated.
func (p *Portfolio) LiquidationValue(book *broker.Book) (decimal.Decimal, error) {
	total := p.Cash
	for symbol, quantity := range p.Positions {
		ask, err := book.Ask(symbol)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(ask.Mul(quantity))
	}
	return total, nil
}

// HeldSymbols returns the symbols with a position entry, including
// zero-quantity remnants from earlier cycles.
func (p *Portfolio) HeldSymbols() []string {
	symbols := make([]string, 0, len(p.Positions))
	for symbol := range p.Positions {
		symbols = append(symbols, symbol)
	}
	return symbols
}

// Store persists portfolios. Writes are last-write-wins per account;
// the rebalancer never reads back within the same cycle.
type Store interface {
	All(ctx context.Context) ([]*Portfolio, error)
	Save(ctx context.Context, p *Portfolio) error
}
