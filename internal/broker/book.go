package broker

import (
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Book wraps one cycle's fetched quotes behind typed price lookups.
// A missing symbol is a hard error; a quote that is not flagged
// realtime is logged and used unless strict mode is on, in which case
// it fails the lookup (stale prices then block order sizing).
type Book struct {
	quotes map[string]Quote
	strict bool
	logger *logrus.Logger
}

func NewBook(quotes map[string]Quote, strict bool, logger *logrus.Logger) *Book {
	return &Book{quotes: quotes, strict: strict, logger: logger}
}

// Ask returns the ask price. Purchasing power is always valued at ask,
// never bid, so held positions are not overstated.
func (b *Book) Ask(symbol string) (decimal.Decimal, error) {
	q, err := b.lookup(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return q.Ask, nil
}

func (b *Book) Bid(symbol string) (decimal.Decimal, error) {
	q, err := b.lookup(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return q.Bid, nil
}

func (b *Book) Last(symbol string) (decimal.Decimal, error) {
	q, err := b.lookup(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return q.Last, nil
}

func (b *Book) lookup(symbol string) (Quote, error) {
	q, ok := b.quotes[symbol]
	if !ok {
		b.logger.WithField("symbol", symbol).Warn("Symbol not in fetched quotes")
		return Quote{}, NewMissingQuoteError(symbol)
	}
	if !q.Realtime {
		if b.strict {
			return Quote{}, NewProviderError(symbol, "quote is not realtime", nil)
		}
		b.logger.WithField("symbol", symbol).Warn("Quote is not realtime")
	}
	return q, nil
}
