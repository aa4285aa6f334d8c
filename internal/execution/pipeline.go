// Package execution places rebalance orders and waits for the
// brokerage's asynchronous order lifecycle to resolve.
package execution

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rotatelab/rotator/internal/broker"
	"github.com/rotatelab/rotator/internal/observ"
	"github.com/rotatelab/rotator/internal/outbox"
	"github.com/rotatelab/rotator/internal/rebalance"
)

// Config bounds the pipeline's waits. The confirmation wait is
// deadline-bounded: a brokerage that never resolves an order fails the
// account instead of stalling it forever.
type Config struct {
	PollInterval     time.Duration
	ConfirmTimeout   time.Duration
	StaleOrderWindow time.Duration
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = 5 * time.Minute
	}
	if c.StaleOrderWindow <= 0 {
		c.StaleOrderWindow = 48 * time.Hour
	}
}

// Confirmation is the terminal outcome of one submitted order.
type Confirmation struct {
	BrokerID       string
	Symbol         string
	Side           broker.Side
	Status         broker.OrderStatus
	FilledQuantity decimal.Decimal
	Notional       decimal.Decimal
}

// Filled reports whether the order actually executed. Any other
// terminal status is a trade failure and must not touch the ledger.
func (c Confirmation) Filled() bool { return c.Status == broker.StatusFilled }

type Pipeline struct {
	brokerage broker.Brokerage
	audit     *outbox.Outbox
	config    Config
	logger    *logrus.Logger
}

// New builds a pipeline. audit may be nil to disable the order/fill
// audit trail.
func New(brokerage broker.Brokerage, audit *outbox.Outbox, config Config, logger *logrus.Logger) *Pipeline {
	config.applyDefaults()
	return &Pipeline{brokerage: brokerage, audit: audit, config: config, logger: logger}
}

// CancelStale cancels every still-cancelable order entered within the
// stale-order window. Outstanding orders from a previous cycle would
// contaminate sizing, so they are cleared before planning.
func (p *Pipeline) CancelStale(ctx context.Context, account string) error {
	now := time.Now().UTC()
	orders, err := p.brokerage.Orders(ctx, account, now.Add(-p.config.StaleOrderWindow), now)
	if err != nil {
		return fmt.Errorf("listing outstanding orders: %w", err)
	}

	log := p.logger.WithField("account", account)
	for _, order := range orders {
		if !order.Cancelable {
			log.WithField("order_id", order.ID).Info("Order is not cancelable")
			continue
		}
		if err := p.brokerage.CancelOrder(ctx, account, order.ID); err != nil {
			return fmt.Errorf("canceling order %s: %w", order.ID, err)
		}
		log.WithField("order_id", order.ID).Info("Canceled outstanding order")
	}
	return nil
}

type placedOrder struct {
	brokerID string
	symbol   string
	side     broker.Side
	quantity decimal.Decimal
}

// Execute submits the delta as whole-share market orders, sells before
// buys, then waits for every order to reach a terminal status. All of
// an account's confirmations are awaited concurrently; the returned
// slice is complete or the error is non-nil, so callers never apply a
// partial result to the ledger.
func (p *Pipeline) Execute(ctx context.Context, account string, delta rebalance.Delta) ([]Confirmation, error) {
	placed := make([]placedOrder, 0, len(delta.Sell)+len(delta.Buy))

	for _, batch := range []struct {
		side      broker.Side
		positions map[string]decimal.Decimal
	}{
		{broker.SideSell, delta.Sell},
		{broker.SideBuy, delta.Buy},
	} {
		for _, symbol := range sortedSymbols(batch.positions) {
			quantity := batch.positions[symbol]
			order, err := p.place(ctx, account, symbol, batch.side, quantity)
			if err != nil {
				return nil, err
			}
			placed = append(placed, order)
		}
	}

	if len(placed) == 0 {
		return nil, nil
	}
	return p.confirmAll(ctx, account, placed)
}

func (p *Pipeline) place(ctx context.Context, account, symbol string, side broker.Side, quantity decimal.Decimal) (placedOrder, error) {
	brokerID, err := p.brokerage.PlaceMarketOrder(ctx, account, symbol, quantity.IntPart(), side)
	if err != nil {
		return placedOrder{}, fmt.Errorf("placing %s order for %s: %w", side, symbol, err)
	}

	observ.IncCounter("orders_placed_total", map[string]string{"side": string(side)})
	p.logger.WithFields(logrus.Fields{
		"account":  account,
		"symbol":   symbol,
		"side":     side,
		"quantity": quantity.String(),
		"order_id": brokerID,
	}).Info("Placed market order")

	if p.audit != nil {
		if err := p.audit.WriteOrder(outbox.Order{
			BrokerID:  brokerID,
			Account:   account,
			Symbol:    symbol,
			Side:      string(side),
			Quantity:  quantity,
			Timestamp: time.Now().UTC(),
		}); err != nil {
			p.logger.WithError(err).Warn("Failed to write order audit entry")
		}
	}

	return placedOrder{brokerID: brokerID, symbol: symbol, side: side, quantity: quantity}, nil
}

// confirmAll fans out one terminal wait per order, bounded by the
// confirmation timeout. The account's ledger update stays atomic: any
// wait failure fails the whole batch.
func (p *Pipeline) confirmAll(ctx context.Context, account string, placed []placedOrder) ([]Confirmation, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.ConfirmTimeout)
	defer cancel()

	confirmations := make([]Confirmation, len(placed))
	waitErrs := make([]error, len(placed))

	var wg sync.WaitGroup
	for i, order := range placed {
		wg.Add(1)
		go func(i int, order placedOrder) {
			defer wg.Done()
			detail, err := p.awaitTerminal(ctx, account, order)
			if err != nil {
				waitErrs[i] = fmt.Errorf("confirming order %s for %s: %w", order.brokerID, order.symbol, err)
				return
			}
			confirmations[i] = Confirmation{
				BrokerID:       order.brokerID,
				Symbol:         order.symbol,
				Side:           order.side,
				Status:         detail.Status,
				FilledQuantity: detail.FilledQuantity,
				Notional:       detail.Notional(),
			}
		}(i, order)
	}
	wg.Wait()

	if err := errors.Join(waitErrs...); err != nil {
		return nil, err
	}

	for _, c := range confirmations {
		p.record(account, c)
	}
	return confirmations, nil
}

// awaitTerminal polls the order once per interval until its status is
// terminal. It returns immediately when the first fetch is already
// terminal; context expiry surfaces as an error distinct from the five
// terminal statuses.
func (p *Pipeline) awaitTerminal(ctx context.Context, account string, order placedOrder) (broker.OrderDetail, error) {
	for {
		detail, err := p.brokerage.Order(ctx, account, order.brokerID)
		if err != nil {
			return broker.OrderDetail{}, err
		}
		if detail.Status.Terminal() {
			return detail, nil
		}

		p.logger.WithFields(logrus.Fields{
			"account":  account,
			"order_id": order.brokerID,
			"status":   detail.Status,
		}).Debug("Order not yet terminal")

		select {
		case <-ctx.Done():
			return broker.OrderDetail{}, fmt.Errorf("order %s did not reach a terminal status: %w", order.brokerID, ctx.Err())
		case <-time.After(p.config.PollInterval):
		}
	}
}

func (p *Pipeline) record(account string, c Confirmation) {
	if c.Filled() {
		observ.IncCounter("orders_filled_total", map[string]string{"side": string(c.Side)})
	} else {
		observ.IncCounter("trade_failures_total", map[string]string{"status": string(c.Status)})
		p.logger.WithFields(logrus.Fields{
			"account":  account,
			"symbol":   c.Symbol,
			"order_id": c.BrokerID,
			"status":   c.Status,
		}).Error("Trade failed")
	}

	if p.audit != nil {
		if err := p.audit.WriteFill(outbox.Fill{
			BrokerID:  c.BrokerID,
			Account:   account,
			Symbol:    c.Symbol,
			Side:      string(c.Side),
			Status:    string(c.Status),
			Quantity:  c.FilledQuantity,
			Notional:  c.Notional,
			Timestamp: time.Now().UTC(),
		}); err != nil {
			p.logger.WithError(err).Warn("Failed to write fill audit entry")
		}
	}
}

func sortedSymbols(m map[string]decimal.Decimal) []string {
	symbols := make([]string, 0, len(m))
	for symbol := range m {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
