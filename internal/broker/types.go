package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the order instruction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderStatus is owned by the brokerage; this system only reads it and
// waits for a terminal value.
type OrderStatus string

const (
	StatusFilled   OrderStatus = "FILLED"
	StatusRejected OrderStatus = "REJECTED"
	StatusCanceled OrderStatus = "CANCELED"
	StatusExpired  OrderStatus = "EXPIRED"
	StatusReplaced OrderStatus = "REPLACED"
)

// Terminal reports whether no further status transition can occur.
// There is no partial-fill state: a fill is all-or-nothing here.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusRejected, StatusCanceled, StatusExpired, StatusReplaced:
		return true
	}
	return false
}

// Quote is a cycle-scoped snapshot of a symbol's market. Never reused
// across rebalance cycles.
type Quote struct {
	Symbol   string
	Bid      decimal.Decimal
	Ask      decimal.Decimal
	Last     decimal.Decimal
	Realtime bool
}

// OrderSummary is the listing view used for stale-order cleanup.
type OrderSummary struct {
	ID         string
	Cancelable bool
}

// ExecutionLeg is one execution of an order at a single price.
type ExecutionLeg struct {
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// Activity groups the execution legs reported for an order.
type Activity struct {
	Legs []ExecutionLeg `json:"executionLegs"`
}

// OrderDetail is the polled view of a submitted order.
type OrderDetail struct {
	ID             string
	Status         OrderStatus
	FilledQuantity decimal.Decimal
	Activities     []Activity
}

// Notional is the realized value of the order: the sum over all
// execution legs of quantity times price.
func (d OrderDetail) Notional() decimal.Decimal {
	total := decimal.Zero
	for _, a := range d.Activities {
		for _, leg := range a.Legs {
			total = total.Add(leg.Quantity.Mul(leg.Price))
		}
	}
	return total
}

// Brokerage is the quote/order API the rebalancer depends on.
// Implementations must be safe for concurrent use by account workers.
type Brokerage interface {
	CurrentQuotes(ctx context.Context, symbols []string) (map[string]Quote, error)
	Orders(ctx context.Context, account string, from, to time.Time) ([]OrderSummary, error)
	CancelOrder(ctx context.Context, account, orderID string) error
	PlaceMarketOrder(ctx context.Context, account, symbol string, quantity int64, side Side) (string, error)
	Order(ctx context.Context, account, orderID string) (OrderDetail, error)
}
