// Package outbox appends an order/fill audit trail as JSON lines. The
// brokerage ledger is authoritative; this file exists so a cycle's
// activity can be reconstructed without brokerage API access.
package outbox

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	BrokerID  string          `json:"broker_id"`
	Account   string          `json:"account"`
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"`
	Quantity  decimal.Decimal `json:"quantity"`
	Timestamp time.Time       `json:"timestamp"`
}

type Fill struct {
	BrokerID  string          `json:"broker_id"`
	Account   string          `json:"account"`
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"`
	Status    string          `json:"status"`
	Quantity  decimal.Decimal `json:"quantity"`
	Notional  decimal.Decimal `json:"notional"`
	Timestamp time.Time       `json:"timestamp"`
}

type entry struct {
	Type  string    `json:"type"`
	Data  any       `json:"data"`
	Event time.Time `json:"event"`
}

type Outbox struct {
	path string
}

func New(path string) (*Outbox, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return &Outbox{path: path}, nil
}

func (o *Outbox) WriteOrder(order Order) error {
	return o.appendEntry(entry{Type: "order", Data: order, Event: time.Now().UTC()})
}

func (o *Outbox) WriteFill(fill Fill) error {
	return o.appendEntry(entry{Type: "fill", Data: fill, Event: time.Now().UTC()})
}

func (o *Outbox) appendEntry(e entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(o.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(append(data, '\n'))
	return err
}
