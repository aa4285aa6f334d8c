package outbox

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxAppendsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "orders.jsonl")
	ob, err := New(path)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, ob.WriteOrder(Order{
		BrokerID:  "ord-1",
		Account:   "acct",
		Symbol:    "AGG",
		Side:      "BUY",
		Quantity:  decimal.NewFromInt(5),
		Timestamp: now,
	}))
	require.NoError(t, ob.WriteFill(Fill{
		BrokerID:  "ord-1",
		Account:   "acct",
		Symbol:    "AGG",
		Side:      "BUY",
		Status:    "FILLED",
		Quantity:  decimal.NewFromInt(5),
		Notional:  decimal.RequireFromString("502.50"),
		Timestamp: now,
	}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var types []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		types = append(types, e.Type)
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []string{"order", "fill"}, types)
}
