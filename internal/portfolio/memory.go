package portfolio

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Store used in tests and dry runs.
type MemoryStore struct {
	mu         sync.Mutex
	portfolios map[string]*Portfolio
}

func NewMemoryStore(portfolios ...*Portfolio) *MemoryStore {
	s := &MemoryStore{portfolios: make(map[string]*Portfolio)}
	for _, p := range portfolios {
		s.portfolios[p.AccountID] = clone(p)
	}
	return s
}

func (s *MemoryStore) All(ctx context.Context) ([]*Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Portfolio, 0, len(s.portfolios))
	for _, p := range s.portfolios {
		out = append(out, clone(p))
	}
	return out, nil
}

func (s *MemoryStore) Save(ctx context.Context, p *Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.portfolios[p.AccountID] = clone(p)
	return nil
}

// Get returns the stored copy for assertions in tests.
func (s *MemoryStore) Get(accountID string) (*Portfolio, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.portfolios[accountID]
	if !ok {
		return nil, false
	}
	return clone(p), true
}

func clone(p *Portfolio) *Portfolio {
	positions := make(map[string]decimal.Decimal, len(p.Positions))
	for symbol, qty := range p.Positions {
		positions[symbol] = qty
	}
	return &Portfolio{AccountID: p.AccountID, Cash: p.Cash, Positions: positions}
}
