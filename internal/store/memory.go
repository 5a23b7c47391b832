package store

import (
	"context"
	"sync"

	"github.com/botfolio/portfolio-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu     sync.RWMutex
	order  []string
	trades map[string][]model.Trade
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		trades: make(map[string][]model.Trade),
	}
}

func (s *MemoryStore) CreateWallet(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.trades[name]; ok {
		return nil
	}
	s.trades[name] = nil
	s.order = append(s.order, name)
	return nil
}

func (s *MemoryStore) ListWallets(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.order))
	copy(names, s.order)
	return names, nil
}

func (s *MemoryStore) AppendTrade(_ context.Context, wallet string, t *model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.trades[wallet]; !ok {
		return ErrWalletNotFound
	}
	s.trades[wallet] = append(s.trades[wallet], *t)
	return nil
}

func (s *MemoryStore) LoadLedger(_ context.Context, wallet string) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.trades[wallet]
	if !ok {
		return nil, ErrWalletNotFound
	}
	out := make([]model.Trade, len(log))
	copy(out, log)
	return out, nil
}
