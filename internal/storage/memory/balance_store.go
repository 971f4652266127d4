package memory

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"tradesim/internal/domain"
	"tradesim/internal/storage"
)

// BalanceStore is an in-memory implementation of storage.BalanceStore.
type BalanceStore struct {
	mu   sync.Mutex
	data map[domain.AccountMode]decimal.Decimal
}

// NewBalanceStore creates an in-memory balance store seeded with the
// given opening balances.
func NewBalanceStore(opening map[domain.AccountMode]decimal.Decimal) *BalanceStore {
	data := make(map[domain.AccountMode]decimal.Decimal, len(opening))
	for mode, balance := range opening {
		data[mode] = balance
	}
	return &BalanceStore{data: data}
}

// Get returns the current balance. Returns ErrNotFound for uninitialized modes.
func (s *BalanceStore) Get(_ context.Context, mode domain.AccountMode) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance, exists := s.data[mode]
	if !exists {
		return decimal.Zero, storage.ErrNotFound
	}
	return balance, nil
}

// Apply adds delta under the store mutex, so concurrent finalizations
// never lose an update.
func (s *BalanceStore) Apply(_ context.Context, mode domain.AccountMode, delta decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance := s.data[mode].Add(delta)
	s.data[mode] = balance
	return balance, nil
}

var _ storage.BalanceStore = (*BalanceStore)(nil)
