package memory

import (
	"context"
	"sort"
	"sync"

	"tradesim/internal/domain"
	"tradesim/internal/storage"
)

// TradeLogStore is an in-memory implementation of storage.TradeLogStore.
type TradeLogStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TradeLogEntry // keyed by trade_id
}

// NewTradeLogStore creates an in-memory trade log store.
func NewTradeLogStore() *TradeLogStore {
	return &TradeLogStore{
		data: make(map[string]*domain.TradeLogEntry),
	}
}

// Append adds a finalized trade. Returns ErrDuplicateKey if the trade ID
// was already logged.
func (s *TradeLogStore) Append(_ context.Context, e *domain.TradeLogEntry) error {
	if e == nil || e.TradeID == "" || e.SessionID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.TradeID]; exists {
		return storage.ErrDuplicateKey
	}

	entryCopy := *e
	s.data[e.TradeID] = &entryCopy
	return nil
}

// GetByID retrieves a logged trade. Returns ErrNotFound if not exists.
func (s *TradeLogStore) GetByID(_ context.Context, tradeID string) (*domain.TradeLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.data[tradeID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	entryCopy := *e
	return &entryCopy, nil
}

// ListBySession retrieves all trades for a session, ordered by
// finalization time ASC.
func (s *TradeLogStore) ListBySession(_ context.Context, sessionID string) ([]*domain.TradeLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TradeLogEntry
	for _, e := range s.data {
		if e.SessionID == sessionID {
			entryCopy := *e
			result = append(result, &entryCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].FinalizedAt.Before(result[j].FinalizedAt)
	})

	return result, nil
}

var _ storage.TradeLogStore = (*TradeLogStore)(nil)
