package memory

import (
	"context"
	"fmt"
	"sync"

	"tradesim/internal/domain"
	"tradesim/internal/storage"
)

// StatisticsStore is an in-memory implementation of storage.StatisticsStore.
type StatisticsStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SessionStatistics
}

// NewStatisticsStore creates an in-memory statistics store.
func NewStatisticsStore() *StatisticsStore {
	return &StatisticsStore{
		data: make(map[string]*domain.SessionStatistics),
	}
}

// statsKey generates the composite key for a statistics record.
func statsKey(mode domain.AccountMode, category domain.TradeCategory) string {
	return fmt.Sprintf("%s|%s", mode, category)
}

// Get retrieves statistics for a key. Returns ErrNotFound if never written.
func (s *StatisticsStore) Get(_ context.Context, mode domain.AccountMode, category domain.TradeCategory) (*domain.SessionStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.data[statsKey(mode, category)]
	if !exists {
		return nil, storage.ErrNotFound
	}

	recordCopy := *record
	return &recordCopy, nil
}

// Put stores statistics for a key, replacing any previous record.
func (s *StatisticsStore) Put(_ context.Context, mode domain.AccountMode, category domain.TradeCategory, stats domain.SessionStatistics) error {
	if mode == "" || category == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[statsKey(mode, category)] = &stats
	return nil
}

// Reset zeroes statistics for a key. Missing keys are a no-op.
func (s *StatisticsStore) Reset(_ context.Context, mode domain.AccountMode, category domain.TradeCategory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := statsKey(mode, category)
	if _, exists := s.data[key]; exists {
		s.data[key] = &domain.SessionStatistics{}
	}
	return nil
}

var _ storage.StatisticsStore = (*StatisticsStore)(nil)
