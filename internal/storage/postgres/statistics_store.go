package postgres

import (
	"context"
	"fmt"

	"tradesim/internal/domain"
	"tradesim/internal/storage"
)

// StatisticsStore implements storage.StatisticsStore using PostgreSQL.
type StatisticsStore struct {
	pool *Pool
}

// NewStatisticsStore creates a new StatisticsStore.
func NewStatisticsStore(pool *Pool) *StatisticsStore {
	return &StatisticsStore{pool: pool}
}

// Compile-time interface check.
var _ storage.StatisticsStore = (*StatisticsStore)(nil)

// Get retrieves statistics for a key. Returns ErrNotFound if the key has
// never been written.
func (s *StatisticsStore) Get(ctx context.Context, mode domain.AccountMode, category domain.TradeCategory) (*domain.SessionStatistics, error) {
	query := `
		SELECT total_net_profit, trade_count, winning_trades, losing_trades
		FROM session_statistics
		WHERE account_mode = $1 AND category = $2
	`

	var stats domain.SessionStatistics
	err := s.pool.QueryRow(ctx, query, string(mode), string(category)).Scan(
		&stats.TotalNetProfit, &stats.TradeCount, &stats.WinningTrades, &stats.LosingTrades,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get session statistics: %w", err)
	}
	return &stats, nil
}

// Put stores statistics for a key, replacing any previous record.
func (s *StatisticsStore) Put(ctx context.Context, mode domain.AccountMode, category domain.TradeCategory, stats domain.SessionStatistics) error {
	query := `
		INSERT INTO session_statistics (account_mode, category, total_net_profit, trade_count, winning_trades, losing_trades)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account_mode, category)
		DO UPDATE SET
			total_net_profit = EXCLUDED.total_net_profit,
			trade_count = EXCLUDED.trade_count,
			winning_trades = EXCLUDED.winning_trades,
			losing_trades = EXCLUDED.losing_trades,
			updated_at = now()
	`

	_, err := s.pool.Exec(ctx, query,
		string(mode), string(category),
		stats.TotalNetProfit, stats.TradeCount, stats.WinningTrades, stats.LosingTrades,
	)
	if err != nil {
		return fmt.Errorf("put session statistics: %w", err)
	}
	return nil
}

// Reset zeroes statistics for a key. Resetting a missing key is a no-op.
func (s *StatisticsStore) Reset(ctx context.Context, mode domain.AccountMode, category domain.TradeCategory) error {
	query := `
		UPDATE session_statistics
		SET total_net_profit = 0, trade_count = 0, winning_trades = 0, losing_trades = 0, updated_at = now()
		WHERE account_mode = $1 AND category = $2
	`

	if _, err := s.pool.Exec(ctx, query, string(mode), string(category)); err != nil {
		return fmt.Errorf("reset session statistics: %w", err)
	}
	return nil
}
