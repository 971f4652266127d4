package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"tradesim/internal/domain"
	"tradesim/internal/storage"
)

// TradeLogStore implements storage.TradeLogStore using PostgreSQL.
type TradeLogStore struct {
	pool *Pool
}

// NewTradeLogStore creates a new TradeLogStore.
func NewTradeLogStore(pool *Pool) *TradeLogStore {
	return &TradeLogStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeLogStore = (*TradeLogStore)(nil)

// Append adds a finalized trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeLogStore) Append(ctx context.Context, e *domain.TradeLogEntry) error {
	query := `
		INSERT INTO trade_log (
			trade_id, session_id, account_mode, instrument, direction,
			stake, entry_price, exit_price, status, pnl, close_reason,
			started_at, finalized_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13
		)
	`

	_, err := s.pool.Exec(ctx, query,
		e.TradeID, e.SessionID, string(e.AccountMode), e.Instrument, string(e.Direction),
		e.Stake, e.EntryPrice, e.ExitPrice, string(e.Status), e.PnL, e.CloseReason,
		e.StartedAt, e.FinalizedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("append trade log entry: %w", err)
	}
	return nil
}

// GetByID retrieves a logged trade. Returns ErrNotFound if not exists.
func (s *TradeLogStore) GetByID(ctx context.Context, tradeID string) (*domain.TradeLogEntry, error) {
	query := `
		SELECT
			trade_id, session_id, account_mode, instrument, direction,
			stake, entry_price, exit_price, status, pnl, close_reason,
			started_at, finalized_at
		FROM trade_log
		WHERE trade_id = $1
	`

	row := s.pool.QueryRow(ctx, query, tradeID)
	e, err := scanTradeLogEntry(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade log entry by id: %w", err)
	}
	return e, nil
}

// ListBySession retrieves all trades for a session, oldest first.
func (s *TradeLogStore) ListBySession(ctx context.Context, sessionID string) ([]*domain.TradeLogEntry, error) {
	query := `
		SELECT
			trade_id, session_id, account_mode, instrument, direction,
			stake, entry_price, exit_price, status, pnl, close_reason,
			started_at, finalized_at
		FROM trade_log
		WHERE session_id = $1
		ORDER BY finalized_at ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list trade log entries by session: %w", err)
	}
	defer rows.Close()

	var entries []*domain.TradeLogEntry
	for rows.Next() {
		e, err := scanTradeLogEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade log row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade log rows: %w", err)
	}
	return entries, nil
}

// scanTradeLogEntry scans a single row into a TradeLogEntry.
func scanTradeLogEntry(row pgx.Row) (*domain.TradeLogEntry, error) {
	var e domain.TradeLogEntry
	var mode, direction, status string

	err := row.Scan(
		&e.TradeID, &e.SessionID, &mode, &e.Instrument, &direction,
		&e.Stake, &e.EntryPrice, &e.ExitPrice, &status, &e.PnL, &e.CloseReason,
		&e.StartedAt, &e.FinalizedAt,
	)
	if err != nil {
		return nil, err
	}

	e.AccountMode = domain.AccountMode(mode)
	e.Direction = domain.Direction(direction)
	e.Status = domain.TradeStatus(status)
	return &e, nil
}
