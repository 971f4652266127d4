package storage

import (
	"context"

	"github.com/shopspring/decimal"

	"tradesim/internal/domain"
)

// BalanceStore holds one balance per account mode.
type BalanceStore interface {
	// Get returns the current balance. Returns ErrNotFound if the
	// account mode has never been initialized.
	Get(ctx context.Context, mode domain.AccountMode) (decimal.Decimal, error)

	// Apply adds delta to the balance in a single mutation and returns
	// the new balance. There is no partial application.
	Apply(ctx context.Context, mode domain.AccountMode, delta decimal.Decimal) (decimal.Decimal, error)
}

// StatisticsStore persists session statistics keyed by account mode and
// trade category. Read at session start, written after every finalization.
type StatisticsStore interface {
	// Get retrieves statistics for a key. Returns ErrNotFound if the key
	// has never been written.
	Get(ctx context.Context, mode domain.AccountMode, category domain.TradeCategory) (*domain.SessionStatistics, error)

	// Put stores statistics for a key, replacing any previous record.
	Put(ctx context.Context, mode domain.AccountMode, category domain.TradeCategory, s domain.SessionStatistics) error

	// Reset zeroes statistics for a key. Resetting a missing key is a no-op.
	Reset(ctx context.Context, mode domain.AccountMode, category domain.TradeCategory) error
}

// TradeLogStore is the append-only log of finalized trades.
type TradeLogStore interface {
	// Append adds a finalized trade. Returns ErrDuplicateKey if the
	// trade ID was already logged.
	Append(ctx context.Context, e *domain.TradeLogEntry) error

	// GetByID retrieves a logged trade. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tradeID string) (*domain.TradeLogEntry, error)

	// ListBySession retrieves all trades for a session, ordered by
	// finalization time ASC.
	ListBySession(ctx context.Context, sessionID string) ([]*domain.TradeLogEntry, error)
}
