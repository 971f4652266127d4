package postgres

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"tradesim/internal/domain"
	"tradesim/internal/storage"
)

// BalanceStore implements storage.BalanceStore using PostgreSQL.
type BalanceStore struct {
	pool *Pool
}

// NewBalanceStore creates a new BalanceStore.
func NewBalanceStore(pool *Pool) *BalanceStore {
	return &BalanceStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BalanceStore = (*BalanceStore)(nil)

// Get returns the balance for an account mode. Returns ErrNotFound if the
// mode has never been initialized.
func (s *BalanceStore) Get(ctx context.Context, mode domain.AccountMode) (decimal.Decimal, error) {
	query := `SELECT balance FROM balances WHERE account_mode = $1`

	var balance decimal.Decimal
	err := s.pool.QueryRow(ctx, query, string(mode)).Scan(&balance)
	if err != nil {
		if isNotFoundError(err) {
			return decimal.Zero, storage.ErrNotFound
		}
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// Init sets an opening balance for an account mode if none exists yet.
func (s *BalanceStore) Init(ctx context.Context, mode domain.AccountMode, opening decimal.Decimal) error {
	query := `
		INSERT INTO balances (account_mode, balance)
		VALUES ($1, $2)
		ON CONFLICT (account_mode) DO NOTHING
	`
	if _, err := s.pool.Exec(ctx, query, string(mode), opening); err != nil {
		return fmt.Errorf("init balance: %w", err)
	}
	return nil
}

// Apply adds delta to the balance in one statement and returns the new
// balance. A missing row starts from zero.
func (s *BalanceStore) Apply(ctx context.Context, mode domain.AccountMode, delta decimal.Decimal) (decimal.Decimal, error) {
	query := `
		INSERT INTO balances (account_mode, balance)
		VALUES ($1, $2)
		ON CONFLICT (account_mode)
		DO UPDATE SET balance = balances.balance + EXCLUDED.balance, updated_at = now()
		RETURNING balance
	`

	var balance decimal.Decimal
	err := s.pool.QueryRow(ctx, query, string(mode), delta).Scan(&balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("apply balance delta: %w", err)
	}
	return balance, nil
}
