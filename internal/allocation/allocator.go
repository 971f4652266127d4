// Package allocation validates and rescales proposed trade stakes so a
// session batch never exceeds its stake budget.
package allocation

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"tradesim/internal/domain"
)

// ErrBudgetExceeded is returned when rescaled stakes still exceed the
// budget after granularity rounding.
var ErrBudgetExceeded = errors.New("total stake exceeds budget after rounding")

// AllocationError carries the amount by which the rescaled total missed
// the budget. Matches ErrBudgetExceeded under errors.Is.
type AllocationError struct {
	Shortfall decimal.Decimal
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("allocation failed: rescaled stakes exceed budget by %s", e.Shortfall)
}

func (e *AllocationError) Is(target error) bool {
	return target == ErrBudgetExceeded
}

// DefaultGranularity is the minimum stake granularity.
var DefaultGranularity = decimal.NewFromFloat(0.01)

// Allocator normalizes proposal stakes under a budget. It is stateless
// and deterministic: identical inputs always yield identical outputs.
type Allocator struct {
	granularity decimal.Decimal
}

// New creates an Allocator with the given stake granularity.
// A non-positive granularity falls back to DefaultGranularity.
func New(granularity decimal.Decimal) *Allocator {
	if !granularity.IsPositive() {
		granularity = DefaultGranularity
	}
	return &Allocator{granularity: granularity}
}

// Normalize filters structurally invalid proposals, then rescales the
// remainder proportionally if their total stake exceeds the budget.
// Rescaled stakes are rounded down to the granularity; a stake only
// rounds to zero if the original was already below granularity, and
// zero-stake results are dropped.
//
// Returns an AllocationError if rounding still leaves the total above
// budget. Proposals are never mutated; results are copies.
func (a *Allocator) Normalize(proposals []domain.TradeProposal, budget decimal.Decimal) ([]domain.TradeProposal, error) {
	accepted := make([]domain.TradeProposal, 0, len(proposals))
	for _, p := range proposals {
		if p.Validate() != nil {
			continue
		}
		accepted = append(accepted, p)
	}
	if len(accepted) == 0 {
		return accepted, nil
	}

	total := decimal.Zero
	for _, p := range accepted {
		total = total.Add(p.Stake)
	}
	if total.LessThanOrEqual(budget) {
		return accepted, nil
	}

	rescaled := make([]domain.TradeProposal, 0, len(accepted))
	newTotal := decimal.Zero
	for _, p := range accepted {
		// Multiply before dividing so exact ratios stay exact; dividing
		// first truncates to the division precision and 60*(100/120)
		// would floor to 49.99 instead of 50.
		stake := a.floorToGranularity(p.Stake.Mul(budget).Div(total))
		if stake.IsZero() {
			if p.Stake.LessThan(a.granularity) {
				// Original was below granularity to begin with: drop.
				continue
			}
			stake = a.granularity
		}
		p.Stake = stake
		rescaled = append(rescaled, p)
		newTotal = newTotal.Add(stake)
	}

	if newTotal.GreaterThan(budget) {
		return nil, &AllocationError{Shortfall: newTotal.Sub(budget)}
	}
	return rescaled, nil
}

// floorToGranularity rounds down to the nearest granularity step.
func (a *Allocator) floorToGranularity(v decimal.Decimal) decimal.Decimal {
	return v.Div(a.granularity).Floor().Mul(a.granularity)
}
