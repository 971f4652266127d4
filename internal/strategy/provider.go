// Package strategy defines the external strategy-provider collaborator
// that turns market context into trade proposals.
package strategy

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"tradesim/internal/domain"
)

// ErrGeneration is returned when the provider fails to produce a
// strategy. An empty proposal list is not an error.
var ErrGeneration = errors.New("strategy generation failed")

// Request carries the market context handed to the provider.
type Request struct {
	TotalStake  decimal.Decimal
	Instruments []string
	RiskMode    domain.RiskMode

	// RecentTicks holds the latest observed ticks per instrument.
	// Instruments with no data map to an empty slice.
	RecentTicks map[string][]domain.PriceTick
}

// Result is the provider's strategy: a batch of proposals plus the
// overall reasoning behind them.
type Result struct {
	Proposals []domain.TradeProposal
	Reasoning string
}

// Provider produces a trading strategy. Implementations may return an
// empty proposal list; that is a valid "no opportunity" answer.
type Provider interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}
