package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// RiskMode is a qualitative parameter passed through to the strategy
// provider. It does not affect lifecycle mechanics.
type RiskMode string

const (
	RiskConservative RiskMode = "conservative"
	RiskBalanced     RiskMode = "balanced"
	RiskAggressive   RiskMode = "aggressive"
)

// ErrInvalidRiskMode is returned for unknown risk modes.
var ErrInvalidRiskMode = errors.New("invalid risk mode")

// Validate checks the risk mode is a known value.
func (m RiskMode) Validate() error {
	switch m {
	case RiskConservative, RiskBalanced, RiskAggressive:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidRiskMode, string(m))
}

// AccountMode separates demo and real accounts. Balances and statistics
// are keyed per mode.
type AccountMode string

const (
	AccountDemo AccountMode = "demo"
	AccountReal AccountMode = "real"
)

// TradeCategory partitions persisted statistics. Engine sessions record
// under the automated category.
type TradeCategory string

// CategoryAuto is the category for automated sessions.
const CategoryAuto TradeCategory = "auto"

// SessionStatistics accumulates per-session outcomes. All four fields are
// updated together per finalization.
type SessionStatistics struct {
	TotalNetProfit decimal.Decimal
	TradeCount     int
	WinningTrades  int
	LosingTrades   int
}
