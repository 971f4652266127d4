package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of a trade.
type Direction string

const (
	DirectionCall Direction = "CALL"
	DirectionPut  Direction = "PUT"
)

// Validate checks the direction is a known value.
func (d Direction) Validate() error {
	switch d {
	case DirectionCall, DirectionPut:
		return nil
	}
	return fmt.Errorf("%w: direction %q", ErrInvalidDirection, string(d))
}

// TradeStatus is the lifecycle state of an active trade.
// Transitions are monotonic: once terminal, a trade never changes status again.
type TradeStatus string

const (
	StatusActive       TradeStatus = "active"
	StatusWon          TradeStatus = "won"
	StatusLostDuration TradeStatus = "lost_duration"
	StatusLostStopLoss TradeStatus = "lost_stoploss"
)

// Terminal reports whether the status is a final outcome.
func (s TradeStatus) Terminal() bool {
	return s != StatusActive
}

// Close reason codes recorded at finalization.
const (
	CloseReasonStopLoss   = "STOP_LOSS_BREACH"
	CloseReasonExpiry     = "DURATION_EXPIRY"
	CloseReasonManualStop = "MANUAL_STOP"
)

// Proposal validation errors.
var (
	ErrInvalidDirection = errors.New("invalid trade direction")
	ErrNonPositiveStake = errors.New("stake must be positive")
	ErrInvalidDuration  = errors.New("duration must be a positive number of seconds")
)

// TradeProposal is an externally produced trade suggestion.
// Immutable once accepted into a session.
type TradeProposal struct {
	Instrument      string
	Direction       Direction
	Stake           decimal.Decimal
	DurationSeconds int
	Rationale       string
}

// Validate checks the structural constraints a proposal must satisfy
// before it can be allocated stake.
func (p *TradeProposal) Validate() error {
	if err := p.Direction.Validate(); err != nil {
		return err
	}
	if !p.Stake.IsPositive() {
		return fmt.Errorf("%w: got %s", ErrNonPositiveStake, p.Stake)
	}
	if p.DurationSeconds <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidDuration, p.DurationSeconds)
	}
	return nil
}

// ActiveTrade is an accepted proposal under live monitoring.
// EntryPrice, StopLossPrice and StartTime are fixed at acceptance.
// CurrentPrice mutates only while Status is active. PnL is meaningful
// only once Status is terminal, and is written exactly once.
type ActiveTrade struct {
	TradeProposal

	ID            string
	EntryPrice    float64
	StopLossPrice float64
	StartTime     time.Time

	Status       TradeStatus
	CurrentPrice float64
	PnL          decimal.Decimal
	CloseReason  string
}

// StopLossBreached reports whether price breaches the trade's stop level.
// CALL trades breach on price at or below the stop, PUT trades on price
// at or above it.
func (t *ActiveTrade) StopLossBreached(price float64) bool {
	switch t.Direction {
	case DirectionCall:
		return price <= t.StopLossPrice
	case DirectionPut:
		return price >= t.StopLossPrice
	}
	return false
}

// TradeLogEntry is a finalized trade as persisted in the trade log.
type TradeLogEntry struct {
	TradeID     string
	SessionID   string
	AccountMode AccountMode
	Instrument  string
	Direction   Direction
	Stake       decimal.Decimal
	EntryPrice  float64
	ExitPrice   float64
	Status      TradeStatus
	PnL         decimal.Decimal
	CloseReason string
	StartedAt   time.Time
	FinalizedAt time.Time
}
