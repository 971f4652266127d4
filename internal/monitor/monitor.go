// Package monitor owns the lifecycle of a single active trade, from
// acceptance to its exactly-once finalization.
package monitor

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradesim/internal/domain"
	"tradesim/internal/pricing"
)

// Default lifecycle parameters.
const (
	DefaultTickInterval     = 1500 * time.Millisecond
	DefaultStopLossFraction = 0.05
	DefaultWinProbability   = 0.70
)

// DefaultPayoutMultiplier is the payout fraction applied to a winning stake.
var DefaultPayoutMultiplier = decimal.NewFromFloat(0.85)

// Config holds tunable monitor parameters. Zero values select defaults.
type Config struct {
	TickInterval     time.Duration
	PayoutMultiplier decimal.Decimal
	WinProbability   float64

	// Draw resolves the duration-expiry outcome: values below
	// WinProbability win. It is a stand-in for a real fill against venue
	// data; injectable so tests can force either outcome.
	Draw func() float64

	// OnTick, when set, receives a trade snapshot after each live tick.
	OnTick func(domain.ActiveTrade)

	Logger *zap.Logger
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.TickInterval <= 0 {
		out.TickInterval = DefaultTickInterval
	}
	if !out.PayoutMultiplier.IsPositive() {
		out.PayoutMultiplier = DefaultPayoutMultiplier
	}
	if out.WinProbability == 0 {
		out.WinProbability = DefaultWinProbability
	}
	if out.Draw == nil {
		out.Draw = rand.Float64
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	return out
}

// NewTrade accepts a proposal into an active trade: assigns its ID, fixes
// entry price, stop-loss level, and start time. stopLossFraction at or
// below zero selects the default.
func NewTrade(p domain.TradeProposal, entryPrice float64, stopLossFraction float64, now time.Time) domain.ActiveTrade {
	if stopLossFraction <= 0 {
		stopLossFraction = DefaultStopLossFraction
	}

	stopLoss := entryPrice * (1 - stopLossFraction)
	if p.Direction == domain.DirectionPut {
		stopLoss = entryPrice * (1 + stopLossFraction)
	}

	return domain.ActiveTrade{
		TradeProposal: p,
		ID:            uuid.NewString(),
		EntryPrice:    entryPrice,
		StopLossPrice: stopLoss,
		StartTime:     now,
		Status:        domain.StatusActive,
		CurrentPrice:  entryPrice,
	}
}

// Monitor drives one trade through its lifecycle. It is the single
// writer for the trade's mutable fields; finalization happens at most
// once, under the monitor's mutex, and fires the completion callback
// exactly once.
type Monitor struct {
	mu    sync.Mutex
	trade domain.ActiveTrade

	src        pricing.Source
	cfg        Config
	onComplete func(domain.ActiveTrade)

	// done is closed on finalization so the run loop stops without
	// waiting for context cancellation.
	done chan struct{}
}

// New creates a monitor for an accepted trade. onComplete is invoked
// exactly once with the final trade state.
func New(trade domain.ActiveTrade, src pricing.Source, cfg Config, onComplete func(domain.ActiveTrade)) *Monitor {
	if onComplete == nil {
		onComplete = func(domain.ActiveTrade) {}
	}
	return &Monitor{
		trade:      trade,
		src:        src,
		cfg:        cfg.withDefaults(),
		onComplete: onComplete,
		done:       make(chan struct{}),
	}
}

// Snapshot returns a copy of the trade's current state.
func (m *Monitor) Snapshot() domain.ActiveTrade {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trade
}

// Run polls until the trade finalizes or the context is cancelled.
// Callers that cancel the context are responsible for forcing closure
// first; Run itself never finalizes on cancellation.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick performs one evaluation: refresh price, check stop-loss, then
// duration expiry. Stop-loss wins when both trip on the same tick.
func (m *Monitor) tick(ctx context.Context) {
	price, ok, err := pricing.LatestPrice(ctx, m.src, m.trade.Instrument)
	if err != nil {
		// A failed price fetch is not a trade failure; hold last price.
		m.cfg.Logger.Debug("price fetch failed, holding last price",
			zap.String("trade_id", m.trade.ID),
			zap.String("instrument", m.trade.Instrument),
			zap.Error(err))
	}

	m.mu.Lock()
	if m.trade.Status.Terminal() {
		m.mu.Unlock()
		return
	}

	if err == nil && ok {
		m.trade.CurrentPrice = price
	}

	var final *domain.ActiveTrade
	switch {
	case m.trade.StopLossBreached(m.trade.CurrentPrice):
		final = m.finalizeLocked(domain.StatusLostStopLoss, domain.CloseReasonStopLoss)
	case time.Since(m.trade.StartTime) >= time.Duration(m.trade.DurationSeconds)*time.Second:
		status := domain.StatusLostDuration
		if m.cfg.Draw() < m.cfg.WinProbability {
			status = domain.StatusWon
		}
		final = m.finalizeLocked(status, domain.CloseReasonExpiry)
	}
	snap := m.trade
	m.mu.Unlock()

	if final != nil {
		m.onComplete(*final)
		return
	}
	if m.cfg.OnTick != nil {
		m.cfg.OnTick(snap)
	}
}

// ForceClose finalizes an active trade as a duration loss with the full
// stake forfeited. Safe to call at any time, including concurrently with
// a tick or after natural completion; it reports whether it acted.
func (m *Monitor) ForceClose(reason string) bool {
	if reason == "" {
		reason = domain.CloseReasonManualStop
	}

	m.mu.Lock()
	if m.trade.Status.Terminal() {
		m.mu.Unlock()
		return false
	}
	final := m.finalizeLocked(domain.StatusLostDuration, reason)
	m.mu.Unlock()

	m.onComplete(*final)
	return true
}

// finalizeLocked applies the terminal transition. Caller holds the mutex
// and has verified the trade is still active. Status and pnl are written
// together; no writer touches the trade afterwards.
func (m *Monitor) finalizeLocked(status domain.TradeStatus, reason string) *domain.ActiveTrade {
	m.trade.Status = status
	m.trade.CloseReason = reason
	if status == domain.StatusWon {
		m.trade.PnL = m.trade.Stake.Mul(m.cfg.PayoutMultiplier)
	} else {
		m.trade.PnL = m.trade.Stake.Neg()
	}
	close(m.done)

	m.cfg.Logger.Info("trade finalized",
		zap.String("trade_id", m.trade.ID),
		zap.String("instrument", m.trade.Instrument),
		zap.String("status", string(status)),
		zap.String("reason", reason),
		zap.String("pnl", m.trade.PnL.String()))

	final := m.trade
	return &final
}
