// Package stats accumulates session trade statistics.
package stats

import (
	"sync"

	"github.com/shopspring/decimal"

	"tradesim/internal/domain"
)

// Aggregator accumulates net P/L and win/loss counts. A single mutex
// covers all fields so a reader never observes the trade count
// incremented without its matching P/L contribution.
type Aggregator struct {
	mu sync.Mutex
	s  domain.SessionStatistics
}

// New creates an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{}
}

// NewFrom creates an Aggregator seeded with previously persisted statistics.
func NewFrom(s domain.SessionStatistics) *Aggregator {
	return &Aggregator{s: s}
}

// Record applies one trade finalization. Must be called exactly once
// per finalized trade.
func (a *Aggregator) Record(pnl decimal.Decimal, status domain.TradeStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.s.TotalNetProfit = a.s.TotalNetProfit.Add(pnl)
	a.s.TradeCount++
	if status == domain.StatusWon {
		a.s.WinningTrades++
	} else {
		a.s.LosingTrades++
	}
}

// Reset zeroes all fields.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.s = domain.SessionStatistics{}
}

// Snapshot returns a copy of the current statistics.
func (a *Aggregator) Snapshot() domain.SessionStatistics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.s
}
