package session

import (
	"context"
	"sync"

	"tradesim/internal/domain"
	"tradesim/internal/monitor"
	"tradesim/internal/stats"
)

// Snapshot is a read-only view of a session's state.
type Snapshot struct {
	SessionID   string                   `json:"session_id"`
	AccountMode domain.AccountMode       `json:"account_mode"`
	RiskMode    domain.RiskMode          `json:"risk_mode"`
	Category    domain.TradeCategory     `json:"category"`
	Reasoning   string                   `json:"reasoning"`
	Trades      []domain.ActiveTrade     `json:"trades"`
	Statistics  domain.SessionStatistics `json:"statistics"`
	Diagnostics []string                 `json:"diagnostics,omitempty"`
	Completed   bool                     `json:"completed"`
}

// Handle tracks one running session: its monitors, statistics, event
// stream, and cancellation. Monitors cannot outlive the handle; Stop
// finalizes every active trade before cancelling their contexts.
type Handle struct {
	id        string
	mode      domain.AccountMode
	category  domain.TradeCategory
	riskMode  domain.RiskMode
	reasoning string

	agg    *stats.Aggregator
	events *broadcaster

	mu          sync.Mutex
	monitors    []*monitor.Monitor
	diagnostics []string
	completed   bool

	cancel      context.CancelFunc
	completions chan domain.ActiveTrade
	done        chan struct{}
}

// ID returns the session identifier.
func (h *Handle) ID() string {
	return h.id
}

// Done is closed when every spawned monitor has finalized and the
// session's bookkeeping is flushed.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Completed reports whether the session has finished.
func (h *Handle) Completed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.completed
}

// Reasoning returns the strategy provider's overall reasoning.
func (h *Handle) Reasoning() string {
	return h.reasoning
}

// Stop forces every still-active trade to finalize as a duration loss
// with the full stake forfeited, then cancels the monitor tasks.
// Finalization happens before cancellation so no late tick can race a
// stopped trade. Idempotent: stopping a completed session is a no-op.
func (h *Handle) Stop() {
	h.mu.Lock()
	monitors := h.monitors
	h.mu.Unlock()

	for _, m := range monitors {
		m.ForceClose(domain.CloseReasonManualStop)
	}
	if h.cancel != nil {
		h.cancel()
	}
}

// Subscribe attaches to the session's event stream. The returned cancel
// must be called when the subscriber goes away. The channel closes when
// the session completes.
func (h *Handle) Subscribe() (<-chan Event, func()) {
	return h.events.subscribe()
}

// Snapshot returns a copy of the session's current state, including the
// live fields of every trade.
func (h *Handle) Snapshot() Snapshot {
	h.mu.Lock()
	monitors := h.monitors
	diagnostics := make([]string, len(h.diagnostics))
	copy(diagnostics, h.diagnostics)
	completed := h.completed
	h.mu.Unlock()

	trades := make([]domain.ActiveTrade, 0, len(monitors))
	for _, m := range monitors {
		trades = append(trades, m.Snapshot())
	}

	return Snapshot{
		SessionID:   h.id,
		AccountMode: h.mode,
		RiskMode:    h.riskMode,
		Category:    h.category,
		Reasoning:   h.reasoning,
		Trades:      trades,
		Statistics:  h.agg.Snapshot(),
		Diagnostics: diagnostics,
		Completed:   completed,
	}
}

func (h *Handle) addDiagnostic(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.diagnostics = append(h.diagnostics, msg)
}

func (h *Handle) markCompleted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.completed {
		return false
	}
	h.completed = true
	return true
}
