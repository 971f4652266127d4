// Package session orchestrates batches of concurrently monitored trades:
// strategy generation, stake allocation, monitor spawning, completion
// aggregation, and manual cancellation.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradesim/internal/allocation"
	"tradesim/internal/domain"
	"tradesim/internal/monitor"
	"tradesim/internal/observability"
	"tradesim/internal/pricing"
	"tradesim/internal/stats"
	"tradesim/internal/storage"
	"tradesim/internal/strategy"
)

// Controller errors.
var (
	ErrInvalidBudget   = errors.New("session budget must be positive")
	ErrSessionNotFound = errors.New("session not found")
)

// DefaultPriceTimeout bounds one entry-price fetch.
const DefaultPriceTimeout = 15 * time.Second

// storeOpTimeout bounds one bookkeeping write during collection.
const storeOpTimeout = 5 * time.Second

// Archiver receives finalized trades for offline analytics.
type Archiver interface {
	Archive(ctx context.Context, e *domain.TradeLogEntry) error
}

// Options configures a Controller.
type Options struct {
	Provider   strategy.Provider
	Prices     pricing.Source
	Balances   storage.BalanceStore
	Statistics storage.StatisticsStore
	TradeLog   storage.TradeLogStore

	// Archive is optional; nil disables archiving.
	Archive Archiver
	// Metrics is optional; nil disables instrumentation.
	Metrics *observability.Metrics

	// Allocator defaults to the standard 0.01 granularity.
	Allocator *allocation.Allocator
	// Monitor carries per-trade lifecycle tuning.
	Monitor monitor.Config
	// StopLossFraction derives each trade's stop level from its entry
	// price. Zero selects the monitor default.
	StopLossFraction float64
	// PriceTimeout bounds entry-price fetches. Zero selects the default.
	PriceTimeout time.Duration

	Logger *zap.Logger
}

// Controller starts and tracks sessions.
type Controller struct {
	provider   strategy.Provider
	prices     pricing.Source
	balances   storage.BalanceStore
	statistics storage.StatisticsStore
	tradeLog   storage.TradeLogStore
	archive    Archiver
	metrics    *observability.Metrics

	allocator        *allocation.Allocator
	monitorCfg       monitor.Config
	stopLossFraction float64
	priceTimeout     time.Duration
	logger           *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Handle
}

// NewController creates a session controller.
func NewController(opts Options) *Controller {
	allocator := opts.Allocator
	if allocator == nil {
		allocator = allocation.New(decimal.Zero)
	}
	priceTimeout := opts.PriceTimeout
	if priceTimeout <= 0 {
		priceTimeout = DefaultPriceTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Controller{
		provider:         opts.Provider,
		prices:           opts.Prices,
		balances:         opts.Balances,
		statistics:       opts.Statistics,
		tradeLog:         opts.TradeLog,
		archive:          opts.Archive,
		metrics:          opts.Metrics,
		allocator:        allocator,
		monitorCfg:       opts.Monitor,
		stopLossFraction: opts.StopLossFraction,
		priceTimeout:     priceTimeout,
		logger:           logger,
		sessions:         make(map[string]*Handle),
	}
}

// StartParams describes one session request.
type StartParams struct {
	AccountMode domain.AccountMode
	Budget      decimal.Decimal
	RiskMode    domain.RiskMode
	Instruments []string
	Category    domain.TradeCategory
}

func (p *StartParams) applyDefaults() {
	if p.AccountMode == "" {
		p.AccountMode = domain.AccountDemo
	}
	if p.RiskMode == "" {
		p.RiskMode = domain.RiskBalanced
	}
	if p.Category == "" {
		p.Category = domain.CategoryAuto
	}
	if len(p.Instruments) == 0 {
		for _, inst := range domain.Instruments() {
			p.Instruments = append(p.Instruments, inst.Symbol)
		}
	}
}

// Start runs one session: obtains a strategy, allocates stake, and
// spawns a monitor per surviving proposal. Budget, strategy, and
// allocation failures abort before any trade is spawned; once monitors
// exist, each trade's fate is isolated.
func (c *Controller) Start(ctx context.Context, params StartParams) (*Handle, error) {
	params.applyDefaults()

	if !params.Budget.IsPositive() {
		c.startError("invalid_budget")
		return nil, fmt.Errorf("%w: got %s", ErrInvalidBudget, params.Budget)
	}
	if err := params.RiskMode.Validate(); err != nil {
		c.startError("invalid_risk_mode")
		return nil, err
	}

	recentTicks := c.gatherRecentTicks(ctx, params.Instruments)

	result, err := c.generate(ctx, params, recentTicks)
	if err != nil {
		c.startError("strategy")
		return nil, err
	}

	accepted, err := c.allocator.Normalize(result.Proposals, params.Budget)
	if err != nil {
		c.startError("allocation")
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.ProposalsRejected.Add(float64(len(result.Proposals) - len(accepted)))
	}

	handle := c.newHandle(params, result.Reasoning)

	if len(accepted) == 0 {
		c.completeEmpty(handle, "strategy proposed no trades")
		return handle, nil
	}

	persisted, err := c.loadStatistics(ctx, params)
	if err != nil {
		c.startError("statistics")
		return nil, err
	}
	handle.agg = stats.NewFrom(persisted)

	trades := c.acceptProposals(ctx, handle, accepted)
	if len(trades) == 0 {
		c.completeEmpty(handle, "no entry prices available for any proposal")
		return handle, nil
	}

	c.spawn(handle, trades)

	c.mu.Lock()
	c.sessions[handle.id] = handle
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SessionsStarted.Inc()
	}
	c.logger.Info("session started",
		zap.String("session_id", handle.id),
		zap.String("account_mode", string(params.AccountMode)),
		zap.String("risk_mode", string(params.RiskMode)),
		zap.Int("trades", len(trades)))

	return handle, nil
}

// Get returns a tracked session handle.
func (c *Controller) Get(id string) (*Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.sessions[id]
	return h, ok
}

// Stop stops a tracked session by ID.
func (c *Controller) Stop(id string) error {
	h, ok := c.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	h.Stop()
	if c.metrics != nil {
		c.metrics.SessionsStopped.Inc()
	}
	return nil
}

// StopAll stops every tracked session. Used at shutdown.
func (c *Controller) StopAll() {
	c.mu.Lock()
	handles := make([]*Handle, 0, len(c.sessions))
	for _, h := range c.sessions {
		handles = append(handles, h)
	}
	c.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}
}

func (c *Controller) newHandle(params StartParams, reasoning string) *Handle {
	h := &Handle{
		id:        uuid.NewString(),
		mode:      params.AccountMode,
		category:  params.Category,
		riskMode:  params.RiskMode,
		reasoning: reasoning,
		agg:       stats.New(),
		done:      make(chan struct{}),
	}

	var onDrop func()
	var onSubscribe func(int)
	if c.metrics != nil {
		onDrop = c.metrics.EventsDropped.Inc
		onSubscribe = func(delta int) { c.metrics.EventSubscribers.Add(float64(delta)) }
	}
	h.events = newBroadcaster(onDrop, onSubscribe)
	return h
}

// gatherRecentTicks collects strategy context. Feed failures here are
// non-fatal: the instrument simply contributes no ticks.
func (c *Controller) gatherRecentTicks(ctx context.Context, instruments []string) map[string][]domain.PriceTick {
	out := make(map[string][]domain.PriceTick, len(instruments))
	for _, symbol := range instruments {
		fetchCtx, cancel := context.WithTimeout(ctx, c.priceTimeout)
		ticks, err := c.prices.LatestTicks(fetchCtx, symbol)
		cancel()
		if err != nil {
			c.logger.Debug("recent ticks unavailable", zap.String("instrument", symbol), zap.Error(err))
			ticks = nil
		}
		out[symbol] = ticks
	}
	return out
}

func (c *Controller) generate(ctx context.Context, params StartParams, recentTicks map[string][]domain.PriceTick) (*strategy.Result, error) {
	started := time.Now()
	result, err := c.provider.Generate(ctx, strategy.Request{
		TotalStake:  params.Budget,
		Instruments: params.Instruments,
		RiskMode:    params.RiskMode,
		RecentTicks: recentTicks,
	})
	if c.metrics != nil {
		c.metrics.StrategyLatency.Observe(time.Since(started).Seconds())
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		c.metrics.StrategyCallsTotal.WithLabelValues(outcome).Inc()
	}
	if err != nil {
		if errors.Is(err, strategy.ErrGeneration) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", strategy.ErrGeneration, err)
	}
	return result, nil
}

func (c *Controller) loadStatistics(ctx context.Context, params StartParams) (domain.SessionStatistics, error) {
	persisted, err := c.statistics.Get(ctx, params.AccountMode, params.Category)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.SessionStatistics{}, nil
		}
		return domain.SessionStatistics{}, fmt.Errorf("load statistics: %w", err)
	}
	return *persisted, nil
}

// acceptProposals fixes an entry price per proposal. A missing or failed
// price skips that single proposal with a diagnostic; it never fails the
// session.
func (c *Controller) acceptProposals(ctx context.Context, h *Handle, accepted []domain.TradeProposal) []domain.ActiveTrade {
	trades := make([]domain.ActiveTrade, 0, len(accepted))
	for _, proposal := range accepted {
		fetchCtx, cancel := context.WithTimeout(ctx, c.priceTimeout)
		price, ok, err := pricing.LatestPrice(fetchCtx, c.prices, proposal.Instrument)
		cancel()

		if err != nil || !ok {
			if c.metrics != nil {
				c.metrics.InstrumentsSkipped.Inc()
				if err != nil {
					c.metrics.PriceFetchErrors.Inc()
				}
			}
			reason := "no tick data"
			if err != nil {
				reason = err.Error()
			}
			diag := fmt.Sprintf("skipped %s: entry price unavailable (%s)", proposal.Instrument, reason)
			h.addDiagnostic(diag)
			c.logger.Warn("proposal skipped",
				zap.String("session_id", h.id),
				zap.String("instrument", proposal.Instrument),
				zap.String("reason", reason))
			continue
		}

		trades = append(trades, monitor.NewTrade(proposal, price, c.stopLossFraction, time.Now()))
	}
	return trades
}

// spawn creates one monitor per trade and the collector that funnels
// their completions into session bookkeeping.
func (c *Controller) spawn(h *Handle, trades []domain.ActiveTrade) {
	sessionCtx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.completions = make(chan domain.ActiveTrade, len(trades))

	cfg := c.monitorCfg
	cfg.Logger = c.logger
	cfg.OnTick = func(snap domain.ActiveTrade) {
		h.events.publish(Event{
			Type:      EventTick,
			SessionID: h.id,
			Trade:     &snap,
			Time:      time.Now(),
		})
	}

	for _, trade := range trades {
		m := monitor.New(trade, c.prices, cfg, func(final domain.ActiveTrade) {
			h.completions <- final
		})
		h.mu.Lock()
		h.monitors = append(h.monitors, m)
		h.mu.Unlock()

		go m.Run(sessionCtx)
		if c.metrics != nil {
			c.metrics.TradesSpawned.Inc()
			c.metrics.ActiveTrades.Inc()
		}
	}

	go c.collect(h, len(trades))
}

// collect processes exactly one completion per spawned monitor, then
// finishes the session. Each completion updates the balance, statistics,
// trade log, and archive as one bookkeeping unit, and is published once.
func (c *Controller) collect(h *Handle, count int) {
	for i := 0; i < count; i++ {
		final := <-h.completions
		c.settle(h, final)
	}

	if h.markCompleted() {
		if c.metrics != nil {
			c.metrics.SessionsCompleted.Inc()
		}
		snap := h.agg.Snapshot()
		h.events.publish(Event{
			Type:       EventSessionComplete,
			SessionID:  h.id,
			Statistics: &snap,
			Time:       time.Now(),
		})
		c.logger.Info("session complete",
			zap.String("session_id", h.id),
			zap.Int("trades", snap.TradeCount),
			zap.String("net_profit", snap.TotalNetProfit.String()))
	}

	h.events.close()
	if h.cancel != nil {
		h.cancel()
	}
	close(h.done)
}

// settle applies one trade finalization. Store failures are logged, not
// propagated: the trade's outcome is already decided and siblings must
// not be disturbed.
func (c *Controller) settle(h *Handle, final domain.ActiveTrade) {
	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()

	if c.metrics != nil {
		c.metrics.ActiveTrades.Dec()
		c.metrics.TradesFinalized.WithLabelValues(string(final.Status)).Inc()
	}

	if _, err := c.balances.Apply(ctx, h.mode, final.PnL); err != nil {
		c.logger.Error("balance update failed",
			zap.String("session_id", h.id),
			zap.String("trade_id", final.ID),
			zap.Error(err))
	}

	h.agg.Record(final.PnL, final.Status)
	if err := c.statistics.Put(ctx, h.mode, h.category, h.agg.Snapshot()); err != nil {
		c.logger.Error("statistics write failed",
			zap.String("session_id", h.id),
			zap.Error(err))
	}

	entry := &domain.TradeLogEntry{
		TradeID:     final.ID,
		SessionID:   h.id,
		AccountMode: h.mode,
		Instrument:  final.Instrument,
		Direction:   final.Direction,
		Stake:       final.Stake,
		EntryPrice:  final.EntryPrice,
		ExitPrice:   final.CurrentPrice,
		Status:      final.Status,
		PnL:         final.PnL,
		CloseReason: final.CloseReason,
		StartedAt:   final.StartTime,
		FinalizedAt: time.Now(),
	}
	if c.tradeLog != nil {
		if err := c.tradeLog.Append(ctx, entry); err != nil {
			c.logger.Error("trade log append failed",
				zap.String("trade_id", final.ID),
				zap.Error(err))
		}
	}
	if c.archive != nil {
		if err := c.archive.Archive(ctx, entry); err != nil {
			c.logger.Warn("trade archive failed",
				zap.String("trade_id", final.ID),
				zap.Error(err))
		}
	}

	snap := h.agg.Snapshot()
	h.events.publish(Event{
		Type:       EventTradeFinalized,
		SessionID:  h.id,
		Trade:      &final,
		Statistics: &snap,
		Time:       time.Now(),
	})
}

// completeEmpty finishes a session that spawned no monitors. This is the
// informational "no trades" path, not an error.
func (c *Controller) completeEmpty(h *Handle, reason string) {
	h.markCompleted()
	snap := h.agg.Snapshot()
	h.events.publish(Event{
		Type:       EventSessionComplete,
		SessionID:  h.id,
		Statistics: &snap,
		Reason:     reason,
		Time:       time.Now(),
	})
	h.events.close()
	close(h.done)

	c.mu.Lock()
	c.sessions[h.id] = h
	c.mu.Unlock()

	c.logger.Info("session completed with no trades",
		zap.String("session_id", h.id),
		zap.String("reason", reason))
}

func (c *Controller) startError(reason string) {
	if c.metrics != nil {
		c.metrics.SessionStartErrors.WithLabelValues(reason).Inc()
	}
}
