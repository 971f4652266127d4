// Package main runs one session end to end against the simulated feed
// and prints the resulting statistics. Useful for demos and smoke checks.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradesim/internal/domain"
	"tradesim/internal/monitor"
	"tradesim/internal/pricing"
	"tradesim/internal/session"
	"tradesim/internal/storage/memory"
	"tradesim/internal/strategy"
)

func main() {
	seed := flag.Int64("seed", 42, "Random seed for the simulated feed and outcome draws")
	budget := flag.Float64("budget", 100, "Total session budget")
	duration := flag.Int("duration", 15, "Trade duration in seconds")
	tickInterval := flag.Duration("tick-interval", 500*time.Millisecond, "Monitor tick interval")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	rng := rand.New(rand.NewSource(*seed))

	stake := decimal.NewFromFloat(*budget).Div(decimal.NewFromInt(4)).Round(2)
	provider := &strategy.StubProvider{Result: &strategy.Result{
		Proposals: []domain.TradeProposal{
			{Instrument: "R_10", Direction: domain.DirectionCall, Stake: stake, DurationSeconds: *duration},
			{Instrument: "R_50", Direction: domain.DirectionPut, Stake: stake, DurationSeconds: *duration},
			{Instrument: "R_100", Direction: domain.DirectionCall, Stake: stake, DurationSeconds: *duration},
			{Instrument: "frxEURUSD", Direction: domain.DirectionPut, Stake: stake, DurationSeconds: *duration},
		},
		Reasoning: "fixed demo strategy across volatility indices and forex",
	}}

	balances := memory.NewBalanceStore(map[domain.AccountMode]decimal.Decimal{
		domain.AccountDemo: decimal.NewFromInt(10000),
	})

	controller := session.NewController(session.Options{
		Provider:   provider,
		Prices:     pricing.NewSimulatedFeed(pricing.SimulatedFeedOptions{Seed: *seed}),
		Balances:   balances,
		Statistics: memory.NewStatisticsStore(),
		TradeLog:   memory.NewTradeLogStore(),
		Monitor: monitor.Config{
			TickInterval: *tickInterval,
			Draw:         rng.Float64,
			Logger:       logger,
		},
		Logger: logger,
	})

	ctx := context.Background()
	h, err := controller.Start(ctx, session.StartParams{
		AccountMode: domain.AccountDemo,
		Budget:      decimal.NewFromFloat(*budget),
		Instruments: []string{"R_10", "R_50", "R_100", "frxEURUSD"},
	})
	if err != nil {
		logger.Fatal("start session", zap.Error(err))
	}

	fmt.Printf("session %s started, waiting for %d trades to finalize...\n", h.ID(), len(h.Snapshot().Trades))
	<-h.Done()

	snap := h.Snapshot()
	fmt.Printf("\nsession %s complete\n", snap.SessionID)
	for _, t := range snap.Trades {
		fmt.Printf("  %-10s %-4s stake %-8s entry %-10.4f exit %-10.4f %-14s pnl %s\n",
			t.Instrument, t.Direction, t.Stake, t.EntryPrice, t.CurrentPrice, t.Status, t.PnL)
	}
	fmt.Printf("\ntrades: %d  won: %d  lost: %d  net: %s\n",
		snap.Statistics.TradeCount,
		snap.Statistics.WinningTrades,
		snap.Statistics.LosingTrades,
		snap.Statistics.TotalNetProfit)

	balance, err := balances.Get(ctx, domain.AccountDemo)
	if err == nil {
		fmt.Printf("demo balance: %s\n", balance)
	}
}
