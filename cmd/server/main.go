// Package main runs the trade simulation engine: price feed, strategy
// provider, session controller, and the HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradesim/internal/api"
	"tradesim/internal/archive"
	"tradesim/internal/config"
	"tradesim/internal/domain"
	"tradesim/internal/monitor"
	"tradesim/internal/observability"
	"tradesim/internal/pricing"
	"tradesim/internal/session"
	"tradesim/internal/storage"
	"tradesim/internal/storage/memory"
	"tradesim/internal/storage/migrations"
	pgstore "tradesim/internal/storage/postgres"
	"tradesim/internal/strategy"
)

// demoOpeningBalance seeds the demo account on first start.
var demoOpeningBalance = decimal.NewFromInt(10000)

type stores struct {
	balances   storage.BalanceStore
	statistics storage.StatisticsStore
	tradeLog   storage.TradeLogStore
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	listenAddr := flag.String("listen-addr", cfg.ListenAddr, "HTTP listen address")
	storeMode := flag.String("store", cfg.StoreMode, "Storage backend: memory or postgres")
	feedMode := flag.String("feed", cfg.FeedMode, "Price feed: ws or simulated")
	providerMode := flag.String("provider", cfg.ProviderMode, "Strategy provider: http or stub")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	st, archiver, cleanup, err := createStores(ctx, cfg, *storeMode, logger)
	if err != nil {
		logger.Fatal("create stores", zap.Error(err))
	}
	defer cleanup()

	feed, err := createFeed(ctx, cfg, *feedMode, logger)
	if err != nil {
		logger.Fatal("create price feed", zap.Error(err))
	}

	provider := createProvider(cfg, *providerMode, logger)

	controller := session.NewController(session.Options{
		Provider:   provider,
		Prices:     feed,
		Balances:   st.balances,
		Statistics: st.statistics,
		TradeLog:   st.tradeLog,
		Archive:    archiver,
		Metrics:    metrics,
		Monitor: monitor.Config{
			TickInterval:     cfg.TickInterval,
			PayoutMultiplier: decimal.NewFromFloat(cfg.PayoutMultiplier),
			WinProbability:   cfg.WinProbability,
			Logger:           logger,
		},
		StopLossFraction: cfg.StopLossFraction,
		PriceTimeout:     cfg.PriceTimeout,
		Logger:           logger,
	})

	server := &http.Server{
		Addr:    *listenAddr,
		Handler: api.NewServer(controller, metrics, logger).Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", *listenAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("http server failed", zap.Error(err))
	}

	// Finalize active trades before tearing down the HTTP surface so
	// statistics and balances are consistent on restart.
	controller.StopAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel()

	logger.Info("shutdown complete")
}

// createStores builds the persistence layer for the selected mode.
func createStores(ctx context.Context, cfg config.Config, mode string, logger *zap.Logger) (*stores, session.Archiver, func(), error) {
	switch mode {
	case "memory":
		st := &stores{
			balances: memory.NewBalanceStore(map[domain.AccountMode]decimal.Decimal{
				domain.AccountDemo: demoOpeningBalance,
			}),
			statistics: memory.NewStatisticsStore(),
			tradeLog:   memory.NewTradeLogStore(),
		}
		return st, nil, func() {}, nil

	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, nil, nil, fmt.Errorf("POSTGRES_DSN is required for store mode %q", mode)
		}
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("run postgres migrations: %w", err)
		}

		balances := pgstore.NewBalanceStore(pool)
		if err := balances.Init(ctx, domain.AccountDemo, demoOpeningBalance); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}

		st := &stores{
			balances:   balances,
			statistics: pgstore.NewStatisticsStore(pool),
			tradeLog:   pgstore.NewTradeLogStore(pool),
		}

		cleanup := func() { pool.Close() }

		// ClickHouse archive is optional even in postgres mode.
		if cfg.ClickHouseDSN == "" {
			return st, nil, cleanup, nil
		}
		conn, err := archive.NewConn(ctx, cfg.ClickHouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			conn.Close()
			pool.Close()
			return nil, nil, nil, fmt.Errorf("run clickhouse migrations: %w", err)
		}
		logger.Info("trade archive enabled")
		return st, archive.NewStore(conn), func() {
			conn.Close()
			pool.Close()
		}, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown store mode %q", mode)
	}
}

// createFeed builds the price source for the selected mode.
func createFeed(ctx context.Context, cfg config.Config, mode string, logger *zap.Logger) (pricing.Source, error) {
	switch mode {
	case "simulated":
		return pricing.NewSimulatedFeed(pricing.SimulatedFeedOptions{Seed: cfg.SimSeed}), nil

	case "ws":
		endpoint := fmt.Sprintf("%s?app_id=%s", cfg.FeedEndpoint, cfg.FeedAppID)
		feed, err := pricing.NewWSFeed(ctx, endpoint, &pricing.WSFeedConfig{Logger: logger})
		if err != nil {
			return nil, err
		}
		for _, inst := range domain.Instruments() {
			if err := feed.Subscribe(inst.Symbol); err != nil {
				logger.Warn("subscribe failed", zap.String("instrument", inst.Symbol), zap.Error(err))
			}
		}
		return feed, nil

	default:
		return nil, fmt.Errorf("unknown feed mode %q", mode)
	}
}

// createProvider builds the strategy provider for the selected mode. The
// stub provider proposes nothing; it exists so the engine can run without
// a generation backend.
func createProvider(cfg config.Config, mode string, logger *zap.Logger) strategy.Provider {
	if mode == "stub" {
		return &strategy.StubProvider{Result: &strategy.Result{
			Reasoning: "stub provider: no trades proposed",
		}}
	}
	return strategy.NewHTTPProvider(cfg.StrategyEndpoint,
		strategy.WithTimeout(cfg.StrategyTimeout),
		strategy.WithLogger(logger),
	)
}
