// Package main runs one price-improvement batch:
// Dune trades → CoinGecko prices → matching → improvement → PostgreSQL
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cowswap-improvement/internal/coingecko"
	"cowswap-improvement/internal/config"
	"cowswap-improvement/internal/dune"
	"cowswap-improvement/internal/logger"
	"cowswap-improvement/internal/observability"
	"cowswap-improvement/internal/orchestrator"
	"cowswap-improvement/internal/storage"
	chstore "cowswap-improvement/internal/storage/clickhouse"
	pgstore "cowswap-improvement/internal/storage/postgres"
	"cowswap-improvement/internal/trace"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yml (default: $COWSWAP_CONFIG or config.yml)")
	batchDate := flag.String("batch-date", "", "Batch date YYYY-MM-DD (default: derived from the trades' block time)")
	truncateTrades := flag.Bool("truncate-trades", false, "Remove every stored trade (batch improvements are kept) and exit")
	flag.Parse()

	if err := run(*configPath, *batchDate, *truncateTrades); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, batchDate string, truncateTrades bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.GetLogger()
	if err := log.Configure(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	}); err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}
	entry := log.WithComponent("main")

	var date *time.Time
	if batchDate != "" {
		d, err := time.Parse("2006-01-02", batchDate)
		if err != nil {
			return fmt.Errorf("parse --batch-date: %w", err)
		}
		date = &d
	}

	// Handle shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := trace.Init(trace.Config{Enabled: cfg.Tracing.Enabled}); err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := trace.Shutdown(context.Background()); err != nil {
			entry.WithError(err).Warn("trace shutdown failed")
		}
	}()

	observability.DefaultMetrics = observability.NewMetrics(cfg.Metrics.Namespace)

	pool, err := pgstore.NewPool(ctx, cfg.DB.PostgresDSN(), pgstore.WithMaxConns(1))
	if err != nil {
		return err
	}
	defer pool.Close()
	store := pgstore.NewResultStore(pool, cfg.DB.BatchSize)

	if truncateTrades {
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		if err := store.TruncateTrades(ctx); err != nil {
			return err
		}
		entry.Info("cow_swap_trades truncated")
		return nil
	}

	var mirror storage.ResultStore
	if cfg.ClickHouse.DSN != "" {
		conn, err := chstore.Open(ctx, cfg.ClickHouse.DSN)
		if err != nil {
			// The mirror is optional; the run continues without it.
			entry.WithError(err).Warn("clickhouse mirror unavailable")
		} else {
			defer conn.Close()
			mirror = chstore.NewResultStore(conn)
		}
	}

	trades := dune.NewHTTPClient(cfg.Dune.APIKey,
		dune.WithBaseURL(cfg.Dune.BaseURL),
		dune.WithTimeout(cfg.Dune.Timeout),
		dune.WithLogger(log),
	)
	prices := coingecko.NewHTTPClient(
		coingecko.WithBaseURL(cfg.CoinGecko.BaseURL),
		coingecko.WithAPIKey(cfg.CoinGecko.APIKey),
		coingecko.WithTimeout(cfg.CoinGecko.Timeout),
		coingecko.WithRateLimit(cfg.CoinGecko.RequestsPerMinute),
		coingecko.WithLogger(log),
	)

	orch := orchestrator.New(orchestrator.Options{
		TradeSource:       trades,
		PriceSource:       prices,
		Store:             store,
		Mirror:            mirror,
		QueryID:           cfg.Dune.QueryID,
		PriceSellToken:    cfg.CoinGecko.SellToken,
		PriceBuyToken:     cfg.CoinGecko.BuyToken,
		BatchDate:         date,
		StrictPersistence: cfg.Pipeline.StrictPersistence,
		Logger:            log,
	})

	result, runErr := orch.Run(ctx)

	if err := observability.DefaultMetrics.Push(context.Background(), cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, map[string]string{
		"query_id": fmt.Sprint(cfg.Dune.QueryID),
	}); err != nil {
		entry.WithError(err).Warn("push metrics failed")
	}

	if runErr != nil {
		return runErr
	}

	done := entry.WithFields(logger.Fields{
		"run_id":              result.RunID,
		"batch_id":            result.BatchID,
		"trades_persisted":    result.TradesPersisted,
		"average_improvement": result.AverageImprovement.Decimal.String(),
	})
	if result.PersistenceError != nil {
		done.WithError(result.PersistenceError).Warn("run completed with persistence errors")
		return nil
	}
	done.Info("data successfully saved to the database")
	return nil
}
