// Package orchestrator runs the price-improvement batch job.
// It coordinates: fetch trades → filter → fetch prices → match → compute → persist
package orchestrator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"cowswap-improvement/internal/domain"
	"cowswap-improvement/internal/idhash"
	"cowswap-improvement/internal/logger"
	"cowswap-improvement/internal/lookup"
	"cowswap-improvement/internal/metrics"
	"cowswap-improvement/internal/observability"
	"cowswap-improvement/internal/source"
	"cowswap-improvement/internal/storage"
	"cowswap-improvement/internal/trace"
)

// Stage names used for spans, metrics and logs.
const (
	StageFetchTrades = "fetch_trades"
	StageFilter      = "filter"
	StageFetchPrices = "fetch_prices"
	StageMatch       = "match"
	StageCompute     = "compute"
	StagePersist     = "persist"
)

// Orchestrator coordinates one pipeline run.
type Orchestrator struct {
	trades source.TradeSource
	prices source.PriceSource
	store  storage.ResultStore
	mirror storage.ResultStore

	queryID        int
	priceSellToken string
	priceBuyToken  string
	batchDate      *time.Time
	strict         bool

	log   *logger.Log
	clock func() time.Time
}

// Options for creating Orchestrator.
type Options struct {
	// Required collaborators
	TradeSource source.TradeSource
	PriceSource source.PriceSource
	Store       storage.ResultStore

	// Optional secondary store; its failures never fail the run.
	Mirror storage.ResultStore

	QueryID int

	// Pair the reference prices are requested for (default WETH/USDC).
	PriceSellToken string
	PriceBuyToken  string

	// BatchDate overrides the batch id derived from the trades' block time.
	BatchDate *time.Time

	// StrictPersistence returns persistence failures as ErrPersistence.
	// By default they are logged, recorded in RunResult and swallowed.
	StrictPersistence bool

	Logger *logger.Log
	Clock  func() time.Time
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		trades:         opts.TradeSource,
		prices:         opts.PriceSource,
		store:          opts.Store,
		mirror:         opts.Mirror,
		queryID:        opts.QueryID,
		priceSellToken: opts.PriceSellToken,
		priceBuyToken:  opts.PriceBuyToken,
		batchDate:      opts.BatchDate,
		strict:         opts.StrictPersistence,
		log:            opts.Logger,
		clock:          opts.Clock,
	}
	if o.priceSellToken == "" {
		o.priceSellToken = domain.TokenWETH
	}
	if o.priceBuyToken == "" {
		o.priceBuyToken = domain.TokenUSDC
	}
	if o.log == nil {
		o.log = logger.GetLogger()
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	return o
}

// RunResult contains results from one run.
type RunResult struct {
	RunID   string
	BatchID int64

	TradesFetched   int
	TradesFiltered  int
	PricesFetched   int
	TradesMatched   int
	TradesPersisted int

	AverageImprovement decimal.NullDecimal

	// PersistenceError is set when persistence failed but the run did not:
	// without StrictPersistence, or when only the mirror failed.
	PersistenceError error

	Duration time.Duration
}

// Run executes the pipeline once.
// Stages:
//  1. Fetch trades of the latest query execution
//  2. Keep WETH/USDC trades
//  3. Fetch reference prices over the trades' time range
//  4. Match every trade with the price in effect at its block time
//  5. Compute trade prices and improvements, drop undefined ones, aggregate
//  6. Persist the batch
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	start := o.clock()
	result := &RunResult{RunID: uuid.NewString()}
	entry := o.log.WithComponent("orchestrator").WithField("run_id", result.RunID)

	ctx, span := trace.StartSpan(ctx, "pipeline.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("run_id", result.RunID),
		attribute.Int("query_id", o.queryID),
	)

	err := o.run(ctx, entry, result)
	result.Duration = o.clock().Sub(start)

	status := "success"
	if err != nil {
		status = "failure"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		entry.WithError(err).Error("pipeline run failed")
	}
	observability.RecordPipelineRun(status, result.Duration.Seconds())
	logger.LogDuration(entry, "pipeline run", result.Duration, logger.Fields{
		"status":           status,
		"batch_id":         result.BatchID,
		"trades_fetched":   result.TradesFetched,
		"trades_matched":   result.TradesMatched,
		"trades_persisted": result.TradesPersisted,
	})

	return result, err
}

func (o *Orchestrator) run(ctx context.Context, entry *logger.Entry, result *RunResult) error {
	// Stage 1: fetch trades
	var trades []*domain.TradeRecord
	err := o.stage(ctx, entry, StageFetchTrades, func(ctx context.Context) (int, error) {
		var err error
		trades, err = o.trades.FetchLatestResult(ctx, o.queryID)
		if err != nil {
			return 0, fmt.Errorf("%w: query %d: %w", ErrNoTrades, o.queryID, err)
		}
		if len(trades) == 0 {
			return 0, fmt.Errorf("%w: query %d returned no rows", ErrNoTrades, o.queryID)
		}
		return len(trades), nil
	})
	if err != nil {
		return err
	}
	result.TradesFetched = len(trades)

	// Stage 2: filter to the supported pair
	var from, to int64
	err = o.stage(ctx, entry, StageFilter, func(context.Context) (int, error) {
		trades = filterSupported(trades)
		if len(trades) == 0 {
			return 0, fmt.Errorf("%w: no WETH/USDC trades among %d rows", ErrNoTrades, result.TradesFetched)
		}
		var ok bool
		from, to, ok = timeRange(trades)
		if !ok {
			return len(trades), fmt.Errorf("%w: no trade has a parsable block time", ErrNoTrades)
		}
		return len(trades), nil
	})
	result.TradesFiltered = len(trades)
	if err != nil {
		return err
	}
	entry.WithFields(logger.Fields{
		"from": from,
		"to":   to,
	}).Info("block time interval")

	// Stage 3: fetch reference prices
	var prices []*domain.PricePoint
	err = o.stage(ctx, entry, StageFetchPrices, func(ctx context.Context) (int, error) {
		var err error
		prices, err = o.prices.FetchPriceRange(ctx, from, to, o.priceSellToken, o.priceBuyToken)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrNoPrices, err)
		}
		if len(prices) == 0 {
			return 0, fmt.Errorf("%w: range [%d, %d]", ErrNoPrices, from, to)
		}
		return len(prices), nil
	})
	if err != nil {
		return err
	}
	result.PricesFetched = len(prices)

	// Stage 4: match
	var matched []*domain.MatchedRecord
	err = o.stage(ctx, entry, StageMatch, func(context.Context) (int, error) {
		matched = lookup.MatchTrades(trades, prices)
		if len(matched) == 0 {
			return 0, ErrNoMatch
		}
		if priced := countPriced(matched); priced < len(matched) {
			entry.WithFields(logger.Fields{
				"matched":  len(matched),
				"unpriced": len(matched) - priced,
			}).Warn("some trades have no reference price")
		}
		return len(matched), nil
	})
	if err != nil {
		return err
	}
	result.TradesMatched = len(matched)

	// Stage 5: compute, clean, aggregate
	var cleaned []*domain.MatchedRecord
	err = o.stage(ctx, entry, StageCompute, func(context.Context) (int, error) {
		metrics.ComputeImprovements(matched)
		cleaned = metrics.DropUndefined(matched)
		result.AverageImprovement = metrics.AverageImprovement(cleaned)
		return len(cleaned), nil
	})
	if err != nil {
		return err
	}
	logSummary(entry, metrics.Summarize(matched))

	// Stage 6: persist
	persisted, err := o.persist(ctx, entry, result, cleaned)
	if err != nil {
		if o.strict {
			return err
		}
		result.PersistenceError = err
		entry.WithError(err).WithFields(logger.Fields{
			"batch_id": result.BatchID,
			"trades":   len(cleaned),
		}).Error("error saving data to the database")
	}
	result.TradesPersisted = persisted

	avg := math.NaN()
	if result.AverageImprovement.Valid {
		avg = result.AverageImprovement.Decimal.InexactFloat64()
	}
	observability.RecordBatchResult(avg, persisted)
	return nil
}

// persist stamps the batch id and writes the batch to the store, then to the
// mirror. Returns the number of trades written to the primary store.
func (o *Orchestrator) persist(ctx context.Context, entry *logger.Entry, result *RunResult, cleaned []*domain.MatchedRecord) (int, error) {
	var persisted int
	err := o.stage(ctx, entry, StagePersist, func(ctx context.Context) (int, error) {
		batchID, err := o.batchID(cleaned)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		result.BatchID = batchID

		batch := &domain.Batch{
			Improvement: domain.BatchImprovement{
				BatchID:            batchID,
				AverageImprovement: result.AverageImprovement,
			},
			Trades: cleaned,
		}

		if err := saveTo(ctx, o.store, batch); err != nil {
			return 0, fmt.Errorf("%w: batch %d: %w", ErrPersistence, batchID, err)
		}
		persisted = len(cleaned)
		logBatchSaved(entry, "postgres", batch)

		if o.mirror != nil {
			if err := saveTo(ctx, o.mirror, batch); err != nil {
				result.PersistenceError = fmt.Errorf("mirror: batch %d: %w", batchID, err)
				entry.WithError(err).WithField("batch_id", batchID).Warn("mirror save failed")
			} else {
				logBatchSaved(entry, "mirror", batch)
			}
		}
		return persisted, nil
	})
	return persisted, err
}

func (o *Orchestrator) batchID(cleaned []*domain.MatchedRecord) (int64, error) {
	if o.batchDate != nil {
		id := idhash.BatchIDFromDate(*o.batchDate)
		idhash.StampBatchID(cleaned, id)
		return id, nil
	}
	return idhash.DeriveBatchID(cleaned)
}

func saveTo(ctx context.Context, store storage.ResultStore, batch *domain.Batch) error {
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	if err := store.SaveBatch(ctx, batch); err != nil {
		return fmt.Errorf("save batch: %w", err)
	}
	return nil
}

// stage runs fn inside a span and records its duration and record count.
func (o *Orchestrator) stage(ctx context.Context, entry *logger.Entry, name string, fn func(context.Context) (int, error)) error {
	ctx, span := trace.StartSpan(ctx, "pipeline."+name)
	defer span.End()

	start := o.clock()
	records, err := fn(ctx)
	elapsed := o.clock().Sub(start)

	span.SetAttributes(attribute.Int("records", records))
	observability.RecordStage(name, elapsed.Seconds(), records)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("stage %s: %w", name, err)
	}
	entry.WithFields(logger.Fields{
		"stage":       name,
		"records":     records,
		"duration_ms": elapsed.Milliseconds(),
	}).Debug("stage completed")
	return nil
}

// filterSupported keeps trades where both tokens are WETH or USDC.
func filterSupported(trades []*domain.TradeRecord) []*domain.TradeRecord {
	out := make([]*domain.TradeRecord, 0, len(trades))
	for _, t := range trades {
		if t != nil && domain.IsSupportedPair(t.BuyToken, t.SellToken) {
			out = append(out, t)
		}
	}
	return out
}

func countPriced(matched []*domain.MatchedRecord) int {
	n := 0
	for _, m := range matched {
		if m.Price.Valid {
			n++
		}
	}
	return n
}

// timeRange returns the min and max block timestamps. Trades without a
// timestamp are ignored.
func timeRange(trades []*domain.TradeRecord) (from, to int64, ok bool) {
	for _, t := range trades {
		if !t.HasTimestamp() {
			continue
		}
		ts := *t.BlockTimestamp
		if !ok || ts < from {
			from = ts
		}
		if !ok || ts > to {
			to = ts
		}
		ok = true
	}
	return from, to, ok
}

func logSummary(entry *logger.Entry, s metrics.Summary) {
	fields := logger.Fields{
		"count":   s.Count,
		"defined": s.Defined,
	}
	for name, v := range map[string]decimal.NullDecimal{
		"mean":   s.Mean,
		"median": s.Median,
		"min":    s.Min,
		"max":    s.Max,
	} {
		if v.Valid {
			fields[name] = v.Decimal.String()
		}
	}
	entry.WithFields(fields).Info("price improvement summary")
}

func logBatchSaved(entry *logger.Entry, destination string, batch *domain.Batch) {
	logger.LogDataFlow(entry.WithField("batch_id", batch.Improvement.BatchID), "pipeline", destination, len(batch.Trades), "cow_swap_trades")
}
