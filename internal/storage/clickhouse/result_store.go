package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cowswap-improvement/internal/blocktime"
	"cowswap-improvement/internal/domain"
	"cowswap-improvement/internal/observability"
	"cowswap-improvement/internal/storage"
	"cowswap-improvement/internal/storage/migrations"
)

// ResultStore mirrors enriched trades and batch improvements into ClickHouse.
// Trades already present for (batch_id, block_number) are skipped; the latest
// improvement per batch wins via ReplacingMergeTree(computed_at).
type ResultStore struct {
	conn *Conn
	now  func() time.Time
}

// NewResultStore creates a new ResultStore.
func NewResultStore(conn *Conn) *ResultStore {
	return &ResultStore{conn: conn, now: time.Now}
}

// Compile-time interface checks.
var (
	_ storage.ResultStore  = (*ResultStore)(nil)
	_ storage.ResultReader = (*ResultStore)(nil)
)

// EnsureSchema applies the embedded ClickHouse migrations.
func (s *ResultStore) EnsureSchema(ctx context.Context) (err error) {
	defer recordQuery("ensure_schema", time.Now(), &err)

	if err := migrations.RunClickhouseMigrations(ctx, s.conn); err != nil {
		return fmt.Errorf("ensure clickhouse schema: %w", err)
	}
	return nil
}

// SaveBatch appends new trades and the improvement row.
// ClickHouse has no transactions: the trades insert and the improvement insert
// are independent.
func (s *ResultStore) SaveBatch(ctx context.Context, batch *domain.Batch) (err error) {
	defer recordQuery("save_batch", time.Now(), &err)

	if err := storage.ValidateBatch(batch); err != nil {
		return err
	}

	existing, err := s.existingBlocks(ctx, batch.Improvement.BatchID)
	if err != nil {
		return fmt.Errorf("check existing trades: %w", err)
	}

	var fresh []*domain.MatchedRecord
	for _, t := range batch.Trades {
		if _, ok := existing[t.BlockNumber]; ok {
			continue
		}
		existing[t.BlockNumber] = struct{}{}
		fresh = append(fresh, t)
	}

	if len(fresh) > 0 {
		if err := s.insertTrades(ctx, fresh); err != nil {
			return err
		}
	}

	imp := batch.Improvement
	b, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO batch_improvements (batch_id, average_improvement, computed_at)
	`)
	if err != nil {
		return fmt.Errorf("prepare improvement batch: %w", err)
	}
	if err := b.Append(imp.BatchID, imp.AverageImprovement.Decimal, s.now().UTC()); err != nil {
		return fmt.Errorf("append improvement: %w", err)
	}
	if err := b.Send(); err != nil {
		return fmt.Errorf("send improvement batch: %w", err)
	}

	return nil
}

func (s *ResultStore) insertTrades(ctx context.Context, trades []*domain.MatchedRecord) error {
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO cow_swap_trades (
			batch_id, block_number, block_time, block_timestamp,
			buy_token, sell_token, buy_price, sell_price, units_sold,
			sell_token_address, token_pair, price, trade_price, price_improvement
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare trades batch: %w", err)
	}

	for _, t := range trades {
		var ts int64
		if t.BlockTimestamp != nil {
			ts = *t.BlockTimestamp
		}
		var blockTime *time.Time
		if parsed, err := blocktime.Parse(t.BlockTime); err == nil {
			blockTime = &parsed
		}

		err = batch.Append(
			t.BatchID, t.BlockNumber, blockTime, ts,
			t.BuyToken, t.SellToken, nullable(t.BuyPrice), nullable(t.SellPrice), t.UnitsSold,
			t.SellTokenAddress, t.TokenPair, nullable(t.Price), nullable(t.TradePrice), t.PriceImprovement.Decimal,
		)
		if err != nil {
			return fmt.Errorf("append trade %d: %w", t.BlockNumber, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send trades batch: %w", err)
	}
	return nil
}

// existingBlocks returns the block numbers already stored for a batch.
func (s *ResultStore) existingBlocks(ctx context.Context, batchID int64) (map[int64]struct{}, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT block_number FROM cow_swap_trades FINAL
		WHERE batch_id = ?
	`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]struct{})
	for rows.Next() {
		var bn int64
		if err := rows.Scan(&bn); err != nil {
			return nil, err
		}
		out[bn] = struct{}{}
	}
	return out, rows.Err()
}

// GetBatchImprovement returns the latest aggregate of one batch. Returns ErrNotFound if not exists.
func (s *ResultStore) GetBatchImprovement(ctx context.Context, batchID int64) (_ *domain.BatchImprovement, err error) {
	defer recordQuery("get_batch_improvement", time.Now(), &err)

	rows, err := s.conn.Query(ctx, `
		SELECT batch_id, average_improvement
		FROM batch_improvements FINAL
		WHERE batch_id = ?
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("get batch improvement: %w", err)
	}
	defer rows.Close()

	list, err := scanImprovements(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, storage.ErrNotFound
	}
	return list[0], nil
}

// ListBatchImprovements returns every aggregate ordered by batch_id ASC.
func (s *ResultStore) ListBatchImprovements(ctx context.Context) (_ []*domain.BatchImprovement, err error) {
	defer recordQuery("list_batch_improvements", time.Now(), &err)

	rows, err := s.conn.Query(ctx, `
		SELECT batch_id, average_improvement
		FROM batch_improvements FINAL
		ORDER BY batch_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list batch improvements: %w", err)
	}
	defer rows.Close()

	return scanImprovements(rows)
}

// GetTradesByBatch returns the trades of one batch ordered by block_number ASC.
func (s *ResultStore) GetTradesByBatch(ctx context.Context, batchID int64) (_ []*domain.MatchedRecord, err error) {
	defer recordQuery("get_trades_by_batch", time.Now(), &err)

	rows, err := s.conn.Query(ctx, `
		SELECT
			batch_id, block_number, block_time, block_timestamp,
			buy_token, sell_token, buy_price, sell_price, units_sold,
			sell_token_address, token_pair, price, trade_price, price_improvement
		FROM cow_swap_trades FINAL
		WHERE batch_id = ?
		ORDER BY block_number ASC
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("get trades by batch: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

func scanImprovements(rows chRows) ([]*domain.BatchImprovement, error) {
	var result []*domain.BatchImprovement
	for rows.Next() {
		var (
			imp domain.BatchImprovement
			avg decimal.Decimal
		)
		if err := rows.Scan(&imp.BatchID, &avg); err != nil {
			return nil, fmt.Errorf("scan batch improvement row: %w", err)
		}
		imp.AverageImprovement = decimal.NewNullDecimal(avg)
		result = append(result, &imp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batch improvement rows: %w", err)
	}
	return result, nil
}

func scanTrades(rows chRows) ([]*domain.MatchedRecord, error) {
	var result []*domain.MatchedRecord
	for rows.Next() {
		var (
			t                                      domain.TradeRecord
			blockTime                              *time.Time
			ts                                     int64
			buyPrice, sellPrice, price, tradePrice *decimal.Decimal
			improvement                            decimal.Decimal
		)
		err := rows.Scan(
			&t.BatchID, &t.BlockNumber, &blockTime, &ts,
			&t.BuyToken, &t.SellToken, &buyPrice, &sellPrice, &t.UnitsSold,
			&t.SellTokenAddress, &t.TokenPair, &price, &tradePrice, &improvement,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		if blockTime != nil {
			t.BlockTime = blockTime.UTC().Format("2006-01-02 15:04:05.000000 UTC")
		}
		if ts != 0 {
			t.BlockTimestamp = &ts
		}
		t.BuyPrice = fromNullable(buyPrice)
		t.SellPrice = fromNullable(sellPrice)
		result = append(result, &domain.MatchedRecord{
			TradeRecord:      &t,
			Price:            fromNullable(price),
			TradePrice:       fromNullable(tradePrice),
			PriceImprovement: decimal.NewNullDecimal(improvement),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}
	return result, nil
}

func nullable(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func fromNullable(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

// recordQuery observes one store operation. A missing row is not an error.
func recordQuery(operation string, start time.Time, errp *error) {
	err := *errp
	if errors.Is(err, storage.ErrNotFound) {
		err = nil
	}
	observability.RecordDBQuery("clickhouse", operation, time.Since(start).Seconds(), err)
}
