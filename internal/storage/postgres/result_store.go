package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"cowswap-improvement/internal/blocktime"
	"cowswap-improvement/internal/domain"
	"cowswap-improvement/internal/observability"
	"cowswap-improvement/internal/storage"
	"cowswap-improvement/internal/storage/migrations"
)

// DefaultBatchSize is the number of trade inserts queued per round trip.
const DefaultBatchSize = 100

const insertTradeSQL = `
	INSERT INTO cow_swap_trades (
		batch_id, block_number, block_time, buy_price, buy_token,
		sell_price, sell_token, sell_token_address, token_pair, units_sold,
		block_timestamp, price, trade_price, price_improvement
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9, $10,
		$11, $12, $13, $14
	)
	ON CONFLICT (batch_id, block_number) DO NOTHING
`

const upsertImprovementSQL = `
	INSERT INTO batch_improvements (batch_id, average_improvement)
	VALUES ($1, $2)
	ON CONFLICT (batch_id) DO UPDATE
	SET average_improvement = EXCLUDED.average_improvement
`

const selectTradeColumns = `
	batch_id, block_number, block_time, buy_price, buy_token,
	sell_price, sell_token, sell_token_address, token_pair, units_sold,
	block_timestamp, price, trade_price, price_improvement
`

// ResultStore implements storage.ResultStore and storage.ResultReader using PostgreSQL.
type ResultStore struct {
	pool      *Pool
	batchSize int
}

// NewResultStore creates a new ResultStore. batchSize <= 0 uses DefaultBatchSize.
func NewResultStore(pool *Pool, batchSize int) *ResultStore {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ResultStore{pool: pool, batchSize: batchSize}
}

// Compile-time interface checks.
var (
	_ storage.ResultStore  = (*ResultStore)(nil)
	_ storage.ResultReader = (*ResultStore)(nil)
)

// EnsureSchema applies the embedded migrations. Safe to call on every run.
func (s *ResultStore) EnsureSchema(ctx context.Context) (err error) {
	defer recordQuery("ensure_schema", time.Now(), &err)

	if err := migrations.RunPostgresMigrations(ctx, s.pool); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveBatch writes the trades (insert-or-ignore) and upserts the improvement
// inside a single transaction. Nothing is committed unless every statement
// succeeds.
func (s *ResultStore) SaveBatch(ctx context.Context, batch *domain.Batch) (err error) {
	defer recordQuery("save_batch", time.Now(), &err)

	if err := storage.ValidateBatch(batch); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for start := 0; start < len(batch.Trades); start += s.batchSize {
		end := start + s.batchSize
		if end > len(batch.Trades) {
			end = len(batch.Trades)
		}
		if err := s.insertChunk(ctx, tx, batch.Trades[start:end]); err != nil {
			return err
		}
	}

	imp := batch.Improvement
	if _, err := tx.Exec(ctx, upsertImprovementSQL, imp.BatchID, imp.AverageImprovement.Decimal); err != nil {
		if isInvalidValueError(err) {
			return fmt.Errorf("%w: upsert batch improvement: %v", storage.ErrInvalidInput, err)
		}
		return fmt.Errorf("upsert batch improvement: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

func (s *ResultStore) insertChunk(ctx context.Context, tx pgx.Tx, trades []*domain.MatchedRecord) error {
	b := &pgx.Batch{}
	for _, t := range trades {
		b.Queue(insertTradeSQL,
			t.BatchID, t.BlockNumber, blockTimeValue(t.BlockTime), t.BuyPrice, t.BuyToken,
			t.SellPrice, t.SellToken, t.SellTokenAddress, t.TokenPair, t.UnitsSold,
			t.BlockTimestamp, t.Price, t.TradePrice, t.PriceImprovement,
		)
	}

	br := tx.SendBatch(ctx, b)
	for _, t := range trades {
		if _, err := br.Exec(); err != nil {
			br.Close()
			if isInvalidValueError(err) {
				return fmt.Errorf("%w: insert trade %d: %v", storage.ErrInvalidInput, t.BlockNumber, err)
			}
			return fmt.Errorf("insert trade %d: %w", t.BlockNumber, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}
	return nil
}

// GetBatchImprovement returns the aggregate of one batch. Returns ErrNotFound if not exists.
func (s *ResultStore) GetBatchImprovement(ctx context.Context, batchID int64) (_ *domain.BatchImprovement, err error) {
	defer recordQuery("get_batch_improvement", time.Now(), &err)

	query := `
		SELECT batch_id, average_improvement
		FROM batch_improvements
		WHERE batch_id = $1
	`

	var imp domain.BatchImprovement
	err = s.pool.QueryRow(ctx, query, batchID).Scan(&imp.BatchID, &imp.AverageImprovement)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get batch improvement: %w", err)
	}
	return &imp, nil
}

// ListBatchImprovements returns every stored aggregate ordered by batch_id ASC.
func (s *ResultStore) ListBatchImprovements(ctx context.Context) (_ []*domain.BatchImprovement, err error) {
	defer recordQuery("list_batch_improvements", time.Now(), &err)

	query := `
		SELECT batch_id, average_improvement
		FROM batch_improvements
		ORDER BY batch_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list batch improvements: %w", err)
	}
	defer rows.Close()

	var result []*domain.BatchImprovement
	for rows.Next() {
		var imp domain.BatchImprovement
		if err := rows.Scan(&imp.BatchID, &imp.AverageImprovement); err != nil {
			return nil, fmt.Errorf("scan batch improvement row: %w", err)
		}
		result = append(result, &imp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batch improvement rows: %w", err)
	}
	return result, nil
}

// GetTradesByBatch returns the trades of one batch ordered by block_number ASC.
func (s *ResultStore) GetTradesByBatch(ctx context.Context, batchID int64) (_ []*domain.MatchedRecord, err error) {
	defer recordQuery("get_trades_by_batch", time.Now(), &err)

	query := `SELECT ` + selectTradeColumns + `
		FROM cow_swap_trades
		WHERE batch_id = $1
		ORDER BY block_number ASC
	`

	rows, err := s.pool.Query(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("get trades by batch: %w", err)
	}
	defer rows.Close()

	return scanMatchedRecords(rows)
}

// TruncateTrades removes every stored trade. Batch improvements are kept.
func (s *ResultStore) TruncateTrades(ctx context.Context) (err error) {
	defer recordQuery("truncate_trades", time.Now(), &err)

	if _, err := s.pool.Exec(ctx, `TRUNCATE TABLE cow_swap_trades`); err != nil {
		return fmt.Errorf("truncate cow_swap_trades: %w", err)
	}
	return nil
}

func scanMatchedRecords(rows pgx.Rows) ([]*domain.MatchedRecord, error) {
	var result []*domain.MatchedRecord
	for rows.Next() {
		var (
			t         domain.TradeRecord
			m         = domain.MatchedRecord{TradeRecord: &t}
			blockTime *time.Time
			buyToken  *string
			sellToken *string
			tokenPair *string
		)
		err := rows.Scan(
			&t.BatchID, &t.BlockNumber, &blockTime, &t.BuyPrice, &buyToken,
			&t.SellPrice, &sellToken, &t.SellTokenAddress, &tokenPair, &t.UnitsSold,
			&t.BlockTimestamp, &m.Price, &m.TradePrice, &m.PriceImprovement,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		if blockTime != nil {
			t.BlockTime = blockTime.UTC().Format(storedBlockTimeLayout)
		}
		t.BuyToken = deref(buyToken)
		t.SellToken = deref(sellToken)
		t.TokenPair = deref(tokenPair)
		result = append(result, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}
	return result, nil
}

// storedBlockTimeLayout renders TIMESTAMPTZ values back in the query's format.
const storedBlockTimeLayout = "2006-01-02 15:04:05.000000 UTC"

// blockTimeValue converts the raw block_time for a TIMESTAMPTZ column.
// Unparseable values are stored as NULL; the raw timestamp survives in block_timestamp.
func blockTimeValue(raw string) *time.Time {
	t, err := blocktime.Parse(raw)
	if err != nil {
		return nil
	}
	return &t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// recordQuery observes one store operation. A missing row is not an error.
func recordQuery(operation string, start time.Time, errp *error) {
	err := *errp
	if errors.Is(err, storage.ErrNotFound) {
		err = nil
	}
	observability.RecordDBQuery("postgres", operation, time.Since(start).Seconds(), err)
}
