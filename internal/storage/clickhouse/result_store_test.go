package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cowswap-improvement/internal/domain"
	"cowswap-improvement/internal/storage"
)

func dec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func createTestTrade(batchID, blockNumber int64, improvement string) *domain.MatchedRecord {
	return &domain.MatchedRecord{
		TradeRecord: &domain.TradeRecord{
			BatchID:        batchID,
			BlockNumber:    blockNumber,
			BlockTime:      "2023-08-21 12:34:56.789000 UTC",
			BlockTimestamp: ptr(int64(1692621296)),
			BuyToken:       "USDC",
			SellToken:      "WETH",
			BuyPrice:       dec("0.0005"),
			UnitsSold:      decimal.RequireFromString("1.25"),
			TokenPair:      "USDC-WETH",
		},
		Price:            dec("1999"),
		TradePrice:       dec("2000"),
		PriceImprovement: dec(improvement),
	}
}

func TestResultStore_SaveAndRead(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewResultStore(conn)
	ctx := context.Background()

	batch := &domain.Batch{
		Improvement: domain.BatchImprovement{BatchID: 20230821, AverageImprovement: dec("-1")},
		Trades: []*domain.MatchedRecord{
			createTestTrade(20230821, 2, "-1"),
			createTestTrade(20230821, 1, "-1"),
		},
	}
	require.NoError(t, store.SaveBatch(ctx, batch))

	trades, err := store.GetTradesByBatch(ctx, 20230821)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, int64(1), trades[0].BlockNumber)
	assert.Equal(t, "USDC", trades[0].BuyToken)
	assert.False(t, trades[0].SellPrice.Valid)
	assert.True(t, trades[0].BuyPrice.Decimal.Equal(decimal.RequireFromString("0.0005")))
	assert.True(t, trades[0].PriceImprovement.Decimal.Equal(decimal.RequireFromString("-1")))
	assert.Equal(t, "2023-08-21 12:34:56.789000 UTC", trades[0].BlockTime)

	imp, err := store.GetBatchImprovement(ctx, 20230821)
	require.NoError(t, err)
	assert.True(t, imp.AverageImprovement.Decimal.Equal(decimal.RequireFromString("-1")))
}

func TestResultStore_SkipsExistingTradesAndReplacesImprovement(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewResultStore(conn)
	ctx := context.Background()

	clock := time.Date(2023, 8, 22, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	first := &domain.Batch{
		Improvement: domain.BatchImprovement{BatchID: 20230821, AverageImprovement: dec("1")},
		Trades:      []*domain.MatchedRecord{createTestTrade(20230821, 1, "1")},
	}
	require.NoError(t, store.SaveBatch(ctx, first))

	clock = clock.Add(time.Hour)
	second := &domain.Batch{
		Improvement: domain.BatchImprovement{BatchID: 20230821, AverageImprovement: dec("5")},
		Trades: []*domain.MatchedRecord{
			createTestTrade(20230821, 1, "99"),
			createTestTrade(20230821, 2, "9"),
		},
	}
	require.NoError(t, store.SaveBatch(ctx, second))

	trades, err := store.GetTradesByBatch(ctx, 20230821)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.True(t, trades[0].PriceImprovement.Decimal.Equal(decimal.RequireFromString("1")))

	list, err := store.ListBatchImprovements(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].AverageImprovement.Decimal.Equal(decimal.RequireFromString("5")))
}

func TestResultStore_NotFound(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := NewResultStore(conn).GetBatchImprovement(context.Background(), 19990101)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
