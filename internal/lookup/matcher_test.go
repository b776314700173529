package lookup

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cowswap-improvement/internal/domain"
)

func trade(blockNumber int64, ts *int64) *domain.TradeRecord {
	return &domain.TradeRecord{BlockNumber: blockNumber, BlockTimestamp: ts}
}

func ts(v int64) *int64 { return &v }

func prices(m ...any) []*domain.PricePoint {
	out := make([]*domain.PricePoint, 0, len(m)/2)
	for i := 0; i+1 < len(m); i += 2 {
		out = append(out, point(int64(m[i].(int)), m[i+1].(string)))
	}
	return out
}

func assertPrice(t *testing.T, want string, got decimal.NullDecimal) {
	t.Helper()
	require.True(t, got.Valid, "expected price %s, got undefined", want)
	assert.True(t, got.Decimal.Equal(decimal.RequireFromString(want)), "expected %s, got %s", want, got.Decimal)
}

func TestMatchTrades_BackwardAsOf(t *testing.T) {
	trades := []*domain.TradeRecord{
		trade(1, ts(1672444800)),
		trade(2, ts(1672444900)),
		trade(3, ts(1672445000)),
	}
	pts := []*domain.PricePoint{
		point(1672444750, "100"),
		point(1672444850, "200"),
	}

	got := MatchTrades(trades, pts)

	require.Len(t, got, 3)
	assertPrice(t, "100", got[0].Price)
	assertPrice(t, "200", got[1].Price)
	assertPrice(t, "200", got[2].Price)
}

func TestMatchTrades_ExactTimestampIsInclusive(t *testing.T) {
	got := MatchTrades(
		[]*domain.TradeRecord{trade(1, ts(200))},
		prices(100, "1", 200, "2", 300, "3"),
	)

	require.Len(t, got, 1)
	assertPrice(t, "2", got[0].Price)
}

func TestMatchTrades_TradeBeforeAllPrices(t *testing.T) {
	got := MatchTrades(
		[]*domain.TradeRecord{trade(1, ts(50)), trade(2, ts(150))},
		prices(100, "1"),
	)

	require.Len(t, got, 2)
	assert.False(t, got[0].Price.Valid)
	assertPrice(t, "1", got[1].Price)
}

func TestMatchTrades_EmptyTrades(t *testing.T) {
	got := MatchTrades(nil, prices(100, "1"))

	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestMatchTrades_EmptyPrices(t *testing.T) {
	got := MatchTrades([]*domain.TradeRecord{trade(1, ts(100)), trade(2, ts(200))}, nil)

	require.Len(t, got, 2)
	for _, r := range got {
		assert.False(t, r.Price.Valid)
	}
}

func TestMatchTrades_UnsortedInputs(t *testing.T) {
	trades := []*domain.TradeRecord{
		trade(3, ts(300)),
		trade(1, ts(100)),
		trade(2, ts(200)),
	}
	pts := prices(250, "2.5", 50, "0.5", 150, "1.5")

	got := MatchTrades(trades, pts)

	require.Len(t, got, 3)
	assert.Equal(t, int64(1), got[0].BlockNumber)
	assert.Equal(t, int64(2), got[1].BlockNumber)
	assert.Equal(t, int64(3), got[2].BlockNumber)
	assertPrice(t, "0.5", got[0].Price)
	assertPrice(t, "1.5", got[1].Price)
	assertPrice(t, "2.5", got[2].Price)

	// inputs untouched
	assert.Equal(t, int64(3), trades[0].BlockNumber)
	assert.Equal(t, int64(250), pts[0].BlockTimestamp)
}

func TestMatchTrades_TiesKeepInputOrder(t *testing.T) {
	trades := []*domain.TradeRecord{
		trade(7, ts(100)),
		trade(5, ts(100)),
		trade(6, ts(100)),
	}

	got := MatchTrades(trades, prices(100, "1"))

	require.Len(t, got, 3)
	assert.Equal(t, []int64{7, 5, 6}, []int64{got[0].BlockNumber, got[1].BlockNumber, got[2].BlockNumber})
	for _, r := range got {
		assertPrice(t, "1", r.Price)
	}
}

func TestMatchTrades_MissingTimestampSortsLast(t *testing.T) {
	trades := []*domain.TradeRecord{
		trade(1, nil),
		trade(2, ts(200)),
		trade(3, nil),
		trade(4, ts(100)),
	}

	got := MatchTrades(trades, prices(50, "1"))

	require.Len(t, got, 4)
	assert.Equal(t, []int64{4, 2, 1, 3}, []int64{
		got[0].BlockNumber, got[1].BlockNumber, got[2].BlockNumber, got[3].BlockNumber,
	})
	assertPrice(t, "1", got[0].Price)
	assertPrice(t, "1", got[1].Price)
	assert.False(t, got[2].Price.Valid)
	assert.False(t, got[3].Price.Valid)
}

func TestMatchTrades_AgreesWithPriceAt(t *testing.T) {
	pts := prices(10, "1", 20, "2", 20, "2.2", 40, "4")
	var trades []*domain.TradeRecord
	for i := int64(0); i <= 50; i += 5 {
		trades = append(trades, trade(i, ts(i)))
	}

	got := MatchTrades(trades, pts)
	sorted := SortPrices(pts)

	require.Len(t, got, len(trades))
	for _, r := range got {
		want, ok := PriceAt(*r.BlockTimestamp, sorted)
		require.Equal(t, ok, r.Price.Valid, "block %d", r.BlockNumber)
		if ok {
			assert.True(t, want.Equal(r.Price.Decimal), "block %d: want %s got %s", r.BlockNumber, want, r.Price.Decimal)
		}
	}
}

func TestMatchTrades_NilTradesKeepOutputLength(t *testing.T) {
	trades := []*domain.TradeRecord{nil, trade(1, ts(100)), nil}

	got := MatchTrades(trades, prices(50, "1"))

	require.Len(t, got, len(trades))
	assert.Equal(t, int64(1), got[0].BlockNumber)
	assertPrice(t, "1", got[0].Price)
	for _, r := range got[1:] {
		assert.Nil(t, r.TradeRecord)
		assert.False(t, r.Price.Valid)
	}
}
