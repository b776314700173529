package metrics

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"cowswap-improvement/internal/domain"
)

func improvements(values ...string) []*domain.MatchedRecord {
	out := make([]*domain.MatchedRecord, 0, len(values))
	for _, v := range values {
		r := &domain.MatchedRecord{TradeRecord: &domain.TradeRecord{}}
		if v != "" {
			r.PriceImprovement = nd(v)
		}
		out = append(out, r)
	}
	return out
}

func TestAverageImprovement(t *testing.T) {
	assertDecimal(t, "0", AverageImprovement(improvements("-50", "20", "30")))
	assertDecimal(t, "2.5", AverageImprovement(improvements("1", "4")))
}

func TestAverageImprovement_SkipsUndefined(t *testing.T) {
	assertDecimal(t, "15", AverageImprovement(improvements("10", "", "20")))
}

func TestAverageImprovement_EmptyIsUndefined(t *testing.T) {
	assert.False(t, AverageImprovement(nil).Valid)
	assert.False(t, AverageImprovement(improvements()).Valid)
	assert.False(t, AverageImprovement(improvements("", "")).Valid)
}

func TestSummarize(t *testing.T) {
	s := Summarize(improvements("30", "-50", "", "20", "10"))

	assert.Equal(t, 5, s.Count)
	assert.Equal(t, 4, s.Defined)
	assertDecimal(t, "2.5", s.Mean)
	assertDecimal(t, "-50", s.Min)
	assertDecimal(t, "30", s.Max)
	// sorted: -50, 10, 20, 30 -> idx 1.5 -> 15
	assertDecimal(t, "15", s.Median)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)

	assert.Equal(t, 0, s.Count)
	assert.Equal(t, 0, s.Defined)
	assert.False(t, s.Mean.Valid)
	assert.False(t, s.Min.Valid)
	assert.False(t, s.Max.Valid)
	assert.False(t, s.Median.Valid)
}

func TestPercentile_SingleValue(t *testing.T) {
	got := percentile([]decimal.Decimal{d("7")}, d("0.5"))
	assert.True(t, got.Equal(d("7")))
}
