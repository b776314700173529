package metrics

import (
	"sort"

	"github.com/shopspring/decimal"

	"cowswap-improvement/internal/domain"
)

// Summary describes the distribution of price improvements in a batch.
type Summary struct {
	Count   int // records considered
	Defined int // records with a defined improvement

	Mean   decimal.NullDecimal
	Median decimal.NullDecimal
	Min    decimal.NullDecimal
	Max    decimal.NullDecimal
}

// AverageImprovement returns the arithmetic mean of the defined improvements.
// Undefined values are skipped; an empty or all-undefined input yields an
// undefined mean.
func AverageImprovement(matched []*domain.MatchedRecord) decimal.NullDecimal {
	return mean(definedImprovements(matched))
}

// Summarize computes count, mean, median and range of the improvements.
func Summarize(matched []*domain.MatchedRecord) Summary {
	values := definedImprovements(matched)
	s := Summary{
		Count:   len(matched),
		Defined: len(values),
		Mean:    mean(values),
	}
	if len(values) == 0 {
		return s
	}

	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].LessThan(sorted[j])
	})

	s.Min = decimal.NewNullDecimal(sorted[0])
	s.Max = decimal.NewNullDecimal(sorted[len(sorted)-1])
	s.Median = decimal.NewNullDecimal(percentile(sorted, decimal.RequireFromString("0.5")))
	return s
}

func definedImprovements(matched []*domain.MatchedRecord) []decimal.Decimal {
	values := make([]decimal.Decimal, 0, len(matched))
	for _, m := range matched {
		if m != nil && m.PriceImprovement.Valid {
			values = append(values, m.PriceImprovement.Decimal)
		}
	}
	return values
}

func mean(values []decimal.Decimal) decimal.NullDecimal {
	if len(values) == 0 {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.Sum(values[0], values[1:]...).Div(decimal.NewFromInt(int64(len(values)))))
}

// percentile uses linear interpolation.
// sorted must be pre-sorted ASC.
func percentile(sorted []decimal.Decimal, p decimal.Decimal) decimal.Decimal {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}

	idx := p.Mul(decimal.NewFromInt(int64(n - 1)))
	lower := int(idx.IntPart())
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx.Sub(decimal.NewFromInt(int64(lower)))
	return sorted[lower].Add(frac.Mul(sorted[upper].Sub(sorted[lower])))
}
