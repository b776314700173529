package lookup

import (
	"sort"

	"github.com/shopspring/decimal"

	"cowswap-improvement/internal/domain"
)

// MatchTrades attaches to every trade the reference price in effect at its
// block timestamp: the price of the point with the greatest timestamp that is
// less than or equal to the trade's timestamp.
//
// Both inputs are copied and stable-sorted ascending by timestamp, then joined
// in a single sweep. Output has one record per input trade, ordered by trade
// timestamp. Trades without a timestamp are placed last and get an undefined
// price, as do trades earlier than every price point. Nil trades yield an
// empty record with no TradeRecord after all others.
func MatchTrades(trades []*domain.TradeRecord, prices []*domain.PricePoint) []*domain.MatchedRecord {
	out := make([]*domain.MatchedRecord, 0, len(trades))
	if len(trades) == 0 {
		return out
	}

	sortedTrades := make([]*domain.TradeRecord, 0, len(trades))
	nilTrades := 0
	for _, t := range trades {
		if t == nil {
			nilTrades++
			continue
		}
		sortedTrades = append(sortedTrades, t)
	}
	sort.SliceStable(sortedTrades, func(i, j int) bool {
		a, b := sortedTrades[i], sortedTrades[j]
		if !a.HasTimestamp() || !b.HasTimestamp() {
			return a.HasTimestamp() && !b.HasTimestamp()
		}
		return *a.BlockTimestamp < *b.BlockTimestamp
	})

	sortedPrices := SortPrices(prices)

	p := 0
	var current decimal.NullDecimal
	for _, t := range sortedTrades {
		rec := &domain.MatchedRecord{TradeRecord: t}
		if t.HasTimestamp() {
			ts := *t.BlockTimestamp
			for p < len(sortedPrices) && sortedPrices[p].BlockTimestamp <= ts {
				current = decimal.NewNullDecimal(sortedPrices[p].Price)
				p++
			}
			rec.Price = current
		}
		out = append(out, rec)
	}
	for i := 0; i < nilTrades; i++ {
		out = append(out, &domain.MatchedRecord{})
	}

	return out
}

// SortPrices returns a copy of prices stable-sorted ascending by timestamp.
// Nil entries are dropped.
func SortPrices(prices []*domain.PricePoint) []*domain.PricePoint {
	sorted := make([]*domain.PricePoint, 0, len(prices))
	for _, pt := range prices {
		if pt != nil {
			sorted = append(sorted, pt)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].BlockTimestamp < sorted[j].BlockTimestamp
	})
	return sorted
}
