package lookup

import (
	"sort"

	"github.com/shopspring/decimal"

	"cowswap-improvement/internal/domain"
)

// PriceAt returns the price of the latest point at or before target.
// prices must be sorted ascending by BlockTimestamp.
// Returns false if prices is empty or every point is after target.
func PriceAt(target int64, prices []*domain.PricePoint) (decimal.Decimal, bool) {
	// first index strictly after target
	i := sort.Search(len(prices), func(i int) bool {
		return prices[i].BlockTimestamp > target
	})
	if i == 0 {
		return decimal.Decimal{}, false
	}
	return prices[i-1].Price, true
}
