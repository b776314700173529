// Package source defines the external collaborators the pipeline reads from.
package source

import (
	"context"

	"cowswap-improvement/internal/domain"
)

// TradeSource provides executed trades from an analytics backend.
type TradeSource interface {
	// FetchLatestResult returns the rows of the latest execution of a saved query.
	// Returns (nil, nil) when the result holds no usable rows.
	FetchLatestResult(ctx context.Context, queryID int) ([]*domain.TradeRecord, error)
}

// PriceSource provides reference prices for a token pair.
type PriceSource interface {
	// FetchPriceRange returns price points within [from, to] (epoch seconds),
	// sorted ascending. Returns (nil, nil) when the provider has no data.
	FetchPriceRange(ctx context.Context, from, to int64, sellToken, buyToken string) ([]*domain.PricePoint, error)
}
