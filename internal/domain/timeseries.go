package domain

import "github.com/shopspring/decimal"

// PricePoint is one reference price observation.
type PricePoint struct {
	BlockTimestamp int64           // Unix timestamp in seconds
	Price          decimal.Decimal // rounded to PriceDecimals fractional digits
}

// PriceDecimals is the number of fractional digits kept for reference prices.
const PriceDecimals = 8
