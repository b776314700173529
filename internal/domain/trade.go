package domain

import "github.com/shopspring/decimal"

// TradeRecord represents one executed CoW Swap trade as delivered by the
// analytics query. Natural key is (batch_id, block_number).
type TradeRecord struct {
	BatchID     int64 // YYYYMMDD, zero until stamped
	BlockNumber int64 // block containing the settlement

	BlockTime      string // raw "YYYY-MM-DD HH:MM:SS.ffffff UTC"
	BlockTimestamp *int64 // epoch seconds parsed from BlockTime (nil if malformed)

	BuyToken  string              // symbol, compared case-insensitively
	SellToken string              // symbol, compared case-insensitively
	BuyPrice  decimal.NullDecimal // nullable
	SellPrice decimal.NullDecimal // nullable
	UnitsSold decimal.Decimal

	SellTokenAddress *string // nullable
	TokenPair        string  // e.g. "USDC-WETH"
}

// HasTimestamp reports whether the block time was parsed successfully.
func (t *TradeRecord) HasTimestamp() bool {
	return t != nil && t.BlockTimestamp != nil
}

// MatchedRecord is a trade joined with the reference price in effect at its
// block timestamp, plus the derived price fields.
// Undefined values are represented with Valid=false.
type MatchedRecord struct {
	*TradeRecord

	Price            decimal.NullDecimal // reference price at or before the trade
	TradePrice       decimal.NullDecimal // pair-normalized execution price
	PriceImprovement decimal.NullDecimal // signed, positive favors the trader
}
