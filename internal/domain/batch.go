package domain

import "github.com/shopspring/decimal"

// BatchImprovement is the aggregate price improvement of one daily batch.
// Upserted by BatchID.
type BatchImprovement struct {
	BatchID            int64               // YYYYMMDD
	AverageImprovement decimal.NullDecimal // undefined for an empty batch
}

// Batch is the unit of persistence: the aggregate and the enriched trades
// that produced it. All trades carry Improvement.BatchID.
type Batch struct {
	Improvement BatchImprovement
	Trades      []*MatchedRecord
}
