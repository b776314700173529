package reporting

import (
	"time"

	"cowswap-improvement/internal/domain"
)

// Report is a snapshot of stored batch results.
type Report struct {
	GeneratedAt time.Time

	// Batches sorted by batch_id ascending.
	Batches []BatchRow

	// BatchID and Trades are set when the report covers a single batch.
	BatchID int64
	Trades  []*domain.MatchedRecord
}

// BatchRow is one batch aggregate with the number of stored trades.
type BatchRow struct {
	*domain.BatchImprovement
	TradeCount int
}

// Improvements returns the batch aggregates in report order.
func (r *Report) Improvements() []*domain.BatchImprovement {
	out := make([]*domain.BatchImprovement, 0, len(r.Batches))
	for _, b := range r.Batches {
		out = append(out, b.BatchImprovement)
	}
	return out
}
