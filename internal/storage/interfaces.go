package storage

import (
	"context"

	"cowswap-improvement/internal/domain"
)

// ResultStore persists the outcome of one pipeline run.
type ResultStore interface {
	// EnsureSchema creates the destination tables if they do not exist.
	EnsureSchema(ctx context.Context) error

	// SaveBatch writes the batch trades insert-or-ignore on (batch_id, block_number)
	// and upserts the batch improvement on batch_id.
	// Returns ErrInvalidInput if the batch is malformed.
	SaveBatch(ctx context.Context, batch *domain.Batch) error
}

// ResultReader reads persisted batches back.
type ResultReader interface {
	// GetBatchImprovement returns the aggregate of one batch. Returns ErrNotFound if not exists.
	GetBatchImprovement(ctx context.Context, batchID int64) (*domain.BatchImprovement, error)

	// ListBatchImprovements returns every stored aggregate ordered by batch_id ASC.
	ListBatchImprovements(ctx context.Context) ([]*domain.BatchImprovement, error)

	// GetTradesByBatch returns the trades of one batch ordered by block_number ASC.
	GetTradesByBatch(ctx context.Context, batchID int64) ([]*domain.MatchedRecord, error)
}

// ValidateBatch checks the invariants every ResultStore relies on.
func ValidateBatch(batch *domain.Batch) error {
	if batch == nil {
		return wrapInvalid("nil batch")
	}
	if batch.Improvement.BatchID <= 0 {
		return wrapInvalid("batch_id must be positive")
	}
	if !batch.Improvement.AverageImprovement.Valid {
		return wrapInvalid("average_improvement is undefined")
	}
	for i, t := range batch.Trades {
		if t == nil || t.TradeRecord == nil {
			return wrapInvalidf("nil trade at index %d", i)
		}
		if t.BatchID != batch.Improvement.BatchID {
			return wrapInvalidf("trade %d has batch_id %d, want %d", t.BlockNumber, t.BatchID, batch.Improvement.BatchID)
		}
	}
	return nil
}
