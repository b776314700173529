package memory

import (
	"context"
	"sort"
	"sync"

	"cowswap-improvement/internal/domain"
	"cowswap-improvement/internal/storage"
)

type tradeKey struct {
	batchID     int64
	blockNumber int64
}

// ResultStore is an in-memory implementation of storage.ResultStore and
// storage.ResultReader. Trades are insert-or-ignore, improvements are upserted.
type ResultStore struct {
	mu           sync.RWMutex
	trades       map[tradeKey]*domain.MatchedRecord
	improvements map[int64]*domain.BatchImprovement
	schemaReady  bool

	// Errors returned instead of doing the work; used to simulate outages.
	SchemaErr error
	SaveErr   error
}

// NewResultStore creates a new in-memory result store.
func NewResultStore() *ResultStore {
	return &ResultStore{
		trades:       make(map[tradeKey]*domain.MatchedRecord),
		improvements: make(map[int64]*domain.BatchImprovement),
	}
}

// EnsureSchema marks the store ready.
func (s *ResultStore) EnsureSchema(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SchemaErr != nil {
		return s.SchemaErr
	}
	s.schemaReady = true
	return nil
}

// SchemaReady reports whether EnsureSchema succeeded at least once.
func (s *ResultStore) SchemaReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schemaReady
}

// SaveBatch stores the batch. The batch is validated before anything is
// written, so a failed save leaves the store unchanged.
func (s *ResultStore) SaveBatch(_ context.Context, batch *domain.Batch) error {
	if err := storage.ValidateBatch(batch); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SaveErr != nil {
		return s.SaveErr
	}

	for _, t := range batch.Trades {
		key := tradeKey{batchID: t.BatchID, blockNumber: t.BlockNumber}
		if _, exists := s.trades[key]; exists {
			continue
		}
		s.trades[key] = copyMatched(t)
	}

	imp := batch.Improvement
	s.improvements[imp.BatchID] = &imp
	return nil
}

// GetBatchImprovement returns the aggregate of one batch. Returns ErrNotFound if not exists.
func (s *ResultStore) GetBatchImprovement(_ context.Context, batchID int64) (*domain.BatchImprovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	imp, exists := s.improvements[batchID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *imp
	return &copy, nil
}

// ListBatchImprovements returns every aggregate ordered by batch_id ASC.
func (s *ResultStore) ListBatchImprovements(_ context.Context) ([]*domain.BatchImprovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.BatchImprovement, 0, len(s.improvements))
	for _, imp := range s.improvements {
		copy := *imp
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].BatchID < result[j].BatchID
	})

	return result, nil
}

// GetTradesByBatch returns the trades of one batch ordered by block_number ASC.
func (s *ResultStore) GetTradesByBatch(_ context.Context, batchID int64) ([]*domain.MatchedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.MatchedRecord
	for key, t := range s.trades {
		if key.batchID == batchID {
			result = append(result, copyMatched(t))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].BlockNumber < result[j].BlockNumber
	})

	return result, nil
}

func copyMatched(m *domain.MatchedRecord) *domain.MatchedRecord {
	out := *m
	if m.TradeRecord != nil {
		tr := *m.TradeRecord
		out.TradeRecord = &tr
	}
	return &out
}

var (
	_ storage.ResultStore  = (*ResultStore)(nil)
	_ storage.ResultReader = (*ResultStore)(nil)
)
