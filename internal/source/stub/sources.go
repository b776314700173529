package stub

import (
	"context"
	"sync"

	"cowswap-improvement/internal/domain"
	"cowswap-improvement/internal/source"
)

// StubTradeSource returns fixed in-memory trades for testing.
// Implements source.TradeSource interface.
type StubTradeSource struct {
	mu     sync.Mutex
	trades []*domain.TradeRecord
	err    error
	calls  []int
}

// NewStubTradeSource creates a new stub trade source with the given trades.
func NewStubTradeSource(trades []*domain.TradeRecord) *StubTradeSource {
	return &StubTradeSource{trades: trades}
}

// NewFailingTradeSource creates a stub trade source that always returns err.
func NewFailingTradeSource(err error) *StubTradeSource {
	return &StubTradeSource{err: err}
}

// FetchLatestResult returns copies of the configured trades.
// A nil trade list is returned as nil to mimic an empty query result.
func (s *StubTradeSource) FetchLatestResult(_ context.Context, queryID int) ([]*domain.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, queryID)
	if s.err != nil {
		return nil, s.err
	}
	if s.trades == nil {
		return nil, nil
	}

	result := make([]*domain.TradeRecord, 0, len(s.trades))
	for _, t := range s.trades {
		copy := *t
		result = append(result, &copy)
	}
	return result, nil
}

// Calls returns the query ids requested so far.
func (s *StubTradeSource) Calls() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.calls...)
}

// PriceRequest records one FetchPriceRange call.
type PriceRequest struct {
	From, To            int64
	SellToken, BuyToken string
}

// StubPriceSource returns fixed in-memory prices for testing.
// Points are returned regardless of the requested range so tests control
// exactly what the matcher sees.
// Implements source.PriceSource interface.
type StubPriceSource struct {
	mu       sync.Mutex
	points   []*domain.PricePoint
	err      error
	requests []PriceRequest
}

// NewStubPriceSource creates a new stub price source.
func NewStubPriceSource(points []*domain.PricePoint) *StubPriceSource {
	return &StubPriceSource{points: points}
}

// NewFailingPriceSource creates a stub price source that always returns err.
func NewFailingPriceSource(err error) *StubPriceSource {
	return &StubPriceSource{err: err}
}

// FetchPriceRange returns copies of the configured points.
func (s *StubPriceSource) FetchPriceRange(_ context.Context, from, to int64, sellToken, buyToken string) ([]*domain.PricePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, PriceRequest{From: from, To: to, SellToken: sellToken, BuyToken: buyToken})
	if s.err != nil {
		return nil, s.err
	}
	if s.points == nil {
		return nil, nil
	}

	result := make([]*domain.PricePoint, 0, len(s.points))
	for _, p := range s.points {
		copy := *p
		result = append(result, &copy)
	}
	return result, nil
}

// Requests returns the calls made so far.
func (s *StubPriceSource) Requests() []PriceRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PriceRequest(nil), s.requests...)
}

var (
	_ source.TradeSource = (*StubTradeSource)(nil)
	_ source.PriceSource = (*StubPriceSource)(nil)
)
