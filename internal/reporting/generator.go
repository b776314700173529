package reporting

import (
	"context"
	"fmt"
	"time"

	"cowswap-improvement/internal/storage"
)

// Generator produces reports from stored data.
type Generator struct {
	reader storage.ResultReader
	now    func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(reader storage.ResultReader) *Generator {
	return &Generator{
		reader: reader,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate lists every stored batch with its trade count.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	imps, err := g.reader.ListBatchImprovements(ctx)
	if err != nil {
		return nil, fmt.Errorf("list batch improvements: %w", err)
	}

	report := &Report{
		GeneratedAt: g.now(),
		Batches:     make([]BatchRow, 0, len(imps)),
	}
	for _, imp := range imps {
		trades, err := g.reader.GetTradesByBatch(ctx, imp.BatchID)
		if err != nil {
			return nil, fmt.Errorf("get trades of batch %d: %w", imp.BatchID, err)
		}
		report.Batches = append(report.Batches, BatchRow{BatchImprovement: imp, TradeCount: len(trades)})
	}
	return report, nil
}

// GenerateBatch builds a report for one batch including its trades.
// Returns storage.ErrNotFound if the batch does not exist.
func (g *Generator) GenerateBatch(ctx context.Context, batchID int64) (*Report, error) {
	imp, err := g.reader.GetBatchImprovement(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("get batch %d: %w", batchID, err)
	}
	trades, err := g.reader.GetTradesByBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("get trades of batch %d: %w", batchID, err)
	}

	return &Report{
		GeneratedAt: g.now(),
		Batches:     []BatchRow{{BatchImprovement: imp, TradeCount: len(trades)}},
		BatchID:     batchID,
		Trades:      trades,
	}, nil
}
