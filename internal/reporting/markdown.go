package reporting

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cowswap-improvement/internal/domain"
)

const markdownUndefined = "n/a"

// RenderMarkdown renders batch improvements as a Markdown table.
func RenderMarkdown(rows []*domain.BatchImprovement) string {
	var sb strings.Builder

	if len(rows) == 0 {
		sb.WriteString("No batch improvements available.\n")
		return sb.String()
	}

	sb.WriteString("| Batch | Average Improvement |\n")
	sb.WriteString("|-------|---------------------|\n")
	for _, r := range rows {
		if r == nil {
			continue
		}
		sb.WriteString(fmt.Sprintf("| %d | %s |\n", r.BatchID, markdownDecimal(r.AverageImprovement)))
	}

	return sb.String()
}

// RenderTradesMarkdown renders enriched trades as a Markdown table.
func RenderTradesMarkdown(trades []*domain.MatchedRecord) string {
	var sb strings.Builder

	if len(trades) == 0 {
		sb.WriteString("No trades available.\n")
		return sb.String()
	}

	sb.WriteString("| Block | Time | Buy | Sell | Trade Price | Reference | Improvement |\n")
	sb.WriteString("|-------|------|-----|------|-------------|-----------|-------------|\n")
	for _, t := range trades {
		if t == nil || t.TradeRecord == nil {
			continue
		}
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s | %s | %s |\n",
			t.BlockNumber, t.BlockTime, t.BuyToken, t.SellToken,
			markdownDecimal(t.TradePrice), markdownDecimal(t.Price), markdownDecimal(t.PriceImprovement)))
	}

	return sb.String()
}

// RenderReport renders a full report as Markdown string.
func RenderReport(r *Report) string {
	var sb strings.Builder

	sb.WriteString("# Price Improvement Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Batches
	sb.WriteString("## Batches\n\n")
	if len(r.Batches) > 0 {
		sb.WriteString("| Batch | Trades | Average Improvement |\n")
		sb.WriteString("|-------|--------|---------------------|\n")
		for _, b := range r.Batches {
			sb.WriteString(fmt.Sprintf("| %d | %d | %s |\n",
				b.BatchID, b.TradeCount, markdownDecimal(b.AverageImprovement)))
		}
	} else {
		sb.WriteString("No batch improvements available.\n")
	}
	sb.WriteString("\n")

	if r.BatchID != 0 {
		sb.WriteString(fmt.Sprintf("## Trades of batch %d\n\n", r.BatchID))
		sb.WriteString(RenderTradesMarkdown(r.Trades))
		sb.WriteString("\n")
	}

	return sb.String()
}

func markdownDecimal(d decimal.NullDecimal) string {
	if !d.Valid {
		return markdownUndefined
	}
	return d.Decimal.StringFixed(domain.PriceDecimals)
}
