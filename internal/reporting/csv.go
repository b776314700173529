package reporting

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"cowswap-improvement/internal/domain"
)

const csvUndefined = "NaN"

// RenderCSV renders batch improvements as CSV string.
func RenderCSV(rows []*domain.BatchImprovement) string {
	var sb strings.Builder

	sb.WriteString("batch_id,average_improvement\n")
	for _, r := range rows {
		if r == nil {
			continue
		}
		sb.WriteString(fmt.Sprintf("%d,%s\n", r.BatchID, csvDecimal(r.AverageImprovement)))
	}

	return sb.String()
}

// RenderTradesCSV renders enriched trades as CSV string.
func RenderTradesCSV(trades []*domain.MatchedRecord) string {
	var sb strings.Builder

	sb.WriteString("batch_id,block_number,block_time,buy_token,sell_token,buy_price,sell_price,")
	sb.WriteString("units_sold,price,trade_price,price_improvement\n")

	for _, t := range trades {
		if t == nil || t.TradeRecord == nil {
			continue
		}
		sb.WriteString(fmt.Sprintf("%d,%d,%s,%s,%s,%s,%s,%s,%s,%s,%s\n",
			t.BatchID,
			t.BlockNumber,
			t.BlockTime,
			t.BuyToken,
			t.SellToken,
			csvDecimal(t.BuyPrice),
			csvDecimal(t.SellPrice),
			t.UnitsSold.String(),
			csvDecimal(t.Price),
			csvDecimal(t.TradePrice),
			csvDecimal(t.PriceImprovement),
		))
	}

	return sb.String()
}

func csvDecimal(d decimal.NullDecimal) string {
	if !d.Valid {
		return csvUndefined
	}
	return d.Decimal.String()
}
