package dune

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"cowswap-improvement/internal/blocktime"
	"cowswap-improvement/internal/domain"
	"cowswap-improvement/internal/logger"
)

// Column names of the saved query.
const (
	colBlockNumber      = "block_number"
	colBlockTime        = "block_time"
	colBuyToken         = "buy_token"
	colSellToken        = "sell_token"
	colBuyPrice         = "buy_price"
	colSellPrice        = "sell_price"
	colUnitsSold        = "units_sold"
	colSellTokenAddress = "sell_token_address"
	colTokenPair        = "token_pair"
)

// decodeRow maps one result row onto a TradeRecord.
// Missing or malformed columns leave the zero value; a malformed block_time
// leaves BlockTimestamp nil.
func decodeRow(row map[string]any) *domain.TradeRecord {
	t := &domain.TradeRecord{
		BlockTime: stringValue(row[colBlockTime]),
		BuyToken:  stringValue(row[colBuyToken]),
		SellToken: stringValue(row[colSellToken]),
		TokenPair: stringValue(row[colTokenPair]),
		BuyPrice:  nullDecimal(row[colBuyPrice]),
		SellPrice: nullDecimal(row[colSellPrice]),
	}

	if n, ok := intValue(row[colBlockNumber]); ok {
		t.BlockNumber = n
	}
	if d := nullDecimal(row[colUnitsSold]); d.Valid {
		t.UnitsSold = d.Decimal
	}
	if addr := stringValue(row[colSellTokenAddress]); addr != "" {
		t.SellTokenAddress = &addr
	}

	if t.BlockTime != "" {
		if ts, ok := blocktime.UnixSeconds(t.BlockTime); ok {
			t.BlockTimestamp = &ts
		}
	} else {
		logger.GetLogger().WithComponent("dune").
			WithField("block_number", t.BlockNumber).
			Warn("row has no block_time")
	}

	return t
}

func stringValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func intValue(v any) (int64, bool) {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, true
		}
		if d, err := decimal.NewFromString(x.String()); err == nil {
			return d.IntPart(), true
		}
	case string:
		if n, err := strconv.ParseInt(x, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func nullDecimal(v any) decimal.NullDecimal {
	var s string
	switch x := v.(type) {
	case json.Number:
		s = x.String()
	case string:
		s = x
	default:
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
