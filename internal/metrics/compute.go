package metrics

import (
	"github.com/shopspring/decimal"

	"cowswap-improvement/internal/domain"
	"cowswap-improvement/internal/logger"
)

// reciprocalPrecision is the number of fractional digits kept for 1/buy_price.
const reciprocalPrecision = 16

var one = decimal.NewFromInt(1)

// TradePrice normalizes a trade's execution price to WETH denominated in USDC.
//
// Branches are checked in order:
//
//	buy WETH  -> buy_price
//	sell WETH -> sell_price
//	buy USDC  -> 1 / buy_price
//	sell USDC -> sell_price
//
// Any other combination is logged and yields an undefined price. A zero or
// missing buy_price on the reciprocal branch also yields undefined.
func TradePrice(r *domain.TradeRecord) decimal.NullDecimal {
	if r == nil {
		return decimal.NullDecimal{}
	}

	switch {
	case domain.IsToken(r.BuyToken, domain.TokenWETH):
		return r.BuyPrice
	case domain.IsToken(r.SellToken, domain.TokenWETH):
		return r.SellPrice
	case domain.IsToken(r.BuyToken, domain.TokenUSDC):
		if !r.BuyPrice.Valid || r.BuyPrice.Decimal.IsZero() {
			logger.GetLogger().WithComponent("metrics").WithFields(logger.Fields{
				"block_number": r.BlockNumber,
				"buy_token":    r.BuyToken,
				"sell_token":   r.SellToken,
			}).Warn("buy_price is zero or missing, trade price undefined")
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(one.DivRound(r.BuyPrice.Decimal, reciprocalPrecision))
	case domain.IsToken(r.SellToken, domain.TokenUSDC):
		return r.SellPrice
	default:
		logger.GetLogger().WithComponent("metrics").WithFields(logger.Fields{
			"block_number": r.BlockNumber,
			"buy_token":    r.BuyToken,
			"sell_token":   r.SellToken,
		}).Error("unexpected token combination")
		return decimal.NullDecimal{}
	}
}

// PriceImprovement returns tradePrice - reference, negated when the trade
// sold WETH so that a positive value always favors the trader.
// Undefined when either input is undefined.
func PriceImprovement(tradePrice, reference decimal.NullDecimal, sellToken string) decimal.NullDecimal {
	if !tradePrice.Valid || !reference.Valid {
		return decimal.NullDecimal{}
	}
	diff := tradePrice.Decimal.Sub(reference.Decimal)
	if domain.IsToken(sellToken, domain.TokenWETH) {
		diff = diff.Neg()
	}
	return decimal.NewNullDecimal(diff)
}

// ComputeImprovements sets TradePrice and PriceImprovement on every record.
func ComputeImprovements(matched []*domain.MatchedRecord) {
	for _, m := range matched {
		if m == nil || m.TradeRecord == nil {
			continue
		}
		m.TradePrice = TradePrice(m.TradeRecord)
		m.PriceImprovement = PriceImprovement(m.TradePrice, m.Price, m.SellToken)
	}
}

// DropUndefined returns the records whose PriceImprovement is defined,
// preserving order.
func DropUndefined(matched []*domain.MatchedRecord) []*domain.MatchedRecord {
	out := make([]*domain.MatchedRecord, 0, len(matched))
	for _, m := range matched {
		if m != nil && m.PriceImprovement.Valid {
			out = append(out, m)
		}
	}
	return out
}
