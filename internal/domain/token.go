package domain

import "strings"

// Token symbols the pipeline understands.
const (
	TokenWETH = "WETH" // pivot asset, quoted directly in the reference currency
	TokenUSDC = "USDC" // quote asset
)

// IsToken reports whether symbol equals want, ignoring case.
func IsToken(symbol, want string) bool {
	return strings.EqualFold(strings.TrimSpace(symbol), want)
}

// IsSupportedToken reports whether symbol is WETH or USDC.
func IsSupportedToken(symbol string) bool {
	return IsToken(symbol, TokenWETH) || IsToken(symbol, TokenUSDC)
}

// IsSupportedPair reports whether both sides of a trade are supported tokens.
func IsSupportedPair(buyToken, sellToken string) bool {
	return IsSupportedToken(buyToken) && IsSupportedToken(sellToken)
}
