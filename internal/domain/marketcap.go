package domain

// MarketCapUpdate represents a market-cap change pushed by the feed for one token.
// Corresponds to market_cap_updates table in ClickHouse.
type MarketCapUpdate struct {
	TokenAddress  string  `json:"tokenAddress"`
	NewMarketCap  float64 `json:"newMarketCap"`
	MarketCapGain float64 `json:"marketCapGain"` // percent change since previous update
	CurrentPrice  float64 `json:"currentPrice"`
	Timestamp     int64   `json:"timestamp"` // Unix timestamp in milliseconds
	WorkerID      string  `json:"workerId"`
}

// Bracket is a coarse market-cap classification used for display grouping.
type Bracket string

// Market-cap brackets.
const (
	BracketLow  Bracket = "low"
	BracketMid  Bracket = "mid"
	BracketHigh Bracket = "high"
)

// Bracket thresholds in USD.
const (
	BracketMidThreshold  = 100_000.0
	BracketHighThreshold = 1_000_000.0
)

// BracketFor classifies a market cap in USD.
func BracketFor(marketCap float64) Bracket {
	switch {
	case marketCap >= BracketHighThreshold:
		return BracketHigh
	case marketCap >= BracketMidThreshold:
		return BracketMid
	default:
		return BracketLow
	}
}
