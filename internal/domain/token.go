package domain

// TokenSummary is the searchable view of a token, built from feed activity
// or returned by the analytics backend.
type TokenSummary struct {
	Address       string  `json:"address"`
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	MarketCap     float64 `json:"marketCap"`
	PriceUSD      float64 `json:"priceUsd"`
	LastTradeTime int64   `json:"lastTradeTime,omitempty"` // ms
	TradeCount    int     `json:"tradeCount,omitempty"`
}

// Bracket returns the market-cap bracket of the token.
func (t TokenSummary) Bracket() Bracket {
	return BracketFor(t.MarketCap)
}
