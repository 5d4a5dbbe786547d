package domain

// TradeRecord represents a single wallet trade as broadcast by the copy-trade feed.
// Corresponds to trades table in PostgreSQL.
type TradeRecord struct {
	TradeID       string  `json:"tradeId,omitempty"` // deterministic hash, assigned on ingest
	Signature     string  `json:"signature"`         // Solana transaction signature
	WalletAddress string  `json:"walletAddress"`     // trader wallet
	WalletLabel   string  `json:"walletLabel,omitempty"`
	TokenAddress  string  `json:"tokenAddress"` // token mint
	TokenSymbol   string  `json:"tokenSymbol,omitempty"`
	TokenName     string  `json:"tokenName,omitempty"`
	Side          string  `json:"side"`        // "buy" | "sell"
	AmountSOL     float64 `json:"amountSol"`   // SOL spent or received
	AmountToken   float64 `json:"amountToken"` // tokens bought or sold
	PriceUSD      float64 `json:"priceUsd"`
	MarketCap     float64 `json:"marketCap"`
	Timestamp     int64   `json:"timestamp"` // Unix timestamp in milliseconds
}

// Trade side constants
const (
	TradeSideBuy  = "buy"
	TradeSideSell = "sell"
)

// IsBuy reports whether the trade acquired tokens.
func (t *TradeRecord) IsBuy() bool {
	return t.Side == TradeSideBuy
}
