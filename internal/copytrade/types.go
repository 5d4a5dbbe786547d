// Package copytrade evaluates standing copy-trade rules against observed
// wallet trades. It decides; it does not execute.
package copytrade

// Reason explains a Decision.
type Reason string

const (
	ReasonCopy           Reason = "copy"
	ReasonDisabled       Reason = "disabled"
	ReasonWalletMismatch Reason = "wallet_mismatch"
	ReasonBlacklisted    Reason = "blacklisted"
	ReasonSellNotCopied  Reason = "sell_not_copied"
	ReasonBelowMin       Reason = "below_min"
)

// MaxSlippageBps is 100%.
const MaxSlippageBps = 10_000

// Rule mirrors the trades of one target wallet under size and token constraints.
type Rule struct {
	ID           string `json:"id" yaml:"id"`
	TargetWallet string `json:"targetWallet" yaml:"target_wallet"`
	Enabled      bool   `json:"enabled" yaml:"enabled"`

	// BuyAmountSOL is the fixed SOL amount spent per copied buy.
	BuyAmountSOL float64 `json:"buyAmountSol" yaml:"buy_amount_sol"`
	// MinTargetSOL skips target trades smaller than this (0 = no minimum).
	MinTargetSOL float64 `json:"minTargetSol" yaml:"min_target_sol"`
	// MaxBuySOL caps BuyAmountSOL (0 = no cap).
	MaxBuySOL float64 `json:"maxBuySol" yaml:"max_buy_sol"`
	// CopySells mirrors the target's sells as full exits.
	CopySells bool `json:"copySells" yaml:"copy_sells"`

	BlacklistedTokens []string `json:"blacklistedTokens" yaml:"blacklisted_tokens"`

	SlippageBps    int     `json:"slippageBps" yaml:"slippage_bps"`
	PriorityFeeSOL float64 `json:"priorityFeeSol" yaml:"priority_fee_sol"`
}

// Decision is the outcome of evaluating one rule against one trade.
type Decision struct {
	RuleID         string  `json:"ruleId"`
	Copy           bool    `json:"copy"`
	Reason         Reason  `json:"reason"`
	Side           string  `json:"side,omitempty"`
	TokenAddress   string  `json:"tokenAddress,omitempty"`
	AmountSOL      float64 `json:"amountSol,omitempty"` // 0 for sells (full exit)
	SlippageBps    int     `json:"slippageBps,omitempty"`
	PriorityFeeSOL float64 `json:"priorityFeeSol,omitempty"`
	TradeID        string  `json:"tradeId,omitempty"`
}
