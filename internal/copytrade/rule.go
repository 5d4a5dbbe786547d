package copytrade

import (
	"errors"
	"fmt"

	"token-find/internal/domain"
	"token-find/internal/solana"
)

// Validation errors.
var (
	ErrInvalidWallet   = errors.New("target wallet must be a valid on-curve address")
	ErrNegativeAmount  = errors.New("amounts must be non-negative")
	ErrMaxBelowBuy     = errors.New("max buy must be at least buy amount")
	ErrInvalidSlippage = errors.New("slippage out of range")
	ErrInvalidToken    = errors.New("blacklisted token is not a valid address")
)

// Validate checks the rule for internal consistency.
// The target must be a wallet, so program-derived (off-curve) addresses are rejected.
func (r *Rule) Validate() error {
	if !solana.IsOnCurve(r.TargetWallet) {
		return fmt.Errorf("rule %s: %w", r.ID, ErrInvalidWallet)
	}
	if r.BuyAmountSOL < 0 || r.MinTargetSOL < 0 || r.MaxBuySOL < 0 || r.PriorityFeeSOL < 0 {
		return fmt.Errorf("rule %s: %w", r.ID, ErrNegativeAmount)
	}
	if r.MaxBuySOL > 0 && r.MaxBuySOL < r.BuyAmountSOL {
		return fmt.Errorf("rule %s: %w (max %.4f < buy %.4f)", r.ID, ErrMaxBelowBuy, r.MaxBuySOL, r.BuyAmountSOL)
	}
	if r.SlippageBps < 0 || r.SlippageBps > MaxSlippageBps {
		return fmt.Errorf("rule %s: %w (%d bps)", r.ID, ErrInvalidSlippage, r.SlippageBps)
	}
	for _, token := range r.BlacklistedTokens {
		if err := solana.ValidateAddress(token); err != nil {
			return fmt.Errorf("rule %s: %w: %s", r.ID, ErrInvalidToken, token)
		}
	}
	return nil
}

// IsBlacklisted reports whether token is excluded by the rule.
func (r *Rule) IsBlacklisted(token string) bool {
	for _, t := range r.BlacklistedTokens {
		if t == token {
			return true
		}
	}
	return false
}

// buyAmount returns the SOL spent per copied buy, capped at MaxBuySOL.
func (r *Rule) buyAmount() float64 {
	if r.MaxBuySOL > 0 && r.BuyAmountSOL > r.MaxBuySOL {
		return r.MaxBuySOL
	}
	return r.BuyAmountSOL
}

// Evaluate decides whether trade should be copied under rule.
// Checks run in order: enabled, wallet, blacklist, side, minimum size.
func Evaluate(rule *Rule, trade *domain.TradeRecord) Decision {
	d := Decision{
		RuleID:       rule.ID,
		Side:         trade.Side,
		TokenAddress: trade.TokenAddress,
		TradeID:      trade.TradeID,
	}

	switch {
	case !rule.Enabled:
		d.Reason = ReasonDisabled
	case trade.WalletAddress != rule.TargetWallet:
		d.Reason = ReasonWalletMismatch
	case rule.IsBlacklisted(trade.TokenAddress):
		d.Reason = ReasonBlacklisted
	case !trade.IsBuy() && !rule.CopySells:
		d.Reason = ReasonSellNotCopied
	case trade.IsBuy() && rule.MinTargetSOL > 0 && trade.AmountSOL < rule.MinTargetSOL:
		d.Reason = ReasonBelowMin
	default:
		d.Copy = true
		d.Reason = ReasonCopy
		d.SlippageBps = rule.SlippageBps
		d.PriorityFeeSOL = rule.PriorityFeeSOL
		if trade.IsBuy() {
			d.AmountSOL = rule.buyAmount()
		}
	}

	return d
}
