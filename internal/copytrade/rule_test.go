package copytrade

import (
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/mr-tron/base58"

	"token-find/internal/domain"
	"token-find/internal/solana"
)

const bonkMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"

func newWallet(t *testing.T) string {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return base58.Encode(pub)
}

func validRule(t *testing.T) Rule {
	return Rule{
		ID:                "kol-1",
		TargetWallet:      newWallet(t),
		Enabled:           true,
		BuyAmountSOL:      0.5,
		MinTargetSOL:      1,
		MaxBuySOL:         1,
		CopySells:         false,
		BlacklistedTokens: []string{solana.WrappedSOLMint},
		SlippageBps:       300,
		PriorityFeeSOL:    0.0001,
	}
}

func TestRule_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *Rule)
		want   error
	}{
		{"valid", func(r *Rule) {}, nil},
		{"bad wallet", func(r *Rule) { r.TargetWallet = "not-a-wallet" }, ErrInvalidWallet},
		{"negative buy", func(r *Rule) { r.BuyAmountSOL = -1 }, ErrNegativeAmount},
		{"negative fee", func(r *Rule) { r.PriorityFeeSOL = -0.1 }, ErrNegativeAmount},
		{"max below buy", func(r *Rule) { r.MaxBuySOL = 0.1 }, ErrMaxBelowBuy},
		{"no cap", func(r *Rule) { r.MaxBuySOL = 0 }, nil},
		{"slippage too high", func(r *Rule) { r.SlippageBps = 10_001 }, ErrInvalidSlippage},
		{"slippage negative", func(r *Rule) { r.SlippageBps = -1 }, ErrInvalidSlippage},
		{"bad blacklist", func(r *Rule) { r.BlacklistedTokens = []string{"xyz"} }, ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRule(t)
			tt.mutate(&r)
			err := r.Validate()
			if tt.want == nil {
				if err != nil {
					t.Fatalf("expected valid, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	rule := validRule(t)

	buy := func(mutate func(tr *domain.TradeRecord)) *domain.TradeRecord {
		tr := &domain.TradeRecord{
			TradeID:       "t1",
			WalletAddress: rule.TargetWallet,
			TokenAddress:  bonkMint,
			Side:          domain.TradeSideBuy,
			AmountSOL:     2,
		}
		if mutate != nil {
			mutate(tr)
		}
		return tr
	}

	tests := []struct {
		name   string
		rule   func(r Rule) Rule
		trade  *domain.TradeRecord
		copy   bool
		reason Reason
	}{
		{"copy", nil, buy(nil), true, ReasonCopy},
		{"disabled", func(r Rule) Rule { r.Enabled = false; return r }, buy(nil), false, ReasonDisabled},
		{"other wallet", nil, buy(func(tr *domain.TradeRecord) { tr.WalletAddress = "someone-else" }), false, ReasonWalletMismatch},
		{"blacklisted", nil, buy(func(tr *domain.TradeRecord) { tr.TokenAddress = solana.WrappedSOLMint }), false, ReasonBlacklisted},
		{"sell ignored", nil, buy(func(tr *domain.TradeRecord) { tr.Side = domain.TradeSideSell }), false, ReasonSellNotCopied},
		{"sell copied", func(r Rule) Rule { r.CopySells = true; return r },
			buy(func(tr *domain.TradeRecord) { tr.Side = domain.TradeSideSell; tr.AmountSOL = 0.01 }), true, ReasonCopy},
		{"below min", nil, buy(func(tr *domain.TradeRecord) { tr.AmountSOL = 0.5 }), false, ReasonBelowMin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := rule
			if tt.rule != nil {
				r = tt.rule(r)
			}
			d := Evaluate(&r, tt.trade)
			if d.Copy != tt.copy || d.Reason != tt.reason {
				t.Errorf("expected copy=%v reason=%s, got copy=%v reason=%s", tt.copy, tt.reason, d.Copy, d.Reason)
			}
			if d.RuleID != r.ID || d.TradeID != tt.trade.TradeID {
				t.Errorf("decision not linked to rule/trade: %+v", d)
			}
		})
	}
}

func TestEvaluate_Amounts(t *testing.T) {
	rule := validRule(t)
	rule.BuyAmountSOL = 0.5
	rule.MaxBuySOL = 0

	trade := &domain.TradeRecord{WalletAddress: rule.TargetWallet, TokenAddress: bonkMint, Side: domain.TradeSideBuy, AmountSOL: 3}

	d := Evaluate(&rule, trade)
	if d.AmountSOL != 0.5 {
		t.Errorf("expected 0.5 SOL, got %f", d.AmountSOL)
	}
	if d.SlippageBps != 300 || d.PriorityFeeSOL != 0.0001 {
		t.Errorf("execution params not carried: %+v", d)
	}

	rule.CopySells = true
	trade.Side = domain.TradeSideSell
	d = Evaluate(&rule, trade)
	if !d.Copy || d.AmountSOL != 0 {
		t.Errorf("copied sell must be a full exit with zero amount, got %+v", d)
	}
}
