package copytrade

import (
	"fmt"
	"sort"
	"sync"

	"token-find/internal/domain"
	"token-find/internal/observability"
)

// Engine holds the active rule set, indexed by target wallet.
type Engine struct {
	mu       sync.RWMutex
	byWallet map[string][]*Rule
	byID     map[string]*Rule
}

// NewEngine creates an engine with the given rules. Every rule is validated.
func NewEngine(rules ...Rule) (*Engine, error) {
	e := &Engine{
		byWallet: make(map[string][]*Rule),
		byID:     make(map[string]*Rule),
	}
	for _, r := range rules {
		if err := e.AddRule(r); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// AddRule validates and registers a rule, replacing any rule with the same ID.
func (e *Engine) AddRule(r Rule) error {
	if r.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	if err := r.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.removeLocked(r.ID)
	rule := r
	e.byID[r.ID] = &rule
	e.byWallet[r.TargetWallet] = append(e.byWallet[r.TargetWallet], &rule)
	return nil
}

// RemoveRule deletes a rule. Returns false if it did not exist.
func (e *Engine) RemoveRule(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removeLocked(id)
}

func (e *Engine) removeLocked(id string) bool {
	old, ok := e.byID[id]
	if !ok {
		return false
	}
	delete(e.byID, id)

	rules := e.byWallet[old.TargetWallet]
	for i, r := range rules {
		if r.ID == id {
			rules = append(rules[:i], rules[i+1:]...)
			break
		}
	}
	if len(rules) == 0 {
		delete(e.byWallet, old.TargetWallet)
	} else {
		e.byWallet[old.TargetWallet] = rules
	}
	return true
}

// Rules returns copies of all rules sorted by ID.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Rule, 0, len(e.byID))
	for _, r := range e.byID {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Watches reports whether any rule targets wallet.
func (e *Engine) Watches(wallet string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.byWallet[wallet]) > 0
}

// Evaluate runs every rule targeting the trade's wallet. Trades from
// unwatched wallets yield no decisions.
func (e *Engine) Evaluate(trade *domain.TradeRecord) []Decision {
	e.mu.RLock()
	rules := e.byWallet[trade.WalletAddress]
	decisions := make([]Decision, 0, len(rules))
	for _, r := range rules {
		decisions = append(decisions, Evaluate(r, trade))
	}
	e.mu.RUnlock()

	for _, d := range decisions {
		observability.RecordCopyTradeDecision(string(d.Reason))
	}
	return decisions
}
