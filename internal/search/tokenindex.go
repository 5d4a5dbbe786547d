package search

import (
	"context"
	"sort"
	"strings"
	"sync"

	"token-find/internal/domain"
	"token-find/internal/observability"
	"token-find/internal/solana"
)

// Match scores. A token's score is its best matching field.
const (
	ScoreExact           = 100.0
	ScoreSymbolPrefix    = 80.0
	ScoreNamePrefix      = 60.0
	ScoreAddressPrefix   = 50.0
	ScoreSymbolSubstring = 40.0
	ScoreNameSubstring   = 30.0
)

// Matched field names.
const (
	FieldSymbol  = "symbol"
	FieldName    = "name"
	FieldAddress = "address"
)

// minAddressPrefix is the shortest query matched against address prefixes.
const minAddressPrefix = 4

// Index is an in-memory token index fed by trade and market-cap events.
type Index struct {
	mu     sync.RWMutex
	tokens map[string]*domain.TokenSummary
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		tokens: make(map[string]*domain.TokenSummary),
	}
}

// Put inserts or replaces a token.
func (ix *Index) Put(t domain.TokenSummary) {
	if t.Address == "" {
		return
	}
	ix.mu.Lock()
	token := t
	ix.tokens[t.Address] = &token
	n := len(ix.tokens)
	ix.mu.Unlock()

	observability.SetIndexedTokens(n)
}

// Upsert folds a trade into the index. Symbol and name are only overwritten
// by non-empty values; price and market cap follow the newest trade.
func (ix *Index) Upsert(trade domain.TradeRecord) {
	if trade.TokenAddress == "" {
		return
	}

	ix.mu.Lock()
	t, ok := ix.tokens[trade.TokenAddress]
	if !ok {
		t = &domain.TokenSummary{Address: trade.TokenAddress}
		ix.tokens[trade.TokenAddress] = t
	}
	if trade.TokenSymbol != "" {
		t.Symbol = trade.TokenSymbol
	}
	if trade.TokenName != "" {
		t.Name = trade.TokenName
	}
	if trade.Timestamp >= t.LastTradeTime {
		t.LastTradeTime = trade.Timestamp
		if trade.MarketCap > 0 {
			t.MarketCap = trade.MarketCap
		}
		if trade.PriceUSD > 0 {
			t.PriceUSD = trade.PriceUSD
		}
	}
	t.TradeCount++
	n := len(ix.tokens)
	ix.mu.Unlock()

	observability.SetIndexedTokens(n)
}

// ApplyMarketCap updates a known token. Returns false if the token is not indexed.
func (ix *Index) ApplyMarketCap(u domain.MarketCapUpdate) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	t, ok := ix.tokens[u.TokenAddress]
	if !ok {
		return false
	}
	t.MarketCap = u.NewMarketCap
	if u.CurrentPrice > 0 {
		t.PriceUSD = u.CurrentPrice
	}
	return true
}

// Get returns a token by address.
func (ix *Index) Get(address string) (domain.TokenSummary, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	t, ok := ix.tokens[address]
	if !ok {
		return domain.TokenSummary{}, false
	}
	return *t, true
}

// Len returns the number of indexed tokens.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.tokens)
}

// Search scores every token against query. It satisfies SearchFunc.
// Results are ordered by score, then market cap (desc), then symbol.
func (ix *Index) Search(ctx context.Context, query string) ([]ScoredResult[domain.TokenSummary], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw := strings.TrimSpace(query)
	if raw == "" {
		return []ScoredResult[domain.TokenSummary]{}, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	// A full mint address can only match itself.
	if solana.IsValidAddress(raw) {
		if t, ok := ix.tokens[raw]; ok {
			return []ScoredResult[domain.TokenSummary]{{
				ID:            t.Address,
				Item:          *t,
				MatchedFields: []string{FieldAddress},
				Score:         ScoreExact,
			}}, nil
		}
	}

	q := strings.ToLower(raw)
	results := make([]ScoredResult[domain.TokenSummary], 0)
	for _, t := range ix.tokens {
		score, fields := scoreToken(t, raw, q)
		if score == 0 {
			continue
		}
		results = append(results, ScoredResult[domain.TokenSummary]{
			ID:            t.Address,
			Item:          *t,
			MatchedFields: fields,
			Score:         score,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Item.MarketCap != b.Item.MarketCap {
			return a.Item.MarketCap > b.Item.MarketCap
		}
		if a.Item.Symbol != b.Item.Symbol {
			return a.Item.Symbol < b.Item.Symbol
		}
		return a.ID < b.ID
	})

	return results, nil
}

// scoreToken returns the best field score and every matched field.
// raw is used for case-sensitive address matching, q for symbol and name.
func scoreToken(t *domain.TokenSummary, raw, q string) (float64, []string) {
	var best float64
	var fields []string

	if s := scoreText(strings.ToLower(t.Symbol), q, ScoreSymbolPrefix, ScoreSymbolSubstring); s > 0 {
		best = max(best, s)
		fields = append(fields, FieldSymbol)
	}
	if s := scoreText(strings.ToLower(t.Name), q, ScoreNamePrefix, ScoreNameSubstring); s > 0 {
		best = max(best, s)
		fields = append(fields, FieldName)
	}

	switch {
	case t.Address == raw:
		best = ScoreExact
		fields = append(fields, FieldAddress)
	case len(raw) >= minAddressPrefix && strings.HasPrefix(t.Address, raw):
		best = max(best, ScoreAddressPrefix)
		fields = append(fields, FieldAddress)
	}

	return best, fields
}

func scoreText(field, q string, prefix, substring float64) float64 {
	switch {
	case field == "":
		return 0
	case field == q:
		return ScoreExact
	case strings.HasPrefix(field, q):
		return prefix
	case strings.Contains(field, q):
		return substring
	default:
		return 0
	}
}
