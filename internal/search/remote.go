package search

import (
	"context"
	"fmt"
	"log"

	"token-find/internal/api"
	"token-find/internal/domain"
)

// TokenSearcher is the subset of api.Client used for remote search.
type TokenSearcher interface {
	SearchTokens(ctx context.Context, query string, limit int) ([]api.TokenHit, error)
}

var _ TokenSearcher = (*api.Client)(nil)

// RemoteTokenSearch adapts the analytics backend to a SearchFunc.
func RemoteTokenSearch(client TokenSearcher, limit int) SearchFunc[domain.TokenSummary] {
	return func(ctx context.Context, query string) ([]ScoredResult[domain.TokenSummary], error) {
		hits, err := client.SearchTokens(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		results := make([]ScoredResult[domain.TokenSummary], len(hits))
		for i, h := range hits {
			results[i] = ScoredResult[domain.TokenSummary]{
				ID:            h.Token.Address,
				Item:          h.Token,
				MatchedFields: h.MatchedFields,
				Score:         h.Score,
			}
		}
		return results, nil
	}
}

// WithFallback returns a SearchFunc that tries primary and, if it fails,
// answers from fallback. Context cancellation is not masked.
func WithFallback[T any](primary, fallback SearchFunc[T], logger *log.Logger) SearchFunc[T] {
	if logger == nil {
		logger = log.Default()
	}
	return func(ctx context.Context, query string) ([]ScoredResult[T], error) {
		results, err := primary(ctx, query)
		if err == nil {
			return results, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Printf("[search] primary search failed, using fallback: %v", err)

		results, ferr := fallback(ctx, query)
		if ferr != nil {
			return nil, fmt.Errorf("fallback after %v: %w", err, ferr)
		}
		return results, nil
	}
}
