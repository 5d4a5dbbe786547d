package memory

import (
	"context"
	"sort"
	"sync"

	"token-find/internal/domain"
	"token-find/internal/storage"
)

// MarketCapStore is an in-memory implementation of storage.MarketCapStore.
type MarketCapStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.MarketCapUpdate // keyed by token_address, sorted by timestamp
}

// NewMarketCapStore creates a new in-memory market cap store.
func NewMarketCapStore() *MarketCapStore {
	return &MarketCapStore{
		data: make(map[string][]*domain.MarketCapUpdate),
	}
}

// Insert adds an update. Returns ErrDuplicateKey if (token_address, timestamp) exists.
func (s *MarketCapStore) Insert(_ context.Context, u *domain.MarketCapUpdate) error {
	if u == nil || u.TokenAddress == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updates := s.data[u.TokenAddress]
	i := sort.Search(len(updates), func(i int) bool {
		return updates[i].Timestamp >= u.Timestamp
	})
	if i < len(updates) && updates[i].Timestamp == u.Timestamp {
		return storage.ErrDuplicateKey
	}

	copy := *u
	updates = append(updates, nil)
	// Shift to keep ascending order
	for j := len(updates) - 1; j > i; j-- {
		updates[j] = updates[j-1]
	}
	updates[i] = &copy
	s.data[u.TokenAddress] = updates
	return nil
}

// GetByToken retrieves updates within [start, end] (inclusive), ordered by timestamp ASC.
func (s *MarketCapStore) GetByToken(_ context.Context, tokenAddress string, start, end int64) ([]*domain.MarketCapUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.MarketCapUpdate
	for _, u := range s.data[tokenAddress] {
		if u.Timestamp >= start && u.Timestamp <= end {
			copy := *u
			result = append(result, &copy)
		}
	}
	return result, nil
}

// Latest retrieves the newest update for a token. Returns ErrNotFound if none.
func (s *MarketCapStore) Latest(_ context.Context, tokenAddress string) (*domain.MarketCapUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	updates := s.data[tokenAddress]
	if len(updates) == 0 {
		return nil, storage.ErrNotFound
	}
	copy := *updates[len(updates)-1]
	return &copy, nil
}

var _ storage.MarketCapStore = (*MarketCapStore)(nil)
