package memory

import (
	"context"
	"sort"
	"sync"

	"token-find/internal/domain"
	"token-find/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TradeRecord // keyed by trade_id
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		data: make(map[string]*domain.TradeRecord),
	}
}

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeStore) Insert(_ context.Context, t *domain.TradeRecord) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.TradeID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *t
	s.data[t.TradeID] = &copy
	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(_ context.Context, tradeID string) (*domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.data[tradeID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *t
	return &copy, nil
}

// GetByToken retrieves up to limit trades of a token, newest first.
func (s *TradeStore) GetByToken(_ context.Context, tokenAddress string, limit int) ([]*domain.TradeRecord, error) {
	return s.filter(limit, func(t *domain.TradeRecord) bool {
		return t.TokenAddress == tokenAddress
	}), nil
}

// GetByWallet retrieves up to limit trades of a wallet, newest first.
func (s *TradeStore) GetByWallet(_ context.Context, walletAddress string, limit int) ([]*domain.TradeRecord, error) {
	return s.filter(limit, func(t *domain.TradeRecord) bool {
		return t.WalletAddress == walletAddress
	}), nil
}

// GetRecent retrieves up to limit trades, newest first.
func (s *TradeStore) GetRecent(_ context.Context, limit int) ([]*domain.TradeRecord, error) {
	return s.filter(limit, func(*domain.TradeRecord) bool { return true }), nil
}

// Count returns the number of stored trades.
func (s *TradeStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.data)), nil
}

// filter returns copies of matching trades ordered by timestamp DESC, trade_id ASC.
func (s *TradeStore) filter(limit int, match func(*domain.TradeRecord) bool) []*domain.TradeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TradeRecord
	for _, t := range s.data {
		if match(t) {
			copy := *t
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp > result[j].Timestamp
		}
		return result[i].TradeID < result[j].TradeID
	})

	if limit = storage.ClampLimit(limit); len(result) > limit {
		result = result[:limit]
	}
	return result
}

var _ storage.TradeStore = (*TradeStore)(nil)
