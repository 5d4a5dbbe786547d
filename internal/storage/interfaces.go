package storage

import (
	"context"

	"token-find/internal/domain"
)

// TradeStore provides access to trades storage.
type TradeStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
	Insert(ctx context.Context, t *domain.TradeRecord) error

	// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tradeID string) (*domain.TradeRecord, error)

	// GetByToken retrieves up to limit trades of a token, newest first.
	GetByToken(ctx context.Context, tokenAddress string, limit int) ([]*domain.TradeRecord, error)

	// GetByWallet retrieves up to limit trades of a wallet, newest first.
	GetByWallet(ctx context.Context, walletAddress string, limit int) ([]*domain.TradeRecord, error)

	// GetRecent retrieves up to limit trades across all tokens, newest first.
	GetRecent(ctx context.Context, limit int) ([]*domain.TradeRecord, error)

	// Count returns the number of stored trades.
	Count(ctx context.Context) (int64, error)
}

// MarketCapStore provides access to market_cap_updates storage.
type MarketCapStore interface {
	// Insert adds an update. Returns ErrDuplicateKey if (token_address, timestamp_ms) exists.
	Insert(ctx context.Context, u *domain.MarketCapUpdate) error

	// GetByToken retrieves updates for a token within [start, end] (inclusive), ordered by timestamp ASC.
	GetByToken(ctx context.Context, tokenAddress string, start, end int64) ([]*domain.MarketCapUpdate, error)

	// Latest retrieves the newest update for a token. Returns ErrNotFound if none.
	Latest(ctx context.Context, tokenAddress string) (*domain.MarketCapUpdate, error)
}
