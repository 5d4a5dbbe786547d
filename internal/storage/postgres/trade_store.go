package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"token-find/internal/domain"
	"token-find/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

const tradeColumns = `
	trade_id, signature, wallet_address, wallet_label,
	token_address, token_symbol, token_name, side,
	amount_sol, amount_token, price_usd, market_cap, timestamp_ms
`

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.TradeRecord) (err error) {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	defer func() { observe("insert_trade", start, err) }()

	query := `
		INSERT INTO trades (` + tradeColumns + `) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12, $13
		)
	`

	_, execErr := s.pool.Exec(ctx, query,
		t.TradeID, t.Signature, t.WalletAddress, t.WalletLabel,
		t.TokenAddress, t.TokenSymbol, t.TokenName, t.Side,
		t.AmountSOL, t.AmountToken, t.PriceUSD, t.MarketCap, t.Timestamp,
	)
	if execErr != nil {
		if isDuplicateKeyError(execErr) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", execErr)
	}
	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(ctx context.Context, tradeID string) (*domain.TradeRecord, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE trade_id = $1`

	start := time.Now()
	t, err := scanTrade(s.pool.QueryRow(ctx, query, tradeID))
	if err != nil {
		if isNotFoundError(err) {
			observe("get_trade", start, nil)
			return nil, storage.ErrNotFound
		}
		observe("get_trade", start, err)
		return nil, fmt.Errorf("get trade by id: %w", err)
	}
	observe("get_trade", start, nil)
	return t, nil
}

// GetByToken retrieves up to limit trades of a token, newest first.
func (s *TradeStore) GetByToken(ctx context.Context, tokenAddress string, limit int) ([]*domain.TradeRecord, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE token_address = $1
		ORDER BY timestamp_ms DESC, trade_id ASC
		LIMIT $2
	`
	return s.list(ctx, "trades_by_token", query, tokenAddress, storage.ClampLimit(limit))
}

// GetByWallet retrieves up to limit trades of a wallet, newest first.
func (s *TradeStore) GetByWallet(ctx context.Context, walletAddress string, limit int) ([]*domain.TradeRecord, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE wallet_address = $1
		ORDER BY timestamp_ms DESC, trade_id ASC
		LIMIT $2
	`
	return s.list(ctx, "trades_by_wallet", query, walletAddress, storage.ClampLimit(limit))
}

// GetRecent retrieves up to limit trades, newest first.
func (s *TradeStore) GetRecent(ctx context.Context, limit int) ([]*domain.TradeRecord, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		ORDER BY timestamp_ms DESC, trade_id ASC
		LIMIT $1
	`
	return s.list(ctx, "recent_trades", query, storage.ClampLimit(limit))
}

// Count returns the number of stored trades.
func (s *TradeStore) Count(ctx context.Context) (n int64, err error) {
	start := time.Now()
	defer func() { observe("count_trades", start, err) }()

	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM trades`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count trades: %w", err)
	}
	return n, nil
}

func (s *TradeStore) list(ctx context.Context, operation, query string, args ...interface{}) (trades []*domain.TradeRecord, err error) {
	start := time.Now()
	defer func() { observe(operation, start, err) }()

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", operation, err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// scanTrade scans a single row into a TradeRecord.
func scanTrade(row pgx.Row) (*domain.TradeRecord, error) {
	var t domain.TradeRecord

	err := row.Scan(
		&t.TradeID, &t.Signature, &t.WalletAddress, &t.WalletLabel,
		&t.TokenAddress, &t.TokenSymbol, &t.TokenName, &t.Side,
		&t.AmountSOL, &t.AmountToken, &t.PriceUSD, &t.MarketCap, &t.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	return &t, nil
}

// scanTrades scans multiple rows into a slice of TradeRecord.
func scanTrades(rows pgx.Rows) ([]*domain.TradeRecord, error) {
	var trades []*domain.TradeRecord

	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}
