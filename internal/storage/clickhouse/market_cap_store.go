package clickhouse

import (
	"context"
	"fmt"
	"time"

	"token-find/internal/domain"
	"token-find/internal/storage"
)

// MarketCapStore implements storage.MarketCapStore using ClickHouse.
type MarketCapStore struct {
	conn *Conn
}

// NewMarketCapStore creates a new MarketCapStore.
func NewMarketCapStore(conn *Conn) *MarketCapStore {
	return &MarketCapStore{conn: conn}
}

// Compile-time interface check.
var _ storage.MarketCapStore = (*MarketCapStore)(nil)

// Insert adds an update. Returns ErrDuplicateKey if (token_address, timestamp_ms) exists.
// MergeTree does not enforce uniqueness, so the key is checked before the insert.
func (s *MarketCapStore) Insert(ctx context.Context, u *domain.MarketCapUpdate) (err error) {
	if u == nil || u.TokenAddress == "" || u.Timestamp < 0 {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	defer func() { observe("insert_market_cap", start, err) }()

	exists, err := s.exists(ctx, u.TokenAddress, u.Timestamp)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO market_cap_updates (
			token_address, timestamp_ms, new_market_cap, market_cap_gain, current_price, worker_id
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		u.TokenAddress, uint64(u.Timestamp), u.NewMarketCap,
		u.MarketCapGain, u.CurrentPrice, u.WorkerID,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByToken retrieves updates for a token within [start, end] (inclusive), ordered by timestamp ASC.
func (s *MarketCapStore) GetByToken(ctx context.Context, tokenAddress string, start, end int64) (updates []*domain.MarketCapUpdate, err error) {
	began := time.Now()
	defer func() { observe("market_cap_by_token", began, err) }()

	query := `
		SELECT token_address, timestamp_ms, new_market_cap, market_cap_gain, current_price, worker_id
		FROM market_cap_updates
		WHERE token_address = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, tokenAddress, uint64(max(start, 0)), uint64(max(end, 0)))
	if err != nil {
		return nil, fmt.Errorf("query by token: %w", err)
	}
	defer rows.Close()

	return scanMarketCapUpdates(rows)
}

// Latest retrieves the newest update for a token. Returns ErrNotFound if none.
func (s *MarketCapStore) Latest(ctx context.Context, tokenAddress string) (u *domain.MarketCapUpdate, err error) {
	start := time.Now()
	defer func() { observe("latest_market_cap", start, err) }()

	query := `
		SELECT token_address, timestamp_ms, new_market_cap, market_cap_gain, current_price, worker_id
		FROM market_cap_updates
		WHERE token_address = ?
		ORDER BY timestamp_ms DESC
		LIMIT 1
	`

	rows, err := s.conn.Query(ctx, query, tokenAddress)
	if err != nil {
		return nil, fmt.Errorf("query latest: %w", err)
	}
	defer rows.Close()

	updates, err := scanMarketCapUpdates(rows)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return nil, storage.ErrNotFound
	}
	return updates[0], nil
}

// exists checks if an update with the given key exists.
func (s *MarketCapStore) exists(ctx context.Context, tokenAddress string, timestampMs int64) (bool, error) {
	query := `
		SELECT count(*) FROM market_cap_updates
		WHERE token_address = ? AND timestamp_ms = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, tokenAddress, uint64(timestampMs)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanMarketCapUpdates scans multiple rows.
func scanMarketCapUpdates(rows chRows) ([]*domain.MarketCapUpdate, error) {
	var updates []*domain.MarketCapUpdate

	for rows.Next() {
		var u domain.MarketCapUpdate
		var timestampMs uint64

		err := rows.Scan(
			&u.TokenAddress, &timestampMs, &u.NewMarketCap,
			&u.MarketCapGain, &u.CurrentPrice, &u.WorkerID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		u.Timestamp = int64(timestampMs)
		updates = append(updates, &u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return updates, nil
}
