// Package recorder is the production feed handler. It persists trades and
// market-cap updates, keeps the token index current and runs copy-trade rules
// against live trades.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"token-find/internal/copytrade"
	"token-find/internal/domain"
	"token-find/internal/feed"
	"token-find/internal/idhash"
	"token-find/internal/observability"
	"token-find/internal/search"
	"token-find/internal/solana"
	"token-find/internal/storage"
)

// DefaultWriteTimeout bounds a single store write.
const DefaultWriteTimeout = 5 * time.Second

// ErrInvalidTrade is returned for trades that fail validation.
var ErrInvalidTrade = errors.New("invalid trade")

// Options contains configuration for creating a Recorder.
// Every dependency is optional; a nil store skips persistence.
type Options struct {
	Trades     storage.TradeStore
	MarketCaps storage.MarketCapStore
	Index      *search.Index
	Engine     *copytrade.Engine

	// OnDecision receives every copy decision (Copy == true) for live trades.
	OnDecision func(copytrade.Decision)

	WriteTimeout time.Duration
	Logger       *log.Logger
}

// Stats is a snapshot of recorder counters.
type Stats struct {
	TradesStored     int64 `json:"tradesStored"`
	TradesDuplicate  int64 `json:"tradesDuplicate"`
	TradesRejected   int64 `json:"tradesRejected"`
	MarketCapUpdates int64 `json:"marketCapUpdates"`
	CopyDecisions    int64 `json:"copyDecisions"`
	Errors           int64 `json:"errors"`
}

// Recorder handles feed envelopes.
type Recorder struct {
	trades       storage.TradeStore
	marketCaps   storage.MarketCapStore
	index        *search.Index
	engine       *copytrade.Engine
	onDecision   func(copytrade.Decision)
	writeTimeout time.Duration
	logger       *log.Logger

	stored     atomic.Int64
	duplicates atomic.Int64
	rejected   atomic.Int64
	mcUpdates  atomic.Int64
	copies     atomic.Int64
	errs       atomic.Int64
}

// New creates a Recorder.
func New(opts Options) *Recorder {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	timeout := opts.WriteTimeout
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}

	return &Recorder{
		trades:       opts.Trades,
		marketCaps:   opts.MarketCaps,
		index:        opts.Index,
		engine:       opts.Engine,
		onDecision:   opts.OnDecision,
		writeTimeout: timeout,
		logger:       logger,
	}
}

// Handle dispatches one envelope. It satisfies feed.Handler[feed.Envelope].
// Failures are logged and counted, never returned: the feed keeps flowing.
func (r *Recorder) Handle(env feed.Envelope) {
	switch env.Event {
	case feed.EventCopyTrades:
		trades, err := env.CopyTrades()
		if err != nil {
			r.fail(env.Event, "decode", err)
			return
		}
		r.handleSnapshot(trades)

	case feed.EventNewTrade:
		trade, err := env.NewTrade()
		if err != nil {
			r.fail(env.Event, "decode", err)
			return
		}
		r.handleTrade(trade)

	case feed.EventMarketCapUpdate:
		u, err := env.MarketCapUpdate()
		if err != nil {
			r.fail(env.Event, "decode", err)
			return
		}
		r.handleMarketCap(u)

	case feed.EventError:
		msg, err := env.ErrorMessage()
		if err != nil {
			r.fail(env.Event, "decode", err)
			return
		}
		r.logger.Printf("feed reported error: %s", msg)
		observability.RecordEventError(env.Event, "remote")

	default:
		r.logger.Printf("ignoring unknown event %q", env.Event)
		observability.RecordEventError(env.Event, "unknown_event")
	}
}

// handleSnapshot stores the trades of a subscription snapshot. Trades seen
// before are skipped; snapshot trades are history and are not copied.
func (r *Recorder) handleSnapshot(trades []domain.TradeRecord) {
	var fresh int
	for i := range trades {
		stored, err := r.ingestWithTimeout(&trades[i])
		if err != nil {
			r.fail(feed.EventCopyTrades, errorType(err), err)
			continue
		}
		if stored {
			fresh++
			r.indexTrade(&trades[i])
		}
	}
	r.logger.Printf("snapshot: %d trades, %d new", len(trades), fresh)
}

func (r *Recorder) handleTrade(trade *domain.TradeRecord) {
	stored, err := r.ingestWithTimeout(trade)
	if err != nil {
		r.fail(feed.EventNewTrade, errorType(err), err)
		return
	}
	if !stored {
		return
	}
	r.indexTrade(trade)
	r.evaluate(trade)
}

func (r *Recorder) handleMarketCap(u *domain.MarketCapUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()

	if err := r.RecordMarketCap(ctx, u); err != nil {
		r.fail(feed.EventMarketCapUpdate, errorType(err), err)
	}
}

func (r *Recorder) ingestWithTimeout(trade *domain.TradeRecord) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()
	return r.Ingest(ctx, trade)
}

// Ingest validates a trade, assigns its TradeID and stores it.
// Returns false without error when the trade was already stored.
func (r *Recorder) Ingest(ctx context.Context, trade *domain.TradeRecord) (bool, error) {
	if err := ValidateTrade(trade); err != nil {
		r.rejected.Add(1)
		return false, err
	}

	trade.TradeID = idhash.ComputeTradeID(trade.Signature, trade.WalletAddress, trade.TokenAddress, trade.Side)

	if r.trades != nil {
		err := r.trades.Insert(ctx, trade)
		if errors.Is(err, storage.ErrDuplicateKey) {
			r.duplicates.Add(1)
			observability.RecordTradeDuplicate()
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("store trade %s: %w", trade.Signature, err)
		}
	}

	r.stored.Add(1)
	observability.RecordTradeIngested()
	return true, nil
}

// RecordMarketCap stores an update and applies it to the token index.
// A replayed update (duplicate key) is not an error.
func (r *Recorder) RecordMarketCap(ctx context.Context, u *domain.MarketCapUpdate) error {
	if u == nil || !solana.IsValidAddress(u.TokenAddress) {
		return fmt.Errorf("%w: market cap update for invalid token", storage.ErrInvalidInput)
	}

	if r.marketCaps != nil {
		err := r.marketCaps.Insert(ctx, u)
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("store market cap %s: %w", u.TokenAddress, err)
		}
	}

	if r.index != nil {
		r.index.ApplyMarketCap(*u)
	}
	r.mcUpdates.Add(1)
	observability.RecordMarketCapUpdate()
	return nil
}

// ValidateTrade checks addresses and side.
func ValidateTrade(trade *domain.TradeRecord) error {
	if trade == nil {
		return fmt.Errorf("%w: nil", ErrInvalidTrade)
	}
	if trade.Signature == "" {
		return fmt.Errorf("%w: missing signature", ErrInvalidTrade)
	}
	if !solana.IsValidAddress(trade.WalletAddress) {
		return fmt.Errorf("%w: wallet %q", ErrInvalidTrade, trade.WalletAddress)
	}
	if !solana.IsValidAddress(trade.TokenAddress) {
		return fmt.Errorf("%w: token %q", ErrInvalidTrade, trade.TokenAddress)
	}
	if trade.Side != domain.TradeSideBuy && trade.Side != domain.TradeSideSell {
		return fmt.Errorf("%w: side %q", ErrInvalidTrade, trade.Side)
	}
	if trade.Timestamp < 0 {
		return fmt.Errorf("%w: negative timestamp", ErrInvalidTrade)
	}
	return nil
}

func (r *Recorder) indexTrade(trade *domain.TradeRecord) {
	if r.index != nil {
		r.index.Upsert(*trade)
	}
}

func (r *Recorder) evaluate(trade *domain.TradeRecord) {
	if r.engine == nil {
		return
	}
	for _, d := range r.engine.Evaluate(trade) {
		if !d.Copy {
			continue
		}
		r.copies.Add(1)
		r.logger.Printf("copy %s %s via rule %s: %.4f SOL (trade %s)",
			d.Side, d.TokenAddress, d.RuleID, d.AmountSOL, d.TradeID)
		if r.onDecision != nil {
			r.onDecision(d)
		}
	}
}

func (r *Recorder) fail(event, errType string, err error) {
	r.errs.Add(1)
	r.logger.Printf("%s: %v", event, err)
	observability.RecordEventError(event, errType)
}

func errorType(err error) string {
	switch {
	case errors.Is(err, ErrInvalidTrade), errors.Is(err, storage.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "storage"
	}
}

// Stats returns current counters.
func (r *Recorder) Stats() Stats {
	return Stats{
		TradesStored:     r.stored.Load(),
		TradesDuplicate:  r.duplicates.Load(),
		TradesRejected:   r.rejected.Load(),
		MarketCapUpdates: r.mcUpdates.Load(),
		CopyDecisions:    r.copies.Load(),
		Errors:           r.errs.Load(),
	}
}
