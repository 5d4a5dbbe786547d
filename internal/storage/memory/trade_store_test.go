package memory

import (
	"context"
	"errors"
	"testing"

	"token-find/internal/domain"
	"token-find/internal/storage"
)

func testTrade(id, wallet, token string, ts int64) *domain.TradeRecord {
	return &domain.TradeRecord{
		TradeID:       id,
		Signature:     "sig-" + id,
		WalletAddress: wallet,
		TokenAddress:  token,
		TokenSymbol:   "BONK",
		Side:          domain.TradeSideBuy,
		AmountSOL:     1.5,
		Timestamp:     ts,
	}
}

func TestTradeStore_InsertAndGet(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testTrade("t1", "w1", "mint1", 1000)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "t1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.AmountSOL != 1.5 {
		t.Errorf("AmountSOL mismatch: got %f, want %f", got.AmountSOL, 1.5)
	}

	// Returned value is a copy
	got.AmountSOL = 99
	again, _ := store.GetByID(ctx, "t1")
	if again.AmountSOL != 1.5 {
		t.Error("store must return copies")
	}
}

func TestTradeStore_DuplicateKey(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	trade := testTrade("t1", "w1", "mint1", 1000)
	if err := store.Insert(ctx, trade); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.Insert(ctx, trade)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestTradeStore_InvalidInput(t *testing.T) {
	store := NewTradeStore()

	if err := store.Insert(context.Background(), &domain.TradeRecord{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
	if err := store.Insert(context.Background(), nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil, got %v", err)
	}
}

func TestTradeStore_NotFound(t *testing.T) {
	store := NewTradeStore()

	_, err := store.GetByID(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestTradeStore_GetByTokenAndWallet(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	for _, tr := range []*domain.TradeRecord{
		testTrade("t1", "w1", "mint1", 1000),
		testTrade("t2", "w2", "mint1", 3000),
		testTrade("t3", "w1", "mint2", 2000),
		testTrade("t4", "w1", "mint1", 2000),
	} {
		if err := store.Insert(ctx, tr); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	byToken, err := store.GetByToken(ctx, "mint1", 10)
	if err != nil {
		t.Fatalf("GetByToken failed: %v", err)
	}
	if len(byToken) != 3 {
		t.Fatalf("Expected 3 trades, got %d", len(byToken))
	}
	if byToken[0].TradeID != "t2" || byToken[1].TradeID != "t4" || byToken[2].TradeID != "t1" {
		t.Errorf("Expected newest first [t2 t4 t1], got [%s %s %s]", byToken[0].TradeID, byToken[1].TradeID, byToken[2].TradeID)
	}

	byWallet, err := store.GetByWallet(ctx, "w1", 2)
	if err != nil {
		t.Fatalf("GetByWallet failed: %v", err)
	}
	if len(byWallet) != 2 {
		t.Fatalf("Expected limit of 2, got %d", len(byWallet))
	}
	if byWallet[0].TradeID != "t3" || byWallet[1].TradeID != "t4" {
		t.Errorf("Expected [t3 t4] (equal timestamps ordered by id), got [%s %s]", byWallet[0].TradeID, byWallet[1].TradeID)
	}

	recent, _ := store.GetRecent(ctx, 1)
	if len(recent) != 1 || recent[0].TradeID != "t2" {
		t.Errorf("Expected most recent t2, got %v", recent)
	}

	count, _ := store.Count(ctx)
	if count != 4 {
		t.Errorf("Expected count 4, got %d", count)
	}
}
