package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-find/internal/config"
	"token-find/internal/domain"
	"token-find/internal/storage/memory"
)

const bonkMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"

func newTestServer(t *testing.T) (*Server, *stores) {
	t.Helper()
	cfg := config.Default()
	cfg.Feed.URL = "ws://localhost:1"
	cfg.Storage.UseMemory = true
	require.NoError(t, cfg.Validate())

	st := &stores{trades: memory.NewTradeStore(), marketCaps: memory.NewMarketCapStore()}
	s, err := NewServer(cfg, st, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	return s, st
}

func TestHandleSearch(t *testing.T) {
	s, _ := newTestServer(t)
	s.index.Put(domain.TokenSummary{Address: bonkMint, Symbol: "BONK", Name: "Bonk", MarketCap: 1e9})
	s.index.Put(domain.TokenSummary{Address: "So11111111111111111111111111111111111111112", Symbol: "SOL", Name: "Wrapped SOL"})

	h := s.routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search?q=bon", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "bon", resp.Query)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, bonkMint, resp.Results[0].ID)
	assert.Equal(t, "BONK", resp.Results[0].Item.Symbol)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search?q=zzz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
}

func TestHandleSearch_BadRequests(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.routes()

	tests := []struct {
		method, target string
		code           int
	}{
		{http.MethodGet, "/api/search", http.StatusBadRequest},
		{http.MethodGet, "/api/search?q=%20", http.StatusBadRequest},
		{http.MethodGet, "/api/search?q=a&limit=x", http.StatusBadRequest},
		{http.MethodPost, "/api/search?q=a", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, nil))
		assert.Equal(t, tt.code, rec.Code, "%s %s", tt.method, tt.target)
	}
}

func TestHandleStatusAndHealth(t *testing.T) {
	s, st := newTestServer(t)
	require.NoError(t, st.trades.Insert(context.Background(), &domain.TradeRecord{TradeID: "t1", TokenAddress: bonkMint, Timestamp: 1}))

	h := s.routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "running", status.Status)
	assert.Equal(t, "disabled", status.FeedState, "feed not started outside Run")
	assert.Equal(t, int64(1), status.StoredTrades)
	assert.Zero(t, status.Sessions)
}

func TestSeedIndex(t *testing.T) {
	s, st := newTestServer(t)
	ctx := context.Background()

	for i, sym := range []string{"OLD", "NEW"} {
		require.NoError(t, st.trades.Insert(ctx, &domain.TradeRecord{
			TradeID:      sym,
			TokenAddress: bonkMint,
			TokenSymbol:  sym,
			MarketCap:    float64(100 * (i + 1)),
			Timestamp:    int64(1000 * (i + 1)),
		}))
	}

	require.NoError(t, s.seedIndex(ctx))

	tok, ok := s.index.Get(bonkMint)
	require.True(t, ok)
	assert.Equal(t, "NEW", tok.Symbol, "replayed oldest first")
	assert.Equal(t, 200.0, tok.MarketCap)
	assert.Equal(t, 2, tok.TradeCount)
}
