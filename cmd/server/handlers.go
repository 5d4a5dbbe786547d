package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"token-find/internal/copytrade"
	"token-find/internal/domain"
	"token-find/internal/observability"
	"token-find/internal/recorder"
	"token-find/internal/search"
)

// routes builds the HTTP mux.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("/metrics", observability.Handler())

	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/api/search", s.handleSearch)
	mux.Handle("/ws/search", s.sessions)

	return mux
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status        string              `json:"status"`
	Uptime        string              `json:"uptime"`
	Started       time.Time           `json:"started"`
	FeedState     string              `json:"feed_state"`
	FeedAttempt   int                 `json:"feed_attempt"`
	Sessions      int                 `json:"sessions"`
	IndexedTokens int                 `json:"indexed_tokens"`
	StoredTrades  int64               `json:"stored_trades"`
	Recorder      recorder.Stats      `json:"recorder"`
	CopyCount     int                 `json:"copy_count"`
	LastCopy      *copytrade.Decision `json:"last_copy,omitempty"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:        "running",
		Uptime:        time.Since(s.started).Round(time.Second).String(),
		Started:       s.started,
		FeedState:     "disabled",
		Sessions:      s.sessions.Count(),
		IndexedTokens: s.index.Len(),
		Recorder:      s.recorder.Stats(),
	}
	if s.feed != nil {
		resp.FeedState = s.feed.State().String()
		resp.FeedAttempt = s.feed.Attempt()
	}
	if n, err := s.stores.trades.Count(r.Context()); err == nil {
		resp.StoredTrades = n
	} else {
		s.logger.Printf("status: count trades: %v", err)
	}

	s.mu.Lock()
	resp.CopyCount = s.copyCount
	resp.LastCopy = s.lastCopy
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// SearchResponse is the JSON response for /api/search.
type SearchResponse struct {
	Query   string                                     `json:"query"`
	Results []search.ScoredResult[domain.TokenSummary] `json:"results"`
}

// handleSearch runs one search through the configured backend, bypassing debounce.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing q"})
		return
	}

	limit := s.cfg.Search.MaxResults
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}

	results, err := s.search(r.Context(), query)
	if err != nil {
		s.logger.Printf("search %q: %v", query, err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "search failed"})
		return
	}
	if results == nil {
		results = []search.ScoredResult[domain.TokenSummary]{}
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	writeJSON(w, http.StatusOK, SearchResponse{Query: query, Results: results})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
