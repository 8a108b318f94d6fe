// Package api is the dashboard-facing query surface over the local
// buffer: recent captures, text search, and AI analysis of a single
// tweet. It never writes to the pipeline.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"apex/internal/ai"
	"apex/internal/buffer"
	"apex/internal/logging"
	"apex/internal/model"
)

const defaultListLimit = 50

// Analyzer produces tags and a summary for a tweet's text.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (ai.Result, error)
}

type Server struct {
	store    *buffer.Store
	analyzer Analyzer
}

func NewServer(store *buffer.Store, analyzer Analyzer) *Server {
	return &Server{store: store, analyzer: analyzer}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", s.handleHealth)
	r.Get("/api/tweets", s.handleTweets)
	r.Get("/api/search", s.handleSearch)
	r.Post("/api/tweet/analyze", s.handleAnalyze)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	total, unsynced, err := s.store.Counts(r.Context())
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"captured": total,
		"unsynced": unsynced,
	})
}

func (s *Server) handleTweets(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	limit := queryLimit(r, defaultListLimit)
	records, err := s.store.Recent(r.Context(), source, limit)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeTweets(w, records)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		httpError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	records, err := s.store.Search(r.Context(), q, queryLimit(r, defaultListLimit))
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeTweets(w, records)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.analyzer == nil {
		httpError(w, http.StatusServiceUnavailable, "analysis not configured")
		return
	}
	var req struct {
		TweetID string `json:"tweetId"`
		Text    string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Text == "" {
		httpError(w, http.StatusBadRequest, "missing text")
		return
	}
	res, err := s.analyzer.Analyze(r.Context(), req.Text)
	if err != nil {
		logging.Error("analysis failed", map[string]any{"tweet_id": req.TweetID, "err": err.Error()})
		httpError(w, http.StatusBadGateway, "analysis failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tweetId": req.TweetID,
		"tags":    res.Tags,
		"summary": res.Summary,
	})
}

func writeTweets(w http.ResponseWriter, records []model.BufferRecord) {
	tweets := make([]model.NormalizedTweet, 0, len(records))
	for _, r := range records {
		tweets = append(tweets, r.Tweet)
	}
	writeJSON(w, http.StatusOK, map[string]any{"tweets": tweets, "count": len(tweets)})
}

func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 500 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
