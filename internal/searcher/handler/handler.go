// Package handler exposes the symbol search engine over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/query"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/tracing"
)

type Searcher interface {
	Search(ctx context.Context, text string, generation uint64) *query.ResultSet
}

// IndexStatus reports shard load states.
type IndexStatus interface {
	Snapshot() []index.ShardStatus
	Counts() map[index.LoadState]int
}

// Tracker receives analytics events. *analytics.Collector satisfies it.
type Tracker interface {
	Track(event analytics.SearchEvent)
}

// Config wires a Handler. Reload, Invalidate and Tracker are optional.
type Config struct {
	Searcher     Searcher
	Index        IndexStatus
	Reload       func(ctx context.Context) error
	Invalidate   func(ctx context.Context) (int64, error)
	Tracker      Tracker
	Build        string
	DefaultLimit int
	MaxResults   int
}

type Handler struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config) *Handler {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 100
	}
	return &Handler{
		cfg:    cfg,
		logger: slog.Default().With("component", "search-handler"),
	}
}

// Register mounts the handler routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/select", h.Select)
	mux.HandleFunc("GET /api/v1/shards", h.Shards)
	mux.HandleFunc("POST /api/v1/index/reset", h.Reset)
}

type searchResponse struct {
	*query.ResultSet
	Total     int              `json:"total"`
	LatencyMs float64          `json:"latency_ms"`
	Trace     *tracing.Summary `json:"trace,omitempty"`
}

// Search serves GET /api/v1/search?q=&limit=&gen=&trace=. An empty or
// all-punctuation q is not an error: it returns no matches.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	params := r.URL.Query()
	text := params.Get("q")

	limit, err := h.parseLimit(params.Get("limit"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var generation uint64
	if g := params.Get("gen"); g != "" {
		generation, err = strconv.ParseUint(g, 10, 64)
		if err != nil {
			h.writeError(w, r, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "gen must be a non-negative integer"))
			return
		}
	}

	ctx, span := tracing.StartSpan(r.Context(), "http.search", middleware.GetRequestID(r.Context()))
	rs := h.cfg.Searcher.Search(ctx, text, generation)
	span.End()

	resp := searchResponse{ResultSet: rs, Total: rs.Len(), LatencyMs: float64(time.Since(start).Microseconds()) / 1000}
	if rs.Len() > limit {
		trimmed := *rs
		trimmed.Matches = rs.Matches[:limit]
		trimmed.Truncated = true
		resp.ResultSet = &trimmed
	}
	if params.Get("trace") == "1" {
		sum := span.Summary()
		resp.Trace = &sum
	}
	span.Log(logger.FromContext(r.Context()))

	logger.FromContext(r.Context()).Info("search completed",
		"query", rs.Normalized,
		"generation", generation,
		"total", rs.Len(),
		"partial", rs.Partial,
		"latency_ms", resp.LatencyMs,
	)
	if h.cfg.Tracker != nil && rs.Normalized != "" {
		event := analytics.NewSearchEvent(rs, "http", time.Since(start))
		event.Build = h.cfg.Build
		event.RequestID = middleware.GetRequestID(r.Context())
		h.cfg.Tracker.Track(event)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type selectRequest struct {
	Query string       `json:"query"`
	Entry symbol.Entry `json:"entry"`
}

// Select serves POST /api/v1/select. Clients report which result a user
// opened so that it shows up in the analytics.
func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		h.writeError(w, r, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid request body: %v", err))
		return
	}
	if req.Entry.Key == "" {
		req.Entry.Key = symbol.Normalize(req.Entry.DisplayName)
	}
	if req.Entry.Key == "" {
		h.writeError(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "entry key or display_name is required"))
		return
	}
	if h.cfg.Tracker != nil {
		event := analytics.NewSelectEvent(req.Query, req.Entry, "http")
		event.Build = h.cfg.Build
		event.RequestID = middleware.GetRequestID(r.Context())
		h.cfg.Tracker.Track(event)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Shards serves GET /api/v1/shards.
func (h *Handler) Shards(w http.ResponseWriter, r *http.Request) {
	counts := make(map[string]int)
	for state, n := range h.cfg.Index.Counts() {
		counts[state.String()] = n
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"build":  h.cfg.Build,
		"counts": counts,
		"shards": h.cfg.Index.Snapshot(),
	})
}

// Reset serves POST /api/v1/index/reset: it drops cached shard payloads,
// re-reads the manifest and forgets every loaded shard.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Reload == nil {
		h.writeError(w, r, apperrors.New(apperrors.ErrInternal, http.StatusServiceUnavailable, "reload is not configured"))
		return
	}
	var flushed int64
	if h.cfg.Invalidate != nil {
		n, err := h.cfg.Invalidate(r.Context())
		if err != nil {
			h.logger.Warn("shard cache invalidation failed", "error", err)
		}
		flushed = n
	}
	if err := h.cfg.Reload(r.Context()); err != nil {
		h.writeError(w, r, fmt.Errorf("reloading index: %w", err))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "reset", "cache_keys_flushed": flushed})
}

func (h *Handler) parseLimit(s string) (int, error) {
	if s == "" {
		return h.cfg.DefaultLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer")
	}
	return min(n, h.cfg.MaxResults), nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
