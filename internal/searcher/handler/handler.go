// Package handler exposes the search engine over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/tracing"
)

const maxBodyBytes = 1 << 20

type SearchExecutor interface {
	Plan(req executor.SearchRequest) (*executor.Plan, error)
	Run(ctx context.Context, plan *executor.Plan) (*executor.SearchResult, error)
}

type IndexInfo interface {
	Stats() index.CorpusStats
	Summary(ctx context.Context) (store.Summary, error)
}

type Reloader interface {
	Reload(ctx context.Context) (*indexer.BuildOutcome, error)
}

// Tracker receives analytics events; *analytics.Collector satisfies it.
type Tracker interface {
	Track(key string, event any)
}

type Handler struct {
	executor  SearchExecutor
	index     IndexInfo
	cache     *cache.QueryCache
	collector Tracker
	reloader  Reloader
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type Option func(*Handler)

func WithCache(c *cache.QueryCache) Option {
	return func(h *Handler) { h.cache = c }
}

func WithCollector(t Tracker) Option {
	return func(h *Handler) { h.collector = t }
}

func WithReloader(r Reloader) Option {
	return func(h *Handler) { h.reloader = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

func New(exec SearchExecutor, idx IndexInfo, opts ...Option) *Handler {
	h := &Handler{
		executor: exec,
		index:    idx,
		logger:   slog.Default().With("component", "search-handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /query", h.Query)
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("POST /api/v1/index/reload", h.Reload)
}

// queryBody is the POST /query payload. documents stays raw so that a
// value that is not an integer falls back to the default limit instead of
// failing the request.
type queryBody struct {
	Query     string          `json:"query"`
	Documents json.RawMessage `json:"documents"`
}

// Query answers POST /query with a JSON body {"query": "...", "documents": n}.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var body queryBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("request body is empty")
		}
		h.writeAppError(w, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid request body: %v", err))
		return
	}
	h.search(w, r, executor.SearchRequest{Query: body.Query, Documents: documentsLimit(body.Documents)})
}

// documentsLimit reads an integer literal; anything else (strings, floats,
// booleans, null) means the default. Out-of-range integers saturate and are
// then capped or rejected by the planner.
func documentsLimit(raw json.RawMessage) *int {
	lit := strings.TrimSpace(string(raw))
	digits := strings.TrimPrefix(lit, "-")
	if digits == "" || strings.TrimLeft(digits, "0123456789") != "" {
		return nil
	}
	n, err := strconv.Atoi(lit)
	if err != nil {
		var numErr *strconv.NumError
		if !errors.As(err, &numErr) || !errors.Is(numErr.Err, strconv.ErrRange) {
			return nil
		}
		n = math.MaxInt
		if strings.HasPrefix(lit, "-") {
			n = -1
		}
	}
	return &n
}

// Search answers GET /api/v1/search?q=...&limit=n.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	req := executor.SearchRequest{Query: r.URL.Query().Get("q")}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			h.writeAppError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be an integer"))
			return
		}
		req.Documents = &limit
	}
	h.search(w, r, req)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request, req executor.SearchRequest) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx).With("component", "search-handler")
	ctx, span := tracing.Start(ctx, "search", logger.RequestID(ctx))
	defer span.Finish(log)

	_, planSpan := tracing.Child(ctx, "plan")
	plan, err := h.executor.Plan(req)
	planSpan.End()
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	planSpan.SetAttr("terms", len(plan.Terms))

	runCtx, runSpan := tracing.Child(ctx, "execute")

	var (
		result   *executor.SearchResult
		cacheHit bool
	)
	cacheStatus := "disabled"
	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(runCtx, plan, func(ctx context.Context) (*executor.SearchResult, error) {
			return h.executor.Run(ctx, plan)
		})
		cacheStatus = "miss"
		if cacheHit {
			cacheStatus = "hit"
		}
	} else {
		result, err = h.executor.Run(runCtx, plan)
	}
	runSpan.SetAttr("cache", cacheStatus)
	runSpan.End()
	if err != nil {
		log.Error("search execution failed", "query", req.Query, "error", err)
		status := apperrors.HTTPStatusCode(err)
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		h.writeError(w, status, "search failed")
		return
	}

	latency := time.Since(start)
	if h.metrics != nil {
		h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
	}
	log.Info("search completed",
		"query", req.Query,
		"returned", result.Returned,
		"cache", cacheStatus,
		"latency_ms", latency.Milliseconds(),
	)
	h.track(ctx, result, cacheHit, latency)
	w.Header().Set("X-Cache", cacheStatus)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) track(ctx context.Context, result *executor.SearchResult, cacheHit bool, latency time.Duration) {
	if h.collector == nil {
		return
	}
	eventType := analytics.EventSearch
	if result.Returned == 0 {
		eventType = analytics.EventZeroResult
	}
	requestID := logger.RequestID(ctx)
	h.collector.Track(requestID, analytics.SearchEvent{
		Type:        eventType,
		Query:       result.Query,
		Terms:       result.Terms,
		Limit:       result.Limit,
		Returned:    result.Returned,
		LatencyMs:   latency.Milliseconds(),
		CacheHit:    cacheHit,
		Fingerprint: result.Fingerprint,
		Timestamp:   time.Now().UTC(),
		RequestID:   requestID,
	})
}

// Stats reports the active corpus stats and the store summary.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	summary, err := h.index.Summary(r.Context())
	if err != nil {
		h.logger.Error("reading store summary failed", "error", err)
		h.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"corpus": h.index.Stats(),
		"store":  summary,
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

// Reload re-reads the corpus and rebuilds or reuses the index.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if h.reloader == nil {
		h.writeError(w, http.StatusServiceUnavailable, "reload is disabled")
		return
	}
	outcome, err := h.reloader.Reload(r.Context())
	if err != nil {
		h.logger.Error("index reload failed", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "index reload failed")
		return
	}
	h.writeJSON(w, http.StatusOK, outcome)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	message := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	h.writeError(w, apperrors.HTTPStatusCode(err), message)
}
