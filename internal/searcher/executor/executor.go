// Package executor turns a raw search request into ranked, resolved hits:
// it normalizes the query text, applies the result limit and runs the
// scorer.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/metrics"
)

// SearchRequest is the query payload. Documents caps the number of
// results; nil means the configured default.
type SearchRequest struct {
	Query     string `json:"query"`
	Documents *int   `json:"documents,omitempty"`
}

type Hit struct {
	Collection string           `json:"collection"`
	Index      int              `json:"index"`
	Score      float64          `json:"score"`
	Document   *corpus.Document `json:"document"`
}

type SearchResult struct {
	Query       string   `json:"query"`
	Terms       []string `json:"terms"`
	Fingerprint string   `json:"fingerprint"`
	Limit       int      `json:"limit"`
	Returned    int      `json:"returned"`
	Results     []Hit    `json:"results"`
}

// Plan is a normalized request, ready to run or to key a cache entry.
type Plan struct {
	Query       string
	Terms       []string
	Limit       int
	Fingerprint string
}

type Querier interface {
	Query(ctx context.Context, terms []string, k int) ([]ranker.Match, error)
}

type StatsSource interface {
	Stats() index.CorpusStats
}

type Executor struct {
	scorer       Querier
	index        StatsSource
	defaultLimit int
	maxResults   int
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

type Option func(*Executor)

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

func New(scorer Querier, idx StatsSource, cfg config.SearchConfig, opts ...Option) *Executor {
	e := &Executor{
		scorer:       scorer,
		index:        idx,
		defaultLimit: cfg.DefaultLimit,
		maxResults:   cfg.MaxResults,
		logger:       slog.Default().With("component", "query-executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Plan normalizes req. A negative document count is invalid input; counts
// above the configured maximum are capped.
func (e *Executor) Plan(req SearchRequest) (*Plan, error) {
	limit := e.defaultLimit
	if req.Documents != nil {
		limit = *req.Documents
		if limit < 0 {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
				"documents must not be negative, got %d", limit)
		}
		if e.maxResults > 0 && limit > e.maxResults {
			limit = e.maxResults
		}
	}
	return &Plan{
		Query:       req.Query,
		Terms:       tokenizer.Normalize(req.Query),
		Limit:       limit,
		Fingerprint: e.index.Stats().Fingerprint,
	}, nil
}

// Execute plans and runs req.
func (e *Executor) Execute(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	plan, err := e.Plan(req)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, plan)
}

// Run ranks a prepared plan. A plan without terms matches nothing.
func (e *Executor) Run(ctx context.Context, plan *Plan) (*SearchResult, error) {
	start := time.Now()
	log := e.logger
	if id := logger.RequestID(ctx); id != "" {
		log = log.With("request_id", id)
	}

	result := &SearchResult{
		Query:       plan.Query,
		Terms:       plan.Terms,
		Fingerprint: plan.Fingerprint,
		Limit:       plan.Limit,
		Results:     []Hit{},
	}
	if result.Terms == nil {
		result.Terms = []string{}
	}

	matches, err := e.scorer.Query(ctx, plan.Terms, plan.Limit)
	if err != nil {
		e.observe("error", 0)
		return nil, fmt.Errorf("executing query %q: %w", plan.Query, err)
	}
	for _, m := range matches {
		result.Results = append(result.Results, Hit{
			Collection: m.Key.Collection,
			Index:      m.Key.Index,
			Score:      m.Score,
			Document:   m.Document,
		})
	}
	result.Returned = len(result.Results)

	resultType := "hit"
	if result.Returned == 0 {
		resultType = "zero_result"
	}
	e.observe(resultType, result.Returned)

	log.Info("query executed",
		"query", plan.Query,
		"terms", plan.Terms,
		"limit", plan.Limit,
		"returned", result.Returned,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (e *Executor) observe(resultType string, returned int) {
	if e.metrics == nil {
		return
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	if resultType != "error" {
		e.metrics.SearchResultsCount.Observe(float64(returned))
	}
}
