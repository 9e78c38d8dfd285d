package handler

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/corpus/corpustest"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/middleware"
)

type memBackend struct {
	mu   sync.Mutex
	data map[string]string
}

func (b *memBackend) Get(ctx context.Context, key string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (b *memBackend) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = string(value.([]byte))
	return nil
}

func (b *memBackend) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := int64(len(b.data))
	b.data = map[string]string{}
	return n, nil
}

type recordingTracker struct {
	mu     sync.Mutex
	events []analytics.SearchEvent
}

func (r *recordingTracker) Track(key string, event any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event.(analytics.SearchEvent))
}

type stubReloader struct {
	outcome *indexer.BuildOutcome
	err     error
}

func (s stubReloader) Reload(ctx context.Context) (*indexer.BuildOutcome, error) {
	return s.outcome, s.err
}

func newEngine(t *testing.T) *indexer.Engine {
	t.Helper()
	c := corpus.New(corpus.Collection{
		Name:      "games",
		Documents: corpustest.Docs("g", "The cats chased dogs", "dog and bird", "a cat among birds, birds!"),
	})
	e := indexer.NewEngine(store.NewMemory(), corpus.NewMemorySource(c))
	_, err := e.Build(context.Background(), c)
	require.NoError(t, err)
	return e
}

func newHandler(t *testing.T, opts ...Option) *Handler {
	t.Helper()
	e := newEngine(t)
	exec := executor.New(ranker.NewScorer(e, ranker.DefaultParams), e, config.SearchConfig{DefaultLimit: 10, MaxResults: 20})
	return New(exec, e, opts...)
}

func serve(h *Handler, req *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	middleware.RequestID(mux).ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) executor.SearchResult {
	t.Helper()
	var res executor.SearchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestQueryEndpoint(t *testing.T) {
	h := newHandler(t)
	rec := serve(h, httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"query":"cat","documents":1}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	res := decode(t, rec)
	assert.Equal(t, []string{"cat"}, res.Terms)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "g-0", res.Results[0].Document.ID)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestQueryEndpointRejectsBadInput(t *testing.T) {
	h := newHandler(t)
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"not json", "query=cat"},
		{"negative documents", `{"query":"cat","documents":-3}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(tt.body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "error")
		})
	}
}

func TestQueryEndpointFallsBackOnNonIntegerDocuments(t *testing.T) {
	h := newHandler(t)
	for _, docs := range []string{`"5"`, `2.5`, `1e1`, `true`, `null`, `{}`} {
		t.Run(docs, func(t *testing.T) {
			body := `{"query":"cat","documents":` + docs + `}`
			rec := serve(h, httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(body)))
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, 10, decode(t, rec).Limit)
		})
	}
}

func TestDocumentsLimit(t *testing.T) {
	tests := []struct {
		raw  string
		want *int
	}{
		{"", nil},
		{"7", intPtr(7)},
		{" 0 ", intPtr(0)},
		{"-3", intPtr(-3)},
		{"99999999999999999999999", intPtr(math.MaxInt)},
		{"-99999999999999999999999", intPtr(-1)},
		{"2.0", nil},
		{`"12"`, nil},
		{"-", nil},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, documentsLimit(json.RawMessage(tt.raw)))
		})
	}
}

func intPtr(n int) *int { return &n }

func TestSearchEndpoint(t *testing.T) {
	h := newHandler(t)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=birds&limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode(t, rec)
	assert.Equal(t, 5, res.Limit)
	assert.Equal(t, 2, res.Returned)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=birds&limit=lots", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/search", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec).Results)
}

func TestSearchUsesCacheAndRecordsAnalytics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	qc := cache.New(&memBackend{data: map[string]string{}}, time.Minute, m)
	tracker := &recordingTracker{}
	h := newHandler(t, WithCache(qc), WithCollector(tracker), WithMetrics(m))

	for i := 0; i < 2; i++ {
		rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=dog", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=zebra", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	hits, misses := qc.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
	assert.Equal(t, 2, testutil.CollectAndCount(m.SearchLatency), "hit and miss series")

	require.Len(t, tracker.events, 3)
	assert.False(t, tracker.events[0].CacheHit)
	assert.True(t, tracker.events[1].CacheHit)
	assert.Equal(t, analytics.EventZeroResult, tracker.events[2].Type)
	assert.NotEmpty(t, tracker.events[0].RequestID)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))
	assert.Contains(t, rec.Body.String(), `"hit_rate":"33.3%"`)

	rec = serve(h, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"keys_deleted":2`)
}

func TestCacheEndpointsDisabled(t *testing.T) {
	h := newHandler(t)
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))
	assert.Contains(t, rec.Body.String(), "disabled")

	rec = serve(h, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatsEndpoint(t *testing.T) {
	h := newHandler(t)
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Corpus struct {
			DocumentCount int    `json:"document_count"`
			Fingerprint   string `json:"fingerprint"`
		} `json:"corpus"`
		Store store.Summary `json:"store"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Corpus.DocumentCount)
	assert.NotEmpty(t, body.Corpus.Fingerprint)
	assert.Equal(t, "memory", body.Store.Driver)
	assert.Equal(t, 3, body.Store.Documents)
}

func TestReloadEndpoint(t *testing.T) {
	rec := serve(newHandler(t), httptest.NewRequest(http.MethodPost, "/api/v1/index/reload", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h := newHandler(t, WithReloader(stubReloader{outcome: &indexer.BuildOutcome{BuildID: "b9", Status: indexer.BuildReused}}))
	rec = serve(h, httptest.NewRequest(http.MethodPost, "/api/v1/index/reload", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"build_id":"b9"`)

	h = newHandler(t, WithReloader(stubReloader{err: errors.New("disk gone")}))
	rec = serve(h, httptest.NewRequest(http.MethodPost, "/api/v1/index/reload", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	rec := serve(newHandler(t), httptest.NewRequest(http.MethodGet, "/query", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
