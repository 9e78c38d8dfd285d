package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{10, 20, 30, 40}
	assert.Equal(t, time.Duration(20), percentile(sorted, 50))
	assert.Equal(t, time.Duration(40), percentile(sorted, 99))
	assert.Equal(t, time.Duration(10), percentile(sorted, 0))
	assert.Zero(t, percentile(nil, 50))
}

func TestReport(t *testing.T) {
	rec := newRecorder()
	rec.record(sample{latency: 10 * time.Millisecond, status: 200, cacheHit: true})
	rec.record(sample{latency: 30 * time.Millisecond, status: 200, zeroResult: true})
	rec.record(sample{latency: 20 * time.Millisecond, status: 429})
	rec.record(sample{latency: time.Second, err: errors.New("refused")})

	rep := rec.report(2 * time.Second)
	assert.Equal(t, 4, rep.Total)
	assert.Equal(t, 2, rep.Success)
	assert.Equal(t, 2, rep.Errors)
	assert.Equal(t, 1, rep.CacheHits)
	assert.Equal(t, 1, rep.ZeroResults)
	assert.Equal(t, 2.0, rep.RPS)
	assert.Equal(t, 10*time.Millisecond, rep.Min)
	assert.Equal(t, 30*time.Millisecond, rep.Max)
	assert.Equal(t, 20*time.Millisecond, rep.Avg)
	assert.Equal(t, map[int]int{200: 2, 429: 1}, rep.StatusCodes)

	var out bytes.Buffer
	rep.print(&out)
	assert.Contains(t, out.String(), "Cache Hits:      1")
	assert.Contains(t, out.String(), "  429: 1")
}

func TestLoadQueries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.txt")
	require.NoError(t, os.WriteFile(path, []byte("cats\n\n  dogs  \n"), 0o644))
	queries, err := loadQueries(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"cats", "dogs"}, queries)

	empty := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = loadQueries(empty)
	assert.Error(t, err)
}

func TestRunAgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["query"] == "" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		}
		w.Header().Set("X-Cache", "hit")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"returned":0}`))
	}))
	defer srv.Close()

	for _, post := range []bool{false, true} {
		rec := newRecorder()
		cfg := config{
			baseURL:     srv.URL,
			concurrency: 2,
			duration:    100 * time.Millisecond,
			limit:       5,
			queries:     []string{"a", "b"},
			usePost:     post,
		}
		require.NoError(t, run(context.Background(), cfg, rec))
		rep := rec.report(cfg.duration)
		require.Positive(t, rep.Total)
		assert.Equal(t, rep.Total, rep.CacheHits+rep.Errors)
		assert.Positive(t, rep.ZeroResults)
		assert.Equal(t, rep.Success, rep.CacheHits)
	}
}
