package indexer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/corpus/corpustest"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/metrics"
)

// countingStore records how often the index is rewritten.
type countingStore struct {
	store.Store
	replaces atomic.Int32
}

func (s *countingStore) Replace(ctx context.Context, snap *index.Snapshot) error {
	s.replaces.Add(1)
	return s.Store.Replace(ctx, snap)
}

type failingStore struct {
	store.Store
	loadErr    error
	replaceErr error
}

func (s failingStore) LoadStats(ctx context.Context) (index.CorpusStats, error) {
	return index.CorpusStats{}, s.loadErr
}

func (s failingStore) Replace(ctx context.Context, snap *index.Snapshot) error {
	if s.replaceErr != nil {
		return s.replaceErr
	}
	return s.Store.Replace(ctx, snap)
}

func animalCorpus() *corpus.Corpus {
	return corpus.New(corpus.Collection{
		Name:      "games",
		Documents: corpustest.Docs("g", "cat dog cat", "dog bird", "cat bird bird"),
	})
}

func newEngine(t *testing.T, c *corpus.Corpus, st store.Store) *Engine {
	t.Helper()
	return NewEngine(st, corpus.NewMemorySource(c))
}

func TestBuildRebuildsThenReuses(t *testing.T) {
	ctx := context.Background()
	st := &countingStore{Store: store.NewMemory()}
	c := animalCorpus()

	first, err := newEngine(t, c, st).Build(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, BuildRebuilt, first.Status)
	assert.NotEmpty(t, first.BuildID)
	assert.Equal(t, 3, first.Terms)
	assert.Equal(t, 6, first.Postings)

	second, err := newEngine(t, c, st).Build(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, BuildReused, second.Status)
	assert.Equal(t, first.Stats.Fingerprint, second.Stats.Fingerprint)
	assert.Equal(t, 3, second.Terms)
	assert.NotEqual(t, first.BuildID, second.BuildID)

	assert.Equal(t, int32(1), st.replaces.Load(), "an unchanged corpus must not be re-persisted")
}

func TestBuildRebuildsWhenCorpusChanges(t *testing.T) {
	ctx := context.Background()
	st := &countingStore{Store: store.NewMemory()}

	c := animalCorpus()
	_, err := newEngine(t, c, st).Build(ctx, c)
	require.NoError(t, err)

	changed := animalCorpus()
	changed.Collections[0].Documents[1].Metadata.Text = "dog bird zebra"
	e := newEngine(t, changed, st)
	outcome, err := e.Build(ctx, changed)
	require.NoError(t, err)

	assert.Equal(t, BuildRebuilt, outcome.Status)
	assert.Equal(t, int32(2), st.replaces.Load())

	df, err := e.DocumentFrequency(ctx, "zebra")
	require.NoError(t, err)
	assert.Equal(t, 1, df)
}

func TestBuildStats(t *testing.T) {
	ctx := context.Background()
	c := animalCorpus()
	e := newEngine(t, c, store.NewMemory())

	_, err := e.Build(ctx, c)
	require.NoError(t, err)

	stats := e.Stats()
	assert.Equal(t, 3, stats.DocumentCount)
	assert.InDelta(t, 8.0/3.0, stats.AverageDocumentLength, 1e-12)

	fp, err := corpus.Fingerprint(c)
	require.NoError(t, err)
	assert.Equal(t, fp, stats.Fingerprint)
}

func TestBuildEmptyCorpus(t *testing.T) {
	ctx := context.Background()
	st := &countingStore{Store: store.NewMemory()}
	c := corpus.New()
	e := newEngine(t, c, st)

	outcome, err := e.Build(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, BuildEmpty, outcome.Status)
	assert.Zero(t, e.Stats().DocumentCount)
	assert.Zero(t, st.replaces.Load(), "the store is left untouched")

	postings, err := e.Postings(ctx, "cat")
	require.NoError(t, err)
	assert.Empty(t, postings)
}

func TestBuildKeepsEmptyTextDocuments(t *testing.T) {
	ctx := context.Background()
	c := corpus.New(corpus.Collection{
		Name:      "games",
		Documents: corpustest.Docs("g", "cat dog", "", "cat"),
	})
	e := newEngine(t, c, store.NewMemory())

	_, err := e.Build(ctx, c)
	require.NoError(t, err)

	stats := e.Stats()
	assert.Equal(t, 3, stats.DocumentCount)
	assert.InDelta(t, 1.0, stats.AverageDocumentLength, 1e-12)

	postings, err := e.Postings(ctx, "cat")
	require.NoError(t, err)
	require.Len(t, postings, 2)
	assert.Equal(t, 2, postings[1].Index, "the empty document keeps its position")
}

func TestBuildEmptyCorpusIgnoresStaleStore(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	c := animalCorpus()
	_, err := newEngine(t, c, st).Build(ctx, c)
	require.NoError(t, err)

	empty := corpus.New()
	e := newEngine(t, empty, st)
	_, err = e.Build(ctx, empty)
	require.NoError(t, err)

	df, err := e.DocumentFrequency(ctx, "cat")
	require.NoError(t, err)
	assert.Zero(t, df)
}

func TestBuildRebuildsWhenStatsUnreadable(t *testing.T) {
	ctx := context.Background()
	c := animalCorpus()
	e := newEngine(t, c, failingStore{Store: store.NewMemory(), loadErr: errors.New("disk on fire")})

	outcome, err := e.Build(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, BuildRebuilt, outcome.Status)
	assert.Equal(t, 3, e.Stats().DocumentCount)

	df, err := e.DocumentFrequency(ctx, "cat")
	require.NoError(t, err)
	assert.Equal(t, 2, df)
}

func TestBuildPropagatesStoreFailure(t *testing.T) {
	c := animalCorpus()
	st := failingStore{
		Store:      store.NewMemory(),
		loadErr:    errors.New("disk on fire"),
		replaceErr: errors.New("disk still on fire"),
	}
	_, err := newEngine(t, c, st).Build(context.Background(), c)
	require.Error(t, err)
	assert.ErrorContains(t, err, "disk still on fire")
}

func TestBuildPropagatesStatsContextError(t *testing.T) {
	c := animalCorpus()
	st := &countingStore{Store: failingStore{
		Store:   store.NewMemory(),
		loadErr: fmt.Errorf("querying stats: %w", context.DeadlineExceeded),
	}}
	_, err := newEngine(t, c, st).Build(context.Background(), c)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, st.replaces.Load())
}

func TestBuildHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := animalCorpus()
	_, err := newEngine(t, c, store.NewMemory()).Build(ctx, c)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPostingsSortedAndNormalized(t *testing.T) {
	ctx := context.Background()
	c := corpus.New(
		corpus.Collection{Name: "steam", Documents: corpustest.Docs("s", "Running dungeons")},
		corpus.Collection{Name: "itch", Documents: corpustest.Docs("i", "a dungeon", "the runner runs", "dungeon, dungeon!")},
	)
	e := newEngine(t, c, store.NewMemory())
	_, err := e.Build(ctx, c)
	require.NoError(t, err)

	postings, err := e.Postings(ctx, "dungeon")
	require.NoError(t, err)
	assert.Equal(t, index.PostingList{
		{Collection: "itch", Index: 0, Frequency: 1, DocLength: 1},
		{Collection: "itch", Index: 2, Frequency: 2, DocLength: 2},
		{Collection: "steam", Index: 0, Frequency: 1, DocLength: 2},
	}, postings)

	df, err := e.DocumentFrequency(ctx, "dungeon")
	require.NoError(t, err)
	assert.Equal(t, 3, df)

	df, err = e.DocumentFrequency(ctx, "unknown")
	require.NoError(t, err)
	assert.Zero(t, df)
}

func TestFetchDocuments(t *testing.T) {
	ctx := context.Background()
	c := corpus.New(
		corpus.Collection{Name: "steam", Documents: corpustest.Docs("s", "one", "two")},
		corpus.Collection{Name: "itch", Documents: corpustest.Docs("i", "three")},
	)
	e := newEngine(t, c, store.NewMemory())

	docs, err := e.FetchDocuments(ctx, []index.DocKey{
		{Collection: "steam", Index: 1},
		{Collection: "itch", Index: 0},
		{Collection: "steam", Index: 5},
		{Collection: "gone", Index: 0},
		{Collection: "steam", Index: 0},
	})
	require.NoError(t, err)
	require.Len(t, docs, 5)
	assert.Equal(t, "s-1", docs[0].ID)
	assert.Equal(t, "i-0", docs[1].ID)
	assert.Nil(t, docs[2], "out of range resolves to nil")
	assert.Nil(t, docs[3], "unknown collection resolves to nil")
	assert.Equal(t, "s-0", docs[4].ID)
}

func TestFetchDocumentsFromDirectory(t *testing.T) {
	ctx := context.Background()
	dir := corpustest.WriteDir(t, map[string][]corpus.Document{
		"games": corpustest.Docs("g", "cat", "dog"),
	})
	src := corpus.NewDirSource(dir)
	c, err := corpus.Load(ctx, src)
	require.NoError(t, err)

	e := NewEngine(store.NewMemory(), src)
	_, err = e.Build(ctx, c)
	require.NoError(t, err)

	docs, err := e.FetchDocuments(ctx, []index.DocKey{{Collection: "games", Index: 1}})
	require.NoError(t, err)
	require.NotNil(t, docs[0])
	assert.Equal(t, "dog", docs[0].Metadata.Text)
}

func TestBuildAgainstSegmentSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), store.SegmentFile)
	c := animalCorpus()

	st, err := store.NewSegment(path)
	require.NoError(t, err)
	first, err := newEngine(t, c, st).Build(ctx, c)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	reopened, err := store.NewSegment(path)
	require.NoError(t, err)
	defer reopened.Close()
	e := newEngine(t, c, reopened)
	second, err := e.Build(ctx, c)
	require.NoError(t, err)

	assert.Equal(t, BuildRebuilt, first.Status)
	assert.Equal(t, BuildReused, second.Status)

	postings, err := e.Postings(ctx, "cat")
	require.NoError(t, err)
	assert.Len(t, postings, 2)
}

func TestBuildRecordsMetrics(t *testing.T) {
	ctx := context.Background()
	m := metrics.New(prometheus.NewRegistry())
	c := animalCorpus()
	c.Skipped = 2
	e := NewEngine(store.NewMemory(), corpus.NewMemorySource(c), WithMetrics(m))

	_, err := e.Build(ctx, c)
	require.NoError(t, err)
	_, err = e.Build(ctx, c)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexBuildsTotal.WithLabelValues("rebuilt")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexBuildsTotal.WithLabelValues("reused")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.DocsIndexedTotal))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.MalformedDocsTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.IndexTerms))
}

func BenchmarkEngineBuild(b *testing.B) {
	words := []string{"castle", "dragon", "quest", "sword", "magic", "forest", "tower", "knight"}
	texts := make([]string, 500)
	for i := range texts {
		texts[i] = fmt.Sprintf("%s %s %s level %d", words[i%8], words[(i*3)%8], words[(i*5)%8], i)
	}
	c := corpus.New(corpus.Collection{Name: "bench", Documents: corpustest.Docs("b", texts...)})
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e := NewEngine(store.NewMemory(), corpus.NewMemorySource(c))
		if _, err := e.Build(ctx, c); err != nil {
			b.Fatal(err)
		}
	}
}
