package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/corpus/corpustest"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/indexer/store"
)

type countingCache struct {
	calls int
	err   error
}

func (c *countingCache) Invalidate(ctx context.Context) (int64, error) {
	c.calls++
	return 3, c.err
}

func setup(t *testing.T) (string, *indexer.Engine, *Reloader, *countingCache) {
	t.Helper()
	dir := corpustest.WriteDir(t, map[string][]corpus.Document{
		"games": corpustest.Docs("g", "dungeon crawler", "space trader"),
	})
	src := corpus.NewDirSource(dir)
	engine := indexer.NewEngine(store.NewMemory(), src)
	c, err := corpus.Load(context.Background(), src)
	require.NoError(t, err)
	_, err = engine.Build(context.Background(), c)
	require.NoError(t, err)

	cache := &countingCache{}
	return dir, engine, NewReloader(engine, src, cache), cache
}

func event(t *testing.T, fingerprint string) []byte {
	t.Helper()
	data, err := json.Marshal(analytics.IndexEvent{
		Type:        analytics.EventIndexBuild,
		BuildID:     "b1",
		Status:      string(indexer.BuildRebuilt),
		Fingerprint: fingerprint,
	})
	require.NoError(t, err)
	return data
}

func TestReloadPicksUpCorpusChanges(t *testing.T) {
	dir, engine, reloader, cache := setup(t)
	before := engine.Stats().Fingerprint

	require.NoError(t, corpus.WriteCollection(dir, "games",
		corpustest.Docs("g", "dungeon crawler", "space trader", "dungeon keeper")))

	outcome, err := reloader.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, indexer.BuildRebuilt, outcome.Status)
	assert.NotEqual(t, before, engine.Stats().Fingerprint)
	assert.Equal(t, 3, engine.Stats().DocumentCount)
	assert.Equal(t, 1, cache.calls)

	df, err := engine.DocumentFrequency(context.Background(), "dungeon")
	require.NoError(t, err)
	assert.Equal(t, 2, df)
}

func TestReloadUnchangedKeepsCache(t *testing.T) {
	_, _, reloader, cache := setup(t)
	outcome, err := reloader.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, indexer.BuildReused, outcome.Status)
	assert.Zero(t, cache.calls)
}

func TestReloadToleratesCacheFailure(t *testing.T) {
	dir, _, reloader, cache := setup(t)
	cache.err = errors.New("redis down")
	require.NoError(t, corpus.WriteCollection(dir, "games", corpustest.Docs("g", "changed")))

	_, err := reloader.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cache.calls)
}

func TestHandleIndexComplete(t *testing.T) {
	dir, engine, reloader, cache := setup(t)
	handle := HandleIndexComplete(reloader)
	ctx := context.Background()

	t.Run("current fingerprint is ignored", func(t *testing.T) {
		require.NoError(t, handle(ctx, []byte("k"), event(t, engine.Stats().Fingerprint)))
		assert.Zero(t, cache.calls)
	})

	t.Run("garbage is acknowledged", func(t *testing.T) {
		require.NoError(t, handle(ctx, []byte("k"), []byte("{")))
		assert.Zero(t, cache.calls)
	})

	t.Run("new fingerprint reloads", func(t *testing.T) {
		require.NoError(t, corpus.WriteCollection(dir, "games", corpustest.Docs("g", "brand new text")))
		require.NoError(t, handle(ctx, []byte("k"), event(t, "elsewhere")))
		assert.Equal(t, 1, cache.calls)
		assert.Equal(t, 1, engine.Stats().DocumentCount)
	})
}

func TestHandleIndexCompleteReportsBuildFailure(t *testing.T) {
	_, _, reloader, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := HandleIndexComplete(reloader)(ctx, nil, event(t, "other"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
