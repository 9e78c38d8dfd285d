package store

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/sqlite"
)

type factory func(t *testing.T) Store

func backends() map[string]factory {
	return map[string]factory{
		"memory": func(t *testing.T) Store {
			return NewMemory()
		},
		"sqlite": func(t *testing.T) Store {
			return newTestSQLite(t, filepath.Join(t.TempDir(), "index.db"))
		},
		"segment": func(t *testing.T) Store {
			s, err := NewSegment(filepath.Join(t.TempDir(), SegmentFile))
			require.NoError(t, err)
			return s
		},
	}
}

func newTestSQLite(t *testing.T, path string) *SQLStore {
	t.Helper()
	ctx := context.Background()
	client, err := sqlite.New(ctx, config.SQLiteConfig{Path: path, BusyTimeout: time.Second})
	require.NoError(t, err)
	s, err := NewSQLite(ctx, client)
	require.NoError(t, err)
	return s
}

func animals(t *testing.T, fingerprint string) *index.Snapshot {
	t.Helper()
	b := index.NewBuilder()
	require.NoError(t, b.AddDocument("games", 0, []string{"cat", "dog", "cat"}))
	require.NoError(t, b.AddDocument("games", 1, []string{"dog", "bird"}))
	require.NoError(t, b.AddDocument("games", 2, []string{"cat", "bird", "bird"}))
	return b.Snapshot(fingerprint)
}

func TestStoreContract(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)
			defer s.Close()

			t.Run("empty store has no stats", func(t *testing.T) {
				_, err := s.LoadStats(ctx)
				assert.ErrorIs(t, err, apperrors.ErrPersistedStateUnavailable)
				df, err := s.DocumentFrequency(ctx, "cat")
				require.NoError(t, err)
				assert.Zero(t, df)
			})

			snap := animals(t, "fp-1")
			require.NoError(t, s.Replace(ctx, snap))

			t.Run("stats round trip", func(t *testing.T) {
				stats, err := s.LoadStats(ctx)
				require.NoError(t, err)
				assert.Equal(t, 3, stats.DocumentCount)
				assert.InDelta(t, 8.0/3.0, stats.AverageDocumentLength, 1e-12)
				assert.Equal(t, "fp-1", stats.Fingerprint)
				assert.WithinDuration(t, snap.Stats.BuiltAt, stats.BuiltAt, time.Microsecond)
			})

			t.Run("postings round trip", func(t *testing.T) {
				for _, entry := range snap.Lexicon {
					postings, err := s.Postings(ctx, entry.Term)
					require.NoError(t, err)
					assert.ElementsMatch(t, entry.Postings, postings, "term %s", entry.Term)

					df, err := s.DocumentFrequency(ctx, entry.Term)
					require.NoError(t, err)
					assert.Equal(t, len(entry.Postings), df)
				}
			})

			t.Run("unknown term", func(t *testing.T) {
				postings, err := s.Postings(ctx, "zebra")
				require.NoError(t, err)
				assert.Empty(t, postings)
			})

			t.Run("summary", func(t *testing.T) {
				sum, err := s.Summary(ctx)
				require.NoError(t, err)
				assert.Equal(t, name, sum.Driver)
				assert.Equal(t, 3, sum.Terms)
				assert.Equal(t, 3, sum.Documents)
				assert.Equal(t, 6, sum.Postings)
			})

			t.Run("replace discards previous contents", func(t *testing.T) {
				b := index.NewBuilder()
				require.NoError(t, b.AddDocument("apps", 0, []string{"zebra", "zebra"}))
				require.NoError(t, s.Replace(ctx, b.Snapshot("fp-2")))

				stats, err := s.LoadStats(ctx)
				require.NoError(t, err)
				assert.Equal(t, "fp-2", stats.Fingerprint)
				assert.Equal(t, 1, stats.DocumentCount)

				df, err := s.DocumentFrequency(ctx, "cat")
				require.NoError(t, err)
				assert.Zero(t, df)

				postings, err := s.Postings(ctx, "zebra")
				require.NoError(t, err)
				assert.Equal(t, index.PostingList{{Collection: "apps", Index: 0, Frequency: 2, DocLength: 2}}, postings)
			})

			assert.NoError(t, s.Ping(ctx))
		})
	}
}

func TestStoreRejectsIncompleteStats(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)
			defer s.Close()

			b := index.NewBuilder()
			require.NoError(t, b.AddDocument("games", 0, nil))
			require.NoError(t, s.Replace(ctx, b.Snapshot("fp")))

			_, err := s.LoadStats(ctx)
			assert.ErrorIs(t, err, apperrors.ErrPersistedStateUnavailable)
		})
	}
}

func TestSQLitePostingsOrderedByDocKey(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t, filepath.Join(t.TempDir(), "index.db"))
	defer s.Close()

	snap := &index.Snapshot{
		Stats: index.CorpusStats{DocumentCount: 3, AverageDocumentLength: 1, Fingerprint: "fp", BuiltAt: time.Now()},
		Documents: []index.DocumentRef{
			{Collection: "steam", Index: 0, WordCount: 1},
			{Collection: "itch", Index: 1, WordCount: 1},
			{Collection: "Itch", Index: 0, WordCount: 1},
		},
		Lexicon: []index.TermEntry{{
			Term:                "rpg",
			CollectionFrequency: 3,
			Postings: index.PostingList{
				{Collection: "steam", Index: 0, Frequency: 1, DocLength: 1},
				{Collection: "itch", Index: 1, Frequency: 1, DocLength: 1},
				{Collection: "Itch", Index: 0, Frequency: 1, DocLength: 1},
			},
		}},
	}
	require.NoError(t, s.Replace(ctx, snap))

	postings, err := s.Postings(ctx, "rpg")
	require.NoError(t, err)
	keys := make([]index.DocKey, 0, len(postings))
	for _, p := range postings {
		keys = append(keys, p.Key())
	}
	assert.Equal(t, []index.DocKey{{Collection: "Itch", Index: 0}, {Collection: "itch", Index: 1}, {Collection: "steam", Index: 0}}, keys)
}

func TestSQLiteReplaceIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t, filepath.Join(t.TempDir(), "index.db"))
	defer s.Close()

	require.NoError(t, s.Replace(ctx, animals(t, "fp-good")))

	bad := animals(t, "fp-bad")
	bad.Lexicon = append(bad.Lexicon, bad.Lexicon[0])
	err := s.Replace(ctx, bad)
	require.Error(t, err)

	stats, err := s.LoadStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fp-good", stats.Fingerprint, "failed replace must leave the previous index intact")

	sum, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Terms)
	assert.Equal(t, 6, sum.Postings)
}

func TestSQLiteReplaceRejectsDanglingPosting(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t, filepath.Join(t.TempDir(), "index.db"))
	defer s.Close()

	snap := animals(t, "fp")
	snap.Documents = snap.Documents[:1]
	assert.Error(t, s.Replace(ctx, snap))

	_, err := s.LoadStats(ctx)
	assert.ErrorIs(t, err, apperrors.ErrPersistedStateUnavailable)
}

func TestSQLiteReopenKeepsIndex(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")

	s := newTestSQLite(t, path)
	require.NoError(t, s.Replace(ctx, animals(t, "fp-persisted")))
	require.NoError(t, s.Close())

	reopened := newTestSQLite(t, path)
	defer reopened.Close()
	stats, err := reopened.LoadStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fp-persisted", stats.Fingerprint)
}

func TestSegmentReopenKeepsIndex(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), SegmentFile)

	s, err := NewSegment(path)
	require.NoError(t, err)
	require.NoError(t, s.Replace(ctx, animals(t, "fp-persisted")))
	require.NoError(t, s.Close())

	reopened, err := NewSegment(path)
	require.NoError(t, err)
	defer reopened.Close()
	stats, err := reopened.LoadStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fp-persisted", stats.Fingerprint)
}

func TestSegmentCorruptHeaderForcesRebuild(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), SegmentFile)

	// valid magic and version, but a negative dictionary size
	header := make([]byte, segment.HeaderSize+segment.FooterSize)
	binary.LittleEndian.PutUint32(header[0:4], segment.MagicBytes)
	binary.LittleEndian.PutUint32(header[4:8], segment.FormatVersion)
	binary.LittleEndian.PutUint64(header[24:32], uint64(segment.HeaderSize))
	binary.LittleEndian.PutUint64(header[40:48], uint64(segment.HeaderSize))
	binary.LittleEndian.PutUint64(header[48:56], ^uint64(0))
	binary.LittleEndian.PutUint64(header[72:80], uint64(segment.HeaderSize))
	require.NoError(t, os.WriteFile(path, header, 0o644))

	var s *SegmentStore
	var err error
	require.NotPanics(t, func() { s, err = NewSegment(path) })
	require.NoError(t, err)
	defer s.Close()

	_, err = s.LoadStats(ctx)
	assert.ErrorIs(t, err, apperrors.ErrPersistedStateUnavailable)

	require.NoError(t, s.Replace(ctx, animals(t, "fp-rebuilt")))
	stats, err := s.LoadStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fp-rebuilt", stats.Fingerprint)
}

func TestMemoryConcurrentReadsDuringReplace(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Replace(ctx, animals(t, "fp-1")))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				postings, err := s.Postings(ctx, "cat")
				assert.NoError(t, err)
				assert.Len(t, postings, 2)
			}
		}()
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Replace(ctx, animals(t, "fp-1")))
	}
	wg.Wait()
}

func TestRebind(t *testing.T) {
	q := "SELECT a FROM t WHERE x = ? AND y = ?"
	assert.Equal(t, q, sqliteDialect.rebind(q))
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", postgresDialect.rebind(q))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		s, err := Open(ctx, &config.Config{Store: config.StoreConfig{Driver: config.DriverMemory}})
		require.NoError(t, err)
		assert.IsType(t, &MemoryStore{}, s)
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := &config.Config{
			Store:  config.StoreConfig{Driver: config.DriverSQLite},
			SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "nested", "index.db")},
		}
		s, err := Open(ctx, cfg)
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &SQLStore{}, s)
	})

	t.Run("segment", func(t *testing.T) {
		cfg := &config.Config{Store: config.StoreConfig{Driver: config.DriverSegment, DataDir: t.TempDir()}}
		s, err := Open(ctx, cfg)
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &SegmentStore{}, s)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := Open(ctx, &config.Config{Store: config.StoreConfig{Driver: "oracle"}})
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrStoreUnavailable))
	})
}
