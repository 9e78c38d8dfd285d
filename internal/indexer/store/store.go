// Package store persists the inverted index: corpus stats, document refs,
// the lexicon and its postings. Every backend replaces its contents
// atomically, so readers see either the previous index or the new one.
package store

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/sqlite"
)

// SegmentFile is the file name the segment backend keeps under its data dir.
const SegmentFile = "index.spdx"

// Store is the durable home of the index.
type Store interface {
	// LoadStats returns the stats of the persisted index. It fails with
	// apperrors.ErrPersistedStateUnavailable when there is no usable index.
	// Callers rebuild on any error other than a context error, so an
	// implementation need not wrap the sentinel for I/O failures.
	LoadStats(ctx context.Context) (index.CorpusStats, error)
	// Replace discards the current contents and writes snap in their place
	// as one atomic step.
	Replace(ctx context.Context, snap *index.Snapshot) error
	// DocumentFrequency is the number of distinct documents containing
	// term; 0 when the term is unknown.
	DocumentFrequency(ctx context.Context, term string) (int, error)
	// Postings returns the postings of term, empty when unknown. Order is
	// not guaranteed.
	Postings(ctx context.Context, term string) (index.PostingList, error)
	Summary(ctx context.Context) (Summary, error)
	Ping(ctx context.Context) error
	Close() error
}

// Summary counts the rows of a persisted index.
type Summary struct {
	Driver    string `json:"driver"`
	Terms     int    `json:"terms"`
	Documents int    `json:"documents"`
	Postings  int    `json:"postings"`
}

// Open connects to the backend selected by cfg.Store.Driver. Any failure
// matches apperrors.ErrStoreUnavailable.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		var client *sqlite.Client
		client, err = sqlite.New(ctx, cfg.SQLite)
		if err == nil {
			s, err = NewSQLite(ctx, client)
		}
	case config.DriverPostgres:
		var client *postgres.Client
		client, err = postgres.New(ctx, cfg.Postgres)
		if err == nil {
			s, err = NewPostgres(ctx, client)
		}
	case config.DriverSegment:
		s, err = NewSegment(filepath.Join(cfg.Store.DataDir, SegmentFile))
	case config.DriverMemory:
		s = NewMemory()
	default:
		err = fmt.Errorf("unknown driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrStoreUnavailable, cfg.Store.Driver, err)
	}
	return s, nil
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", apperrors.ErrPersistedStateUnavailable, fmt.Sprintf(format, args...))
}
