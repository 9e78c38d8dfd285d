// Package consumer keeps a serving engine in step with index builds made
// elsewhere: it reacts to index.complete events by reloading the corpus,
// rebuilding or reusing the persisted index and dropping cached results.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/kafka"
)

type Builder interface {
	Build(ctx context.Context, c *corpus.Corpus) (*indexer.BuildOutcome, error)
	Stats() index.CorpusStats
}

// Invalidator drops cached search results.
type Invalidator interface {
	Invalidate(ctx context.Context) (int64, error)
}

// Reloader serializes reloads of one engine.
type Reloader struct {
	engine Builder
	source corpus.Source
	cache  Invalidator
	mu     sync.Mutex
	logger *slog.Logger
}

// NewReloader returns a Reloader. cache may be nil.
func NewReloader(engine Builder, src corpus.Source, cache Invalidator) *Reloader {
	return &Reloader{
		engine: engine,
		source: src,
		cache:  cache,
		logger: slog.Default().With("component", "index-reloader"),
	}
}

// Reload re-reads the corpus and builds it. Cached results are invalidated
// whenever the served fingerprint changes.
func (r *Reloader) Reload(ctx context.Context) (*indexer.BuildOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := r.engine.Stats().Fingerprint
	c, err := corpus.Load(ctx, r.source)
	if err != nil {
		return nil, fmt.Errorf("reloading corpus: %w", err)
	}
	outcome, err := r.engine.Build(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("rebuilding index: %w", err)
	}
	if outcome.Stats.Fingerprint != before && r.cache != nil {
		deleted, err := r.cache.Invalidate(ctx)
		if err != nil {
			r.logger.Warn("cache invalidation after reload failed", "error", err)
		} else {
			r.logger.Info("cache invalidated after reload", "keys_deleted", deleted)
		}
	}
	r.logger.Info("index reloaded",
		"build_id", outcome.BuildID,
		"status", outcome.Status,
		"previous_fingerprint", before,
		"fingerprint", outcome.Stats.Fingerprint,
	)
	return outcome, nil
}

// HandleIndexComplete returns a Kafka MessageHandler for index.complete
// events. Events for the fingerprint already being served are ignored;
// undecodable events are logged and acknowledged.
func HandleIndexComplete(r *Reloader) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[analytics.IndexEvent](value)
		if err != nil {
			r.logger.Error("failed to decode index.complete event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		if event.Fingerprint != "" && event.Fingerprint == r.engine.Stats().Fingerprint {
			r.logger.Debug("index already current", "build_id", event.BuildID, "fingerprint", event.Fingerprint)
			return nil
		}
		r.logger.Info("index.complete received",
			"build_id", event.BuildID,
			"status", event.Status,
			"fingerprint", event.Fingerprint,
		)
		if _, err := r.Reload(ctx); err != nil {
			return fmt.Errorf("handling index.complete %s: %w", event.BuildID, err)
		}
		return nil
	}
}
