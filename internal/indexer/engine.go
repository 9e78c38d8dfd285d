package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/metrics"
)

const (
	progressEvery    = 250
	fetchConcurrency = 4
)

type BuildStatus string

const (
	// BuildEmpty means the corpus had no documents; the engine answers
	// every query with nothing and the store is left untouched.
	BuildEmpty BuildStatus = "empty"
	// BuildReused means the persisted index matched the corpus fingerprint.
	BuildReused BuildStatus = "reused"
	// BuildRebuilt means the index was recomputed and persisted.
	BuildRebuilt BuildStatus = "rebuilt"
)

// BuildOutcome summarises one Build call.
type BuildOutcome struct {
	BuildID  string            `json:"build_id"`
	Status   BuildStatus       `json:"status"`
	Stats    index.CorpusStats `json:"stats"`
	Terms    int               `json:"terms"`
	Postings int               `json:"postings"`
	Skipped  int               `json:"skipped"`
	Duration time.Duration     `json:"duration"`
}

// Engine owns the index: it builds or reuses the persisted index for a
// corpus, then serves read-only lookups against it. Build must not run
// concurrently with queries; everything else is safe for concurrent use.
type Engine struct {
	store   store.Store
	source  corpus.Source
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu    sync.RWMutex
	stats index.CorpusStats
}

type Option func(*Engine)

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates an engine over st. Documents are resolved through src.
func NewEngine(st store.Store, src corpus.Source, opts ...Option) *Engine {
	e := &Engine{
		store:  st,
		source: src,
		logger: slog.Default().With("component", "indexer"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Build makes the engine serve an index of c, reusing the persisted index
// when its fingerprint matches and rebuilding it otherwise.
func (e *Engine) Build(ctx context.Context, c *corpus.Corpus) (*BuildOutcome, error) {
	start := time.Now()
	outcome := &BuildOutcome{
		BuildID: uuid.NewString(),
		Skipped: c.Skipped,
	}
	logger := e.logger.With("build_id", outcome.BuildID)

	err := e.build(ctx, c, outcome, logger)
	outcome.Duration = time.Since(start)
	e.record(outcome, err)
	if err != nil {
		logger.Error("index build failed", "error", err)
		return nil, err
	}
	logger.Info("index ready",
		"status", outcome.Status,
		"documents", outcome.Stats.DocumentCount,
		"avg_doc_length", outcome.Stats.AverageDocumentLength,
		"terms", outcome.Terms,
		"postings", outcome.Postings,
		"skipped", outcome.Skipped,
		"duration_ms", outcome.Duration.Milliseconds(),
	)
	return outcome, nil
}

func (e *Engine) build(ctx context.Context, c *corpus.Corpus, outcome *BuildOutcome, logger *slog.Logger) error {
	if c.Empty() {
		logger.Warn("index left empty", "reason", apperrors.ErrEmptyCorpus)
		e.setStats(index.CorpusStats{})
		outcome.Status = BuildEmpty
		return nil
	}

	fingerprint, err := corpus.Fingerprint(c)
	if err != nil {
		return fmt.Errorf("fingerprinting corpus: %w", err)
	}

	persisted, err := e.store.LoadStats(ctx)
	switch {
	case err == nil && persisted.Fingerprint == fingerprint:
		logger.Info("persisted index matches corpus, reusing", "fingerprint", fingerprint)
		e.setStats(persisted)
		outcome.Status = BuildReused
		outcome.Stats = persisted
		if sum, err := e.store.Summary(ctx); err != nil {
			logger.Warn("reading store summary", "error", err)
		} else {
			outcome.Terms, outcome.Postings = sum.Terms, sum.Postings
		}
		return nil
	case err == nil:
		logger.Info("corpus changed, rebuilding",
			"persisted_fingerprint", persisted.Fingerprint,
			"fingerprint", fingerprint,
		)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("loading persisted stats: %w", err)
	case errors.Is(err, apperrors.ErrPersistedStateUnavailable):
		logger.Info("no usable persisted index, rebuilding", "reason", err)
	default:
		// Anything the store cannot vouch for is rebuilt from the corpus.
		logger.Warn("persisted stats unreadable, rebuilding", "error", err)
	}

	snap, err := e.index(ctx, c, fingerprint, logger)
	if err != nil {
		return err
	}
	if err := e.store.Replace(ctx, snap); err != nil {
		return fmt.Errorf("persisting index: %w", err)
	}
	e.setStats(snap.Stats)
	outcome.Status = BuildRebuilt
	outcome.Stats = snap.Stats
	outcome.Terms = len(snap.Lexicon)
	outcome.Postings = snap.PostingCount()
	return nil
}

func (e *Engine) index(ctx context.Context, c *corpus.Corpus, fingerprint string, logger *slog.Logger) (*index.Snapshot, error) {
	b := index.NewBuilder()
	for _, col := range c.Collections {
		for i := range col.Documents {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			terms := tokenizer.Normalize(col.Documents[i].Metadata.Text)
			if err := b.AddDocument(col.Name, i, terms); err != nil {
				return nil, fmt.Errorf("indexing document: %w", err)
			}
			if (i+1)%progressEvery == 0 {
				logger.Info("indexing progress",
					"collection", col.Name,
					"indexed", i+1,
					"total", len(col.Documents),
				)
			}
		}
		logger.Debug("collection indexed", "collection", col.Name, "documents", len(col.Documents))
	}
	if e.metrics != nil {
		e.metrics.DocsIndexedTotal.Add(float64(b.DocumentCount()))
	}
	return b.Snapshot(fingerprint), nil
}

func (e *Engine) record(outcome *BuildOutcome, err error) {
	if e.metrics == nil {
		return
	}
	status := string(outcome.Status)
	if err != nil {
		status = "error"
	}
	e.metrics.IndexBuildsTotal.WithLabelValues(status).Inc()
	e.metrics.IndexBuildDuration.Observe(outcome.Duration.Seconds())
	e.metrics.MalformedDocsTotal.Add(float64(outcome.Skipped))
	if err == nil {
		e.metrics.IndexDocuments.Set(float64(outcome.Stats.DocumentCount))
		e.metrics.IndexTerms.Set(float64(outcome.Terms))
		e.metrics.IndexPostings.Set(float64(outcome.Postings))
	}
}

func (e *Engine) setStats(stats index.CorpusStats) {
	e.mu.Lock()
	e.stats = stats
	e.mu.Unlock()
}

// Stats returns the stats of the active index; zero until Build succeeds.
func (e *Engine) Stats() index.CorpusStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

func (e *Engine) empty() bool {
	return e.Stats().DocumentCount == 0
}

// DocumentFrequency is the number of distinct documents containing term.
func (e *Engine) DocumentFrequency(ctx context.Context, term string) (int, error) {
	if e.empty() {
		return 0, nil
	}
	return e.store.DocumentFrequency(ctx, term)
}

// Postings returns the postings of term sorted by DocKey.
func (e *Engine) Postings(ctx context.Context, term string) (index.PostingList, error) {
	if e.empty() {
		return nil, nil
	}
	postings, err := e.store.Postings(ctx, term)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(postings, func(i, j int) bool {
		return postings[i].Key().Less(postings[j].Key())
	})
	return postings, nil
}

// FetchDocuments resolves keys to documents in input order. Each distinct
// collection is read once. Keys that are out of range, or whose collection
// cannot be read, resolve to nil.
func (e *Engine) FetchDocuments(ctx context.Context, keys []index.DocKey) ([]*corpus.Document, error) {
	out := make([]*corpus.Document, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	positions := make(map[string][]int)
	for i, key := range keys {
		positions[key.Collection] = append(positions[key.Collection], i)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for name, idxs := range positions {
		g.Go(func() error {
			docs, _, err := e.source.ReadCollection(gctx, name)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				e.logger.Warn("collection unreadable, documents unresolved",
					"collection", name,
					"error", err,
				)
				return nil
			}
			for _, i := range idxs {
				local := keys[i].Index
				if local < 0 || local >= len(docs) {
					e.logger.Warn("document reference out of range",
						"collection", name,
						"index", local,
						"size", len(docs),
					)
					continue
				}
				doc := docs[local]
				out[i] = &doc
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetching documents: %w", err)
	}
	return out, nil
}

// Summary reports the row counts of the persisted index.
func (e *Engine) Summary(ctx context.Context) (store.Summary, error) {
	return e.store.Summary(ctx)
}

func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}

func (e *Engine) Close() error {
	return e.store.Close()
}
