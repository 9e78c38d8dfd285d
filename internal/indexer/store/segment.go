package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/indexer/segment"
)

// SegmentStore keeps the whole index in a single segment file. Replace
// writes a new file beside the live one and renames it into place, then
// swaps the open reader.
type SegmentStore struct {
	mu     sync.RWMutex
	path   string
	writer *segment.Writer
	reader *segment.Reader
	logger *slog.Logger
}

// NewSegment opens the segment at path if one exists. A missing or
// unreadable file leaves the store empty until the next Replace.
func NewSegment(path string) (*SegmentStore, error) {
	s := &SegmentStore{
		path:   path,
		writer: segment.NewWriter(),
		logger: slog.Default().With("component", "index-store", "driver", "segment"),
	}
	r, err := segment.OpenReader(path)
	switch {
	case err == nil:
		s.reader = r
		s.logger.Info("segment opened", "path", path, "terms", r.Terms(), "documents", r.DocCount())
	case errors.Is(err, os.ErrNotExist):
		s.logger.Info("no segment on disk", "path", path)
	default:
		s.logger.Warn("ignoring unreadable segment", "path", path, "error", err)
	}
	return s, nil
}

func (s *SegmentStore) LoadStats(ctx context.Context) (index.CorpusStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.reader == nil {
		return index.CorpusStats{}, unavailable("no segment at %s", s.path)
	}
	stats := s.reader.Stats()
	if !stats.Valid() {
		return index.CorpusStats{}, unavailable("corpus stats are incomplete")
	}
	return stats, nil
}

func (s *SegmentStore) Replace(ctx context.Context, snap *index.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.writer.Write(s.path, snap); err != nil {
		return fmt.Errorf("replacing index: %w", err)
	}
	r, err := segment.OpenReader(s.path)
	if err != nil {
		return fmt.Errorf("reopening segment: %w", err)
	}

	s.mu.Lock()
	old := s.reader
	s.reader = r
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	s.logger.Info("index persisted",
		"path", s.path,
		"documents", r.DocCount(),
		"terms", r.Terms(),
		"postings", r.PostingCount(),
	)
	return nil
}

func (s *SegmentStore) DocumentFrequency(ctx context.Context, term string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.reader == nil {
		return 0, nil
	}
	return s.reader.DocumentFrequency(term), nil
}

func (s *SegmentStore) Postings(ctx context.Context, term string) (index.PostingList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.reader == nil {
		return nil, nil
	}
	return s.reader.Search(term)
}

func (s *SegmentStore) Summary(ctx context.Context) (Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := Summary{Driver: "segment"}
	if s.reader != nil {
		sum.Terms = s.reader.Terms()
		sum.Documents = int(s.reader.DocCount())
		sum.Postings = int(s.reader.PostingCount())
	}
	return sum, nil
}

func (s *SegmentStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.reader == nil {
		return nil
	}
	_, err := os.Stat(s.reader.Path())
	return err
}

func (s *SegmentStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reader == nil {
		return nil
	}
	err := s.reader.Close()
	s.reader = nil
	return err
}
