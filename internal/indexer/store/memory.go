package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/indexer/index"
)

// MemoryStore holds the index in process memory. It does not survive a
// restart, so every process start rebuilds.
type MemoryStore struct {
	mu       sync.RWMutex
	stats    index.CorpusStats
	terms    map[string]index.TermEntry
	docs     int
	postings int
	loaded   bool
}

func NewMemory() *MemoryStore {
	return &MemoryStore{terms: make(map[string]index.TermEntry)}
}

func (m *MemoryStore) LoadStats(ctx context.Context) (index.CorpusStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.loaded {
		return index.CorpusStats{}, unavailable("memory store is empty")
	}
	if !m.stats.Valid() {
		return index.CorpusStats{}, unavailable("corpus stats are incomplete")
	}
	return m.stats, nil
}

// Replace builds the new term map outside the lock and swaps it in.
func (m *MemoryStore) Replace(ctx context.Context, snap *index.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("cannot persist nil snapshot")
	}
	terms := make(map[string]index.TermEntry, len(snap.Lexicon))
	for _, entry := range snap.Lexicon {
		if _, dup := terms[entry.Term]; dup {
			return fmt.Errorf("duplicate term %q in snapshot", entry.Term)
		}
		postings := make(index.PostingList, len(entry.Postings))
		copy(postings, entry.Postings)
		entry.Postings = postings
		terms[entry.Term] = entry
	}

	m.mu.Lock()
	m.stats = snap.Stats
	m.terms = terms
	m.docs = len(snap.Documents)
	m.postings = snap.PostingCount()
	m.loaded = true
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) DocumentFrequency(ctx context.Context, term string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.terms[term].Postings), nil
}

func (m *MemoryStore) Postings(ctx context.Context, term string) (index.PostingList, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.terms[term]
	if !ok {
		return nil, nil
	}
	out := make(index.PostingList, len(entry.Postings))
	copy(out, entry.Postings)
	return out, nil
}

func (m *MemoryStore) Summary(ctx context.Context) (Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Summary{
		Driver:    "memory",
		Terms:     len(m.terms),
		Documents: m.docs,
		Postings:  m.postings,
	}, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
