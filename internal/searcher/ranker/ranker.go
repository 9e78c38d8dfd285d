// Package ranker scores documents against a query with Okapi BM25 and keeps
// the best K in a bounded, descending list.
package ranker

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/indexer/index"
)

// Params are the BM25 tuning constants.
type Params struct {
	K1 float64
	B  float64
}

var DefaultParams = Params{K1: 1.2, B: 0.75}

// IndexReader is the part of the index the scorer reads from.
type IndexReader interface {
	Stats() index.CorpusStats
	DocumentFrequency(ctx context.Context, term string) (int, error)
	// Postings must return entries in ascending DocKey order.
	Postings(ctx context.Context, term string) (index.PostingList, error)
	FetchDocuments(ctx context.Context, keys []index.DocKey) ([]*corpus.Document, error)
}

type ScoredDoc struct {
	Key   index.DocKey `json:"key"`
	Score float64      `json:"score"`
}

// Match is a ranked document resolved to its content.
type Match struct {
	Key      index.DocKey     `json:"key"`
	Score    float64          `json:"score"`
	Document *corpus.Document `json:"document"`
}

// IDF is ln((n - df + 0.5) / (df + 0.5) + 1). The +1 keeps it positive
// even for terms present in every document.
func IDF(n, df int) float64 {
	return math.Log((float64(n)-float64(df)+0.5)/(float64(df)+0.5) + 1)
}

// TermScore is the BM25 contribution of one term occurrence count in one
// document.
func TermScore(idf float64, freq, docLen int, avgLen float64, p Params) float64 {
	if avgLen <= 0 {
		return 0
	}
	f := float64(freq)
	norm := f + p.K1*(1-p.B+p.B*float64(docLen)/avgLen)
	return idf * f * (p.K1 + 1) / norm
}

type Scorer struct {
	index  IndexReader
	params Params
	logger *slog.Logger
}

func NewScorer(idx IndexReader, params Params) *Scorer {
	return &Scorer{
		index:  idx,
		params: params,
		logger: slog.Default().With("component", "ranker"),
	}
}

func (s *Scorer) Params() Params {
	return s.params
}

// IDF returns the inverse document frequency of term in the active index.
func (s *Scorer) IDF(ctx context.Context, term string) (float64, error) {
	df, err := s.index.DocumentFrequency(ctx, term)
	if err != nil {
		return 0, fmt.Errorf("document frequency of %q: %w", term, err)
	}
	return IDF(s.index.Stats().DocumentCount, df), nil
}

// Rank scores every document sharing at least one term with terms and
// returns the best k, highest score first. A term repeated in the query
// contributes once per occurrence. Unknown terms contribute nothing.
func (s *Scorer) Rank(ctx context.Context, terms []string, k int) ([]ScoredDoc, error) {
	stats := s.index.Stats()
	if k <= 0 || len(terms) == 0 || stats.DocumentCount == 0 {
		return []ScoredDoc{}, nil
	}

	scores := make(map[index.DocKey]float64)
	var order []index.DocKey
	for _, term := range terms {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		postings, err := s.index.Postings(ctx, term)
		if err != nil {
			return nil, fmt.Errorf("postings of %q: %w", term, err)
		}
		if len(postings) == 0 {
			continue
		}
		idf := IDF(stats.DocumentCount, len(postings))
		for _, p := range postings {
			key := p.Key()
			if _, seen := scores[key]; !seen {
				order = append(order, key)
			}
			scores[key] += TermScore(idf, p.Frequency, p.DocLength, stats.AverageDocumentLength, s.params)
		}
	}

	top := NewTopK(k)
	for _, key := range order {
		top.Offer(key, scores[key])
	}
	return top.Results(), nil
}

// Query ranks terms and resolves the winners to documents, keeping ranked
// order. Documents that can no longer be resolved are dropped.
func (s *Scorer) Query(ctx context.Context, terms []string, k int) ([]Match, error) {
	ranked, err := s.Rank(ctx, terms, k)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		s.logger.Info("no matches", "terms", terms)
		return []Match{}, nil
	}

	keys := make([]index.DocKey, len(ranked))
	for i, r := range ranked {
		keys[i] = r.Key
	}
	docs, err := s.index.FetchDocuments(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("resolving ranked documents: %w", err)
	}

	matches := make([]Match, 0, len(ranked))
	for i, r := range ranked {
		if docs[i] == nil {
			s.logger.Warn("ranked document unresolvable, dropping",
				"collection", r.Key.Collection,
				"index", r.Key.Index,
			)
			continue
		}
		matches = append(matches, Match{Key: r.Key, Score: r.Score, Document: docs[i]})
	}
	return matches, nil
}
