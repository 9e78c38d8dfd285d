package index

import (
	"fmt"
	"sort"
	"time"
)

// Builder accumulates the lexicon, postings and document refs of a full
// corpus pass. It is not safe for concurrent use.
type Builder struct {
	lexicon    map[string]*TermEntry
	documents  []DocumentRef
	seen       map[DocKey]struct{}
	totalWords int64
}

func NewBuilder() *Builder {
	return &Builder{
		lexicon: make(map[string]*TermEntry),
		seen:    make(map[DocKey]struct{}),
	}
}

// AddDocument records one document given its normalized terms. Repeated
// terms accumulate into a single posting.
func (b *Builder) AddDocument(collection string, localIndex int, terms []string) error {
	key := DocKey{Collection: collection, Index: localIndex}
	if _, dup := b.seen[key]; dup {
		return fmt.Errorf("document %s[%d] added twice", collection, localIndex)
	}
	b.seen[key] = struct{}{}

	wordCount := len(terms)
	b.documents = append(b.documents, DocumentRef{
		Collection: collection,
		Index:      localIndex,
		WordCount:  wordCount,
	})
	b.totalWords += int64(wordCount)

	freqs := make(map[string]int, len(terms))
	order := make([]string, 0, len(terms))
	for _, term := range terms {
		if freqs[term] == 0 {
			order = append(order, term)
		}
		freqs[term]++
	}

	for _, term := range order {
		freq := freqs[term]
		entry, exists := b.lexicon[term]
		if !exists {
			entry = &TermEntry{Term: term}
			b.lexicon[term] = entry
		}
		entry.CollectionFrequency += freq
		entry.Postings = append(entry.Postings, Posting{
			Collection: collection,
			Index:      localIndex,
			Frequency:  freq,
			DocLength:  wordCount,
		})
	}
	return nil
}

func (b *Builder) DocumentCount() int {
	return len(b.documents)
}

func (b *Builder) TermCount() int {
	return len(b.lexicon)
}

// AverageDocumentLength is zero until a document has been added.
func (b *Builder) AverageDocumentLength() float64 {
	if len(b.documents) == 0 {
		return 0
	}
	return float64(b.totalWords) / float64(len(b.documents))
}

// Snapshot freezes the accumulated index. Terms are sorted, and every
// posting list is sorted by DocKey.
func (b *Builder) Snapshot(fingerprint string) *Snapshot {
	lexicon := make([]TermEntry, 0, len(b.lexicon))
	for _, entry := range b.lexicon {
		postings := make(PostingList, len(entry.Postings))
		copy(postings, entry.Postings)
		sort.Slice(postings, func(i, j int) bool {
			return postings[i].Key().Less(postings[j].Key())
		})
		lexicon = append(lexicon, TermEntry{
			Term:                entry.Term,
			CollectionFrequency: entry.CollectionFrequency,
			Postings:            postings,
		})
	}
	sort.Slice(lexicon, func(i, j int) bool {
		return lexicon[i].Term < lexicon[j].Term
	})

	documents := make([]DocumentRef, len(b.documents))
	copy(documents, b.documents)

	return &Snapshot{
		Stats: CorpusStats{
			DocumentCount:         len(documents),
			AverageDocumentLength: b.AverageDocumentLength(),
			Fingerprint:           fingerprint,
			BuiltAt:               time.Now().UTC(),
		},
		Documents: documents,
		Lexicon:   lexicon,
	}
}
