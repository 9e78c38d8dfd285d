package index

import "time"

// DocKey identifies a document by its collection and its position within
// that collection. Keys order by collection name, then position.
type DocKey struct {
	Collection string `json:"collection"`
	Index      int    `json:"index"`
}

// Less reports whether k orders before other.
func (k DocKey) Less(other DocKey) bool {
	if k.Collection != other.Collection {
		return k.Collection < other.Collection
	}
	return k.Index < other.Index
}

// DocumentRef points at a document and records its normalized length.
type DocumentRef struct {
	Collection string `json:"c"`
	Index      int    `json:"i"`
	WordCount  int    `json:"w"`
}

func (d DocumentRef) Key() DocKey {
	return DocKey{Collection: d.Collection, Index: d.Index}
}

// Posting links a term to one document. DocLength is the document's word
// count, carried along so scoring needs no second lookup.
type Posting struct {
	Collection string `json:"c"`
	Index      int    `json:"i"`
	Frequency  int    `json:"f"`
	DocLength  int    `json:"w"`
}

func (p Posting) Key() DocKey {
	return DocKey{Collection: p.Collection, Index: p.Index}
}

type PostingList []Posting

// TermEntry is one lexicon row with its postings.
type TermEntry struct {
	Term                string      `json:"term"`
	CollectionFrequency int         `json:"collection_frequency"`
	Postings            PostingList `json:"postings"`
}

// CorpusStats describes the corpus the persisted index was built from.
type CorpusStats struct {
	DocumentCount         int       `json:"document_count"`
	AverageDocumentLength float64   `json:"average_document_length"`
	Fingerprint           string    `json:"fingerprint"`
	BuiltAt               time.Time `json:"built_at"`
}

// Valid reports whether the stats describe a usable non-empty index.
func (s CorpusStats) Valid() bool {
	return s.DocumentCount > 0 && s.AverageDocumentLength > 0 && s.Fingerprint != ""
}

// Snapshot is a complete index ready to be written to a store in one go.
// Documents are in build order and Lexicon is sorted by term.
type Snapshot struct {
	Stats     CorpusStats
	Documents []DocumentRef
	Lexicon   []TermEntry
}

// PostingCount returns the total number of postings in the snapshot.
func (s *Snapshot) PostingCount() int {
	n := 0
	for _, entry := range s.Lexicon {
		n += len(entry.Postings)
	}
	return n
}
