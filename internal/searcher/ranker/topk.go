package ranker

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/indexer/index"
)

// TopK keeps at most k candidates in descending score order. Equal scores
// order by the smaller DocKey, so the result does not depend on the order
// candidates are offered in.
type TopK struct {
	k     int
	items []ScoredDoc
}

func NewTopK(k int) *TopK {
	if k < 0 {
		k = 0
	}
	return &TopK{k: k, items: make([]ScoredDoc, 0, k)}
}

// ranks reports whether a orders before b.
func ranks(a, b ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Key.Less(b.Key)
}

// Offer inserts the candidate at its sorted position when the list has
// room or the candidate outranks the current minimum, which then falls off.
func (t *TopK) Offer(key index.DocKey, score float64) {
	if t.k == 0 {
		return
	}
	cand := ScoredDoc{Key: key, Score: score}
	n := len(t.items)
	if n == t.k && !ranks(cand, t.items[n-1]) {
		return
	}
	pos := sort.Search(n, func(i int) bool {
		return ranks(cand, t.items[i])
	})
	if n < t.k {
		t.items = append(t.items, ScoredDoc{})
	}
	copy(t.items[pos+1:], t.items[pos:])
	t.items[pos] = cand
}

func (t *TopK) Len() int {
	return len(t.items)
}

// Results returns a copy of the list, best first.
func (t *TopK) Results() []ScoredDoc {
	out := make([]ScoredDoc, len(t.items))
	copy(out, t.items)
	return out
}
