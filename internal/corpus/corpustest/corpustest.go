// Package corpustest builds documents and collection directories for tests.
package corpustest

import (
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/corpus"
)

// Doc returns a valid document whose indexed text is text.
func Doc(id, text string) corpus.Document {
	return corpus.Document{
		ID: id,
		Source: corpus.Origin{
			Name: "test",
			URL:  fmt.Sprintf("https://example.com/%s", id),
		},
		Metadata: corpus.Metadata{
			Title:  "title " + id,
			Author: "tester",
			Text:   text,
		},
	}
}

// Docs returns one valid document per text, with ids prefix-0, prefix-1...
func Docs(prefix string, texts ...string) []corpus.Document {
	docs := make([]corpus.Document, len(texts))
	for i, text := range texts {
		docs[i] = Doc(fmt.Sprintf("%s-%d", prefix, i), text)
	}
	return docs
}

// WriteDir writes each collection to a fresh temp directory and returns it.
func WriteDir(t testing.TB, collections map[string][]corpus.Document) string {
	t.Helper()
	dir := t.TempDir()
	for name, docs := range collections {
		if err := corpus.WriteCollection(dir, name, docs); err != nil {
			t.Fatalf("writing collection %s: %v", name, err)
		}
	}
	return dir
}
