package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const collectionExt = ".json"

// Source enumerates collections and reads them back. Collections must come
// back sorted by name and documents in a stable order, so that positions
// recorded at build time resolve to the same documents later.
type Source interface {
	Collections(ctx context.Context) ([]string, error)
	// ReadCollection returns the valid documents of a collection and the
	// records that were skipped as malformed. An error means the collection
	// as a whole could not be read.
	ReadCollection(ctx context.Context, name string) ([]Document, []*MalformedDocumentError, error)
}

// DirSource reads collections from JSON files in a directory.
type DirSource struct {
	dir    string
	logger *slog.Logger
}

func NewDirSource(dir string) *DirSource {
	return &DirSource{
		dir:    dir,
		logger: slog.Default().With("component", "corpus-source", "dir", dir),
	}
}

// Collections lists the collection names (file stems) in sorted order. A
// missing directory yields no collections.
func (s *DirSource) Collections(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Warn("collection directory not found")
			return nil, nil
		}
		return nil, fmt.Errorf("reading collection directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), collectionExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), collectionExt))
	}
	sort.Strings(names)
	return names, nil
}

func (s *DirSource) ReadCollection(ctx context.Context, name string) ([]Document, []*MalformedDocumentError, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	path := filepath.Join(s.dir, name+collectionExt)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading collection %s: %w", name, err)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, nil, fmt.Errorf("parsing collection %s: expected a JSON array: %w", name, err)
	}

	docs := make([]Document, 0, len(items))
	var malformed []*MalformedDocumentError
	for pos, item := range items {
		doc, err := Decode(item)
		if err != nil {
			malformed = append(malformed, &MalformedDocumentError{Collection: name, Position: pos, Err: err})
			continue
		}
		docs = append(docs, doc)
	}
	return docs, malformed, nil
}

// WriteCollection stores docs as <dir>/<name>.json, replacing any existing
// file.
func WriteCollection(dir, name string, docs []Document) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating collection directory: %w", err)
	}
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling collection %s: %w", name, err)
	}
	path := filepath.Join(dir, name+collectionExt)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing collection %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming collection %s: %w", name, err)
	}
	return nil
}

// MemorySource serves an already loaded corpus.
type MemorySource struct {
	byName map[string][]Document
	names  []string
}

func NewMemorySource(c *Corpus) *MemorySource {
	s := &MemorySource{byName: make(map[string][]Document, len(c.Collections))}
	for _, col := range c.Collections {
		s.byName[col.Name] = col.Documents
		s.names = append(s.names, col.Name)
	}
	return s
}

func (s *MemorySource) Collections(ctx context.Context) ([]string, error) {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out, nil
}

func (s *MemorySource) ReadCollection(ctx context.Context, name string) ([]Document, []*MalformedDocumentError, error) {
	docs, ok := s.byName[name]
	if !ok {
		return nil, nil, fmt.Errorf("collection %s: %w", name, os.ErrNotExist)
	}
	return docs, nil, nil
}
