package corpus

import (
	"context"
	"log/slog"
	"sort"
)

// Corpus is the ordered set of non-empty collections an index is built from.
type Corpus struct {
	Collections []Collection
	// Skipped counts records dropped as malformed while loading.
	Skipped int
}

// New assembles a corpus from in-memory collections, sorted by name with
// empty collections dropped.
func New(collections ...Collection) *Corpus {
	kept := make([]Collection, 0, len(collections))
	for _, c := range collections {
		if len(c.Documents) == 0 {
			continue
		}
		kept = append(kept, c)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Name < kept[j].Name
	})
	return &Corpus{Collections: kept}
}

func (c *Corpus) DocumentCount() int {
	n := 0
	for _, col := range c.Collections {
		n += len(col.Documents)
	}
	return n
}

func (c *Corpus) Empty() bool {
	return c.DocumentCount() == 0
}

// Load reads every collection of src. Collections that cannot be read are
// logged and left out; malformed records are logged, skipped and counted.
func Load(ctx context.Context, src Source) (*Corpus, error) {
	logger := slog.Default().With("component", "corpus")

	names, err := src.Collections(ctx)
	if err != nil {
		return nil, err
	}

	collections := make([]Collection, 0, len(names))
	skipped := 0
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		docs, malformed, err := src.ReadCollection(ctx, name)
		if err != nil {
			logger.Error("skipping unreadable collection", "collection", name, "error", err)
			continue
		}
		for _, m := range malformed {
			logger.Warn("skipping malformed document",
				"collection", m.Collection,
				"position", m.Position,
				"error", m.Err,
			)
		}
		skipped += len(malformed)
		if len(docs) == 0 {
			logger.Warn("collection has no documents", "collection", name)
			continue
		}
		logger.Debug("collection loaded", "collection", name, "documents", len(docs))
		collections = append(collections, Collection{Name: name, Documents: docs})
	}

	c := New(collections...)
	c.Skipped = skipped
	logger.Info("corpus loaded",
		"collections", len(c.Collections),
		"documents", c.DocumentCount(),
		"skipped", skipped,
	)
	return c, nil
}
