package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/sqlite"
)

// schema is valid for both SQLite and PostgreSQL.
//
// Document ids follow DocKey order, so ordering postings by document_id
// yields them in (collection, index) order independent of collation.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS corpus_stats (
		id                      INTEGER PRIMARY KEY,
		document_count          INTEGER NOT NULL,
		average_document_length DOUBLE PRECISION NOT NULL,
		fingerprint             TEXT NOT NULL,
		built_at                BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		document_id     INTEGER PRIMARY KEY,
		collection_name TEXT NOT NULL,
		local_index     INTEGER NOT NULL,
		word_count      INTEGER NOT NULL,
		UNIQUE (collection_name, local_index)
	)`,
	`CREATE TABLE IF NOT EXISTS lexicon (
		term_id              INTEGER PRIMARY KEY,
		term                 TEXT NOT NULL UNIQUE,
		collection_frequency INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS postings (
		term_id        INTEGER NOT NULL REFERENCES lexicon (term_id),
		document_id    INTEGER NOT NULL REFERENCES documents (document_id),
		term_frequency INTEGER NOT NULL,
		PRIMARY KEY (term_id, document_id)
	)`,
}

// clearOrder deletes children before parents.
var clearOrder = []string{"postings", "lexicon", "documents", "corpus_stats"}

type txRunner interface {
	InTx(ctx context.Context, fn func(tx *sql.Tx) error) error
	Close() error
}

type dialect struct {
	name   string
	dollar bool
	copyIn bool
}

var (
	sqliteDialect   = dialect{name: "sqlite"}
	postgresDialect = dialect{name: "postgres", dollar: true, copyIn: true}
)

// rebind rewrites ? placeholders as $1, $2... for dialects that need it.
func (d dialect) rebind(query string) string {
	if !d.dollar {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// bulkWriter streams rows into one table inside a transaction. PostgreSQL
// uses COPY FROM STDIN; SQLite uses a prepared INSERT.
type bulkWriter struct {
	ctx   context.Context
	stmt  *sql.Stmt
	flush bool
	table string
}

func (d dialect) bulk(ctx context.Context, tx *sql.Tx, table string, columns ...string) (*bulkWriter, error) {
	var query string
	if d.copyIn {
		query = pq.CopyIn(table, columns...)
	} else {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), marks)
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("preparing bulk insert into %s: %w", table, err)
	}
	return &bulkWriter{ctx: ctx, stmt: stmt, flush: d.copyIn, table: table}, nil
}

func (w *bulkWriter) Add(args ...any) error {
	if _, err := w.stmt.ExecContext(w.ctx, args...); err != nil {
		return fmt.Errorf("inserting into %s: %w", w.table, err)
	}
	return nil
}

func (w *bulkWriter) Close() error {
	if w.flush {
		if _, err := w.stmt.ExecContext(w.ctx); err != nil {
			w.stmt.Close()
			return fmt.Errorf("flushing copy into %s: %w", w.table, err)
		}
	}
	return w.stmt.Close()
}

// SQLStore keeps the index in four relational tables.
type SQLStore struct {
	db      *sql.DB
	client  txRunner
	dialect dialect
	logger  *slog.Logger
}

// NewSQLite wraps an open SQLite client and creates the schema. The client
// is closed if the schema cannot be created.
func NewSQLite(ctx context.Context, client *sqlite.Client) (*SQLStore, error) {
	return newSQLStore(ctx, client.DB, client, sqliteDialect)
}

// NewPostgres wraps an open PostgreSQL client and creates the schema.
func NewPostgres(ctx context.Context, client *postgres.Client) (*SQLStore, error) {
	return newSQLStore(ctx, client.DB, client, postgresDialect)
}

func newSQLStore(ctx context.Context, db *sql.DB, client txRunner, d dialect) (*SQLStore, error) {
	s := &SQLStore{
		db:      db,
		client:  client,
		dialect: d,
		logger:  slog.Default().With("component", "index-store", "driver", d.name),
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			client.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}
	return s, nil
}

func (s *SQLStore) LoadStats(ctx context.Context) (index.CorpusStats, error) {
	var (
		stats   index.CorpusStats
		builtAt int64
	)
	err := s.db.QueryRowContext(ctx,
		s.dialect.rebind(`SELECT document_count, average_document_length, fingerprint, built_at
			FROM corpus_stats WHERE id = ?`), 1,
	).Scan(&stats.DocumentCount, &stats.AverageDocumentLength, &stats.Fingerprint, &builtAt)
	if errors.Is(err, sql.ErrNoRows) {
		return index.CorpusStats{}, unavailable("no corpus stats recorded")
	}
	if err != nil {
		return index.CorpusStats{}, unavailable("reading corpus stats: %v", err)
	}
	stats.BuiltAt = time.Unix(0, builtAt).UTC()
	if !stats.Valid() {
		return index.CorpusStats{}, unavailable("corpus stats are incomplete")
	}
	return stats, nil
}

func (s *SQLStore) Replace(ctx context.Context, snap *index.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("cannot persist nil snapshot")
	}
	start := time.Now()
	err := s.client.InTx(ctx, func(tx *sql.Tx) error {
		for _, table := range clearOrder {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clearing %s: %w", table, err)
			}
		}
		docIDs, err := s.insertDocuments(ctx, tx, snap.Documents)
		if err != nil {
			return err
		}
		if err := s.insertLexicon(ctx, tx, snap.Lexicon); err != nil {
			return err
		}
		if err := s.insertPostings(ctx, tx, snap.Lexicon, docIDs); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			s.dialect.rebind(`INSERT INTO corpus_stats (id, document_count, average_document_length, fingerprint, built_at)
				VALUES (?, ?, ?, ?, ?)`),
			1, snap.Stats.DocumentCount, snap.Stats.AverageDocumentLength,
			snap.Stats.Fingerprint, snap.Stats.BuiltAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("writing corpus stats: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replacing index: %w", err)
	}
	s.logger.Info("index persisted",
		"documents", len(snap.Documents),
		"terms", len(snap.Lexicon),
		"postings", snap.PostingCount(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (s *SQLStore) insertDocuments(ctx context.Context, tx *sql.Tx, docs []index.DocumentRef) (map[index.DocKey]int64, error) {
	ordered := make([]index.DocumentRef, len(docs))
	copy(ordered, docs)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Key().Less(ordered[j].Key())
	})

	w, err := s.dialect.bulk(ctx, tx, "documents", "document_id", "collection_name", "local_index", "word_count")
	if err != nil {
		return nil, err
	}
	ids := make(map[index.DocKey]int64, len(ordered))
	for i, doc := range ordered {
		id := int64(i + 1)
		ids[doc.Key()] = id
		if err := w.Add(id, doc.Collection, doc.Index, doc.WordCount); err != nil {
			w.Close()
			return nil, err
		}
	}
	return ids, w.Close()
}

func (s *SQLStore) insertLexicon(ctx context.Context, tx *sql.Tx, lexicon []index.TermEntry) error {
	w, err := s.dialect.bulk(ctx, tx, "lexicon", "term_id", "term", "collection_frequency")
	if err != nil {
		return err
	}
	for i, entry := range lexicon {
		if err := w.Add(int64(i+1), entry.Term, entry.CollectionFrequency); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

func (s *SQLStore) insertPostings(ctx context.Context, tx *sql.Tx, lexicon []index.TermEntry, docIDs map[index.DocKey]int64) error {
	w, err := s.dialect.bulk(ctx, tx, "postings", "term_id", "document_id", "term_frequency")
	if err != nil {
		return err
	}
	for i, entry := range lexicon {
		termID := int64(i + 1)
		for _, p := range entry.Postings {
			docID, ok := docIDs[p.Key()]
			if !ok {
				w.Close()
				return fmt.Errorf("posting for %q references unknown document %s[%d]", entry.Term, p.Collection, p.Index)
			}
			if err := w.Add(termID, docID, p.Frequency); err != nil {
				w.Close()
				return err
			}
		}
	}
	return w.Close()
}

func (s *SQLStore) DocumentFrequency(ctx context.Context, term string) (int, error) {
	var df int
	err := s.db.QueryRowContext(ctx,
		s.dialect.rebind(`SELECT COUNT(*) FROM postings p
			JOIN lexicon l ON l.term_id = p.term_id
			WHERE l.term = ?`), term,
	).Scan(&df)
	if err != nil {
		return 0, fmt.Errorf("counting documents for %q: %w", term, err)
	}
	return df, nil
}

func (s *SQLStore) Postings(ctx context.Context, term string) (index.PostingList, error) {
	rows, err := s.db.QueryContext(ctx,
		s.dialect.rebind(`SELECT d.collection_name, d.local_index, p.term_frequency, d.word_count
			FROM postings p
			JOIN lexicon l ON l.term_id = p.term_id
			JOIN documents d ON d.document_id = p.document_id
			WHERE l.term = ?
			ORDER BY p.document_id`), term,
	)
	if err != nil {
		return nil, fmt.Errorf("querying postings for %q: %w", term, err)
	}
	defer rows.Close()

	var postings index.PostingList
	for rows.Next() {
		var p index.Posting
		if err := rows.Scan(&p.Collection, &p.Index, &p.Frequency, &p.DocLength); err != nil {
			return nil, fmt.Errorf("scanning posting row: %w", err)
		}
		postings = append(postings, p)
	}
	return postings, rows.Err()
}

func (s *SQLStore) Summary(ctx context.Context) (Summary, error) {
	sum := Summary{Driver: s.dialect.name}
	counts := []struct {
		table string
		dst   *int
	}{
		{"lexicon", &sum.Terms},
		{"documents", &sum.Documents},
		{"postings", &sum.Postings},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dst); err != nil {
			return Summary{}, fmt.Errorf("counting %s: %w", c.table, err)
		}
	}
	return sum, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.client.Close()
}
