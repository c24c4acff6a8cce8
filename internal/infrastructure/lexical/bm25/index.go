// Package bm25 is the lexical index: chunks stored in SQLite with an FTS5
// external-content table ranked by the built-in bm25() function.
package bm25

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver with FTS5

	"github.com/kirillkom/construction-graphrag/internal/core/domain"
)

// Tokens keep '#', '-' and '/' so tags like AHU-1 and refs like 3/M-501
// survive as single terms. The FTS5 tokenizer below uses the same token
// characters.
var tokenPattern = regexp.MustCompile(`[A-Za-z0-9#\-/]+`)

func tokenize(text string) []string {
	tokens := tokenPattern.FindAllString(text, -1)
	for i, t := range tokens {
		tokens[i] = strings.ToLower(t)
	}
	return tokens
}

// matchExpression ORs the query terms, each quoted so FTS5 operators and
// punctuation inside tags are taken literally.
func matchExpression(terms []string) string {
	seen := make(map[string]struct{}, len(terms))
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		quoted = append(quoted, `"`+term+`"`)
	}
	return strings.Join(quoted, " OR ")
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS lexical_chunks (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		doc_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		page INTEGER NOT NULL,
		chunk_index INTEGER NOT NULL,
		is_diagram INTEGER NOT NULL,
		section TEXT NOT NULL,
		modality TEXT NOT NULL,
		text TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS lexical_chunks_doc_id ON lexical_chunks(doc_id)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS lexical_fts USING fts5(
		text,
		content='lexical_chunks',
		content_rowid='seq',
		tokenize="unicode61 tokenchars '-#/'"
	)`,
	`CREATE TRIGGER IF NOT EXISTS lexical_chunks_ai AFTER INSERT ON lexical_chunks BEGIN
		INSERT INTO lexical_fts(rowid, text) VALUES (new.seq, new.text);
	END`,
	`CREATE TRIGGER IF NOT EXISTS lexical_chunks_ad AFTER DELETE ON lexical_chunks BEGIN
		INSERT INTO lexical_fts(lexical_fts, rowid, text) VALUES ('delete', old.seq, old.text);
	END`,
	`CREATE TRIGGER IF NOT EXISTS lexical_chunks_au AFTER UPDATE ON lexical_chunks BEGIN
		INSERT INTO lexical_fts(lexical_fts, rowid, text) VALUES ('delete', old.seq, old.text);
		INSERT INTO lexical_fts(rowid, text) VALUES (new.seq, new.text);
	END`,
}

type Index struct {
	db *sql.DB

	// writers are serialized; searches share the read lock.
	mu sync.RWMutex
}

// Open opens the index stored at path, creating the database if needed.
func Open(ctx context.Context, path string) (*Index, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create lexical index dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open lexical index: %w", err)
	}

	idx := &Index{db: db}
	if err := idx.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (i *Index) Close() error {
	return i.db.Close()
}

func (i *Index) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := i.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate lexical index: %w", err)
		}
	}
	return nil
}

func (i *Index) Available() bool { return true }

func (i *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := i.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lexical_chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count lexical chunks: %w", err)
	}
	return n, nil
}

// Index adds chunks, replacing any chunk already stored under the same id.
// A replaced chunk keeps its original position for tie-breaking.
func (i *Index) Index(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin lexical index tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO lexical_chunks (id, doc_id, filename, page, chunk_index, is_diagram, section, modality, text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			doc_id = excluded.doc_id,
			filename = excluded.filename,
			page = excluded.page,
			chunk_index = excluded.chunk_index,
			is_diagram = excluded.is_diagram,
			section = excluded.section,
			modality = excluded.modality,
			text = excluded.text`)
	if err != nil {
		return fmt.Errorf("prepare lexical insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.Filename, c.Page, c.ChunkIndex, c.IsDiagram, c.Section, string(c.Modality), c.Text); err != nil {
			return fmt.Errorf("insert lexical chunk %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit lexical index tx: %w", err)
	}
	return nil
}

func (i *Index) DeleteDocument(ctx context.Context, documentID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, err := i.db.ExecContext(ctx, `DELETE FROM lexical_chunks WHERE doc_id = ?`, documentID); err != nil {
		return fmt.Errorf("delete lexical chunks: %w", err)
	}
	return nil
}

// Search returns the k best chunks sharing at least one term with query,
// ties kept in insertion order. FTS5 bm25() is negative with lower meaning
// better, so the score is its negation.
func (i *Index) Search(ctx context.Context, query string, k int) ([]domain.Hit, error) {
	terms := tokenize(query)
	if len(terms) == 0 || k <= 0 {
		return []domain.Hit{}, nil
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	rows, err := i.db.QueryContext(ctx, `
		SELECT c.id, c.doc_id, c.filename, c.page, c.chunk_index, c.is_diagram, c.section, c.modality, c.text,
			bm25(lexical_fts) AS score
		FROM lexical_fts
		JOIN lexical_chunks c ON c.seq = lexical_fts.rowid
		WHERE lexical_fts MATCH ?
		ORDER BY score, c.seq
		LIMIT ?`, matchExpression(terms), k)
	if err != nil {
		return nil, fmt.Errorf("search lexical index: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Hit, 0)
	for rows.Next() {
		var (
			c        domain.Chunk
			modality string
			score    float64
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Filename, &c.Page, &c.ChunkIndex, &c.IsDiagram, &c.Section, &modality, &c.Text, &score); err != nil {
			return nil, fmt.Errorf("scan lexical hit: %w", err)
		}
		c.Modality = domain.Modality(modality)
		out = append(out, domain.Hit{ID: c.ID, Score: -score, RawScore: -score, Payload: c})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lexical hits: %w", err)
	}
	return out, nil
}
