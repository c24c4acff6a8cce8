// Package sqlite caches text embeddings on disk keyed by model and text.
package sqlite

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/kirillkom/construction-graphrag/internal/core/ports"
)

// CachedEmbedder serves repeated texts from the cache and forwards misses to
// the wrapped embedder in a single batch.
type CachedEmbedder struct {
	db     *sql.DB
	next   ports.Embedder
	model  string
	logger *slog.Logger
}

func Open(ctx context.Context, path, model string, next ports.Embedder, logger *slog.Logger) (*CachedEmbedder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create embedding cache dir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS embeddings (
			key TEXT PRIMARY KEY,
			vector BLOB NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate embedding cache: %w", err)
	}
	return &CachedEmbedder{db: db, next: next, model: model, logger: logger}, nil
}

func (c *CachedEmbedder) Close() error {
	return c.db.Close()
}

func (c *CachedEmbedder) Dimension() int {
	return c.next.Dimension()
}

func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	vector, ok, err := c.lookup(ctx, key)
	if err != nil {
		c.logger.Warn("embedding_cache_read_failed", "error", err)
	}
	if ok {
		return vector, nil
	}

	vector, err = c.next.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.store(ctx, key, vector); err != nil {
		c.logger.Warn("embedding_cache_write_failed", "error", err)
	}
	return vector, nil
}

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	missing := make([]int, 0)
	for i, text := range texts {
		keys[i] = c.key(text)
		vector, ok, err := c.lookup(ctx, keys[i])
		if err != nil {
			// a broken cache must not stop ingestion
			c.logger.Warn("embedding_cache_read_failed", "error", err)
		}
		if ok {
			out[i] = vector
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	batch := make([]string, 0, len(missing))
	for _, i := range missing {
		batch = append(batch, texts[i])
	}
	vectors, err := c.next.Embed(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(batch) {
		return nil, fmt.Errorf("embedding cache: got %d vectors for %d texts", len(vectors), len(batch))
	}

	for j, i := range missing {
		out[i] = vectors[j]
		if err := c.store(ctx, keys[i], vectors[j]); err != nil {
			c.logger.Warn("embedding_cache_write_failed", "error", err)
		}
	}
	return out, nil
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha1.Sum([]byte(c.model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) lookup(ctx context.Context, key string) ([]float32, bool, error) {
	var raw []byte
	err := c.db.QueryRowContext(ctx, `SELECT vector FROM embeddings WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return bytesToFloat32Slice(raw), true, nil
}

func (c *CachedEmbedder) store(ctx context.Context, key string, vector []float32) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO embeddings (key, vector) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET vector = excluded.vector`,
		key, float32SliceToBytes(vector))
	return err
}

func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloat32Slice(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
