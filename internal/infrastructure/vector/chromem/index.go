// Package chromem is the embedded vector backend, selected with
// VECTOR_BACKEND=chromem for single-node deployments without Qdrant.
package chromem

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"

	"github.com/kirillkom/construction-graphrag/internal/core/domain"
)

const compress = false

type Store struct {
	db *chromem.DB
}

// Open returns a persistent store at path, or an in-memory one when path is
// empty.
func Open(path string) (*Store, error) {
	if path == "" {
		return &Store{db: chromem.NewDB()}, nil
	}
	db, err := chromem.NewPersistentDB(path, compress)
	if err != nil {
		return nil, fmt.Errorf("open chromem db: %w", err)
	}
	return &Store{db: db}, nil
}

// Index returns the vector index stored in the named collection.
func (s *Store) Index(name string) (*Index, error) {
	collection, err := s.db.GetOrCreateCollection(name, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("open chromem collection %s: %w", name, err)
	}
	return &Index{collection: collection}, nil
}

// noEmbedding rejects text-only writes; every chunk arrives with its vector.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("chromem: documents must carry precomputed embeddings")
}

type Index struct {
	collection *chromem.Collection
}

func (i *Index) Available() bool { return true }

func (i *Index) Count(context.Context) (int, error) {
	return i.collection.Count(), nil
}

func (i *Index) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return domain.WrapError(domain.ErrInvalidInput, "chromem upsert", fmt.Errorf("chunks/vectors mismatch: %d/%d", len(chunks), len(vectors)))
	}

	docs := make([]chromem.Document, 0, len(chunks))
	for idx, chunk := range chunks {
		docs = append(docs, chromem.Document{
			ID:        chunk.ID,
			Content:   chunk.Text,
			Metadata:  chunkMetadata(chunk),
			Embedding: vectors[idx],
		})
	}
	// documents are keyed by id, so re-ingesting a chunk replaces it
	if err := i.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("chromem add chunks: %w", err)
	}
	return nil
}

func (i *Index) Search(ctx context.Context, queryVector []float32, limit int) ([]domain.Hit, error) {
	n := min(limit, i.collection.Count())
	if n <= 0 {
		return []domain.Hit{}, nil
	}
	results, err := i.collection.QueryEmbedding(ctx, queryVector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	out := make([]domain.Hit, 0, len(results))
	for _, r := range results {
		chunk := chunkFromMetadata(r.ID, r.Content, r.Metadata)
		out = append(out, domain.Hit{
			ID:       r.ID,
			Score:    float64(r.Similarity),
			RawScore: float64(r.Similarity),
			Payload:  chunk,
		})
	}
	return out, nil
}

func (i *Index) DeleteDocument(ctx context.Context, documentID string) error {
	if err := i.collection.Delete(ctx, map[string]string{"doc_id": documentID}, nil); err != nil {
		return fmt.Errorf("chromem delete document: %w", err)
	}
	return nil
}

func chunkMetadata(chunk domain.Chunk) map[string]string {
	return map[string]string{
		"doc_id":      chunk.DocumentID,
		"filename":    chunk.Filename,
		"page":        strconv.Itoa(chunk.Page),
		"chunk_index": strconv.Itoa(chunk.ChunkIndex),
		"is_diagram":  strconv.FormatBool(chunk.IsDiagram),
		"section":     chunk.Section,
		"modality":    string(chunk.Modality),
	}
}

func chunkFromMetadata(id, text string, meta map[string]string) domain.Chunk {
	page, _ := strconv.Atoi(meta["page"])
	index, _ := strconv.Atoi(meta["chunk_index"])
	diagram, _ := strconv.ParseBool(meta["is_diagram"])
	return domain.Chunk{
		ID:         id,
		Text:       text,
		DocumentID: meta["doc_id"],
		Filename:   meta["filename"],
		Page:       page,
		ChunkIndex: index,
		IsDiagram:  diagram,
		Section:    meta["section"],
		Modality:   domain.Modality(meta["modality"]),
	}
}
