package ports

import (
	"context"
	"io"

	"github.com/kirillkom/construction-graphrag/internal/core/domain"
)

// DocumentRepository persists and reads document job state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context, limit int) ([]domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveResult(ctx context.Context, id string, result domain.IngestionResult) error
	Delete(ctx context.Context, id string) error
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// PageExtractor turns a stored document into pages of text and optional
// page images.
type PageExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) ([]domain.Page, error)
}

// Chunker splits page text into retrievable chunks.
type Chunker interface {
	Split(text string) []string
}

// Embedder builds text vectors. Dimension is the fixed vector size every
// index was built with.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// ImageEmbedder maps page images and query text into a shared space.
type ImageEmbedder interface {
	Available() bool
	EmbedImage(ctx context.Context, image []byte) ([]float32, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// LexicalSearcher is the read side of the keyword index.
type LexicalSearcher interface {
	Available() bool
	Search(ctx context.Context, query string, k int) ([]domain.Hit, error)
}

// LexicalIndex adds the write side used by ingestion and deletion.
type LexicalIndex interface {
	LexicalSearcher
	Index(ctx context.Context, chunks []domain.Chunk) error
	DeleteDocument(ctx context.Context, documentID string) error
	Count(ctx context.Context) (int, error)
}

// VectorSearcher is the read side of a dense index.
type VectorSearcher interface {
	Available() bool
	Count(ctx context.Context) (int, error)
	Search(ctx context.Context, vector []float32, topK int) ([]domain.Hit, error)
}

// VectorIndex adds the write side used by ingestion and deletion.
type VectorIndex interface {
	VectorSearcher
	Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error
	DeleteDocument(ctx context.Context, documentID string) error
}

// GraphSearcher answers fact lookups and structured template queries.
type GraphSearcher interface {
	SearchFacts(ctx context.Context, query string, limit int) ([]domain.GraphFact, error)
	Run(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
}

// GraphWriter persists extracted entities and removes them by document.
type GraphWriter interface {
	SaveEntities(ctx context.Context, documentID string, entities []domain.Entity) (int, error)
	SaveRelationships(ctx context.Context, relationships []domain.Relationship) (int, error)
	DeleteDocument(ctx context.Context, documentID string) error
	Stats(ctx context.Context) (domain.GraphStats, error)
}

// Synthesizer produces the final answer from selected context and facts.
type Synthesizer interface {
	Synthesize(ctx context.Context, question string, context []domain.Hit, facts []domain.GraphFact) (string, error)
}

// EntityExtractor pulls entities and relationships out of page text.
type EntityExtractor interface {
	ExtractEntities(ctx context.Context, doc *domain.Document, text string) ([]domain.Entity, []domain.Relationship, error)
}
