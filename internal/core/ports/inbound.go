package ports

import (
	"context"
	"io"

	"github.com/kirillkom/construction-graphrag/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error)
}

// QueryService answers questions over the ingested corpus.
type QueryService interface {
	Answer(ctx context.Context, question string) (*domain.Answer, error)
}

// QueryPlanner exposes routing and expansion without running retrieval.
type QueryPlanner interface {
	Route(question string) domain.RouteDecision
	BuildQuery(decision domain.RouteDecision) (domain.GraphQuery, error)
	Expand(question string) []string
}

// DocumentReader is the inbound read model for document job state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context, limit int) ([]domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// DocumentAdmin removes documents across every store and reports index sizes.
type DocumentAdmin interface {
	Delete(ctx context.Context, documentID string) error
	Stats(ctx context.Context) (domain.IndexStats, error)
}
