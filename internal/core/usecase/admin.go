package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/construction-graphrag/internal/core/domain"
	"github.com/kirillkom/construction-graphrag/internal/core/ports"
)

// AdminDependencies lists every store a document leaves data in.
// Images and Graph may be nil.
type AdminDependencies struct {
	Repo    ports.DocumentRepository
	Storage ports.ObjectStorage
	Vector  ports.VectorIndex
	Lexical ports.LexicalIndex
	Images  ports.VectorIndex
	Graph   ports.GraphWriter
}

type DocumentAdminUseCase struct {
	deps   AdminDependencies
	logger *slog.Logger
}

func NewDocumentAdminUseCase(deps AdminDependencies, logger *slog.Logger) *DocumentAdminUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentAdminUseCase{deps: deps, logger: logger}
}

// Delete removes the document from every index, the graph, object storage
// and the metadata store. Index failures do not stop the cascade; the
// metadata row is removed only when everything else succeeded so the delete
// can be retried.
func (uc *DocumentAdminUseCase) Delete(ctx context.Context, documentID string) error {
	doc, err := uc.deps.Repo.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}

	var errs []error
	collect := func(store string, err error) {
		if err == nil {
			return
		}
		uc.logger.Warn("document_delete_partial", "document_id", documentID, "store", store, "error", err)
		errs = append(errs, fmt.Errorf("delete from %s: %w", store, err))
	}

	collect("lexical index", uc.deps.Lexical.DeleteDocument(ctx, documentID))
	collect("vector index", uc.deps.Vector.DeleteDocument(ctx, documentID))
	if uc.deps.Images != nil {
		collect("image index", uc.deps.Images.DeleteDocument(ctx, documentID))
	}
	if uc.deps.Graph != nil {
		collect("graph", uc.deps.Graph.DeleteDocument(ctx, documentID))
	}
	if doc.StoragePath != "" {
		collect("object storage", uc.deps.Storage.Delete(ctx, doc.StoragePath))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if err := uc.deps.Repo.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("delete document metadata: %w", err)
	}
	uc.logger.Info("document_deleted", "document_id", documentID, "filename", doc.Filename)
	return nil
}

func (uc *DocumentAdminUseCase) Stats(ctx context.Context) (domain.IndexStats, error) {
	var (
		stats domain.IndexStats
		err   error
	)
	if stats.VectorChunks, err = uc.deps.Vector.Count(ctx); err != nil {
		return domain.IndexStats{}, fmt.Errorf("count vector chunks: %w", err)
	}
	if stats.LexicalChunks, err = uc.deps.Lexical.Count(ctx); err != nil {
		return domain.IndexStats{}, fmt.Errorf("count lexical chunks: %w", err)
	}
	if uc.deps.Images != nil {
		if stats.ImageChunks, err = uc.deps.Images.Count(ctx); err != nil {
			return domain.IndexStats{}, fmt.Errorf("count image chunks: %w", err)
		}
	}
	if uc.deps.Graph != nil {
		if stats.Graph, err = uc.deps.Graph.Stats(ctx); err != nil {
			return domain.IndexStats{}, fmt.Errorf("read graph stats: %w", err)
		}
	}
	return stats, nil
}
