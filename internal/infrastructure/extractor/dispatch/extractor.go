// Package dispatch reads stored uploads and routes them to the parser for
// their media type.
package dispatch

import (
	"context"
	"fmt"
	"io"

	"github.com/kirillkom/construction-graphrag/internal/core/domain"
	"github.com/kirillkom/construction-graphrag/internal/core/ports"
)

// Parser turns raw file bytes into pages.
type Parser interface {
	Parse(ctx context.Context, data []byte) ([]domain.Page, error)
}

type Extractor struct {
	storage ports.ObjectStorage
	parsers map[string]Parser
}

func NewExtractor(storage ports.ObjectStorage, parsers map[string]Parser) *Extractor {
	return &Extractor{storage: storage, parsers: parsers}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) ([]domain.Page, error) {
	mediaType, ok := domain.DetectMediaType(doc.Filename, doc.MimeType)
	if !ok {
		return nil, domain.WrapError(domain.ErrUnsupportedMedia, "extract "+doc.Filename, fmt.Errorf("media type %q", mediaType))
	}
	parser, ok := e.parsers[mediaType]
	if !ok {
		return nil, domain.WrapError(domain.ErrUnsupportedMedia, "extract "+doc.Filename, fmt.Errorf("no parser for %q", mediaType))
	}

	reader, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read source document: %w", err)
	}

	pages, err := parser.Parse(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", doc.Filename, err)
	}
	return pages, nil
}
