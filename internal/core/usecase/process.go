package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/construction-graphrag/internal/core/domain"
	"github.com/kirillkom/construction-graphrag/internal/core/ports"
)

const (
	defaultPagesPerBatch     = 2
	defaultMaxChunksPerBatch = 50
	defaultEmbedBatchSize    = 20
	diagramWordThreshold     = 80
	minPageTextChars         = 50
	minEntityTextChars       = 100
)

type ProcessConfig struct {
	PagesPerBatch     int
	MaxChunksPerBatch int
	EmbedBatchSize    int
	SectionBoosts     map[string]float64
}

// ProcessDependencies groups the stores and models the pipeline writes to.
// Images, ImageEmbedder, Entities and Graph may be nil.
type ProcessDependencies struct {
	Repo          ports.DocumentRepository
	Extractor     ports.PageExtractor
	Chunker       ports.Chunker
	Embedder      ports.Embedder
	Vector        ports.VectorIndex
	Lexical       ports.LexicalIndex
	Images        ports.VectorIndex
	ImageEmbedder ports.ImageEmbedder
	Entities      ports.EntityExtractor
	Graph         ports.GraphWriter
}

type ProcessDocumentUseCase struct {
	deps     ProcessDependencies
	cfg      ProcessConfig
	sections []string
	logger   *slog.Logger
}

func NewProcessDocumentUseCase(deps ProcessDependencies, cfg ProcessConfig, logger *slog.Logger) *ProcessDocumentUseCase {
	if cfg.PagesPerBatch <= 0 {
		cfg.PagesPerBatch = defaultPagesPerBatch
	}
	if cfg.MaxChunksPerBatch <= 0 {
		cfg.MaxChunksPerBatch = defaultMaxChunksPerBatch
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = defaultEmbedBatchSize
	}
	if cfg.SectionBoosts == nil {
		cfg.SectionBoosts = DefaultSectionBoosts()
	}
	if logger == nil {
		logger = slog.Default()
	}

	sections := make([]string, 0, len(cfg.SectionBoosts))
	for section := range cfg.SectionBoosts {
		sections = append(sections, section)
	}
	// longest first so "ELECTRICAL GENERAL NOTES" wins over "GENERAL NOTES"
	sort.Slice(sections, func(i, j int) bool {
		if len(sections[i]) != len(sections[j]) {
			return len(sections[i]) > len(sections[j])
		}
		return sections[i] < sections[j]
	})

	return &ProcessDocumentUseCase{deps: deps, cfg: cfg, sections: sections, logger: logger}
}

func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.markStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	result, err := uc.processPipeline(ctx, documentID)
	if err != nil {
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.deps.Repo.SaveResult(ctx, documentID, result); err != nil {
		err = fmt.Errorf("save ingestion result: %w", err)
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.markStatus(ctx, documentID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}

	uc.logger.Info("document_processed",
		"document_id", documentID,
		"pages", result.Pages,
		"chunks", result.Chunks,
		"images", result.Images,
		"entities", result.Entities,
		"relationships", result.Relationships,
	)
	return nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, documentID string) (domain.IngestionResult, error) {
	doc, err := uc.loadDocument(ctx, documentID)
	if err != nil {
		return domain.IngestionResult{}, err
	}

	pages, err := uc.extractPages(ctx, doc)
	if err != nil {
		return domain.IngestionResult{}, err
	}
	uc.annotatePages(pages)

	chunks := uc.buildChunks(doc, pages)
	vectors, err := uc.embed(ctx, chunks)
	if err != nil {
		return domain.IngestionResult{}, err
	}

	images, err := uc.index(ctx, doc, pages, chunks, vectors)
	if err != nil {
		return domain.IngestionResult{}, err
	}
	if len(chunks) == 0 && images == 0 {
		return domain.IngestionResult{}, domain.WrapError(domain.ErrInvalidInput, "index document", errors.New("document produced no retrievable content"))
	}

	entities, relationships, err := uc.buildGraph(ctx, doc, pages)
	if err != nil {
		return domain.IngestionResult{}, err
	}

	return domain.IngestionResult{
		Pages:         len(pages),
		Chunks:        len(chunks),
		Images:        images,
		Entities:      entities,
		Relationships: relationships,
	}, nil
}

func (uc *ProcessDocumentUseCase) loadDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := uc.deps.Repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}

func (uc *ProcessDocumentUseCase) extractPages(ctx context.Context, doc *domain.Document) ([]domain.Page, error) {
	pages, err := uc.deps.Extractor.Extract(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("extract pages: %w", err)
	}
	if len(pages) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract pages", errors.New("document has no pages"))
	}
	return pages, nil
}

// annotatePages fills in section labels the extractor did not provide.
func (uc *ProcessDocumentUseCase) annotatePages(pages []domain.Page) {
	for i := range pages {
		if pages[i].Section == "" {
			pages[i].Section = uc.detectSection(pages[i].Text)
		}
	}
}

// detectSection returns the first line naming a known section, or the first
// all-caps heading line.
func (uc *ProcessDocumentUseCase) detectSection(text string) string {
	heading := ""
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		upper := strings.ToUpper(line)
		for _, section := range uc.sections {
			if strings.Contains(upper, section) {
				return section
			}
		}
		if heading == "" && isHeading(line) {
			heading = upper
		}
	}
	return heading
}

func isHeading(line string) bool {
	if len(line) < 3 || len(line) > 80 {
		return false
	}
	hasLetter := false
	for _, r := range line {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

// buildChunks chunks pages in batches, capping the chunks any one batch may
// contribute. Chunk ids are sequential across the whole document.
func (uc *ProcessDocumentUseCase) buildChunks(doc *domain.Document, pages []domain.Page) []domain.Chunk {
	chunks := make([]domain.Chunk, 0)
	for start := 0; start < len(pages); start += uc.cfg.PagesPerBatch {
		end := min(start+uc.cfg.PagesPerBatch, len(pages))
		batchCount := 0

	batch:
		for _, page := range pages[start:end] {
			if len(strings.TrimSpace(page.Text)) <= minPageTextChars {
				continue
			}
			isDiagram := len(strings.Fields(page.Text)) < diagramWordThreshold
			for _, piece := range uc.deps.Chunker.Split(page.Text) {
				if batchCount == uc.cfg.MaxChunksPerBatch {
					break batch
				}
				section := uc.detectSection(piece)
				if section == "" {
					section = page.Section
				}
				index := len(chunks)
				chunks = append(chunks, domain.Chunk{
					ID:         domain.TextChunkID(doc.ID, index),
					Text:       domain.TruncateText(piece),
					DocumentID: doc.ID,
					Filename:   doc.Filename,
					Page:       page.Number,
					ChunkIndex: index,
					IsDiagram:  isDiagram,
					Section:    section,
					Modality:   domain.ModalityText,
				})
				batchCount++
			}
		}
	}
	return chunks
}

func (uc *ProcessDocumentUseCase) embed(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += uc.cfg.EmbedBatchSize {
		end := min(start+uc.cfg.EmbedBatchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, chunk := range chunks[start:end] {
			texts = append(texts, chunk.Text)
		}

		batch, err := uc.deps.Embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks: %w", err)
		}
		if len(batch) != len(texts) {
			return nil, domain.WrapError(
				domain.ErrInvalidInput,
				"embed chunks",
				fmt.Errorf("vectors/chunks mismatch: %d/%d", len(batch), len(texts)),
			)
		}
		vectors = append(vectors, batch...)
	}

	if dim := uc.deps.Embedder.Dimension(); dim > 0 {
		for i, vector := range vectors {
			if len(vector) != dim {
				return nil, domain.WrapError(
					domain.ErrEmbeddingDimension,
					"embed chunks",
					fmt.Errorf("chunk %d has %d dimensions, index expects %d", i, len(vector), dim),
				)
			}
		}
	}
	return vectors, nil
}

// index writes text chunks to the vector and lexical indexes and page images
// to the image index concurrently. It returns the number of indexed images.
func (uc *ProcessDocumentUseCase) index(
	ctx context.Context,
	doc *domain.Document,
	pages []domain.Page,
	chunks []domain.Chunk,
	vectors [][]float32,
) (int, error) {
	images := 0
	g, gctx := errgroup.WithContext(ctx)

	if len(chunks) > 0 {
		g.Go(func() error {
			if err := uc.deps.Vector.Upsert(gctx, chunks, vectors); err != nil {
				return fmt.Errorf("index chunks in vector db: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			if err := uc.deps.Lexical.Index(gctx, chunks); err != nil {
				return fmt.Errorf("index chunks in lexical index: %w", err)
			}
			return nil
		})
	}
	if uc.deps.Images != nil && uc.deps.ImageEmbedder != nil && uc.deps.ImageEmbedder.Available() {
		g.Go(func() error {
			n, err := uc.indexImages(gctx, doc, pages)
			images = n
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}
	return images, nil
}

func (uc *ProcessDocumentUseCase) indexImages(ctx context.Context, doc *domain.Document, pages []domain.Page) (int, error) {
	chunks := make([]domain.Chunk, 0)
	vectors := make([][]float32, 0)
	for _, page := range pages {
		if len(page.Image) == 0 {
			continue
		}
		vector, err := uc.deps.ImageEmbedder.EmbedImage(ctx, page.Image)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, ctxErr
			}
			uc.logger.Warn("page_image_embedding_failed", "document_id", doc.ID, "page", page.Number, "error", err)
			continue
		}

		text := fmt.Sprintf("IMAGE PAGE %d", page.Number)
		if page.Section != "" {
			text = fmt.Sprintf("IMAGE PAGE %d - %s", page.Number, page.Section)
		}
		chunks = append(chunks, domain.Chunk{
			ID:         domain.PageImageID(doc.ID, page.Number),
			Text:       text,
			DocumentID: doc.ID,
			Filename:   doc.Filename,
			Page:       page.Number,
			IsDiagram:  true,
			Section:    page.Section,
			Modality:   domain.ModalityImage,
		})
		vectors = append(vectors, vector)
	}
	if len(chunks) == 0 {
		return 0, nil
	}
	if err := uc.deps.Images.Upsert(ctx, chunks, vectors); err != nil {
		return 0, fmt.Errorf("index page images: %w", err)
	}
	return len(chunks), nil
}

// buildGraph extracts entities per page batch and writes them to the graph.
func (uc *ProcessDocumentUseCase) buildGraph(ctx context.Context, doc *domain.Document, pages []domain.Page) (int, int, error) {
	if uc.deps.Entities == nil || uc.deps.Graph == nil {
		return 0, 0, nil
	}

	var (
		entities      []domain.Entity
		relationships []domain.Relationship
	)
	for start := 0; start < len(pages); start += uc.cfg.PagesPerBatch {
		end := min(start+uc.cfg.PagesPerBatch, len(pages))
		var b strings.Builder
		for _, page := range pages[start:end] {
			fmt.Fprintf(&b, "\n--- Page %d ---\n%s", page.Number, page.Text)
		}
		text := b.String()
		if len(strings.TrimSpace(text)) <= minEntityTextChars {
			continue
		}

		e, r, err := uc.deps.Entities.ExtractEntities(ctx, doc, text)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, 0, ctxErr
			}
			uc.logger.Warn("entity_extraction_failed", "document_id", doc.ID, "first_page", pages[start].Number, "error", err)
			continue
		}
		entities = append(entities, e...)
		relationships = append(relationships, r...)
	}

	entities = DedupeEntities(entities)
	relationships = DedupeRelationships(relationships)
	if len(entities) == 0 {
		return 0, 0, nil
	}

	savedEntities, err := uc.deps.Graph.SaveEntities(ctx, doc.ID, entities)
	if err != nil {
		return 0, 0, fmt.Errorf("save graph entities: %w", err)
	}
	savedRelationships, err := uc.deps.Graph.SaveRelationships(ctx, relationships)
	if err != nil {
		return 0, 0, fmt.Errorf("save graph relationships: %w", err)
	}
	return savedEntities, savedRelationships, nil
}

func (uc *ProcessDocumentUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) error {
	return uc.deps.Repo.UpdateStatus(ctx, documentID, status, errMessage)
}

func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markStatus(ctx, documentID, domain.StatusFailed, processErr.Error())
}
