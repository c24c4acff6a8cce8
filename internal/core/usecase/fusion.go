package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/construction-graphrag/internal/core/domain"
	"github.com/kirillkom/construction-graphrag/internal/core/ports"
)

const (
	defaultRRFK         = 60
	defaultDiagramBoost = 1.15
	defaultContextTopK  = 50
	defaultVariantTopK  = 50
	defaultImageTopK    = 15
)

// DefaultSectionBoosts returns the built-in section multipliers keyed by
// upper-case section label.
func DefaultSectionBoosts() map[string]float64 {
	return map[string]float64{
		"GENERAL NOTES":            2.5,
		"PLUMBING GENERAL NOTES":   2.5,
		"MECHANICAL GENERAL NOTES": 2.5,
		"ELECTRICAL GENERAL NOTES": 2.5,
		"OVERHEAD DOOR NOTES":      2.3,
		"EQUIPMENT NOTES":          2.3,
		"INSTALLATION NOTES":       2.3,
		"CONSTRUCTION NOTES":       2.2,
		"EQUIPMENT SCHEDULE":       2.2,
		"STRUCTURAL NOTES":         2.0,
		"ELECTRICAL NOTES":         2.0,
		"VICINITY MAP":             2.0,
		"LOCATION MAP":             2.0,
		"KEY PLAN":                 1.8,
		"LEGEND":                   1.5,
	}
}

type FusionConfig struct {
	VectorTopK     int
	LexicalTopK    int
	ImageTopK      int
	ContextTopK    int
	RRFK           int
	DiagramBoost   float64
	SectionBoosts  map[string]float64
	ImageRetrieval bool
	SearchTimeout  time.Duration
}

func (c FusionConfig) normalize() FusionConfig {
	out := c
	if out.VectorTopK <= 0 {
		out.VectorTopK = defaultVariantTopK
	}
	if out.LexicalTopK <= 0 {
		out.LexicalTopK = defaultVariantTopK
	}
	if out.ImageTopK <= 0 {
		out.ImageTopK = defaultImageTopK
	}
	if out.ContextTopK <= 0 {
		out.ContextTopK = defaultContextTopK
	}
	if out.RRFK <= 0 {
		out.RRFK = defaultRRFK
	}
	if out.DiagramBoost <= 0 {
		out.DiagramBoost = defaultDiagramBoost
	}
	if out.SectionBoosts == nil {
		out.SectionBoosts = DefaultSectionBoosts()
	}
	return out
}

// ImageSource pairs the image index with the embedder that maps query text
// into the image space.
type ImageSource struct {
	Index    ports.VectorSearcher
	Embedder *QueryEmbedder
}

// FusionEngine expands a question, searches every available source for each
// variant and merges the ranked lists with reciprocal rank fusion.
type FusionEngine struct {
	expander   *Expander
	embeddings *QueryEmbedder
	vector     ports.VectorSearcher
	lexical    ports.LexicalSearcher
	image      ImageSource
	cfg        FusionConfig
	logger     *slog.Logger
	observer   RetrievalObserver
}

func NewFusionEngine(
	expander *Expander,
	embeddings *QueryEmbedder,
	vector ports.VectorSearcher,
	lexical ports.LexicalSearcher,
	image ImageSource,
	cfg FusionConfig,
	logger *slog.Logger,
	observer RetrievalObserver,
) *FusionEngine {
	if expander == nil {
		expander = NewExpander(nil, 0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &FusionEngine{
		expander:   expander,
		embeddings: embeddings,
		vector:     vector,
		lexical:    lexical,
		image:      image,
		cfg:        cfg.normalize(),
		logger:     logger,
		observer:   observer,
	}
}

type rankedSource struct {
	kind domain.SourceKind
	hits []domain.Hit
}

// Retrieve returns at most topK hits ordered by boosted fused score. A
// failing source contributes nothing. Only a cancelled context or an
// embedding dimension mismatch fail the call.
func (e *FusionEngine) Retrieve(ctx context.Context, question string, topK int) ([]domain.Hit, error) {
	if topK <= 0 {
		topK = e.cfg.ContextTopK
	}
	variants := e.expander.Expand(question)

	vectorResults := make([][]domain.Hit, len(variants))
	lexicalResults := make([][]domain.Hit, len(variants))
	var imageResults []domain.Hit

	vectorReady := e.vector != nil && e.embeddings != nil && e.vector.Available()
	lexicalReady := e.lexical != nil && e.lexical.Available()
	imageReady := e.cfg.ImageRetrieval && e.image.Index != nil && e.image.Embedder != nil && e.image.Index.Available()

	g, gctx := errgroup.WithContext(ctx)
	for i, variant := range variants {
		if vectorReady {
			g.Go(func() error {
				hits, err := e.searchVector(gctx, variant)
				if err != nil {
					return err
				}
				vectorResults[i] = hits
				return nil
			})
		}
		if lexicalReady {
			g.Go(func() error {
				lexicalResults[i] = e.searchLexical(gctx, variant)
				return nil
			})
		}
	}
	if imageReady {
		g.Go(func() error {
			hits, err := e.searchImages(gctx, variants[0])
			if err != nil {
				return err
			}
			imageResults = hits
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sources := []rankedSource{
		{kind: domain.SourceVector, hits: mergeVariantHits(vectorResults...)},
		{kind: domain.SourceLexical, hits: mergeVariantHits(lexicalResults...)},
		{kind: domain.SourceImage, hits: mergeVariantHits(imageResults)},
	}
	for _, source := range sources {
		e.observer.ObserveSourceHits(source.kind, len(source.hits))
	}

	fused := e.fuse(sources, topK)
	e.logger.Info("retrieval_completed",
		"variants", len(variants),
		"vector_hits", len(sources[0].hits),
		"lexical_hits", len(sources[1].hits),
		"image_hits", len(sources[2].hits),
		"context_hits", len(fused),
	)
	return fused, nil
}

func (e *FusionEngine) searchVector(ctx context.Context, variant string) ([]domain.Hit, error) {
	embedding, err := e.embeddings.Embed(ctx, variant)
	if err != nil {
		if errors.Is(err, domain.ErrEmbeddingDimension) {
			return nil, err
		}
		e.sourceFailed(ctx, domain.SourceVector, err)
		return nil, nil
	}
	if embedding.Placeholder {
		return nil, nil
	}

	searchCtx, cancel := e.searchContext(ctx)
	defer cancel()
	hits, err := e.vector.Search(searchCtx, embedding.Vector, e.cfg.VectorTopK)
	if err != nil {
		e.sourceFailed(ctx, domain.SourceVector, err)
		return nil, nil
	}
	return hits, nil
}

func (e *FusionEngine) searchLexical(ctx context.Context, variant string) []domain.Hit {
	searchCtx, cancel := e.searchContext(ctx)
	defer cancel()
	hits, err := e.lexical.Search(searchCtx, variant, e.cfg.LexicalTopK)
	if err != nil {
		e.sourceFailed(ctx, domain.SourceLexical, err)
		return nil
	}
	return hits
}

func (e *FusionEngine) searchImages(ctx context.Context, question string) ([]domain.Hit, error) {
	countCtx, cancel := e.searchContext(ctx)
	count, err := e.image.Index.Count(countCtx)
	cancel()
	if err != nil {
		e.sourceFailed(ctx, domain.SourceImage, err)
		return nil, nil
	}
	if count == 0 {
		return nil, nil
	}

	embedding, err := e.image.Embedder.Embed(ctx, question)
	if err != nil {
		if errors.Is(err, domain.ErrEmbeddingDimension) {
			return nil, err
		}
		e.sourceFailed(ctx, domain.SourceImage, err)
		return nil, nil
	}
	if embedding.Placeholder {
		return nil, nil
	}

	searchCtx, cancel := e.searchContext(ctx)
	defer cancel()
	hits, err := e.image.Index.Search(searchCtx, embedding.Vector, e.cfg.ImageTopK)
	if err != nil {
		e.sourceFailed(ctx, domain.SourceImage, err)
		return nil, nil
	}
	return hits, nil
}

func (e *FusionEngine) searchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.SearchTimeout > 0 {
		return context.WithTimeout(ctx, e.cfg.SearchTimeout)
	}
	return context.WithCancel(ctx)
}

func (e *FusionEngine) sourceFailed(ctx context.Context, source domain.SourceKind, err error) {
	if ctx.Err() != nil {
		return
	}
	e.observer.ObserveSourceFailure(source)
	e.logger.Warn("source_search_failed",
		"source", string(source),
		"error", domain.WrapError(domain.ErrSourceUnavailable, "search "+string(source), err),
	)
}

type fusedEntry struct {
	hit   domain.Hit
	score float64
	raw   float64
}

func (e *FusionEngine) fuse(sources []rankedSource, topK int) []domain.Hit {
	entries := make(map[string]*fusedEntry)
	order := make([]string, 0)

	for _, source := range sources {
		for rank, hit := range source.hits {
			entry, ok := entries[hit.ID]
			if !ok {
				entry = &fusedEntry{hit: hit, raw: hit.Score}
				entries[hit.ID] = entry
				order = append(order, hit.ID)
			} else {
				entry.hit.Payload = mergePayload(entry.hit.Payload, hit.Payload)
				if hit.Score > entry.raw {
					entry.raw = hit.Score
				}
			}
			entry.score += 1.0 / float64(e.cfg.RRFK+rank+1)
		}
	}

	out := make([]domain.Hit, 0, len(order))
	for _, id := range order {
		entry := entries[id]
		hit := entry.hit
		if hit.Payload.ID == "" {
			hit.Payload.ID = id
		}
		hit.Score = entry.score * e.boost(hit.Payload)
		hit.RawScore = entry.raw
		out = append(out, hit)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

func (e *FusionEngine) boost(chunk domain.Chunk) float64 {
	boost := 1.0
	if section, ok := e.cfg.SectionBoosts[strings.ToUpper(strings.TrimSpace(chunk.Section))]; ok {
		boost *= section
	}
	if chunk.IsVisual() {
		boost *= e.cfg.DiagramBoost
	}
	return boost
}

// mergeVariantHits keeps the best score per id across variants and returns
// the hits ranked by that score, first-seen order on ties.
func mergeVariantHits(lists ...[]domain.Hit) []domain.Hit {
	index := make(map[string]int)
	out := make([]domain.Hit, 0)
	for _, hits := range lists {
		for _, hit := range hits {
			pos, ok := index[hit.ID]
			if !ok {
				index[hit.ID] = len(out)
				out = append(out, hit)
				continue
			}
			current := out[pos]
			current.Payload = mergePayload(current.Payload, hit.Payload)
			if hit.Score > current.Score {
				current.Score = hit.Score
			}
			out[pos] = current
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

func mergePayload(current, candidate domain.Chunk) domain.Chunk {
	if current.ID == "" {
		current.ID = candidate.ID
	}
	if current.Text == "" {
		current.Text = candidate.Text
	}
	if current.DocumentID == "" {
		current.DocumentID = candidate.DocumentID
	}
	if current.Filename == "" {
		current.Filename = candidate.Filename
	}
	if current.Page == 0 {
		current.Page = candidate.Page
	}
	if current.ChunkIndex == 0 {
		current.ChunkIndex = candidate.ChunkIndex
	}
	if !current.IsDiagram {
		current.IsDiagram = candidate.IsDiagram
	}
	if current.Section == "" {
		current.Section = candidate.Section
	}
	if current.Modality == "" {
		current.Modality = candidate.Modality
	}
	return current
}
