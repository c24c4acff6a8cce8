package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/construction-graphrag/internal/core/domain"
	"github.com/kirillkom/construction-graphrag/internal/core/ports"
)

const (
	defaultSynthesisChunks = 20
	defaultGraphFactLimit  = 30
)

// Retriever produces the fused context set for a question.
type Retriever interface {
	Retrieve(ctx context.Context, question string, topK int) ([]domain.Hit, error)
}

type QueryConfig struct {
	ContextTopK      int
	SynthesisChunks  int
	GraphFactLimit   int
	SearchTimeout    time.Duration
	SynthesisTimeout time.Duration
}

type QueryUseCase struct {
	router      *Router
	expander    *Expander
	retriever   Retriever
	graph       ports.GraphSearcher
	synthesizer ports.Synthesizer
	cfg         QueryConfig
	logger      *slog.Logger
	observer    RetrievalObserver
}

func NewQueryUseCase(
	router *Router,
	expander *Expander,
	retriever Retriever,
	graph ports.GraphSearcher,
	synthesizer ports.Synthesizer,
	cfg QueryConfig,
	logger *slog.Logger,
	observer RetrievalObserver,
) *QueryUseCase {
	if router == nil {
		router = NewRouter()
	}
	if expander == nil {
		expander = NewExpander(nil, 0)
	}
	if cfg.ContextTopK <= 0 {
		cfg.ContextTopK = defaultContextTopK
	}
	if cfg.SynthesisChunks <= 0 {
		cfg.SynthesisChunks = defaultSynthesisChunks
	}
	if cfg.GraphFactLimit <= 0 {
		cfg.GraphFactLimit = defaultGraphFactLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &QueryUseCase{
		router:      router,
		expander:    expander,
		retriever:   retriever,
		graph:       graph,
		synthesizer: synthesizer,
		cfg:         cfg,
		logger:      logger,
		observer:    observer,
	}
}

func (uc *QueryUseCase) Route(question string) domain.RouteDecision {
	return uc.router.Route(question)
}

func (uc *QueryUseCase) BuildQuery(decision domain.RouteDecision) (domain.GraphQuery, error) {
	return uc.router.BuildQuery(decision)
}

func (uc *QueryUseCase) Expand(question string) []string {
	return uc.expander.Expand(question)
}

// Answer routes the question, gathers context and facts and synthesizes an
// answer. Degraded sources only make the answer sparser; a synthesis failure
// fails the call.
func (uc *QueryUseCase) Answer(ctx context.Context, question string) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer", errors.New("question is empty"))
	}

	decision := uc.router.Route(question)
	uc.observer.ObserveRoute(decision)

	if decision.IsStructured() {
		answer, err := uc.answerStructured(ctx, question, decision)
		if err != nil {
			return nil, err
		}
		if answer != nil {
			return answer, nil
		}
		uc.logger.Info("structured_route_empty",
			"template", string(decision.Template),
			"fallback", string(domain.RouteHybrid),
		)
	}

	return uc.answerHybrid(ctx, question, decision)
}

// answerStructured returns a nil answer when the template produced no rows so
// the caller can fall back to hybrid retrieval.
func (uc *QueryUseCase) answerStructured(ctx context.Context, question string, decision domain.RouteDecision) (*domain.Answer, error) {
	query, err := uc.router.BuildQuery(decision)
	if err != nil {
		return nil, err
	}
	if uc.graph == nil {
		return nil, nil
	}

	searchCtx, cancel := uc.withTimeout(ctx, uc.cfg.SearchTimeout)
	rows, err := uc.graph.Run(searchCtx, query.Cypher, query.Params)
	cancel()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		uc.observer.ObserveSourceFailure(domain.SourceGraph)
		uc.logger.Warn("source_search_failed",
			"source", string(domain.SourceGraph),
			"template", string(decision.Template),
			"error", domain.WrapError(domain.ErrSourceUnavailable, "run graph template", err),
		)
		return nil, nil
	}

	facts := rowsToFacts(rows)
	if len(facts) == 0 {
		return nil, nil
	}

	text, err := uc.synthesize(ctx, question, nil, facts)
	if err != nil {
		return nil, err
	}
	route := decision
	return &domain.Answer{
		Text:           text,
		Sources:        []domain.AnswerSource{},
		GraphFactsUsed: len(facts),
		Type:           domain.AnswerTypeStructured,
		Route:          &route,
	}, nil
}

func (uc *QueryUseCase) answerHybrid(ctx context.Context, question string, decision domain.RouteDecision) (*domain.Answer, error) {
	var (
		hits  []domain.Hit
		facts []domain.GraphFact
	)

	g, gctx := errgroup.WithContext(ctx)
	if uc.retriever != nil {
		g.Go(func() error {
			var err error
			hits, err = uc.retriever.Retrieve(gctx, question, uc.cfg.ContextTopK)
			return err
		})
	}
	if uc.graph != nil {
		g.Go(func() error {
			facts = uc.searchFacts(gctx, question)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	route := decision
	contextHits := hits
	if len(contextHits) > uc.cfg.SynthesisChunks {
		contextHits = contextHits[:uc.cfg.SynthesisChunks]
	}
	if len(contextHits) == 0 && len(facts) == 0 {
		uc.observer.ObserveNoContext()
		uc.logger.Info("no_context_found", "question_chars", len(question))
		return &domain.Answer{
			Text:    domain.NoContextAnswer,
			Sources: []domain.AnswerSource{},
			Type:    domain.AnswerTypeGeneral,
			Route:   &route,
		}, nil
	}

	text, err := uc.synthesize(ctx, question, contextHits, facts)
	if err != nil {
		return nil, err
	}

	sources := make([]domain.AnswerSource, 0, len(contextHits))
	for _, hit := range contextHits {
		sources = append(sources, domain.AnswerSource{
			DocumentID: hit.Payload.DocumentID,
			Filename:   hit.Payload.Filename,
			Page:       hit.Payload.Page,
			Score:      hit.Score,
			IsDiagram:  hit.Payload.IsDiagram,
			Section:    hit.Payload.Section,
		})
	}

	return &domain.Answer{
		Text:           text,
		Sources:        sources,
		GraphFactsUsed: len(facts),
		Type:           domain.AnswerTypeGeneral,
		Route:          &route,
	}, nil
}

func (uc *QueryUseCase) searchFacts(ctx context.Context, question string) []domain.GraphFact {
	searchCtx, cancel := uc.withTimeout(ctx, uc.cfg.SearchTimeout)
	defer cancel()

	facts, err := uc.graph.SearchFacts(searchCtx, question, uc.cfg.GraphFactLimit)
	if err != nil {
		if ctx.Err() == nil {
			uc.observer.ObserveSourceFailure(domain.SourceGraph)
			uc.logger.Warn("source_search_failed",
				"source", string(domain.SourceGraph),
				"error", domain.WrapError(domain.ErrSourceUnavailable, "search graph facts", err),
			)
		}
		return nil
	}
	uc.observer.ObserveSourceHits(domain.SourceGraph, len(facts))
	return facts
}

func (uc *QueryUseCase) synthesize(ctx context.Context, question string, hits []domain.Hit, facts []domain.GraphFact) (string, error) {
	if uc.synthesizer == nil {
		return "", domain.WrapError(domain.ErrSynthesisFailure, "synthesize answer", errors.New("synthesizer is not configured"))
	}
	synthCtx, cancel := uc.withTimeout(ctx, uc.cfg.SynthesisTimeout)
	defer cancel()

	text, err := uc.synthesizer.Synthesize(synthCtx, question, hits, facts)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", domain.WrapError(domain.ErrSynthesisFailure, "synthesize answer", err)
	}
	return text, nil
}

func (uc *QueryUseCase) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// rowsToFacts flattens template rows into "key=value" facts with keys in
// sorted order. Rows whose values are all null are dropped.
func rowsToFacts(rows []map[string]any) []domain.GraphFact {
	facts := make([]domain.GraphFact, 0, len(rows))
	for _, row := range rows {
		keys := make([]string, 0, len(row))
		for key, value := range row {
			if value == nil {
				continue
			}
			keys = append(keys, key)
		}
		if len(keys) == 0 {
			continue
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", key, row[key]))
		}
		facts = append(facts, domain.GraphFact{Text: strings.Join(parts, ", ")})
	}
	return facts
}
