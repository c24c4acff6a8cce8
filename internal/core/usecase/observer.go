package usecase

import "github.com/kirillkom/construction-graphrag/internal/core/domain"

// RetrievalObserver receives retrieval events for metrics.
type RetrievalObserver interface {
	ObserveSourceHits(source domain.SourceKind, hits int)
	ObserveSourceFailure(source domain.SourceKind)
	ObserveDegradedEmbedding(embedder string)
	ObserveNoContext()
	ObserveRoute(decision domain.RouteDecision)
}

type noopObserver struct{}

func (noopObserver) ObserveSourceHits(domain.SourceKind, int) {}
func (noopObserver) ObserveSourceFailure(domain.SourceKind) {}
func (noopObserver) ObserveDegradedEmbedding(string) {}
func (noopObserver) ObserveNoContext() {}
func (noopObserver) ObserveRoute(domain.RouteDecision) {}
