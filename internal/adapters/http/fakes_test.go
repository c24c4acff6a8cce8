package httpadapter

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/kirillkom/construction-graphrag/internal/config"
	"github.com/kirillkom/construction-graphrag/internal/core/domain"
	"github.com/kirillkom/construction-graphrag/internal/observability/metrics"
)

type ingestFake struct {
	err error
}

func (f ingestFake) Upload(_ context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", io.EOF)
	}
	now := time.Now().UTC()
	return &domain.Document{
		ID:          "doc-1",
		Filename:    filename,
		MimeType:    mimeType,
		StoragePath: "doc-1_" + filename,
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

type queryFake struct {
	answer *domain.Answer
	err    error
	got    string
}

func (f *queryFake) Answer(_ context.Context, question string) (*domain.Answer, error) {
	f.got = question
	if f.err != nil {
		return nil, f.err
	}
	if f.answer != nil {
		return f.answer, nil
	}
	return &domain.Answer{Text: "ok", Type: domain.AnswerTypeGeneral}, nil
}

type plannerFake struct{}

func (plannerFake) Route(question string) domain.RouteDecision {
	if question == "What references M-501?" {
		return domain.RouteDecision{
			Kind:     domain.RouteStructured,
			Template: domain.TemplateFindReferences,
			Params:   map[string]string{"sheet_id": "M-501"},
		}
	}
	return domain.RouteDecision{Kind: domain.RouteHybrid}
}

func (plannerFake) BuildQuery(decision domain.RouteDecision) (domain.GraphQuery, error) {
	return domain.GraphQuery{
		Cypher: "MATCH (s:Drawing {sheetId: $sheet_id})<-[:REFERENCES]-(x) RETURN x",
		Params: map[string]any{"sheet_id": decision.Params["sheet_id"]},
	}, nil
}

func (plannerFake) Expand(question string) []string {
	return []string{question}
}

type docsFake struct {
	err error
}

func (f docsFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Document{ID: id, Filename: "plan.pdf", MimeType: domain.MediaTypePDF, Status: domain.StatusReady}, nil
}

func (f docsFake) List(_ context.Context, limit int) ([]domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	docs := []domain.Document{{ID: "doc-2"}, {ID: "doc-1"}}
	if limit < len(docs) {
		docs = docs[:limit]
	}
	return docs, nil
}

type adminFake struct {
	deleteErr error
	deleted   string
}

func (f *adminFake) Delete(_ context.Context, documentID string) error {
	f.deleted = documentID
	return f.deleteErr
}

func (f *adminFake) Stats(context.Context) (domain.IndexStats, error) {
	return domain.IndexStats{
		VectorChunks:  10,
		LexicalChunks: 10,
		ImageChunks:   2,
		Graph:         domain.GraphStats{Nodes: 40, Relationships: 55, Documents: 3},
	}, nil
}

type testServices struct {
	ingest ingestFake
	query  *queryFake
	docs   docsFake
	admin  *adminFake
}

func newTestHandler(t *testing.T, cfg config.Config, overrides ...func(*testServices)) (http.Handler, *testServices) {
	t.Helper()
	svc := &testServices{query: &queryFake{}, admin: &adminFake{}}
	for _, fn := range overrides {
		fn(svc)
	}
	rt, err := NewRouter(cfg, Services{
		Ingest:  svc.ingest,
		Query:   svc.query,
		Planner: plannerFake{},
		Docs:    svc.docs,
		Admin:   svc.admin,
	}, metrics.NewHTTPServerMetrics("api-test"), discardLogger())
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	return rt.Handler(), svc
}
