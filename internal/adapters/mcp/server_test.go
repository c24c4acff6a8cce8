package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/construction-graphrag/internal/core/domain"
)

type queryFake struct {
	err error
}

func (f queryFake) Answer(_ context.Context, question string) (*domain.Answer, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Answer{Text: "answer to " + question, Type: domain.AnswerTypeGeneral}, nil
}

type plannerFake struct{}

func (plannerFake) Route(question string) domain.RouteDecision {
	if question == "What references M-501?" {
		return domain.RouteDecision{Kind: domain.RouteStructured, Template: domain.TemplateFindReferences, Params: map[string]string{"sheet_id": "M-501"}}
	}
	return domain.RouteDecision{Kind: domain.RouteHybrid}
}

func (plannerFake) BuildQuery(domain.RouteDecision) (domain.GraphQuery, error) {
	return domain.GraphQuery{Cypher: "MATCH (n) RETURN n", Params: map[string]any{}}, nil
}

func (plannerFake) Expand(question string) []string {
	return []string{question, question + " air handling unit"}
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return text.Text
}

func newTestServer(q queryFake) *Server {
	return New(q, plannerFake{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestQueryTool(t *testing.T) {
	s := newTestServer(queryFake{})

	res, err := s.handleQuery(context.Background(), callRequest(map[string]any{"question": " Where is AHU-1? "}))
	if err != nil {
		t.Fatalf("handleQuery() error = %v", err)
	}
	var answer domain.Answer
	if err := json.Unmarshal([]byte(resultText(t, res)), &answer); err != nil {
		t.Fatalf("decode answer: %v", err)
	}
	if answer.Text != "answer to Where is AHU-1?" {
		t.Fatalf("unexpected answer %q", answer.Text)
	}
}

func TestQueryToolReportsFailureAsToolError(t *testing.T) {
	s := newTestServer(queryFake{err: errors.New("synthesis failure")})

	res, err := s.handleQuery(context.Background(), callRequest(map[string]any{"question": "x"}))
	if err != nil {
		t.Fatalf("handleQuery() error = %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error result")
	}
}

func TestToolsRequireQuestion(t *testing.T) {
	s := newTestServer(queryFake{})

	for name, handler := range map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"query":  s.handleQuery,
		"route":  s.handleRoute,
		"expand": s.handleExpand,
	} {
		res, err := handler(context.Background(), callRequest(map[string]any{}))
		if err != nil {
			t.Fatalf("%s: unexpected error %v", name, err)
		}
		if !res.IsError {
			t.Fatalf("%s: expected missing question to be a tool error", name)
		}
	}
}

func TestRouteToolIncludesCypherForStructuredQuestions(t *testing.T) {
	s := newTestServer(queryFake{})

	res, err := s.handleRoute(context.Background(), callRequest(map[string]any{"question": "What references M-501?"}))
	if err != nil {
		t.Fatalf("handleRoute() error = %v", err)
	}
	var out routeResult
	if err := json.Unmarshal([]byte(resultText(t, res)), &out); err != nil {
		t.Fatalf("decode route: %v", err)
	}
	if out.Decision.Template != domain.TemplateFindReferences || out.Query == nil {
		t.Fatalf("unexpected route result %+v", out)
	}
}

func TestExpandTool(t *testing.T) {
	s := newTestServer(queryFake{})

	res, err := s.handleExpand(context.Background(), callRequest(map[string]any{"question": "AHU"}))
	if err != nil {
		t.Fatalf("handleExpand() error = %v", err)
	}
	var out struct {
		Variants []string `json:"variants"`
	}
	if err := json.Unmarshal([]byte(resultText(t, res)), &out); err != nil {
		t.Fatalf("decode variants: %v", err)
	}
	if len(out.Variants) != 2 {
		t.Fatalf("unexpected variants %+v", out.Variants)
	}
}

func TestMCPServerBuilds(t *testing.T) {
	if newTestServer(queryFake{}).MCPServer() == nil {
		t.Fatalf("expected server")
	}
}
