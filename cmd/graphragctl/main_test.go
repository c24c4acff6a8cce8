package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/construction-graphrag/internal/core/domain"
)

func newAPIStub(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var calls []string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/query", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		calls = append(calls, "query:"+req["question"])
		_ = json.NewEncoder(w).Encode(domain.Answer{
			Text:    "AHU-1 is in Room 101.",
			Sources: []domain.AnswerSource{{Filename: "M-101.pdf", Page: 3, Section: "KEY PLAN", IsDiagram: true, Score: 0.0328}},
		})
	})
	mux.HandleFunc("POST /v1/route", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "route")
		_ = json.NewEncoder(w).Encode(routePreview{
			Decision:   domain.RouteDecision{Kind: domain.RouteStructured, Template: domain.TemplateListOnSheet, Params: map[string]string{"sheet_id": "M-501"}},
			Query:      &domain.GraphQuery{Cypher: "MATCH (d:Drawing {sheetId: $sheet_id}) RETURN d"},
			Expansions: []string{"what is on M-501", "what is on sheet M-501"},
		})
	})
	mux.HandleFunc("GET /v1/stats", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(domain.IndexStats{VectorChunks: 12, LexicalChunks: 12, Graph: domain.GraphStats{Nodes: 7}})
	})
	mux.HandleFunc("DELETE /v1/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "missing" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "document not found"})
			return
		}
		calls = append(calls, "delete:"+r.PathValue("id"))
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &calls
}

func run(t *testing.T, apiURL string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--api", apiURL}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestQueryCommandPrintsAnswerAndSources(t *testing.T) {
	srv, calls := newAPIStub(t)

	out, err := run(t, srv.URL, "query", "Where", "is", "AHU-1?")
	if err != nil {
		t.Fatalf("query error = %v", err)
	}
	if (*calls)[0] != "query:Where is AHU-1?" {
		t.Fatalf("expected joined question, got %v", *calls)
	}
	if !strings.Contains(out, "AHU-1 is in Room 101.") || !strings.Contains(out, "M-101.pdf / KEY PLAN p.3 (diagram)") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRouteAndExpandCommands(t *testing.T) {
	srv, _ := newAPIStub(t)

	out, err := run(t, srv.URL, "route", "What is on M-501?")
	if err != nil {
		t.Fatalf("route error = %v", err)
	}
	if !strings.Contains(out, "template: list_on_sheet") || !strings.Contains(out, "sheet_id = M-501") {
		t.Fatalf("unexpected route output:\n%s", out)
	}

	out, err = run(t, srv.URL, "expand", "What is on M-501?")
	if err != nil {
		t.Fatalf("expand error = %v", err)
	}
	if !strings.Contains(out, "2. what is on sheet M-501") {
		t.Fatalf("unexpected expand output:\n%s", out)
	}
}

func TestStatsCommandJSON(t *testing.T) {
	srv, _ := newAPIStub(t)

	out, err := run(t, srv.URL, "--json", "stats")
	if err != nil {
		t.Fatalf("stats error = %v", err)
	}
	var stats domain.IndexStats
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decode stats: %v\n%s", err, out)
	}
	if stats.VectorChunks != 12 || stats.Graph.Nodes != 7 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestDeleteCommandReportsAPIError(t *testing.T) {
	srv, calls := newAPIStub(t)

	if _, err := run(t, srv.URL, "delete", "doc-1"); err != nil {
		t.Fatalf("delete error = %v", err)
	}
	if (*calls)[0] != "delete:doc-1" {
		t.Fatalf("unexpected calls %v", *calls)
	}

	_, err := run(t, srv.URL, "delete", "missing")
	if err == nil || !strings.Contains(err.Error(), "document not found") {
		t.Fatalf("expected API error message, got %v", err)
	}
}
