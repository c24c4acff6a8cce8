package neo4j

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/construction-graphrag/internal/core/domain"
)

type runCall struct {
	cypher string
	params map[string]any
	write  bool
}

type fakeRunner struct {
	calls []runCall
	rows  func(cypher string) []map[string]any
	err   error
}

func (f *fakeRunner) run(_ context.Context, cypher string, params map[string]any, write bool) ([]map[string]any, error) {
	f.calls = append(f.calls, runCall{cypher: cypher, params: params, write: write})
	if f.err != nil {
		return nil, f.err
	}
	if f.rows == nil {
		return nil, nil
	}
	return f.rows(cypher), nil
}

func newTestStore(f *fakeRunner) *Store {
	return &Store{run: f.run}
}

func TestSaveEntitiesBatchesPerLabel(t *testing.T) {
	runner := &fakeRunner{rows: func(string) []map[string]any {
		return []map[string]any{{"saved": int64(1)}}
	}}
	store := newTestStore(runner)
	entities := []domain.Entity{
		{ID: "component:ahu-1", Name: "AHU-1", Type: "Component", Properties: map[string]any{"tag": "AHU-1", "spec": map[string]any{"cfm": 2000}}},
		{ID: "drawing:m-201", Name: "M-201", Type: "Drawing"},
		{ID: "location:room 101", Name: "Room 101", Type: "Location"},
	}

	saved, err := store.SaveEntities(context.Background(), "doc-1", entities)
	if err != nil {
		t.Fatalf("SaveEntities() error = %v", err)
	}
	if saved != 3 || len(runner.calls) != 3 {
		t.Fatalf("expected one batch per label, got saved=%d calls=%d", saved, len(runner.calls))
	}
	first := runner.calls[0]
	if !strings.Contains(first.cypher, "SET n:Component") || !first.write {
		t.Fatalf("unexpected cypher %s", first.cypher)
	}
	rows := first.params["rows"].([]map[string]any)
	props := rows[0]["props"].(map[string]any)
	if props["doc_id"] != "doc-1" || props["name"] != "AHU-1" {
		t.Fatalf("unexpected props %+v", props)
	}
	if _, ok := props["spec"].(string); !ok {
		t.Fatalf("expected nested property rendered as text, got %T", props["spec"])
	}
}

func TestSaveRelationshipsSanitizesTypes(t *testing.T) {
	runner := &fakeRunner{rows: func(string) []map[string]any {
		return []map[string]any{{"saved": int64(2)}}
	}}
	store := newTestStore(runner)
	rels := []domain.Relationship{
		{SourceID: "component:lp-1", TargetID: "component:ahu-1", Type: "feeds"},
		{SourceID: "component:lp-1", TargetID: "component:ahu-2", Type: "feeds"},
	}
	saved, err := store.SaveRelationships(context.Background(), rels)
	if err != nil {
		t.Fatalf("SaveRelationships() error = %v", err)
	}
	if saved != 2 || len(runner.calls) != 1 {
		t.Fatalf("expected single FEEDS batch, got saved=%d calls=%d", saved, len(runner.calls))
	}
	if !strings.Contains(runner.calls[0].cypher, "MERGE (a)-[r:FEEDS]->(b)") {
		t.Fatalf("unexpected cypher %s", runner.calls[0].cypher)
	}
}

func TestSearchFactsFormatsNodes(t *testing.T) {
	runner := &fakeRunner{rows: func(string) []map[string]any {
		return []map[string]any{{
			"node_id": "4:abc:1",
			"labels":  []any{"Entity", "Component"},
			"props":   map[string]any{"tag": "AHU-1", "type": "air handler", "doc_id": "doc-1", "id": "component:ahu-1", "name": "AHU-1"},
		}}
	}}
	store := newTestStore(runner)

	facts, err := store.SearchFacts(context.Background(), "Where is AHU-1 on the roof?", 30)
	if err != nil {
		t.Fatalf("SearchFacts() error = %v", err)
	}
	if len(facts) != 1 {
		t.Fatalf("expected 1 fact, got %d", len(facts))
	}
	if facts[0].Text != "Component: name=AHU-1, tag=AHU-1, type=air handler" || facts[0].NodeID != "4:abc:1" {
		t.Fatalf("unexpected fact %+v", facts[0])
	}
	terms := runner.calls[0].params["terms"].([]string)
	if strings.Join(terms, ",") != "ahu-1,roof" {
		t.Fatalf("unexpected terms %v", terms)
	}
	if runner.calls[0].write {
		t.Fatalf("fact search must use read routing")
	}
}

func TestSearchFactsSkipsQueryWithoutTerms(t *testing.T) {
	runner := &fakeRunner{}
	facts, err := newTestStore(runner).SearchFacts(context.Background(), "is it on?", 30)
	if err != nil || len(facts) != 0 || len(runner.calls) != 0 {
		t.Fatalf("expected no query, got facts=%v calls=%d err=%v", facts, len(runner.calls), err)
	}
}

func TestStats(t *testing.T) {
	counts := map[string]int64{"count(n)": 12, "count(r)": 9, "DISTINCT": 2}
	runner := &fakeRunner{rows: func(cypher string) []map[string]any {
		for marker, n := range counts {
			if strings.Contains(cypher, marker) {
				return []map[string]any{{"count": n}}
			}
		}
		return nil
	}}
	stats, err := newTestStore(runner).Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Nodes != 12 || stats.Relationships != 9 || stats.Documents != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestRunWrapsErrors(t *testing.T) {
	runner := &fakeRunner{err: errors.New("connection refused")}
	_, err := newTestStore(runner).Run(context.Background(), "MATCH (n) RETURN n", nil)
	if err == nil || !strings.Contains(err.Error(), "run graph template") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestDeleteDocument(t *testing.T) {
	runner := &fakeRunner{}
	if err := newTestStore(runner).DeleteDocument(context.Background(), "doc-7"); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	if runner.calls[0].params["doc_id"] != "doc-7" || !strings.Contains(runner.calls[0].cypher, "DETACH DELETE") {
		t.Fatalf("unexpected call %+v", runner.calls[0])
	}
}
