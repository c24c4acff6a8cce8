// Package neo4j stores extracted entities as a property graph. Every node
// carries the Entity label plus its type label so ids are unique across types
// and the structured templates can match on type.
package neo4j

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kirillkom/construction-graphrag/internal/core/domain"
	"github.com/kirillkom/construction-graphrag/internal/infrastructure/resilience"
)

const maxFactTerms = 8

var (
	factTermPattern = regexp.MustCompile(`[A-Za-z0-9#\-/]+`)
	stopWords       = map[string]struct{}{
		"the": {}, "and": {}, "for": {}, "are": {}, "what": {}, "where": {}, "which": {}, "with": {},
		"does": {}, "show": {}, "list": {}, "find": {}, "from": {}, "this": {}, "that": {}, "how": {},
		"who": {}, "all": {}, "any": {}, "there": {}, "about": {}, "into": {},
	}
)

type runFunc func(ctx context.Context, cypher string, params map[string]any, write bool) ([]map[string]any, error)

type Store struct {
	run    runFunc
	close  func(context.Context) error
	logger *slog.Logger
}

type Config struct {
	URI      string
	User     string
	Password string
	Database string
}

// Open connects to Neo4j, verifies connectivity and ensures the id constraint.
func Open(ctx context.Context, cfg Config, executor *resilience.Executor, logger *slog.Logger) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}

	run := func(ctx context.Context, cypher string, params map[string]any, write bool) ([]map[string]any, error) {
		opts := []neo4j.ExecuteQueryConfigurationOption{neo4j.ExecuteQueryWithDatabase(cfg.Database)}
		if !write {
			opts = append(opts, neo4j.ExecuteQueryWithReadersRouting())
		}
		result, err := neo4j.ExecuteQuery(ctx, driver, cypher, params, neo4j.EagerResultTransformer, opts...)
		if err != nil {
			return nil, err
		}
		rows := make([]map[string]any, 0, len(result.Records))
		for _, record := range result.Records {
			rows = append(rows, record.AsMap())
		}
		return rows, nil
	}
	if executor != nil {
		run = withExecutor(run, executor)
	}

	store := &Store{run: run, close: driver.Close, logger: logger}
	if store.logger == nil {
		store.logger = slog.Default()
	}
	if err := store.ensureSchema(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}
	return store, nil
}

func withExecutor(run runFunc, executor *resilience.Executor) runFunc {
	return func(ctx context.Context, cypher string, params map[string]any, write bool) ([]map[string]any, error) {
		var rows []map[string]any
		operation := "neo4j.read"
		if write {
			operation = "neo4j.write"
		}
		err := executor.Execute(ctx, operation, func(ctx context.Context) error {
			var err error
			rows, err = run(ctx, cypher, params, write)
			return err
		}, classifyNeo4jError)
		return rows, err
	}
}

func classifyNeo4jError(err error) resilience.ErrorClassification {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if neo4j.IsRetryable(err) || resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) && strings.Contains(neoErr.Code, ".ClientError.") {
		// bad cypher or parameters; the server is fine
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

func (s *Store) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

func (s *Store) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE CONSTRAINT entity_id IF NOT EXISTS FOR (n:Entity) REQUIRE n.id IS UNIQUE`,
		`CREATE INDEX entity_doc_id IF NOT EXISTS FOR (n:Entity) ON (n.doc_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.run(ctx, stmt, nil, true); err != nil {
			return fmt.Errorf("ensure neo4j schema: %w", err)
		}
	}
	return nil
}

// SaveEntities merges entities by id, one UNWIND batch per label. Nodes
// shared with earlier documents take the latest doc_id.
func (s *Store) SaveEntities(ctx context.Context, documentID string, entities []domain.Entity) (int, error) {
	byLabel := make(map[string][]map[string]any)
	for _, e := range entities {
		label := domain.SanitizeLabel(e.Type)
		props := neo4jProperties(e.Properties)
		props["name"] = e.Name
		props["doc_id"] = documentID
		byLabel[label] = append(byLabel[label], map[string]any{"id": e.ID, "props": props})
	}

	saved := 0
	for _, label := range sortedKeys(byLabel) {
		cypher := fmt.Sprintf(`UNWIND $rows AS row
MERGE (n:Entity {id: row.id})
SET n:%s
SET n += row.props
RETURN count(n) AS saved`, label)
		rows, err := s.run(ctx, cypher, map[string]any{"rows": byLabel[label]}, true)
		if err != nil {
			return saved, fmt.Errorf("save %s entities: %w", label, err)
		}
		saved += intValue(firstValue(rows, "saved"))
	}
	return saved, nil
}

// SaveRelationships links existing nodes; relationships whose endpoints are
// missing are skipped by the MATCH.
func (s *Store) SaveRelationships(ctx context.Context, relationships []domain.Relationship) (int, error) {
	byType := make(map[string][]map[string]any)
	for _, r := range relationships {
		relType := domain.SanitizeRelationshipType(r.Type)
		byType[relType] = append(byType[relType], map[string]any{
			"source": r.SourceID,
			"target": r.TargetID,
			"props":  neo4jProperties(r.Properties),
		})
	}

	saved := 0
	for _, relType := range sortedKeys(byType) {
		cypher := fmt.Sprintf(`UNWIND $rows AS row
MATCH (a:Entity {id: row.source})
MATCH (b:Entity {id: row.target})
MERGE (a)-[r:%s]->(b)
SET r += row.props
RETURN count(r) AS saved`, relType)
		rows, err := s.run(ctx, cypher, map[string]any{"rows": byType[relType]}, true)
		if err != nil {
			return saved, fmt.Errorf("save %s relationships: %w", relType, err)
		}
		saved += intValue(firstValue(rows, "saved"))
	}
	return saved, nil
}

func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := s.run(ctx, `MATCH (n:Entity {doc_id: $doc_id}) DETACH DELETE n`, map[string]any{"doc_id": documentID}, true); err != nil {
		return fmt.Errorf("delete graph nodes: %w", err)
	}
	return nil
}

func (s *Store) Stats(ctx context.Context) (domain.GraphStats, error) {
	var stats domain.GraphStats
	queries := []struct {
		cypher string
		target *int64
	}{
		{`MATCH (n) RETURN count(n) AS count`, &stats.Nodes},
		{`MATCH ()-[r]->() RETURN count(r) AS count`, &stats.Relationships},
		{`MATCH (n) WHERE n.doc_id IS NOT NULL RETURN count(DISTINCT n.doc_id) AS count`, &stats.Documents},
	}
	for _, q := range queries {
		rows, err := s.run(ctx, q.cypher, nil, false)
		if err != nil {
			return domain.GraphStats{}, fmt.Errorf("graph stats: %w", err)
		}
		*q.target = int64(intValue(firstValue(rows, "count")))
	}
	return stats, nil
}

// SearchFacts returns nodes with any property containing a term of query,
// case-insensitively.
func (s *Store) SearchFacts(ctx context.Context, query string, limit int) ([]domain.GraphFact, error) {
	terms := factTerms(query)
	if len(terms) == 0 || limit <= 0 {
		return []domain.GraphFact{}, nil
	}

	rows, err := s.run(ctx, `MATCH (n:Entity)
WHERE any(term IN $terms WHERE any(prop IN keys(n) WHERE prop <> 'doc_id' AND toLower(toString(n[prop])) CONTAINS term))
RETURN elementId(n) AS node_id, labels(n) AS labels, properties(n) AS props
LIMIT $limit`, map[string]any{"terms": terms, "limit": limit}, false)
	if err != nil {
		return nil, fmt.Errorf("search graph facts: %w", err)
	}

	facts := make([]domain.GraphFact, 0, len(rows))
	for _, row := range rows {
		props, _ := row["props"].(map[string]any)
		nodeID, _ := row["node_id"].(string)
		facts = append(facts, domain.GraphFact{
			Text:   FactText(nodeLabel(row["labels"]), props),
			NodeID: nodeID,
		})
	}
	return facts, nil
}

// Run executes a read-only template query.
func (s *Store) Run(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	rows, err := s.run(ctx, cypher, params, false)
	if err != nil {
		return nil, fmt.Errorf("run graph template: %w", err)
	}
	return rows, nil
}

// FactText renders "<Label>: k=v, k=v" with keys sorted, leaving out the
// bookkeeping properties doc_id and id.
func FactText(label string, props map[string]any) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		if k == "doc_id" || k == "id" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, props[k]))
	}
	return label + ": " + strings.Join(parts, ", ")
}

func nodeLabel(raw any) string {
	labels, _ := raw.([]any)
	for _, l := range labels {
		if s, ok := l.(string); ok && s != "Entity" {
			return s
		}
	}
	return "Node"
}

func factTerms(query string) []string {
	seen := make(map[string]struct{})
	terms := make([]string, 0, maxFactTerms)
	for _, token := range factTermPattern.FindAllString(query, -1) {
		term := strings.ToLower(token)
		if len(term) < 3 {
			continue
		}
		if _, stop := stopWords[term]; stop {
			continue
		}
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
		if len(terms) == maxFactTerms {
			break
		}
	}
	return terms
}

// neo4jProperties keeps values Neo4j can store as properties and renders
// anything nested as text.
func neo4jProperties(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		switch v.(type) {
		case nil:
			continue
		case string, bool, int, int64, float64, float32:
			out[k] = v
		default:
			out[k] = fmt.Sprintf("%v", v)
		}
	}
	return out
}

func firstValue(rows []map[string]any, key string) any {
	if len(rows) == 0 {
		return nil
	}
	return rows[0][key]
}

func intValue(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
