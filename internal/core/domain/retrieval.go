package domain

// SourceKind names one retrieval source taking part in fusion.
type SourceKind string

const (
	SourceVector  SourceKind = "vector"
	SourceLexical SourceKind = "lexical"
	SourceImage   SourceKind = "image"
	SourceGraph   SourceKind = "graph"
)

// Hit is a single search result. Score is the raw source score when produced
// by an index and the boosted fused score once returned by the fusion engine.
type Hit struct {
	ID       string  `json:"id"`
	Score    float64 `json:"score"`
	RawScore float64 `json:"raw_score,omitempty"`
	Payload  Chunk   `json:"payload"`
}

// QueryEmbedding carries a query vector. Placeholder is set when the
// embedding call failed and Vector is the zero vector.
type QueryEmbedding struct {
	Vector      []float32
	Placeholder bool
}

type AnswerType string

const (
	AnswerTypeGeneral    AnswerType = "general"
	AnswerTypeStructured AnswerType = "structured"
)

const NoContextAnswer = "I couldn't find sufficient information in the documents or knowledge graph to answer this question."

type AnswerSource struct {
	DocumentID string  `json:"doc_id"`
	Filename   string  `json:"filename"`
	Page       int     `json:"page"`
	Score      float64 `json:"score"`
	IsDiagram  bool    `json:"is_diagram"`
	Section    string  `json:"section"`
}

type Answer struct {
	Text           string         `json:"answer"`
	Sources        []AnswerSource `json:"sources"`
	GraphFactsUsed int            `json:"graph_facts_used"`
	Type           AnswerType     `json:"type"`
	Route          *RouteDecision `json:"route,omitempty"`
}
