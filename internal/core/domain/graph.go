package domain

import (
	"strings"
	"unicode"
)

// Entity is a graph node produced by entity extraction.
type Entity struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Relationship links two entities by ID.
type Relationship struct {
	SourceID   string         `json:"source_id"`
	TargetID   string         `json:"target_id"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
}

// GraphFact is a flattened text projection of a graph node match.
type GraphFact struct {
	Text   string `json:"text"`
	NodeID string `json:"node_id"`
}

type GraphStats struct {
	Nodes         int64 `json:"nodes"`
	Relationships int64 `json:"relationships"`
	Documents     int64 `json:"documents"`
}

// EntityID derives a stable identifier so the same entity extracted from
// different pages or documents merges into one node.
func EntityID(entityType, name string) string {
	return strings.ToLower(SanitizeLabel(entityType)) + ":" + strings.ToLower(strings.TrimSpace(name))
}

// SanitizeLabel turns an entity type into a safe graph label: whitespace
// becomes "_" and anything outside [A-Za-z0-9_] is dropped.
func SanitizeLabel(raw string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case unicode.IsSpace(r):
			b.WriteRune('_')
		case r == '_' || (r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))):
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" || unicode.IsDigit(rune(out[0])) {
		out = "Entity" + out
	}
	return out
}

// SanitizeRelationshipType is SanitizeLabel upper-cased.
func SanitizeRelationshipType(raw string) string {
	out := strings.ToUpper(SanitizeLabel(raw))
	if out == "ENTITY" {
		return "RELATED_TO"
	}
	return out
}
