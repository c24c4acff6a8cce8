package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kirillkom/construction-graphrag/internal/core/domain"
)

const entityTemperature = 0.1

// locationTypes and drawingTypes fold LLM vocabulary into the node labels the
// regex strategy produces, so both strategies merge into the same nodes.
var (
	tagPattern    = regexp.MustCompile(`^[A-Z]{1,4}-\d{1,4}[A-Z]?$`)
	locationTypes = map[string]struct{}{"location": {}, "room": {}, "zone": {}, "area": {}, "floor": {}, "level": {}}
	drawingTypes  = map[string]struct{}{"drawing": {}, "sheet": {}}
)

type EntityExtractor struct {
	client *Client
}

func NewEntityExtractor(client *Client) *EntityExtractor {
	return &EntityExtractor{client: client}
}

type llmEntity struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

type llmRelationship struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

func (x *EntityExtractor) ExtractEntities(ctx context.Context, doc *domain.Document, text string) ([]domain.Entity, []domain.Relationship, error) {
	raw, err := x.client.generateJSON(ctx, buildEntityPrompt(doc.Filename, text), entityTemperature)
	if err != nil {
		return nil, nil, err
	}

	var payload struct {
		Entities      []llmEntity       `json:"entities"`
		Relationships []llmRelationship `json:"relationships"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &payload); err != nil {
		return nil, nil, fmt.Errorf("parse entity json: %w", err)
	}

	ids := make(map[string]string, len(payload.Entities))
	entities := make([]domain.Entity, 0, len(payload.Entities))
	for _, item := range payload.Entities {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			continue
		}
		entity := normalizeEntity(name, item.Type, item.Properties)
		entity.Properties["doc_id"] = doc.ID
		if item.ID != "" {
			ids[item.ID] = entity.ID
		}
		ids[name] = entity.ID
		entities = append(entities, entity)
	}

	relationships := make([]domain.Relationship, 0, len(payload.Relationships))
	for _, item := range payload.Relationships {
		source, okSource := ids[item.Source]
		target, okTarget := ids[item.Target]
		if !okSource || !okTarget || source == target {
			continue
		}
		relationships = append(relationships, domain.Relationship{
			SourceID: source,
			TargetID: target,
			Type:     domain.SanitizeRelationshipType(item.Type),
		})
	}
	return entities, relationships, nil
}

func normalizeEntity(name, rawType string, props map[string]any) domain.Entity {
	if props == nil {
		props = make(map[string]any)
	}
	kind := strings.ToLower(strings.TrimSpace(rawType))

	var label string
	switch {
	case kind == "":
		label = "Component"
	case contains(locationTypes, kind):
		label = "Location"
		if kind != "location" {
			props["kind"] = kind
		}
	case contains(drawingTypes, kind):
		label = "Drawing"
		name = strings.ToUpper(name)
		props["sheetId"] = name
	case kind == "system":
		label = "System"
	default:
		label = "Component"
		props["type"] = strings.ReplaceAll(kind, "_", " ")
	}

	if label == "Component" {
		name = strings.ToUpper(name)
		if tagPattern.MatchString(name) {
			props["tag"] = name
		}
	}
	return domain.Entity{
		ID:         domain.EntityID(label, name),
		Name:       name,
		Type:       label,
		Properties: props,
	}
}

func contains(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
