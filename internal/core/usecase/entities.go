package usecase

import (
	"context"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kirillkom/construction-graphrag/internal/core/domain"
	"github.com/kirillkom/construction-graphrag/internal/core/ports"
)

const (
	EntityComponent = "Component"
	EntityDrawing   = "Drawing"
	EntityDetail    = "Detail"
	EntityLocation  = "Location"

	RelReferences = "REFERENCES"
	RelContains   = "CONTAINS"
	RelLocatedIn  = "LOCATED_IN"
	RelHasDetail  = "HAS_DETAIL"
)

var (
	componentTagPattern = regexp.MustCompile(`\b([A-Z]{1,4}-\d{1,4}[A-Z]?)\b`)
	sheetRefPattern     = regexp.MustCompile(`(?i)\b(?:see|refer\s+to|ref\.?)\s+(?:sheet|dwg\.?|drawing)\s+([A-Z]-?\d{2,4})\b`)
	detailRefPattern    = regexp.MustCompile(`(?i)\bdetail\s+(\d+)\s*/\s*([A-Z]-?\d{2,4})\b`)
	roomPattern         = regexp.MustCompile(`(?i)\b(?:room|rm\.?)\s+(\d{1,4}[A-Z]?)\b`)
	zonePattern         = regexp.MustCompile(`(?i)\b(?:zone|area)\s+([A-Z0-9]{1,4})\b`)
	sheetInNamePattern  = regexp.MustCompile(`(?i)\b([A-Z]{1,2}-?\d{2,4})\b`)
)

// componentKinds maps common tag prefixes to an equipment type.
var componentKinds = map[string]string{
	"AHU":  "air handler",
	"RTU":  "rooftop unit",
	"VAV":  "vav box",
	"EF":   "exhaust fan",
	"SF":   "supply fan",
	"RF":   "return fan",
	"P":    "pump",
	"HWP":  "pump",
	"CHWP": "pump",
	"WH":   "water heater",
	"B":    "boiler",
	"CH":   "chiller",
	"LP":   "panel",
	"DP":   "panel",
	"MDP":  "panel",
	"EP":   "panel",
	"MCC":  "mcc",
	"XFMR": "transformer",
	"T":    "transformer",
	"NG":   "nitrogen generator",
}

// RegexEntityExtractor finds drawings, details, components and locations in
// page text and links them with the relationships the graph templates read.
type RegexEntityExtractor struct{}

func (RegexEntityExtractor) ExtractEntities(_ context.Context, doc *domain.Document, text string) ([]domain.Entity, []domain.Relationship, error) {
	b := newGraphBuilder()

	sheetID, title := documentSheet(doc)
	drawingID := b.entity(EntityDrawing, sheetID, map[string]any{"sheetId": sheetID, "title": title})
	sheets := map[string]struct{}{sheetID: {}}

	for _, m := range sheetRefPattern.FindAllStringSubmatch(text, -1) {
		target := strings.ToUpper(m[1])
		sheets[target] = struct{}{}
		if target == sheetID {
			continue
		}
		targetID := b.entity(EntityDrawing, target, map[string]any{"sheetId": target})
		b.relate(drawingID, targetID, RelReferences)
	}

	for _, m := range detailRefPattern.FindAllStringSubmatch(text, -1) {
		number, target := m[1], strings.ToUpper(m[2])
		sheets[target] = struct{}{}
		targetID := b.entity(EntityDrawing, target, map[string]any{"sheetId": target})
		detailID := b.entity(EntityDetail, number+"/"+target, map[string]any{"number": number, "sheetId": target})
		b.relate(targetID, detailID, RelHasDetail)
		if target != sheetID {
			b.relate(drawingID, targetID, RelReferences)
		}
	}

	for _, line := range strings.Split(text, "\n") {
		var components []string
		for _, m := range componentTagPattern.FindAllStringSubmatch(line, -1) {
			tag := m[1]
			if _, isSheet := sheets[tag]; isSheet {
				continue
			}
			props := map[string]any{"tag": tag}
			if kind, ok := componentKinds[strings.SplitN(tag, "-", 2)[0]]; ok {
				props["type"] = kind
			}
			id := b.entity(EntityComponent, tag, props)
			b.relate(drawingID, id, RelContains)
			components = append(components, id)
		}

		for _, m := range roomPattern.FindAllStringSubmatch(line, -1) {
			room := strings.ToUpper(m[1])
			id := b.entity(EntityLocation, "Room "+room, map[string]any{"room": room})
			for _, component := range components {
				b.relate(component, id, RelLocatedIn)
			}
		}
		for _, m := range zonePattern.FindAllStringSubmatch(line, -1) {
			zone := strings.ToUpper(m[1])
			id := b.entity(EntityLocation, "Zone "+zone, map[string]any{"zone": zone})
			for _, component := range components {
				b.relate(id, component, RelContains)
			}
		}
	}

	return b.entities, b.relationships, nil
}

// documentSheet derives the drawing sheet id from the file name, falling back
// to the upper-cased file stem.
func documentSheet(doc *domain.Document) (string, string) {
	if doc == nil {
		return "UNKNOWN", ""
	}
	stem := strings.TrimSuffix(filepath.Base(doc.Filename), filepath.Ext(doc.Filename))
	if m := sheetInNamePattern.FindStringSubmatch(stem); m != nil {
		return strings.ToUpper(m[1]), stem
	}
	if stem == "" {
		return strings.ToUpper(doc.ID), stem
	}
	return strings.ToUpper(stem), stem
}

type graphBuilder struct {
	entities      []domain.Entity
	relationships []domain.Relationship
	entityIndex   map[string]int
	relSeen       map[string]struct{}
}

func newGraphBuilder() *graphBuilder {
	return &graphBuilder{
		entityIndex: make(map[string]int),
		relSeen:     make(map[string]struct{}),
	}
}

func (b *graphBuilder) entity(entityType, name string, props map[string]any) string {
	id := domain.EntityID(entityType, name)
	if pos, ok := b.entityIndex[id]; ok {
		for k, v := range props {
			if _, exists := b.entities[pos].Properties[k]; !exists {
				b.entities[pos].Properties[k] = v
			}
		}
		return id
	}
	b.entityIndex[id] = len(b.entities)
	b.entities = append(b.entities, domain.Entity{ID: id, Name: name, Type: entityType, Properties: props})
	return id
}

func (b *graphBuilder) relate(sourceID, targetID, relType string) {
	if sourceID == targetID {
		return
	}
	key := sourceID + "|" + targetID + "|" + relType
	if _, ok := b.relSeen[key]; ok {
		return
	}
	b.relSeen[key] = struct{}{}
	b.relationships = append(b.relationships, domain.Relationship{SourceID: sourceID, TargetID: targetID, Type: relType})
}

// CompositeEntityExtractor runs every strategy and merges their output. A
// failing strategy is logged and skipped.
type CompositeEntityExtractor struct {
	strategies []ports.EntityExtractor
	logger     *slog.Logger
}

func NewCompositeEntityExtractor(logger *slog.Logger, strategies ...ports.EntityExtractor) *CompositeEntityExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &CompositeEntityExtractor{strategies: strategies, logger: logger}
}

func (c *CompositeEntityExtractor) ExtractEntities(ctx context.Context, doc *domain.Document, text string) ([]domain.Entity, []domain.Relationship, error) {
	var (
		entities      []domain.Entity
		relationships []domain.Relationship
	)
	for _, strategy := range c.strategies {
		e, r, err := strategy.ExtractEntities(ctx, doc, text)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, ctxErr
			}
			c.logger.Warn("entity_extraction_failed", "document_id", documentID(doc), "error", err)
			continue
		}
		entities = append(entities, e...)
		relationships = append(relationships, r...)
	}
	return DedupeEntities(entities), DedupeRelationships(relationships), nil
}

// DedupeEntities keeps the first entity per (lower name, type).
func DedupeEntities(entities []domain.Entity) []domain.Entity {
	seen := make(map[string]struct{}, len(entities))
	out := make([]domain.Entity, 0, len(entities))
	for _, e := range entities {
		name := strings.ToLower(strings.TrimSpace(e.Name))
		if name == "" {
			continue
		}
		key := name + "|" + e.Type
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out
}

// DedupeRelationships keeps the first relationship per (source, target, type)
// and drops incomplete ones.
func DedupeRelationships(relationships []domain.Relationship) []domain.Relationship {
	seen := make(map[string]struct{}, len(relationships))
	out := make([]domain.Relationship, 0, len(relationships))
	for _, r := range relationships {
		if r.SourceID == "" || r.TargetID == "" || r.Type == "" {
			continue
		}
		key := r.SourceID + "|" + r.TargetID + "|" + r.Type
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

func documentID(doc *domain.Document) string {
	if doc == nil {
		return ""
	}
	return doc.ID
}
