package usecase

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kirillkom/construction-graphrag/internal/core/domain"
)

type routePattern struct {
	template domain.Template
	pattern  *regexp.Regexp
	params   func(match []string) map[string]string
}

type graphTemplate struct {
	cypher string
	params []string
}

// Router classifies questions into structured graph templates or hybrid
// retrieval. Patterns are tried in order and the first match wins.
type Router struct {
	patterns  []routePattern
	templates map[domain.Template]graphTemplate
}

func NewRouter() *Router {
	return &Router{
		patterns: []routePattern{
			{
				template: domain.TemplateFindReferences,
				pattern:  regexp.MustCompile(`(?i)(reference|references|refer)\s+([A-Z]-?\d{2,4})`),
				params: func(m []string) map[string]string {
					return map[string]string{"sheet_id": strings.ToUpper(m[2])}
				},
			},
			{
				template: domain.TemplateFindComponentsInZone,
				pattern:  regexp.MustCompile(`(?i)(?:component|equipment).*?(?:zone|area)\s+(\w+)`),
				params: func(m []string) map[string]string {
					return map[string]string{"zone": strings.ToUpper(m[1])}
				},
			},
			{
				template: domain.TemplateFindComponentLocation,
				pattern:  regexp.MustCompile(`(?i)where.*?([A-Z]{1,3}-\d{2,4})`),
				params: func(m []string) map[string]string {
					return map[string]string{"tag": strings.ToUpper(m[1])}
				},
			},
			{
				template: domain.TemplateListOnSheet,
				pattern:  regexp.MustCompile(`(?i)(?:on|in)\s+sheet\s+([A-Z]-?\d{2,4})`),
				params: func(m []string) map[string]string {
					return map[string]string{"sheet_id": strings.ToUpper(m[1])}
				},
			},
			{
				template: domain.TemplateDetailJump,
				pattern:  regexp.MustCompile(`(?i)(?:detail|see)\s+(\d+)\s*/\s*([A-Z]-?\d{2,4})`),
				params: func(m []string) map[string]string {
					return map[string]string{"detail": m[1], "sheet_id": strings.ToUpper(m[2])}
				},
			},
		},
		templates: map[domain.Template]graphTemplate{
			domain.TemplateFindReferences: {
				cypher: `MATCH (target:Drawing {sheetId: $sheet_id})
MATCH (referrer:Drawing)-[:REFERENCES]->(target)
RETURN referrer.sheetId AS sheetId, referrer.title AS title
LIMIT 200`,
				params: []string{"sheet_id"},
			},
			domain.TemplateFindComponentsInZone: {
				cypher: `MATCH (z:Location {zone: $zone})
MATCH (z)-[:CONTAINS*1..2]->(c:Component)
RETURN c.tag AS tag, c.type AS type, c.discipline AS discipline
LIMIT 200`,
				params: []string{"zone"},
			},
			domain.TemplateFindComponentLocation: {
				cypher: `MATCH (c:Component {tag: $tag})-[:LOCATED_IN]->(l:Location)
RETURN c.tag AS component, l.room AS room, l.floor AS floor, l.building AS building
LIMIT 10`,
				params: []string{"tag"},
			},
			domain.TemplateListOnSheet: {
				cypher: `MATCH (d:Drawing {sheetId: $sheet_id})-[:CONTAINS*0..2]->(c:Component)
RETURN c.tag AS tag, c.type AS type, c.discipline AS discipline
LIMIT 200`,
				params: []string{"sheet_id"},
			},
			domain.TemplateDetailJump: {
				cypher: `MATCH (d:Drawing {sheetId: $sheet_id})
OPTIONAL MATCH (d)-[:HAS_DETAIL]->(x:Detail {number: $detail})
RETURN $detail AS detail, d.sheetId AS sheetId, d.title AS title, x.title AS detailTitle
LIMIT 1`,
				params: []string{"detail", "sheet_id"},
			},
		},
	}
}

func (r *Router) Route(question string) domain.RouteDecision {
	for _, p := range r.patterns {
		if m := p.pattern.FindStringSubmatch(question); m != nil {
			return domain.RouteDecision{
				Kind:     domain.RouteStructured,
				Template: p.template,
				Params:   p.params(m),
			}
		}
	}
	return domain.RouteDecision{Kind: domain.RouteHybrid}
}

// BuildQuery returns the parameterized Cypher for a structured decision.
func (r *Router) BuildQuery(decision domain.RouteDecision) (domain.GraphQuery, error) {
	if !decision.IsStructured() {
		return domain.GraphQuery{}, domain.WrapError(domain.ErrInvalidInput, "build graph query", fmt.Errorf("route %q has no graph template", decision.Kind))
	}
	tmpl, ok := r.templates[decision.Template]
	if !ok {
		return domain.GraphQuery{}, domain.WrapError(domain.ErrUnknownTemplate, "build graph query", fmt.Errorf("template %q", decision.Template))
	}

	params := make(map[string]any, len(tmpl.params))
	for _, name := range tmpl.params {
		value := strings.TrimSpace(decision.Params[name])
		if value == "" {
			return domain.GraphQuery{}, domain.WrapError(domain.ErrInvalidInput, "build graph query", fmt.Errorf("template %q requires parameter %q", decision.Template, name))
		}
		params[name] = value
	}
	return domain.GraphQuery{Cypher: tmpl.cypher, Params: params}, nil
}
