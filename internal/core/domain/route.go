package domain

type RouteKind string

const (
	RouteStructured RouteKind = "structured"
	RouteHybrid     RouteKind = "hybrid"
)

type Template string

const (
	TemplateFindReferences        Template = "find_references"
	TemplateFindComponentsInZone  Template = "find_components_in_zone"
	TemplateFindComponentLocation Template = "find_component_location"
	TemplateListOnSheet           Template = "list_on_sheet"
	TemplateDetailJump            Template = "detail_jump"
)

// RouteDecision is either a structured graph template with its captured
// parameters or a hybrid retrieval request.
type RouteDecision struct {
	Kind     RouteKind         `json:"kind"`
	Template Template          `json:"template,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
}

func (d RouteDecision) IsStructured() bool {
	return d.Kind == RouteStructured
}

// GraphQuery is a parameterized Cypher statement built from a template.
type GraphQuery struct {
	Cypher string         `json:"cypher"`
	Params map[string]any `json:"params"`
}
