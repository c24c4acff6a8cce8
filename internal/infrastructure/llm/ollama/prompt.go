package ollama

import (
	"fmt"
	"strings"

	"github.com/kirillkom/construction-graphrag/internal/core/domain"
)

const maxEntityPromptChars = 8000

const synthesisSystemPrompt = `You are a construction document expert specializing in MEP systems, structural engineering and technical specifications.
You read construction drawings, specifications and equipment schedules, and you know equipment tags, nomenclature and abbreviations.

Rules:
1. Use all of the provided context and knowledge graph connections.
2. Answer directly first, then give supporting details.
3. Use exact equipment tags (for example AHU-3, not "an air handler").
4. Cite sources as (Source: filename, Page N).
5. For equipment give tag, type, location and key specifications.
6. For connections map the chain (A -> B -> C) with connection types and sizes.
7. For locations give building, floor, room and the referenced drawings.
8. If information is partial, state what was found with sources and what is missing.`

func buildSynthesisPrompt(question string, hits []domain.Hit, facts []domain.GraphFact) string {
	var b strings.Builder
	b.WriteString("QUESTION:\n")
	b.WriteString(question)
	b.WriteString("\n\nKNOWLEDGE GRAPH CONNECTIONS:\n")
	if len(facts) == 0 {
		b.WriteString("(none)\n")
	}
	for _, fact := range facts {
		fmt.Fprintf(&b, "- %s\n", fact.Text)
	}

	fmt.Fprintf(&b, "\nDOCUMENT CONTEXT (%d sources):\n", len(hits))
	for idx, hit := range hits {
		p := hit.Payload
		fmt.Fprintf(&b, "[%d] Source: %s, Page %d", idx+1, p.Filename, p.Page)
		if p.Section != "" {
			fmt.Fprintf(&b, " | Section: %s", p.Section)
		}
		if p.IsVisual() {
			b.WriteString(" | diagram")
		}
		fmt.Fprintf(&b, " | score=%.4f\n%s\n\n", hit.Score, p.Text)
	}
	b.WriteString("Provide a comprehensive answer with specific details and citations.")
	return b.String()
}

func buildEntityPrompt(filename, text string) string {
	if len(text) > maxEntityPromptChars {
		text = text[:maxEntityPromptChars] + "..."
	}
	return `Extract MEP entities and relationships from this construction document text.

Entity types: transformer, panel, breaker, generator, switchgear, mcc, ups, ats,
lighting, conduit, cable, receptacle, junction box, meter, disconnect, busway,
vfd, pdu, air handler, pump, fan, location, drawing, system.
Relationship types: feeds, serves, located_in, controls, contains, references.

Return strict JSON only:
{"entities":[{"id":"unique_id","name":"Equipment or location name","type":"entity_type","properties":{"spec":"details"}}],
 "relationships":[{"source":"entity_id","target":"entity_id","type":"relationship_type"}]}

TEXT FROM: ` + filename + `
---
` + text + `
---`
}
