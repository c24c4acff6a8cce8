package usecase

import (
	"regexp"
	"strings"
)

const (
	DefaultExpansionCap = 5
	maxSynonymsPerKey   = 3
)

var equipmentTagPattern = regexp.MustCompile(`\b([A-Z]{1,4}-\d{1,4})\b`)

// SynonymGroup maps a lower-case canonical phrase to alternative phrasings.
type SynonymGroup struct {
	Key      string
	Synonyms []string
}

// DefaultSynonyms returns the built-in construction synonym table in its
// lookup order.
func DefaultSynonyms() []SynonymGroup {
	return []SynonymGroup{
		{Key: "nitrogen generator", Synonyms: []string{"nitrogen generator", "NG", "N2 generator", "nitrogen system", "N2 gen"}},
		{Key: "air handler", Synonyms: []string{"air handling unit", "AHU", "air handler", "air handling system"}},
		{Key: "vav", Synonyms: []string{"VAV box", "variable air volume", "VAV unit", "terminal unit"}},
		{Key: "rtu", Synonyms: []string{"roof top unit", "RTU", "rooftop unit", "packaged unit"}},
		{Key: "exhaust fan", Synonyms: []string{"exhaust fan", "EF", "exhaust system"}},
		{Key: "supply fan", Synonyms: []string{"supply fan", "SF"}},
		{Key: "return fan", Synonyms: []string{"return fan", "RF"}},
		{Key: "pump", Synonyms: []string{"pump", "HWP", "CHWP", "hot water pump", "chilled water pump"}},
		{Key: "water heater", Synonyms: []string{"water heater", "WH", "domestic water heater"}},
		{Key: "boiler", Synonyms: []string{"boiler", "hot water boiler", "steam boiler"}},
		{Key: "chiller", Synonyms: []string{"chiller", "chilled water system"}},
		{Key: "panel", Synonyms: []string{"electrical panel", "EP", "distribution panel", "panelboard"}},
		{Key: "mcc", Synonyms: []string{"motor control center", "MCC", "motor starter"}},
		{Key: "transformer", Synonyms: []string{"transformer", "XFMR", "electrical transformer"}},
		{Key: "equipment", Synonyms: []string{"equipment", "unit", "system", "device", "component"}},
		{Key: "location", Synonyms: []string{"location", "room", "zone", "area", "space"}},
		{Key: "connection", Synonyms: []string{"connection", "connects to", "supplies", "serves", "feeds"}},
		{Key: "specification", Synonyms: []string{"specification", "specs", "requirements", "rating"}},
		{Key: "installation", Synonyms: []string{"installation", "install", "mounting", "placement"}},
	}
}

type synonymRule struct {
	key          string
	pattern      *regexp.Regexp
	replacements []string
}

// Expander turns a question into a bounded list of query variants.
type Expander struct {
	rules []synonymRule
	cap   int
}

func NewExpander(groups []SynonymGroup, cap int) *Expander {
	if len(groups) == 0 {
		groups = DefaultSynonyms()
	}
	if cap <= 0 {
		cap = DefaultExpansionCap
	}

	rules := make([]synonymRule, 0, len(groups))
	for _, group := range groups {
		key := strings.ToLower(strings.TrimSpace(group.Key))
		if key == "" {
			continue
		}
		replacements := make([]string, 0, maxSynonymsPerKey)
		for _, synonym := range group.Synonyms {
			if len(replacements) == maxSynonymsPerKey {
				break
			}
			if strings.ToLower(strings.TrimSpace(synonym)) == key {
				continue
			}
			replacements = append(replacements, synonym)
		}
		if len(replacements) == 0 {
			continue
		}
		rules = append(rules, synonymRule{
			key:          key,
			pattern:      regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(key) + `(es|s)?\b`),
			replacements: replacements,
		})
	}

	return &Expander{rules: rules, cap: cap}
}

// Expand returns the original question first, followed by synonym and
// equipment-tag variants, deduplicated case-insensitively and capped.
func (e *Expander) Expand(question string) []string {
	variants := []string{question}

	for _, rule := range e.rules {
		if !rule.pattern.MatchString(question) {
			continue
		}
		for _, replacement := range rule.replacements {
			// whole words only; a plural suffix carries over to the synonym
			template := strings.ReplaceAll(replacement, "$", "$$") + "${1}"
			variants = append(variants, rule.pattern.ReplaceAllString(question, template))
		}
	}

	for _, match := range equipmentTagPattern.FindAllStringSubmatch(question, -1) {
		tag := match[1]
		variants = append(variants, strings.ReplaceAll(question, tag, strings.Replace(tag, "-", " ", 1)))
	}

	seen := make(map[string]struct{}, len(variants))
	out := make([]string, 0, e.cap)
	for _, variant := range variants {
		key := strings.ToLower(variant)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, variant)
		if len(out) == e.cap {
			break
		}
	}
	return out
}
