package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SynonymGroup maps a canonical phrase to its alternative spellings.
type SynonymGroup struct {
	Key      string   `yaml:"key"`
	Synonyms []string `yaml:"synonyms"`
}

// Tables overrides the built-in retrieval tables. Empty fields keep the
// defaults.
type Tables struct {
	SectionBoosts map[string]float64 `yaml:"section_boosts"`
	Synonyms      []SynonymGroup     `yaml:"synonyms"`
	ExpansionCap  int                `yaml:"expansion_cap"`
}

// LoadTables reads the YAML table file. An empty path yields empty Tables.
func LoadTables(path string) (Tables, error) {
	var tables Tables
	if strings.TrimSpace(path) == "" {
		return tables, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return tables, fmt.Errorf("read retrieval tables: %w", err)
	}
	if err := yaml.Unmarshal(raw, &tables); err != nil {
		return tables, fmt.Errorf("parse retrieval tables: %w", err)
	}

	if len(tables.SectionBoosts) > 0 {
		normalized := make(map[string]float64, len(tables.SectionBoosts))
		for section, boost := range tables.SectionBoosts {
			if boost <= 0 {
				return Tables{}, fmt.Errorf("section boost for %q must be positive", section)
			}
			normalized[strings.ToUpper(strings.TrimSpace(section))] = boost
		}
		tables.SectionBoosts = normalized
	}
	for i, group := range tables.Synonyms {
		key := strings.ToLower(strings.TrimSpace(group.Key))
		if key == "" {
			return Tables{}, fmt.Errorf("synonym group %d has an empty key", i)
		}
		tables.Synonyms[i].Key = key
	}
	if tables.ExpansionCap < 0 {
		return Tables{}, fmt.Errorf("expansion_cap must not be negative")
	}
	return tables, nil
}
