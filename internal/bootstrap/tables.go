package bootstrap

import (
	"fmt"
	"strings"

	"github.com/kirillkom/construction-graphrag/internal/config"
	"github.com/kirillkom/construction-graphrag/internal/core/usecase"
)

type retrievalTables struct {
	sectionBoosts map[string]float64
	synonyms      []usecase.SynonymGroup
	expansionCap  int
}

func loadRetrievalTables(path string) (retrievalTables, error) {
	overrides, err := config.LoadTables(path)
	if err != nil {
		return retrievalTables{}, fmt.Errorf("load retrieval tables: %w", err)
	}
	return mergeTables(overrides), nil
}

// mergeTables layers file overrides on the built-in tables. A section or
// synonym key present in the file replaces the built-in entry; new keys are
// added, synonyms after the built-in groups.
func mergeTables(overrides config.Tables) retrievalTables {
	boosts := usecase.DefaultSectionBoosts()
	for section, boost := range overrides.SectionBoosts {
		boosts[section] = boost
	}

	synonyms := usecase.DefaultSynonyms()
	index := make(map[string]int, len(synonyms))
	for i, group := range synonyms {
		index[strings.ToLower(group.Key)] = i
	}
	for _, group := range overrides.Synonyms {
		merged := usecase.SynonymGroup{Key: group.Key, Synonyms: group.Synonyms}
		if i, ok := index[group.Key]; ok {
			synonyms[i] = merged
			continue
		}
		index[group.Key] = len(synonyms)
		synonyms = append(synonyms, merged)
	}

	expansionCap := overrides.ExpansionCap
	if expansionCap == 0 {
		expansionCap = usecase.DefaultExpansionCap
	}
	return retrievalTables{sectionBoosts: boosts, synonyms: synonyms, expansionCap: expansionCap}
}
