package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadIncludesRetrievalDefaults(t *testing.T) {
	for _, key := range []string{
		"RETRIEVAL_VECTOR_TOP_K", "RETRIEVAL_LEXICAL_TOP_K", "RETRIEVAL_IMAGE_TOP_K",
		"RETRIEVAL_CONTEXT_TOP_K", "RETRIEVAL_RRF_K", "RETRIEVAL_DIAGRAM_BOOST",
		"SYNTHESIS_TIMEOUT", "EMBEDDING_RETRY_BACKOFF", "CHUNK_SIZE",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.RetrievalVectorTopK != 50 || cfg.RetrievalLexicalTopK != 50 {
		t.Fatalf("expected per-variant bounds 50/50, got %d/%d", cfg.RetrievalVectorTopK, cfg.RetrievalLexicalTopK)
	}
	if cfg.RetrievalImageTopK != 15 {
		t.Fatalf("expected image bound 15, got %d", cfg.RetrievalImageTopK)
	}
	if cfg.RetrievalContextTopK != 50 {
		t.Fatalf("expected context top k 50, got %d", cfg.RetrievalContextTopK)
	}
	if cfg.RetrievalRRFK != 60 {
		t.Fatalf("expected rrf k 60, got %d", cfg.RetrievalRRFK)
	}
	if cfg.DiagramBoost != 1.15 {
		t.Fatalf("expected diagram boost 1.15, got %v", cfg.DiagramBoost)
	}
	if cfg.SynthesisTimeout != 90*time.Second {
		t.Fatalf("expected synthesis timeout 90s, got %s", cfg.SynthesisTimeout)
	}
	if cfg.EmbeddingRetryBackoff != 2*time.Second {
		t.Fatalf("expected retry backoff 2s, got %s", cfg.EmbeddingRetryBackoff)
	}
	if cfg.ChunkSize != 800 {
		t.Fatalf("expected chunk size 800, got %d", cfg.ChunkSize)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("RETRIEVAL_RRF_K", "75")
	t.Setenv("RETRIEVAL_DIAGRAM_BOOST", "1.3")
	t.Setenv("SEARCH_TIMEOUT", "5s")
	t.Setenv("ENABLE_IMAGE_RETRIEVAL", "true")
	t.Setenv("CLIP_URL", "http://clip:8000")

	cfg := Load()
	if cfg.RetrievalRRFK != 75 {
		t.Fatalf("expected rrf k 75, got %d", cfg.RetrievalRRFK)
	}
	if cfg.DiagramBoost != 1.3 {
		t.Fatalf("expected diagram boost 1.3, got %v", cfg.DiagramBoost)
	}
	if cfg.SearchTimeout != 5*time.Second {
		t.Fatalf("expected search timeout 5s, got %s", cfg.SearchTimeout)
	}
	if !cfg.ImageRetrievalEnabled() {
		t.Fatalf("expected image retrieval enabled")
	}
}

func TestLoadFallsBackOnInvalidValues(t *testing.T) {
	t.Setenv("RETRIEVAL_RRF_K", "sixty")
	t.Setenv("SYNTHESIS_TEMPERATURE", "warm")
	t.Setenv("EMBEDDING_TIMEOUT", "soon")

	cfg := Load()
	if cfg.RetrievalRRFK != 60 {
		t.Fatalf("expected fallback rrf k 60, got %d", cfg.RetrievalRRFK)
	}
	if cfg.SynthesisTemperature != 0.35 {
		t.Fatalf("expected fallback temperature 0.35, got %v", cfg.SynthesisTemperature)
	}
	if cfg.EmbeddingTimeout != 30*time.Second {
		t.Fatalf("expected fallback embedding timeout 30s, got %s", cfg.EmbeddingTimeout)
	}
}

func TestImageRetrievalRequiresClipURL(t *testing.T) {
	t.Setenv("ENABLE_IMAGE_RETRIEVAL", "true")
	t.Setenv("CLIP_URL", "")

	if Load().ImageRetrievalEnabled() {
		t.Fatalf("expected image retrieval disabled without CLIP_URL")
	}
}

func TestLoadTablesEmptyPath(t *testing.T) {
	tables, err := LoadTables("")
	if err != nil {
		t.Fatalf("LoadTables() error = %v", err)
	}
	if len(tables.SectionBoosts) != 0 || len(tables.Synonyms) != 0 || tables.ExpansionCap != 0 {
		t.Fatalf("expected empty tables, got %+v", tables)
	}
}

func TestLoadTablesNormalizesKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.yaml")
	content := `
section_boosts:
  " riser diagram ": 1.7
synonyms:
  - key: " AHU "
    synonyms: ["air handling unit", "air handler"]
expansion_cap: 4
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write tables: %v", err)
	}

	tables, err := LoadTables(path)
	if err != nil {
		t.Fatalf("LoadTables() error = %v", err)
	}
	if tables.SectionBoosts["RISER DIAGRAM"] != 1.7 {
		t.Fatalf("expected upper-cased section key, got %+v", tables.SectionBoosts)
	}
	if len(tables.Synonyms) != 1 || tables.Synonyms[0].Key != "ahu" {
		t.Fatalf("expected lower-cased synonym key, got %+v", tables.Synonyms)
	}
	if tables.ExpansionCap != 4 {
		t.Fatalf("expected cap 4, got %d", tables.ExpansionCap)
	}
}

func TestLoadTablesRejectsNonPositiveBoost(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.yaml")
	if err := os.WriteFile(path, []byte("section_boosts:\n  LEGEND: 0\n"), 0o600); err != nil {
		t.Fatalf("write tables: %v", err)
	}
	if _, err := LoadTables(path); err == nil {
		t.Fatalf("expected error for zero boost")
	}
}

func TestLoadRetryAndImageDimensionDefaults(t *testing.T) {
	for _, key := range []string{"RETRY_MAX_ATTEMPTS", "QUERY_RETRY_MAX_ATTEMPTS", "IMAGE_EMBEDDING_DIMENSION"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.RetryMaxAttempts != 3 || cfg.QueryRetryMaxAttempts != 1 {
		t.Fatalf("expected retry attempts 3/1, got %d/%d", cfg.RetryMaxAttempts, cfg.QueryRetryMaxAttempts)
	}
	if cfg.ImageEmbeddingDimension != 512 {
		t.Fatalf("expected image dimension 512, got %d", cfg.ImageEmbeddingDimension)
	}
}
