package bm25

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/kirillkom/construction-graphrag/internal/core/domain"
)

func openTestIndex(t *testing.T, path string) *Index {
	t.Helper()
	idx, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func corpus() []domain.Chunk {
	return []domain.Chunk{
		{ID: "doc-1_chunk_0", DocumentID: "doc-1", Filename: "M-201.pdf", Page: 1, Text: "AHU-1 supplies air to zone 2", Modality: domain.ModalityText},
		{ID: "doc-1_chunk_1", DocumentID: "doc-1", Filename: "M-201.pdf", Page: 2, Text: "exhaust fan EF-3 on the roof", Section: "EQUIPMENT SCHEDULE", Modality: domain.ModalityText},
		{ID: "doc-2_chunk_0", DocumentID: "doc-2", Filename: "E-101.pdf", Page: 1, Text: "panel LP-1 feeds AHU-1 and AHU-2", IsDiagram: true, Modality: domain.ModalityText},
		{ID: "doc-2_chunk_1", DocumentID: "doc-2", Filename: "E-101.pdf", Page: 3, Text: "see detail 3/M-501 for mounting", Modality: domain.ModalityText},
	}
}

func TestTokenizeKeepsTagsTogether(t *testing.T) {
	got := tokenize("See Detail 3/M-501, AHU-1 #2")
	want := []string{"see", "detail", "3/m-501", "ahu-1", "#2"}
	if len(got) != len(want) {
		t.Fatalf("tokenize() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tokenize() = %v, want %v", got, want)
		}
	}
}

func TestSearchRanksMatchingChunks(t *testing.T) {
	idx := openTestIndex(t, filepath.Join(t.TempDir(), "lexical.db"))
	if err := idx.Index(context.Background(), corpus()); err != nil {
		t.Fatalf("Index() error = %v", err)
	}

	hits, err := idx.Search(context.Background(), "EF-3 roof", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "doc-1_chunk_1" {
		t.Fatalf("expected only the exhaust fan chunk, got %+v", hits)
	}
	if hits[0].Score <= 0 || hits[0].Payload.Section != "EQUIPMENT SCHEDULE" {
		t.Fatalf("unexpected hit %+v", hits[0])
	}

	hits, err = idx.Search(context.Background(), "ahu-1", 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected k to cap results, got %d", len(hits))
	}
}

func TestSearchNoMatches(t *testing.T) {
	idx := openTestIndex(t, filepath.Join(t.TempDir(), "lexical.db"))
	if err := idx.Index(context.Background(), corpus()); err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	hits, err := idx.Search(context.Background(), "chiller", 5)
	if err != nil || len(hits) != 0 {
		t.Fatalf("expected no hits, got %v, %v", hits, err)
	}
	hits, err = idx.Search(context.Background(), "  ,, ", 5)
	if err != nil || len(hits) != 0 {
		t.Fatalf("expected no hits for empty query, got %v, %v", hits, err)
	}
}

func TestIndexPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexical.db")
	idx, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := idx.Index(context.Background(), corpus()); err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	_ = idx.Close()

	reopened := openTestIndex(t, path)
	count, _ := reopened.Count(context.Background())
	if count != 4 {
		t.Fatalf("expected 4 chunks after reopen, got %d", count)
	}
	hits, err := reopened.Search(context.Background(), "3/M-501", 5)
	if err != nil || len(hits) != 1 || hits[0].Payload.Page != 3 {
		t.Fatalf("unexpected hits after reopen: %+v, %v", hits, err)
	}
	hits, err = reopened.Search(context.Background(), "LP-1", 5)
	if err != nil || len(hits) != 1 || !hits[0].Payload.IsDiagram {
		t.Fatalf("expected diagram flag to persist, got %+v, %v", hits, err)
	}
}

func TestReindexReplacesChunk(t *testing.T) {
	idx := openTestIndex(t, filepath.Join(t.TempDir(), "lexical.db"))
	ctx := context.Background()
	if err := idx.Index(ctx, corpus()); err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	replaced := corpus()[0]
	replaced.Text = "chiller CH-1 plant"
	if err := idx.Index(ctx, []domain.Chunk{replaced}); err != nil {
		t.Fatalf("Index() error = %v", err)
	}

	count, _ := idx.Count(ctx)
	if count != 4 {
		t.Fatalf("expected replacement, got %d chunks", count)
	}
	hits, _ := idx.Search(ctx, "chiller", 5)
	if len(hits) != 1 || hits[0].ID != "doc-1_chunk_0" {
		t.Fatalf("expected replaced text to be searchable, got %+v", hits)
	}
}

func TestDeleteDocument(t *testing.T) {
	idx := openTestIndex(t, filepath.Join(t.TempDir(), "lexical.db"))
	ctx := context.Background()
	if err := idx.Index(ctx, corpus()); err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if err := idx.DeleteDocument(ctx, "doc-2"); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	hits, _ := idx.Search(ctx, "LP-1", 5)
	if len(hits) != 0 {
		t.Fatalf("expected deleted chunks to be gone, got %+v", hits)
	}
	count, _ := idx.Count(ctx)
	if count != 2 {
		t.Fatalf("expected 2 chunks left, got %d", count)
	}
}

func TestSearchRanksRarerTermsHigher(t *testing.T) {
	idx := openTestIndex(t, filepath.Join(t.TempDir(), "lexical.db"))
	if err := idx.Index(context.Background(), corpus()); err != nil {
		t.Fatalf("Index() error = %v", err)
	}

	hits, err := idx.Search(context.Background(), "AHU-1 roof", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %+v", hits)
	}
	if hits[0].ID != "doc-1_chunk_1" {
		t.Fatalf("expected the chunk with the rarer term first, got %s", hits[0].ID)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Fatalf("hits not sorted by score: %+v", hits)
		}
	}
}

func TestSearchQuotesOperatorLikeTerms(t *testing.T) {
	idx := openTestIndex(t, filepath.Join(t.TempDir(), "lexical.db"))
	if err := idx.Index(context.Background(), corpus()); err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if _, err := idx.Search(context.Background(), "AND OR NOT NEAR exhaust", 5); err != nil {
		t.Fatalf("expected operators to be searched literally, got %v", err)
	}
}

func TestSearchRunsConcurrently(t *testing.T) {
	idx := openTestIndex(t, filepath.Join(t.TempDir(), "lexical.db"))
	if err := idx.Index(context.Background(), corpus()); err != nil {
		t.Fatalf("Index() error = %v", err)
	}

	// a held read lock must not block other searches
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for _, q := range []string{"ahu-1", "roof", "LP-1", "3/M-501", "zone"} {
		wg.Add(1)
		go func(q string) {
			defer wg.Done()
			_, err := idx.Search(context.Background(), q, 5)
			errs <- err
		}(q)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
	}
}

func TestSearchHonorsCancelledContext(t *testing.T) {
	idx := openTestIndex(t, filepath.Join(t.TempDir(), "lexical.db"))
	if err := idx.Index(context.Background(), corpus()); err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := idx.Search(ctx, "ahu-1", 5); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
