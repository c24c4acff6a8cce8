package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/construction-graphrag/internal/config"
	"github.com/kirillkom/construction-graphrag/internal/core/domain"
	"github.com/kirillkom/construction-graphrag/internal/core/usecase"
	"github.com/kirillkom/construction-graphrag/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/construction-graphrag/internal/infrastructure/resilience"
)

func unavailableOllama(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "loading model", http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func testResilienceConfig() config.Config {
	return config.Config{RetryMaxAttempts: 3, QueryRetryMaxAttempts: 1}
}

func TestQueryEmbeddingMakesOneRetryInTotal(t *testing.T) {
	server, calls := unavailableOllama(t)

	rc := resilienceConfig(testResilienceConfig())
	rc.RetryInitialBackoff = time.Millisecond
	rc.RetryMaxBackoff = time.Millisecond
	exec := resilience.NewExecutor(rc)
	embedder := ollama.NewEmbedder(ollama.New(server.URL, "gen", "embed", exec), 2)

	query := usecase.NewQueryEmbedder(embedder.EmbedQuery, usecase.QueryEmbedderConfig{
		Dimension: 2,
		Backoff:   time.Millisecond,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

	got, err := query.Embed(context.Background(), "where is AHU-1")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if !got.Placeholder {
		t.Fatalf("expected placeholder embedding, got %+v", got)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("expected 2 embedding calls, got %d", n)
	}
}

func TestIngestionEmbeddingKeepsExecutorRetries(t *testing.T) {
	server, calls := unavailableOllama(t)

	rc := resilienceConfig(testResilienceConfig())
	rc.RetryInitialBackoff = time.Millisecond
	rc.RetryMaxBackoff = time.Millisecond
	exec := resilience.NewExecutor(rc)
	embedder := ollama.NewEmbedder(ollama.New(server.URL, "gen", "embed", exec), 2)

	if _, err := embedder.Embed(context.Background(), []string{"AHU-1 IN ROOM 101"}); err == nil {
		t.Fatalf("expected error from unavailable embedder")
	}
	if n := calls.Load(); n != 3 {
		t.Fatalf("expected 3 embedding calls, got %d", n)
	}
}

type clipStub struct {
	vector []float32
}

func (c clipStub) Available() bool { return true }

func (c clipStub) EmbedImage(context.Context, []byte) ([]float32, error) { return c.vector, nil }

func (c clipStub) EmbedText(context.Context, string) ([]float32, error) { return c.vector, nil }

func TestImageQueryEmbedderChecksDimension(t *testing.T) {
	cfg := config.Config{ImageEmbeddingDimension: 512}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := imageQueryEmbedder(cfg, clipStub{vector: make([]float32, 768)}, logger, nil).Embed(context.Background(), "roof plan")
	if !domain.IsKind(err, domain.ErrEmbeddingDimension) {
		t.Fatalf("expected ErrEmbeddingDimension, got %v", err)
	}

	got, err := imageQueryEmbedder(cfg, clipStub{vector: make([]float32, 512)}, logger, nil).Embed(context.Background(), "roof plan")
	if err != nil || len(got.Vector) != 512 {
		t.Fatalf("expected 512-d vector, got %d (%v)", len(got.Vector), err)
	}
}
