package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/construction-graphrag/internal/core/domain"
	"github.com/kirillkom/construction-graphrag/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

// New builds an Ollama REST client. executor may be nil, in which case calls
// are made once without a circuit breaker.
func New(baseURL, genModel, embedModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

// EmbedModel names the embedding model, used to key the embedding cache.
func (c *Client) EmbedModel() string {
	return c.embedModel
}

type Embedder struct {
	client    *Client
	dimension int
}

func NewEmbedder(client *Client, dimension int) *Embedder {
	return &Embedder{client: client, dimension: dimension}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.embed(ctx, texts, "embed")
}

// EmbedQuery runs as its own operation so the executor can give the query
// path a different retry budget than batch ingestion.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{text}, "embed_query")
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *Embedder) embed(ctx context.Context, texts []string, operation string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, operation); err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, domain.WrapError(domain.ErrEmbeddingFailure, "ollama "+operation,
			fmt.Errorf("got %d embeddings for %d inputs", len(response.Embeddings), len(texts)))
	}
	return response.Embeddings, nil
}

// Dimension is the configured vector size; 0 disables the check.
func (e *Embedder) Dimension() int {
	return e.dimension
}

type SynthesisOptions struct {
	Temperature float64
	MaxTokens   int
}

type Synthesizer struct {
	client *Client
	opts   SynthesisOptions
}

func NewSynthesizer(client *Client, opts SynthesisOptions) *Synthesizer {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2000
	}
	return &Synthesizer{client: client, opts: opts}
}

func (s *Synthesizer) Synthesize(ctx context.Context, question string, hits []domain.Hit, facts []domain.GraphFact) (string, error) {
	request := map[string]any{
		"model":  s.client.genModel,
		"stream": false,
		"messages": []map[string]string{
			{"role": "system", "content": synthesisSystemPrompt},
			{"role": "user", "content": buildSynthesisPrompt(question, hits, facts)},
		},
		"options": map[string]any{
			"temperature": s.opts.Temperature,
			"num_predict": s.opts.MaxTokens,
		},
	}

	var response struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := s.client.postJSON(ctx, "/api/chat", request, &response, "chat"); err != nil {
		return "", err
	}
	answer := strings.TrimSpace(response.Message.Content)
	if answer == "" {
		return "", fmt.Errorf("ollama chat returned an empty answer")
	}
	return answer, nil
}

func (c *Client) generateJSON(ctx context.Context, prompt string, temperature float64) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
		"format": "json",
		"options": map[string]any{
			"temperature": temperature,
		},
	}
	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
