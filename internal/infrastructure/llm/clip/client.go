// Package clip talks to a CLIP-compatible embedding service that places page
// images and query text in one vector space.
//
// The service accepts POST /embed/image with {"image": base64} and
// POST /embed/text with {"text": string}; both answer {"embedding": [...]}.
package clip

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/construction-graphrag/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

// New returns a client; an empty baseURL yields a client that reports itself
// unavailable.
func New(baseURL string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

func (c *Client) Available() bool {
	return c != nil && c.baseURL != ""
}

func (c *Client) EmbedImage(ctx context.Context, image []byte) ([]float32, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("clip embed image: empty image")
	}
	return c.embed(ctx, "/embed/image", map[string]string{"image": base64.StdEncoding.EncodeToString(image)}, "embed_image")
}

func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, "/embed/text", map[string]string{"text": text}, "embed_text")
}

func (c *Client) embed(ctx context.Context, path string, payload any, operation string) ([]float32, error) {
	if !c.Available() {
		return nil, fmt.Errorf("clip %s: service not configured", operation)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", operation, err)
	}

	var response struct {
		Embedding []float32 `json:"embedding"`
	}
	call := func(ctx context.Context) error {
		return c.post(ctx, path, body, &response, operation)
	}
	if c.executor == nil {
		err = call(ctx)
	} else {
		err = c.executor.Execute(ctx, "clip."+operation, call, resilience.ClassifyHTTPError)
	}
	if err != nil {
		return nil, resilience.WrapTemporary("clip "+operation, err, resilience.ClassifyHTTPError)
	}
	if len(response.Embedding) == 0 {
		return nil, fmt.Errorf("clip %s: empty embedding", operation)
	}
	return response.Embedding, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte, out any, operation string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("clip %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &resilience.StatusError{
			Service:    "clip",
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(raw),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}
