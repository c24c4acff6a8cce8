package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/kirillkom/construction-graphrag/internal/core/domain"
)

// apiClient calls the graphrag HTTP API.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

func newAPIClient(baseURL string, httpClient *http.Client) *apiClient {
	return &apiClient{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

type routePreview struct {
	Decision   domain.RouteDecision `json:"decision"`
	Query      *domain.GraphQuery   `json:"query,omitempty"`
	Expansions []string             `json:"expansions"`
}

func (c *apiClient) Query(ctx context.Context, question string) (*domain.Answer, error) {
	var answer domain.Answer
	if err := c.do(ctx, http.MethodPost, "/v1/query", map[string]string{"question": question}, &answer); err != nil {
		return nil, err
	}
	return &answer, nil
}

func (c *apiClient) Route(ctx context.Context, question string) (*routePreview, error) {
	var preview routePreview
	if err := c.do(ctx, http.MethodPost, "/v1/route", map[string]string{"question": question}, &preview); err != nil {
		return nil, err
	}
	return &preview, nil
}

func (c *apiClient) Stats(ctx context.Context) (*domain.IndexStats, error) {
	var stats domain.IndexStats
	if err := c.do(ctx, http.MethodGet, "/v1/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *apiClient) Delete(ctx context.Context, documentID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/documents/"+url.PathEscape(documentID), nil, nil)
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, apiErr.Error)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
