// Package openai implements the llm.Catalog interface for OpenAI-compatible
// APIs.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/user/neuroclaw/pkg/llm"
)

const defaultTimeout = 10 * time.Second

// Client queries an OpenAI-compatible /models endpoint.
type Client struct {
	config     llm.Config
	httpClient *http.Client
}

// New creates a client with the given configuration.
func New(config llm.Config) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// modelsResponse is the OpenAI models list response body.
type modelsResponse struct {
	Data []struct {
		ID      string `json:"id"`
		OwnedBy string `json:"owned_by"`
	} `json:"data"`
}

// ListModels fetches the provider's model list.
func (c *Client) ListModels(ctx context.Context) ([]llm.Model, error) {
	url := c.config.BaseURL + "/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var parsed modelsResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	models := make([]llm.Model, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		models = append(models, llm.Model{ID: m.ID, OwnedBy: m.OwnedBy})
	}
	return models, nil
}
