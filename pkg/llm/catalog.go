// Package llm defines the provider catalog surface. Apply actions only need
// to know that a model provider is reachable and serving at least one
// model; the catalog is that probe.
package llm

import (
	"context"
	"time"
)

// Model describes one model a provider currently serves.
type Model struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// Catalog lists the models available from a provider.
type Catalog interface {
	ListModels(ctx context.Context) ([]Model, error)
}

// Config holds common configuration for provider clients.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// StaticCatalog serves a fixed model list. Useful for tests and for
// configurations without a live provider endpoint.
type StaticCatalog []Model

func (c StaticCatalog) ListModels(ctx context.Context) ([]Model, error) {
	return c, nil
}
