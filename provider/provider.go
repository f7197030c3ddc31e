// Package provider abstracts embedding providers behind a single interface,
// selected once at configuration time.
package provider

import (
	"context"
	"errors"
	"time"

	openaiprovider "github.com/sievedocs/sieve/provider/openai"
)

// Client names a supported embedding provider.
type Client string

const (
	OpenAI Client = "openai"
)

// Embedder produces fixed-dimension embedding vectors for query text. It may
// fail or be slow; retrieval tolerates both.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Options carries provider construction settings from config.
type Options struct {
	APIKey         string
	EmbeddingModel string
	Timeout        time.Duration
}

// NewEmbedder creates an embedding client for the named provider.
func NewEmbedder(client Client, opts Options) (Embedder, error) {
	switch client {
	case OpenAI:
		if opts.APIKey == "" {
			return nil, errors.New("openai api key not configured")
		}
		model := opts.EmbeddingModel
		if model == "" {
			model = "text-embedding-3-small"
		}
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		return openaiprovider.NewClient(opts.APIKey, model, timeout), nil
	default:
		return nil, errors.New("unsupported embedding provider")
	}
}
