// Package embeddings turns film text into vectors for the similarity index.
package embeddings

import (
	"context"
	"fmt"
	"os"

	"github.com/ziadkadry99/cineforum/internal/config"
	"github.com/ziadkadry99/cineforum/internal/llm"
)

// Embedder defines the interface for generating text embeddings.
type Embedder interface {
	// Embed generates embeddings for one or more texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Name returns the name/identifier of the embedding model.
	Name() string
}

// New creates the embedder selected in the LLM config. It returns nil and
// no error when embeddings are disabled.
func New(cfg config.LLMConfig) (Embedder, error) {
	switch cfg.EmbeddingProvider {
	case "", config.ProviderNone:
		return nil, nil
	case config.ProviderOpenAI:
		env := config.APIKeyEnvVar(config.ProviderOpenAI)
		key := os.Getenv(env)
		if key == "" {
			return nil, fmt.Errorf("%s environment variable is not set", env)
		}
		return NewOpenAIEmbedder(key, cfg.EmbeddingModel), nil
	case config.ProviderOllama:
		return NewOllamaEmbedder(llm.OllamaHost(), cfg.EmbeddingModel), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.EmbeddingProvider)
	}
}
