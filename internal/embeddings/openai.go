package embeddings

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const maxBatchSize = 100

// DefaultOpenAIModel is used when no embedding model is configured.
const DefaultOpenAIModel = string(openai.SmallEmbedding3)

// OpenAIEmbedder generates embeddings through the OpenAI embeddings API,
// or through Ollama's OpenAI-compatible endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	name   string
}

// NewOpenAIEmbedder creates an embedder for the OpenAI API.
func NewOpenAIEmbedder(apiKey, model string) *OpenAIEmbedder {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIEmbedder{client: openai.NewClient(apiKey), model: model, name: model}
}

// NewOllamaEmbedder creates an embedder for a local Ollama server, e.g.
// with model "nomic-embed-text".
func NewOllamaEmbedder(host, model string) *OpenAIEmbedder {
	if model == "" {
		model = "nomic-embed-text"
	}
	cfg := openai.DefaultConfig("ollama")
	cfg.BaseURL = host + "/v1"
	return &OpenAIEmbedder{client: openai.NewClientWithConfig(cfg), model: model, name: "ollama/" + model}
}

func (e *OpenAIEmbedder) Name() string {
	return e.name
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += maxBatchSize {
		batch := texts[i:min(i+maxBatchSize, len(texts))]

		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: batch,
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			return nil, fmt.Errorf("%s embedding request failed: %w", e.name, err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("%s returned %d embeddings, expected %d", e.name, len(resp.Data), len(batch))
		}
		for _, emb := range resp.Data {
			out = append(out, emb.Embedding)
		}
	}
	return out, nil
}
