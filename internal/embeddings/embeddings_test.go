package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ziadkadry99/cineforum/internal/config"
)

func TestNewDisabled(t *testing.T) {
	e, err := New(config.LLMConfig{EmbeddingProvider: config.ProviderNone})
	if err != nil || e != nil {
		t.Errorf("expected nil embedder, got %v, %v", e, err)
	}
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New(config.LLMConfig{EmbeddingProvider: config.ProviderOpenAI}); err == nil {
		t.Error("expected error without OPENAI_API_KEY")
	}
}

func TestOllamaEmbedder(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model

		type item struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		resp := struct {
			Object string `json:"object"`
			Data   []item `json:"data"`
		}{Object: "list"}
		for i := range req.Input {
			resp.Data = append(resp.Data, item{Object: "embedding", Index: i, Embedding: []float32{float32(i), 1}})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "")
	if e.Name() != "ollama/nomic-embed-text" {
		t.Errorf("unexpected name %q", e.Name())
	}

	vecs, err := e.Embed(context.Background(), []string{"Stalker", "Solaris"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 || vecs[1][0] != 1 {
		t.Errorf("unexpected vectors %v", vecs)
	}
	if gotModel != "nomic-embed-text" {
		t.Errorf("unexpected model %q", gotModel)
	}

	emb, err := ToChromemFunc(e)(context.Background(), "Lo specchio")
	if err != nil || len(emb) != 2 {
		t.Errorf("ToChromemFunc: %v, %v", emb, err)
	}
}
