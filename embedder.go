package qcorpus

import (
	"context"
	"fmt"
	"sort"

	openai "github.com/sashabaranov/go-openai"
)

// Embedder maps texts to fixed-length vectors, one per text, in input
// order. Available reports whether the service can be called at all.
type Embedder interface {
	Available() bool
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// DefaultEmbeddingModel is the default OpenAI embedding model.
const DefaultEmbeddingModel = string(openai.SmallEmbedding3)

// OpenAIEmbedder calls the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
	ready  bool
}

// NewOpenAIEmbedder creates an embedder. An empty API key yields an
// embedder that reports itself unavailable. baseURL may point at any
// OpenAI-compatible server; empty keeps the default.
func NewOpenAIEmbedder(apiKey, baseURL, model string) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.EmbeddingModel(model),
		ready:  apiKey != "",
	}
}

// Available reports whether an API key was configured.
func (e *OpenAIEmbedder) Available() bool {
	return e != nil && e.ready
}

// maxEmbeddingInputs is the endpoint's per-request input limit.
const maxEmbeddingInputs = 2048

// Embed encodes texts, splitting them into as few requests as the
// endpoint allows.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	VerboseLog("requesting embeddings", "model", e.model, "texts", len(texts))

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbeddingInputs {
		end := min(start+maxEmbeddingInputs, len(texts))
		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float32, len(data))
	for i, d := range data {
		if d.Index != i {
			return nil, fmt.Errorf("embedding index %d missing from response", i)
		}
		vectors[i] = d.Embedding
	}
	return vectors, nil
}
