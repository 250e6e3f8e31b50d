package embedding

import (
	"context"
	"fmt"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/docuvault/ragcore/internal/common"
)

// Known dimensionalities for OpenAI embedding models. Models outside this
// table report 0 until the first successful call.
var openaiDimensions = map[string]int{
	string(openai.SmallEmbedding3): 1536,
	string(openai.LargeEmbedding3): 3072,
	string(openai.AdaEmbeddingV2):  1536,
}

// OpenAI embeds text through the OpenAI embeddings API.
type OpenAI struct {
	client *openai.Client
	model  string

	mu  sync.RWMutex
	dim int
}

func NewOpenAI(client *openai.Client, model string) *OpenAI {
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	p := &OpenAI{client: client, model: model, dim: openaiDimensions[model]}
	common.Logger().Info("embedding: openai provider configured", "model", model, "dimension", p.dim)
	return p
}

func (p *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embed batch: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		vectors[i] = Normalize(data.Embedding)
	}
	p.recordDimension(len(vectors[0]))
	return vectors, nil
}

func (p *OpenAI) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (p *OpenAI) Dimension() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dim
}

func (p *OpenAI) Model() string { return p.model }

func (p *OpenAI) recordDimension(dim int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dim == 0 {
		p.dim = dim
	}
}
