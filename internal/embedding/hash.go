package embedding

import (
	"context"
	"hash/fnv"
	"strings"
)

const defaultHashDimension = 384

// Hash is a deterministic offline embedder: a hashed bag-of-words folded
// into a fixed-length vector. It exists so the pipeline can run without an
// API key; retrieval quality is lexical, not semantic.
type Hash struct {
	dim int
}

func NewHash(dim int) *Hash {
	if dim <= 0 {
		dim = defaultHashDimension
	}
	return &Hash{dim: dim}
}

func (h *Hash) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = h.encode(text)
	}
	return vectors, nil
}

func (h *Hash) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.encode(text), nil
}

func (h *Hash) Dimension() int { return h.dim }

func (h *Hash) Model() string { return "hash-bow" }

func (h *Hash) encode(text string) []float32 {
	vec := make([]float32, h.dim)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		hasher := fnv.New32a()
		_, _ = hasher.Write([]byte(strings.Trim(token, ".,;:!?()\"'")))
		sum := hasher.Sum32()
		slot := int(sum % uint32(h.dim))
		// Top hash bit picks the sign.
		if sum&0x80000000 != 0 {
			vec[slot] -= 1
		} else {
			vec[slot] += 1
		}
	}
	return Normalize(vec)
}
