package embedding

import (
	"context"
	"math"
)

// Provider encodes text into fixed-length normalized vectors. Batch order
// matches input order, and every vector is L2-normalized so cosine
// similarity reduces to a dot product.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Dimension reports the vector length; 0 until known for providers that
	// discover it on first use.
	Dimension() int
	Model() string
}

// Normalize scales v to unit length in place and returns it. Zero vectors
// are returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}
