package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/docuvault/ragcore/internal/rag"
)

// Memory is an in-process Store used for tests and keyless local runs.
// Distances are cosine distances (1 - dot product) over the normalized
// vectors the embedding provider guarantees.
type Memory struct {
	mu      sync.RWMutex
	dim     int
	records map[string]memoryRecord
}

type memoryRecord struct {
	embedding []float32
	text      string
	metadata  map[string]interface{}
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]memoryRecord)}
}

func (m *Memory) Add(ctx context.Context, ids []string, embeddings [][]float32, texts []string, metadatas []map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(embeddings) != len(ids) || len(texts) != len(ids) || len(metadatas) != len(ids) {
		return fmt.Errorf("add: mismatched lengths ids=%d embeddings=%d texts=%d metadatas=%d",
			len(ids), len(embeddings), len(texts), len(metadatas))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, id := range ids {
		if m.dim == 0 {
			m.dim = len(embeddings[i])
		} else if len(embeddings[i]) != m.dim {
			return fmt.Errorf("%w: embedding %d has dimension %d, store expects %d",
				rag.ErrDimensionMismatch, i, len(embeddings[i]), m.dim)
		}
		// Same id overwrites, matching the chromadb client's upsert semantics.
		m.records[id] = memoryRecord{
			embedding: append([]float32(nil), embeddings[i]...),
			text:      texts[i],
			metadata:  cloneMetadata(metadatas[i]),
		}
	}
	return nil
}

func (m *Memory) Query(ctx context.Context, embedding []float32, nResults int, filter map[string]interface{}) (QueryResult, error) {
	if err := ctx.Err(); err != nil {
		return QueryResult{}, err
	}
	if nResults <= 0 {
		nResults = 5
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	type scored struct {
		id       string
		distance float64
		record   memoryRecord
	}
	candidates := make([]scored, 0, len(m.records))
	for id, record := range m.records {
		if !matchesFilter(record.metadata, filter) {
			continue
		}
		candidates = append(candidates, scored{id: id, distance: 1 - dot(embedding, record.embedding), record: record})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distance == candidates[j].distance {
			return candidates[i].id < candidates[j].id
		}
		return candidates[i].distance < candidates[j].distance
	})
	if len(candidates) > nResults {
		candidates = candidates[:nResults]
	}
	result := QueryResult{}
	for _, cand := range candidates {
		result.Texts = append(result.Texts, cand.record.text)
		result.Metadatas = append(result.Metadatas, cloneMetadata(cand.record.metadata))
		result.Distances = append(result.Distances, cand.distance)
	}
	return result, nil
}

func (m *Memory) Delete(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.records, id)
	}
	return nil
}

func (m *Memory) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

func (m *Memory) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]memoryRecord)
	m.dim = 0
	return nil
}

var _ Store = (*Memory)(nil)

func matchesFilter(metadata, filter map[string]interface{}) bool {
	for key, want := range filter {
		got, ok := metadata[key]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func cloneMetadata(metadata map[string]interface{}) map[string]interface{} {
	if metadata == nil {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
