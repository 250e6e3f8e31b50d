package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/docuvault/ragcore/internal/rag"
)

func addOne(t *testing.T, store *Memory, id, text string, embedding []float32, meta map[string]interface{}) {
	t.Helper()
	err := store.Add(context.Background(),
		[]string{id}, [][]float32{embedding}, []string{text}, []map[string]interface{}{meta})
	if err != nil {
		t.Fatalf("add %s: %v", id, err)
	}
}

func TestMemoryQueryOrdersByDistance(t *testing.T) {
	store := NewMemory()
	addOne(t, store, "near", "near text", []float32{1, 0}, nil)
	addOne(t, store, "far", "far text", []float32{0, 1}, nil)

	result, err := store.Query(context.Background(), []float32{1, 0}, 2, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(result.Texts) != 2 {
		t.Fatalf("expected 2 results, got %d", len(result.Texts))
	}
	if result.Texts[0] != "near text" {
		t.Fatalf("expected nearest first, got %q", result.Texts[0])
	}
	if result.Distances[0] >= result.Distances[1] {
		t.Fatalf("distances not ascending: %v", result.Distances)
	}
}

func TestMemoryAddOverwritesSameID(t *testing.T) {
	store := NewMemory()
	addOne(t, store, "a#0", "first", []float32{1, 0}, map[string]interface{}{"source": "a"})
	addOne(t, store, "a#0", "second", []float32{1, 0}, map[string]interface{}{"source": "a"})

	count, err := store.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record after overwrite, got %d", count)
	}
	result, err := store.Query(context.Background(), []float32{1, 0}, 1, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if result.Texts[0] != "second" {
		t.Fatalf("expected overwritten text, got %q", result.Texts[0])
	}
}

func TestMemoryQueryAppliesFilter(t *testing.T) {
	store := NewMemory()
	addOne(t, store, "a#0", "from a", []float32{1, 0}, map[string]interface{}{"source": "a"})
	addOne(t, store, "b#0", "from b", []float32{1, 0}, map[string]interface{}{"source": "b"})

	result, err := store.Query(context.Background(), []float32{1, 0}, 5, map[string]interface{}{"source": "b"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(result.Texts) != 1 || result.Texts[0] != "from b" {
		t.Fatalf("filter not applied: %v", result.Texts)
	}
}

func TestMemoryRejectsDimensionMismatch(t *testing.T) {
	store := NewMemory()
	addOne(t, store, "a#0", "text", []float32{1, 0}, nil)
	err := store.Add(context.Background(),
		[]string{"b#0"}, [][]float32{{1, 0, 0}}, []string{"other"}, []map[string]interface{}{nil})
	if !errors.Is(err, rag.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch error, got %v", err)
	}
}

func TestMemoryResetEmptiesStore(t *testing.T) {
	store := NewMemory()
	addOne(t, store, "a#0", "text", []float32{1, 0}, nil)
	if err := store.Reset(context.Background()); err != nil {
		t.Fatalf("reset: %v", err)
	}
	count, err := store.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty store, got %d", count)
	}
}
