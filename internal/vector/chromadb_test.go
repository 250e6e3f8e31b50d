package vector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeChroma struct {
	t *testing.T

	mu                sync.Mutex
	collectionName    string
	collectionID      string
	heartbeatFailures int
	heartbeatCalls    int
	addCalls          int
	upsertCalls       int
	upsertNotFound    bool
	deleteCalls       int

	records map[string]map[string]interface{}

	lastAddPayload    map[string]interface{}
	lastUpsertPayload map[string]interface{}
}

func newFakeChroma(t *testing.T) *fakeChroma {
	t.Helper()
	return &fakeChroma{
		t:              t,
		collectionName: "docuvault_documents",
		collectionID:   "col-123",
		records:        make(map[string]map[string]interface{}),
	}
}

func (f *fakeChroma) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/heartbeat":
		f.handleHeartbeat(w)
	case r.URL.Path == "/api/v1/collections" && r.Method == http.MethodGet:
		f.handleFindCollections(w)
	case r.URL.Path == "/api/v1/collections" && r.Method == http.MethodPost:
		f.handleCreateCollection(w)
	case strings.HasSuffix(r.URL.Path, "/upsert"):
		f.handleUpsert(w, r)
	case strings.HasSuffix(r.URL.Path, "/add"):
		f.handleAdd(w, r)
	case strings.HasSuffix(r.URL.Path, "/query"):
		f.handleQuery(w)
	case strings.HasSuffix(r.URL.Path, "/delete"):
		f.handleDelete(w, r)
	case strings.HasSuffix(r.URL.Path, "/count"):
		f.handleCount(w)
	case r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusOK)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeChroma) handleHeartbeat(w http.ResponseWriter) {
	f.mu.Lock()
	f.heartbeatCalls++
	shouldFail := f.heartbeatFailures > 0
	if shouldFail {
		f.heartbeatFailures--
	}
	f.mu.Unlock()
	if shouldFail {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (f *fakeChroma) handleFindCollections(w http.ResponseWriter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payload := map[string]interface{}{
		"collections": []map[string]string{{"id": f.collectionID, "name": f.collectionName}},
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func (f *fakeChroma) handleCreateCollection(w http.ResponseWriter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_ = json.NewEncoder(w).Encode(map[string]string{"id": f.collectionID})
}

func (f *fakeChroma) handleUpsert(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	notFound := f.upsertNotFound
	f.mu.Unlock()
	if notFound {
		http.NotFound(w, r)
		return
	}
	var payload map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		f.t.Fatalf("decode upsert payload: %v", err)
	}
	f.mu.Lock()
	f.upsertCalls++
	f.lastUpsertPayload = payload
	f.storeLocked(payload)
	f.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (f *fakeChroma) handleAdd(w http.ResponseWriter, r *http.Request) {
	var payload map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		f.t.Fatalf("decode add payload: %v", err)
	}
	f.mu.Lock()
	f.addCalls++
	f.lastAddPayload = payload
	f.storeLocked(payload)
	f.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (f *fakeChroma) storeLocked(payload map[string]interface{}) {
	ids, _ := payload["ids"].([]interface{})
	for _, raw := range ids {
		if id, ok := raw.(string); ok {
			f.records[id] = payload
		}
	}
}

func (f *fakeChroma) handleQuery(w http.ResponseWriter) {
	payload := map[string]interface{}{
		"ids":       [][]string{{"doc-1", "doc-2"}},
		"documents": [][]string{{"alpha text", "beta text"}},
		"metadatas": [][]map[string]interface{}{{
			{"source": "alpha.pdf", "page": 0},
			{"source": "beta.pdf", "page": 2},
		}},
		"distances": [][]float64{{0.1, 0.4}},
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func (f *fakeChroma) handleDelete(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		f.t.Fatalf("decode delete payload: %v", err)
	}
	f.mu.Lock()
	f.deleteCalls++
	for _, id := range payload.IDs {
		delete(f.records, id)
	}
	f.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (f *fakeChroma) handleCount(w http.ResponseWriter) {
	f.mu.Lock()
	count := len(f.records)
	f.mu.Unlock()
	_ = json.NewEncoder(w).Encode(count)
}

func newTestClient(t *testing.T, fake *fakeChroma) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	parsed, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	cfg := Config{
		Host:       parsed.Hostname(),
		Port:       parsed.Port(),
		Scheme:     "http",
		Collection: fake.collectionName,
		Timeout:    2 * time.Second,
	}
	client, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, server
}

func TestClientAddUsesUpsert(t *testing.T) {
	fake := newFakeChroma(t)
	client, _ := newTestClient(t, fake)

	ids := []string{"a#0"}
	embeddings := [][]float32{{0.1, 0.2}}
	texts := []string{"hello"}
	metadatas := []map[string]interface{}{{"source": "a"}}
	if err := client.Add(context.Background(), ids, embeddings, texts, metadatas); err != nil {
		t.Fatalf("add: %v", err)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.upsertCalls != 1 {
		t.Fatalf("expected 1 upsert call, got %d", fake.upsertCalls)
	}
	if fake.addCalls != 0 {
		t.Fatalf("expected no add calls, got %d", fake.addCalls)
	}
	if fake.lastUpsertPayload["ids"] == nil {
		t.Fatal("upsert payload missing ids")
	}
}

func TestClientAddFallsBackWhenUpsertMissing(t *testing.T) {
	fake := newFakeChroma(t)
	fake.upsertNotFound = true
	client, _ := newTestClient(t, fake)

	err := client.Add(context.Background(),
		[]string{"a#0"}, [][]float32{{0.1}}, []string{"hello"}, []map[string]interface{}{{}})
	if err != nil {
		t.Fatalf("add with fallback: %v", err)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.addCalls != 1 {
		t.Fatalf("expected fallback add call, got %d", fake.addCalls)
	}
}

func TestClientAddTwiceOverwrites(t *testing.T) {
	fake := newFakeChroma(t)
	client, _ := newTestClient(t, fake)
	ctx := context.Background()

	payload := func(text string) ([]string, [][]float32, []string, []map[string]interface{}) {
		return []string{"a#0"}, [][]float32{{0.5}}, []string{text}, []map[string]interface{}{{"source": "a"}}
	}
	ids, embs, texts, metas := payload("first")
	if err := client.Add(ctx, ids, embs, texts, metas); err != nil {
		t.Fatalf("first add: %v", err)
	}
	ids, embs, texts, metas = payload("second")
	if err := client.Add(ctx, ids, embs, texts, metas); err != nil {
		t.Fatalf("second add: %v", err)
	}
	count, err := client.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected overwrite to keep count at 1, got %d", count)
	}
}

func TestClientQueryParsesResults(t *testing.T) {
	fake := newFakeChroma(t)
	client, _ := newTestClient(t, fake)

	result, err := client.Query(context.Background(), []float32{0.1, 0.2}, 2, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(result.Texts) != 2 {
		t.Fatalf("expected 2 texts, got %d", len(result.Texts))
	}
	if result.Texts[0] != "alpha text" {
		t.Fatalf("unexpected first text: %q", result.Texts[0])
	}
	if result.Distances[0] != 0.1 || result.Distances[1] != 0.4 {
		t.Fatalf("unexpected distances: %v", result.Distances)
	}
	if result.Metadatas[1]["source"] != "beta.pdf" {
		t.Fatalf("unexpected metadata: %v", result.Metadatas[1])
	}
}

func TestClientRecoversAfterHeartbeatFailures(t *testing.T) {
	fake := newFakeChroma(t)
	fake.heartbeatFailures = 2
	client, _ := newTestClient(t, fake)

	if _, err := client.Count(context.Background()); err != nil {
		t.Fatalf("count after flaky heartbeat: %v", err)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.heartbeatCalls < 3 {
		t.Fatalf("expected heartbeat retries, got %d calls", fake.heartbeatCalls)
	}
}

func TestEnsureCollectionRejectsDimensionChange(t *testing.T) {
	fake := newFakeChroma(t)
	client, _ := newTestClient(t, fake)
	ctx := context.Background()

	if err := client.EnsureCollection(ctx, 4); err != nil {
		t.Fatalf("ensure collection: %v", err)
	}
	if err := client.EnsureCollection(ctx, 8); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
	err := client.Add(ctx, []string{"a#0"}, [][]float32{{1, 2}}, []string{"t"}, []map[string]interface{}{{}})
	if err == nil {
		t.Fatal("expected add with wrong dimension to fail")
	}
}

func TestResetClearsPinnedDimension(t *testing.T) {
	fake := newFakeChroma(t)
	client, _ := newTestClient(t, fake)
	ctx := context.Background()

	if err := client.EnsureCollection(ctx, 4); err != nil {
		t.Fatalf("ensure collection: %v", err)
	}
	if err := client.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := client.EnsureCollection(ctx, 8); err != nil {
		t.Fatalf("ensure collection after reset: %v", err)
	}
}
