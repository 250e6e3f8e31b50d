package retriever

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/docuvault/ragcore/internal/common"
	"github.com/docuvault/ragcore/internal/config"
	"github.com/docuvault/ragcore/internal/embedding"
	"github.com/docuvault/ragcore/internal/rag"
	"github.com/docuvault/ragcore/internal/vector"
)

// stopWords are dropped during keyword extraction alongside any word of
// length three or less.
var stopWords = map[string]struct{}{
	"what": {}, "when": {}, "where": {}, "who": {}, "how": {}, "why": {},
	"is": {}, "are": {}, "the": {}, "a": {}, "an": {}, "in": {}, "on": {}, "at": {},
}

const (
	previewChars = 150
)

// Result is one retained chunk with its final score. Scores are comparable
// only within a single retrieval call.
type Result struct {
	Text     string
	Metadata map[string]any
	Score    float64
}

// Source is the citation record surfaced to callers alongside the answer.
type Source struct {
	Source      string  `json:"source"`
	Page        int     `json:"page"`
	Similarity  float64 `json:"similarity"`
	ContentType string  `json:"content_type"`
	TextPreview string  `json:"text_preview"`
}

// Retriever embeds a query, searches the vector store, optionally blends
// semantic similarity with keyword overlap, and filters by threshold. The
// distance-to-similarity conversion (1 - distance, cosine on normalized
// vectors) lives here, not in the store.
type Retriever struct {
	embedder embedding.Provider
	store    vector.Store
	cfg      config.Config
}

func NewRetriever(embedder embedding.Provider, store vector.Store, cfg config.Config) *Retriever {
	return &Retriever{embedder: embedder, store: store, cfg: cfg}
}

// Retrieve runs the search pipeline for query. An empty result is not an
// error; it means nothing cleared the similarity threshold.
func (r *Retriever) Retrieve(ctx context.Context, query string, nResults int, filter map[string]any, useHybrid bool) ([]Result, error) {
	if r.embedder == nil || r.store == nil {
		return nil, rag.ErrNotInitialized
	}
	if nResults <= 0 {
		nResults = r.cfg.NResults
	}
	logger := common.Logger()

	queryCtx := ctx
	if r.cfg.RetrieveTimeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, r.cfg.RetrieveTimeout)
		defer cancel()
	}

	emb, err := r.embedder.EmbedQuery(queryCtx, query)
	if err != nil {
		return nil, &rag.ProviderError{Op: "embed query", Err: err, Transient: common.Transient(err)}
	}

	fetch := nResults
	if useHybrid {
		fetch = 2 * nResults
	}
	qr, err := r.store.Query(queryCtx, emb, fetch, filter)
	if err != nil {
		return nil, &rag.ProviderError{Op: "vector query", Err: err, Transient: common.Transient(err)}
	}

	results := make([]Result, 0, len(qr.Texts))
	for i, text := range qr.Texts {
		var meta map[string]any
		if i < len(qr.Metadatas) {
			meta = qr.Metadatas[i]
		}
		score := 0.0
		if i < len(qr.Distances) {
			score = 1 - qr.Distances[i]
		}
		results = append(results, Result{Text: text, Metadata: meta, Score: score})
	}

	if useHybrid {
		results = r.rescoreHybrid(query, results, nResults)
	}

	retained := results[:0]
	for _, res := range results {
		if res.Score >= r.cfg.SimilarityThreshold {
			retained = append(retained, res)
		}
	}
	logger.Debug("retriever: search complete",
		"candidates", len(results), "retained", len(retained), "hybrid", useHybrid)
	return retained, nil
}

// rescoreHybrid blends semantic similarity with keyword overlap and keeps
// the top n. The sort is stable so equal combined scores preserve semantic
// rank order.
func (r *Retriever) rescoreHybrid(query string, results []Result, n int) []Result {
	keywords := ExtractKeywords(query)
	if len(keywords) > 0 {
		for i := range results {
			kw := keywordScore(results[i].Text, keywords)
			results[i].Score = r.cfg.SemanticWeight*results[i].Score + (1-r.cfg.SemanticWeight)*kw
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > n {
		results = results[:n]
	}
	return results
}

// ExtractKeywords lowercases and splits the query, dropping stop words and
// words of length three or less.
func ExtractKeywords(query string) []string {
	var keywords []string
	for _, word := range strings.Fields(strings.ToLower(query)) {
		word = strings.Trim(word, ".,!?;:'\"()")
		if len(word) <= 3 {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		keywords = append(keywords, word)
	}
	return keywords
}

func keywordScore(text string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	matches := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			matches++
		}
	}
	return float64(matches) / float64(len(keywords))
}

// FormatContext renders retained chunks as labeled blocks joined by blank
// lines, highest score first. Table chunks get a "Table:" annotation with
// structural markers stripped; image-description chunks get "Image showing:".
func FormatContext(results []Result) string {
	if len(results) == 0 {
		return ""
	}
	blocks := make([]string, 0, len(results))
	for _, res := range results {
		source, page := sourceAndPage(res.Metadata)
		text := res.Text
		header := fmt.Sprintf("From %s (page %d)", source, page)
		switch chunkType(res.Metadata, res.Text) {
		case rag.ChunkTable:
			header += ", Table:"
			text = rag.StripMarkers(text)
		case rag.ChunkImageDescription:
			header += ", Image showing:"
			text = rag.StripMarkers(text)
		default:
			header += ":"
		}
		blocks = append(blocks, header+"\n"+strings.TrimSpace(text))
	}
	return strings.Join(blocks, "\n\n")
}

// PrepareSources builds the citation list for retained chunks: 1-based page,
// similarity rounded to three decimals, and a marker-stripped preview.
func PrepareSources(results []Result) []Source {
	sources := make([]Source, 0, len(results))
	for _, res := range results {
		name, page := sourceAndPage(res.Metadata)
		preview := strings.TrimSpace(rag.StripMarkers(res.Text))
		if len(preview) > previewChars {
			preview = common.Truncate(preview, previewChars) + "..."
		}
		sources = append(sources, Source{
			Source:      name,
			Page:        page,
			Similarity:  round3(res.Score),
			ContentType: string(chunkType(res.Metadata, res.Text)),
			TextPreview: preview,
		})
	}
	return sources
}

// chunkType prefers the type recorded at index time and falls back to
// marker detection for chunks indexed without one.
func chunkType(meta map[string]any, text string) rag.ChunkType {
	if meta != nil {
		if t, ok := meta["chunk_type"].(string); ok && t != "" {
			return rag.ChunkType(t)
		}
	}
	return rag.DetectType(text)
}

// sourceAndPage reads citation fields out of chunk metadata. Pages are
// stored zero-based and reported one-based.
func sourceAndPage(meta map[string]any) (string, int) {
	source := "unknown"
	page := 0
	if meta != nil {
		if s, ok := meta["source"].(string); ok && s != "" {
			source = s
		}
		switch p := meta["page"].(type) {
		case int:
			page = p
		case int64:
			page = int(p)
		case float64:
			page = int(p)
		}
	}
	return source, page + 1
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
