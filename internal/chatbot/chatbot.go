package chatbot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/docuvault/ragcore/internal/common"
	"github.com/docuvault/ragcore/internal/config"
	"github.com/docuvault/ragcore/internal/embedding"
	"github.com/docuvault/ragcore/internal/generate"
	"github.com/docuvault/ragcore/internal/rag"
	"github.com/docuvault/ragcore/internal/retriever"
	"github.com/docuvault/ragcore/internal/rewrite"
	"github.com/docuvault/ragcore/internal/session"
	"github.com/docuvault/ragcore/internal/vector"
)

// errorTurnPrefix marks the system turn recorded when a question could not
// be answered, keeping the user turn paired.
const errorTurnPrefix = "Query failed: "

// SystemInfo is the controller's observable state snapshot.
type SystemInfo struct {
	Initialized    bool   `json:"initialized"`
	VectorCount    int    `json:"vector_count"`
	EmbeddingModel string `json:"embedding_model"`
	LLMModel       string `json:"llm_model"`
	ActiveThreads  int    `json:"active_threads"`
}

// Chatbot wires the pipeline: rewrite, retrieve, generate, remember. It is
// safe for concurrent use across distinct threads; questions within one
// thread are serialized.
type Chatbot struct {
	cfg       config.Config
	embedder  embedding.Provider
	store     vector.Store
	rewriter  *rewrite.Rewriter
	retriever *retriever.Retriever
	generator *generate.Generator
	sessions  *session.Manager

	mu          sync.RWMutex
	initialized bool
}

// New assembles a chatbot from its collaborators. Initialize must be called
// before Query or IndexDocuments.
func New(cfg config.Config, embedder embedding.Provider, store vector.Store, chat *generate.Generator, rewriter *rewrite.Rewriter, sessions *session.Manager) *Chatbot {
	return &Chatbot{
		cfg:       cfg,
		embedder:  embedder,
		store:     store,
		rewriter:  rewriter,
		retriever: retriever.NewRetriever(embedder, store, cfg),
		generator: chat,
		sessions:  sessions,
	}
}

// Initialize prepares the vector collection for this embedder's dimension.
// With reset the collection is dropped and recreated empty first.
func (c *Chatbot) Initialize(ctx context.Context, reset bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return fmt.Errorf("chatbot: already initialized")
	}
	if c.embedder == nil || c.store == nil || c.generator == nil || c.sessions == nil {
		return rag.ErrNotInitialized
	}
	logger := common.Logger()
	if reset {
		if err := c.store.Reset(ctx); err != nil {
			return fmt.Errorf("chatbot: reset index: %w", err)
		}
		logger.Info("chatbot: vector collection reset")
	}
	if ensurer, ok := c.store.(interface {
		EnsureCollection(ctx context.Context, dim int) error
	}); ok {
		if dim := c.embedder.Dimension(); dim > 0 {
			if err := ensurer.EnsureCollection(ctx, dim); err != nil {
				return fmt.Errorf("chatbot: prepare collection: %w", err)
			}
		}
	}
	c.initialized = true
	logger.Info("chatbot: initialized",
		"embedding_model", c.embedder.Model(),
		"hybrid", c.cfg.UseHybridSearch,
		"reset", reset)
	return nil
}

// IndexDocuments embeds chunks and appends them to the vector index.
// Re-indexing a chunk with an existing id overwrites the stored record.
func (c *Chatbot) IndexDocuments(ctx context.Context, chunks []rag.Chunk) error {
	if err := c.requireInitialized(); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	ids := make([]string, 0, len(chunks))
	texts := make([]string, 0, len(chunks))
	metadatas := make([]map[string]interface{}, 0, len(chunks))
	for _, chunk := range chunks {
		if err := chunk.Validate(); err != nil {
			return fmt.Errorf("chatbot: invalid chunk %q: %w", chunk.ID(), err)
		}
		ids = append(ids, chunk.ID())
		texts = append(texts, chunk.Text)
		metadatas = append(metadatas, chunk.Metadata())
	}

	embedCtx := ctx
	if c.cfg.EmbedTimeout > 0 {
		var cancel context.CancelFunc
		embedCtx, cancel = context.WithTimeout(ctx, c.cfg.EmbedTimeout)
		defer cancel()
	}
	var embeddings [][]float32
	err := common.RetryOnce(embedCtx, time.Second, func() error {
		var embedErr error
		embeddings, embedErr = c.embedder.EmbedBatch(embedCtx, texts)
		return embedErr
	})
	if err != nil {
		return &rag.ProviderError{Op: "embed documents", Err: err, Transient: common.Transient(err)}
	}
	if err := c.store.Add(ctx, ids, embeddings, texts, metadatas); err != nil {
		return &rag.ProviderError{Op: "index documents", Err: err, Transient: common.Transient(err)}
	}
	common.Logger().Info("chatbot: documents indexed", "chunks", len(chunks))
	return nil
}

// Query answers a question for one conversation thread. The full span runs
// under the thread's lock so history appends stay ordered. The user turn is
// always paired with either the assistant answer or a system error turn
// before the lock is released.
func (c *Chatbot) Query(ctx context.Context, question, threadID string) (string, []retriever.Source, error) {
	if err := c.requireInitialized(); err != nil {
		return "", nil, err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return "", nil, fmt.Errorf("chatbot: question required")
	}

	lock := c.sessions.ThreadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	logger := common.Logger()
	history := c.sessions.History(threadID)

	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	// Rewrite failures and timeouts fall back to the original question
	// inside the rewriter; nothing here can fail the query.
	searchQuery := question
	if c.rewriter != nil {
		searchQuery = c.rewriter.Rewrite(ctx, question, history)
	}

	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	var results []retriever.Result
	err := common.RetryOnce(ctx, time.Second, func() error {
		var retrieveErr error
		results, retrieveErr = c.retriever.Retrieve(ctx, searchQuery, c.cfg.NResults, nil, c.cfg.UseHybridSearch)
		return retrieveErr
	})
	if err != nil {
		c.recordFailure(threadID, question, err)
		return "", nil, err
	}

	contextBlock := retriever.FormatContext(results)
	sources := retriever.PrepareSources(results)

	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	var answer string
	err = common.RetryOnce(ctx, time.Second, func() error {
		var genErr error
		answer, genErr = c.generator.Answer(ctx, contextBlock, question, history)
		return genErr
	})
	if err != nil {
		c.recordFailure(threadID, question, err)
		return "", nil, err
	}

	c.sessions.Append(threadID, session.RoleUser, question)
	c.sessions.Append(threadID, session.RoleAssistant, answer)
	logger.Debug("chatbot: query answered", "thread", threadID, "sources", len(sources))
	return answer, sources, nil
}

// ClearMemory drops one thread's conversation history.
func (c *Chatbot) ClearMemory(threadID string) error {
	if err := c.requireInitialized(); err != nil {
		return err
	}
	c.sessions.Clear(threadID)
	return nil
}

// ClearAllMemory drops every thread's conversation history.
func (c *Chatbot) ClearAllMemory() error {
	if err := c.requireInitialized(); err != nil {
		return err
	}
	c.sessions.ClearAll()
	return nil
}

// Info reports the controller's current state. A vector count failure is
// reported as zero, not an error; info is diagnostic.
func (c *Chatbot) Info(ctx context.Context) SystemInfo {
	c.mu.RLock()
	initialized := c.initialized
	c.mu.RUnlock()
	info := SystemInfo{
		Initialized:    initialized,
		EmbeddingModel: c.cfg.EmbeddingModel,
		LLMModel:       c.cfg.LLMModel,
	}
	if c.embedder != nil {
		info.EmbeddingModel = c.embedder.Model()
	}
	if c.sessions != nil {
		info.ActiveThreads = len(c.sessions.ActiveThreads())
	}
	if initialized && c.store != nil {
		if count, err := c.store.Count(ctx); err == nil {
			info.VectorCount = count
		} else {
			common.Logger().Warn("chatbot: vector count unavailable", "error", err)
		}
	}
	return info
}

func (c *Chatbot) requireInitialized() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.initialized {
		return rag.ErrNotInitialized
	}
	return nil
}

// recordFailure keeps the user turn paired when retrieval or generation
// fails, so the transcript shows the question was asked.
func (c *Chatbot) recordFailure(threadID, question string, err error) {
	c.sessions.Append(threadID, session.RoleUser, question)
	c.sessions.Append(threadID, session.RoleSystem, errorTurnPrefix+err.Error())
}
