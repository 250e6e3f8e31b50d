package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultSystemPrompt constrains answers to the retrieved context.
const DefaultSystemPrompt = `You are a helpful AI assistant specialized in answering questions based strictly on provided context.

STRICT RULES:
1. Answer ONLY using information explicitly stated in the Context section
2. If the context doesn't contain the answer, respond with: "I cannot find this information in the provided documents."
3. DO NOT use your general knowledge or training data
4. DO NOT make up information, names, dates, or facts
5. When referencing information, cite the source document

If the question is outside the scope of the provided documents, politely decline to answer.`

// DefaultRewriteSystemPrompt instructs the model to emit only the rewritten question.
const DefaultRewriteSystemPrompt = "Rewrite the follow-up question to be standalone. Output ONLY the rewritten question - no explanations."

// Config is the immutable tunable set shared by every pipeline component.
// It is created once, passed by value, and never mutated after construction;
// a changed configuration means a new Config and a new pipeline.
type Config struct {
	EmbeddingModel string `json:"embedding_model"`
	LLMModel       string `json:"llm_model"`

	ChunkSize      int      `json:"chunk_size"`
	ChunkOverlap   int      `json:"chunk_overlap"`
	TextSeparators []string `json:"text_separators"`

	NResults            int     `json:"n_results"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	SemanticWeight      float64 `json:"semantic_weight"`
	UseHybridSearch     bool    `json:"use_hybrid_search"`

	MaxNewTokens      int     `json:"max_new_tokens"`
	Temperature       float64 `json:"temperature"`
	TopP              float64 `json:"top_p"`
	RepetitionPenalty float64 `json:"repetition_penalty"`

	RewriteMaxTokens   int     `json:"rewrite_max_tokens"`
	RewriteTemperature float64 `json:"rewrite_temperature"`
	RewriteMaxHistory  int     `json:"rewrite_max_history"`

	MaxHistoryTurns int `json:"max_history_turns"`

	CollectionName string `json:"collection_name"`

	SystemPrompt        string `json:"system_prompt"`
	RewriteSystemPrompt string `json:"rewrite_system_prompt"`

	EmbedTimeout    time.Duration `json:"-"`
	RetrieveTimeout time.Duration `json:"-"`
	GenerateTimeout time.Duration `json:"-"`
	RewriteTimeout  time.Duration `json:"-"`

	EmbedTimeoutStr    string `json:"embed_timeout"`
	RetrieveTimeoutStr string `json:"retrieve_timeout"`
	GenerateTimeoutStr string `json:"generate_timeout"`
	RewriteTimeoutStr  string `json:"rewrite_timeout"`
}

// Default returns the standard configuration.
func Default() Config {
	return Config{
		EmbeddingModel:      "text-embedding-3-small",
		LLMModel:            "gpt-4o-mini",
		ChunkSize:           256,
		ChunkOverlap:        60,
		TextSeparators:      []string{"\n\n", "\n", " ", ""},
		NResults:            6,
		SimilarityThreshold: 0.05,
		SemanticWeight:      0.7,
		UseHybridSearch:     true,
		MaxNewTokens:        512,
		Temperature:         0.2,
		TopP:                0.85,
		RepetitionPenalty:   1.1,
		RewriteMaxTokens:    30,
		RewriteTemperature:  0.1,
		RewriteMaxHistory:   4,
		MaxHistoryTurns:     6,
		CollectionName:      "docuvault_documents",
		SystemPrompt:        DefaultSystemPrompt,
		RewriteSystemPrompt: DefaultRewriteSystemPrompt,
		EmbedTimeout:        30 * time.Second,
		RetrieveTimeout:     15 * time.Second,
		GenerateTimeout:     2 * time.Minute,
		RewriteTimeout:      10 * time.Second,
	}
}

// Lightweight returns a configuration tuned for constrained deployments:
// semantic-only retrieval, fewer results, shorter answers.
func Lightweight() Config {
	cfg := Default()
	cfg.UseHybridSearch = false
	cfg.NResults = 4
	cfg.MaxNewTokens = 256
	return cfg
}

// Load builds the effective configuration: defaults, overlaid by an optional
// JSON file named in RAG_CONFIG_FILE, overlaid by RAG_* environment
// variables.
func Load() (Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("RAG_CONFIG_FILE")); path != "" {
		fileCfg, err := loadFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = cfg.Merge(fileCfg)
	}
	envCfg, err := loadEnv()
	if err != nil {
		return Config{}, err
	}
	cfg = cfg.Merge(envCfg)
	// Booleans cannot ride through Merge's zero-value rules; an explicit env
	// setting wins either way.
	if raw := strings.TrimSpace(os.Getenv("RAG_USE_HYBRID_SEARCH")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse RAG_USE_HYBRID_SEARCH: %w", err)
		}
		cfg.UseHybridSearch = value
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values no pipeline run could work with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.CollectionName) == "" {
		return &Error{Field: "collection_name", Reason: "must not be empty"}
	}
	if c.NResults <= 0 {
		return &Error{Field: "n_results", Reason: "must be positive"}
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return &Error{Field: "similarity_threshold", Reason: "must be within [0,1]"}
	}
	if c.SemanticWeight < 0 || c.SemanticWeight > 1 {
		return &Error{Field: "semantic_weight", Reason: "must be within [0,1]"}
	}
	if c.MaxHistoryTurns <= 0 {
		return &Error{Field: "max_history_turns", Reason: "must be positive"}
	}
	return nil
}

// Error reports an invalid or missing configuration value. It is fatal and
// never retried.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Reason)
}

// Merge overlays the non-zero fields of override onto c and returns the result.
func (c Config) Merge(override Config) Config {
	result := c
	if strings.TrimSpace(override.EmbeddingModel) != "" {
		result.EmbeddingModel = strings.TrimSpace(override.EmbeddingModel)
	}
	if strings.TrimSpace(override.LLMModel) != "" {
		result.LLMModel = strings.TrimSpace(override.LLMModel)
	}
	if override.ChunkSize > 0 {
		result.ChunkSize = override.ChunkSize
	}
	if override.ChunkOverlap > 0 {
		result.ChunkOverlap = override.ChunkOverlap
	}
	if len(override.TextSeparators) > 0 {
		result.TextSeparators = append([]string(nil), override.TextSeparators...)
	}
	if override.NResults > 0 {
		result.NResults = override.NResults
	}
	if override.SimilarityThreshold > 0 {
		result.SimilarityThreshold = override.SimilarityThreshold
	}
	if override.SemanticWeight > 0 {
		result.SemanticWeight = override.SemanticWeight
	}
	if override.UseHybridSearch {
		result.UseHybridSearch = true
	}
	if override.MaxNewTokens > 0 {
		result.MaxNewTokens = override.MaxNewTokens
	}
	if override.Temperature > 0 {
		result.Temperature = override.Temperature
	}
	if override.TopP > 0 {
		result.TopP = override.TopP
	}
	if override.RepetitionPenalty > 0 {
		result.RepetitionPenalty = override.RepetitionPenalty
	}
	if override.RewriteMaxTokens > 0 {
		result.RewriteMaxTokens = override.RewriteMaxTokens
	}
	if override.RewriteTemperature > 0 {
		result.RewriteTemperature = override.RewriteTemperature
	}
	if override.RewriteMaxHistory > 0 {
		result.RewriteMaxHistory = override.RewriteMaxHistory
	}
	if override.MaxHistoryTurns > 0 {
		result.MaxHistoryTurns = override.MaxHistoryTurns
	}
	if strings.TrimSpace(override.CollectionName) != "" {
		result.CollectionName = strings.TrimSpace(override.CollectionName)
	}
	if strings.TrimSpace(override.SystemPrompt) != "" {
		result.SystemPrompt = override.SystemPrompt
	}
	if strings.TrimSpace(override.RewriteSystemPrompt) != "" {
		result.RewriteSystemPrompt = override.RewriteSystemPrompt
	}
	if override.EmbedTimeout > 0 {
		result.EmbedTimeout = override.EmbedTimeout
	}
	if override.RetrieveTimeout > 0 {
		result.RetrieveTimeout = override.RetrieveTimeout
	}
	if override.GenerateTimeout > 0 {
		result.GenerateTimeout = override.GenerateTimeout
	}
	if override.RewriteTimeout > 0 {
		result.RewriteTimeout = override.RewriteTimeout
	}
	for _, pair := range []struct {
		src string
		dst *string
	}{
		{override.EmbedTimeoutStr, &result.EmbedTimeoutStr},
		{override.RetrieveTimeoutStr, &result.RetrieveTimeoutStr},
		{override.GenerateTimeoutStr, &result.GenerateTimeoutStr},
		{override.RewriteTimeoutStr, &result.RewriteTimeoutStr},
	} {
		if strings.TrimSpace(pair.src) != "" {
			*pair.dst = strings.TrimSpace(pair.src)
		}
	}
	return result
}

func (c *Config) applyDefaults() {
	parse := func(raw string, dst *time.Duration) {
		if *dst > 0 || raw == "" {
			return
		}
		if parsed, err := time.ParseDuration(raw); err == nil {
			*dst = parsed
		}
	}
	parse(c.EmbedTimeoutStr, &c.EmbedTimeout)
	parse(c.RetrieveTimeoutStr, &c.RetrieveTimeout)
	parse(c.GenerateTimeoutStr, &c.GenerateTimeout)
	parse(c.RewriteTimeoutStr, &c.RewriteTimeout)
	def := Default()
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = def.EmbedTimeout
	}
	if c.RetrieveTimeout <= 0 {
		c.RetrieveTimeout = def.RetrieveTimeout
	}
	if c.GenerateTimeout <= 0 {
		c.GenerateTimeout = def.GenerateTimeout
	}
	if c.RewriteTimeout <= 0 {
		c.RewriteTimeout = def.RewriteTimeout
	}
}

func loadFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("read rag config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse rag config: %w", err)
	}
	return cfg, nil
}

func loadEnv() (Config, error) {
	cfg := Config{}
	cfg.EmbeddingModel = strings.TrimSpace(os.Getenv("RAG_EMBEDDING_MODEL"))
	cfg.LLMModel = strings.TrimSpace(os.Getenv("RAG_LLM_MODEL"))
	cfg.CollectionName = strings.TrimSpace(os.Getenv("RAG_COLLECTION"))
	for _, entry := range []struct {
		env string
		dst *int
	}{
		{"RAG_CHUNK_SIZE", &cfg.ChunkSize},
		{"RAG_CHUNK_OVERLAP", &cfg.ChunkOverlap},
		{"RAG_N_RESULTS", &cfg.NResults},
		{"RAG_MAX_NEW_TOKENS", &cfg.MaxNewTokens},
		{"RAG_REWRITE_MAX_TOKENS", &cfg.RewriteMaxTokens},
		{"RAG_REWRITE_MAX_HISTORY", &cfg.RewriteMaxHistory},
		{"RAG_MAX_HISTORY_TURNS", &cfg.MaxHistoryTurns},
	} {
		raw := strings.TrimSpace(os.Getenv(entry.env))
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", entry.env, err)
		}
		*entry.dst = value
	}
	for _, entry := range []struct {
		env string
		dst *float64
	}{
		{"RAG_SIMILARITY_THRESHOLD", &cfg.SimilarityThreshold},
		{"RAG_SEMANTIC_WEIGHT", &cfg.SemanticWeight},
		{"RAG_TEMPERATURE", &cfg.Temperature},
		{"RAG_TOP_P", &cfg.TopP},
		{"RAG_REPETITION_PENALTY", &cfg.RepetitionPenalty},
		{"RAG_REWRITE_TEMPERATURE", &cfg.RewriteTemperature},
	} {
		raw := strings.TrimSpace(os.Getenv(entry.env))
		if raw == "" {
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", entry.env, err)
		}
		*entry.dst = value
	}
	cfg.EmbedTimeoutStr = strings.TrimSpace(os.Getenv("RAG_EMBED_TIMEOUT"))
	cfg.RetrieveTimeoutStr = strings.TrimSpace(os.Getenv("RAG_RETRIEVE_TIMEOUT"))
	cfg.GenerateTimeoutStr = strings.TrimSpace(os.Getenv("RAG_GENERATE_TIMEOUT"))
	cfg.RewriteTimeoutStr = strings.TrimSpace(os.Getenv("RAG_REWRITE_TIMEOUT"))
	return cfg, nil
}
