package llm

import (
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/docuvault/ragcore/internal/common"
)

// NewProvider selects a chat provider from the environment: OpenAI when
// OPENAI_API_KEY is set, otherwise the local stub.
func NewProvider(model string) Provider {
	logger := common.Logger()
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		logger.Warn("llm: OPENAI_API_KEY not set; falling back to local provider")
		return NewLocalProvider()
	}
	cfg := openai.DefaultConfig(apiKey)
	if endpoint := strings.TrimSpace(os.Getenv("OPENAI_ENDPOINT")); endpoint != "" {
		logger.Info("llm: configuring openai client with custom endpoint", "endpoint", endpoint)
		cfg.BaseURL = endpoint
	}
	if timeoutStr := strings.TrimSpace(os.Getenv("OPENAI_HTTP_TIMEOUT")); timeoutStr != "" {
		timeout, err := time.ParseDuration(timeoutStr)
		if err != nil {
			logger.Warn("llm: invalid OPENAI_HTTP_TIMEOUT, using default", "value", timeoutStr, "error", err)
		} else {
			cfg.HTTPClient = &http.Client{Timeout: timeout}
		}
	}
	client := openai.NewClientWithConfig(cfg)
	logger.Info("llm: openai provider selected")
	return NewOpenAIProvider(client, model)
}

// NewOpenAIClient builds the shared OpenAI SDK client the embedding
// provider reuses, or nil when no key is configured.
func NewOpenAIClient() *openai.Client {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil
	}
	cfg := openai.DefaultConfig(apiKey)
	if endpoint := strings.TrimSpace(os.Getenv("OPENAI_ENDPOINT")); endpoint != "" {
		cfg.BaseURL = endpoint
	}
	return openai.NewClientWithConfig(cfg)
}
