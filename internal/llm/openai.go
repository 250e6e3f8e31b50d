package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/docuvault/ragcore/internal/common"
)

// OpenAIProvider generates text through the OpenAI chat completions API.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

func NewOpenAIProvider(client *openai.Client, model string) *OpenAIProvider {
	if model == "" {
		model = openai.GPT4oMini
	}
	common.Logger().Info("llm: openai provider configured", "chat_model", model)
	return &OpenAIProvider{client: client, model: model}
}

func (o *OpenAIProvider) Chat(ctx context.Context, messages []Message, opts Options) (string, error) {
	if o.client == nil {
		return "", fmt.Errorf("nil openai client")
	}
	normalized, err := NormalizeMessages(messages)
	if err != nil {
		return "", err
	}
	logger := common.Logger()
	logger.Debug("llm: sending chat completion request", "model", o.model, "messages", len(normalized))
	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: float32(opts.Temperature),
		TopP:        float32(opts.TopP),
		MaxTokens:   opts.MaxTokens,
	}
	// The API has no repetition penalty; frequency penalty covers the same
	// concern with a zero-centered scale.
	if opts.RepetitionPenalty > 1 {
		req.FrequencyPenalty = float32(opts.RepetitionPenalty - 1)
	}
	for _, msg := range normalized {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content})
	}
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		logger.Error("llm: chat completion failed", "error", err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	logger.Debug("llm: chat completion succeeded")
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAIProvider) Name() string { return "openai" }
