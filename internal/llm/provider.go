package llm

import (
	"context"
	"fmt"
	"strings"
)

// Message is one role-tagged entry in a chat exchange.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Options carries per-call sampling parameters. Zero values fall through to
// the provider's defaults.
type Options struct {
	MaxTokens         int
	Temperature       float64
	TopP              float64
	RepetitionPenalty float64
}

// Provider generates text from an ordered message sequence.
type Provider interface {
	Chat(ctx context.Context, messages []Message, opts Options) (string, error)
	Name() string
}

// NormalizeMessages lowercases roles and rejects empty sequences.
func NormalizeMessages(messages []Message) ([]Message, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages provided")
	}
	for i := range messages {
		messages[i].Role = strings.ToLower(messages[i].Role)
	}
	return messages, nil
}
