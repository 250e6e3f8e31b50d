package generate

import (
	"context"
	"strings"

	"github.com/docuvault/ragcore/internal/common"
	"github.com/docuvault/ragcore/internal/config"
	"github.com/docuvault/ragcore/internal/llm"
	"github.com/docuvault/ragcore/internal/rag"
	"github.com/docuvault/ragcore/internal/session"
)

// NoContextAnswer is returned verbatim when retrieval produced nothing; no
// generation call is made in that case.
const NoContextAnswer = "I cannot find relevant information in the provided documents to answer this question."

// Generator produces the final grounded answer from the formatted context
// block, the question, and recent conversation history.
type Generator struct {
	provider llm.Provider
	cfg      config.Config
}

func NewGenerator(provider llm.Provider, cfg config.Config) *Generator {
	return &Generator{provider: provider, cfg: cfg}
}

// Answer builds the message sequence and invokes the chat provider. Empty
// context short-circuits to the canned refusal.
func (g *Generator) Answer(ctx context.Context, contextBlock, question string, history []session.Turn) (string, error) {
	if strings.TrimSpace(contextBlock) == "" {
		common.Logger().Debug("generate: empty context, returning canned refusal")
		return NoContextAnswer, nil
	}
	if g.provider == nil {
		return "", rag.ErrNotInitialized
	}

	messages := g.buildMessages(contextBlock, question, history)

	callCtx := ctx
	if g.cfg.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.cfg.GenerateTimeout)
		defer cancel()
	}
	answer, err := g.provider.Chat(callCtx, messages, llm.Options{
		MaxTokens:         g.cfg.MaxNewTokens,
		Temperature:       g.cfg.Temperature,
		TopP:              g.cfg.TopP,
		RepetitionPenalty: g.cfg.RepetitionPenalty,
	})
	if err != nil {
		return "", &rag.ProviderError{Op: "generate answer", Err: err, Transient: common.Transient(err)}
	}
	return strings.TrimSpace(answer), nil
}

// buildMessages assembles system prompt, up to MaxHistoryTurns prior turns,
// and the user message carrying context plus question. System turns record
// failures for operators and are never replayed into the prompt.
func (g *Generator) buildMessages(contextBlock, question string, history []session.Turn) []llm.Message {
	messages := []llm.Message{{Role: llm.RoleSystem, Content: g.cfg.SystemPrompt}}
	if max := g.cfg.MaxHistoryTurns; max > 0 && len(history) > max {
		history = history[len(history)-max:]
	}
	for _, turn := range history {
		if turn.Role == session.RoleSystem {
			continue
		}
		role := llm.RoleUser
		if turn.Role == session.RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Content})
	}
	messages = append(messages, llm.Message{
		Role:    llm.RoleUser,
		Content: "Context:\n" + contextBlock + "\n\nQuestion: " + question,
	})
	return messages
}
