package rewrite

import (
	"context"
	"strings"
	"time"

	"github.com/docuvault/ragcore/internal/common"
	"github.com/docuvault/ragcore/internal/config"
	"github.com/docuvault/ragcore/internal/llm"
	"github.com/docuvault/ragcore/internal/session"
)

// anaphora are the referring words that mark a question as a follow-up when
// they appear among its first three words.
var anaphora = map[string]struct{}{
	"it": {}, "this": {}, "that": {}, "these": {}, "those": {}, "they": {}, "them": {},
}

const (
	followUpMaxWords = 5
	digestTurnChars  = 100
	minRewriteLen    = 5
	maxRewriteLen    = 250
)

// Rewriter turns context-dependent follow-up questions into standalone ones
// by consulting recent conversation history. Every failure path falls back
// to the original question; rewriting is an optimization, never a gate.
type Rewriter struct {
	provider llm.Provider
	cfg      config.Config
}

func NewRewriter(provider llm.Provider, cfg config.Config) *Rewriter {
	return &Rewriter{provider: provider, cfg: cfg}
}

// Rewrite returns a standalone form of question, or question itself when
// history is empty, the question already stands alone, or rewriting fails.
// With empty history no generation call is made.
func (r *Rewriter) Rewrite(ctx context.Context, question string, history []session.Turn) string {
	question = strings.TrimSpace(question)
	if len(history) == 0 || question == "" {
		return question
	}
	if !looksLikeFollowUp(question) {
		return question
	}
	if r.provider == nil {
		return question
	}
	logger := common.Logger()

	digest := digestHistory(history, r.cfg.RewriteMaxHistory)
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: r.cfg.RewriteSystemPrompt},
		{Role: llm.RoleUser, Content: digest + "\nFollow-up question: " + question + "\nStandalone question:"},
	}

	timeout := r.cfg.RewriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := r.provider.Chat(callCtx, messages, llm.Options{
		MaxTokens:   r.cfg.RewriteMaxTokens,
		Temperature: r.cfg.RewriteTemperature,
	})
	if err != nil {
		logger.Warn("rewrite: generation failed, keeping original question", "error", err)
		return question
	}
	rewritten, ok := validate(raw)
	if !ok {
		logger.Debug("rewrite: rejected candidate, keeping original question")
		return question
	}
	logger.Debug("rewrite: question rewritten", "original_len", len(question), "rewritten_len", len(rewritten))
	return rewritten
}

// looksLikeFollowUp applies the cheap heuristic that gates the extra
// generation call: a referring pronoun in the first three words, or a very
// short question.
func looksLikeFollowUp(question string) bool {
	words := strings.Fields(strings.ToLower(question))
	if len(words) == 0 {
		return false
	}
	if len(words) <= followUpMaxWords {
		return true
	}
	head := words
	if len(head) > 3 {
		head = head[:3]
	}
	for _, word := range head {
		word = strings.Trim(word, ".,!?;:'\"")
		if _, ok := anaphora[word]; ok {
			return true
		}
	}
	return false
}

// digestHistory renders the last maxTurns turns as labeled lines, each
// truncated to roughly a hundred characters.
func digestHistory(history []session.Turn, maxTurns int) string {
	if maxTurns <= 0 {
		maxTurns = 4
	}
	if len(history) > maxTurns {
		history = history[len(history)-maxTurns:]
	}
	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, turn := range history {
		label := "A"
		if turn.Role == session.RoleUser {
			label = "Q"
		}
		content := strings.TrimSpace(turn.Content)
		if len(content) > digestTurnChars {
			content = common.Truncate(content, digestTurnChars) + "..."
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(content)
		b.WriteString("\n")
	}
	return b.String()
}

// validate keeps only the first line of the model output and rejects
// candidates that are too short, too long, echo the prompt scaffolding, or
// pile up question marks.
func validate(raw string) (string, bool) {
	line := raw
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)
	line = strings.Trim(line, "\"")
	if len(line) < minRewriteLen || len(line) > maxRewriteLen {
		return "", false
	}
	lower := strings.ToLower(line)
	if strings.Contains(lower, "assistant") || strings.Contains(lower, "context:") {
		return "", false
	}
	if strings.Count(line, "?") > 2 {
		return "", false
	}
	return line, true
}
