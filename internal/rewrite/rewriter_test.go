package rewrite

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/docuvault/ragcore/internal/config"
	"github.com/docuvault/ragcore/internal/llm"
	"github.com/docuvault/ragcore/internal/session"
)

type scriptedProvider struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
	lastMsgs []llm.Message
}

func (p *scriptedProvider) Chat(ctx context.Context, messages []llm.Message, opts llm.Options) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.lastMsgs = append([]llm.Message(nil), messages...)
	return p.response, p.err
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func someHistory() []session.Turn {
	return []session.Turn{
		{Role: session.RoleUser, Content: "What is the warranty period for the X200 printer?"},
		{Role: session.RoleAssistant, Content: "The X200 printer carries a two-year warranty."},
	}
}

func TestRewriteEmptyHistorySkipsGeneration(t *testing.T) {
	provider := &scriptedProvider{response: "should not be used"}
	rw := NewRewriter(provider, config.Default())

	got := rw.Rewrite(context.Background(), "What does it cover?", nil)
	if got != "What does it cover?" {
		t.Fatalf("question changed: %q", got)
	}
	if provider.callCount() != 0 {
		t.Fatalf("expected zero generation calls, got %d", provider.callCount())
	}
}

func TestRewriteStandaloneQuestionSkipsGeneration(t *testing.T) {
	provider := &scriptedProvider{response: "should not be used"}
	rw := NewRewriter(provider, config.Default())

	question := "What is the maximum operating temperature of the X200 printer fuser unit?"
	got := rw.Rewrite(context.Background(), question, someHistory())
	if got != question {
		t.Fatalf("standalone question changed: %q", got)
	}
	if provider.callCount() != 0 {
		t.Fatalf("expected zero generation calls, got %d", provider.callCount())
	}
}

func TestRewriteFollowUpUsesFirstLine(t *testing.T) {
	provider := &scriptedProvider{response: "What does the X200 printer warranty cover?\nSecond line noise"}
	rw := NewRewriter(provider, config.Default())

	got := rw.Rewrite(context.Background(), "What does it cover?", someHistory())
	if got != "What does the X200 printer warranty cover?" {
		t.Fatalf("unexpected rewrite: %q", got)
	}
	if provider.callCount() != 1 {
		t.Fatalf("expected one generation call, got %d", provider.callCount())
	}
}

func TestRewriteDigestIncludesLabeledHistory(t *testing.T) {
	provider := &scriptedProvider{response: "What does the X200 warranty cover?"}
	rw := NewRewriter(provider, config.Default())

	rw.Rewrite(context.Background(), "What about this?", someHistory())
	provider.mu.Lock()
	defer provider.mu.Unlock()
	if len(provider.lastMsgs) != 2 {
		t.Fatalf("expected system plus user message, got %d", len(provider.lastMsgs))
	}
	userMsg := provider.lastMsgs[1].Content
	if !strings.Contains(userMsg, "Q: What is the warranty period") {
		t.Fatalf("digest missing question label: %q", userMsg)
	}
	if !strings.Contains(userMsg, "A: The X200 printer carries") {
		t.Fatalf("digest missing answer label: %q", userMsg)
	}
}

func TestRewriteRejectsLeakyOutput(t *testing.T) {
	for _, response := range []string{
		"As an assistant I would rewrite it as...",
		"Context: the printer warranty question",
		"??? what ??? really ???",
		"hi",
		strings.Repeat("long ", 60),
	} {
		provider := &scriptedProvider{response: response}
		rw := NewRewriter(provider, config.Default())
		got := rw.Rewrite(context.Background(), "What does it cover?", someHistory())
		if got != "What does it cover?" {
			t.Fatalf("response %q should fall back, got %q", response, got)
		}
	}
}

func TestRewriteFallsBackOnProviderError(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("model unavailable")}
	rw := NewRewriter(provider, config.Default())

	got := rw.Rewrite(context.Background(), "What does it cover?", someHistory())
	if got != "What does it cover?" {
		t.Fatalf("expected fallback to original, got %q", got)
	}
}

func TestRewriteTruncatesLongHistoryTurns(t *testing.T) {
	provider := &scriptedProvider{response: "What does the X200 warranty cover?"}
	rw := NewRewriter(provider, config.Default())

	long := strings.Repeat("warranty terms and coverage details ", 20)
	history := []session.Turn{{Role: session.RoleUser, Content: long}}
	rw.Rewrite(context.Background(), "What about it?", history)
	provider.mu.Lock()
	defer provider.mu.Unlock()
	userMsg := provider.lastMsgs[1].Content
	for _, line := range strings.Split(userMsg, "\n") {
		if strings.HasPrefix(line, "Q: ") && len(line) > 110 {
			t.Fatalf("history turn not truncated: %d chars", len(line))
		}
	}
}

func TestRewriteDigestKeepsValidUTF8(t *testing.T) {
	provider := &scriptedProvider{response: "What does the X200 warranty cover?"}
	rw := NewRewriter(provider, config.Default())

	// 2-byte runes behind a 1-byte prefix, so a byte-index cut lands mid-rune.
	long := "a" + strings.Repeat("é", 100)
	history := []session.Turn{{Role: session.RoleUser, Content: long}}
	rw.Rewrite(context.Background(), "What about it?", history)
	provider.mu.Lock()
	defer provider.mu.Unlock()
	userMsg := provider.lastMsgs[1].Content
	if !utf8.ValidString(userMsg) {
		t.Fatalf("digest contains a split rune: %q", userMsg)
	}
	if !strings.Contains(userMsg, "é...") {
		t.Fatalf("truncated turn must end on a rune boundary: %q", userMsg)
	}
}
