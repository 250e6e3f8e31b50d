package session

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/docuvault/ragcore/internal/common"
)

// Turn is one role-tagged entry in a conversation.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Manager keeps bounded per-thread conversation history. A thread stores at
// most 2 x maxTurns entries; older turns are dropped first. An optional
// journal receives every append and clear for durable transcripts; journal
// failures are logged and never fail the conversation.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*threadState
	maxTurns int
	journal  Journal
}

type threadState struct {
	lock  sync.Mutex
	turns []Turn
}

type Option func(*Manager)

// WithJournal attaches a durable transcript journal.
func WithJournal(journal Journal) Option {
	return func(m *Manager) {
		m.journal = journal
	}
}

func NewManager(maxTurns int, opts ...Option) *Manager {
	if maxTurns <= 0 {
		maxTurns = 6
	}
	m := &Manager{
		sessions: make(map[string]*threadState),
		maxTurns: maxTurns,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// ThreadLock returns the serialization lock for a thread. Query processing
// holds it for the full rewrite-retrieve-generate span so history appends
// stay ordered and no two questions for one thread run concurrently.
func (m *Manager) ThreadLock(threadID string) *sync.Mutex {
	return &m.state(threadID).lock
}

// History returns a copy of the thread's turns, oldest first.
func (m *Manager) History(threadID string) []Turn {
	state := m.state(threadID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(state.turns) == 0 {
		return nil
	}
	out := make([]Turn, len(state.turns))
	copy(out, state.turns)
	return out
}

// Append records a turn, trimming the oldest entries beyond 2 x maxTurns.
func (m *Manager) Append(threadID, role, content string) {
	state := m.state(threadID)
	turn := Turn{Role: role, Content: content, Timestamp: time.Now().UTC()}
	m.mu.Lock()
	state.turns = append(state.turns, turn)
	if limit := 2 * m.maxTurns; len(state.turns) > limit {
		state.turns = append([]Turn(nil), state.turns[len(state.turns)-limit:]...)
	}
	m.mu.Unlock()
	if m.journal != nil {
		if err := m.journal.Record(threadID, turn); err != nil {
			common.Logger().Warn("session: journal record failed", "thread", threadID, "error", err)
		}
	}
}

// Clear drops all in-memory turns for one thread. The threadState and its
// serialization lock survive: an in-flight query holding the lock must stay
// the only one in flight, so the lock is never replaced.
func (m *Manager) Clear(threadID string) {
	state := m.state(threadID)
	m.mu.Lock()
	state.turns = nil
	m.mu.Unlock()
	if m.journal != nil {
		if err := m.journal.Clear(threadID); err != nil {
			common.Logger().Warn("session: journal clear failed", "thread", threadID, "error", err)
		}
	}
}

// ClearAll drops every thread's turns, keeping states and their locks.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	for _, state := range m.sessions {
		state.turns = nil
	}
	m.mu.Unlock()
	if m.journal != nil {
		if err := m.journal.ClearAll(); err != nil {
			common.Logger().Warn("session: journal clear-all failed", "error", err)
		}
	}
}

// ActiveThreads lists thread ids with at least one stored turn.
func (m *Manager) ActiveThreads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	threads := make([]string, 0, len(m.sessions))
	for id, state := range m.sessions {
		if len(state.turns) > 0 {
			threads = append(threads, id)
		}
	}
	sort.Strings(threads)
	return threads
}

func (m *Manager) state(threadID string) *threadState {
	key := strings.TrimSpace(threadID)
	if key == "" {
		key = "default_session"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.sessions[key]
	if !ok {
		state = &threadState{}
		m.sessions[key] = state
	}
	return state
}
