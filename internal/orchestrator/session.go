package orchestrator

import (
	"sync"

	"github.com/codeforge/codeforge/internal/llm"
)

// Session is the append-only conversation history of spec.md §3/§5: within
// one session, messages are appended strictly in turn order.
type Session struct {
	ID string

	mu       sync.Mutex
	messages []llm.Message
}

// NewSession constructs an empty session.
func NewSession(id string) *Session {
	return &Session{ID: id}
}

// Append adds a message to the session.
func (s *Session) Append(msg llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// Messages returns a snapshot copy of the session's history, safe to hand
// to a Provider.Generate/Stream call without holding the session lock.
func (s *Session) Messages() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Message, len(s.messages))
	copy(out, s.messages)
	return out
}
