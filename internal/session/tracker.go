// Package session tracks resumable backend session identifiers across
// invocations. State is in-memory only and lives for the orchestrator
// process lifetime.
package session

import (
	"sync"
	"time"
)

// State is one captured session identifier.
type State struct {
	Tool       string    `json:"tool"`
	SessionID  string    `json:"session_id"`
	CapturedAt time.Time `json:"captured_at"`
}

// Tracker remembers the latest session identifier per conversation key.
// The key's meaning (project/phase pairing) belongs to the caller; the
// tracker only stores the latest write per key. Safe for concurrent use
// by in-flight executions.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[string]State
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{sessions: make(map[string]State)}
}

// Capture stores the latest session identifier for a conversation,
// overwriting any previous capture. Empty identifiers are ignored.
func (t *Tracker) Capture(conversationKey, tool, sessionID string) {
	if conversationKey == "" || sessionID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[conversationKey] = State{
		Tool:       tool,
		SessionID:  sessionID,
		CapturedAt: time.Now().UTC(),
	}
}

// Get returns the last captured state for a conversation.
func (t *Tracker) Get(conversationKey string) (State, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	state, ok := t.sessions[conversationKey]
	return state, ok
}

// Forget drops the stored state for a conversation.
func (t *Tracker) Forget(conversationKey string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, conversationKey)
}

// Len returns the number of tracked conversations.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}
