package session

import (
	"context"
	"sync"
	"time"

	"github.com/agentrun-io/agentrun/core"
)

// InMemoryOptions configure the in-memory session store.
type InMemoryOptions struct {
	// MaxMessages caps the number of messages retained per session.
	MaxMessages int
	// TTL is the idle lifetime of a session; it is renewed on every access.
	TTL time.Duration
}

// InMemoryStore is a volatile SessionStore implementation keeping session
// logs in a process local map. It is safe for concurrent access and best
// suited for tests, CLIs and single-process deployments. Each returned log is
// cloned to prevent external mutation of internal state.
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	opts    InMemoryOptions
	now     func() time.Time
}

type entry struct {
	messages  []core.Message
	expiresAt time.Time
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore(optFns ...func(o *InMemoryOptions)) *InMemoryStore {
	opts := InMemoryOptions{
		MaxMessages: core.DefaultMaxSessionMessages,
		TTL:         core.DefaultSessionTTL,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &InMemoryStore{
		entries: make(map[string]*entry),
		opts:    opts,
		now:     time.Now,
	}
}

// Get returns a clone of the session log, renewing its TTL. A missing or
// expired session yields an empty log.
func (s *InMemoryStore) Get(_ context.Context, sessionID string) ([]core.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[sessionID]
	if !ok {
		return nil, nil
	}
	if s.now().After(e.expiresAt) {
		delete(s.entries, sessionID)
		return nil, nil
	}
	e.expiresAt = s.now().Add(s.opts.TTL)
	return core.CloneMessages(e.messages), nil
}

// Save replaces the session log with a truncated clone of the provided
// messages and renews the TTL.
func (s *InMemoryStore) Save(_ context.Context, sessionID string, messages []core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	truncated := core.TruncateLog(messages, s.opts.MaxMessages)
	s.entries[sessionID] = &entry{
		messages:  core.CloneMessages(truncated),
		expiresAt: s.now().Add(s.opts.TTL),
	}
	return nil
}

// Clear removes the session. Clearing an unknown session is a no-op.
func (s *InMemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
	return nil
}

// Len reports the number of live (non expired) sessions. Expired entries are
// purged as a side effect.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, id)
		}
	}
	return len(s.entries)
}
