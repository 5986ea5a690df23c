package core

import (
	"context"
	"time"
)

const (
	// DefaultMaxSessionMessages is the per-session log cap applied on save.
	DefaultMaxSessionMessages = 100

	// DefaultSessionTTL is the idle lifetime of a session log; each Get or
	// Save renews it.
	DefaultSessionTTL = 24 * time.Hour
)

// SessionStore persists per-session ordered message logs. Implementations
// must be safe for concurrent use; the engine touches many sessions at once,
// although each individual session is only mutated by its own executor task.
//
// Contract:
//   - Get returns the ordered log for id, or an empty slice for an unknown
//     or expired session (lazy creation happens on first Save). Get renews
//     the session TTL.
//   - Save overwrites the stored log, truncating it to the configured
//     maximum size and renewing the TTL. Truncation drops the OLDEST
//     messages but always retains a leading system message so role
//     grounding survives long conversations.
//   - Clear removes the session log entirely.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) ([]Message, error)
	Save(ctx context.Context, sessionID string, messages []Message) error
	Clear(ctx context.Context, sessionID string) error
}

// TruncateLog applies the shared truncation policy: keep the most recent max
// messages, but when the first message of the log is a system message it is
// retained outside the truncation window (system + most recent max-1).
// A max <= 0 disables truncation.
func TruncateLog(messages []Message, max int) []Message {
	if max <= 0 || len(messages) <= max {
		return messages
	}
	if messages[0].Role == RoleSystem {
		out := make([]Message, 0, max)
		out = append(out, messages[0])
		out = append(out, messages[len(messages)-(max-1):]...)
		return out
	}
	return messages[len(messages)-max:]
}
