package core

import (
	"time"

	"github.com/google/uuid"
)

// Role tags a Message with its conversational origin.
type Role string

const (
	// RoleUser marks input supplied by the caller.
	RoleUser Role = "user"
	// RoleAssistant marks text produced by the model gateway.
	RoleAssistant Role = "assistant"
	// RoleSystem marks the role / grounding prompt of an executor.
	RoleSystem Role = "system"
	// RoleTool marks the recorded outcome of a capability invocation.
	RoleTool Role = "tool"
)

// ToolUse carries the structured metadata attached to a RoleTool message:
// which capability ran, with which arguments, and what it returned.
type ToolUse struct {
	CallID    string `json:"call_id,omitempty"` // Correlates with the model's tool call id
	Name      string `json:"name"`              // Capability name
	Arguments string `json:"arguments"`         // Serialized JSON arguments
	Result    string `json:"result"`            // Formatted text result
	IsError   bool   `json:"is_error,omitempty"`
	Terminate bool   `json:"terminate,omitempty"` // True if this was the designated terminate capability
}

// Message is one record of a session's append-only conversation log. Order is
// conversation-semantically significant: the log must reflect real execution
// order. After creation a Message should be treated as immutable.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	ToolUse   *ToolUse  `json:"tool_use,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewUserMessage creates a caller-authored text message.
func NewUserMessage(text string) Message {
	return newMessage(RoleUser, text)
}

// NewAssistantMessage creates a model-authored text message.
func NewAssistantMessage(text string) Message {
	return newMessage(RoleAssistant, text)
}

// NewSystemMessage creates a role / grounding prompt message.
func NewSystemMessage(text string) Message {
	return newMessage(RoleSystem, text)
}

// NewToolResultMessage records the outcome of a capability invocation.
func NewToolResultMessage(use ToolUse) Message {
	m := newMessage(RoleTool, use.Result)
	m.ToolUse = &use
	return m
}

func newMessage(role Role, text string) Message {
	return Message{
		ID:        NewID(),
		Role:      role,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
}

// NewID generates a UUID-based unique identifier used for messages and
// ephemeral session ids throughout the framework.
func NewID() string { return uuid.NewString() }

// IsToolResult reports whether the message records a capability outcome.
func (m Message) IsToolResult() bool { return m.Role == RoleTool && m.ToolUse != nil }

// CloneMessages returns a defensive copy of a message slice so callers cannot
// mutate a store's internal state through the returned slice.
func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
