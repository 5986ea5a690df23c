package testutil

import (
	"fmt"

	"github.com/agentrun-io/agentrun/core"
)

// LogBuilder provides a fluent helper for constructing session logs in tests.
// Example:
//
//	log := NewLogBuilder().System("be terse").User("hi").Assistant("hello").Build()
//
// Chain only the parts you need.
type LogBuilder struct {
	messages []core.Message
}

// NewLogBuilder creates an empty builder.
func NewLogBuilder() *LogBuilder { return &LogBuilder{} }

// System appends a system message (chainable).
func (b *LogBuilder) System(text string) *LogBuilder {
	b.messages = append(b.messages, core.NewSystemMessage(text))
	return b
}

// User appends a user message (chainable).
func (b *LogBuilder) User(text string) *LogBuilder {
	b.messages = append(b.messages, core.NewUserMessage(text))
	return b
}

// Assistant appends an assistant message (chainable).
func (b *LogBuilder) Assistant(text string) *LogBuilder {
	b.messages = append(b.messages, core.NewAssistantMessage(text))
	return b
}

// ToolResult appends a tool result message for the named capability (chainable).
func (b *LogBuilder) ToolResult(name, result string) *LogBuilder {
	b.messages = append(b.messages, core.NewToolResultMessage(core.ToolUse{
		CallID:    core.NewID(),
		Name:      name,
		Arguments: "{}",
		Result:    result,
	}))
	return b
}

// UserSeq appends n numbered user messages "msg 0".."msg n-1" (chainable).
func (b *LogBuilder) UserSeq(n int) *LogBuilder {
	for i := 0; i < n; i++ {
		b.User(fmt.Sprintf("msg %d", i))
	}
	return b
}

// Build returns the assembled log.
func (b *LogBuilder) Build() []core.Message {
	return core.CloneMessages(b.messages)
}
