package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentrun-io/agentrun/core"
)

// ToolCall represents a capability invocation requested by a model provider.
// Unified across vendors so downstream logic does not need per-provider branching.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string of arguments
}

// ToolDefinition declaratively exposes a callable capability to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual capability exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// ThinkRequest captures the normalized input of one THINK decision call: the
// full session log, the executor's role prompt and the capability catalog.
type ThinkRequest struct {
	Messages     []core.Message   `json:"messages"`
	SystemPrompt string           `json:"system_prompt"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
}

// Decision is the outcome of one THINK call: either plain narration (no
// requested invocations) or one or more tool calls, in provider order.
type Decision struct {
	Text      string     `json:"text"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// NeedsAction reports whether the model requested any capability invocation.
func (d *Decision) NeedsAction() bool { return len(d.ToolCalls) > 0 }

// NarrateRequest captures the input of the incremental narration call. It is
// used only for plain non-agentic text production, never for THINK decisions.
type NarrateRequest struct {
	Messages     []core.Message `json:"messages"`
	SystemPrompt string         `json:"system_prompt"`
}

// Info contains metadata about a gateway implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// Gateway is the minimal interface executors require to drive generation.
//
// Think is a blocking decision call used for every reasoning step regardless
// of delivery mode. Narrate produces incremental plain text and exists for
// the non-agentic path only.
type Gateway interface {
	Think(ctx context.Context, req ThinkRequest) (*Decision, error)

	Narrate(ctx context.Context, req NarrateRequest) (<-chan string, <-chan error)

	// Info returns information about the gateway implementation.
	Info() Info
}

// MockGateway is a lightweight in-memory Gateway useful for tests & examples.
//
// Behavior is driven by a FIFO script of decisions and errors; when the
// script is exhausted it falls back to canned responses keyed by the last
// user message, then to a generic echo.
type MockGateway struct {
	mu        sync.Mutex
	info      Info
	script    []scripted
	responses map[string]string
}

type scripted struct {
	decision *Decision
	err      error
}

// NewMockGateway constructs a MockGateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		info:      Info{Name: "mock-model", Provider: "mock"},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned narration for an input prompt.
func (m *MockGateway) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// EnqueueDecision appends a scripted decision returned by the next Think call.
func (m *MockGateway) EnqueueDecision(d *Decision) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scripted{decision: d})
}

// EnqueueError appends a scripted failure returned by the next Think call.
func (m *MockGateway) EnqueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scripted{err: err})
}

// Think implements Gateway.
func (m *MockGateway) Think(ctx context.Context, req ThinkRequest) (*Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.script) > 0 {
		next := m.script[0]
		m.script = m.script[1:]
		if next.err != nil {
			return nil, next.err
		}
		return next.decision, nil
	}

	input := lastUserText(req.Messages)
	if text, ok := m.responses[input]; ok {
		return &Decision{Text: text}, nil
	}
	return &Decision{Text: fmt.Sprintf("Mock response to: %s", input)}, nil
}

// Narrate implements Gateway; emits the canned response one rune at a time.
func (m *MockGateway) Narrate(ctx context.Context, req NarrateRequest) (<-chan string, <-chan error) {
	out := make(chan string, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	full, ok := m.responses[lastUserText(req.Messages)]
	m.mu.Unlock()
	if !ok {
		full = fmt.Sprintf("Mock response to: %s", lastUserText(req.Messages))
	}

	go func() {
		defer close(out)
		defer close(errCh)
		for _, r := range full {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case out <- string(r):
			}
		}
	}()
	return out, errCh
}

// Info implements Gateway.
func (m *MockGateway) Info() Info { return m.info }

func lastUserText(msgs []core.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == core.RoleUser {
			return msgs[i].Text
		}
	}
	return ""
}
