package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/agentrun-io/agentrun/core"
	"github.com/agentrun-io/agentrun/logging"
)

// Outcome is the uniform result of one capability invocation routed through
// the Registry: a success flag, the formatted text folded into the session
// log, and whether the invoked capability was the designated terminate
// signal.
type Outcome struct {
	OK         bool
	Name       string
	Text       string
	Terminated bool
}

// Registry resolves capabilities by name at call time. Registration happens
// once at startup; afterwards the registry is read-only, so lookups do not
// contend with writers during execution.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	sealed bool
	logger logging.Logger
}

// NewRegistry constructs a registry containing the given tools. A nil logger
// falls back to NoOpLogger. Duplicate names overwrite without warning.
func NewRegistry(logger logging.Logger, tools ...Tool) *Registry {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	r := &Registry{tools: make(map[string]Tool, len(tools)), logger: logger}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return r
}

// Register adds a tool. It returns an error once the registry is sealed;
// discovery is read-only after startup.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("registry is sealed: cannot register %q after startup", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// Seal marks the end of the discovery phase. Subsequent Register calls fail.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Len returns the number of registered capabilities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Tools returns the registered tools in stable name order.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]Tool, 0, len(names))
	for _, n := range names {
		out = append(out, r.tools[n])
	}
	return out
}

// Invoke resolves name, decodes argsJSON, executes the tool and formats the
// result as text. Failures never propagate as errors to the caller; they are
// reported through the Outcome so the execution loop can fold them into the
// conversation and count them against the failure circuit.
func (r *Registry) Invoke(ctx context.Context, name, argsJSON string) Outcome {
	t, ok := r.Get(name)
	if !ok {
		return Outcome{
			Name: name,
			Text: fmt.Sprintf("tool %q is not registered", name),
		}
	}

	args := map[string]any{}
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return Outcome{
				Name: name,
				Text: fmt.Sprintf("tool %q arguments are not valid JSON: %v", name, err),
			}
		}
	}

	start := time.Now()
	result, err := t.Invoke(ctx, args)
	r.logger.Debug("tool.invoke", "tool", name, "duration_ms", time.Since(start).Milliseconds(), "error", err != nil)
	if err != nil {
		aerr := &core.ActionError{Tool: name, Err: err}
		return Outcome{
			Name: name,
			Text: aerr.Error(),
		}
	}

	return Outcome{
		OK:         true,
		Name:       name,
		Text:       formatResult(name, result),
		Terminated: name == TerminateToolName,
	}
}

// formatResult renders a tool result as the text recorded in the session log.
func formatResult(name string, result any) string {
	switch v := result.(type) {
	case nil:
		return fmt.Sprintf("tool %q completed", name)
	case string:
		return fmt.Sprintf("tool %q returned: %s", name, v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("tool %q returned: %v", name, v)
		}
		return fmt.Sprintf("tool %q returned: %s", name, data)
	}
}
