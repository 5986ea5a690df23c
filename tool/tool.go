// Package tool implements the capability subsystem that lets executors invoke
// structured operations (APIs, computations, side effects) with schema
// validated arguments, consistent error handling and metadata for LLM
// guidance. Capabilities are discovered once at startup and registered in a
// Registry that is read-only afterwards.
package tool

import (
	"context"
	"fmt"

	"github.com/agentrun-io/agentrun/internal/util"
)

// Tool defines the interface for extending executor capabilities with
// external operations.
//
// Tools self-describe: a unique name, a human-readable purpose shown to the
// model, and a JSON schema for their arguments. The executor never calls a
// tool directly; invocation always goes through the Registry so outcomes are
// formatted uniformly.
//
// Tool implementations should:
//   - Provide clear, descriptive names (snake_case recommended)
//   - Define a proper JSON schema for parameters
//   - Handle errors gracefully
//   - Be safe for concurrent use
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what this tool
	// does. It is provided to the LLM to help it decide when to invoke.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// Invoke executes the tool with already-decoded arguments. The context
	// carries cancellation from the owning run.
	Invoke(ctx context.Context, args map[string]any) (any, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
