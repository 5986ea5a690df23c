package engine

import (
	"time"

	"github.com/agentrun-io/agentrun/core"
)

// ResponseStatus tags the outcome of a caller-facing operation.
type ResponseStatus string

// Response status tags.
const (
	StatusSuccess ResponseStatus = "success"
	StatusError   ResponseStatus = "error"
	StatusWarning ResponseStatus = "warning"
)

// Response is the uniform envelope for every caller-facing operation.
type Response struct {
	Status    ResponseStatus      `json:"status"`
	Result    string              `json:"result,omitempty"`
	State     core.ExecutionState `json:"agent_state,omitempty"`
	SessionID string              `json:"session_id,omitempty"`
	Message   string              `json:"message,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
	ElapsedMS int64               `json:"elapsed_ms,omitempty"`
}

// Success builds a success response.
func Success(result string, state core.ExecutionState, sessionID string) Response {
	return Response{
		Status:    StatusSuccess,
		Result:    result,
		State:     state,
		SessionID: sessionID,
		Timestamp: time.Now(),
	}
}

// SuccessTimed builds a success response carrying the execution duration.
func SuccessTimed(result string, state core.ExecutionState, sessionID string, elapsed time.Duration) Response {
	resp := Success(result, state, sessionID)
	resp.ElapsedMS = elapsed.Milliseconds()
	return resp
}

// Error builds an error response.
func Error(message string, state core.ExecutionState) Response {
	if state == "" {
		state = core.StateError
	}
	return Response{
		Status:    StatusError,
		Message:   message,
		State:     state,
		Timestamp: time.Now(),
	}
}

// Warning builds a warning response, used for operations targeting unknown
// or already-closed sessions.
func Warning(message string) Response {
	return Response{
		Status:    StatusWarning,
		Message:   message,
		Timestamp: time.Now(),
	}
}
