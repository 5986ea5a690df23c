package core

import "fmt"

// The error taxonomy below is deliberately small. Internal failures are
// converted into human-readable text on the normal result path; callers never
// need to type-assert these to use the public API. The concrete types exist
// so tests and embedding applications can distinguish failure classes.

// ValidationError rejects illegal input or an illegal state-transition
// attempt before any mutation of executor state or session log.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Reason)
}

// NewValidationError creates a ValidationError with a formatted reason.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ReasoningError wraps a model-gateway failure during the THINK step. It is
// recovered locally: logged, counted against the failure circuit, and the
// loop continues unless the circuit opens.
type ReasoningError struct {
	Err error
}

func (e *ReasoningError) Error() string {
	return fmt.Sprintf("reasoning error: %v", e.Err)
}

// Unwrap exposes the underlying gateway error.
func (e *ReasoningError) Unwrap() error { return e.Err }

// ActionError wraps a capability-invocation failure during the ACT step.
// Recovery is the same as for ReasoningError.
type ActionError struct {
	Tool string
	Err  error
}

func (e *ActionError) Error() string {
	if e.Tool != "" {
		return fmt.Sprintf("action error in %s: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("action error: %v", e.Err)
}

// Unwrap exposes the underlying invocation error.
func (e *ActionError) Unwrap() error { return e.Err }

// CircuitOpenError signals that the consecutive-failure threshold was
// exceeded. The run terminates with StateError and is never auto-retried;
// an explicit Reset is required before the executor accepts new work.
type CircuitOpenError struct {
	Failures  int
	Threshold int
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("failure circuit open: %d consecutive failures (threshold %d)", e.Failures, e.Threshold)
}

// ChannelError signals a transport failure on the streaming delivery path.
// The affected channel is closed and its registry entry released.
type ChannelError struct {
	SessionID string
	Err       error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("push channel error for session %s: %v", e.SessionID, e.Err)
}

// Unwrap exposes the underlying transport error.
func (e *ChannelError) Unwrap() error { return e.Err }
