package core

// ExecutionState captures the lifecycle of an executor. Transitions follow a
// fixed protocol enforced by the executor that owns the state:
//
//   - StateIdle     -> StateRunning   (run accepted)
//   - StateRunning  -> StateFinished  (natural or forced completion)
//   - StateRunning  -> StateError     (unrecoverable failure / open circuit)
//   - StateFinished / StateError -> StateIdle (explicit Reset only)
//
// Every executor owns exactly one ExecutionState; it is never shared.
type ExecutionState string

const (
	// StateIdle means the executor is not processing a task and may accept
	// a new one. This is the initial state and the state after Reset.
	StateIdle ExecutionState = "IDLE"

	// StateRunning means the executor is actively iterating on a task and
	// must not accept new work.
	StateRunning ExecutionState = "RUNNING"

	// StateFinished means the last task completed, either naturally or by
	// exhausting the step budget. Reset returns the executor to StateIdle.
	StateFinished ExecutionState = "FINISHED"

	// StateError means the last task terminated abnormally (open failure
	// circuit or unrecoverable error). Reset is required before reuse.
	StateError ExecutionState = "ERROR"
)

// String returns the canonical upper-case representation of the state.
func (s ExecutionState) String() string { return string(s) }

// CanStart reports whether a new run may begin from this state.
func (s ExecutionState) CanStart() bool { return s == StateIdle }

// IsActive reports whether the executor is currently processing a task.
func (s ExecutionState) IsActive() bool { return s == StateRunning }

// IsTerminated reports whether execution has ended, successfully or not.
func (s ExecutionState) IsTerminated() bool { return s == StateFinished || s == StateError }

// IsSuccessful reports whether execution ended without error.
func (s ExecutionState) IsSuccessful() bool { return s == StateFinished }
