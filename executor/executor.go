package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/agentrun-io/agentrun/core"
	"github.com/agentrun-io/agentrun/logging"
	"github.com/agentrun-io/agentrun/model"
	"github.com/agentrun-io/agentrun/tool"
)

const (
	// DefaultMaxSteps bounds the reason/act loop of a single run.
	DefaultMaxSteps = 20
	// DefaultStepDelay is the pause inserted between iterations to respect
	// model provider rate limits.
	DefaultStepDelay = 100 * time.Millisecond
)

// Options configure an Executor.
type Options struct {
	// SystemPrompt defines the agent's role; sent with every reasoning call.
	SystemPrompt string
	// NextStepPrompt, when set, is appended to the log before each reasoning
	// call to nudge the model toward deciding the next action.
	NextStepPrompt string
	// MaxSteps bounds the number of loop iterations per run.
	MaxSteps int
	// FailureThreshold is the consecutive-failure hard-stop limit.
	FailureThreshold int
	// StepDelay is the pause between iterations.
	StepDelay time.Duration
	// Store persists the session log across runs. Optional; without a store
	// the log only lives for the executor's lifetime.
	Store core.SessionStore
	// Logger receives structured execution logs.
	Logger logging.Logger
}

// Executor drives the reason/act loop for one session. It is a state machine
// over {idle, running, finished, error}: a run is only accepted from idle,
// and a terminal state must be cleared with Reset before the next run.
//
// The loop itself is single-threaded per executor; the mutex only guards the
// fields that Status and the stream lifecycle hooks read from other
// goroutines.
type Executor struct {
	name      string
	sessionID string
	gateway   model.Gateway
	registry  *tool.Registry
	opts      Options
	logger    logging.Logger

	mu          sync.Mutex
	state       core.ExecutionState
	currentStep int
	messages    []core.Message
	breaker     *breaker

	// pending holds the decision produced by the last reasoning call for the
	// action phase of the same iteration.
	pending *model.Decision
}

// New constructs an executor for the given session, wired to a model gateway
// and a capability registry.
func New(name, sessionID string, gateway model.Gateway, registry *tool.Registry, optFns ...func(o *Options)) *Executor {
	opts := Options{
		MaxSteps:         DefaultMaxSteps,
		FailureThreshold: DefaultFailureThreshold,
		StepDelay:        DefaultStepDelay,
		Logger:           logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Executor{
		name:      name,
		sessionID: sessionID,
		gateway:   gateway,
		registry:  registry,
		opts:      opts,
		logger:    opts.Logger,
		state:     core.StateIdle,
		breaker:   newBreaker(opts.FailureThreshold),
	}
}

// Name returns the executor's display name.
func (e *Executor) Name() string { return e.name }

// SetMaxSteps overrides the per-run step budget. Values <= 0 are ignored.
func (e *Executor) SetMaxSteps(n int) {
	if n <= 0 {
		return
	}
	e.mu.Lock()
	e.opts.MaxSteps = n
	e.mu.Unlock()
}

// SetSystemPrompt overrides the role prompt. Blank values are ignored.
func (e *Executor) SetSystemPrompt(prompt string) {
	if strings.TrimSpace(prompt) == "" {
		return
	}
	e.mu.Lock()
	e.opts.SystemPrompt = prompt
	e.mu.Unlock()
}

// SessionID returns the session this executor is bound to.
func (e *Executor) SessionID() string { return e.sessionID }

// State returns the current execution state.
func (e *Executor) State() core.ExecutionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Status is a point-in-time snapshot of an executor.
type Status struct {
	Name        string              `json:"name"`
	SessionID   string              `json:"session_id"`
	State       core.ExecutionState `json:"state"`
	CurrentStep int                 `json:"current_step"`
	MaxSteps    int                 `json:"max_steps"`
	ToolCount   int                 `json:"tool_count"`
	Failures    int                 `json:"consecutive_failures"`
}

// Status returns a snapshot of the executor; safe to call while a run is in
// flight.
func (e *Executor) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	toolCount := 0
	if e.registry != nil {
		toolCount = e.registry.Len()
	}
	return Status{
		Name:        e.name,
		SessionID:   e.sessionID,
		State:       e.state,
		CurrentStep: e.currentStep,
		MaxSteps:    e.opts.MaxSteps,
		ToolCount:   toolCount,
		Failures:    e.breaker.Failures(),
	}
}

// Messages returns a clone of the current session log.
func (e *Executor) Messages() []core.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return core.CloneMessages(e.messages)
}

// Reset returns the executor to idle: state, step counter and failure
// counters are cleared. It is idempotent. The durable session log is NOT
// cleared; use ClearHistory for that.
func (e *Executor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = core.StateIdle
	e.currentStep = 0
	e.breaker.Reset()
	e.pending = nil
	e.logger.Debug("executor reset", "agent", e.name, "session_id", e.sessionID)
}

// ClearHistory drops the session log, both the in-memory copy and the
// store-backed one. This is an explicit policy operation, deliberately
// separate from Reset.
func (e *Executor) ClearHistory(ctx context.Context) error {
	e.mu.Lock()
	e.messages = nil
	e.mu.Unlock()

	if e.opts.Store == nil {
		return nil
	}
	if err := e.opts.Store.Clear(ctx, e.sessionID); err != nil {
		return fmt.Errorf("clear session %s: %w", e.sessionID, err)
	}
	return nil
}

// Run executes the reason/act loop synchronously and returns the joined
// per-step descriptions. Internal failures terminate the run and are reported
// in the returned text; the error return is reserved for precondition
// violations, which leave state and log untouched.
func (e *Executor) Run(ctx context.Context, input string) (result string, err error) {
	if err := e.beginRun(ctx, input); err != nil {
		return "", err
	}

	var stepResults []string
	defer func() {
		if r := recover(); r != nil {
			e.setState(core.StateError)
			e.logger.Error("run panicked", "agent", e.name, "session_id", e.sessionID, "panic", r)
			result = fmt.Sprintf("Execution error: %v", r)
			err = nil
		}
		e.persist(ctx)
	}()

	for i := 0; i < e.opts.MaxSteps && e.State().IsActive(); i++ {
		e.setStep(i + 1)
		e.logger.Info("executing step",
			"agent", e.name, "session_id", e.sessionID,
			"step", i+1, "max_steps", e.opts.MaxSteps)

		stepResults = append(stepResults, fmt.Sprintf("Step %d: %s", i+1, e.step(ctx)))
		e.persist(ctx)

		if err := e.pause(ctx); err != nil {
			e.setState(core.StateError)
			stepResults = append(stepResults, fmt.Sprintf("Execution cancelled: %s", err))
			break
		}
	}

	if e.State().IsActive() {
		e.setState(core.StateFinished)
		notice := fmt.Sprintf("Execution terminated: reached the maximum of %d steps", e.opts.MaxSteps)
		stepResults = append(stepResults, notice)
		e.logger.Warn("step budget exhausted", "agent", e.name, "session_id", e.sessionID, "max_steps", e.opts.MaxSteps)
	}

	return strings.Join(stepResults, "\n"), nil
}

// beginRun checks all preconditions and flips the machine to running in one
// critical section, so two concurrent starts on the same session cannot both
// pass the state check. A precondition violation leaves state and log
// untouched. On success the durable log is loaded and the user input
// appended.
func (e *Executor) beginRun(ctx context.Context, input string) error {
	e.mu.Lock()
	if !e.state.CanStart() {
		state := e.state
		e.mu.Unlock()
		return core.NewValidationError("cannot run agent from state %s", state)
	}
	if strings.TrimSpace(input) == "" {
		e.mu.Unlock()
		return core.NewValidationError("input prompt must not be blank")
	}
	if e.gateway == nil {
		e.mu.Unlock()
		return core.NewValidationError("model gateway is not attached")
	}
	e.state = core.StateRunning
	e.mu.Unlock()

	if e.opts.Store != nil {
		if msgs, err := e.opts.Store.Get(ctx, e.sessionID); err != nil {
			e.logger.Warn("loading session log failed", "session_id", e.sessionID, "error", err)
		} else if len(msgs) > 0 {
			e.mu.Lock()
			e.messages = msgs
			e.mu.Unlock()
		}
	}

	e.mu.Lock()
	e.messages = append(e.messages, core.NewUserMessage(input))
	e.mu.Unlock()
	return nil
}

// persist writes the current log through the session store, if any.
func (e *Executor) persist(ctx context.Context) {
	if e.opts.Store == nil {
		return
	}
	e.mu.Lock()
	snapshot := core.CloneMessages(e.messages)
	e.mu.Unlock()

	if err := e.opts.Store.Save(ctx, e.sessionID, snapshot); err != nil {
		e.logger.Warn("saving session log failed", "session_id", e.sessionID, "error", err)
	}
}

// pause sleeps for the configured inter-step delay, honoring cancellation.
func (e *Executor) pause(ctx context.Context) error {
	if e.opts.StepDelay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(e.opts.StepDelay):
		return nil
	}
}

func (e *Executor) setState(s core.ExecutionState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Executor) setStep(n int) {
	e.mu.Lock()
	e.currentStep = n
	e.mu.Unlock()
}

func (e *Executor) appendMessage(msg core.Message) {
	e.mu.Lock()
	e.messages = append(e.messages, msg)
	e.mu.Unlock()
}
