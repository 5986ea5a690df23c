package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/agentrun-io/agentrun/core"
	"github.com/agentrun-io/agentrun/executor"
	"github.com/agentrun-io/agentrun/logging"
	"github.com/google/uuid"
)

// Factory constructs a fully wired executor for a session id: model gateway,
// tool registry and a session-scoped log adapter.
type Factory func(sessionID string) *executor.Executor

// Config tunes engine behaviour.
type Config struct {
	// StreamTimeout bounds the lifetime of every push channel.
	StreamTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{StreamTimeout: executor.DefaultStreamTimeout}
}

// Options configure engine construction.
type Options struct {
	Config    Config
	Logger    logging.Logger
	Callbacks *CallbackManager
}

// Engine is the process-wide session registry and execution front door. All
// map mutations happen under one mutex so get-or-create and remove stay
// atomic under concurrent callers.
type Engine struct {
	factory   Factory
	config    Config
	logger    logging.Logger
	callbacks *CallbackManager

	mu        sync.Mutex
	executors map[string]*executor.Executor
	streams   map[string]*executor.Stream
}

// New constructs an engine around an executor factory.
func New(factory Factory, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config: DefaultConfig(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Callbacks == nil {
		opts.Callbacks = NewCallbackManager()
	}

	return &Engine{
		factory:   factory,
		config:    opts.Config,
		logger:    opts.Logger,
		callbacks: opts.Callbacks,
		executors: make(map[string]*executor.Executor),
		streams:   make(map[string]*executor.Stream),
	}
}

// Request carries the parameters of an advanced execution.
type Request struct {
	// Prompt is the user input; must be non-blank.
	Prompt string `json:"prompt"`
	// SessionID selects the session to run in. Empty means a fresh session.
	SessionID string `json:"session_id,omitempty"`
	// SystemPrompt overrides the executor's role prompt when non-empty.
	SystemPrompt string `json:"system_prompt,omitempty"`
	// MaxSteps overrides the step budget when > 0.
	MaxSteps int `json:"max_steps,omitempty"`
}

// Execute runs a one-shot task in an ephemeral session and returns the
// joined step results. The session is evicted when the run ends.
func (e *Engine) Execute(ctx context.Context, prompt string) (string, error) {
	sessionID := uuid.NewString()
	e.logger.Info("executing task", "session_id", sessionID)

	exec := e.getOrCreate(sessionID)
	defer e.remove(sessionID)

	exec.Reset()
	e.callbacks.fire(ctx, BeforeRun, sessionID, "")

	result, err := exec.Run(ctx, prompt)
	if err != nil {
		e.callbacks.fire(ctx, AfterRun, sessionID, err.Error())
		return "", fmt.Errorf("execution failed: %w", err)
	}

	e.callbacks.fire(ctx, AfterRun, sessionID, result)
	e.logger.Info("task complete", "session_id", sessionID, "state", exec.State())
	return result, nil
}

// ExecuteAdvanced runs a task in a reusable session, applying per-request
// overrides, and reports the outcome with timing in a Response envelope.
func (e *Engine) ExecuteAdvanced(ctx context.Context, req Request) Response {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	e.logger.Info("executing advanced task", "session_id", sessionID)

	exec := e.getOrCreate(sessionID)
	if exec.State().IsActive() {
		// Resetting or reconfiguring an executor mid-run would yank state out
		// from under the loop; reject the request instead.
		e.logger.Warn("run already in flight", "session_id", sessionID)
		return Error(fmt.Sprintf("session %s already has a run in flight", sessionID), exec.State())
	}
	exec.Reset()
	applyOverrides(exec, req)

	e.callbacks.fire(ctx, BeforeRun, sessionID, "")
	start := time.Now()
	result, err := exec.Run(ctx, req.Prompt)
	elapsed := time.Since(start)

	if err != nil {
		e.callbacks.fire(ctx, AfterRun, sessionID, err.Error())
		e.logger.Error("advanced task failed", "session_id", sessionID, "error", err)
		return Error(fmt.Sprintf("execution failed: %s", err), exec.State())
	}

	e.callbacks.fire(ctx, AfterRun, sessionID, result)
	e.logger.Info("advanced task complete",
		"session_id", sessionID, "state", exec.State(), "elapsed", elapsed)
	return SuccessTimed(result, exec.State(), sessionID, elapsed)
}

// ExecuteStream runs a one-shot task in a fresh session, delivering each
// step over the returned stream. The registry entry is evicted by the
// stream's lifecycle hooks.
func (e *Engine) ExecuteStream(ctx context.Context, prompt string) *executor.Stream {
	return e.startStream(ctx, Request{Prompt: prompt, SessionID: uuid.NewString()})
}

// ExecuteAdvancedStream is the streaming counterpart of ExecuteAdvanced:
// the session is reusable and per-request overrides apply.
func (e *Engine) ExecuteAdvancedStream(ctx context.Context, req Request) *executor.Stream {
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	return e.startStream(ctx, req)
}

func (e *Engine) startStream(ctx context.Context, req Request) *executor.Stream {
	sessionID := req.SessionID
	e.logger.Info("starting streamed task", "session_id", sessionID)

	exec := e.getOrCreate(sessionID)
	if exec.State().IsActive() {
		e.logger.Warn("run already in flight", "session_id", sessionID)
		stream := executor.NewStream(sessionID, e.config.StreamTimeout)
		stream.Fail(core.NewValidationError("session %s already has a run in flight", sessionID))
		return stream
	}
	exec.Reset()
	applyOverrides(exec, req)

	e.callbacks.fire(ctx, StreamOpened, sessionID, "")
	stream := exec.RunStream(ctx, req.Prompt, func(o *executor.StreamOptions) {
		o.Timeout = e.config.StreamTimeout
	})

	e.track(sessionID, stream)
	e.bindStreamLifecycle(ctx, sessionID, stream)
	return stream
}

// bindStreamLifecycle evicts the session registry entries when the channel
// reaches any terminal state, even if the background loop has not yet
// observed termination.
func (e *Engine) bindStreamLifecycle(ctx context.Context, sessionID string, stream *executor.Stream) {
	evict := func(reason string) {
		e.remove(sessionID)
		e.callbacks.fire(ctx, StreamClosed, sessionID, reason)
		e.logger.Debug("stream lifecycle eviction", "session_id", sessionID, "reason", reason)
	}
	stream.OnCompletion(func() { evict("completed") })
	stream.OnTimeout(func() { evict("timed out") })
	stream.OnError(func(err error) { evict(err.Error()) })
}

// Status reports a point-in-time snapshot for one session, or the aggregate
// view when sessionID is empty.
func (e *Engine) Status(sessionID string) Response {
	if sessionID == "" {
		return e.aggregateStatus()
	}

	e.mu.Lock()
	exec, ok := e.executors[sessionID]
	_, streamActive := e.streams[sessionID]
	e.mu.Unlock()

	if !ok {
		return Warning(fmt.Sprintf("session %s does not exist or is already closed", sessionID))
	}

	status := exec.Status()
	snapshot := struct {
		executor.Status
		StreamActive bool `json:"stream_active"`
	}{Status: status, StreamActive: streamActive}

	raw, err := json.Marshal(snapshot)
	if err != nil {
		return Error(fmt.Sprintf("encoding status failed: %s", err), status.State)
	}
	resp := Success(string(raw), status.State, sessionID)
	return resp
}

// aggregateStatus summarizes all live sessions.
func (e *Engine) aggregateStatus() Response {
	e.mu.Lock()
	ids := make([]string, 0, len(e.executors))
	for id := range e.executors {
		ids = append(ids, id)
	}
	streamCount := len(e.streams)
	e.mu.Unlock()
	sort.Strings(ids)

	summary := struct {
		ActiveAgents  int      `json:"active_agents"`
		ActiveStreams int      `json:"active_streams"`
		Sessions      []string `json:"sessions"`
	}{ActiveAgents: len(ids), ActiveStreams: streamCount, Sessions: ids}

	raw, err := json.Marshal(summary)
	if err != nil {
		return Error(fmt.Sprintf("encoding status failed: %s", err), core.StateError)
	}

	state := core.StateIdle
	if len(ids) > 0 {
		state = core.StateRunning
	}
	return Response{
		Status:    StatusSuccess,
		Result:    string(raw),
		State:     state,
		Timestamp: time.Now(),
	}
}

// Reset returns the session's executor to idle. The durable session log is
// untouched.
func (e *Engine) Reset(sessionID string) Response {
	e.mu.Lock()
	exec, ok := e.executors[sessionID]
	e.mu.Unlock()

	if !ok {
		return Warning(fmt.Sprintf("session %s does not exist or is already closed", sessionID))
	}

	exec.Reset()
	e.logger.Info("session reset", "session_id", sessionID, "state", exec.State())
	return Success("agent reset", exec.State(), sessionID)
}

// CloseStream notifies the consumer, tears the session down and evicts both
// registry entries. Closing an unknown or already-closed session yields a
// warning, keeping the operation idempotent for callers.
func (e *Engine) CloseStream(sessionID string) Response {
	e.mu.Lock()
	stream, ok := e.streams[sessionID]
	e.mu.Unlock()

	if !ok {
		return Warning(fmt.Sprintf("session %s does not exist or is already closed", sessionID))
	}

	if !stream.Close() {
		e.remove(sessionID)
		return Warning(fmt.Sprintf("stream for session %s was already closed", sessionID))
	}

	// Lifecycle hooks already evicted; this is a no-op safety net.
	e.remove(sessionID)
	e.logger.Info("stream closed", "session_id", sessionID)
	return Success("stream closed", core.StateIdle, sessionID)
}

// Sessions returns the ids of all live executors.
func (e *Engine) Sessions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.executors))
	for id := range e.executors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// getOrCreate returns the live executor for a session id, constructing and
// registering one atomically when absent.
func (e *Engine) getOrCreate(sessionID string) *executor.Executor {
	e.mu.Lock()
	defer e.mu.Unlock()
	if exec, ok := e.executors[sessionID]; ok {
		return exec
	}
	exec := e.factory(sessionID)
	e.executors[sessionID] = exec
	return exec
}

// track registers a stream for the session.
func (e *Engine) track(sessionID string, stream *executor.Stream) {
	e.mu.Lock()
	e.streams[sessionID] = stream
	e.mu.Unlock()
}

// remove evicts both registry entries for a session.
func (e *Engine) remove(sessionID string) {
	e.mu.Lock()
	delete(e.executors, sessionID)
	delete(e.streams, sessionID)
	e.mu.Unlock()
}

func applyOverrides(exec *executor.Executor, req Request) {
	if req.MaxSteps > 0 {
		exec.SetMaxSteps(req.MaxSteps)
	}
	if req.SystemPrompt != "" {
		exec.SetSystemPrompt(req.SystemPrompt)
	}
}
