package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentrun-io/agentrun/core"
)

// DefaultStreamTimeout bounds how long a push channel may stay open.
const DefaultStreamTimeout = 5 * time.Minute

const streamBufferSize = 16

// EventType tags a stream event.
type EventType string

// Stream event types, in lifecycle order.
const (
	EventStart    EventType = "start"
	EventStep     EventType = "step"
	EventComplete EventType = "complete"
	EventClose    EventType = "close"
	EventError    EventType = "error"
)

// Event is one unit pushed over a stream.
type Event struct {
	Type      EventType `json:"type"`
	Data      string    `json:"data"`
	Step      int       `json:"step,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StreamState describes the lifecycle phase of a push channel.
type StreamState string

// Push channel lifecycle states.
const (
	StreamOpen      StreamState = "open"
	StreamCompleted StreamState = "completed"
	StreamTimedOut  StreamState = "timed_out"
	StreamErrored   StreamState = "errored"
)

// Stream is a one-way, session-bound push channel. Events are delivered in
// production order; every terminal transition (completion, timeout, error) is
// idempotent, closes the channel exactly once and fires the registered
// lifecycle hooks so registry entries referencing the session can be freed.
// A hook registered after the stream has already reached its matching
// terminal state fires immediately, so a fast-finishing run cannot slip past
// late registration.
type Stream struct {
	sessionID string

	mu      sync.Mutex
	events  chan Event
	state   StreamState
	failure error
	timer   *time.Timer

	onCompletion []func()
	onTimeout    []func()
	onError      []func(error)
}

// NewStream creates an open push channel for the session. The timeout starts
// immediately; when it fires the stream transitions to timed-out and its
// timeout hooks run.
func NewStream(sessionID string, timeout time.Duration) *Stream {
	if timeout <= 0 {
		timeout = DefaultStreamTimeout
	}
	s := &Stream{
		sessionID: sessionID,
		events:    make(chan Event, streamBufferSize),
		state:     StreamOpen,
	}
	s.timer = time.AfterFunc(timeout, s.timeoutNow)
	return s
}

// SessionID returns the session this stream is bound to.
func (s *Stream) SessionID() string { return s.sessionID }

// Events returns the receive side of the channel. It is closed on any
// terminal transition.
func (s *Stream) Events() <-chan Event { return s.events }

// State returns the current lifecycle state.
func (s *Stream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Closed reports whether the stream has reached a terminal state. The run
// loop checks this between iterations; close is advisory, never preemptive.
func (s *Stream) Closed() bool {
	return s.State() != StreamOpen
}

// OnCompletion registers a hook fired once when the stream completes
// normally (including explicit close). If the stream has already completed
// the hook fires immediately.
func (s *Stream) OnCompletion(fn func()) {
	s.mu.Lock()
	if s.state == StreamOpen {
		s.onCompletion = append(s.onCompletion, fn)
		s.mu.Unlock()
		return
	}
	state := s.state
	s.mu.Unlock()
	if state == StreamCompleted {
		fn()
	}
}

// OnTimeout registers a hook fired once if the stream times out. If the
// stream has already timed out the hook fires immediately.
func (s *Stream) OnTimeout(fn func()) {
	s.mu.Lock()
	if s.state == StreamOpen {
		s.onTimeout = append(s.onTimeout, fn)
		s.mu.Unlock()
		return
	}
	state := s.state
	s.mu.Unlock()
	if state == StreamTimedOut {
		fn()
	}
}

// OnError registers a hook fired once if the stream fails. If the stream has
// already failed the hook fires immediately with the recorded error.
func (s *Stream) OnError(fn func(error)) {
	s.mu.Lock()
	if s.state == StreamOpen {
		s.onError = append(s.onError, fn)
		s.mu.Unlock()
		return
	}
	state := s.state
	failure := s.failure
	s.mu.Unlock()
	if state == StreamErrored {
		fn(failure)
	}
}

// Push delivers an event to the consumer. It reports false once the stream
// is closed. A consumer that stopped reading does not stall the producer:
// when the buffer is full the event is dropped.
func (s *Stream) Push(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StreamOpen {
		return false
	}
	ev.Timestamp = time.Now()
	select {
	case s.events <- ev:
	default:
	}
	return true
}

// Complete transitions the stream to completed and fires the completion
// hooks. Safe to call more than once; only the first call has effect.
func (s *Stream) Complete() bool {
	hooks, ok := s.terminate(StreamCompleted, nil)
	if !ok {
		return false
	}
	for _, fn := range hooks.completion {
		fn()
	}
	return true
}

// Close sends a close notification to the consumer and then completes the
// stream. A second Close is a no-op and reports false, letting callers
// surface a warning.
func (s *Stream) Close() bool {
	if !s.Push(Event{Type: EventClose, Data: fmt.Sprintf("Session %s closed", s.sessionID)}) {
		return false
	}
	return s.Complete()
}

// Fail pushes an error event, transitions the stream to errored and fires
// the error hooks.
func (s *Stream) Fail(err error) bool {
	s.Push(Event{Type: EventError, Data: err.Error()})
	hooks, ok := s.terminate(StreamErrored, err)
	if !ok {
		return false
	}
	for _, fn := range hooks.errored {
		fn(err)
	}
	return true
}

func (s *Stream) timeoutNow() {
	hooks, ok := s.terminate(StreamTimedOut, nil)
	if !ok {
		return
	}
	for _, fn := range hooks.timeout {
		fn()
	}
}

type firedHooks struct {
	completion []func()
	timeout    []func()
	errored    []func(error)
}

// terminate performs the one-shot transition to a terminal state and returns
// the hooks to fire. Hooks run outside the lock so they may call back into
// the stream.
func (s *Stream) terminate(to StreamState, err error) (firedHooks, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StreamOpen {
		return firedHooks{}, false
	}
	s.state = to
	s.failure = err
	s.timer.Stop()
	close(s.events)
	return firedHooks{
		completion: s.onCompletion,
		timeout:    s.onTimeout,
		errored:    s.onError,
	}, true
}

// StreamOptions configure a streaming run.
type StreamOptions struct {
	// Timeout bounds the push channel lifetime.
	Timeout time.Duration
}

// RunStream executes the reason/act loop on a background goroutine and
// pushes each iteration's description over the returned stream as it
// completes. The stream's own lifecycle (timeout, external close, transport
// error) is independent of the loop: the loop observes closure between
// iterations and stops.
func (e *Executor) RunStream(ctx context.Context, input string, optFns ...func(o *StreamOptions)) *Stream {
	opts := StreamOptions{Timeout: DefaultStreamTimeout}
	for _, fn := range optFns {
		fn(&opts)
	}

	stream := NewStream(e.sessionID, opts.Timeout)

	// Mirror channel lifecycle into machine state, so an externally closed
	// or timed-out stream never leaves the executor stuck in running.
	stream.OnTimeout(func() {
		e.setState(core.StateError)
		e.logger.Warn("stream timed out", "agent", e.name, "session_id", e.sessionID)
	})
	stream.OnCompletion(func() {
		e.mu.Lock()
		if e.state == core.StateRunning {
			e.state = core.StateFinished
		}
		e.mu.Unlock()
	})
	stream.OnError(func(err error) {
		e.setState(core.StateError)
		e.logger.Error("stream failed", "agent", e.name, "session_id", e.sessionID, "error", err)
	})

	go e.runStreaming(ctx, input, stream)

	return stream
}

func (e *Executor) runStreaming(ctx context.Context, input string, stream *Stream) {
	defer func() {
		if r := recover(); r != nil {
			e.setState(core.StateError)
			e.logger.Error("streaming run panicked", "agent", e.name, "session_id", e.sessionID, "panic", r)
			stream.Fail(&core.ChannelError{SessionID: e.sessionID, Err: fmt.Errorf("execution error: %v", r)})
		}
		e.persist(ctx)
	}()

	if err := e.beginRun(ctx, input); err != nil {
		stream.Fail(err)
		return
	}
	stream.Push(Event{Type: EventStart, Data: fmt.Sprintf("Agent %q started execution", e.name)})

	for i := 0; i < e.opts.MaxSteps && e.State().IsActive() && !stream.Closed(); i++ {
		e.setStep(i + 1)
		e.logger.Info("executing streamed step",
			"agent", e.name, "session_id", e.sessionID,
			"step", i+1, "max_steps", e.opts.MaxSteps)

		result := e.step(ctx)
		stream.Push(Event{Type: EventStep, Data: fmt.Sprintf("Step %d: %s", i+1, result), Step: i + 1})
		e.persist(ctx)

		if err := e.pause(ctx); err != nil {
			e.setState(core.StateError)
			stream.Fail(&core.ChannelError{SessionID: e.sessionID, Err: fmt.Errorf("execution cancelled: %w", err)})
			return
		}
	}

	if stream.Closed() {
		// Closure is observed between iterations; lifecycle hooks already
		// reconciled the machine state.
		return
	}

	if e.State().IsActive() {
		e.setState(core.StateFinished)
		stream.Push(Event{
			Type: EventStep,
			Data: fmt.Sprintf("Execution terminated: reached the maximum of %d steps", e.opts.MaxSteps),
			Step: e.Status().CurrentStep,
		})
	}

	stream.Push(Event{Type: EventComplete, Data: fmt.Sprintf("Agent %q completed execution", e.name)})
	stream.Complete()
}
