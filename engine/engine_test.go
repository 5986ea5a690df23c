package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentrun-io/agentrun/core"
	"github.com/agentrun-io/agentrun/executor"
	"github.com/agentrun-io/agentrun/model"
	"github.com/agentrun-io/agentrun/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestEngine wires an engine whose executors finish on the first step via
// the terminate tool.
func newTestEngine(t *testing.T, script func(gw *model.MockGateway), optFns ...func(o *Options)) (*Engine, *atomic.Int32) {
	t.Helper()

	var created atomic.Int32
	factory := func(sessionID string) *executor.Executor {
		created.Add(1)
		gw := model.NewMockGateway()
		if script != nil {
			script(gw)
		}
		reg := tool.NewRegistry(nil, tool.NewTerminateTool())
		return executor.New("test-agent", sessionID, gw, reg, func(o *executor.Options) {
			o.StepDelay = 0
			o.MaxSteps = 5
		})
	}
	return New(factory, optFns...), &created
}

func terminateScript(gw *model.MockGateway) {
	gw.EnqueueDecision(&model.Decision{
		ToolCalls: []model.ToolCall{{ID: "c1", Name: tool.TerminateToolName, Arguments: `{"reason":"done"}`}},
	})
}

func TestExecute_EphemeralSessionIsEvicted(t *testing.T) {
	eng, created := newTestEngine(t, terminateScript)

	result, err := eng.Execute(context.Background(), "do the thing")
	require.NoError(t, err)
	assert.Contains(t, result, "Step 1:")
	assert.Equal(t, int32(1), created.Load())
	assert.Empty(t, eng.Sessions(), "ephemeral session must be removed after the run")
}

func TestExecute_ValidationErrorSurfaces(t *testing.T) {
	eng, _ := newTestEngine(t, nil)

	_, err := eng.Execute(context.Background(), "   ")
	require.Error(t, err)

	var verr *core.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Empty(t, eng.Sessions())
}

func TestExecuteAdvanced_SessionReuse(t *testing.T) {
	eng, created := newTestEngine(t, func(gw *model.MockGateway) {
		terminateScript(gw)
		terminateScript(gw)
	})

	first := eng.ExecuteAdvanced(context.Background(), Request{Prompt: "first", SessionID: "chat-1"})
	require.Equal(t, StatusSuccess, first.Status)
	assert.Equal(t, "chat-1", first.SessionID)
	assert.Equal(t, core.StateFinished, first.State)
	assert.GreaterOrEqual(t, first.ElapsedMS, int64(0))

	second := eng.ExecuteAdvanced(context.Background(), Request{Prompt: "second", SessionID: "chat-1"})
	require.Equal(t, StatusSuccess, second.Status)

	assert.Equal(t, int32(1), created.Load(), "same session id must reuse the executor")
	assert.Equal(t, []string{"chat-1"}, eng.Sessions())
}

func TestExecuteAdvanced_GeneratesSessionID(t *testing.T) {
	eng, _ := newTestEngine(t, terminateScript)

	resp := eng.ExecuteAdvanced(context.Background(), Request{Prompt: "hello"})
	require.Equal(t, StatusSuccess, resp.Status)
	assert.NotEmpty(t, resp.SessionID)
}

func TestExecuteAdvanced_AppliesOverrides(t *testing.T) {
	eng, _ := newTestEngine(t, func(gw *model.MockGateway) {
		gw.EnqueueDecision(&model.Decision{Text: "thinking"})
		gw.EnqueueDecision(&model.Decision{Text: "still thinking"})
	})

	resp := eng.ExecuteAdvanced(context.Background(), Request{
		Prompt:    "never terminates",
		SessionID: "chat-2",
		MaxSteps:  2,
	})

	require.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, core.StateFinished, resp.State)
	assert.Contains(t, resp.Result, "reached the maximum of 2 steps")
}

func TestGetOrCreate_NoDuplicatesUnderConcurrency(t *testing.T) {
	eng, created := newTestEngine(t, nil)

	const workers = 32
	var wg sync.WaitGroup
	execs := make([]*executor.Executor, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			execs[n] = eng.getOrCreate("shared-session")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	for _, e := range execs {
		assert.Same(t, execs[0], e)
	}
}

func TestStatus_UnknownSessionWarns(t *testing.T) {
	eng, _ := newTestEngine(t, nil)

	resp := eng.Status("ghost")
	assert.Equal(t, StatusWarning, resp.Status)
	assert.Contains(t, resp.Message, "ghost")
}

func TestStatus_SingleSession(t *testing.T) {
	eng, _ := newTestEngine(t, terminateScript)

	run := eng.ExecuteAdvanced(context.Background(), Request{Prompt: "task", SessionID: "chat-3"})
	require.Equal(t, StatusSuccess, run.Status)

	resp := eng.Status("chat-3")
	require.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, "chat-3", resp.SessionID)
	assert.Contains(t, resp.Result, `"state":"FINISHED"`)
	assert.Contains(t, resp.Result, `"stream_active":false`)
}

func TestStatus_Aggregate(t *testing.T) {
	eng, _ := newTestEngine(t, func(gw *model.MockGateway) {
		terminateScript(gw)
	})

	_ = eng.ExecuteAdvanced(context.Background(), Request{Prompt: "a", SessionID: "s-a"})
	_ = eng.ExecuteAdvanced(context.Background(), Request{Prompt: "b", SessionID: "s-b"})

	resp := eng.Status("")
	require.Equal(t, StatusSuccess, resp.Status)
	assert.Contains(t, resp.Result, `"active_agents":2`)
	assert.Contains(t, resp.Result, "s-a")
	assert.Contains(t, resp.Result, "s-b")
}

func TestReset(t *testing.T) {
	eng, _ := newTestEngine(t, terminateScript)

	run := eng.ExecuteAdvanced(context.Background(), Request{Prompt: "task", SessionID: "chat-4"})
	require.Equal(t, core.StateFinished, run.State)

	resp := eng.Reset("chat-4")
	require.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, core.StateIdle, resp.State)

	missing := eng.Reset("nope")
	assert.Equal(t, StatusWarning, missing.Status)
}

func drain(t *testing.T, s *executor.Stream) []executor.Event {
	t.Helper()
	var events []executor.Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatal("timed out draining stream")
		}
	}
}

func TestExecuteStream_CompletionEvictsSession(t *testing.T) {
	eng, _ := newTestEngine(t, terminateScript)

	stream := eng.ExecuteStream(context.Background(), "streamed task")
	events := drain(t, stream)

	require.NotEmpty(t, events)
	assert.Equal(t, executor.EventStart, events[0].Type)
	assert.Equal(t, executor.EventComplete, events[len(events)-1].Type)

	assert.Eventually(t, func() bool {
		return len(eng.Sessions()) == 0
	}, time.Second, 5*time.Millisecond, "completion hook must evict the registry entry")
}

func TestExecuteStream_FastFailureEvictsSession(t *testing.T) {
	eng, _ := newTestEngine(t, nil)

	// A blank prompt fails before the first step, so the stream can reach a
	// terminal state before the engine binds its eviction hooks.
	stream := eng.ExecuteStream(context.Background(), "   ")
	events := drain(t, stream)

	require.NotEmpty(t, events)
	assert.Equal(t, executor.EventError, events[len(events)-1].Type)
	assert.Equal(t, executor.StreamErrored, stream.State())

	assert.Eventually(t, func() bool {
		return len(eng.Sessions()) == 0
	}, time.Second, 5*time.Millisecond, "error hook must evict the registry entry")
}

// gatedGateway blocks inside Think until released, pinning a run in flight.
type gatedGateway struct {
	release chan struct{}
}

func (g *gatedGateway) Think(ctx context.Context, _ model.ThinkRequest) (*model.Decision, error) {
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &model.Decision{
		ToolCalls: []model.ToolCall{{ID: "c1", Name: tool.TerminateToolName, Arguments: `{"reason":"done"}`}},
	}, nil
}

func (g *gatedGateway) Narrate(context.Context, model.NarrateRequest) (<-chan string, <-chan error) {
	out := make(chan string)
	errCh := make(chan error)
	close(out)
	close(errCh)
	return out, errCh
}

func (g *gatedGateway) Info() model.Info { return model.Info{Name: "gated", Provider: "mock"} }

func TestExecuteAdvanced_RejectsRunInFlight(t *testing.T) {
	gw := &gatedGateway{release: make(chan struct{})}
	factory := func(sessionID string) *executor.Executor {
		reg := tool.NewRegistry(nil, tool.NewTerminateTool())
		return executor.New("test-agent", sessionID, gw, reg, func(o *executor.Options) {
			o.StepDelay = 0
			o.MaxSteps = 5
		})
	}
	eng := New(factory)

	done := make(chan Response, 1)
	go func() {
		done <- eng.ExecuteAdvanced(context.Background(), Request{Prompt: "first", SessionID: "busy"})
	}()

	require.Eventually(t, func() bool {
		return eng.getOrCreate("busy").State().IsActive()
	}, time.Second, time.Millisecond, "first run never started")

	second := eng.ExecuteAdvanced(context.Background(), Request{Prompt: "second", SessionID: "busy"})
	assert.Equal(t, StatusError, second.Status)
	assert.Contains(t, second.Message, "already has a run in flight")

	stream := eng.ExecuteAdvancedStream(context.Background(), Request{Prompt: "third", SessionID: "busy"})
	streamEvents := drain(t, stream)
	require.NotEmpty(t, streamEvents)
	assert.Equal(t, executor.EventError, streamEvents[len(streamEvents)-1].Type)
	assert.Contains(t, streamEvents[len(streamEvents)-1].Data, "already has a run in flight")

	close(gw.release)
	resp := <-done
	assert.Equal(t, StatusSuccess, resp.Status, "rejected requests must not disturb the in-flight run")
	assert.Equal(t, core.StateFinished, resp.State)
}

func TestCloseStream_NotifiesThenEvicts(t *testing.T) {
	eng, _ := newTestEngine(t, func(gw *model.MockGateway) {
		// No script: endless mock narration keeps the loop running.
	})

	stream := eng.ExecuteAdvancedStream(context.Background(), Request{Prompt: "long task", SessionID: "chat-5"})

	// Wait for the loop to start before closing.
	select {
	case ev := <-stream.Events():
		require.Equal(t, executor.EventStart, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("stream never started")
	}

	resp := eng.CloseStream("chat-5")
	require.Equal(t, StatusSuccess, resp.Status)

	events := drain(t, stream)
	var sawClose bool
	for _, ev := range events {
		if ev.Type == executor.EventClose {
			sawClose = true
		}
	}
	assert.True(t, sawClose, "consumer must receive the close notification before teardown")

	// Second close targets a gone session.
	again := eng.CloseStream("chat-5")
	assert.Equal(t, StatusWarning, again.Status)

	status := eng.Status("chat-5")
	assert.Equal(t, StatusWarning, status.Status)
}

func TestCallbacksFire(t *testing.T) {
	var mu sync.Mutex
	var fired []CallbackType

	cm := NewCallbackManager()
	for _, ct := range []CallbackType{BeforeRun, AfterRun, StreamOpened, StreamClosed} {
		ct := ct
		cm.Register(NewFunctionCallback(ct, func(_ context.Context, cc *CallbackContext) {
			mu.Lock()
			fired = append(fired, ct)
			mu.Unlock()
		}))
	}

	eng, _ := newTestEngine(t, func(gw *model.MockGateway) {
		terminateScript(gw)
		terminateScript(gw)
	}, func(o *Options) {
		o.Callbacks = cm
	})

	_, err := eng.Execute(context.Background(), "blocking run")
	require.NoError(t, err)

	stream := eng.ExecuteStream(context.Background(), "streamed run")
	drain(t, stream)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		var sawClosed bool
		for _, ct := range fired {
			if ct == StreamClosed {
				sawClosed = true
			}
		}
		return sawClosed
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, fired, BeforeRun)
	assert.Contains(t, fired, AfterRun)
	assert.Contains(t, fired, StreamOpened)
}
