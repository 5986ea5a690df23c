package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/agentrun-io/agentrun/core"
	"github.com/agentrun-io/agentrun/model"
	"github.com/agentrun-io/agentrun/session"
	"github.com/agentrun-io/agentrun/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, extra ...tool.Tool) *tool.Registry {
	t.Helper()
	tools := append([]tool.Tool{tool.NewTerminateTool()}, extra...)
	return tool.NewRegistry(nil, tools...)
}

func newTestExecutor(gw model.Gateway, reg *tool.Registry, optFns ...func(o *Options)) *Executor {
	fns := append([]func(o *Options){func(o *Options) {
		o.StepDelay = 0
	}}, optFns...)
	return New("test-agent", "session-1", gw, reg, fns...)
}

func terminateCall(id string) model.ToolCall {
	return model.ToolCall{ID: id, Name: tool.TerminateToolName, Arguments: `{"reason":"done"}`}
}

func TestRun_FinishesOnTerminateTool(t *testing.T) {
	gw := model.NewMockGateway()
	gw.EnqueueDecision(&model.Decision{
		Text:      "calling terminate",
		ToolCalls: []model.ToolCall{terminateCall("call-1")},
	})

	exec := newTestExecutor(gw, newTestRegistry(t))
	result, err := exec.Run(context.Background(), "finish immediately")

	require.NoError(t, err)
	assert.Equal(t, core.StateFinished, exec.State())
	assert.Contains(t, result, "Step 1:")
	assert.NotContains(t, result, "reached the maximum")

	status := exec.Status()
	assert.Equal(t, 1, status.CurrentStep)
}

func TestRun_PreconditionViolations(t *testing.T) {
	gw := model.NewMockGateway()

	t.Run("blank input", func(t *testing.T) {
		exec := newTestExecutor(gw, newTestRegistry(t))
		_, err := exec.Run(context.Background(), "   ")

		var verr *core.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, core.StateIdle, exec.State())
		assert.Empty(t, exec.Messages(), "log must be untouched on precondition failure")
	})

	t.Run("missing gateway", func(t *testing.T) {
		exec := newTestExecutor(nil, newTestRegistry(t))
		_, err := exec.Run(context.Background(), "hello")

		var verr *core.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, core.StateIdle, exec.State())
	})

	t.Run("not idle", func(t *testing.T) {
		gw := model.NewMockGateway()
		gw.EnqueueDecision(&model.Decision{ToolCalls: []model.ToolCall{terminateCall("c1")}})
		exec := newTestExecutor(gw, newTestRegistry(t))

		_, err := exec.Run(context.Background(), "first")
		require.NoError(t, err)
		require.Equal(t, core.StateFinished, exec.State())

		logBefore := exec.Messages()
		_, err = exec.Run(context.Background(), "second")

		var verr *core.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, core.StateFinished, exec.State())
		assert.Equal(t, len(logBefore), len(exec.Messages()))
	})
}

func TestRun_StepBudgetForcesFinish(t *testing.T) {
	gw := model.NewMockGateway()
	gw.EnqueueDecision(&model.Decision{Text: "still thinking"})
	gw.EnqueueDecision(&model.Decision{Text: "still not done"})

	exec := newTestExecutor(gw, newTestRegistry(t), func(o *Options) {
		o.MaxSteps = 2
	})
	result, err := exec.Run(context.Background(), "never terminates")

	require.NoError(t, err)
	assert.Equal(t, core.StateFinished, exec.State(), "budget exhaustion is a policy, not an error")
	assert.Contains(t, result, "Step 1:")
	assert.Contains(t, result, "Step 2:")
	assert.Contains(t, result, "reached the maximum of 2 steps")
	assert.Equal(t, 2, exec.Status().CurrentStep)
}

func TestRun_CircuitBreakerOnReasoningFailures(t *testing.T) {
	gw := model.NewMockGateway()
	for i := 0; i < 3; i++ {
		gw.EnqueueError(fmt.Errorf("model unavailable %d", i))
	}

	exec := newTestExecutor(gw, newTestRegistry(t), func(o *Options) {
		o.MaxSteps = 10
	})
	result, err := exec.Run(context.Background(), "doomed task")

	require.NoError(t, err)
	assert.Equal(t, core.StateError, exec.State())
	assert.Contains(t, result, "Step 4:", "circuit must open on the step after the third failure")
	assert.Contains(t, result, "circuit open")
	assert.NotContains(t, result, "Step 5:")
}

type failingTool struct{}

func (failingTool) Name() string               { return "flaky" }
func (failingTool) Description() string        { return "always fails" }
func (failingTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (failingTool) Invoke(context.Context, map[string]any) (any, error) {
	return nil, errors.New("backend down")
}

func TestRun_CircuitBreakerOnToolFailures(t *testing.T) {
	gw := model.NewMockGateway()
	for i := 0; i < 3; i++ {
		gw.EnqueueDecision(&model.Decision{
			ToolCalls: []model.ToolCall{{ID: fmt.Sprintf("c%d", i), Name: "flaky", Arguments: "{}"}},
		})
	}

	exec := newTestExecutor(gw, newTestRegistry(t, failingTool{}), func(o *Options) {
		o.MaxSteps = 10
	})
	result, err := exec.Run(context.Background(), "use the flaky tool")

	require.NoError(t, err)
	assert.Equal(t, core.StateError, exec.State())
	assert.Contains(t, result, "circuit open")
}

func TestRun_SuccessfulToolCallResetsBreaker(t *testing.T) {
	gw := model.NewMockGateway()
	gw.EnqueueError(errors.New("hiccup one"))
	gw.EnqueueError(errors.New("hiccup two"))
	gw.EnqueueDecision(&model.Decision{ToolCalls: []model.ToolCall{terminateCall("c1")}})

	exec := newTestExecutor(gw, newTestRegistry(t), func(o *Options) {
		o.MaxSteps = 10
	})
	result, err := exec.Run(context.Background(), "recovers on third step")

	require.NoError(t, err)
	assert.Equal(t, core.StateFinished, exec.State())
	assert.NotContains(t, result, "circuit open")
}

func TestRun_ToolResultsAppendedInOrder(t *testing.T) {
	gw := model.NewMockGateway()
	gw.EnqueueDecision(&model.Decision{ToolCalls: []model.ToolCall{
		{ID: "c1", Name: "echo", Arguments: `{"text":"first"}`},
		{ID: "c2", Name: "echo", Arguments: `{"text":"second"}`},
		terminateCall("c3"),
	}})

	echo := tool.NewFunctionTool("echo", "echoes text",
		map[string]any{
			"type":       "object",
			"properties": map[string]any{"text": map[string]any{"type": "string"}},
			"required":   []string{"text"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			return args["text"], nil
		})

	exec := newTestExecutor(gw, newTestRegistry(t, echo))
	_, err := exec.Run(context.Background(), "echo twice then stop")
	require.NoError(t, err)
	require.Equal(t, core.StateFinished, exec.State(), "only the last outcome decides termination")

	var toolResults []core.Message
	for _, msg := range exec.Messages() {
		if msg.IsToolResult() {
			toolResults = append(toolResults, msg)
		}
	}
	require.Len(t, toolResults, 3)
	assert.Equal(t, "echo", toolResults[0].ToolUse.Name)
	assert.Equal(t, "first", toolResults[0].ToolUse.Result)
	assert.Equal(t, "second", toolResults[1].ToolUse.Result)
	assert.True(t, toolResults[2].ToolUse.Terminate)
}

func TestRun_TerminateMidBatchDoesNotFinish(t *testing.T) {
	gw := model.NewMockGateway()
	gw.EnqueueDecision(&model.Decision{ToolCalls: []model.ToolCall{
		terminateCall("c1"),
		{ID: "c2", Name: "echo", Arguments: `{"text":"after"}`},
	}})
	gw.EnqueueDecision(&model.Decision{ToolCalls: []model.ToolCall{terminateCall("c3")}})

	echo := tool.NewFunctionTool("echo", "echoes text",
		map[string]any{
			"type":       "object",
			"properties": map[string]any{"text": map[string]any{"type": "string"}},
			"required":   []string{"text"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			return args["text"], nil
		})

	exec := newTestExecutor(gw, newTestRegistry(t, echo), func(o *Options) {
		o.MaxSteps = 5
	})
	result, err := exec.Run(context.Background(), "terminate is not last in batch")
	require.NoError(t, err)

	assert.Equal(t, core.StateFinished, exec.State())
	assert.Contains(t, result, "Step 2:", "first batch must not finish the run")
}

func TestReset_KeepsDurableLog(t *testing.T) {
	gw := model.NewMockGateway()
	gw.EnqueueDecision(&model.Decision{ToolCalls: []model.ToolCall{terminateCall("c1")}})

	exec := newTestExecutor(gw, newTestRegistry(t))
	_, err := exec.Run(context.Background(), "task")
	require.NoError(t, err)
	require.NotEmpty(t, exec.Messages())

	exec.Reset()
	assert.Equal(t, core.StateIdle, exec.State())
	assert.Equal(t, 0, exec.Status().CurrentStep)
	assert.NotEmpty(t, exec.Messages(), "reset must not clear the session log")

	// Idempotent.
	exec.Reset()
	assert.Equal(t, core.StateIdle, exec.State())
}

func TestClearHistory(t *testing.T) {
	store := session.NewInMemoryStore()
	gw := model.NewMockGateway()
	gw.EnqueueDecision(&model.Decision{ToolCalls: []model.ToolCall{terminateCall("c1")}})

	exec := newTestExecutor(gw, newTestRegistry(t), func(o *Options) {
		o.Store = store
	})
	ctx := context.Background()

	_, err := exec.Run(ctx, "task")
	require.NoError(t, err)

	stored, err := store.Get(ctx, exec.SessionID())
	require.NoError(t, err)
	require.NotEmpty(t, stored, "run must persist the log")

	require.NoError(t, exec.ClearHistory(ctx))
	assert.Empty(t, exec.Messages())

	stored, err = store.Get(ctx, exec.SessionID())
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestRun_ResumesLogFromStore(t *testing.T) {
	store := session.NewInMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "session-1", []core.Message{
		core.NewUserMessage("earlier question"),
		core.NewAssistantMessage("earlier answer"),
	}))

	gw := model.NewMockGateway()
	gw.EnqueueDecision(&model.Decision{ToolCalls: []model.ToolCall{terminateCall("c1")}})

	exec := newTestExecutor(gw, newTestRegistry(t), func(o *Options) {
		o.Store = store
	})
	_, err := exec.Run(ctx, "follow-up")
	require.NoError(t, err)

	msgs := exec.Messages()
	require.GreaterOrEqual(t, len(msgs), 3)
	assert.Equal(t, "earlier question", msgs[0].Text)
	assert.Equal(t, "follow-up", msgs[2].Text)
}

func TestStatus_Snapshot(t *testing.T) {
	exec := newTestExecutor(model.NewMockGateway(), newTestRegistry(t), func(o *Options) {
		o.MaxSteps = 7
	})

	status := exec.Status()
	assert.Equal(t, "test-agent", status.Name)
	assert.Equal(t, "session-1", status.SessionID)
	assert.Equal(t, core.StateIdle, status.State)
	assert.Equal(t, 0, status.CurrentStep)
	assert.Equal(t, 7, status.MaxSteps)
	assert.Equal(t, 1, status.ToolCount)
}

func TestBreaker(t *testing.T) {
	b := newBreaker(3)
	assert.False(t, b.Open())

	b.Failure()
	b.Failure()
	assert.False(t, b.Open())

	b.Failure()
	assert.True(t, b.Open())

	b.Success()
	assert.False(t, b.Open())
	assert.Equal(t, 0, b.Failures())

	b.Failure()
	b.Failure()
	b.Failure()
	require.True(t, b.Open())
	b.Reset()
	assert.False(t, b.Open())
}
