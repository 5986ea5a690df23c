package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agentrun-io/agentrun/core"
	"github.com/agentrun-io/agentrun/model"
)

// step runs one reason/act iteration and returns its textual description.
// Failures are contained: a reasoning or action error is recorded against the
// circuit breaker and described in the result instead of propagating.
func (e *Executor) step(ctx context.Context) string {
	needAction, thought := e.think(ctx)
	if !needAction {
		return thought
	}
	return e.act(ctx)
}

// think sends the session log plus tool descriptions to the gateway and
// decides whether the iteration needs an action phase. The bool result
// reports whether tool calls were requested; the string carries the
// iteration description when no action follows.
func (e *Executor) think(ctx context.Context) (bool, string) {
	if e.breaker.Open() {
		e.setState(core.StateError)
		cerr := &core.CircuitOpenError{Failures: e.breaker.Failures(), Threshold: e.breaker.Threshold()}
		e.logger.Warn("circuit breaker open, terminating run",
			"agent", e.name, "session_id", e.sessionID,
			"failures", e.breaker.Failures())
		return false, cerr.Error()
	}

	if strings.TrimSpace(e.opts.NextStepPrompt) != "" {
		e.appendMessage(core.NewUserMessage(e.opts.NextStepPrompt))
	}

	req := model.ThinkRequest{
		Messages:     e.Messages(),
		SystemPrompt: e.opts.SystemPrompt,
		Tools:        e.toolDefinitions(),
	}

	start := time.Now()
	decision, err := e.gateway.Think(ctx, req)
	if err != nil {
		rerr := &core.ReasoningError{Err: err}
		e.appendMessage(core.NewAssistantMessage(rerr.Error()))
		e.breaker.Failure()
		e.logger.Error("reasoning failed",
			"agent", e.name, "session_id", e.sessionID,
			"duration", time.Since(start), "error", err)
		return false, fmt.Sprintf("Step failed: %s", rerr.Error())
	}

	e.logger.Debug("reasoning complete",
		"agent", e.name, "session_id", e.sessionID,
		"duration", time.Since(start),
		"tool_calls", len(decision.ToolCalls))

	if !decision.NeedsAction() {
		if decision.Text != "" {
			e.appendMessage(core.NewAssistantMessage(decision.Text))
			return false, decision.Text
		}
		return false, "Thinking complete: no action needed"
	}

	e.pending = decision
	return true, ""
}

// act invokes every requested tool in the order the gateway returned them and
// appends each outcome to the log. Only the LAST outcome decides termination:
// if it came from the terminate tool the run finishes. A failing final
// outcome counts against the circuit breaker; a successful one resets it.
func (e *Executor) act(ctx context.Context) string {
	decision := e.pending
	e.pending = nil
	if decision == nil || !decision.NeedsAction() {
		return "No tool calls to execute"
	}

	var (
		descriptions []string
		last         outcomeRecord
	)
	for _, call := range decision.ToolCalls {
		start := time.Now()
		outcome := e.registry.Invoke(ctx, call.Name, call.Arguments)

		e.appendMessage(core.NewToolResultMessage(core.ToolUse{
			CallID:    call.ID,
			Name:      call.Name,
			Arguments: call.Arguments,
			Result:    outcome.Text,
			IsError:   !outcome.OK,
			Terminate: outcome.Terminated,
		}))

		e.logger.Info("tool invoked",
			"agent", e.name, "session_id", e.sessionID,
			"tool", call.Name, "success", outcome.OK,
			"duration", time.Since(start))

		descriptions = append(descriptions, fmt.Sprintf("Tool %q returned: %s", call.Name, outcome.Text))
		last = outcomeRecord{ok: outcome.OK, terminated: outcome.Terminated, name: call.Name}
	}

	if last.terminated {
		e.setState(core.StateFinished)
		e.logger.Info("terminate tool called, run finished",
			"agent", e.name, "session_id", e.sessionID)
	}

	if last.ok {
		e.breaker.Success()
	} else {
		e.breaker.Failure()
		e.logger.Warn("tool call failed",
			"agent", e.name, "session_id", e.sessionID,
			"tool", last.name, "consecutive_failures", e.breaker.Failures())
	}

	return strings.Join(descriptions, "\n")
}

type outcomeRecord struct {
	ok         bool
	terminated bool
	name       string
}

// toolDefinitions converts the registry contents into gateway tool
// definitions.
func (e *Executor) toolDefinitions() []model.ToolDefinition {
	if e.registry == nil {
		return nil
	}
	tools := e.registry.Tools()
	defs := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}
