// Package agentrun provides a high-level façade over the execution engine,
// enabling rapid construction of tool-calling agents. Most applications
// interact with this package by:
//  1. Creating an AgentRun via New() with a model gateway and tools
//  2. Running tasks in blocking (Execute/ExecuteAdvanced) or streaming
//     (ExecuteStream/ExecuteAdvancedStream) delivery
//  3. Managing sessions through Status, Reset and CloseStream
//
// The façade delegates orchestration to engine.Engine while keeping setup
// concise. All defaults are safe for local development and testing;
// production deployments typically supply a durable session store and a
// structured logger.
package agentrun

import (
	"context"
	"strings"

	"github.com/agentrun-io/agentrun/core"
	"github.com/agentrun-io/agentrun/engine"
	"github.com/agentrun-io/agentrun/executor"
	"github.com/agentrun-io/agentrun/logging"
	"github.com/agentrun-io/agentrun/model"
	"github.com/agentrun-io/agentrun/session"
	"github.com/agentrun-io/agentrun/tool"
)

// Options configures an AgentRun instance.
type Options struct {
	// AgentName labels executors in logs and status snapshots.
	AgentName string
	// SystemPrompt defines the agent's role.
	SystemPrompt string
	// NextStepPrompt nudges the model before each reasoning call.
	NextStepPrompt string
	// MaxSteps bounds each run's reason/act loop.
	MaxSteps int
	// FailureThreshold is the consecutive-failure hard stop.
	FailureThreshold int
	// Tools are the capabilities exposed to the model. The terminate tool is
	// always added so runs can finish explicitly.
	Tools []tool.Tool
	// SessionStore persists session logs; defaults to in-memory.
	SessionStore core.SessionStore
	// EngineConfig tunes the orchestration layer.
	EngineConfig engine.Config
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// AgentRun is the high-level façade aggregating the engine, the tool
// registry and the model gateway.
type AgentRun struct {
	opts    Options
	gateway model.Gateway
	tools   *tool.Registry
	engine  *engine.Engine
}

// New creates an AgentRun around a model gateway. Unset options fall back to
// in-memory and no-op implementations.
func New(gateway model.Gateway, optFns ...func(o *Options)) *AgentRun {
	opts := Options{
		AgentName:        "agent",
		MaxSteps:         executor.DefaultMaxSteps,
		FailureThreshold: executor.DefaultFailureThreshold,
		SessionStore:     session.NewInMemoryStore(),
		EngineConfig:     engine.DefaultConfig(),
		Logger:           logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	registry := tool.NewRegistry(opts.Logger, tool.NewTerminateTool())
	for _, t := range opts.Tools {
		_ = registry.Register(t)
	}
	registry.Seal()

	factory := func(sessionID string) *executor.Executor {
		return executor.New(opts.AgentName, sessionID, gateway, registry, func(o *executor.Options) {
			o.SystemPrompt = opts.SystemPrompt
			o.NextStepPrompt = opts.NextStepPrompt
			o.MaxSteps = opts.MaxSteps
			o.FailureThreshold = opts.FailureThreshold
			o.Store = opts.SessionStore
			o.Logger = opts.Logger
		})
	}

	eng := engine.New(factory, func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Logger = opts.Logger
	})

	return &AgentRun{opts: opts, gateway: gateway, tools: registry, engine: eng}
}

// Engine exposes the underlying orchestration layer.
func (a *AgentRun) Engine() *engine.Engine { return a.engine }

// Tools exposes the sealed capability registry.
func (a *AgentRun) Tools() *tool.Registry { return a.tools }

// Execute runs a one-shot task in an ephemeral session.
func (a *AgentRun) Execute(ctx context.Context, prompt string) (string, error) {
	return a.engine.Execute(ctx, prompt)
}

// ExecuteAdvanced runs a task in a reusable session with per-request
// overrides.
func (a *AgentRun) ExecuteAdvanced(ctx context.Context, req engine.Request) engine.Response {
	return a.engine.ExecuteAdvanced(ctx, req)
}

// ExecuteStream runs a one-shot task, delivering steps incrementally.
func (a *AgentRun) ExecuteStream(ctx context.Context, prompt string) *executor.Stream {
	return a.engine.ExecuteStream(ctx, prompt)
}

// ExecuteAdvancedStream is the streaming counterpart of ExecuteAdvanced.
func (a *AgentRun) ExecuteAdvancedStream(ctx context.Context, req engine.Request) *executor.Stream {
	return a.engine.ExecuteAdvancedStream(ctx, req)
}

// Status reports one session's snapshot, or the aggregate when id is empty.
func (a *AgentRun) Status(sessionID string) engine.Response {
	return a.engine.Status(sessionID)
}

// Reset returns a session's executor to idle.
func (a *AgentRun) Reset(sessionID string) engine.Response {
	return a.engine.Reset(sessionID)
}

// CloseStream closes a session's push channel and evicts it.
func (a *AgentRun) CloseStream(sessionID string) engine.Response {
	return a.engine.CloseStream(sessionID)
}

// Chat produces plain conversational text without the reason/act loop, using
// the gateway's incremental narration call. The transcript is persisted to
// the session store so chat and agent runs share memory. The returned
// channel yields text fragments; the error channel reports at most one
// failure.
func (a *AgentRun) Chat(ctx context.Context, sessionID, prompt string) (<-chan string, <-chan error, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, nil, core.NewValidationError("input prompt must not be blank")
	}

	store := a.opts.SessionStore
	history, err := store.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	history = append(history, core.NewUserMessage(prompt))

	fragments, narrErrs := a.gateway.Narrate(ctx, model.NarrateRequest{
		Messages:     history,
		SystemPrompt: a.opts.SystemPrompt,
	})

	out := make(chan string, 16)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)

		var full strings.Builder
		for fragment := range fragments {
			full.WriteString(fragment)
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case out <- fragment:
			}
		}
		if err := <-narrErrs; err != nil {
			errCh <- err
			return
		}

		history = append(history, core.NewAssistantMessage(full.String()))
		if err := store.Save(ctx, sessionID, history); err != nil {
			errCh <- err
		}
	}()
	return out, errCh, nil
}
