package engine

import (
	"context"
	"sync"
)

// CallbackType identifies an engine lifecycle moment.
type CallbackType string

// Lifecycle moments a callback can attach to.
const (
	// BeforeRun fires after the executor is resolved, before the loop starts.
	BeforeRun CallbackType = "before_run"
	// AfterRun fires once a blocking run has produced its result.
	AfterRun CallbackType = "after_run"
	// StreamOpened fires when a push channel is handed to the caller.
	StreamOpened CallbackType = "stream_opened"
	// StreamClosed fires on any terminal stream transition.
	StreamClosed CallbackType = "stream_closed"
)

// CallbackContext carries the data available at a lifecycle moment.
type CallbackContext struct {
	SessionID string
	// Payload holds the run result, error text or close reason, depending
	// on the callback type.
	Payload string
}

// Callback is a hook attached to one lifecycle moment. Callbacks are for
// cross-cutting concerns (audit, metrics, history persistence) and must not
// block: they run inline on the execution path.
type Callback interface {
	Type() CallbackType
	Execute(ctx context.Context, cc *CallbackContext)
}

// FunctionCallback adapts a plain function into a Callback.
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, cc *CallbackContext)
}

// NewFunctionCallback wraps fn as a callback of the given type.
func NewFunctionCallback(t CallbackType, fn func(ctx context.Context, cc *CallbackContext)) *FunctionCallback {
	return &FunctionCallback{callbackType: t, fn: fn}
}

// Type implements Callback.
func (c *FunctionCallback) Type() CallbackType { return c.callbackType }

// Execute implements Callback.
func (c *FunctionCallback) Execute(ctx context.Context, cc *CallbackContext) {
	if c.fn != nil {
		c.fn(ctx, cc)
	}
}

// CallbackManager holds registered callbacks grouped by type. Registration
// is expected at wiring time; firing is safe under concurrent sessions.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager constructs an empty manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{callbacks: make(map[CallbackType][]Callback)}
}

// Register adds a callback for its declared type.
func (cm *CallbackManager) Register(cb Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks[cb.Type()] = append(cm.callbacks[cb.Type()], cb)
}

// fire executes all callbacks of the given type in registration order.
func (cm *CallbackManager) fire(ctx context.Context, t CallbackType, sessionID, payload string) {
	cm.mu.RLock()
	cbs := cm.callbacks[t]
	cm.mu.RUnlock()

	if len(cbs) == 0 {
		return
	}
	cc := &CallbackContext{SessionID: sessionID, Payload: payload}
	for _, cb := range cbs {
		cb.Execute(ctx, cc)
	}
}
