package tool

import "context"

// TerminateToolName is the designated terminate capability. When it is the
// last tool result of an iteration, the executor marks the run FINISHED.
const TerminateToolName = "terminate"

// terminateTool signals that the current task is complete and the execution
// loop should stop.
type terminateTool struct{}

// NewTerminateTool constructs the terminate tool instance.
func NewTerminateTool() Tool { return &terminateTool{} }

func (t *terminateTool) Name() string { return TerminateToolName }

func (t *terminateTool) Description() string {
	return "End the current task. Invoke when the user's request is fully handled or no further progress is possible."
}

func (t *terminateTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"reason": map[string]any{"type": "string", "description": "Short completion summary"},
		},
	}
}

func (t *terminateTool) Invoke(_ context.Context, args map[string]any) (any, error) {
	reason, _ := args["reason"].(string)
	if reason == "" {
		reason = "task complete"
	}
	return reason, nil
}
