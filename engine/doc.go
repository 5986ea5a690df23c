// Package engine implements the caller-facing orchestration layer.
//
// The Engine owns the process-wide session registry: a concurrency-safe
// mapping from session id to live executor and, for streaming delivery, to
// the session's push channel. Executors are created lazily through a Factory
// and evicted when their stream ends or the session is closed.
//
// # Operations
//
// Four execution entry points share the same underlying loop:
//
//   - Execute: blocking, ephemeral session, result text only
//   - ExecuteAdvanced: blocking, reusable session with per-request overrides
//   - ExecuteStream: streaming, fresh session
//   - ExecuteAdvancedStream: streaming, reusable session with overrides
//
// plus management operations: Status (per session or aggregate), Reset and
// CloseStream. Every management response carries a status tag (success,
// error, warning), the terminal execution state and the session id.
//
// # Concurrency
//
// Get-or-create and remove on the registry are atomic: concurrent requests
// for the same session id observe exactly one executor, and evictions are
// never lost. Each session's loop runs on its own goroutine, so one
// session's blocking model or tool calls never stall another session.
package engine
