// Package executor implements the per-session execution state machine: a
// bounded reason/act loop driven by a model gateway, acting through a tool
// registry, protected by a consecutive-failure circuit breaker.
//
// Two drivers share the same loop. Run blocks until a terminal state and
// returns the joined per-step descriptions; RunStream runs the loop on a
// background goroutine and pushes each step over a session-bound Stream with
// its own timeout and lifecycle hooks.
package executor
