// Package core provides the foundational domain types and interfaces used by
// agentrun. It defines the core abstractions for:
//
//   - ExecutionState (the executor lifecycle state machine vocabulary)
//   - Messages (role-tagged, append-only conversation records)
//   - SessionStore (pluggable persistence for per-session message logs)
//   - The error taxonomy shared by executors, drivers and stores
//
// The package intentionally keeps implementation concerns (persistence,
// model gateways, concrete executors) out of scope, exposing small types and
// interfaces to enable custom backends and extensions. All exported
// identifiers include concise documentation to aid discoverability.
package core
