// Package session houses concrete implementations of the core.SessionStore.
// The interface itself lives in the core package to centralize domain
// contracts; keeping only implementations here prevents higher level packages
// (executor, engine) from depending on concrete storage.
//
// Additional backends (Redis, MySQL, ...) live in sub-packages without
// changing any calling code; only the wiring layer decides which
// implementation to instantiate.
package session
