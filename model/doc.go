// Package model defines the vendor-neutral gateway abstraction between
// executors and language model providers. Executors depend only on the
// Gateway interface; concrete adapters for OpenAI and Anthropic live in
// subpackages, and MockGateway supports deterministic tests.
package model
