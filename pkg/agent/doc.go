// Package agent builds LLM clients for the planning pipeline.
//
// The package is the public entry point for model access:
//   - LLMClientFactory picks a provider adapter from the model catalogue and wraps it in the middleware chain
//   - MockLLMClient is a scripted client for tests and dry runs
//
// Provider adapters live under internal/llmimpl and are not importable directly.
package agent
