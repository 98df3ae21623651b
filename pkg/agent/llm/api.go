// Package llm provides interfaces and types for Large Language Model client implementations.
package llm

import (
	"context"
	"fmt"
)

// CompletionRole represents the role of a message in a conversation.
type CompletionRole string

const (
	// RoleSystem indicates a system message that provides instructions or context.
	RoleSystem CompletionRole = "system"
	// RoleUser indicates a message from the human user.
	RoleUser CompletionRole = "user"
	// RoleAssistant indicates a message from the AI assistant.
	RoleAssistant CompletionRole = "assistant"
)

const (
	// DefaultMaxTokens is the per-call output cap when an agent does not set one.
	DefaultMaxTokens = 4096

	// TemperatureDefault is used for advisory notes where some variety is fine.
	TemperatureDefault = 0.3

	// TemperatureDeterministic is used for structured JSON answers.
	TemperatureDeterministic = 0.2
)

// CompletionMessage represents a message in a completion request.
type CompletionMessage struct {
	Content string
	Role    CompletionRole
}

// CompletionRequest represents a request to generate a completion.
type CompletionRequest struct {
	Messages    []CompletionMessage
	MaxTokens   int
	Temperature float32
	// JSONMode asks the provider for a bare JSON object when it supports it.
	JSONMode bool
}

// Usage reports the tokens consumed by one completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// CompletionResponse represents a response from a completion request.
type CompletionResponse struct {
	Content    string // Main response text
	StopReason string // Why the response stopped: "end_turn", "max_tokens", "stop", etc.
	Usage      Usage
}

// LLMClient defines the interface for language model interactions.
type LLMClient interface { //nolint:revive // Keep name for consistency with middleware packages
	// Complete generates a completion synchronously.
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)

	// GetModelName returns the model name for this LLM client.
	GetModelName() string
}

// NewCompletionRequest creates a new completion request with default values.
func NewCompletionRequest(messages []CompletionMessage) CompletionRequest {
	return CompletionRequest{
		Messages:    messages,
		MaxTokens:   DefaultMaxTokens,
		Temperature: TemperatureDefault,
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleUser, Content: content}
}

// SplitSystem separates system messages from the conversation. Providers that
// take the system prompt as a dedicated field use this.
func SplitSystem(messages []CompletionMessage) (string, []CompletionMessage) {
	var system string
	rest := make([]CompletionMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

// LLMConfig represents configuration for an LLM client.
type LLMConfig struct { //nolint:revive // Keep name for consistency
	APIKey      string
	ModelName   string
	BaseURL     string
	MaxTokens   int
	Temperature float32
}

// Validate validates the LLM configuration. Local providers pass an empty key.
func (c *LLMConfig) Validate(requireKey bool) error {
	if requireKey && c.APIKey == "" {
		return fmt.Errorf("API key cannot be empty")
	}
	if c.ModelName == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max tokens must not be negative")
	}
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	return nil
}
