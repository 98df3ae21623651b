package agent

import (
	"context"
	"fmt"
	"sync"

	"floorplanner/pkg/agent/llm"
)

// MockLLMClient provides a controllable implementation of llm.LLMClient for testing.
// Errors are consumed before responses: a non-nil entry at the current error
// index is returned instead of the next response.
type MockLLMClient struct {
	mu            sync.Mutex
	model         string
	responses     []llm.CompletionResponse
	responseIndex int
	errors        []error
	errorIndex    int
	requests      []llm.CompletionRequest

	// Respond, when set, replaces the scripted responses.
	Respond func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error)
}

// NewMockLLMClient creates a new mock client with predefined responses.
func NewMockLLMClient(responses []llm.CompletionResponse, errs []error) *MockLLMClient {
	return &MockLLMClient{
		model:     "mock-model",
		responses: responses,
		errors:    errs,
	}
}

// NewMockLLMClientFunc creates a mock that answers every call with fn.
func NewMockLLMClientFunc(fn func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error)) *MockLLMClient {
	return &MockLLMClient{model: "mock-model", Respond: fn}
}

// Complete returns the next predefined response or error.
func (m *MockLLMClient) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	respond := m.Respond
	if respond != nil {
		m.mu.Unlock()
		return respond(ctx, req)
	}
	defer m.mu.Unlock()

	if m.errorIndex < len(m.errors) && m.errors[m.errorIndex] != nil {
		err := m.errors[m.errorIndex]
		m.errorIndex++
		return llm.CompletionResponse{}, err
	}
	m.errorIndex++

	if m.responseIndex >= len(m.responses) {
		return llm.CompletionResponse{}, fmt.Errorf("mock client: no more responses")
	}

	resp := m.responses[m.responseIndex]
	m.responseIndex++
	return resp, nil
}

// GetModelName returns the mock model id.
func (m *MockLLMClient) GetModelName() string {
	return m.model
}

// Calls returns how many times Complete was invoked.
func (m *MockLLMClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of every request received.
func (m *MockLLMClient) Requests() []llm.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}
