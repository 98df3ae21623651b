// Package ollama provides the Ollama implementation of llm.LLMClient.
// Ollama runs open-weight models locally, so no API key is involved.
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"floorplanner/pkg/agent/llm"
	"floorplanner/pkg/agent/llmerrors"
)

const defaultHost = "http://localhost:11434"

// Client wraps the Ollama API client.
type Client struct {
	client  *api.Client
	model   string
	hostURL string
}

// NewOllamaClientWithModel creates a client for hostURL, e.g. "http://localhost:11434".
func NewOllamaClientWithModel(hostURL, model string) llm.LLMClient {
	parsedURL, err := url.Parse(hostURL)
	if err != nil || parsedURL.Host == "" {
		parsedURL, _ = url.Parse(defaultHost)
	}

	return &Client{
		client:  api.NewClient(parsedURL, http.DefaultClient),
		model:   model,
		hostURL: parsedURL.String(),
	}
}

// Complete implements llm.LLMClient.
//
//nolint:gocritic // CompletionRequest size acceptable for interface consistency
func (o *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	messages, err := convertMessagesToOllama(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message conversion error: %v", err))
	}

	stream := false
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": in.MaxTokens,
		},
	}
	if in.JSONMode {
		req.Format = json.RawMessage(`"json"`)
	}

	var response api.ChatResponse
	err = o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	if strings.TrimSpace(response.Message.Content) == "" {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeEmptyResponse, 200, "empty response from Ollama")
	}

	return llm.CompletionResponse{
		Content:    response.Message.Content,
		StopReason: getStopReason(&response),
		Usage: llm.Usage{
			InputTokens:  response.PromptEvalCount,
			OutputTokens: response.EvalCount,
		},
	}, nil
}

// GetModelName returns the configured model id.
func (o *Client) GetModelName() string {
	return o.model
}

func convertMessagesToOllama(messages []llm.CompletionMessage) ([]api.Message, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("message list cannot be empty")
	}
	out := make([]api.Message, 0, len(messages))
	for i := range messages {
		switch messages[i].Role {
		case llm.RoleSystem, llm.RoleUser, llm.RoleAssistant:
			out = append(out, api.Message{Role: string(messages[i].Role), Content: messages[i].Content})
		default:
			return nil, fmt.Errorf("unsupported message role: %s", messages[i].Role)
		}
	}
	return out, nil
}

// getStopReason converts Ollama's done_reason to our stop reason format.
func getStopReason(resp *api.ChatResponse) string {
	if !resp.Done {
		return "incomplete"
	}

	switch resp.DoneReason {
	case "stop", "":
		return "end_turn"
	case "length":
		return "max_tokens"
	default:
		return resp.DoneReason
	}
}

// classifyError converts Ollama errors to llmerrors.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "request timeout")
	}

	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		e := llmerrors.NewErrorWithStatus(llmerrors.TypeForStatus(statusErr.StatusCode), statusErr.StatusCode,
			fmt.Sprintf("Ollama API error: %s", statusErr.ErrorMessage))
		e.Err = err
		return e
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "connection refused"):
		e := llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "Ollama server not reachable")
		e.Code = "ECONNREFUSED"
		return e
	case strings.Contains(errStr, "model") && strings.Contains(errStr, "not found"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "Ollama model not found")
	case strings.Contains(errStr, "timeout"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "request timeout")
	default:
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "Ollama API error")
	}
}
