// Package anthropic adapts the Anthropic Messages API to llm.LLMClient.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"floorplanner/pkg/agent/llm"
	"floorplanner/pkg/agent/llmerrors"
)

// jsonInstruction is appended to the system prompt in JSON mode. The
// Messages API has no response_format switch.
const jsonInstruction = "Respond with a single JSON object only. Do not wrap it in markdown fences or add commentary."

// ClaudeClient wraps the Anthropic API client to implement llm.LLMClient.
type ClaudeClient struct {
	client anthropic.Client
	model  string
}

// NewClaudeClient creates a raw client for model. Middleware is applied by the factory.
func NewClaudeClient(apiKey, model string, opts ...option.RequestOption) llm.LLMClient {
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	return &ClaudeClient{
		client: anthropic.NewClient(reqOpts...),
		model:  model,
	}
}

// ensureAlternation pulls system messages into a single system prompt and
// merges consecutive user turns so the conversation strictly alternates
// user/assistant, starting and ending with user.
func ensureAlternation(messages []llm.CompletionMessage) (systemPrompt string, alternating []llm.CompletionMessage, err error) {
	if len(messages) == 0 {
		return "", nil, fmt.Errorf("message list cannot be empty")
	}

	systemPrompt, rest := llm.SplitSystem(messages)
	if len(rest) == 0 {
		return "", nil, fmt.Errorf("must have at least one non-system message")
	}

	var merged []llm.CompletionMessage
	var userParts []string
	flush := func() {
		if len(userParts) > 0 {
			merged = append(merged, llm.CompletionMessage{Role: llm.RoleUser, Content: strings.Join(userParts, "\n\n")})
			userParts = nil
		}
	}

	for i := range rest {
		msg := rest[i]
		if msg.Role == llm.RoleAssistant {
			flush()
			merged = append(merged, msg)
			continue
		}
		userParts = append(userParts, msg.Content)
	}
	flush()

	for i := range merged {
		if i == 0 && merged[i].Role != llm.RoleUser {
			return "", nil, fmt.Errorf("first message must be user role, got: %s", merged[i].Role)
		}
		if i > 0 && merged[i].Role == merged[i-1].Role {
			return "", nil, fmt.Errorf("alternation violation at index %d: consecutive %s messages", i, merged[i].Role)
		}
	}
	if last := merged[len(merged)-1]; last.Role != llm.RoleUser {
		return "", nil, fmt.Errorf("last message must be user role, got: %s", last.Role)
	}

	return systemPrompt, merged, nil
}

// validatePreSend rejects blank turns before they cost a round trip.
func validatePreSend(messages []llm.CompletionMessage) error {
	for i := range messages {
		if strings.TrimSpace(messages[i].Content) == "" {
			return fmt.Errorf("message %d (%s) has empty content", i, messages[i].Role)
		}
	}
	return nil
}

// Complete implements llm.LLMClient.
//
//nolint:gocritic // CompletionRequest passed by value to match interface
func (c *ClaudeClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	systemPrompt, alternating, err := ensureAlternation(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message alternation error: %v", err))
	}
	if err := validatePreSend(alternating); err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, err.Error())
	}

	if in.JSONMode {
		if systemPrompt == "" {
			systemPrompt = jsonInstruction
		} else {
			systemPrompt += "\n\n" + jsonInstruction
		}
	}

	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		Messages:    convertMessages(alternating),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(float64(in.Temperature)),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	var sb strings.Builder
	for i := range resp.Content {
		block := resp.Content[i]
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	content := sb.String()
	if strings.TrimSpace(content) == "" {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeEmptyResponse, 200, "empty response from Claude")
	}

	return llm.CompletionResponse{
		Content:    content,
		StopReason: string(resp.StopReason),
		Usage: llm.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// GetModelName returns the configured model id.
func (c *ClaudeClient) GetModelName() string {
	return c.model
}

func convertMessages(messages []llm.CompletionMessage) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for i := range messages {
		block := anthropic.NewTextBlock(messages[i].Content)
		if messages[i].Role == llm.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

// classifyError maps SDK and transport failures onto llmerrors. Status codes
// come from the SDK error type; 529 is Anthropic's overloaded signal.
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

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return llmerrors.FromAPI("anthropic", apiErr.StatusCode, errorCode(apiErr.StatusCode, err.Error()), err.Error(), err)
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "overloaded"):
		e := llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "provider overloaded")
		e.Code = "overloaded_error"
		return e
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "connection"),
		strings.Contains(lower, "eof"), strings.Contains(lower, "reset"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "network or connection error")
	case strings.Contains(lower, "rate limit"), strings.Contains(lower, "quota"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeRateLimit, err, "rate limiting detected")
	case strings.Contains(lower, "unauthorized"), strings.Contains(lower, "api key"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "authentication error")
	}
	return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "unclassified error")
}

// errorCode picks the provider error type string out of the body when present.
func errorCode(status int, body string) string {
	for _, code := range []string{"overloaded_error", "rate_limit_error", "api_error", "authentication_error", "permission_error", "invalid_request_error", "not_found_error"} {
		if strings.Contains(body, code) {
			return code
		}
	}
	if status == 529 {
		return "overloaded_error"
	}
	return ""
}
