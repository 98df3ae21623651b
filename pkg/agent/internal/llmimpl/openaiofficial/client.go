// Package openaiofficial provides the OpenAI client built on the official Go SDK.
package openaiofficial

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"floorplanner/pkg/agent/llm"
	"floorplanner/pkg/agent/llmerrors"
	"floorplanner/pkg/config"
)

const jsonInstruction = "Respond with a single JSON object only."

// OfficialClient wraps the official OpenAI client (Responses API).
type OfficialClient struct {
	client openai.Client
	model  string
}

// NewOfficialClientWithModel creates a raw client. Middleware is applied by the factory.
func NewOfficialClientWithModel(apiKey, model string, opts ...option.RequestOption) llm.LLMClient {
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	return &OfficialClient{
		client: openai.NewClient(reqOpts...),
		model:  model,
	}
}

// buildInput flattens the conversation for the Responses API. System text
// becomes Instructions; prior assistant turns are labelled inline.
func buildInput(messages []llm.CompletionMessage) (instructions, input string) {
	instructions, rest := llm.SplitSystem(messages)
	var sb strings.Builder
	for i := range rest {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		if rest[i].Role == llm.RoleAssistant {
			sb.WriteString("Assistant: ")
		}
		sb.WriteString(rest[i].Content)
	}
	return instructions, sb.String()
}

// Complete implements llm.LLMClient.
//
//nolint:gocritic // CompletionRequest passed by value to match interface
func (o *OfficialClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	instructions, input := buildInput(in.Messages)
	if strings.TrimSpace(input) == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "no user content to send")
	}
	if in.JSONMode {
		instructions = strings.TrimSpace(instructions + "\n\n" + jsonInstruction)
	}

	// Cap MaxTokens to the model's limit to avoid 400s.
	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}
	if info, ok := config.KnownModels[o.model]; ok && info.MaxOutputTokens > 0 && maxTokens > info.MaxOutputTokens {
		maxTokens = info.MaxOutputTokens
	}

	params := responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(int64(maxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(input)},
	}
	if instructions != "" {
		params.Instructions = openai.String(instructions)
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	content := resp.OutputText()
	if strings.TrimSpace(content) == "" {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeEmptyResponse, 200,
			fmt.Sprintf("empty response from OpenAI (status %s)", resp.Status))
	}

	stop := "end_turn"
	if string(resp.Status) == "incomplete" {
		stop = "max_tokens"
	}
	return llm.CompletionResponse{
		Content:    content,
		StopReason: stop,
		Usage: llm.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// GetModelName returns the configured model id.
func (o *OfficialClient) GetModelName() string {
	return o.model
}

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

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return llmerrors.FromAPI("openai", apiErr.StatusCode, apiErr.Code, apiErr.Message, err)
	}

	if strings.Contains(strings.ToLower(err.Error()), "connection") {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "network or connection error")
	}
	return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "OpenAI API call failed")
}
