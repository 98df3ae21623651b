// Package google provides the Gemini implementation of llm.LLMClient.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"floorplanner/pkg/agent/llm"
	"floorplanner/pkg/agent/llmerrors"
)

// GeminiClient wraps the Google GenAI client.
type GeminiClient struct {
	mu      sync.Mutex
	client  *genai.Client
	apiKey  string
	model   string
	baseURL string
}

// NewGeminiClientWithModel stores configuration only. genai.NewClient needs a
// context, so the SDK client is created on the first Complete call.
func NewGeminiClientWithModel(apiKey, model string) llm.LLMClient {
	return &GeminiClient{apiKey: apiKey, model: model}
}

// NewGeminiClientWithBaseURL points the client at a non-default endpoint.
func NewGeminiClientWithBaseURL(apiKey, model, baseURL string) llm.LLMClient {
	return &GeminiClient{apiKey: apiKey, model: model, baseURL: baseURL}
}

func (g *GeminiClient) ensureClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil {
		return g.client, nil
	}
	cfg := &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if g.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	g.client = client
	return client, nil
}

// Complete implements llm.LLMClient.
//
//nolint:gocritic // CompletionRequest size acceptable for interface consistency
func (g *GeminiClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	client, err := g.ensureClient(ctx)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "failed to create Gemini client")
	}

	contents, systemInstruction, err := convertMessagesToGemini(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message conversion error: %v", err))
	}

	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}
	temperature := in.Temperature
	//nolint:gosec // bounded by config validation
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(maxTokens),
	}
	if systemInstruction != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}}
	}
	if in.JSONMode {
		config.ResponseMIMEType = "application/json"
	}

	result, err := client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if result == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "nil response from Gemini API")
	}

	content := result.Text()
	if strings.TrimSpace(content) == "" {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeEmptyResponse, 200,
			fmt.Sprintf("empty response from Gemini (finish reason %s)", getStopReason(result)))
	}

	resp := llm.CompletionResponse{
		Content:    content,
		StopReason: getStopReason(result),
	}
	if result.UsageMetadata != nil {
		resp.Usage = llm.Usage{
			InputTokens:  int(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int(result.UsageMetadata.CandidatesTokenCount),
		}
	}
	return resp, nil
}

// GetModelName returns the configured model id.
func (g *GeminiClient) GetModelName() string {
	return g.model
}

// convertMessagesToGemini maps roles to Gemini's user/model pair. System
// messages become the system instruction.
func convertMessagesToGemini(messages []llm.CompletionMessage) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("message list cannot be empty")
	}

	system, rest := llm.SplitSystem(messages)
	if len(rest) == 0 {
		return nil, "", fmt.Errorf("must have at least one non-system message")
	}

	contents := make([]*genai.Content, 0, len(rest))
	for i := range rest {
		role := "user"
		if rest[i].Role == llm.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: rest[i].Content}},
		})
	}
	return contents, system, nil
}

func getStopReason(result *genai.GenerateContentResponse) string {
	if len(result.Candidates) == 0 || result.Candidates[0] == nil {
		return "unknown"
	}
	switch result.Candidates[0].FinishReason {
	case genai.FinishReasonStop:
		return "end_turn"
	case genai.FinishReasonMaxTokens:
		return "max_tokens"
	case genai.FinishReasonSafety:
		return "safety"
	case "":
		return "end_turn"
	default:
		return strings.ToLower(string(result.Candidates[0].FinishReason))
	}
}

// classifyError maps genai.APIError onto llmerrors, keeping the HTTP code and
// the gRPC-style status string (e.g. RESOURCE_EXHAUSTED) as the error code.
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

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return fromAPIError(err, apiErr)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return fromAPIError(err, *apiErrPtr)
	}

	if strings.Contains(strings.ToLower(err.Error()), "connection") {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "network or connection error")
	}
	return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "Gemini API call failed")
}

func fromAPIError(err error, apiErr genai.APIError) *llmerrors.Error {
	return llmerrors.FromAPI("gemini", apiErr.Code, apiErr.Status, apiErr.Message, err)
}
