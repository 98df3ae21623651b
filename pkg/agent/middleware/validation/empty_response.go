// Package validation provides response validation middleware for LLM clients.
package validation

import (
	"context"
	"strings"

	"floorplanner/pkg/agent/llm"
	"floorplanner/pkg/agent/llmerrors"
	"floorplanner/pkg/logx"
)

const (
	// maxEmptyAttempts is the original call plus one retry with guidance.
	maxEmptyAttempts = 2

	guidanceText = "Your previous reply was empty. Respond with the requested content only."
	guidanceJSON = "Your previous reply was empty. Respond with a single JSON object only, no prose."
)

// EmptyResponseMiddleware rejects blank replies. Non-blank replies pass
// through even in JSON mode; malformed JSON is a parse error for the caller.
//
// First occurrence: a guidance message is appended and the call is repeated.
// Second occurrence: ErrorTypeEmptyResponse is returned so the retry
// middleware can back off and try again.
func EmptyResponseMiddleware() llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				logger := logx.FromContext(ctx, "empty-response-validator")

				for attempt := 1; attempt <= maxEmptyAttempts; attempt++ {
					resp, err := next.Complete(ctx, req)
					if err != nil && !llmerrors.Is(err, llmerrors.ErrorTypeEmptyResponse) {
						//nolint:wrapcheck // Middleware intentionally passes through errors unchanged
						return resp, err
					}

					if err == nil && !isEmptyResponse(resp) {
						return resp, nil
					}

					logger.Warn("empty response (attempt %d/%d): content_length=%d stop_reason=%q",
						attempt, maxEmptyAttempts, len(resp.Content), resp.StopReason)

					if attempt < maxEmptyAttempts {
						guided := req
						guided.Messages = append(append([]llm.CompletionMessage(nil), req.Messages...),
							llm.NewUserMessage(guidanceFor(req)))
						req = guided
					}
				}

				logEmptyResponseDebugInfo(logger, req)
				return llm.CompletionResponse{}, llmerrors.NewError(
					llmerrors.ErrorTypeEmptyResponse,
					"received no usable content after guidance",
				)
			},
			next.GetModelName,
		)
	}
}

func isEmptyResponse(resp llm.CompletionResponse) bool {
	return strings.TrimSpace(resp.Content) == ""
}

func guidanceFor(req llm.CompletionRequest) string {
	if req.JSONMode {
		return guidanceJSON
	}
	return guidanceText
}

// logEmptyResponseDebugInfo dumps the prompt at debug level, truncated.
func logEmptyResponseDebugInfo(logger *logx.Logger, req llm.CompletionRequest) {
	logger.Error("empty response persisted: messages=%d max_tokens=%d temperature=%v json=%v",
		len(req.Messages), req.MaxTokens, req.Temperature, req.JSONMode)
	for i := range req.Messages {
		msg := &req.Messages[i]
		logger.Debug("message [%d] role=%s content=%s", i, msg.Role, llmerrors.SanitizePrompt(msg.Content, 2000))
	}
}
