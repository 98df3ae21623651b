// Package metrics provides metrics middleware for LLM clients.
package metrics

import (
	"context"
	"errors"
	"time"

	"floorplanner/pkg/agent/llm"
	"floorplanner/pkg/agent/llmerrors"
	"floorplanner/pkg/agent/middleware/resilience/circuit"
	"floorplanner/pkg/budget"
	"floorplanner/pkg/logx"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// UsageExtractor is a function that extracts token usage from a request and response.
type UsageExtractor func(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int)

// CostFunc prices a call. Unknown models cost 0.
type CostFunc func(model string, promptTokens, completionTokens int) float64

// DefaultUsageExtractor uses the provider-reported usage and falls back to a
// tiktoken estimate when the provider reported nothing.
func DefaultUsageExtractor(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int) {
	if resp.Usage.Total() > 0 {
		return resp.Usage.InputTokens, resp.Usage.OutputTokens
	}

	est := budget.DefaultEstimator()
	for i := range req.Messages {
		promptTokens += est.Count(req.Messages[i].Content)
	}
	return promptTokens, est.Count(resp.Content)
}

// Middleware returns a middleware function that records metrics for LLM operations.
// It tracks request latency, token usage, success/failure rates, and error types.
// The session and agent labels come from the request context (logx.WithSessionID,
// logx.WithAgentID).
func Middleware(recorder Recorder, usageExtractor UsageExtractor, cost CostFunc) llm.Middleware {
	if usageExtractor == nil {
		usageExtractor = DefaultUsageExtractor
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				model := next.GetModelName()

				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				var promptTokens, completionTokens int
				if err == nil {
					promptTokens, completionTokens = usageExtractor(req, resp)
					// Adapters that report nothing get the estimate written back.
					if resp.Usage.Total() == 0 {
						resp.Usage = llm.Usage{InputTokens: promptTokens, OutputTokens: completionTokens}
					}
				}

				var callCost float64
				if err == nil && cost != nil {
					callCost = cost(model, promptTokens, completionTokens)
				}

				sessionID := logx.SessionIDFrom(ctx)
				agent := logx.AgentIDFrom(ctx)
				recorder.ObserveRequest(
					model,
					sessionID,
					agent,
					promptTokens,
					completionTokens,
					callCost,
					err == nil,
					getErrorType(err),
					duration,
				)

				status := statusSuccess
				if err != nil {
					status = statusError
				}
				logx.Debug(ctx, "llm", "model=%s tokens=%d+%d status=%s duration=%dms",
					model, promptTokens, completionTokens, status, duration.Milliseconds())

				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			next.GetModelName,
		)
	}
}

// getErrorType classifies errors for metrics labeling.
func getErrorType(err error) string {
	if err == nil {
		return ""
	}

	var circuitErr *circuit.Error
	var llmErr *llmerrors.Error
	switch {
	case errors.As(err, &circuitErr):
		return "circuit_breaker"
	case errors.As(err, &llmErr):
		return llmErr.Type.String()
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "unknown"
	}
}
