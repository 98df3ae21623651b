package retry

import (
	"context"
	"fmt"
	"time"

	"floorplanner/pkg/agent/llm"
	"floorplanner/pkg/agent/llmerrors"
	"floorplanner/pkg/logx"
)

// Do runs fn and retries retryable failures up to policy.Config.MaxRetries
// times. A retryable error that survives every attempt is returned as a
// service_unavailable llmerrors.Error wrapping the last failure.
func Do[T any](ctx context.Context, policy *Policy, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	logger := logx.FromContext(ctx, "retry")

	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		if !policy.ShouldRetry(err) {
			return zero, err
		}
		if attempt >= policy.Config.MaxRetries {
			logger.Error("retries exhausted after %d attempts: %v", attempt+1, err)
			return zero, llmerrors.NewServiceUnavailableError(err, attempt+1)
		}
		if ctx.Err() != nil {
			return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
		}

		delay := policy.CalculateDelay(attempt)
		logger.Warn("attempt %d failed, retrying in %s: %v", attempt+1, delay, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// Middleware retries model calls under policy. It sits inside the circuit
// breaker so one exhausted retry loop counts as one breaker failure.
func Middleware(policy *Policy) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
			return Do(ctx, policy, func(attemptCtx context.Context) (llm.CompletionResponse, error) {
				return next.Complete(attemptCtx, req)
			})
		}, next.GetModelName)
	}
}
