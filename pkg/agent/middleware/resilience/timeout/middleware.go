// Package timeout bounds each model call attempt.
package timeout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"floorplanner/pkg/agent/llm"
	"floorplanner/pkg/agent/llmerrors"
)

// Middleware gives every attempt its own deadline. An attempt cut off by that
// deadline fails as a transient error so the retry layer above can try again;
// expiry of the caller's own deadline is passed through untouched. A zero
// duration disables the middleware.
func Middleware(perAttempt time.Duration) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		if perAttempt <= 0 {
			return next
		}
		return llm.WrapClient(func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, perAttempt)
			defer cancel()

			resp, err := next.Complete(attemptCtx, req)
			if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
				return resp, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err,
					fmt.Sprintf("%s did not answer within %s", next.GetModelName(), perAttempt))
			}
			return resp, err
		}, next.GetModelName)
	}
}
