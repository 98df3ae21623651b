package circuit

import (
	"context"

	"floorplanner/pkg/agent/llm"
)

// Middleware short-circuits calls while b is open.
func Middleware(b *Breaker) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				if err := b.Allow(); err != nil {
					return llm.CompletionResponse{}, err
				}
				resp, err := next.Complete(ctx, req)
				b.Record(err)
				return resp, err //nolint:wrapcheck
			},
			next.GetModelName,
		)
	}
}
