package timeout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"floorplanner/pkg/agent/llm"
	"floorplanner/pkg/agent/llmerrors"
)

func TestMiddlewareSetsDeadline(t *testing.T) {
	var deadline time.Time
	var ok bool
	base := llm.WrapClient(func(ctx context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		deadline, ok = ctx.Deadline()
		return llm.CompletionResponse{}, nil
	}, func() string { return "m" })

	_, err := llm.Chain(base, Middleware(time.Minute)).Complete(context.Background(), llm.CompletionRequest{})
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}

func TestMiddlewareZeroIsPassThrough(t *testing.T) {
	base := llm.WrapClient(func(ctx context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		_, ok := ctx.Deadline()
		assert.False(t, ok)
		return llm.CompletionResponse{}, nil
	}, func() string { return "m" })

	_, err := llm.Chain(base, Middleware(0)).Complete(context.Background(), llm.CompletionRequest{})
	assert.NoError(t, err)
}

func TestMiddlewareAttemptTimeoutIsTransient(t *testing.T) {
	base := llm.WrapClient(func(ctx context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		<-ctx.Done()
		return llm.CompletionResponse{}, ctx.Err()
	}, func() string { return "slow-model" })

	_, err := llm.Chain(base, Middleware(10*time.Millisecond)).Complete(context.Background(), llm.CompletionRequest{})
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeTransient))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "slow-model did not answer within 10ms")
}

func TestMiddlewareCallerCancelPassesThrough(t *testing.T) {
	base := llm.WrapClient(func(ctx context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		<-ctx.Done()
		return llm.CompletionResponse{}, ctx.Err()
	}, func() string { return "m" })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := llm.Chain(base, Middleware(time.Minute)).Complete(ctx, llm.CompletionRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, llmerrors.Is(err, llmerrors.ErrorTypeTransient))
}
