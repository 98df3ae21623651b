package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floorplanner/pkg/agent/llm"
	"floorplanner/pkg/agent/llmerrors"
	"floorplanner/pkg/agent/middleware/resilience/circuit"
	"floorplanner/pkg/logx"
)

func scripted(resp llm.CompletionResponse, err error) llm.LLMClient {
	return llm.WrapClient(func(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
		return resp, err
	}, func() string { return "test-model" })
}

func agentCtx() context.Context {
	return logx.WithAgentID(logx.WithSessionID(context.Background(), "sess-1"), "eco-design")
}

func TestMiddlewareRecordsSuccess(t *testing.T) {
	reg := prometheus.NewRegistry()
	prom := NewPrometheusRecorder(reg)
	internal := NewInternalRecorder()

	base := scripted(llm.CompletionResponse{Content: "{}", Usage: llm.Usage{InputTokens: 120, OutputTokens: 30}}, nil)
	price := func(_ string, p, c int) float64 { return float64(p+c) / 1000 }
	client := llm.Chain(base, Middleware(Multi(prom, internal, nil), nil, price))

	_, err := client.Complete(agentCtx(), llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")}))
	require.NoError(t, err)

	assert.InDelta(t, 1, testutil.ToFloat64(prom.requests.WithLabelValues("test-model", "eco-design", "success", "")), 0)
	assert.InDelta(t, 120, testutil.ToFloat64(prom.tokens.WithLabelValues("test-model", "eco-design", "prompt")), 0)
	assert.InDelta(t, 30, testutil.ToFloat64(prom.tokens.WithLabelValues("test-model", "eco-design", "completion")), 0)

	session := internal.GetSessionMetrics("sess-1")
	require.NotNil(t, session)
	assert.Equal(t, int64(150), session.TotalTokens)
	assert.InDelta(t, 0.15, session.TotalCost, 1e-9)
	assert.Equal(t, int64(1), session.RequestCount)
}

func TestMiddlewareRecordsFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	prom := NewPrometheusRecorder(reg)
	internal := NewInternalRecorder()

	base := scripted(llm.CompletionResponse{}, llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeRateLimit, 429, "slow"))
	client := llm.Chain(base, Middleware(Multi(prom, internal), nil, nil))

	_, err := client.Complete(agentCtx(), llm.CompletionRequest{})
	require.Error(t, err)

	assert.InDelta(t, 1, testutil.ToFloat64(prom.requests.WithLabelValues("test-model", "eco-design", "error", "rate_limit")), 0)
	session := internal.GetSessionMetrics("sess-1")
	require.NotNil(t, session)
	assert.Equal(t, int64(1), session.FailedCount)
	assert.Zero(t, session.TotalTokens)
}

func TestMiddlewareEstimatesMissingUsage(t *testing.T) {
	base := scripted(llm.CompletionResponse{Content: `{"notes": ["north light"]}`}, nil)
	client := llm.Chain(base, Middleware(Nop(), nil, nil))

	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("describe the plot")}))
	require.NoError(t, err)
	assert.Positive(t, resp.Usage.InputTokens)
	assert.Positive(t, resp.Usage.OutputTokens)
}

func TestGetErrorType(t *testing.T) {
	assert.Equal(t, "", getErrorType(nil))
	assert.Equal(t, "circuit_breaker", getErrorType(&circuit.Error{State: circuit.Open}))
	assert.Equal(t, "auth", getErrorType(llmerrors.NewError(llmerrors.ErrorTypeAuth, "x")))
	assert.Equal(t, "timeout", getErrorType(context.DeadlineExceeded))
	assert.Equal(t, "canceled", getErrorType(context.Canceled))
	assert.Equal(t, "unknown", getErrorType(errors.New("boom")))
}

func TestInternalRecorderIgnoresAnonymous(t *testing.T) {
	r := NewInternalRecorder()
	r.ObserveRequest("m", "", "a", 1, 1, 0, true, "", time.Millisecond)
	assert.Nil(t, r.GetSessionMetrics(""))

	r.ObserveRequest("m", "s", "a", 1, 1, 0, true, "", time.Millisecond)
	require.NotNil(t, r.GetSessionMetrics("s"))
	r.ClearSession("s")
	assert.Nil(t, r.GetSessionMetrics("s"))
}
