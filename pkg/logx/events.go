package logx

import (
	"context"
	"time"
)

// Pipeline lifecycle events. Each is one INFO (or WARN/ERROR) line with a
// stable "event=" field so logs can be grepped per session.

func AgentStart(ctx context.Context, agent string) {
	FromContext(ctx, "pipeline").With("event", "agent_start").Info("%s started", agent)
}

func AgentComplete(ctx context.Context, agent string, d time.Duration, tokens int) {
	FromContext(ctx, "pipeline").
		With("event", "agent_complete").
		With("duration_ms", d.Milliseconds()).
		With("tokens", tokens).
		Info("%s completed", agent)
}

func AgentFailed(ctx context.Context, agent, code, message string) {
	FromContext(ctx, "pipeline").
		With("event", "agent_failed").
		With("code", code).
		Error("%s failed: %s", agent, message)
}

func PipelineHalted(ctx context.Context, stage string, unanswered int) {
	FromContext(ctx, "pipeline").
		With("event", "pipeline_halted").
		With("unanswered", unanswered).
		Warn("halted after %s awaiting answers", stage)
}

func PipelineComplete(ctx context.Context, d time.Duration, tokens int) {
	FromContext(ctx, "pipeline").
		With("event", "pipeline_complete").
		With("duration_ms", d.Milliseconds()).
		With("tokens", tokens).
		Info("pipeline complete")
}
