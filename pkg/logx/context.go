package logx

import "context"

type ctxKey int

const (
	sessionIDKey ctxKey = iota
	agentIDKey
)

// WithSessionID returns a copy of ctx carrying the pipeline session id.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// WithAgentID returns a copy of ctx carrying the executing agent name.
func WithAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, agentIDKey, agentID)
}

// SessionIDFrom returns the session id stored in ctx, or "".
func SessionIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// AgentIDFrom returns the agent name stored in ctx, or "".
func AgentIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(agentIDKey).(string); ok {
		return v
	}
	return ""
}

// FromContext builds a logger for component, tagged with the session and
// agent carried by ctx.
func FromContext(ctx context.Context, component string) *Logger {
	l := NewLogger(component)
	if id := SessionIDFrom(ctx); id != "" {
		l = l.With("session", id)
	}
	if id := AgentIDFrom(ctx); id != "" && id != component {
		l = l.With("agent", id)
	}
	return l
}
