// Package metrics provides internal metrics tracking for LLM operations.
package metrics

import (
	"sync"
	"time"
)

// InternalRecorder implements the Recorder interface using in-memory
// aggregation per session. It backs the cost summary on run outcomes.
type InternalRecorder struct {
	sessions map[string]*SessionMetrics
	mu       sync.RWMutex
}

// SessionMetrics represents aggregated metrics for one pipeline session.
//
//nolint:govet
type SessionMetrics struct {
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	TotalTokens      int64     `json:"total_tokens"`
	RequestCount     int64     `json:"request_count"`
	FailedCount      int64     `json:"failed_count"`
	TotalCost        float64   `json:"total_cost_usd"`
	SessionID        string    `json:"session_id"`
	LastUpdated      time.Time `json:"last_updated"`
}

// NewInternalRecorder returns an empty recorder.
func NewInternalRecorder() *InternalRecorder {
	return &InternalRecorder{
		sessions: make(map[string]*SessionMetrics),
	}
}

// ObserveRequest records metrics for a completed LLM request.
func (r *InternalRecorder) ObserveRequest(
	_, sessionID, _ string,
	promptTokens, completionTokens int,
	cost float64,
	success bool,
	_ string,
	_ time.Duration,
) {
	if sessionID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.sessions[sessionID]
	if !exists {
		session = &SessionMetrics{SessionID: sessionID}
		r.sessions[sessionID] = session
	}

	session.RequestCount++
	session.LastUpdated = time.Now()
	if !success {
		session.FailedCount++
		return
	}
	session.PromptTokens += int64(promptTokens)
	session.CompletionTokens += int64(completionTokens)
	session.TotalTokens = session.PromptTokens + session.CompletionTokens
	session.TotalCost += cost
}

// GetSessionMetrics returns a copy of the aggregated metrics for a session,
// or nil when nothing was recorded.
func (r *InternalRecorder) GetSessionMetrics(sessionID string) *SessionMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if session, exists := r.sessions[sessionID]; exists {
		cp := *session
		return &cp
	}
	return nil
}

// ClearSession removes metrics for a specific session.
func (r *InternalRecorder) ClearSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}
