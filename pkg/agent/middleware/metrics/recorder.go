// Package metrics provides metrics recording for LLM client operations.
package metrics

import "time"

// Recorder defines the interface for recording LLM operation metrics.
type Recorder interface {
	// ObserveRequest records metrics for a completed LLM request.
	ObserveRequest(
		model, sessionID, agent string,
		promptTokens, completionTokens int,
		cost float64,
		success bool,
		errorType string,
		duration time.Duration,
	)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveRequest does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveRequest(
	_, _, _ string,
	_, _ int,
	_ float64,
	_ bool,
	_ string,
	_ time.Duration,
) {
	// No-op
}

// multiRecorder fans out to several recorders.
type multiRecorder []Recorder

// Multi returns a recorder that forwards every observation to each of rs.
// Nil entries are skipped.
func Multi(rs ...Recorder) Recorder {
	out := make(multiRecorder, 0, len(rs))
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m multiRecorder) ObserveRequest(
	model, sessionID, agent string,
	promptTokens, completionTokens int,
	cost float64,
	success bool,
	errorType string,
	duration time.Duration,
) {
	for _, r := range m {
		r.ObserveRequest(model, sessionID, agent, promptTokens, completionTokens, cost, success, errorType, duration)
	}
}
