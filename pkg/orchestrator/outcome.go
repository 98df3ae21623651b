package orchestrator

import (
	"floorplanner/pkg/budget"
	"floorplanner/pkg/design"
	"floorplanner/pkg/pipeline"
)

// Outcome is what Run, Resume and Status hand back to callers.
type Outcome struct {
	SessionID   string                  `json:"session_id"`
	State       State                   `json:"state"`
	NextStage   string                  `json:"next_stage,omitempty"`
	Context     *design.Context         `json:"context"`
	Questions   []pipeline.OpenQuestion `json:"questions"`
	Unanswered  []pipeline.OpenQuestion `json:"unanswered"`
	Assumptions []pipeline.Assumption   `json:"assumptions"`
	HighRisk    []pipeline.Assumption   `json:"high_risk_assumptions"`
	Reports     []pipeline.StageReport  `json:"reports,omitempty"`
	Usage       budget.Snapshot         `json:"usage"`
	TokensUsed  int                     `json:"tokens_used"`
}

// Halted reports whether the session is waiting for answers.
func (o *Outcome) Halted() bool { return o.State == StateHalted }

// Complete reports whether every stage ran and nothing mandatory is open.
func (o *Outcome) Complete() bool { return o.State == StateComplete }

// outcome snapshots sess. The caller holds o.mu.
func (o *Orchestrator) outcome(sess *session, reports []pipeline.StageReport) *Outcome {
	dc, err := sess.dc.Clone()
	if err != nil {
		o.logger.Warn("session %s: context clone failed: %v", sess.id, err)
		dc = sess.dc
	}
	questions := append([]pipeline.OpenQuestion{}, sess.questions...)
	assumptions := append([]pipeline.Assumption{}, sess.assumptions...)
	snap := sess.tracker.Snapshot()
	return &Outcome{
		SessionID:   sess.id,
		State:       sess.state,
		NextStage:   sess.nextStage,
		Context:     dc,
		Questions:   questions,
		Unanswered:  pipeline.Unanswered(questions),
		Assumptions: assumptions,
		HighRisk:    pipeline.HighRisk(assumptions),
		Reports:     reports,
		Usage:       snap,
		TokensUsed:  snap.Total(),
	}
}
