package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"

	"floorplanner/pkg/budget"
	"floorplanner/pkg/design"
	"floorplanner/pkg/persistence"
	"floorplanner/pkg/pipeline"
)

// session is the in-memory state of one pipeline run.
type session struct {
	id          string
	state       State
	nextStage   string
	input       design.Input
	dc          *design.Context
	answers     map[string]string
	questions   []pipeline.OpenQuestion
	assumptions []pipeline.Assumption
	tracker     *budget.Tracker
	busy        bool
}

func newSession(id string, in design.Input, cfg budget.Config) *session {
	answers := make(map[string]string, len(in.Answers))
	for k, v := range in.Answers {
		if strings.TrimSpace(v) != "" {
			answers[k] = strings.TrimSpace(v)
		}
	}
	dc := design.NewContext(id, in)
	dc.Input.Answers = answers
	return &session{
		id:          id,
		state:       StateInit,
		input:       in,
		dc:          dc,
		answers:     answers,
		questions:   []pipeline.OpenQuestion{},
		assumptions: []pipeline.Assumption{},
		tracker:     budget.NewTracker(cfg),
	}
}

// mergeAnswers adds non-blank answers to the session set and returns the
// ids that were new or changed.
func (s *session) mergeAnswers(answers map[string]string) []string {
	var changed []string
	for id, a := range answers {
		a = strings.TrimSpace(a)
		if a == "" || s.answers[id] == a {
			continue
		}
		s.answers[id] = a
		changed = append(changed, id)
	}
	pipeline.ApplyAnswers(s.questions, s.answers)
	return changed
}

// replaceStage swaps in a stage's latest questions and assumptions.
func (s *session) replaceStage(stage string, qs []pipeline.OpenQuestion, as []pipeline.Assumption) {
	s.questions = append(dropQuestions(s.questions, stage), qs...)
	s.assumptions = append(dropAssumptions(s.assumptions, stage), as...)
}

// forget clears everything the named stages contributed so they can rerun.
func (s *session) forget(stages map[string]bool) {
	qs := s.questions[:0]
	for _, q := range s.questions {
		if !stages[q.Agent] {
			qs = append(qs, q)
		}
	}
	s.questions = qs

	as := s.assumptions[:0]
	for _, a := range s.assumptions {
		if !stages[a.Agent] {
			as = append(as, a)
		}
	}
	s.assumptions = as

	conflicts := s.dc.Conflicts[:0]
	for _, c := range s.dc.Conflicts {
		if !stages[c.Agent] {
			conflicts = append(conflicts, c)
		}
	}
	s.dc.Conflicts = conflicts

	fallbacks := s.dc.Fallbacks[:0]
	for _, f := range s.dc.Fallbacks {
		if !stages[f] {
			fallbacks = append(fallbacks, f)
		}
	}
	s.dc.Fallbacks = fallbacks
}

func dropQuestions(qs []pipeline.OpenQuestion, stage string) []pipeline.OpenQuestion {
	out := make([]pipeline.OpenQuestion, 0, len(qs))
	for _, q := range qs {
		if q.Agent != stage {
			out = append(out, q)
		}
	}
	return out
}

func dropAssumptions(as []pipeline.Assumption, stage string) []pipeline.Assumption {
	out := make([]pipeline.Assumption, 0, len(as))
	for _, a := range as {
		if a.Agent != stage {
			out = append(out, a)
		}
	}
	return out
}

func (s *session) record() (*persistence.Session, error) {
	input, err := json.Marshal(s.input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal input: %w", err)
	}
	ctx, err := s.dc.JSON()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal design context: %w", err)
	}
	questions, err := json.Marshal(s.questions)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal questions: %w", err)
	}
	assumptions, err := json.Marshal(s.assumptions)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal assumptions: %w", err)
	}
	usage, err := json.Marshal(s.tracker.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal usage: %w", err)
	}
	return &persistence.Session{
		ID:          s.id,
		State:       string(s.state),
		NextStage:   s.nextStage,
		Input:       input,
		Context:     ctx,
		Answers:     s.answers,
		Questions:   questions,
		Assumptions: assumptions,
		Usage:       usage,
	}, nil
}

func sessionFromRecord(rec *persistence.Session, cfg budget.Config) (*session, error) {
	s := &session{
		id:          rec.ID,
		state:       State(rec.State),
		nextStage:   rec.NextStage,
		answers:     rec.Answers,
		questions:   []pipeline.OpenQuestion{},
		assumptions: []pipeline.Assumption{},
		tracker:     budget.NewTracker(cfg),
	}
	if s.answers == nil {
		s.answers = map[string]string{}
	}
	if err := json.Unmarshal(rec.Input, &s.input); err != nil {
		return nil, fmt.Errorf("failed to decode input of session %s: %w", rec.ID, err)
	}
	s.dc = &design.Context{}
	if err := json.Unmarshal(rec.Context, s.dc); err != nil {
		return nil, fmt.Errorf("failed to decode context of session %s: %w", rec.ID, err)
	}
	s.dc.Input.Answers = s.answers
	if s.dc.Conflicts == nil {
		s.dc.Conflicts = []design.Conflict{}
	}
	if s.dc.Fallbacks == nil {
		s.dc.Fallbacks = []string{}
	}
	if err := json.Unmarshal(rec.Questions, &s.questions); err != nil {
		return nil, fmt.Errorf("failed to decode questions of session %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal(rec.Assumptions, &s.assumptions); err != nil {
		return nil, fmt.Errorf("failed to decode assumptions of session %s: %w", rec.ID, err)
	}
	var snap budget.Snapshot
	if err := json.Unmarshal(rec.Usage, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode usage of session %s: %w", rec.ID, err)
	}
	s.tracker.Restore(snap)
	return s, nil
}
