package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"floorplanner/pkg/design"
)

// Policy decides what the orchestrator does when a stage fails.
type Policy string

const (
	PolicyHalt       Policy = "halt"
	PolicyUseDefault Policy = "use_default"
)

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	return p == PolicyHalt || p == PolicyUseDefault
}

// ErrMissingDependency is returned by stage input functions when an upstream
// section of the design context has not been produced.
var ErrMissingDependency = errors.New("missing dependency")

// Missing wraps ErrMissingDependency with the absent section.
func Missing(section string) error {
	return fmt.Errorf("%w: %s", ErrMissingDependency, section)
}

// StageReport is the untyped view of an AgentResult the orchestrator keeps.
type StageReport struct {
	Stage         string            `json:"stage"`
	Success       bool              `json:"success"`
	Duration      time.Duration     `json:"duration"`
	Usage         Usage             `json:"usage"`
	Error         *AgentError       `json:"error,omitempty"`
	OpenQuestions []OpenQuestion    `json:"open_questions"`
	Assumptions   []Assumption      `json:"assumptions"`
	Conflicts     []design.Conflict `json:"conflicts"`
}

// Report drops the typed payload.
func (r AgentResult[T]) Report() StageReport {
	return StageReport{
		Stage:         r.Agent,
		Success:       r.Success,
		Duration:      r.Duration,
		Usage:         r.Usage,
		Error:         r.Error,
		OpenQuestions: r.OpenQuestions,
		Assumptions:   r.Assumptions,
		Conflicts:     r.Conflicts,
	}
}

// Stage is what the orchestrator registers and sequences.
type Stage interface {
	Name() string
	DefaultPolicy() Policy
	// Run executes the stage against dc and merges its output on success.
	Run(ctx context.Context, env *Env, dc *design.Context) StageReport
	// ApplyDefault writes the fallback output into dc.
	ApplyDefault(dc *design.Context) ([]Assumption, error)
}

// InputFunc slices the design context into an agent's input.
type InputFunc[In any] func(dc *design.Context, answers map[string]string) (In, error)

// ApplyFunc merges an agent's output into the design context.
type ApplyFunc[Out any] func(dc *design.Context, out *Out)

// DefaultFunc writes a fallback when the stage failed.
type DefaultFunc func(dc *design.Context) ([]Assumption, error)

type boundStage[In, Out any] struct {
	agent    Agent[In, Out]
	input    InputFunc[In]
	apply    ApplyFunc[Out]
	fallback DefaultFunc
	policy   Policy
}

// Bind adapts a typed agent into a Stage. fallback may be nil when the stage
// has no sensible default.
func Bind[In, Out any](agent Agent[In, Out], input InputFunc[In], apply ApplyFunc[Out], fallback DefaultFunc, policy Policy) Stage {
	if !policy.Valid() {
		policy = PolicyHalt
	}
	return &boundStage[In, Out]{agent: agent, input: input, apply: apply, fallback: fallback, policy: policy}
}

func (s *boundStage[In, Out]) Name() string          { return s.agent.Name() }
func (s *boundStage[In, Out]) DefaultPolicy() Policy { return s.policy }

func (s *boundStage[In, Out]) Run(ctx context.Context, env *Env, dc *design.Context) StageReport {
	in, err := s.input(dc, env.Answers)
	if err != nil {
		code := CodeInputInvalid
		if errors.Is(err, ErrMissingDependency) {
			code = CodeMissingDependency
		}
		res := newResult[Out](s.agent.Name())
		res.fail(asStepError(err, code))
		return res.Report()
	}

	stageEnv := *env
	if stageEnv.ContextView == nil {
		stageEnv.ContextView = dc.PromptView
	}

	res := Execute(ctx, &stageEnv, s.agent, in)
	if res.Success {
		s.apply(dc, res.Data)
		dc.AddConflicts(res.Conflicts)
	}
	return res.Report()
}

func (s *boundStage[In, Out]) ApplyDefault(dc *design.Context) ([]Assumption, error) {
	if s.fallback == nil {
		return nil, fmt.Errorf("stage %s has no default", s.agent.Name())
	}
	return s.fallback(dc)
}
