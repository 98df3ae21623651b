package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"floorplanner/pkg/agent/llm"
	"floorplanner/pkg/agent/llmerrors"
	"floorplanner/pkg/agent/middleware/resilience/retry"
	"floorplanner/pkg/budget"
	"floorplanner/pkg/logx"
)

// Execute runs one agent through the fixed step order:
//
//	validate input -> precompute -> build prompt -> budget pre-flight ->
//	model call -> parse -> partial schema check -> reconcile ->
//	schema validation -> questions/assumptions -> result
//
// Every failure, panics included, comes back as a failed AgentResult.
func Execute[In, Out any](ctx context.Context, env *Env, agent Agent[In, Out], in In) (res AgentResult[Out]) {
	name := agent.Name()
	start := time.Now()
	res = newResult[Out](name)
	ctx = logx.WithAgentID(ctx, name)
	logx.AgentStart(ctx, name)

	defer func() {
		if r := recover(); r != nil {
			res.fail(&StepError{Code: CodeAgentError, Err: fmt.Errorf("agent panicked: %v", r)})
		}
		res.Duration = time.Since(start)
		if res.Success {
			logx.AgentComplete(ctx, name, res.Duration, res.Usage.Total)
		} else {
			logx.AgentFailed(ctx, name, res.Error.Code, res.Error.Message)
		}
	}()

	out, notes, err := run(ctx, env, agent, in, &res)
	if err != nil {
		res.fail(err)
		return res
	}

	questions, assumptions := agent.Review(in, out)
	res.OpenQuestions = mergeQuestions(name, questions, notes)
	res.Assumptions = mergeAssumptions(name, assumptions, notes)
	ApplyAnswers(res.OpenQuestions, env.Answers)

	res.Success = true
	res.Data = &out
	return res
}

func run[In, Out any](ctx context.Context, env *Env, agent Agent[In, Out], in In, res *AgentResult[Out]) (Out, *modelNotes, *StepError) {
	var zero Out
	name := agent.Name()

	if err := agent.ValidateInput(in); err != nil {
		return zero, nil, asStepError(err, CodeInputInvalid)
	}

	pre, err := agent.Precompute(in)
	if err != nil {
		return zero, nil, asStepError(err, CodeInputInvalid)
	}

	view, err := env.view()
	if err != nil {
		return zero, nil, asStepError(err, CodeAgentError)
	}
	prompt, err := agent.BuildPrompt(in, pre, view)
	if err != nil {
		return zero, nil, asStepError(err, CodeAgentError)
	}

	var proposal *Out
	var notes *modelNotes
	if strings.TrimSpace(prompt) != "" {
		raw, serr := callModel(ctx, env, agent, prompt, res)
		if serr != nil {
			return zero, nil, serr
		}

		if errs := env.Schemas.ValidatePartial(name, raw); len(errs) > 0 {
			return zero, nil, &StepError{Code: CodeSchemaInvalid, Err: fmt.Errorf("model output: %w", errs), Snippet: Snippet(string(raw))}
		}

		var decoded Out
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return zero, nil, &StepError{Code: CodeParseError, Err: fmt.Errorf("decode model output: %w", err), Snippet: Snippet(string(raw))}
		}
		proposal = &decoded

		notes = &modelNotes{}
		if err := json.Unmarshal(raw, notes); err != nil {
			logx.Debug(ctx, name, "ignoring malformed open_questions/assumptions: %v", err)
			notes = nil
		}
	}

	out, conflicts := agent.Reconcile(in, pre, proposal)
	if conflicts != nil {
		res.Conflicts = conflicts
	}

	if errs := env.Schemas.Validate(name, out); len(errs) > 0 {
		return zero, nil, &StepError{Code: CodeSchemaInvalid, Err: errs}
	}
	return out, notes, nil
}

func callModel[In, Out any](ctx context.Context, env *Env, agent Agent[In, Out], prompt string, res *AgentResult[Out]) (json.RawMessage, *StepError) {
	name := agent.Name()

	system := DefaultSystemPrompt
	if sp, ok := agent.(SystemPrompter); ok {
		system = system + "\n\n" + sp.SystemPrompt()
	}
	req := llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage(system),
		llm.NewUserMessage(prompt),
	})
	req.JSONMode = true
	if env.MaxTokens > 0 {
		req.MaxTokens = env.MaxTokens
	}
	if env.Temperature > 0 {
		req.Temperature = env.Temperature
	}

	reserve := env.ReserveOutputTokens
	if reserve <= 0 {
		reserve = req.MaxTokens
	}
	estimate := env.estimator().CountAll(system, prompt) + reserve
	if env.Budget != nil && !env.Budget.CanProceed(estimate) {
		return nil, &StepError{
			Code: CodeTokenBudgetExceeded,
			Err:  fmt.Errorf("estimated %d tokens exceeds remaining budget %d", estimate, env.Budget.Remaining()),
		}
	}

	if env.Client == nil {
		return nil, NewStepError(CodeAgentError, "no model client configured")
	}
	resp, err := env.Client.Complete(ctx, req)
	if err != nil {
		return nil, classifyModelError(err)
	}

	res.Usage = Usage{Input: resp.Usage.InputTokens, Output: resp.Usage.OutputTokens, Total: resp.Usage.Total()}
	if env.Budget != nil {
		env.Budget.Track(name, budget.Usage{Input: resp.Usage.InputTokens, Output: resp.Usage.OutputTokens})
	}
	if env.Budget != nil && env.Budget.IsWarningLevel() {
		logx.FromContext(ctx, name).Warn("token budget at %.0f%%", env.Budget.UsagePercent())
	}

	raw, err := ParseJSON(resp.Content)
	if err != nil {
		var se *StepError
		if errors.As(err, &se) {
			return nil, se
		}
		return nil, &StepError{Code: CodeParseError, Err: err}
	}
	return raw, nil
}

// classifyModelError derives the step code and retryable flag from a model
// call failure: the HTTP status when known, else the llmerrors type.
func classifyModelError(err error) *StepError {
	if errors.Is(err, context.Canceled) {
		return &StepError{Code: CodeCancelled, Err: err}
	}

	var llmErr *llmerrors.Error
	if errors.As(err, &llmErr) {
		return &StepError{Code: llmErr.StepCode(), Retryable: retryableModelError(llmErr), Err: err}
	}

	return &StepError{Code: CodeAgentError, Retryable: retry.IsRetryableError(err), Err: err}
}

// retryableModelError trusts the class first. The status only decides for
// classes that do not settle it on their own.
func retryableModelError(e *llmerrors.Error) bool {
	switch e.Type {
	case llmerrors.ErrorTypeAuth, llmerrors.ErrorTypeBadPrompt:
		return false
	case llmerrors.ErrorTypeEmptyResponse, llmerrors.ErrorTypeRateLimit:
		return true
	}
	if e.StatusCode != 0 {
		return retryableStatus[e.StatusCode]
	}
	return e.IsRetryable()
}

//nolint:gochecknoglobals
var retryableStatus = map[int]bool{408: true, 429: true, 500: true, 502: true, 503: true, 504: true, 529: true}

func asStepError(err error, code string) *StepError {
	var se *StepError
	if errors.As(err, &se) {
		return se
	}
	return &StepError{Code: code, Err: err}
}

// mergeQuestions namespaces model-proposed questions and appends them after
// the agent's own. Agent questions win on id collisions.
func mergeQuestions(agent string, own []OpenQuestion, notes *modelNotes) []OpenQuestion {
	out := make([]OpenQuestion, 0, len(own))
	seen := make(map[string]bool)
	for _, q := range own {
		q.ID = QuestionID(agent, q.ID)
		q.Agent = agent
		if q.Type == "" {
			q.Type = Optional
		}
		if seen[q.ID] {
			continue
		}
		seen[q.ID] = true
		out = append(out, q)
	}
	if notes == nil {
		return out
	}
	for _, mq := range notes.OpenQuestions {
		if strings.TrimSpace(mq.Text) == "" {
			continue
		}
		key := mq.Key
		if key == "" {
			key = "q-" + uuid.NewString()[:8]
		}
		id := QuestionID(agent, key)
		if seen[id] {
			continue
		}
		seen[id] = true
		qt := Optional
		if QuestionType(mq.Type) == Mandatory {
			qt = Mandatory
		}
		out = append(out, OpenQuestion{
			ID: id, Agent: agent, Text: mq.Text, Type: qt,
			Reason: mq.Reason, Default: mq.Default, Options: mq.Options,
		})
	}
	return out
}

func mergeAssumptions(agent string, own []Assumption, notes *modelNotes) []Assumption {
	out := make([]Assumption, 0, len(own))
	seen := make(map[string]bool)
	for _, a := range own {
		a.ID = QuestionID(agent, a.ID)
		a.Agent = agent
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		out = append(out, a)
	}
	if notes == nil {
		return out
	}
	for _, ma := range notes.Assumptions {
		if strings.TrimSpace(ma.Text) == "" {
			continue
		}
		key := ma.Key
		if key == "" {
			key = "a-" + uuid.NewString()[:8]
		}
		id := QuestionID(agent, key)
		if seen[id] {
			continue
		}
		seen[id] = true
		risk := Risk(ma.Risk)
		if risk != RiskLow && risk != RiskHigh {
			risk = RiskMedium
		}
		out = append(out, Assumption{ID: id, Agent: agent, Text: ma.Text, Risk: risk, Basis: ma.Basis})
	}
	return out
}
