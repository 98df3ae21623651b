// Package orchestrator sequences the planning stages over one DesignContext,
// applies failure policies, and halts when mandatory questions are open.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"floorplanner/pkg/agent/llm"
	"floorplanner/pkg/budget"
	"floorplanner/pkg/config"
	"floorplanner/pkg/design"
	"floorplanner/pkg/logx"
	"floorplanner/pkg/metrics"
	"floorplanner/pkg/persistence"
	"floorplanner/pkg/pipeline"
	"floorplanner/pkg/schema"
)

// ErrSessionNotFound is returned by Resume and Status for unknown sessions.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionBusy is returned when a session is already being advanced.
var ErrSessionBusy = errors.New("session is already running")

// StageFailure is the error returned when a stage fails under the halt policy
// or its default cannot be applied.
type StageFailure struct {
	Stage   string
	Code    string
	Message string
	Err     error
}

func (e *StageFailure) Error() string {
	return fmt.Sprintf("stage %s failed (%s): %s", e.Stage, e.Code, e.Message)
}

func (e *StageFailure) Unwrap() error { return e.Err }

// Options configures an Orchestrator. Client and Schemas are required; Store
// and Metrics are optional.
type Options struct {
	Client    llm.LLMClient
	Config    config.Config
	Schemas   *schema.Registry
	Store     *persistence.Store
	Metrics   *metrics.Pipeline
	Estimator *budget.Estimator
	Logger    *logx.Logger

	// NewID generates session ids. Defaults to random UUIDs.
	NewID func() string
}

type registered struct {
	stage  pipeline.Stage
	policy pipeline.Policy
}

// Orchestrator runs registered stages in order. It is safe for concurrent
// use across sessions; a single session is advanced by one caller at a time.
type Orchestrator struct {
	client    llm.LLMClient
	cfg       config.Config
	schemas   *schema.Registry
	store     *persistence.Store
	metrics   *metrics.Pipeline
	estimator *budget.Estimator
	logger    *logx.Logger
	newID     func() string

	stages []registered
	index  map[string]int

	mu       sync.Mutex
	sessions map[string]*session
}

// New creates an orchestrator with no stages registered.
func New(opts Options) (*Orchestrator, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("orchestrator needs an LLM client")
	}
	if opts.Schemas == nil {
		return nil, fmt.Errorf("orchestrator needs a schema registry")
	}
	if opts.Logger == nil {
		opts.Logger = logx.NewLogger("orchestrator")
	}
	if opts.Estimator == nil {
		opts.Estimator = budget.DefaultEstimator()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Orchestrator{
		client:    opts.Client,
		cfg:       opts.Config,
		schemas:   opts.Schemas,
		store:     opts.Store,
		metrics:   opts.Metrics,
		estimator: opts.Estimator,
		logger:    opts.Logger,
		newID:     opts.NewID,
		index:     map[string]int{},
		sessions:  map[string]*session{},
	}, nil
}

// Register appends stage to the run order. The failure policy is, in order of
// precedence: the explicit override, the config's agents.<name>.on_failure,
// and the stage's own default.
func (o *Orchestrator) Register(stage pipeline.Stage, override ...pipeline.Policy) error {
	name := stage.Name()
	if _, dup := o.index[name]; dup {
		return fmt.Errorf("stage %s is already registered", name)
	}

	policy := stage.DefaultPolicy()
	if p := pipeline.Policy(o.cfg.AgentOnFailure(name)); p != "" {
		policy = p
	}
	if len(override) > 0 && override[0] != "" {
		policy = override[0]
	}
	if !policy.Valid() {
		return fmt.Errorf("stage %s: unknown failure policy %q", name, policy)
	}

	o.index[name] = len(o.stages)
	o.stages = append(o.stages, registered{stage: stage, policy: policy})
	return nil
}

// StageNames returns the registered stages in run order.
func (o *Orchestrator) StageNames() []string {
	names := make([]string, len(o.stages))
	for i, r := range o.stages {
		names[i] = r.stage.Name()
	}
	return names
}

// Policy returns the effective failure policy of a registered stage.
func (o *Orchestrator) Policy(stage string) (pipeline.Policy, bool) {
	i, ok := o.index[stage]
	if !ok {
		return "", false
	}
	return o.stages[i].policy, true
}

// Run starts a new session for in and advances it until it completes, halts
// or fails. A failed run returns the outcome together with a *StageFailure.
func (o *Orchestrator) Run(ctx context.Context, in design.Input) (*Outcome, error) {
	if len(o.stages) == 0 {
		return nil, fmt.Errorf("no stages registered")
	}

	sess := newSession(o.newID(), in, o.budgetConfig())
	sess.busy = true
	o.mu.Lock()
	o.sessions[sess.id] = sess
	o.mu.Unlock()
	defer o.release(sess)

	if err := o.moveTo(sess, StateRunning); err != nil {
		return nil, err
	}
	o.logger.Info("session %s started with %d stages", sess.id, len(o.stages))
	return o.advance(ctx, sess, 0)
}

// Resume merges answers into a halted session and continues it from the
// earliest stage whose question was answered, or from the stage it halted at.
func (o *Orchestrator) Resume(ctx context.Context, sessionID string, answers map[string]string) (*Outcome, error) {
	sess, err := o.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer o.release(sess)

	if err := transition(sess.state, StateRunning); err != nil {
		return nil, fmt.Errorf("cannot resume session %s: %w", sessionID, err)
	}

	o.mu.Lock()
	changed := sess.mergeAnswers(answers)
	start := o.restartIndex(sess, changed)
	rerun := map[string]bool{}
	for _, r := range o.stages[start:] {
		rerun[r.stage.Name()] = true
	}
	sess.forget(rerun)
	o.mu.Unlock()

	if err := o.moveTo(sess, StateRunning); err != nil {
		return nil, err
	}
	o.logger.Info("session %s resumed at %s with %d new answer(s)", sess.id, o.stages[start].stage.Name(), len(changed))
	return o.advance(ctx, sess, start)
}

// Status returns the current outcome of a session without advancing it.
func (o *Orchestrator) Status(_ context.Context, sessionID string) (*Outcome, error) {
	sess, err := o.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.outcome(sess, nil), nil
}

// restartIndex picks the earliest stage owning a newly answered question,
// bounded by the stage the session halted at.
func (o *Orchestrator) restartIndex(sess *session, changed []string) int {
	start := len(o.stages) - 1
	if i, ok := o.index[sess.nextStage]; ok {
		start = i
	}
	for _, id := range changed {
		owner, _, found := strings.Cut(id, ".")
		if !found {
			continue
		}
		if i, ok := o.index[owner]; ok && i < start {
			start = i
		}
	}
	return start
}

func (o *Orchestrator) advance(ctx context.Context, sess *session, start int) (*Outcome, error) {
	ctx = logx.WithSessionID(ctx, sess.id)
	began := time.Now()
	reports := []pipeline.StageReport{}

	env := &pipeline.Env{
		Client:              o.client,
		Budget:              sess.tracker,
		Estimator:           o.estimator,
		Schemas:             o.schemas,
		Answers:             sess.answers,
		Temperature:         float32(o.cfg.Temperature),
		ReserveOutputTokens: o.cfg.Budget.ReserveOutputTokens,
	}

	for i := start; i < len(o.stages); i++ {
		reg := o.stages[i]
		name := reg.stage.Name()

		if err := ctx.Err(); err != nil {
			rep := pipeline.StageReport{Stage: name, Error: &pipeline.AgentError{Code: pipeline.CodeCancelled, Message: err.Error()}}
			return o.fail(sess, reports, rep, err)
		}

		stageEnv := *env
		stageEnv.MaxTokens = o.cfg.AgentMaxTokens(name)
		rep := reg.stage.Run(ctx, &stageEnv, sess.dc)
		fallback := false

		if !rep.Success {
			if ctx.Err() != nil || reg.policy == pipeline.PolicyHalt {
				o.recordRun(sess, rep, false)
				reports = append(reports, rep)
				return o.fail(sess, reports, rep, ctx.Err())
			}

			as, err := reg.stage.ApplyDefault(sess.dc)
			if err != nil {
				o.recordRun(sess, rep, false)
				reports = append(reports, rep)
				return o.fail(sess, reports, rep, fmt.Errorf("default for %s: %w", name, err))
			}
			fallback = true
			sess.dc.AddFallback(name)
			as = append(as, pipeline.NewAssumption(name, "fallback", pipeline.RiskHigh,
				fmt.Sprintf("%s failed (%s); standard defaults were used instead", name, rep.Error.Code),
				rep.Error.Message))
			rep.OpenQuestions = []pipeline.OpenQuestion{}
			rep.Assumptions = as
			o.metrics.ObserveFallback(name)
			o.logger.Warn("session %s: %s failed with %s, continuing with defaults", sess.id, name, rep.Error.Code)
		}

		o.recordRun(sess, rep, fallback)
		reports = append(reports, rep)

		o.mu.Lock()
		sess.replaceStage(name, rep.OpenQuestions, rep.Assumptions)
		if i+1 < len(o.stages) {
			sess.nextStage = o.stages[i+1].stage.Name()
		} else {
			sess.nextStage = ""
		}
		o.mu.Unlock()

		if o.cfg.HaltEarly && pipeline.HasUnansweredMandatory(rep.OpenQuestions) {
			return o.halt(ctx, sess, reports, name)
		}
		if err := o.moveTo(sess, StateRunning); err != nil {
			return nil, err
		}
	}

	if open := pipeline.Unanswered(sess.questions); len(open) > 0 {
		return o.halt(ctx, sess, reports, open[0].Agent)
	}

	o.mu.Lock()
	sess.nextStage = ""
	o.mu.Unlock()
	if err := o.moveTo(sess, StateComplete); err != nil {
		return nil, err
	}
	logx.PipelineComplete(ctx, time.Since(began), sess.tracker.TotalUsed())
	o.metrics.ObserveRun(string(StateComplete), o.budgetRatio(sess))

	o.mu.Lock()
	defer o.mu.Unlock()
	return o.outcome(sess, reports), nil
}

func (o *Orchestrator) halt(ctx context.Context, sess *session, reports []pipeline.StageReport, stage string) (*Outcome, error) {
	o.mu.Lock()
	sess.nextStage = stage
	unanswered := len(pipeline.Unanswered(sess.questions))
	o.mu.Unlock()

	if err := o.moveTo(sess, StateHalted); err != nil {
		return nil, err
	}
	logx.PipelineHalted(ctx, stage, unanswered)
	o.metrics.ObserveHalt()
	o.metrics.ObserveRun(string(StateHalted), o.budgetRatio(sess))

	o.mu.Lock()
	defer o.mu.Unlock()
	return o.outcome(sess, reports), nil
}

func (o *Orchestrator) fail(sess *session, reports []pipeline.StageReport, rep pipeline.StageReport, cause error) (*Outcome, error) {
	o.mu.Lock()
	sess.nextStage = rep.Stage
	o.mu.Unlock()

	if err := o.moveTo(sess, StateFailed); err != nil {
		return nil, err
	}
	o.metrics.ObserveRun(string(StateFailed), o.budgetRatio(sess))

	failure := &StageFailure{Stage: rep.Stage, Err: cause}
	if rep.Error != nil {
		failure.Code = rep.Error.Code
		failure.Message = rep.Error.Message
	}
	o.logger.Error("session %s failed at %s: %s", sess.id, rep.Stage, failure.Message)

	o.mu.Lock()
	defer o.mu.Unlock()
	return o.outcome(sess, reports), failure
}

// moveTo applies a state transition and persists the session.
func (o *Orchestrator) moveTo(sess *session, to State) error {
	o.mu.Lock()
	if err := transition(sess.state, to); err != nil {
		o.mu.Unlock()
		return err
	}
	sess.state = to
	o.mu.Unlock()
	return o.persist(sess)
}

func (o *Orchestrator) persist(sess *session) error {
	if o.store == nil {
		return nil
	}
	o.mu.Lock()
	rec, err := sess.record()
	o.mu.Unlock()
	if err != nil {
		return err
	}
	if err := o.store.SaveSession(rec); err != nil {
		return fmt.Errorf("failed to persist session %s: %w", sess.id, err)
	}
	return nil
}

func (o *Orchestrator) recordRun(sess *session, rep pipeline.StageReport, fallback bool) {
	outcome := metrics.OutcomeSuccess
	switch {
	case fallback:
		outcome = metrics.OutcomeFallback
	case !rep.Success:
		outcome = metrics.OutcomeFailure
	}
	o.metrics.ObserveStage(rep.Stage, outcome, rep.Duration, rep.Usage.Total)

	if o.store == nil {
		return
	}
	run := &persistence.AgentRun{
		SessionID:    sess.id,
		Agent:        rep.Stage,
		Success:      rep.Success,
		Fallback:     fallback,
		Duration:     rep.Duration,
		InputTokens:  rep.Usage.Input,
		OutputTokens: rep.Usage.Output,
	}
	if rep.Error != nil {
		run.ErrorCode = rep.Error.Code
		run.ErrorMessage = rep.Error.Message
	}
	if _, err := o.store.RecordAgentRun(run); err != nil {
		o.logger.Warn("session %s: %v", sess.id, err)
	}
}

// lookup finds a session in memory, then in the store.
func (o *Orchestrator) lookup(id string) (*session, error) {
	o.mu.Lock()
	sess, ok := o.sessions[id]
	o.mu.Unlock()
	if ok {
		return sess, nil
	}
	if o.store == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	rec, err := o.store.LoadSession(id)
	if errors.Is(err, persistence.ErrSessionNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	sess, err = sessionFromRecord(rec, o.budgetConfig())
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if existing, ok := o.sessions[id]; ok {
		return existing, nil
	}
	o.sessions[id] = sess
	return sess, nil
}

func (o *Orchestrator) acquire(id string) (*session, error) {
	sess, err := o.lookup(id)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if sess.busy {
		return nil, fmt.Errorf("%w: %s", ErrSessionBusy, id)
	}
	sess.busy = true
	return sess, nil
}

func (o *Orchestrator) release(sess *session) {
	o.mu.Lock()
	sess.busy = false
	o.mu.Unlock()
}

func (o *Orchestrator) budgetConfig() budget.Config {
	return budget.Config{
		Limit:          o.cfg.Budget.Limit,
		WarningRatio:   o.cfg.Budget.WarningRatio,
		SummarizeRatio: o.cfg.Budget.SummarizeRatio,
	}
}

func (o *Orchestrator) budgetRatio(sess *session) float64 {
	return sess.tracker.UsagePercent() / 100
}

// Sessions lists persisted sessions, newest first. Without a store it lists
// the sessions held in memory.
func (o *Orchestrator) Sessions(state State) ([]persistence.SessionSummary, error) {
	if o.store != nil {
		return o.store.ListSessions(string(state), 0)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	out := []persistence.SessionSummary{}
	for _, s := range o.sessions {
		if state == "" || s.state == state {
			out = append(out, persistence.SessionSummary{ID: s.id, State: string(s.state), NextStage: s.nextStage})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
