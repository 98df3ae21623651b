package pipeline

import (
	"floorplanner/pkg/agent/llm"
	"floorplanner/pkg/budget"
	"floorplanner/pkg/design"
	"floorplanner/pkg/schema"
)

// Agent is one typed pipeline step. Execute drives the methods in order; an
// agent never calls the model itself.
type Agent[In, Out any] interface {
	// Name is the schema-registry key and the question id namespace.
	Name() string

	// ValidateInput rejects malformed or incomplete input.
	ValidateInput(in In) error

	// Precompute returns the values code owns. They win over anything the
	// model says.
	Precompute(in In) (Out, error)

	// BuildPrompt returns the user prompt. An empty prompt skips the model.
	BuildPrompt(in In, pre Out, view string) (string, error)

	// Reconcile merges the model proposal (nil when the model was skipped)
	// with the precomputed values.
	Reconcile(in In, pre Out, model *Out) (Out, []design.Conflict)

	// Review derives open questions and assumptions from the final output.
	Review(in In, out Out) ([]OpenQuestion, []Assumption)
}

// SystemPrompter is implemented by agents that need their own system prompt.
type SystemPrompter interface {
	SystemPrompt() string
}

// DefaultSystemPrompt frames every model call.
const DefaultSystemPrompt = "You are a senior residential architect and structural consultant practising in Tamil Nadu, India. " +
	"Answer with a single JSON object that matches the requested shape. Use feet for lengths and square feet for areas. " +
	"Never change values marked as fixed. If something is unknown, list it under open_questions instead of guessing."

// Env is what Execute needs besides the agent and its input. One Env is built
// per session; stages get a shallow copy carrying their own view and limits.
type Env struct {
	Client              llm.LLMClient
	Budget              *budget.Tracker
	Estimator           *budget.Estimator
	Schemas             *schema.Registry
	Answers             map[string]string
	MaxTokens           int
	Temperature         float32
	ReserveOutputTokens int

	// ContextView renders the design context for prompts.
	ContextView func(compact bool) (string, error)
}

func (e *Env) view() (string, error) {
	if e.ContextView == nil {
		return "", nil
	}
	compact := e.Budget != nil && e.Budget.ShouldSummarize()
	return e.ContextView(compact)
}

func (e *Env) estimator() *budget.Estimator {
	if e.Estimator != nil {
		return e.Estimator
	}
	return budget.DefaultEstimator()
}

// modelNotes is the part of every model response that carries questions and
// assumptions the model wants to raise.
type modelNotes struct {
	OpenQuestions []struct {
		Key     string   `json:"key"`
		Text    string   `json:"text"`
		Type    string   `json:"type"`
		Reason  string   `json:"reason"`
		Default string   `json:"default"`
		Options []string `json:"options"`
	} `json:"open_questions"`
	Assumptions []struct {
		Key   string `json:"key"`
		Text  string `json:"text"`
		Risk  string `json:"risk"`
		Basis string `json:"basis"`
	} `json:"assumptions"`
}
