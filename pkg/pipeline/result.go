// Package pipeline defines the agent contract, the shared execution template
// and the Stage binding the orchestrator sequences.
package pipeline

import (
	"fmt"
	"strings"
	"time"

	"floorplanner/pkg/design"
)

// Step error codes.
const (
	CodeInputInvalid        = "INPUT_INVALID"
	CodeMissingDependency   = "MISSING_DEPENDENCY"
	CodeTokenBudgetExceeded = "TOKEN_BUDGET_EXCEEDED"
	CodeParseError          = "PARSE_ERROR"
	CodeSchemaInvalid       = "SCHEMA_INVALID"
	CodeAgentError          = "AGENT_ERROR"
	CodeCancelled           = "CANCELLED"
)

// QuestionType marks whether an open question blocks completion.
type QuestionType string

const (
	Mandatory QuestionType = "mandatory"
	Optional  QuestionType = "optional"
)

// Risk grades an assumption.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// OpenQuestion is something the pipeline could not resolve on its own.
type OpenQuestion struct {
	ID      string       `json:"id"`
	Agent   string       `json:"agent"`
	Text    string       `json:"text"`
	Type    QuestionType `json:"type"`
	Reason  string       `json:"reason,omitempty"`
	Default string       `json:"default,omitempty"`
	Options []string     `json:"options,omitempty"`
	Answer  string       `json:"answer,omitempty"`
}

// Answered reports whether the question carries an answer.
func (q OpenQuestion) Answered() bool {
	return strings.TrimSpace(q.Answer) != ""
}

// Assumption is a value filled in without confirmation.
type Assumption struct {
	ID    string `json:"id"`
	Agent string `json:"agent"`
	Text  string `json:"text"`
	Risk  Risk   `json:"risk"`
	Basis string `json:"basis,omitempty"`
}

// Usage is the token count of one agent call.
type Usage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// AgentError is the failure half of an AgentResult.
type AgentError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// AgentResult is the outcome of one agent invocation. Exactly one of Data and
// Error is set; the slices are never nil.
type AgentResult[T any] struct {
	Agent         string            `json:"agent"`
	Success       bool              `json:"success"`
	Duration      time.Duration     `json:"duration"`
	Usage         Usage             `json:"usage"`
	Data          *T                `json:"data,omitempty"`
	Error         *AgentError       `json:"error,omitempty"`
	OpenQuestions []OpenQuestion    `json:"open_questions"`
	Assumptions   []Assumption      `json:"assumptions"`
	Conflicts     []design.Conflict `json:"conflicts"`
}

func newResult[T any](agent string) AgentResult[T] {
	return AgentResult[T]{
		Agent:         agent,
		OpenQuestions: []OpenQuestion{},
		Assumptions:   []Assumption{},
		Conflicts:     []design.Conflict{},
	}
}

// fail turns the result into a failure, dropping any data.
func (r *AgentResult[T]) fail(err *StepError) {
	r.Success = false
	r.Data = nil
	r.Error = &AgentError{Code: err.Code, Message: err.Error(), Retryable: err.Retryable}
}

// StepError is the error raised by one step of Execute.
type StepError struct {
	Code      string
	Retryable bool
	Snippet   string
	Err       error
}

func (e *StepError) Error() string {
	msg := e.Code
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Snippet != "" {
		msg += fmt.Sprintf(" (response: %q)", e.Snippet)
	}
	return msg
}

func (e *StepError) Unwrap() error { return e.Err }

// NewStepError builds a non-retryable step error.
func NewStepError(code string, format string, args ...any) *StepError {
	return &StepError{Code: code, Err: fmt.Errorf(format, args...)}
}

// QuestionID namespaces key under agent.
func QuestionID(agent, key string) string {
	if strings.HasPrefix(key, agent+".") {
		return key
	}
	return agent + "." + key
}

// NewQuestion builds a question with a namespaced id.
func NewQuestion(agent, key string, qt QuestionType, text, reason string) OpenQuestion {
	return OpenQuestion{ID: QuestionID(agent, key), Agent: agent, Type: qt, Text: text, Reason: reason}
}

// NewAssumption builds an assumption with a namespaced id.
func NewAssumption(agent, key string, risk Risk, text, basis string) Assumption {
	return Assumption{ID: QuestionID(agent, key), Agent: agent, Risk: risk, Text: text, Basis: basis}
}

// HasUnansweredMandatory is the halt check.
func HasUnansweredMandatory(qs []OpenQuestion) bool {
	for _, q := range qs {
		if q.Type == Mandatory && !q.Answered() {
			return true
		}
	}
	return false
}

// Unanswered returns the mandatory questions still lacking an answer.
func Unanswered(qs []OpenQuestion) []OpenQuestion {
	out := []OpenQuestion{}
	for _, q := range qs {
		if q.Type == Mandatory && !q.Answered() {
			out = append(out, q)
		}
	}
	return out
}

// ApplyAnswers copies answers onto matching questions and returns how many
// questions changed.
func ApplyAnswers(qs []OpenQuestion, answers map[string]string) int {
	changed := 0
	for i := range qs {
		if a, ok := answers[qs[i].ID]; ok && strings.TrimSpace(a) != "" && qs[i].Answer != a {
			qs[i].Answer = a
			changed++
		}
	}
	return changed
}

// HighRisk filters assumptions down to the high-risk ones.
func HighRisk(as []Assumption) []Assumption {
	out := []Assumption{}
	for _, a := range as {
		if a.Risk == RiskHigh {
			out = append(out, a)
		}
	}
	return out
}
