package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floorplanner/pkg/agent"
	"floorplanner/pkg/agent/llm"
	"floorplanner/pkg/agent/llmerrors"
	"floorplanner/pkg/budget"
	"floorplanner/pkg/design"
	"floorplanner/pkg/schema"
)

type sizerIn struct {
	Width float64
	Skip  bool
	Panic bool
}

type sizerOut struct {
	Width float64 `json:"width"`
	Note  string  `json:"note"`
}

// sizer owns width; the model only contributes a note.
type sizer struct{}

func (sizer) Name() string { return "sizer" }

func (sizer) ValidateInput(in sizerIn) error {
	if in.Width < 0 {
		return errors.New("width must not be negative")
	}
	return nil
}

func (sizer) Precompute(in sizerIn) (sizerOut, error) {
	if in.Panic {
		panic("boom")
	}
	return sizerOut{Width: in.Width}, nil
}

func (sizer) BuildPrompt(in sizerIn, pre sizerOut, view string) (string, error) {
	if in.Skip {
		return "", nil
	}
	return fmt.Sprintf("Width is fixed at %.1f ft. Add a note.", pre.Width), nil
}

func (sizer) Reconcile(_ sizerIn, pre sizerOut, model *sizerOut) (sizerOut, []design.Conflict) {
	out := pre
	if model == nil {
		out.Note = "deterministic"
		return out, nil
	}
	out.Note = model.Note
	var conflicts []design.Conflict
	if model.Width != 0 && model.Width != pre.Width {
		conflicts = append(conflicts, design.Conflict{
			Agent: "sizer", Field: "width",
			Existing: fmt.Sprint(pre.Width), Proposed: fmt.Sprint(model.Width),
			Resolution: "kept deterministic value",
		})
	}
	return out, conflicts
}

func (sizer) Review(_ sizerIn, out sizerOut) ([]OpenQuestion, []Assumption) {
	var qs []OpenQuestion
	if out.Width == 0 {
		qs = append(qs, OpenQuestion{ID: "width", Type: Mandatory, Text: "What is the width?"})
	}
	return qs, []Assumption{{ID: "units", Risk: RiskLow, Text: "Lengths are in feet"}}
}

func testSchemas() *schema.Registry {
	reg := schema.NewRegistry()
	reg.Register("sizer", schema.Object(
		schema.Req("width", schema.Number().Positive()),
		schema.Opt("note", schema.String()),
	))
	return reg
}

func reply(content string) llm.CompletionResponse {
	return llm.CompletionResponse{Content: content, StopReason: "end_turn", Usage: llm.Usage{InputTokens: 10, OutputTokens: 5}}
}

func newEnv(client llm.LLMClient) *Env {
	return &Env{
		Client:  client,
		Budget:  budget.NewTracker(budget.Config{Limit: 100000}),
		Schemas: testSchemas(),
	}
}

func TestExecuteDeterministicValuesWin(t *testing.T) {
	mock := agent.NewMockLLMClient([]llm.CompletionResponse{
		reply("```json\n{\"width\": 99, \"note\": \"south light\", \"open_questions\": [{\"key\": \"soil\", \"text\": \"Soil type?\", \"type\": \"mandatory\"}], \"assumptions\": [{\"key\": \"units\", \"text\": \"metres\", \"risk\": \"high\"}]}\n```"),
	}, nil)
	env := newEnv(mock)

	res := Execute(context.Background(), env, sizer{}, sizerIn{Width: 12})

	require.True(t, res.Success, "error: %+v", res.Error)
	require.NotNil(t, res.Data)
	assert.Nil(t, res.Error)
	assert.InDelta(t, 12, res.Data.Width, 1e-9)
	assert.Equal(t, "south light", res.Data.Note)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "99", res.Conflicts[0].Proposed)

	require.Len(t, res.OpenQuestions, 1)
	assert.Equal(t, "sizer.soil", res.OpenQuestions[0].ID)
	assert.Equal(t, Mandatory, res.OpenQuestions[0].Type)
	assert.True(t, HasUnansweredMandatory(res.OpenQuestions))

	// The agent's own assumption wins over the model's on the same key.
	require.Len(t, res.Assumptions, 1)
	assert.Equal(t, RiskLow, res.Assumptions[0].Risk)

	assert.Equal(t, 15, res.Usage.Total)
	assert.Equal(t, 15, env.Budget.TotalUsed())

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].JSONMode)
	assert.Contains(t, reqs[0].Messages[1].Content, "12.0 ft")
}

func TestExecuteAppliesExistingAnswers(t *testing.T) {
	mock := agent.NewMockLLMClient([]llm.CompletionResponse{
		reply(`{"width": 12, "open_questions": [{"key": "soil", "text": "Soil type?", "type": "mandatory"}]}`),
	}, nil)
	env := newEnv(mock)
	env.Answers = map[string]string{"sizer.soil": "clay"}

	res := Execute(context.Background(), env, sizer{}, sizerIn{Width: 12})

	require.True(t, res.Success)
	require.Len(t, res.OpenQuestions, 1)
	assert.Equal(t, "clay", res.OpenQuestions[0].Answer)
	assert.False(t, HasUnansweredMandatory(res.OpenQuestions))
	assert.Empty(t, Unanswered(res.OpenQuestions))
}

func TestExecuteSkipsModelForEmptyPrompt(t *testing.T) {
	mock := agent.NewMockLLMClient(nil, nil)
	res := Execute(context.Background(), newEnv(mock), sizer{}, sizerIn{Width: 10, Skip: true})

	require.True(t, res.Success)
	assert.Equal(t, "deterministic", res.Data.Note)
	assert.Equal(t, 0, mock.Calls())
	assert.Equal(t, 0, res.Usage.Total)
}

func TestExecuteBudgetPreflightRefusesWithoutCalling(t *testing.T) {
	mock := agent.NewMockLLMClient([]llm.CompletionResponse{reply(`{"width": 12}`)}, nil)
	env := newEnv(mock)
	env.Budget = budget.NewTracker(budget.Config{Limit: 50})
	env.ReserveOutputTokens = 100

	res := Execute(context.Background(), env, sizer{}, sizerIn{Width: 12})

	require.False(t, res.Success)
	assert.Nil(t, res.Data)
	assert.Equal(t, CodeTokenBudgetExceeded, res.Error.Code)
	assert.Equal(t, 0, mock.Calls())
	assert.Equal(t, 0, env.Budget.TotalUsed())
}

func TestExecuteFailures(t *testing.T) {
	tests := []struct {
		name      string
		in        sizerIn
		content   string
		err       error
		code      string
		retryable bool
		contains  string
	}{
		{name: "invalid input", in: sizerIn{Width: -1}, code: CodeInputInvalid},
		{name: "parse error carries snippet", in: sizerIn{Width: 12}, content: "I cannot help with that", code: CodeParseError, contains: "I cannot help"},
		{name: "model type mismatch", in: sizerIn{Width: 12}, content: `{"width": "wide"}`, code: CodeSchemaInvalid, contains: "width"},
		{name: "reconciled output invalid", in: sizerIn{Width: 0}, content: `{"note": "x"}`, code: CodeSchemaInvalid},
		{
			name: "overloaded is retryable", in: sizerIn{Width: 12},
			err:  llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeServiceUnavailable, 529, "overloaded"),
			code: "HTTP_529", retryable: true,
		},
		{
			name: "auth is not retryable", in: sizerIn{Width: 12},
			err:  llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeAuth, 401, "bad key"),
			code: "HTTP_401",
		},
		{
			name: "exhausted quota is not retryable", in: sizerIn{Width: 12},
			err:  llmerrors.FromAPI("openai", 429, "insufficient_quota", "quota", nil),
			code: "HTTP_429",
		},
		{
			name: "empty reply is retryable", in: sizerIn{Width: 12},
			err:  llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeEmptyResponse, 200, "empty"),
			code: "EMPTY_RESPONSE", retryable: true,
		},
		{name: "cancelled", in: sizerIn{Width: 12}, err: context.Canceled, code: CodeCancelled},
		{name: "panic recovered", in: sizerIn{Width: 12, Panic: true}, code: CodeAgentError, contains: "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := agent.NewMockLLMClient([]llm.CompletionResponse{reply(tt.content)}, []error{tt.err})
			res := Execute(context.Background(), newEnv(mock), sizer{}, tt.in)

			require.False(t, res.Success)
			assert.Nil(t, res.Data)
			require.NotNil(t, res.Error)
			assert.Equal(t, tt.code, res.Error.Code)
			assert.Equal(t, tt.retryable, res.Error.Retryable)
			if tt.contains != "" {
				assert.Contains(t, res.Error.Message, tt.contains)
			}
			assert.NotNil(t, res.OpenQuestions)
			assert.NotNil(t, res.Assumptions)
			assert.NotNil(t, res.Conflicts)
		})
	}
}

func TestParseJSON(t *testing.T) {
	raw, err := ParseJSON("Here you go:\n```json\n{\"a\": 1}\n```\nThanks")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1}`, string(raw))

	raw, err = ParseJSON(`Sure! {"a": {"b": 2}} hope that helps`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": {"b": 2}}`, string(raw))

	_, err = ParseJSON(`[1, 2]`)
	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeParseError, se.Code)

	_, err = ParseJSON(strings.Repeat("x", 500))
	require.ErrorAs(t, err, &se)
	assert.Len(t, se.Snippet, snippetLen+3)
}

func TestSnippetKeepsRuneBoundary(t *testing.T) {
	text := "x" + strings.Repeat("é", 300)
	got := Snippet(text)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, text[:snippetLen-1]+"...", got)
}

func TestQuestionHelpers(t *testing.T) {
	assert.Equal(t, "a.k", QuestionID("a", "k"))
	assert.Equal(t, "a.k", QuestionID("a", "a.k"))

	qs := []OpenQuestion{
		NewQuestion("a", "one", Mandatory, "One?", ""),
		NewQuestion("a", "two", Optional, "Two?", ""),
	}
	assert.True(t, HasUnansweredMandatory(qs))
	assert.Equal(t, 1, ApplyAnswers(qs, map[string]string{"a.one": "yes", "a.two": " "}))
	assert.False(t, HasUnansweredMandatory(qs))
	assert.Equal(t, 0, ApplyAnswers(qs, map[string]string{"a.one": "yes"}))

	as := []Assumption{NewAssumption("a", "x", RiskHigh, "X", ""), NewAssumption("a", "y", RiskLow, "Y", "")}
	require.Len(t, HighRisk(as), 1)
	assert.Equal(t, "a.x", HighRisk(as)[0].ID)
}

func TestBindStage(t *testing.T) {
	input := func(dc *design.Context, _ map[string]string) (sizerIn, error) {
		if dc.Regulation == nil {
			return sizerIn{}, Missing("regulation")
		}
		return sizerIn{Width: dc.Regulation.Envelope.WidthFt}, nil
	}
	apply := func(dc *design.Context, out *sizerOut) {
		dc.Regulation.Notes = append(dc.Regulation.Notes, out.Note)
	}
	fallback := func(dc *design.Context) ([]Assumption, error) {
		return []Assumption{NewAssumption("sizer", "fallback", RiskHigh, "used default", "")}, nil
	}

	mock := agent.NewMockLLMClientFunc(func(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
		return reply(`{"width": 24, "note": "ok"}`), nil
	})
	stage := Bind[sizerIn, sizerOut](sizer{}, input, apply, fallback, "bogus")
	assert.Equal(t, "sizer", stage.Name())
	assert.Equal(t, PolicyHalt, stage.DefaultPolicy())

	dc := design.NewContext("s1", design.Input{Plot: design.PlotInput{Width: 29, Depth: 41}})
	rep := stage.Run(context.Background(), newEnv(mock), dc)
	require.False(t, rep.Success)
	assert.Equal(t, CodeMissingDependency, rep.Error.Code)
	assert.Equal(t, 0, mock.Calls())

	dc.Regulation = &design.Regulation{Envelope: design.Envelope{WidthFt: 24, DepthFt: 35.5, AreaSqft: 852}}
	rep = stage.Run(context.Background(), newEnv(mock), dc)
	require.True(t, rep.Success, "error: %+v", rep.Error)
	assert.Equal(t, []string{"ok"}, dc.Regulation.Notes)

	// The stage renders the context it was given into the prompt view.
	assert.Equal(t, 1, mock.Calls())

	as, err := stage.ApplyDefault(dc)
	require.NoError(t, err)
	assert.Equal(t, "sizer.fallback", as[0].ID)

	noDefault := Bind[sizerIn, sizerOut](sizer{}, input, apply, nil, PolicyUseDefault)
	_, err = noDefault.ApplyDefault(dc)
	assert.Error(t, err)
}
