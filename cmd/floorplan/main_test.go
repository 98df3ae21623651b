package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floorplanner/pkg/agent"
	"floorplanner/pkg/agent/llm"
	llmmetrics "floorplanner/pkg/agent/middleware/metrics"
	"floorplanner/pkg/agents"
	"floorplanner/pkg/config"
	"floorplanner/pkg/design"
	"floorplanner/pkg/logx"
	"floorplanner/pkg/metrics"
	"floorplanner/pkg/orchestrator"
	"floorplanner/pkg/persistence"
	"floorplanner/pkg/pipeline"
)

const haltingInput = `{
  "plot": {"width": 29, "depth": 41, "unit": "feet", "road_side": "east"},
  "setbacks": {"north": 2, "south": 3, "east": 3.5, "west": 2},
  "brief": "Family home, G+1, with car parking and a pooja room",
  "soil_type": "hard"
}`

func newTestApp(t *testing.T, stdin string, tty bool) (*app, *bytes.Buffer) {
	t.Helper()
	store, err := persistence.Open(persistence.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	reg := prometheus.NewRegistry()
	client := agent.NewMockLLMClientFunc(func(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{Content: `{}`, StopReason: "end_turn", Usage: llm.Usage{InputTokens: 100, OutputTokens: 40}}, nil
	})
	var n atomic.Int64
	orch, err := orchestrator.New(orchestrator.Options{
		Client:  client,
		Config:  config.Default(),
		Schemas: agents.Schemas(),
		Store:   store,
		Metrics: metrics.NewPipeline(reg),
		NewID:   func() string { return fmt.Sprintf("cli-%d", n.Add(1)) },
	})
	require.NoError(t, err)
	for _, s := range agents.Stages() {
		require.NoError(t, orch.Register(s))
	}

	var out bytes.Buffer
	return &app{
		orch:     orch,
		registry: reg,
		costs:    llmmetrics.NewInternalRecorder(),
		in:       strings.NewReader(stdin),
		out:      &out,
		tty:      tty,
		logger:   logx.NewLogger("floorplan-test"),
	}, &out
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDriveHaltsThenResumesFromAnswersFile(t *testing.T) {
	a, out := newTestApp(t, "", false)
	ctx := context.Background()

	code := a.drive(ctx, options{inputPath: writeFile(t, "input.json", haltingInput)})
	assert.Equal(t, exitHalted, code)
	assert.Contains(t, out.String(), "Session cli-1: HALTED")
	assert.Contains(t, out.String(), "requirements-analysis.bedrooms")

	dir := t.TempDir()
	opts := options{
		resumeID:    "cli-1",
		answersPath: writeFile(t, "answers.json", `{"requirements-analysis.bedrooms": "3"}`),
		outPath:     filepath.Join(dir, "context.json"),
		metricsOut:  filepath.Join(dir, "metrics.txt"),
	}
	out.Reset()
	code = a.drive(ctx, opts)
	assert.Equal(t, exitComplete, code)
	assert.Contains(t, out.String(), "Session cli-1: COMPLETE")
	assert.Contains(t, out.String(), "Estimated cost: INR")

	data, err := os.ReadFile(opts.outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"session_id": "cli-1"`)

	text, err := os.ReadFile(opts.metricsOut)
	require.NoError(t, err)
	assert.Contains(t, string(text), `pipeline_runs_total{state="COMPLETE"} 1`)
	assert.Contains(t, string(text), `pipeline_runs_total{state="HALTED"} 1`)
}

func TestDriveInteractiveAnswersAndPrintsDiff(t *testing.T) {
	a, out := newTestApp(t, "3\n", true)

	code := a.drive(context.Background(), options{
		inputPath:   writeFile(t, "input.json", haltingInput),
		interactive: true,
	})
	assert.Equal(t, exitComplete, code)
	text := out.String()
	assert.Contains(t, text, "[requirements-analysis.bedrooms]")
	assert.Contains(t, text, "--- before")
	assert.Contains(t, text, "+++ after")
	assert.Contains(t, text, "Session cli-1: COMPLETE")
}

func TestDriveInteractiveWithoutTerminalLeavesSessionHalted(t *testing.T) {
	a, _ := newTestApp(t, "3\n", false)
	code := a.drive(context.Background(), options{
		inputPath:   writeFile(t, "input.json", haltingInput),
		interactive: true,
	})
	assert.Equal(t, exitHalted, code)
}

func TestDriveInteractiveNoAnswers(t *testing.T) {
	a, out := newTestApp(t, "", true)
	code := a.drive(context.Background(), options{
		inputPath:   writeFile(t, "input.json", haltingInput),
		interactive: true,
	})
	assert.Equal(t, exitHalted, code)
	assert.Contains(t, out.String(), "leaving the session halted")
}

func TestDriveErrors(t *testing.T) {
	a, _ := newTestApp(t, "", false)
	ctx := context.Background()

	assert.Equal(t, exitFailure, a.drive(ctx, options{}))
	assert.Equal(t, exitFailure, a.drive(ctx, options{inputPath: writeFile(t, "bad.json", "{")}))
	assert.Equal(t, exitFailure, a.drive(ctx, options{resumeID: "missing"}))
}

func TestListSessions(t *testing.T) {
	a, out := newTestApp(t, "", false)
	ctx := context.Background()
	require.Equal(t, exitHalted, a.drive(ctx, options{inputPath: writeFile(t, "input.json", haltingInput)}))

	out.Reset()
	assert.Equal(t, exitComplete, a.drive(ctx, options{list: true, listState: "HALTED"}))
	assert.Contains(t, out.String(), "SESSION")
	assert.Contains(t, out.String(), "cli-1")
	assert.Contains(t, out.String(), agents.RequirementsAnalysis)

	out.Reset()
	assert.Equal(t, exitComplete, a.drive(ctx, options{list: true, listState: "COMPLETE"}))
	assert.NotContains(t, out.String(), "cli-1")
}

func TestPromptAnswers(t *testing.T) {
	questions := []pipeline.OpenQuestion{
		{ID: "a.one", Text: "First?", Options: []string{"x", "y"}},
		{ID: "a.two", Text: "Second?", Default: "fallback"},
		{ID: "a.three", Text: "Third?"},
	}
	var w bytes.Buffer
	scanner := bufio.NewScanner(strings.NewReader("y\n\n\n"))

	got := promptAnswers(scanner, &w, questions)
	assert.Equal(t, map[string]string{"a.one": "y", "a.two": "fallback"}, got)
	assert.Contains(t, w.String(), "options: x, y")
	assert.Contains(t, w.String(), "answer [fallback]:")
}

func TestPromptAnswersStopsAtEOF(t *testing.T) {
	questions := []pipeline.OpenQuestion{{ID: "a.one", Text: "First?"}, {ID: "a.two", Text: "Second?"}}
	got := promptAnswers(bufio.NewScanner(strings.NewReader("only\n")), &bytes.Buffer{}, questions)
	assert.Equal(t, map[string]string{"a.one": "only"}, got)
}

func TestContextDiff(t *testing.T) {
	before := design.NewContext("s", design.Input{Brief: "2BHK"})
	after := design.NewContext("s", design.Input{Brief: "3BHK"})

	diff, err := contextDiff(before, after)
	require.NoError(t, err)
	assert.Contains(t, diff, "-    \"brief\": \"2BHK\"")
	assert.Contains(t, diff, "+    \"brief\": \"3BHK\"")

	same, err := contextDiff(before, before)
	require.NoError(t, err)
	assert.Empty(t, same)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitFailure, exitCode(nil))
	assert.Equal(t, exitComplete, exitCode(&orchestrator.Outcome{State: orchestrator.StateComplete}))
	assert.Equal(t, exitHalted, exitCode(&orchestrator.Outcome{State: orchestrator.StateHalted}))
	assert.Equal(t, exitFailure, exitCode(&orchestrator.Outcome{State: orchestrator.StateFailed}))
}
