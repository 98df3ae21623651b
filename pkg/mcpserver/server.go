// Package mcpserver exposes the planning pipeline as MCP tools so an agent
// host can start sessions, answer open questions and poll status.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"floorplanner/pkg/design"
	"floorplanner/pkg/orchestrator"
	"floorplanner/pkg/persistence"
)

// Pipeline is the part of the orchestrator the tools drive.
type Pipeline interface {
	Run(ctx context.Context, in design.Input) (*orchestrator.Outcome, error)
	Resume(ctx context.Context, sessionID string, answers map[string]string) (*orchestrator.Outcome, error)
	Status(ctx context.Context, sessionID string) (*orchestrator.Outcome, error)
	Sessions(state orchestrator.State) ([]persistence.SessionSummary, error)
}

const instructions = "Floor-plan planning pipeline for residential plots in Tamil Nadu. " +
	"Call floorplan_start with the plot and brief. When the result state is HALTED, ask the user the " +
	"questions listed under unanswered and pass their answers to floorplan_answer keyed by question id. " +
	"Report high_risk_assumptions to the user before presenting the plan."

// New builds the MCP server with the floorplan tools registered.
func New(p Pipeline, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"floorplan",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	start := NewStartTool(p)
	s.AddTool(start.Definition(), start.Handle)

	answer := NewAnswerTool(p)
	s.AddTool(answer.Definition(), answer.Handle)

	status := NewStatusTool(p)
	s.AddTool(status.Definition(), status.Handle)

	list := NewSessionsTool(p)
	s.AddTool(list.Definition(), list.Handle)

	return s
}

// ServeStdio runs s on stdin/stdout until the client disconnects.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// outcomeResult renders an outcome as the tool's JSON text. A run that ended
// in a stage failure is flagged as a tool error but still carries the outcome.
func outcomeResult(out *orchestrator.Outcome, runErr error) (*mcp.CallToolResult, error) {
	if out == nil {
		return mcp.NewToolResultError(runErr.Error()), nil
	}
	view := struct {
		*orchestrator.Outcome
		Error string `json:"error,omitempty"`
	}{Outcome: out}
	if runErr != nil {
		view.Error = runErr.Error()
	}
	data, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode outcome: %v", err)), nil
	}
	res := mcp.NewToolResultText(string(data))
	res.IsError = runErr != nil
	return res, nil
}
