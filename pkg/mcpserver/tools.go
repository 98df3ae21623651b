package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"floorplanner/pkg/design"
	"floorplanner/pkg/orchestrator"
)

// StartTool handles floorplan_start.
type StartTool struct {
	p Pipeline
}

// NewStartTool creates a StartTool.
func NewStartTool(p Pipeline) *StartTool {
	return &StartTool{p: p}
}

// Definition returns the MCP tool definition for floorplan_start.
func (t *StartTool) Definition() mcp.Tool {
	return mcp.NewTool("floorplan_start",
		mcp.WithDescription(
			"Start a floor-plan planning session. Runs every planning stage until the plan is complete "+
				"or a mandatory question needs the user's answer.",
		),
		mcp.WithString("input_json",
			mcp.Required(),
			mcp.Description(`Pipeline input as JSON, e.g. {"plot": {"width": 30, "depth": 40, "unit": "feet", "road_side": "east"}, "brief": "2BHK, G+1"}`),
		),
	)
}

// Handle processes the floorplan_start tool call.
func (t *StartTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := req.GetString("input_json", "")
	if strings.TrimSpace(raw) == "" {
		return mcp.NewToolResultError("'input_json' is required"), nil
	}
	var in design.Input
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid input_json: %v", err)), nil
	}
	out, err := t.p.Run(ctx, in)
	return outcomeResult(out, err)
}

// AnswerTool handles floorplan_answer.
type AnswerTool struct {
	p Pipeline
}

// NewAnswerTool creates an AnswerTool.
func NewAnswerTool(p Pipeline) *AnswerTool {
	return &AnswerTool{p: p}
}

// Definition returns the MCP tool definition for floorplan_answer.
func (t *AnswerTool) Definition() mcp.Tool {
	return mcp.NewTool("floorplan_answer",
		mcp.WithDescription("Answer open questions of a halted session and resume it."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session id returned by floorplan_start"),
		),
		mcp.WithString("answers_json",
			mcp.Required(),
			mcp.Description(`Answers keyed by question id, e.g. {"requirements-analysis.bedrooms": "3"}`),
		),
	)
}

// Handle processes the floorplan_answer tool call.
func (t *AnswerTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("session_id", "")
	if id == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}
	raw := req.GetString("answers_json", "")
	if strings.TrimSpace(raw) == "" {
		return mcp.NewToolResultError("'answers_json' is required"), nil
	}
	answers := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &answers); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("answers_json must map question ids to strings: %v", err)), nil
	}
	out, err := t.p.Resume(ctx, id, answers)
	return outcomeResult(out, err)
}

// StatusTool handles floorplan_status.
type StatusTool struct {
	p Pipeline
}

// NewStatusTool creates a StatusTool.
func NewStatusTool(p Pipeline) *StatusTool {
	return &StatusTool{p: p}
}

// Definition returns the MCP tool definition for floorplan_status.
func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool("floorplan_status",
		mcp.WithDescription("Show the state, open questions and design context of a session."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session id returned by floorplan_start"),
		),
	)
}

// Handle processes the floorplan_status tool call.
func (t *StatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("session_id", "")
	if id == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}
	out, err := t.p.Status(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return outcomeResult(out, nil)
}

// SessionsTool handles floorplan_sessions.
type SessionsTool struct {
	p Pipeline
}

// NewSessionsTool creates a SessionsTool.
func NewSessionsTool(p Pipeline) *SessionsTool {
	return &SessionsTool{p: p}
}

// Definition returns the MCP tool definition for floorplan_sessions.
func (t *SessionsTool) Definition() mcp.Tool {
	return mcp.NewTool("floorplan_sessions",
		mcp.WithDescription("List planning sessions, newest first."),
		mcp.WithString("state",
			mcp.Description("Filter by state: RUNNING, HALTED, COMPLETE or FAILED"),
		),
	)
}

// Handle processes the floorplan_sessions tool call.
func (t *SessionsTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state := orchestrator.State(strings.ToUpper(req.GetString("state", "")))
	sessions, err := t.p.Sessions(state)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list sessions: %v", err)), nil
	}
	if len(sessions) == 0 {
		return mcp.NewToolResultText("No sessions found."), nil
	}
	var b strings.Builder
	for _, s := range sessions {
		fmt.Fprintf(&b, "%s  %-8s", s.ID, s.State)
		if s.NextStage != "" {
			fmt.Fprintf(&b, "  next: %s", s.NextStage)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}
