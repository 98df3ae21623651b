package persistence

import (
	"fmt"
	"time"
)

// AgentRun records one stage execution inside a session.
type AgentRun struct {
	ID           int64         `json:"id"`
	SessionID    string        `json:"session_id"`
	Agent        string        `json:"agent"`
	Success      bool          `json:"success"`
	Fallback     bool          `json:"fallback"`
	Duration     time.Duration `json:"duration"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	ErrorCode    string        `json:"error_code,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// RecordAgentRun appends run to its session's history and returns its id.
func (s *Store) RecordAgentRun(run *AgentRun) (int64, error) {
	if run.SessionID == "" || run.Agent == "" {
		return 0, fmt.Errorf("agent run needs a session id and an agent name")
	}
	result, err := s.db.Exec(`
		INSERT INTO agent_runs (session_id, agent, success, fallback, duration_ms,
			input_tokens, output_tokens, error_code, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.SessionID, run.Agent, boolToInt(run.Success), boolToInt(run.Fallback), run.Duration.Milliseconds(),
		run.InputTokens, run.OutputTokens, run.ErrorCode, run.ErrorMessage, s.timestamp())
	if err != nil {
		return 0, fmt.Errorf("failed to record agent run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get agent run id: %w", err)
	}
	run.ID = id
	return id, nil
}

// ListAgentRuns returns a session's runs in execution order.
func (s *Store) ListAgentRuns(sessionID string) ([]AgentRun, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, agent, success, fallback, duration_ms,
			input_tokens, output_tokens, error_code, error_message, created_at
		FROM agent_runs
		WHERE session_id = ?
		ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agent runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []AgentRun{}
	for rows.Next() {
		var (
			run               AgentRun
			success, fallback int
			durationMS        int64
			created           string
		)
		if err := rows.Scan(&run.ID, &run.SessionID, &run.Agent, &success, &fallback, &durationMS,
			&run.InputTokens, &run.OutputTokens, &run.ErrorCode, &run.ErrorMessage, &created); err != nil {
			return nil, fmt.Errorf("failed to scan agent run: %w", err)
		}
		run.Success = success != 0
		run.Fallback = fallback != 0
		run.Duration = time.Duration(durationMS) * time.Millisecond
		run.CreatedAt = parseTime(created)
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate agent runs: %w", err)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
