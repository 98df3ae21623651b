package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrSessionNotFound is returned when a session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// Session is one persisted pipeline run. The JSON blobs are owned by the
// orchestrator; the store does not interpret them.
type Session struct {
	ID          string            `json:"id"`
	State       string            `json:"state"`
	NextStage   string            `json:"next_stage"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Input       json.RawMessage   `json:"input"`
	Context     json.RawMessage   `json:"context"`
	Answers     map[string]string `json:"answers"`
	Questions   json.RawMessage   `json:"questions"`
	Assumptions json.RawMessage   `json:"assumptions"`
	Usage       json.RawMessage   `json:"usage"`
}

// SessionSummary is the listing view of a session.
type SessionSummary struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	NextStage string    `json:"next_stage"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func orDefault(raw json.RawMessage, def string) string {
	if len(raw) == 0 {
		return def
	}
	return string(raw)
}

// SaveSession inserts or updates sess. CreatedAt is set on first save and
// UpdatedAt on every save.
func (s *Store) SaveSession(sess *Session) error {
	if sess.ID == "" {
		return fmt.Errorf("session id is required")
	}
	answers := sess.Answers
	if answers == nil {
		answers = map[string]string{}
	}
	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("failed to marshal answers: %w", err)
	}

	now := s.timestamp()
	_, err = s.db.Exec(`
		INSERT INTO sessions (id, state, next_stage, created_at, updated_at,
			input_json, context_json, answers_json, questions_json, assumptions_json, usage_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			next_stage = excluded.next_stage,
			updated_at = excluded.updated_at,
			input_json = excluded.input_json,
			context_json = excluded.context_json,
			answers_json = excluded.answers_json,
			questions_json = excluded.questions_json,
			assumptions_json = excluded.assumptions_json,
			usage_json = excluded.usage_json
	`, sess.ID, sess.State, sess.NextStage, now, now,
		orDefault(sess.Input, "{}"), orDefault(sess.Context, "{}"), string(answersJSON),
		orDefault(sess.Questions, "[]"), orDefault(sess.Assumptions, "[]"), orDefault(sess.Usage, "{}"))
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	return nil
}

// LoadSession returns a session by ID.
// Returns ErrSessionNotFound if the session does not exist.
func (s *Store) LoadSession(id string) (*Session, error) {
	row := s.db.QueryRow(`
		SELECT id, state, next_stage, created_at, updated_at,
			input_json, context_json, answers_json, questions_json, assumptions_json, usage_json
		FROM sessions
		WHERE id = ?
	`, id)

	var (
		sess                Session
		created, updated    string
		input, ctx, answers string
		questions, assumed  string
		usage               string
	)
	err := row.Scan(&sess.ID, &sess.State, &sess.NextStage, &created, &updated,
		&input, &ctx, &answers, &questions, &assumed, &usage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	sess.CreatedAt = parseTime(created)
	sess.UpdatedAt = parseTime(updated)
	sess.Input = json.RawMessage(input)
	sess.Context = json.RawMessage(ctx)
	sess.Questions = json.RawMessage(questions)
	sess.Assumptions = json.RawMessage(assumed)
	sess.Usage = json.RawMessage(usage)
	sess.Answers = map[string]string{}
	if err := json.Unmarshal([]byte(answers), &sess.Answers); err != nil {
		return nil, fmt.Errorf("failed to decode answers for session %s: %w", id, err)
	}
	return &sess, nil
}

// ListSessions returns sessions newest first. A state filter of "" lists all.
func (s *Store) ListSessions(state string, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, state, next_stage, created_at, updated_at
		FROM sessions
		WHERE ? = '' OR state = ?
		ORDER BY updated_at DESC, id
		LIMIT ?
	`, state, state, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []SessionSummary{}
	for rows.Next() {
		var sum SessionSummary
		var created, updated string
		if err := rows.Scan(&sum.ID, &sum.State, &sum.NextStage, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sum.CreatedAt = parseTime(created)
		sum.UpdatedAt = parseTime(updated)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return out, nil
}

// DeleteSession removes a session and its agent runs.
func (s *Store) DeleteSession(id string) error {
	result, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrSessionNotFound
	}
	if _, err := s.db.Exec(`DELETE FROM agent_runs WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete agent runs: %w", err)
	}
	return nil
}
