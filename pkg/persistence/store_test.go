package persistence

import (
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenCreatesCurrentSchema(t *testing.T) {
	s := setupTestStore(t)
	v, err := GetSchemaVersion(s.DB())
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v)
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestSessionRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	sess := &Session{
		ID:          "s-1",
		State:       "HALTED",
		NextStage:   "requirements-analysis",
		Input:       json.RawMessage(`{"brief":"2BHK"}`),
		Context:     json.RawMessage(`{"session_id":"s-1"}`),
		Answers:     map[string]string{"requirements-analysis.bedrooms": "3"},
		Questions:   json.RawMessage(`[{"id":"requirements-analysis.bedrooms"}]`),
		Assumptions: json.RawMessage(`[]`),
		Usage:       json.RawMessage(`{"limit":1000,"agents":{}}`),
	}
	require.NoError(t, s.SaveSession(sess))

	got, err := s.LoadSession("s-1")
	require.NoError(t, err)
	assert.Equal(t, "HALTED", got.State)
	assert.Equal(t, "requirements-analysis", got.NextStage)
	assert.JSONEq(t, `{"brief":"2BHK"}`, string(got.Input))
	assert.JSONEq(t, `{"limit":1000,"agents":{}}`, string(got.Usage))
	assert.Equal(t, sess.Answers, got.Answers)
	assert.True(t, clock.Equal(got.CreatedAt))

	clock = clock.Add(time.Hour)
	sess.State = "COMPLETE"
	sess.NextStage = ""
	require.NoError(t, s.SaveSession(sess))

	got, err = s.LoadSession("s-1")
	require.NoError(t, err)
	assert.Equal(t, "COMPLETE", got.State)
	assert.Empty(t, got.NextStage)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt), "created_at is kept on update")
}

func TestSessionDefaultsForEmptyBlobs(t *testing.T) {
	s := setupTestStore(t)
	require.NoError(t, s.SaveSession(&Session{ID: "s-2", State: "INIT"}))
	got, err := s.LoadSession("s-2")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(got.Questions))
	assert.JSONEq(t, `{}`, string(got.Context))
	assert.NotNil(t, got.Answers)
}

func TestLoadSessionNotFound(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.LoadSession("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, s.DeleteSession("missing"), ErrSessionNotFound)
	assert.Error(t, s.SaveSession(&Session{}))
}

func TestListSessions(t *testing.T) {
	s := setupTestStore(t)
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	for i, state := range []string{"HALTED", "COMPLETE", "HALTED"} {
		clock = clock.Add(time.Minute)
		require.NoError(t, s.SaveSession(&Session{ID: string(rune('a' + i)), State: state}))
	}

	all, err := s.ListSessions("", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID, "newest first")

	halted, err := s.ListSessions("HALTED", 10)
	require.NoError(t, err)
	require.Len(t, halted, 2)
	assert.Equal(t, []string{"c", "a"}, []string{halted[0].ID, halted[1].ID})
}

func TestAgentRuns(t *testing.T) {
	s := setupTestStore(t)
	require.NoError(t, s.SaveSession(&Session{ID: "s-3", State: "RUNNING"}))

	runs := []AgentRun{
		{SessionID: "s-3", Agent: "requirements-analysis", Success: true, Duration: 1500 * time.Millisecond, InputTokens: 100, OutputTokens: 40},
		{SessionID: "s-3", Agent: "architectural-zoning", Fallback: true, ErrorCode: "PARSE_ERROR", ErrorMessage: "bad json"},
	}
	for i := range runs {
		id, err := s.RecordAgentRun(&runs[i])
		require.NoError(t, err)
		assert.Positive(t, id)
	}

	got, err := s.ListAgentRuns("s-3")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "requirements-analysis", got[0].Agent)
	assert.True(t, got[0].Success)
	assert.Equal(t, 1500*time.Millisecond, got[0].Duration)
	assert.Equal(t, 40, got[0].OutputTokens)
	assert.False(t, got[1].Success)
	assert.True(t, got[1].Fallback)
	assert.Equal(t, "PARSE_ERROR", got[1].ErrorCode)

	_, err = s.RecordAgentRun(&AgentRun{SessionID: "s-3"})
	assert.Error(t, err)

	require.NoError(t, s.DeleteSession("s-3"))
	got, err = s.ListAgentRuns("s-3")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMigrateFromVersion1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v1.db")

	raw, err := sql.Open("sqlite", "file:"+path)
	require.NoError(t, err)
	_, err = GetSchemaVersion(raw)
	require.NoError(t, err)
	for _, stmt := range schemaV1 {
		_, err = raw.Exec(stmt)
		require.NoError(t, err)
	}
	require.NoError(t, setSchemaVersion(raw, 1))
	_, err = raw.Exec(`INSERT INTO sessions (id, state, created_at, updated_at) VALUES ('old', 'HALTED', '2025-01-01T00:00:00.000000Z', '2025-01-01T00:00:00.000000Z')`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	v, err := GetSchemaVersion(s.DB())
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v)

	got, err := s.LoadSession("old")
	require.NoError(t, err)
	assert.Equal(t, "HALTED", got.State)
	assert.Empty(t, got.NextStage)
	assert.JSONEq(t, `{}`, string(got.Usage))
}

func TestOpenOnDiskCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sessions.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveSession(&Session{ID: "disk", State: "INIT"}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	_, err = s.LoadSession("disk")
	assert.NoError(t, err)
}
