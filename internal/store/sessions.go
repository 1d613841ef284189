package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/interviewer/internal/model"
)

type sessionRow struct {
	ID                string    `db:"id"`
	UserID            string    `db:"user_id"`
	Status            string    `db:"status"`
	Version           int       `db:"version"`
	State             string    `db:"state"`
	CreatedAt         time.Time `db:"created_at"`
	LastActivityAt    time.Time `db:"last_activity_at"`
	CurrentDifficulty string    `db:"current_difficulty"`
}

// SaveSession upserts the full session state. Indexed columns mirror the
// JSON document so sessions can be listed without decoding it.
func (s *Store) SaveSession(ctx context.Context, st *model.SessionState) error {
	if st.Version == 0 {
		st.Version = model.SchemaVersion
	}
	doc, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", st.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, resume_id, job_id, kind, target_role, status,
			current_difficulty, version, state, created_at, last_activity_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			current_difficulty = excluded.current_difficulty,
			version = excluded.version,
			state = excluded.state,
			last_activity_at = excluded.last_activity_at`,
		st.ID, st.UserID, st.ResumeID, st.JobID, st.Kind, st.TargetRole, st.Status,
		st.CurrentDifficulty, st.Version, string(doc), st.StartedAt.UTC(), st.LastActivityAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", st.ID, err)
	}
	return nil
}

// LoadSession returns the session with the given id or ErrNotFound.
func (s *Store) LoadSession(ctx context.Context, id string) (*model.SessionState, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, user_id, status, version, state, created_at, last_activity_at, current_difficulty
		 FROM sessions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return decodeSession(row)
}

// SessionFilter narrows ListSessions. Zero fields match everything.
type SessionFilter struct {
	UserID string
	Status model.SessionStatus
}

// ListSessions returns matching sessions, oldest first.
func (s *Store) ListSessions(ctx context.Context, f SessionFilter) ([]model.SessionState, error) {
	query := `SELECT id, user_id, status, version, state, created_at, last_activity_at, current_difficulty
		FROM sessions WHERE 1=1`
	var args []any
	if f.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, f.Status)
	}
	query += " ORDER BY created_at, id"

	var rows []sessionRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]model.SessionState, 0, len(rows))
	for _, row := range rows {
		st, err := decodeSession(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, nil
}

func decodeSession(row sessionRow) (*model.SessionState, error) {
	var st model.SessionState
	if err := json.Unmarshal([]byte(row.State), &st); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", row.ID, err)
	}
	if row.Version > model.SchemaVersion {
		return nil, fmt.Errorf("session %s has schema version %d, newer than %d", row.ID, row.Version, model.SchemaVersion)
	}
	// columns are authoritative for fields older documents may lack
	st.ID = row.ID
	st.UserID = row.UserID
	st.Status = model.SessionStatus(row.Status)
	st.CurrentDifficulty = model.Difficulty(row.CurrentDifficulty)
	st.Version = model.SchemaVersion
	return &st, nil
}
