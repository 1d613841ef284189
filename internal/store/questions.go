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

type questionRow struct {
	Hash     string `db:"hash"`
	Contract string `db:"contract"`
}

// ArchiveQuestion stores q under its content hash. Re-archiving the same
// hash is a no-op, so the first stored contract wins.
func (s *Store) ArchiveQuestion(ctx context.Context, q model.Question) error {
	if q.Hash == "" {
		return fmt.Errorf("archive question: missing hash")
	}
	doc, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode question %s: %w", q.Hash, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO questions (hash, text, kind, difficulty, topic, focus_kind, source, parent_hash, contract, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(hash) DO NOTHING`,
		q.Hash, q.Text, q.Kind, q.Difficulty, q.Topic, q.FocusKind, q.Source, q.ParentHash,
		string(doc), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("archive question %s: %w", q.Hash, err)
	}
	return nil
}

// QuestionFilter narrows ListQuestions. Zero fields match everything.
type QuestionFilter struct {
	Source     model.QuestionSource
	Topic      string
	Difficulty model.Difficulty
	RootOnly   bool // skip follow-ups
}

// ListQuestions returns archived questions in insertion order.
func (s *Store) ListQuestions(ctx context.Context, f QuestionFilter) ([]model.Question, error) {
	query := `SELECT hash, contract FROM questions WHERE 1=1`
	var args []any
	if f.Source != "" {
		query += " AND source = ?"
		args = append(args, f.Source)
	}
	if f.Topic != "" {
		query += " AND topic = ?"
		args = append(args, f.Topic)
	}
	if f.Difficulty != "" {
		query += " AND difficulty = ?"
		args = append(args, f.Difficulty)
	}
	if f.RootOnly {
		query += " AND parent_hash = ''"
	}
	query += " ORDER BY rowid"

	var rows []questionRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	out := make([]model.Question, 0, len(rows))
	for _, r := range rows {
		var q model.Question
		if err := json.Unmarshal([]byte(r.Contract), &q); err != nil {
			return nil, fmt.Errorf("decode question %s: %w", r.Hash, err)
		}
		out = append(out, q)
	}
	return out, nil
}

// CountQuestions returns the number of archived questions.
func (s *Store) CountQuestions(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM questions`)
	return n, err
}

// ListDistinctTopics returns the sorted unique topics in the archive.
func (s *Store) ListDistinctTopics(ctx context.Context) ([]string, error) {
	var topics []string
	err := s.db.SelectContext(ctx, &topics, `SELECT DISTINCT topic FROM questions ORDER BY topic`)
	return topics, err
}

// GetImportedFileHash returns the hash recorded for path, or "" if the
// file was never imported.
func (s *Store) GetImportedFileHash(path string) (string, error) {
	var hash string
	err := s.db.Get(&hash, `SELECT hash FROM imported_files WHERE path = ?`, path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return hash, err
}

// SetImportedFileHash records the hash of an imported file.
func (s *Store) SetImportedFileHash(path, hash string) error {
	_, err := s.db.Exec(
		`INSERT INTO imported_files (path, hash, imported_at) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET hash = excluded.hash, imported_at = excluded.imported_at`,
		path, hash, time.Now().UTC(),
	)
	return err
}
