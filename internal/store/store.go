package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a session or question does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sqlx.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite"
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		resume_id TEXT NOT NULL DEFAULT '',
		job_id TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		target_role TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		current_difficulty TEXT NOT NULL,
		version INTEGER NOT NULL,
		state TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		last_activity_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);

	CREATE TABLE IF NOT EXISTS gaps (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		skill TEXT NOT NULL,
		kind TEXT NOT NULL,
		severity TEXT NOT NULL,
		evidence TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL,
		priority INTEGER NOT NULL,
		detected_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL,
		resolved_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_gaps_lookup ON gaps(user_id, skill, kind);

	CREATE TABLE IF NOT EXISTS questions (
		hash TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		kind TEXT NOT NULL,
		difficulty TEXT NOT NULL,
		topic TEXT NOT NULL,
		focus_kind TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL,
		parent_hash TEXT NOT NULL DEFAULT '',
		contract TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		imported_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}
