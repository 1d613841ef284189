package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/pavelanni/interviewer/internal/gaps"
	"github.com/pavelanni/interviewer/internal/model"
)

// GapStore persists the gap ledger. It satisfies gaps.Store.
type GapStore struct {
	db *sqlx.DB
}

// Gaps returns the gap table view of the store.
func (s *Store) Gaps() *GapStore {
	return &GapStore{db: s.db}
}

var _ gaps.Store = (*GapStore)(nil)

type gapRow struct {
	model.Gap
	EvidenceJSON string `db:"evidence"`
}

const gapColumns = `id, user_id, skill, kind, severity, evidence, status, priority,
	detected_at, created_at, resolved_at`

func toRow(g *model.Gap) (gapRow, error) {
	ev, err := json.Marshal(g.Evidence)
	if err != nil {
		return gapRow{}, fmt.Errorf("encode evidence: %w", err)
	}
	row := gapRow{Gap: *g, EvidenceJSON: string(ev)}
	row.DetectedAt = row.DetectedAt.UTC()
	row.CreatedAt = row.CreatedAt.UTC()
	if row.ResolvedAt != nil {
		t := row.ResolvedAt.UTC()
		row.ResolvedAt = &t
	}
	return row, nil
}

func (r gapRow) gap() (*model.Gap, error) {
	g := r.Gap
	if r.EvidenceJSON != "" {
		if err := json.Unmarshal([]byte(r.EvidenceJSON), &g.Evidence); err != nil {
			return nil, fmt.Errorf("decode evidence of gap %s: %w", g.ID, err)
		}
	}
	return &g, nil
}

// FindOpen returns the open gap for (user, skill, kind), or nil.
func (gs *GapStore) FindOpen(ctx context.Context, userID, skill string, kind model.GapKind) (*model.Gap, error) {
	var row gapRow
	err := gs.db.GetContext(ctx, &row,
		`SELECT `+gapColumns+` FROM gaps
		 WHERE user_id = ? AND skill = ? AND kind = ? AND status IN (?, ?)
		 ORDER BY created_at LIMIT 1`,
		userID, skill, kind, model.GapIdentified, model.GapInProgress)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.gap()
}

func (gs *GapStore) Insert(ctx context.Context, g *model.Gap) error {
	row, err := toRow(g)
	if err != nil {
		return err
	}
	_, err = gs.db.NamedExecContext(ctx,
		`INSERT INTO gaps (`+gapColumns+`)
		 VALUES (:id, :user_id, :skill, :kind, :severity, :evidence, :status, :priority,
			:detected_at, :created_at, :resolved_at)`, row)
	return err
}

func (gs *GapStore) Update(ctx context.Context, g *model.Gap) error {
	row, err := toRow(g)
	if err != nil {
		return err
	}
	res, err := gs.db.NamedExecContext(ctx,
		`UPDATE gaps SET severity = :severity, evidence = :evidence, status = :status,
			priority = :priority, detected_at = :detected_at, resolved_at = :resolved_at
		 WHERE id = :id`, row)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return gaps.ErrNotFound
	}
	return nil
}

func (gs *GapStore) Get(ctx context.Context, id string) (*model.Gap, error) {
	var row gapRow
	err := gs.db.GetContext(ctx, &row, `SELECT `+gapColumns+` FROM gaps WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gaps.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.gap()
}

func (gs *GapStore) ListByUser(ctx context.Context, userID string) ([]model.Gap, error) {
	var rows []gapRow
	if err := gs.db.SelectContext(ctx, &rows,
		`SELECT `+gapColumns+` FROM gaps WHERE user_id = ? ORDER BY created_at, id`, userID); err != nil {
		return nil, err
	}
	out := make([]model.Gap, 0, len(rows))
	for _, r := range rows {
		g, err := r.gap()
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, nil
}
