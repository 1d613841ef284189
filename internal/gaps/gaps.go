// Package gaps keeps the per-user gap ledger. A gap is recorded once per
// open (user, skill, kind); later detections merge into it.
package gaps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/skills"
)

var (
	// ErrNotFound is returned when a gap id is unknown.
	ErrNotFound = errors.New("gap not found")
	// ErrInvalidTransition is returned when a status change would move backwards.
	ErrInvalidTransition = errors.New("invalid gap status transition")
)

// Store persists gaps. FindOpen returns (nil, nil) when no open gap matches.
type Store interface {
	FindOpen(ctx context.Context, userID, skill string, kind model.GapKind) (*model.Gap, error)
	Insert(ctx context.Context, g *model.Gap) error
	Update(ctx context.Context, g *model.Gap) error
	Get(ctx context.Context, id string) (*model.Gap, error)
	ListByUser(ctx context.Context, userID string) ([]model.Gap, error)
}

// Priority derives a 1..10 priority from severity, kind and job evidence.
func Priority(g model.Gap) int {
	p := 5 + g.Severity.Rank()
	switch g.Kind {
	case model.GapKnowledge:
		p += 2
	case model.GapExplanation:
		p++
	}
	if jd := g.Evidence.FromJD; jd != nil {
		if jd.Required {
			p += 3
		} else if jd.Preferred {
			p++
		}
	}
	return min(max(p, 1), 10)
}

// MergeEvidence unions b into a.
func MergeEvidence(a, b model.Evidence) model.Evidence {
	out := model.Evidence{FromResume: a.FromResume || b.FromResume}
	if a.FromJD != nil || b.FromJD != nil {
		jd := &model.JDEvidence{}
		for _, src := range []*model.JDEvidence{a.FromJD, b.FromJD} {
			if src != nil {
				jd.Required = jd.Required || src.Required
				jd.Preferred = jd.Preferred || src.Preferred
			}
		}
		out.FromJD = jd
	}
	out.FromInterview = append([]string(nil), a.FromInterview...)
	for _, ref := range b.FromInterview {
		if !skills.Contains(out.FromInterview, ref) {
			out.FromInterview = append(out.FromInterview, ref)
		}
	}
	return out
}

func statusRank(s model.GapStatus) int {
	switch s {
	case model.GapIdentified:
		return 0
	case model.GapInProgress:
		return 1
	case model.GapImproved:
		return 2
	case model.GapClosed:
		return 3
	}
	return -1
}

// Ledger records and resolves gaps on top of a Store.
type Ledger struct {
	store Store
	now   func() time.Time
	locks sync.Map // user|skill|kind -> *sync.Mutex
}

// NewLedger creates a ledger backed by store.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

func (l *Ledger) lock(key string) func() {
	m, _ := l.locks.LoadOrStore(key, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Record merges g into the matching open gap or inserts it as a new one.
// It returns the stored gap.
func (l *Ledger) Record(ctx context.Context, g model.Gap) (model.Gap, error) {
	g.Skill = skills.Fold(g.Skill)
	if g.UserID == "" || g.Skill == "" {
		return model.Gap{}, fmt.Errorf("record gap: user and skill are required")
	}
	defer l.lock(g.UserID + "|" + g.Skill + "|" + string(g.Kind))()

	now := l.now().UTC()
	existing, err := l.store.FindOpen(ctx, g.UserID, g.Skill, g.Kind)
	if err != nil {
		return model.Gap{}, fmt.Errorf("find open gap: %w", err)
	}

	if existing != nil {
		existing.Severity = model.MaxSeverity(existing.Severity, g.Severity)
		existing.Evidence = MergeEvidence(existing.Evidence, g.Evidence)
		existing.DetectedAt = now
		existing.Priority = Priority(*existing)
		if err := l.store.Update(ctx, existing); err != nil {
			return model.Gap{}, fmt.Errorf("update gap %s: %w", existing.ID, err)
		}
		slog.Debug("gap merged", "gap_id", existing.ID, "user_id", g.UserID, "skill", g.Skill, "kind", g.Kind)
		return *existing, nil
	}

	g.ID = uuid.NewString()
	g.Status = model.GapIdentified
	g.DetectedAt = now
	g.CreatedAt = now
	g.ResolvedAt = nil
	g.Priority = Priority(g)
	if err := l.store.Insert(ctx, &g); err != nil {
		return model.Gap{}, fmt.Errorf("insert gap: %w", err)
	}
	slog.Debug("gap recorded", "gap_id", g.ID, "user_id", g.UserID, "skill", g.Skill, "kind", g.Kind, "severity", g.Severity)
	return g, nil
}

// Resolve moves a gap forward to outcome. Backward moves fail with
// ErrInvalidTransition; repeating the current status is a no-op.
func (l *Ledger) Resolve(ctx context.Context, id string, outcome model.GapStatus) (model.Gap, error) {
	if statusRank(outcome) < 0 {
		return model.Gap{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, outcome)
	}
	g, err := l.store.Get(ctx, id)
	if err != nil {
		return model.Gap{}, err
	}
	defer l.lock(g.UserID + "|" + g.Skill + "|" + string(g.Kind))()

	// re-read under the key lock
	g, err = l.store.Get(ctx, id)
	if err != nil {
		return model.Gap{}, err
	}
	from, to := statusRank(g.Status), statusRank(outcome)
	if to == from {
		return *g, nil
	}
	if to < from {
		return model.Gap{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, g.Status, outcome)
	}
	g.Status = outcome
	if outcome == model.GapClosed {
		t := l.now().UTC()
		g.ResolvedAt = &t
	}
	if err := l.store.Update(ctx, g); err != nil {
		return model.Gap{}, fmt.Errorf("update gap %s: %w", id, err)
	}
	return *g, nil
}

// Open lists the user's open gaps, highest priority first.
func (l *Ledger) Open(ctx context.Context, userID string) ([]model.Gap, error) {
	all, err := l.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list gaps: %w", err)
	}
	var out []model.Gap
	for _, g := range all {
		if g.Status.Open() {
			out = append(out, g)
		}
	}
	SortByPriority(out)
	return out, nil
}

// SortByPriority orders gaps by priority, then severity, descending.
func SortByPriority(gs []model.Gap) {
	sort.SliceStable(gs, func(i, j int) bool {
		if gs[i].Priority != gs[j].Priority {
			return gs[i].Priority > gs[j].Priority
		}
		return gs[i].Severity.Rank() > gs[j].Severity.Rank()
	})
}
