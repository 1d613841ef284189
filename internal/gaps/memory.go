package gaps

import (
	"context"
	"sync"

	"github.com/pavelanni/interviewer/internal/model"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.RWMutex
	gaps  map[string]model.Gap
	order []string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{gaps: make(map[string]model.Gap)}
}

func (m *MemoryStore) FindOpen(_ context.Context, userID, skill string, kind model.GapKind) (*model.Gap, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.order {
		g := m.gaps[id]
		if g.UserID == userID && g.Skill == skill && g.Kind == kind && g.Status.Open() {
			return cloneGap(g), nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) Insert(_ context.Context, g *model.Gap) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gaps[g.ID] = *cloneGap(*g)
	m.order = append(m.order, g.ID)
	return nil
}

func (m *MemoryStore) Update(_ context.Context, g *model.Gap) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.gaps[g.ID]; !ok {
		return ErrNotFound
	}
	m.gaps[g.ID] = *cloneGap(*g)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*model.Gap, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.gaps[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneGap(g), nil
}

func (m *MemoryStore) ListByUser(_ context.Context, userID string) ([]model.Gap, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Gap
	for _, id := range m.order {
		if g := m.gaps[id]; g.UserID == userID {
			out = append(out, *cloneGap(g))
		}
	}
	return out, nil
}

func cloneGap(g model.Gap) *model.Gap {
	if g.Evidence.FromJD != nil {
		jd := *g.Evidence.FromJD
		g.Evidence.FromJD = &jd
	}
	g.Evidence.FromInterview = append([]string(nil), g.Evidence.FromInterview...)
	if g.ResolvedAt != nil {
		t := *g.ResolvedAt
		g.ResolvedAt = &t
	}
	return &g
}
