package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pavelanni/interviewer/internal/model"
)

// ExportAllSessions builds the export document from every persisted session.
// When userID is non-empty only that user's sessions are included.
func (s *Store) ExportAllSessions(ctx context.Context, userID string) (model.InterviewExport, error) {
	sessions, err := s.ListSessions(ctx, SessionFilter{UserID: userID})
	if err != nil {
		return model.InterviewExport{}, fmt.Errorf("list sessions: %w", err)
	}

	results := make([]model.SessionResult, 0, len(sessions))
	for i := range sessions {
		results = append(results, model.NewSessionResult(&sessions[i]))
	}

	return model.InterviewExport{
		ExportedAt: time.Now().UTC(),
		Sessions:   results,
	}, nil
}
