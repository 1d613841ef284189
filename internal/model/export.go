package model

import "time"

// InterviewExport is the top-level JSON structure for session export.
type InterviewExport struct {
	ExportedAt time.Time       `json:"exported_at"`
	Sessions   []SessionResult `json:"sessions"`
}

// SessionResult holds one interview session for export.
type SessionResult struct {
	SessionID      string         `json:"session_id"`
	UserID         string         `json:"user_id"`
	TargetRole     string         `json:"target_role"`
	Kind           InterviewKind  `json:"kind"`
	Status         SessionStatus  `json:"status"`
	StartedAt      time.Time      `json:"started_at"`
	LastActivityAt time.Time      `json:"last_activity_at"`
	Turns          []TurnResult   `json:"turns"`
	ReadinessScore *int           `json:"readiness_score,omitempty"`
	ReadinessLevel ReadinessLevel `json:"readiness_level,omitempty"`
}

// TurnResult holds per-turn data for export.
type TurnResult struct {
	Number       int          `json:"turn_number"`
	Question     string       `json:"question"`
	Topic        string       `json:"topic"`
	Kind         QuestionKind `json:"kind"`
	Difficulty   Difficulty   `json:"difficulty"`
	IsFollowUp   bool         `json:"is_follow_up"`
	Answer       string       `json:"answer,omitempty"`
	OverallScore *int         `json:"overall_score,omitempty"`
	Missing      []string     `json:"missing_concepts,omitempty"`
}

// NewSessionResult flattens a session into its export form.
func NewSessionResult(s *SessionState) SessionResult {
	res := SessionResult{
		SessionID:      s.ID,
		UserID:         s.UserID,
		TargetRole:     s.TargetRole,
		Kind:           s.Kind,
		Status:         s.Status,
		StartedAt:      s.StartedAt,
		LastActivityAt: s.LastActivityAt,
	}
	for _, t := range s.Turns {
		tr := TurnResult{
			Number:     t.Number,
			Question:   t.Question.Text,
			Topic:      t.Question.Topic,
			Kind:       t.Question.Kind,
			Difficulty: t.Question.Difficulty,
			IsFollowUp: t.IsFollowUp,
		}
		if t.Answer != nil {
			tr.Answer = *t.Answer
		}
		if t.Evaluation != nil {
			score := t.Evaluation.OverallScore
			tr.OverallScore = &score
			tr.Missing = t.Evaluation.MissingConcepts
		}
		res.Turns = append(res.Turns, tr)
	}
	if s.Report != nil {
		score := s.Report.ReadinessScore
		res.ReadinessScore = &score
		res.ReadinessLevel = s.Report.ReadinessLevel
	}
	return res
}
