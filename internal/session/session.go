// Package session implements the per-interview state machine: turn
// bookkeeping, the rolling performance window, difficulty adaptation and
// the termination predicate. Functions here are not safe for concurrent
// use; the caller serializes access per session.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/skills"
)

const (
	recentWindow      = 3
	hardThreshold     = 85
	mediumThreshold   = 60
	strugglingBelow   = 60
	strongFrom        = 80
	maxCriticalSkills = 10
	giveMoreChances   = 10
)

var (
	// ErrPendingTurn is returned when a turn is asked while another is open.
	ErrPendingTurn = errors.New("a turn is already pending")
	// ErrNoPendingTurn is returned when closing without an open turn.
	ErrNoPendingTurn = errors.New("no pending turn")
)

// Params describes a new session.
type Params struct {
	ID              string
	UserID          string
	ResumeID        string
	JobID           string
	Kind            model.InterviewKind
	TargetRole      string
	CandidateSkills []string
	RequiredSkills  []string
	PreferredSkills []string
	Now             time.Time
}

// New builds the initial state: active, medium difficulty, no turns.
func New(p Params) *model.SessionState {
	now := p.Now.UTC()
	return &model.SessionState{
		Version:           model.SchemaVersion,
		ID:                p.ID,
		UserID:            p.UserID,
		ResumeID:          p.ResumeID,
		JobID:             p.JobID,
		Kind:              p.Kind,
		TargetRole:        p.TargetRole,
		CandidateSkills:   skills.Union(p.CandidateSkills),
		RequiredSkills:    skills.Union(p.RequiredSkills),
		PreferredSkills:   skills.Union(p.PreferredSkills),
		CurrentDifficulty: model.DifficultyMedium,
		Status:            model.StatusActive,
		StartedAt:         now,
		LastActivityAt:    now,
	}
}

// Ask appends a pending turn for q and records its topic.
func Ask(s *model.SessionState, q model.Question, parentTurn int, now time.Time) (*model.Turn, error) {
	if s.PendingTurn() != nil {
		return nil, ErrPendingTurn
	}
	s.Turns = append(s.Turns, model.Turn{
		Number:     len(s.Turns) + 1,
		Question:   q,
		AskedAt:    now.UTC(),
		IsFollowUp: parentTurn > 0,
		ParentTurn: parentTurn,
	})
	topic := skills.Fold(q.Topic)
	s.TopicsAsked = append(s.TopicsAsked, topic)
	s.SkillsProbed = skills.Add(s.SkillsProbed, topic)
	s.LastActivityAt = now.UTC()
	return &s.Turns[len(s.Turns)-1], nil
}

// RecordAnswer stores the answer on the pending turn without closing it.
func RecordAnswer(s *model.SessionState, answer string, timeSpent int, mediaRef string, now time.Time) (*model.Turn, error) {
	t := s.PendingTurn()
	if t == nil {
		return nil, ErrNoPendingTurn
	}
	at := now.UTC()
	t.Answer = &answer
	t.AnsweredAt = &at
	t.TimeSpent = timeSpent
	t.MediaRef = mediaRef
	s.LastActivityAt = at
	return t, nil
}

// Close attaches eval to the pending turn and applies the close rules.
func Close(s *model.SessionState, eval *model.Evaluation, now time.Time) (*model.Turn, error) {
	t := s.PendingTurn()
	if t == nil {
		return nil, ErrNoPendingTurn
	}
	if eval == nil {
		return nil, fmt.Errorf("close turn %d: nil evaluation", t.Number)
	}
	t.Evaluation = eval
	OnTurnClose(s, t.Question.Topic, eval.OverallScore)
	s.LastActivityAt = now.UTC()
	return t, nil
}

// OnTurnClose updates the window, difficulty and topic sets for a closed
// turn on topic with the given overall score.
func OnTurnClose(s *model.SessionState, topic string, score int) {
	s.PerformanceWindow = s.PerformanceWindow.Push(score)
	s.CurrentDifficulty = DifficultyFor(s.PerformanceWindow.RecentAverage(recentWindow))

	topic = skills.Fold(topic)
	if topic == "" {
		return
	}
	if score < strugglingBelow && !skills.Contains(s.StrongTopics, topic) {
		s.StrugglingTopics = skills.Add(s.StrugglingTopics, topic)
	}
	if score >= strongFrom {
		s.StrongTopics = skills.Add(s.StrongTopics, topic)
		s.StrugglingTopics = skills.Remove(s.StrugglingTopics, topic)
	}
}

// DifficultyFor maps a recent average onto a difficulty.
func DifficultyFor(recentAvg float64) model.Difficulty {
	switch {
	case recentAvg >= hardThreshold:
		return model.DifficultyHard
	case recentAvg >= mediumThreshold:
		return model.DifficultyMedium
	default:
		return model.DifficultyEasy
	}
}

// CriticalSkills are the required skills, or the first ten candidate
// skills when the job lists none.
func CriticalSkills(s *model.SessionState) []string {
	if len(s.RequiredSkills) > 0 {
		return s.RequiredSkills
	}
	if len(s.CandidateSkills) > maxCriticalSkills {
		return s.CandidateSkills[:maxCriticalSkills]
	}
	return s.CandidateSkills
}

// ShouldStop reports whether the interview has gathered enough evidence.
func ShouldStop(s *model.SessionState, minTurns, maxTurns int) bool {
	n := len(s.Turns)
	if n >= maxTurns {
		return true
	}
	if n < minTurns {
		return false
	}
	critical := CriticalSkills(s)
	probed := len(skills.Covered(critical, s.SkillsProbed))
	if float64(probed) < 0.5*float64(len(critical)) {
		return false
	}
	if s.PerformanceWindow.RecentAverage(recentWindow) < strugglingBelow && n < giveMoreChances {
		return false
	}
	return true
}

// Touch refreshes the activity timestamp.
func Touch(s *model.SessionState, now time.Time) {
	s.LastActivityAt = now.UTC()
}

// Idle reports whether s has been inactive for longer than timeout.
func Idle(s *model.SessionState, timeout time.Duration, now time.Time) bool {
	return timeout > 0 && now.Sub(s.LastActivityAt) > timeout
}

// ConsecutiveFollowUps counts the follow-up chain ending at the last turn.
func ConsecutiveFollowUps(s *model.SessionState) int {
	n := 0
	for i := len(s.Turns) - 1; i >= 0 && s.Turns[i].IsFollowUp; i-- {
		n++
	}
	return n
}

// Snapshot builds the state_update payload.
func Snapshot(s *model.SessionState, maxTurns int) model.StateUpdate {
	u := model.StateUpdate{
		Status:            s.Status,
		TurnsAsked:        len(s.Turns),
		TurnsAnswered:     s.ClosedTurns(),
		MaxTurns:          maxTurns,
		CurrentDifficulty: s.CurrentDifficulty,
		RecentAverage:     s.PerformanceWindow.RecentAverage(recentWindow),
		StrugglingTopics:  nonNil(s.StrugglingTopics),
		StrongTopics:      nonNil(s.StrongTopics),
	}
	if t := s.PendingTurn(); t != nil {
		n := t.Number
		u.PendingTurn = &n
	}
	return u
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return append([]string(nil), s...)
}
