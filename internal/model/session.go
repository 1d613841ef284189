package model

import "time"

// SessionStatus represents the status of an interview session.
type SessionStatus string

const (
	StatusActive     SessionStatus = "active"
	StatusPaused     SessionStatus = "paused"
	StatusCompleted  SessionStatus = "completed"
	StatusTerminated SessionStatus = "terminated"
)

// Finished reports whether no further transitions are possible.
func (s SessionStatus) Finished() bool {
	return s == StatusCompleted || s == StatusTerminated
}

// InterviewKind selects the overall flavour of an interview.
type InterviewKind string

const (
	InterviewTechnical    InterviewKind = "technical"
	InterviewBehavioral   InterviewKind = "behavioral"
	InterviewMixed        InterviewKind = "mixed"
	InterviewSystemDesign InterviewKind = "system-design"
)

// Valid reports whether k is a known interview kind.
func (k InterviewKind) Valid() bool {
	switch k {
	case InterviewTechnical, InterviewBehavioral, InterviewMixed, InterviewSystemDesign:
		return true
	}
	return false
}

// WindowSize is the capacity of the performance window.
const WindowSize = 10

// Window is a bounded buffer of the most recent overall scores.
type Window []int

// Push appends score, dropping the oldest entry past WindowSize.
func (w Window) Push(score int) Window {
	w = append(w, score)
	if len(w) > WindowSize {
		w = append(Window(nil), w[len(w)-WindowSize:]...)
	}
	return w
}

// RecentAverage is the mean of the last n entries (fewer if the window is shorter).
func (w Window) RecentAverage(n int) float64 {
	if len(w) == 0 || n <= 0 {
		return 0
	}
	if n > len(w) {
		n = len(w)
	}
	sum := 0
	for _, s := range w[len(w)-n:] {
		sum += s
	}
	return float64(sum) / float64(n)
}

// ReadinessLevel bands the readiness score.
type ReadinessLevel string

const (
	ReadinessHighlyConfident  ReadinessLevel = "highly-confident"
	ReadinessInterviewReady   ReadinessLevel = "interview-ready"
	ReadinessNeedsImprovement ReadinessLevel = "needs-improvement"
	ReadinessNotReady         ReadinessLevel = "not-ready"
)

// FinalReport summarizes a concluded session.
type FinalReport struct {
	TurnsAnswered    int                `json:"turns_answered"`
	MetricMeans      map[Metric]float64 `json:"metric_means"`
	MeanOverall      float64            `json:"mean_overall"`
	OpenGapCount     int                `json:"open_gap_count"`
	ConsistencyBonus bool               `json:"consistency_bonus"`
	ReadinessScore   int                `json:"readiness_score"`
	ReadinessLevel   ReadinessLevel     `json:"readiness_level"`
	StrongTopics     []string           `json:"strong_topics"`
	StrugglingTopics []string           `json:"struggling_topics"`
	Terminated       bool               `json:"terminated"`
	ConcludedAt      time.Time          `json:"concluded_at"`
}

// SchemaVersion is bumped on additive changes to the persisted state.
const SchemaVersion = 1

// SessionState is the complete, persistable state of one interview.
type SessionState struct {
	Version           int             `json:"version"`
	ID                string          `json:"session_id"`
	UserID            string          `json:"user_id"`
	ResumeID          string          `json:"resume_id"`
	JobID             string          `json:"job_id,omitempty"`
	Kind              InterviewKind   `json:"kind"`
	TargetRole        string          `json:"target_role"`
	CandidateSkills   []string        `json:"candidate_skills"`
	RequiredSkills    []string        `json:"required_skills"`
	PreferredSkills   []string        `json:"preferred_skills"`
	IdentifiedGaps    []IdentifiedGap `json:"identified_gaps"`
	Turns             []Turn          `json:"turns"`
	TopicsAsked       []string        `json:"topics_asked"`
	SkillsProbed      []string        `json:"skills_probed"`
	StrugglingTopics  []string        `json:"struggling_topics"`
	StrongTopics      []string        `json:"strong_topics"`
	PerformanceWindow Window          `json:"performance_window"`
	CurrentDifficulty Difficulty      `json:"current_difficulty"`
	Status            SessionStatus   `json:"status"`
	RecordedGapIDs    []string        `json:"recorded_gap_ids,omitempty"`
	Report            *FinalReport    `json:"report,omitempty"`
	StartedAt         time.Time       `json:"started_at"`
	LastActivityAt    time.Time       `json:"last_activity_at"`
}

// PendingTurn returns the open turn, or nil.
func (s *SessionState) PendingTurn() *Turn {
	if len(s.Turns) == 0 {
		return nil
	}
	t := &s.Turns[len(s.Turns)-1]
	if t.Pending() {
		return t
	}
	return nil
}

// LastTurn returns the most recent turn, or nil.
func (s *SessionState) LastTurn() *Turn {
	if len(s.Turns) == 0 {
		return nil
	}
	return &s.Turns[len(s.Turns)-1]
}

// ClosedTurns counts evaluated turns.
func (s *SessionState) ClosedTurns() int {
	n := 0
	for i := range s.Turns {
		if !s.Turns[i].Pending() {
			n++
		}
	}
	return n
}

// AskedHashes is the set of question hashes already used in this session.
func (s *SessionState) AskedHashes() map[string]bool {
	out := make(map[string]bool, len(s.Turns))
	for _, t := range s.Turns {
		out[t.Question.Hash] = true
	}
	return out
}
