package model

import "time"

// EventType names a server-to-client push event.
type EventType string

const (
	EventSessionStarted EventType = "session_started"
	EventQuestion       EventType = "question"
	EventEvaluating     EventType = "evaluating"
	EventEvaluation     EventType = "evaluation"
	EventStateUpdate    EventType = "state_update"
	EventHint           EventType = "hint"
	EventPaused         EventType = "paused"
	EventResumed        EventType = "resumed"
	EventCompleted      EventType = "completed"
	EventError          EventType = "error"
)

// Event is one push message bound to a session.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Data      any       `json:"data,omitempty"`
	At        time.Time `json:"timestamp"`
}

// SessionStarted is the payload of session_started.
type SessionStarted struct {
	SessionID  string        `json:"session_id"`
	UserID     string        `json:"user_id"`
	TargetRole string        `json:"target_role"`
	Kind       InterviewKind `json:"kind"`
	MaxTurns   int           `json:"max_turns"`
	Difficulty Difficulty    `json:"difficulty"`
}

// QuestionEnvelope is the payload of a question event.
type QuestionEnvelope struct {
	TurnNumber        int          `json:"turnNumber"`
	Text              string       `json:"text"`
	Kind              QuestionKind `json:"kind"`
	Topic             string       `json:"topic"`
	Difficulty        Difficulty   `json:"difficulty"`
	IsFollowUp        bool         `json:"isFollowUp"`
	ParentTurnNumber  *int         `json:"parentTurnNumber,omitempty"`
	ExpectedKeyPoints []string     `json:"expectedKeyPoints,omitempty"`
	Timestamp         time.Time    `json:"timestamp"`
}

// NewQuestionEnvelope projects a turn onto the client-facing envelope.
func NewQuestionEnvelope(t *Turn) QuestionEnvelope {
	env := QuestionEnvelope{
		TurnNumber: t.Number,
		Text:       t.Question.Text,
		Kind:       t.Question.Kind,
		Topic:      t.Question.Topic,
		Difficulty: t.Question.Difficulty,
		IsFollowUp: t.IsFollowUp,
		Timestamp:  t.AskedAt,
	}
	if t.IsFollowUp && t.ParentTurn > 0 {
		p := t.ParentTurn
		env.ParentTurnNumber = &p
	}
	points := append([]string{}, t.Question.Expected.RequiredConcepts...)
	points = append(points, t.Question.Expected.KeyTerms...)
	if len(points) > 0 {
		env.ExpectedKeyPoints = points
	}
	return env
}

// MetricScores is the metrics block of an evaluation envelope.
type MetricScores struct {
	Clarity           int `json:"clarity"`
	Relevance         int `json:"relevance"`
	Depth             int `json:"depth"`
	Structure         int `json:"structure"`
	TechnicalAccuracy int `json:"technicalAccuracy"`
}

// FeedbackEnvelope extends Feedback with a per-metric breakdown.
type FeedbackEnvelope struct {
	Strengths      []string       `json:"strengths"`
	Weaknesses     []string       `json:"weaknesses"`
	Suggestions    []string       `json:"suggestions"`
	ScoreBreakdown map[string]int `json:"scoreBreakdown"`
}

// EvaluationEnvelope is the payload of an evaluation event.
type EvaluationEnvelope struct {
	TurnNumber      int              `json:"turnNumber"`
	Score           int              `json:"score"`
	Metrics         MetricScores     `json:"metrics"`
	Feedback        FeedbackEnvelope `json:"feedback"`
	MissingConcepts []string         `json:"missingConcepts"`
}

// NewEvaluationEnvelope projects an evaluation onto the client-facing envelope.
func NewEvaluationEnvelope(turn int, e *Evaluation) EvaluationEnvelope {
	breakdown := make(map[string]int, len(Metrics)+1)
	for _, m := range Metrics {
		breakdown[string(m)] = e.Score(m)
	}
	breakdown["overall"] = e.OverallScore
	missing := e.MissingConcepts
	if missing == nil {
		missing = []string{}
	}
	return EvaluationEnvelope{
		TurnNumber: turn,
		Score:      e.OverallScore,
		Metrics: MetricScores{
			Clarity:           e.Clarity,
			Relevance:         e.Relevance,
			Depth:             e.Depth,
			Structure:         e.Structure,
			TechnicalAccuracy: e.TechnicalAccuracy,
		},
		Feedback: FeedbackEnvelope{
			Strengths:      e.Feedback.Strengths,
			Weaknesses:     e.Feedback.Weaknesses,
			Suggestions:    e.Feedback.Suggestions,
			ScoreBreakdown: breakdown,
		},
		MissingConcepts: missing,
	}
}

// Evaluating is the payload of the evaluating event.
type Evaluating struct {
	TurnNumber int `json:"turnNumber"`
}

// StateUpdate is a progress snapshot sent on request.
type StateUpdate struct {
	Status            SessionStatus `json:"status"`
	TurnsAsked        int           `json:"turnsAsked"`
	TurnsAnswered     int           `json:"turnsAnswered"`
	MaxTurns          int           `json:"maxTurns"`
	CurrentDifficulty Difficulty    `json:"currentDifficulty"`
	RecentAverage     float64       `json:"recentAverage"`
	StrugglingTopics  []string      `json:"strugglingTopics"`
	StrongTopics      []string      `json:"strongTopics"`
	PendingTurn       *int          `json:"pendingTurn,omitempty"`
}

// HintEnvelope is the payload of a hint event.
type HintEnvelope struct {
	TurnNumber int    `json:"turnNumber"`
	Text       string `json:"text"`
	HintsUsed  int    `json:"hintsUsed"`
}

// ErrorEnvelope is the payload of an error event.
type ErrorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Completed is the payload of the completed event.
type Completed struct {
	Status  SessionStatus `json:"status"`
	Report  *FinalReport  `json:"report"`
	Summary string        `json:"summary"`
}
