package session

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pavelanni/interviewer/internal/model"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestState(required ...string) *model.SessionState {
	return New(Params{
		ID:              "s1",
		UserID:          "u1",
		Kind:            model.InterviewTechnical,
		TargetRole:      "Backend Engineer",
		CandidateSkills: []string{"Go", "Docker", "PostgreSQL"},
		RequiredSkills:  required,
		Now:             t0,
	})
}

func q(topic string) model.Question {
	return model.Question{
		Hash:       "h-" + topic,
		Text:       "Tell me about " + topic,
		Kind:       model.KindTechnical,
		Difficulty: model.DifficultyMedium,
		Topic:      topic,
		FocusKind:  model.FocusSkillValidation,
	}
}

// answerTurn asks a question on topic and closes it with score.
func answerTurn(t *testing.T, s *model.SessionState, topic string, score int) {
	t.Helper()
	if _, err := Ask(s, q(topic), 0, t0); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if _, err := RecordAnswer(s, "answer", 30, "", t0); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	eval := &model.Evaluation{
		Clarity: score, Relevance: score, Depth: score, Structure: score, TechnicalAccuracy: score,
		OverallScore: score,
	}
	if _, err := Close(s, eval, t0); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func checkInvariants(t *testing.T, s *model.SessionState) {
	t.Helper()
	pending := 0
	for _, turn := range s.Turns {
		if turn.Pending() {
			pending++
		}
	}
	if pending > 1 {
		t.Errorf("%d pending turns", pending)
	}
	if len(s.Turns) != len(s.TopicsAsked) {
		t.Errorf("turns=%d topicsAsked=%d", len(s.Turns), len(s.TopicsAsked))
	}
	for _, strong := range s.StrongTopics {
		for _, weak := range s.StrugglingTopics {
			if strong == weak {
				t.Errorf("topic %q is both strong and struggling", strong)
			}
		}
	}
	if !s.CurrentDifficulty.Valid() {
		t.Errorf("invalid difficulty %q", s.CurrentDifficulty)
	}
}

func TestNewInitialState(t *testing.T) {
	s := newTestState("Kubernetes")
	if s.Status != model.StatusActive || s.CurrentDifficulty != model.DifficultyMedium {
		t.Errorf("unexpected initial state %s/%s", s.Status, s.CurrentDifficulty)
	}
	if len(s.Turns) != 0 || len(s.PerformanceWindow) != 0 {
		t.Error("expected no turns and an empty window")
	}
	if s.RequiredSkills[0] != "kubernetes" {
		t.Errorf("required skills not normalized: %v", s.RequiredSkills)
	}
}

func TestAskRejectsSecondPending(t *testing.T) {
	s := newTestState()
	if _, err := Ask(s, q("go"), 0, t0); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if _, err := Ask(s, q("docker"), 0, t0); !errors.Is(err, ErrPendingTurn) {
		t.Errorf("expected ErrPendingTurn, got %v", err)
	}
	checkInvariants(t, s)
}

func TestCloseWithoutPending(t *testing.T) {
	s := newTestState()
	if _, err := Close(s, &model.Evaluation{}, t0); !errors.Is(err, ErrNoPendingTurn) {
		t.Errorf("expected ErrNoPendingTurn, got %v", err)
	}
	if _, err := RecordAnswer(s, "x", 1, "", t0); !errors.Is(err, ErrNoPendingTurn) {
		t.Errorf("expected ErrNoPendingTurn, got %v", err)
	}
}

func TestDifficultyFor(t *testing.T) {
	tests := []struct {
		avg  float64
		want model.Difficulty
	}{
		{100, model.DifficultyHard},
		{85, model.DifficultyHard},
		{84.9, model.DifficultyMedium},
		{60, model.DifficultyMedium},
		{59.9, model.DifficultyEasy},
		{0, model.DifficultyEasy},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.avg), func(t *testing.T) {
			if got := DifficultyFor(tt.avg); got != tt.want {
				t.Errorf("DifficultyFor(%v) = %s, want %s", tt.avg, got, tt.want)
			}
		})
	}
}

func TestDifficultyEscalation(t *testing.T) {
	s := newTestState()
	for i, score := range []int{90, 88, 95, 86, 92} {
		answerTurn(t, s, fmt.Sprintf("topic-%d", i), score)
		if i >= 2 && s.CurrentDifficulty != model.DifficultyHard {
			t.Errorf("turn %d: difficulty %s, want hard", i+1, s.CurrentDifficulty)
		}
		checkInvariants(t, s)
	}
}

func TestDifficultyDropsToEasy(t *testing.T) {
	s := newTestState()
	answerTurn(t, s, "go", 90)
	answerTurn(t, s, "go", 20)
	answerTurn(t, s, "go", 30)
	if s.CurrentDifficulty != model.DifficultyEasy {
		t.Errorf("difficulty %s, want easy (avg 46.7)", s.CurrentDifficulty)
	}
}

func TestWindowBounded(t *testing.T) {
	s := newTestState()
	for i := 0; i < 14; i++ {
		OnTurnClose(s, "go", i)
	}
	if len(s.PerformanceWindow) != model.WindowSize {
		t.Fatalf("window length %d, want %d", len(s.PerformanceWindow), model.WindowSize)
	}
	if s.PerformanceWindow[0] != 4 || s.PerformanceWindow[9] != 13 {
		t.Errorf("unexpected window %v", s.PerformanceWindow)
	}
}

func TestTopicPromotion(t *testing.T) {
	s := newTestState()
	answerTurn(t, s, "docker", 40)
	if len(s.StrugglingTopics) != 1 {
		t.Fatalf("expected docker to be struggling: %v", s.StrugglingTopics)
	}
	answerTurn(t, s, "docker", 85)
	if len(s.StrugglingTopics) != 0 || len(s.StrongTopics) != 1 {
		t.Errorf("expected promotion: struggling=%v strong=%v", s.StrugglingTopics, s.StrongTopics)
	}
	// a strong topic is not demoted by a later weak answer
	answerTurn(t, s, "docker", 30)
	if len(s.StrugglingTopics) != 0 {
		t.Errorf("strong topic re-entered struggling: %v", s.StrugglingTopics)
	}
	checkInvariants(t, s)
}

func TestShouldStop(t *testing.T) {
	t.Run("never before min turns", func(t *testing.T) {
		s := newTestState()
		for i := 0; i < 4; i++ {
			answerTurn(t, s, "go", 100)
		}
		if ShouldStop(s, 5, 15) {
			t.Error("stopped before five turns")
		}
	})

	t.Run("stops at max turns regardless", func(t *testing.T) {
		s := newTestState("a", "b", "c", "d", "e", "f", "g", "h")
		for i := 0; i < 15; i++ {
			answerTurn(t, s, "unrelated", 10)
		}
		if !ShouldStop(s, 5, 15) {
			t.Error("turn 15 must always conclude")
		}
	})

	t.Run("coverage reached", func(t *testing.T) {
		s := newTestState("go", "docker", "kubernetes", "postgresql", "redis", "kafka", "grpc", "terraform")
		for i, topic := range []string{"go", "docker", "kubernetes", "postgresql", "go"} {
			answerTurn(t, s, topic, 70+i)
		}
		if !ShouldStop(s, 5, 15) {
			t.Error("expected stop at turn 5 with half the required skills probed")
		}
	})

	t.Run("insufficient coverage", func(t *testing.T) {
		s := newTestState("go", "docker", "kubernetes", "postgresql", "redis", "kafka", "grpc", "terraform")
		for _, topic := range []string{"go", "docker", "go", "docker", "go"} {
			answerTurn(t, s, topic, 90)
		}
		if ShouldStop(s, 5, 15) {
			t.Error("only 2 of 8 critical skills probed")
		}
	})

	t.Run("low recent average gets more chances", func(t *testing.T) {
		s := newTestState("go")
		for i := 0; i < 6; i++ {
			answerTurn(t, s, "go", 40)
		}
		if ShouldStop(s, 5, 15) {
			t.Error("expected more chances below turn 10")
		}
		for i := 0; i < 4; i++ {
			answerTurn(t, s, "go", 40)
		}
		if !ShouldStop(s, 5, 15) {
			t.Error("expected stop at turn 10")
		}
	})

	t.Run("candidate skills when no requirements", func(t *testing.T) {
		s := newTestState()
		for _, topic := range []string{"go", "docker", "go", "docker", "go"} {
			answerTurn(t, s, topic, 75)
		}
		if !ShouldStop(s, 5, 15) {
			t.Error("2 of 3 candidate skills probed should suffice")
		}
	})
}

func TestFollowUpChain(t *testing.T) {
	s := newTestState()
	answerTurn(t, s, "go", 40)
	if _, err := Ask(s, q("go"), 1, t0); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ConsecutiveFollowUps(s) != 1 {
		t.Errorf("ConsecutiveFollowUps() = %d, want 1", ConsecutiveFollowUps(s))
	}
	last := s.LastTurn()
	if !last.IsFollowUp || last.ParentTurn != 1 {
		t.Errorf("unexpected follow-up turn %+v", last)
	}
	checkInvariants(t, s)
}

func TestIdle(t *testing.T) {
	s := newTestState()
	if Idle(s, 24*time.Hour, t0.Add(23*time.Hour)) {
		t.Error("not idle yet")
	}
	if !Idle(s, 24*time.Hour, t0.Add(25*time.Hour)) {
		t.Error("expected idle")
	}
	if Idle(s, 0, t0.Add(1000*time.Hour)) {
		t.Error("zero timeout disables idling")
	}
}

func TestSnapshot(t *testing.T) {
	s := newTestState()
	answerTurn(t, s, "go", 70)
	Ask(s, q("docker"), 0, t0)
	u := Snapshot(s, 15)
	if u.TurnsAsked != 2 || u.TurnsAnswered != 1 || u.PendingTurn == nil || *u.PendingTurn != 2 {
		t.Errorf("unexpected snapshot %+v", u)
	}
	if u.StrugglingTopics == nil || u.StrongTopics == nil {
		t.Error("topic lists should be empty, not nil")
	}
}
