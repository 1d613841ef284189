package session

import (
	"testing"

	"github.com/pavelanni/interviewer/internal/model"
)

func TestConclude(t *testing.T) {
	tests := []struct {
		name       string
		scores     []int
		openGaps   int
		terminated bool
		wantScore  int
		wantLevel  model.ReadinessLevel
		wantBonus  bool
	}{
		{"consistent strong", []int{80, 90}, 0, false, 95, model.ReadinessHighlyConfident, true},
		{"gap penalty", []int{80, 90}, 3, false, 80, model.ReadinessHighlyConfident, true},
		{"gap penalty capped", []int{70, 70}, 10, false, 50, model.ReadinessNeedsImprovement, true},
		{"terminated skips bonus", []int{80, 90}, 0, true, 85, model.ReadinessHighlyConfident, false},
		{"clamped at zero", []int{10}, 8, false, 0, model.ReadinessNotReady, true},
		{"no answers", nil, 0, false, 0, model.ReadinessNotReady, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestState()
			for _, score := range tt.scores {
				answerTurn(t, s, "go", score)
			}
			r := Conclude(s, tt.openGaps, tt.terminated, t0)
			if r.ReadinessScore != tt.wantScore {
				t.Errorf("ReadinessScore = %d, want %d", r.ReadinessScore, tt.wantScore)
			}
			if r.ReadinessLevel != tt.wantLevel {
				t.Errorf("ReadinessLevel = %s, want %s", r.ReadinessLevel, tt.wantLevel)
			}
			if r.ConsistencyBonus != tt.wantBonus {
				t.Errorf("ConsistencyBonus = %v, want %v", r.ConsistencyBonus, tt.wantBonus)
			}
			if r.ReadinessScore < 0 || r.ReadinessScore > 100 {
				t.Errorf("readiness out of range: %d", r.ReadinessScore)
			}
		})
	}
}

func TestConcludeInconsistentMetrics(t *testing.T) {
	s := newTestState()
	Ask(s, q("go"), 0, t0)
	RecordAnswer(s, "a", 1, "", t0)
	Close(s, &model.Evaluation{Clarity: 90, Relevance: 90, Depth: 40, Structure: 70, TechnicalAccuracy: 90, OverallScore: 75}, t0)

	r := Conclude(s, 0, false, t0)
	if r.ConsistencyBonus {
		t.Error("a 50-point metric spread must not earn the bonus")
	}
	if r.ReadinessScore != 75 || r.ReadinessLevel != model.ReadinessInterviewReady {
		t.Errorf("got %d/%s", r.ReadinessScore, r.ReadinessLevel)
	}
	if r.MetricMeans[model.MetricDepth] != 40 {
		t.Errorf("depth mean = %v", r.MetricMeans[model.MetricDepth])
	}
}

func TestReadinessLevelBands(t *testing.T) {
	tests := []struct {
		score int
		want  model.ReadinessLevel
	}{
		{100, model.ReadinessHighlyConfident},
		{80, model.ReadinessHighlyConfident},
		{79, model.ReadinessInterviewReady},
		{65, model.ReadinessInterviewReady},
		{64, model.ReadinessNeedsImprovement},
		{40, model.ReadinessNeedsImprovement},
		{39, model.ReadinessNotReady},
	}
	for _, tt := range tests {
		if got := ReadinessLevel(tt.score); got != tt.want {
			t.Errorf("ReadinessLevel(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}
