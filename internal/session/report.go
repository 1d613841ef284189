package session

import (
	"math"
	"time"

	"github.com/pavelanni/interviewer/internal/model"
)

const (
	gapPenaltyPerGap   = 5
	gapPenaltyCap      = 30
	consistencyRange   = 15
	consistencyBonus   = 10
	highlyConfidentMin = 80
	interviewReadyMin  = 65
	needsImprovingMin  = 40
)

// Conclude computes the final report. Terminated sessions get no
// consistency bonus.
func Conclude(s *model.SessionState, openGaps int, terminated bool, now time.Time) *model.FinalReport {
	r := &model.FinalReport{
		MetricMeans:      make(map[model.Metric]float64, len(model.Metrics)),
		OpenGapCount:     openGaps,
		StrongTopics:     nonNil(s.StrongTopics),
		StrugglingTopics: nonNil(s.StrugglingTopics),
		Terminated:       terminated,
		ConcludedAt:      now.UTC(),
	}

	sums := make(map[model.Metric]int, len(model.Metrics))
	overall := 0
	for _, t := range s.Turns {
		if t.Evaluation == nil {
			continue
		}
		r.TurnsAnswered++
		overall += t.Evaluation.OverallScore
		for _, m := range model.Metrics {
			sums[m] += t.Evaluation.Score(m)
		}
	}

	if r.TurnsAnswered > 0 {
		n := float64(r.TurnsAnswered)
		r.MeanOverall = float64(overall) / n
		for _, m := range model.Metrics {
			r.MetricMeans[m] = float64(sums[m]) / n
		}
	}

	score := r.MeanOverall - float64(min(gapPenaltyPerGap*openGaps, gapPenaltyCap))
	if !terminated && r.TurnsAnswered > 0 && metricRange(r.MetricMeans) < consistencyRange {
		r.ConsistencyBonus = true
		score += consistencyBonus
	}
	r.ReadinessScore = min(max(int(math.Round(score)), 0), 100)
	r.ReadinessLevel = ReadinessLevel(r.ReadinessScore)
	return r
}

func metricRange(means map[model.Metric]float64) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, m := range model.Metrics {
		v := means[m]
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return hi - lo
}

// ReadinessLevel bands a readiness score.
func ReadinessLevel(score int) model.ReadinessLevel {
	switch {
	case score >= highlyConfidentMin:
		return model.ReadinessHighlyConfident
	case score >= interviewReadyMin:
		return model.ReadinessInterviewReady
	case score >= needsImprovingMin:
		return model.ReadinessNeedsImprovement
	default:
		return model.ReadinessNotReady
	}
}
