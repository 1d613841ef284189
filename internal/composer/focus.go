package composer

import (
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/skills"
)

// GeneralTopic is the topic of behavioral-general questions.
const GeneralTopic = "general"

// Focus is the reason for asking the next question.
type Focus struct {
	Kind     model.FocusKind
	Topic    string
	Severity model.GapSeverity
}

// ChooseFocus applies the focus rules in priority order. draw returns a
// uniform value in [0,1) and is consulted only when struggling topics exist.
func ChooseFocus(s *model.SessionState, draw func() float64, reinforceProb float64) Focus {
	if len(s.StrugglingTopics) > 0 && draw() < reinforceProb {
		return Focus{Kind: model.FocusReinforce, Topic: s.StrugglingTopics[0]}
	}
	for _, g := range s.IdentifiedGaps {
		if !skills.Contains(s.TopicsAsked, g.Skill) {
			return Focus{Kind: model.FocusGapProbe, Topic: skills.Fold(g.Skill), Severity: g.Severity}
		}
	}
	for _, sk := range s.CandidateSkills {
		if !skills.Contains(s.TopicsAsked, sk) {
			return Focus{Kind: model.FocusSkillValidation, Topic: skills.Fold(sk)}
		}
	}
	for _, sk := range s.RequiredSkills {
		if !skills.Contains(s.TopicsAsked, sk) {
			return Focus{Kind: model.FocusRequirementCheck, Topic: skills.Fold(sk)}
		}
	}
	return Focus{Kind: model.FocusBehavioralGeneral, Topic: GeneralTopic}
}

// KindFor derives the question style from the focus and interview kind.
func KindFor(focus model.FocusKind, interview model.InterviewKind) model.QuestionKind {
	switch {
	case focus == model.FocusBehavioralGeneral:
		return model.KindBehavioral
	case interview == model.InterviewSystemDesign:
		return model.KindSystemDesign
	case interview == model.InterviewBehavioral:
		return model.KindSituational
	default:
		return model.KindTechnical
	}
}

// idealStructureFor is the default answer shape for generated questions.
func idealStructureFor(kind model.QuestionKind) model.StructureSet {
	var s model.StructureSet
	switch kind {
	case model.KindTechnical, model.KindCodingConceptual:
		s = s.With(model.StructDefinition).With(model.StructExample)
	case model.KindSystemDesign:
		s = s.With(model.StructTradeOff).With(model.StructComparison)
	case model.KindBehavioral, model.KindSituational:
		s = s.With(model.StructExample)
	}
	return s
}
