package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// SkillCategory tags a normalized skill token.
type SkillCategory string

const (
	CategoryTechnical SkillCategory = "technical"
	CategorySoft      SkillCategory = "soft"
	CategoryTool      SkillCategory = "tool"
	CategoryFramework SkillCategory = "framework"
	CategoryLanguage  SkillCategory = "language"
	CategoryConcept   SkillCategory = "concept"
)

// Skill is a case-folded token naming a competency.
type Skill struct {
	Token    string        `json:"token"`
	Category SkillCategory `json:"category,omitempty"`
}

// QuestionKind represents the style of an interview question.
type QuestionKind string

const (
	KindTechnical        QuestionKind = "technical"
	KindBehavioral       QuestionKind = "behavioral"
	KindSituational      QuestionKind = "situational"
	KindSystemDesign     QuestionKind = "system-design"
	KindCodingConceptual QuestionKind = "coding-conceptual"
)

// Valid reports whether k is a known question kind.
func (k QuestionKind) Valid() bool {
	switch k {
	case KindTechnical, KindBehavioral, KindSituational, KindSystemDesign, KindCodingConceptual:
		return true
	}
	return false
}

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of easy, medium or hard.
func (d Difficulty) Valid() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

// FocusKind is the composer's reason for asking a question.
type FocusKind string

const (
	FocusSkillValidation   FocusKind = "skill-validation"
	FocusGapProbe          FocusKind = "gap-probe"
	FocusRequirementCheck  FocusKind = "requirement-check"
	FocusFollowUp          FocusKind = "follow-up"
	FocusBehavioralGeneral FocusKind = "behavioral-general"
	FocusReinforce         FocusKind = "reinforce"
)

// Valid reports whether f is a known focus kind.
func (f FocusKind) Valid() bool {
	switch f {
	case FocusSkillValidation, FocusGapProbe, FocusRequirementCheck,
		FocusFollowUp, FocusBehavioralGeneral, FocusReinforce:
		return true
	}
	return false
}

// StructureFeature is one element of an answer's ideal structure.
type StructureFeature uint8

const (
	StructDefinition StructureFeature = 1 << iota
	StructExample
	StructUseCase
	StructTradeOff
	StructComparison
)

var structureNames = []struct {
	f    StructureFeature
	name string
}{
	{StructDefinition, "definition"},
	{StructExample, "example"},
	{StructUseCase, "useCase"},
	{StructTradeOff, "tradeOff"},
	{StructComparison, "comparison"},
}

// StructureSet is a bitset over StructureFeature values.
type StructureSet uint8

// Has reports whether f is part of the set.
func (s StructureSet) Has(f StructureFeature) bool {
	return uint8(s)&uint8(f) != 0
}

// With returns the set extended by f.
func (s StructureSet) With(f StructureFeature) StructureSet {
	return StructureSet(uint8(s) | uint8(f))
}

// Names lists the features in declaration order.
func (s StructureSet) Names() []string {
	var out []string
	for _, sn := range structureNames {
		if s.Has(sn.f) {
			out = append(out, sn.name)
		}
	}
	return out
}

// ParseStructure builds a set from feature names, rejecting unknown names.
func ParseStructure(names []string) (StructureSet, error) {
	var s StructureSet
	for _, n := range names {
		found := false
		for _, sn := range structureNames {
			if sn.name == n {
				s = s.With(sn.f)
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown structure feature %q", n)
		}
	}
	return s, nil
}

// MarshalJSON encodes the set as a list of feature names.
func (s StructureSet) MarshalJSON() ([]byte, error) {
	names := s.Names()
	if names == nil {
		names = []string{}
	}
	return json.Marshal(names)
}

// UnmarshalJSON decodes a list of feature names.
func (s *StructureSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	parsed, err := ParseStructure(names)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ExpectedComponents is the scoring contract attached to a question.
type ExpectedComponents struct {
	RequiredConcepts []string     `json:"required_concepts"`
	OptionalConcepts []string     `json:"optional_concepts"`
	KeyTerms         []string     `json:"key_terms"`
	DepthIndicators  []string     `json:"depth_indicators"`
	IdealStructure   StructureSet `json:"ideal_structure"`
}

// Empty reports whether no concepts are expected at all.
func (e ExpectedComponents) Empty() bool {
	return len(e.RequiredConcepts) == 0 && len(e.OptionalConcepts) == 0
}

// QuestionSource records where a question came from.
type QuestionSource string

const (
	SourceGenerated QuestionSource = "generated"
	SourceFallback  QuestionSource = "fallback"
	SourceImported  QuestionSource = "imported"
)

// Question is an immutable, content-addressed interview question.
type Question struct {
	Hash               string             `json:"hash"`
	Text               string             `json:"text"`
	Kind               QuestionKind       `json:"kind"`
	Difficulty         Difficulty         `json:"difficulty"`
	Topic              string             `json:"topic"`
	FocusKind          FocusKind          `json:"focus_kind"`
	Expected           ExpectedComponents `json:"expected"`
	ParentHash         string             `json:"parent_hash,omitempty"`
	SuggestedFollowUps []string           `json:"suggested_follow_ups,omitempty"`
	Source             QuestionSource     `json:"source"`
}

// Turn is one question/answer exchange in a session.
type Turn struct {
	Number     int         `json:"turn_number"`
	Question   Question    `json:"question"`
	AskedAt    time.Time   `json:"asked_at"`
	Answer     *string     `json:"answer,omitempty"`
	AnsweredAt *time.Time  `json:"answered_at,omitempty"`
	TimeSpent  int         `json:"time_spent_sec,omitempty"`
	MediaRef   string      `json:"media_ref,omitempty"`
	Evaluation *Evaluation `json:"evaluation,omitempty"`
	IsFollowUp bool        `json:"is_follow_up"`
	ParentTurn int         `json:"parent_turn,omitempty"`
	HintsUsed  int         `json:"hints_used,omitempty"`
}

// Pending reports whether the turn still awaits an evaluated answer.
func (t *Turn) Pending() bool {
	return t.Evaluation == nil
}

// Feedback holds templated, human-readable evaluation notes.
type Feedback struct {
	Strengths   []string `json:"strengths"`
	Weaknesses  []string `json:"weaknesses"`
	Suggestions []string `json:"suggestions"`
}

// DetectedGap is a gap produced by the evaluator for a single answer.
type DetectedGap struct {
	Skill    string      `json:"skill"`
	Kind     GapKind     `json:"kind"`
	Severity GapSeverity `json:"severity"`
}

// Evaluation holds the deterministic scores for one answer.
type Evaluation struct {
	Clarity           int           `json:"clarity"`
	Relevance         int           `json:"relevance"`
	Depth             int           `json:"depth"`
	Structure         int           `json:"structure"`
	TechnicalAccuracy int           `json:"technical_accuracy"`
	OverallScore      int           `json:"overall_score"`
	DetectedConcepts  []string      `json:"detected_concepts"`
	MissingConcepts   []string      `json:"missing_concepts"`
	Feedback          Feedback      `json:"feedback"`
	FollowUpNeeded    bool          `json:"follow_up_needed"`
	Gaps              []DetectedGap `json:"gaps,omitempty"`
	Degraded          bool          `json:"degraded,omitempty"`
}

// Metric names a single evaluation metric.
type Metric string

const (
	MetricClarity           Metric = "clarity"
	MetricRelevance         Metric = "relevance"
	MetricDepth             Metric = "depth"
	MetricStructure         Metric = "structure"
	MetricTechnicalAccuracy Metric = "technicalAccuracy"
)

// Metrics lists the metrics in reporting order.
var Metrics = []Metric{MetricClarity, MetricRelevance, MetricDepth, MetricStructure, MetricTechnicalAccuracy}

// Score returns the value of metric m.
func (e *Evaluation) Score(m Metric) int {
	switch m {
	case MetricClarity:
		return e.Clarity
	case MetricRelevance:
		return e.Relevance
	case MetricDepth:
		return e.Depth
	case MetricStructure:
		return e.Structure
	case MetricTechnicalAccuracy:
		return e.TechnicalAccuracy
	}
	return 0
}

// Experience is a single role on a resume.
type Experience struct {
	Title   string `json:"title" validate:"required"`
	Company string `json:"company"`
}

// ResumeView is the read-only resume projection the engine consumes.
type ResumeView struct {
	ID         string       `json:"id"`
	Skills     []string     `json:"skills"`
	Experience []Experience `json:"experience" validate:"dive"`
	Summary    string       `json:"summary,omitempty"`
}

// JobView is the read-only job projection the engine consumes.
type JobView struct {
	ID               string   `json:"id"`
	Title            string   `json:"title" validate:"required"`
	RequiredSkills   []string `json:"required_skills"`
	PreferredSkills  []string `json:"preferred_skills"`
	Responsibilities []string `json:"responsibilities"`
}
