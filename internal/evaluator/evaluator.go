// Package evaluator scores free-text answers with five deterministic
// metrics. The language oracle only extracts concepts; it never scores.
package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/pavelanni/interviewer/internal/llm"
	"github.com/pavelanni/interviewer/internal/llm/prompts"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/skills"
)

const (
	articulationSkill = "articulation"
	detailSkill       = "detailed-understanding"
	maxExtracted      = 50
)

// Extractor pulls concepts, terms, examples and comparisons out of an answer.
type Extractor interface {
	Extract(ctx context.Context, q model.Question, answer string) (prompts.Extraction, error)
}

// Localizer renders feedback sentences.
type Localizer interface {
	T(msgID string) string
	Td(msgID string, data map[string]any) string
}

// Evaluator runs the scoring pipeline.
type Evaluator struct {
	extractor Extractor
	loc       Localizer
}

// New creates an evaluator. A nil extractor scores every answer with an
// empty extraction.
func New(extractor Extractor, loc Localizer) *Evaluator {
	return &Evaluator{extractor: extractor, loc: loc}
}

// Evaluate extracts concepts and scores answer against q. Extraction
// failures degrade the evaluation but never fail it.
func (e *Evaluator) Evaluate(ctx context.Context, q model.Question, answer string) *model.Evaluation {
	x, err := e.extract(ctx, q, answer)
	degraded := err != nil
	if degraded {
		slog.Warn("concept extraction failed, scoring without it", "topic", q.Topic, "error", err)
		x = prompts.Extraction{}
	}
	eval := Score(q, answer, x, e.loc)
	eval.Degraded = degraded
	return eval
}

func (e *Evaluator) extract(ctx context.Context, q model.Question, answer string) (x prompts.Extraction, err error) {
	if e.extractor == nil {
		return prompts.Extraction{}, fmt.Errorf("%w: no extractor configured", llm.ErrUnavailable)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extractor panic: %v", r)
		}
	}()
	return e.extractor.Extract(ctx, q, answer)
}

// Score is the pure scoring function: the same question, answer and
// extraction always yield the same evaluation.
func Score(q model.Question, answer string, x prompts.Extraction, loc Localizer) *model.Evaluation {
	f := preprocess(answer)
	x = normalizeExtraction(x)
	if len(x.Examples) > 0 {
		f.hasExample = true
	}
	if len(x.Comparisons) > 0 {
		f.hasComparison = true
	}

	exp := q.Expected
	mentioned := mentionedConcepts(f, exp, x)
	missing := skills.Missing(skills.Union(exp.RequiredConcepts), mentioned)

	eval := &model.Evaluation{
		Clarity:           clarity(f),
		Relevance:         relevance(exp, mentioned),
		Depth:             depth(f, exp),
		Structure:         structure(f),
		TechnicalAccuracy: technicalAccuracy(exp, mentioned),
		DetectedConcepts:  nonNil(mentioned),
		MissingConcepts:   nonNil(missing),
	}
	eval.OverallScore = clamp(int(math.Round(
		0.20*float64(eval.Clarity) +
			0.25*float64(eval.Relevance) +
			0.25*float64(eval.Depth) +
			0.15*float64(eval.Structure) +
			0.15*float64(eval.TechnicalAccuracy))))

	eval.Gaps = detectGaps(eval, missing)
	eval.FollowUpNeeded = eval.Relevance < 50 || eval.Depth < 60 || eval.TechnicalAccuracy < 50
	eval.Feedback = feedback(eval, loc)
	return eval
}

func normalizeExtraction(x prompts.Extraction) prompts.Extraction {
	limit := func(s []string) []string {
		s = skills.Union(s)
		if len(s) > maxExtracted {
			s = s[:maxExtracted]
		}
		return s
	}
	return prompts.Extraction{
		Concepts:       limit(x.Concepts),
		TechnicalTerms: limit(x.TechnicalTerms),
		Examples:       limit(x.Examples),
		Comparisons:    limit(x.Comparisons),
	}
}

// mentionedConcepts unions the extraction with expected concepts and key
// terms found verbatim in the answer.
func mentionedConcepts(f features, exp model.ExpectedComponents, x prompts.Extraction) []string {
	var lexical []string
	for _, set := range [][]string{exp.RequiredConcepts, exp.OptionalConcepts, exp.KeyTerms} {
		for _, c := range set {
			if mentions(f.text, c) {
				lexical = append(lexical, c)
			}
		}
	}
	return skills.Union(lexical, x.Concepts, x.TechnicalTerms)
}

func clarity(f features) int {
	score := 100 - min(f.fillerCount*5, 30)
	switch {
	case f.wordCount < 20:
		score -= 40
	case f.wordCount < 50:
		score -= 20
	}
	if f.avgSentence > 30 {
		score -= 15
	}
	if f.sentenceCount >= 3 && f.sentenceCount <= 8 {
		score += 10
	}
	return clamp(score)
}

func relevance(exp model.ExpectedComponents, mentioned []string) int {
	required := skills.Union(exp.RequiredConcepts)
	optional := skills.Union(exp.OptionalConcepts)
	ratio := func(set []string) float64 {
		return float64(len(skills.Covered(set, mentioned))) / float64(max(1, len(set)))
	}

	var r float64
	switch {
	case len(required) == 0 && len(optional) == 0:
		return 70
	case len(optional) == 0:
		r = ratio(required)
	case len(required) == 0:
		r = ratio(optional)
	default:
		r = 0.8*ratio(required) + 0.2*ratio(optional)
	}
	return clamp(int(math.Round(100 * r)))
}

func depth(f features, exp model.ExpectedComponents) int {
	score := 0
	if f.hasExample {
		score += 25
	}
	if f.hasComparison {
		score += 20
	}
	if f.hasTradeOff {
		score += 25
	}
	if f.wordCount > 100 {
		score += 15
	}
	if f.wordCount > 150 {
		score += 10
	}

	indicators := 0
	for _, ind := range skills.Union(exp.DepthIndicators) {
		if indicatorPresent(f, ind) {
			indicators++
		}
	}
	score += min(5*indicators, 25)

	ideal := exp.IdealStructure
	present := map[model.StructureFeature]bool{
		model.StructExample:    f.hasExample,
		model.StructComparison: f.hasComparison,
		model.StructTradeOff:   f.hasTradeOff,
		model.StructDefinition: f.hasIntro,
		model.StructUseCase:    f.hasExample || containsAny(f.text, []string{"use case", "used for", "useful when", "in production"}),
	}
	for _, feat := range []model.StructureFeature{
		model.StructDefinition, model.StructExample, model.StructUseCase, model.StructTradeOff, model.StructComparison,
	} {
		if ideal.Has(feat) && !present[feat] {
			score -= 10
		}
	}
	return clamp(score)
}

func structure(f features) int {
	score := 40
	if f.hasIntro {
		score += 20
	}
	if f.hasConclusion {
		score += 20
	}
	score += min(5*f.flowCount, 20)
	return clamp(score)
}

func technicalAccuracy(exp model.ExpectedComponents, mentioned []string) int {
	if len(mentioned) == 0 {
		return 0
	}
	if exp.Empty() {
		return 80
	}
	expected := skills.Union(exp.RequiredConcepts, exp.OptionalConcepts, exp.KeyTerms)
	correct := skills.Covered(mentioned, expected)
	return clamp(int(math.Round(100 * float64(len(correct)) / float64(len(mentioned)))))
}

func detectGaps(eval *model.Evaluation, missing []string) []model.DetectedGap {
	var out []model.DetectedGap
	for _, c := range missing {
		out = append(out, model.DetectedGap{Skill: c, Kind: model.GapKnowledge, Severity: model.SeverityHigh})
	}
	if eval.Relevance >= 60 && eval.Depth < 50 {
		out = append(out, model.DetectedGap{Skill: articulationSkill, Kind: model.GapExplanation, Severity: model.SeverityMedium})
	}
	if eval.Structure >= 70 && eval.Depth < 50 {
		out = append(out, model.DetectedGap{Skill: detailSkill, Kind: model.GapDepth, Severity: model.SeverityMedium})
	}
	return out
}

var metricMessages = map[model.Metric]string{
	model.MetricClarity:           "Clarity",
	model.MetricRelevance:         "Relevance",
	model.MetricDepth:             "Depth",
	model.MetricStructure:         "Structure",
	model.MetricTechnicalAccuracy: "TechnicalAccuracy",
}

var gapSuggestions = map[model.GapKind]string{
	model.GapKnowledge:        "SuggestKnowledgeGap",
	model.GapExplanation:      "SuggestExplanationGap",
	model.GapDepth:            "SuggestDepthGap",
	model.GapApplication:      "SuggestApplicationGap",
	model.GapResumeMissing:    "SuggestResumeMissing",
	model.GapInterviewMissing: "SuggestInterviewMissing",
}

func feedback(eval *model.Evaluation, loc Localizer) model.Feedback {
	fb := model.Feedback{Strengths: []string{}, Weaknesses: []string{}, Suggestions: []string{}}
	if loc == nil {
		return fb
	}
	for _, m := range model.Metrics {
		switch score := eval.Score(m); {
		case score >= 80:
			fb.Strengths = append(fb.Strengths, loc.T("Strength"+metricMessages[m]))
		case score < 60:
			fb.Weaknesses = append(fb.Weaknesses, loc.T("Weakness"+metricMessages[m]))
		}
	}
	for _, g := range eval.Gaps {
		fb.Suggestions = append(fb.Suggestions, loc.Td(gapSuggestions[g.Kind], map[string]any{"Skill": g.Skill}))
	}
	return fb
}

func clamp(v int) int {
	return min(max(v, 0), 100)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
