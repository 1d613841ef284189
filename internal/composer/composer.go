// Package composer picks the next interview question: from the cache when
// possible, from the language oracle otherwise, and from fixed templates
// when the oracle fails.
package composer

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pavelanni/interviewer/internal/cache"
	"github.com/pavelanni/interviewer/internal/llm"
	"github.com/pavelanni/interviewer/internal/llm/prompts"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/skills"
)

const (
	followUpBelow       = 60
	questionTokens      = 600
	followUpTokens      = 200
	questionTemp        = 0.7
	followUpTemp        = 0.4
	maxResumeRoles      = 2
	maxResponsibilities = 3

	sharedGenerationTimeout = 2 * time.Minute
)

// Localizer renders fallback question templates.
type Localizer interface {
	Td(msgID string, data map[string]any) string
}

// Archive stores generated questions outside the in-memory cache.
type Archive interface {
	ArchiveQuestion(ctx context.Context, q model.Question) error
}

// Options tune a Composer.
type Options struct {
	ReinforceProbability float64
	Rand                 func() float64 // defaults to math/rand/v2 Float64
	Archive              Archive
}

// Composer produces questions for sessions. It is safe for concurrent use
// across sessions.
type Composer struct {
	cache     *cache.Cache
	oracle    llm.Oracle
	prompts   *prompts.Set
	loc       Localizer
	reinforce float64
	draw      func() float64
	archive   Archive
	group     singleflight.Group
}

// New creates a composer.
func New(c *cache.Cache, oracle llm.Oracle, set *prompts.Set, loc Localizer, opts Options) *Composer {
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	return &Composer{
		cache:     c,
		oracle:    oracle,
		prompts:   set,
		loc:       loc,
		reinforce: opts.ReinforceProbability,
		draw:      opts.Rand,
		archive:   opts.Archive,
	}
}

// Compose returns the next question for s and the focus that selected it.
func (c *Composer) Compose(ctx context.Context, s *model.SessionState, resume model.ResumeView, job *model.JobView) (model.Question, Focus) {
	focus := ChooseFocus(s, c.draw, c.reinforce)
	asked := s.AskedHashes()
	log := slog.With("session_id", s.ID, "focus", focus.Kind, "topic", focus.Topic, "difficulty", s.CurrentDifficulty)

	if q, ok := c.cache.Lookup(focus.Kind, focus.Topic, s.CurrentDifficulty, asked); ok {
		c.cache.RecordUse(q.Hash)
		log.Debug("question cache hit", "hash", q.Hash)
		return q, focus
	}

	q, err := c.generate(ctx, s, focus, resume, job)
	if err == nil && !asked[q.Hash] {
		c.cache.RecordUse(q.Hash)
		log.Debug("question generated", "hash", q.Hash)
		return q, focus
	}
	if err != nil {
		log.Warn("question generation failed, using template", "error", err)
	}
	return c.fallback(s, focus, asked), focus
}

func (c *Composer) generate(ctx context.Context, s *model.SessionState, focus Focus, resume model.ResumeView, job *model.JobView) (model.Question, error) {
	if c.oracle == nil || c.prompts == nil {
		return model.Question{}, fmt.Errorf("%w: no oracle configured", llm.ErrUnavailable)
	}
	kind := KindFor(focus.Kind, s.Kind)
	data := prompts.QuestionData{
		TargetRole: s.TargetRole,
		Focus:      string(focus.Kind),
		Topic:      focus.Topic,
		Difficulty: string(s.CurrentDifficulty),
		Kind:       string(kind),
		Severity:   string(focus.Severity),
	}
	for _, e := range resume.Experience {
		if len(data.Experience) == maxResumeRoles {
			break
		}
		data.Experience = append(data.Experience, experienceLine(e))
	}
	if job != nil {
		data.Responsibilities = job.Responsibilities
		if len(data.Responsibilities) > maxResponsibilities {
			data.Responsibilities = data.Responsibilities[:maxResponsibilities]
		}
	}
	prompt, err := c.prompts.Question(data)
	if err != nil {
		return model.Question{}, err
	}

	// Only sessions rendering the same prompt share a generation.
	sum := sha256.Sum256([]byte(prompt))
	key := fmt.Sprintf("%s|%s|%s|%s|%x", focus.Kind, focus.Topic, s.CurrentDifficulty, kind, sum[:8])

	// The shared call must not die with whichever caller started it.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		gctx, cancel := context.WithTimeout(shared, sharedGenerationTimeout)
		defer cancel()
		raw, err := c.oracle.Generate(gctx, prompt, llm.Options{
			Temperature: questionTemp,
			MaxTokens:   questionTokens,
			JSONSchema:  prompts.QuestionSchema,
		})
		if err != nil {
			return nil, err
		}
		var gen prompts.GeneratedQuestion
		if err := llm.Decode(raw, prompts.QuestionSchema, &gen); err != nil {
			return nil, err
		}

		required := skills.Union(gen.RequiredConcepts)
		if len(required) == 0 && focus.Kind != model.FocusBehavioralGeneral {
			required = []string{focus.Topic}
		}
		q := c.cache.Insert(model.Question{
			Text:       gen.Text,
			Kind:       kind,
			Difficulty: s.CurrentDifficulty,
			Topic:      focus.Topic,
			FocusKind:  focus.Kind,
			Expected: model.ExpectedComponents{
				RequiredConcepts: required,
				OptionalConcepts: skills.Union(gen.OptionalConcepts),
				DepthIndicators:  skills.Union(gen.DepthIndicators),
				IdealStructure:   idealStructureFor(kind),
			},
			SuggestedFollowUps: gen.SuggestedFollowUps,
			Source:             model.SourceGenerated,
		})
		if c.archive != nil {
			if err := c.archive.ArchiveQuestion(gctx, q); err != nil {
				slog.Warn("archive question", "hash", q.Hash, "error", err)
			}
		}
		return q, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return model.Question{}, res.Err
		}
		if res.Shared {
			slog.Debug("question generation shared", "key", key)
		}
		return res.Val.(model.Question), nil
	case <-ctx.Done():
		return model.Question{}, ctx.Err()
	}
}

var fallbackMessages = map[model.FocusKind][]string{
	model.FocusSkillValidation:   {"FallbackSkillValidation", "FallbackGapProbe"},
	model.FocusGapProbe:          {"FallbackGapProbe", "FallbackSkillValidation"},
	model.FocusRequirementCheck:  {"FallbackRequirementCheck", "FallbackGapProbe"},
	model.FocusReinforce:         {"FallbackReinforce", "FallbackGapProbe", "FallbackSkillValidation"},
	model.FocusBehavioralGeneral: {"FallbackBehavioralGeneral", "FallbackBehavioralTeamwork", "FallbackBehavioralFailure"},
}

// fallback builds a templated question, preferring a text not yet asked.
func (c *Composer) fallback(s *model.SessionState, focus Focus, asked map[string]bool) model.Question {
	kind := KindFor(focus.Kind, s.Kind)
	var required []string
	if focus.Kind != model.FocusBehavioralGeneral {
		required = []string{focus.Topic}
	}

	var q model.Question
	for _, msgID := range fallbackMessages[focus.Kind] {
		q = model.Question{
			Text:       c.loc.Td(msgID, map[string]any{"Topic": focus.Topic}),
			Kind:       kind,
			Difficulty: s.CurrentDifficulty,
			Topic:      focus.Topic,
			FocusKind:  focus.Kind,
			Expected: model.ExpectedComponents{
				RequiredConcepts: required,
				IdealStructure:   idealStructureFor(kind),
			},
			Source: model.SourceFallback,
		}
		q.Hash = cache.Hash(q)
		if !asked[q.Hash] {
			break
		}
	}
	return q
}

// ErrNoFollowUp is returned when the parent turn does not warrant a follow-up.
var ErrNoFollowUp = errors.New("no follow-up needed")

// ComposeFollowUp probes the concepts missing from a weak answer. It returns
// ErrNoFollowUp unless the parent scored below 60 with missing concepts.
func (c *Composer) ComposeFollowUp(ctx context.Context, parent *model.Turn) (model.Question, error) {
	ev := parent.Evaluation
	if ev == nil || ev.OverallScore >= followUpBelow || len(ev.MissingConcepts) == 0 {
		return model.Question{}, ErrNoFollowUp
	}
	pq := parent.Question

	q := model.Question{
		Kind:       pq.Kind,
		Difficulty: pq.Difficulty,
		Topic:      pq.Topic,
		FocusKind:  model.FocusFollowUp,
		Expected: model.ExpectedComponents{
			RequiredConcepts: append([]string(nil), ev.MissingConcepts...),
			DepthIndicators:  append([]string(nil), pq.Expected.DepthIndicators...),
		},
		ParentHash: pq.Hash,
		Source:     model.SourceGenerated,
	}

	text, err := c.generateFollowUp(ctx, parent)
	if err != nil {
		slog.Warn("follow-up generation failed, using template", "turn", parent.Number, "error", err)
		text = c.loc.Td("FallbackFollowUp", map[string]any{"Concept": ev.MissingConcepts[0]})
		q.Source = model.SourceFallback
	}
	q.Text = text
	q.Hash = cache.Hash(q)
	return q, nil
}

func (c *Composer) generateFollowUp(ctx context.Context, parent *model.Turn) (string, error) {
	if c.oracle == nil || c.prompts == nil {
		return "", fmt.Errorf("%w: no oracle configured", llm.ErrUnavailable)
	}
	answer := ""
	if parent.Answer != nil {
		answer = *parent.Answer
	}
	prompt, err := c.prompts.FollowUp(prompts.FollowUpData{
		Topic:    parent.Question.Topic,
		Question: parent.Question.Text,
		Answer:   answer,
		Missing:  parent.Evaluation.MissingConcepts,
	})
	if err != nil {
		return "", err
	}
	raw, err := c.oracle.Generate(ctx, prompt, llm.Options{
		Temperature: followUpTemp,
		MaxTokens:   followUpTokens,
		JSONSchema:  prompts.FollowUpSchema,
	})
	if err != nil {
		return "", err
	}
	var gen prompts.GeneratedFollowUp
	if err := llm.Decode(raw, prompts.FollowUpSchema, &gen); err != nil {
		return "", err
	}
	return gen.Text, nil
}

func experienceLine(e model.Experience) string {
	if e.Company == "" {
		return e.Title
	}
	return e.Title + " at " + e.Company
}
