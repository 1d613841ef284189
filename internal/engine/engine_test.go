package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/interviewer/internal/cache"
	"github.com/pavelanni/interviewer/internal/composer"
	"github.com/pavelanni/interviewer/internal/evaluator"
	"github.com/pavelanni/interviewer/internal/gaps"
	"github.com/pavelanni/interviewer/internal/i18n"
	"github.com/pavelanni/interviewer/internal/llm/prompts"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/profile"
	"github.com/pavelanni/interviewer/internal/store"
)

type recorder struct {
	mu     sync.Mutex
	events []model.Event
	fail   error
}

func (r *recorder) Emit(_ context.Context, ev model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []model.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func (r *recorder) last() model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// memStore keeps JSON copies so tests observe exactly what was persisted.
type memStore struct {
	mu   sync.Mutex
	fail bool
	docs map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string][]byte)}
}

func (m *memStore) SaveSession(_ context.Context, s *model.SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk on fire")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.docs[s.ID] = data
	return nil
}

func (m *memStore) LoadSession(_ context.Context, id string) (*model.SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	var s model.SessionState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *memStore) setFail(fail bool) {
	m.mu.Lock()
	m.fail = fail
	m.mu.Unlock()
}

type emptyExtractor struct{}

func (emptyExtractor) Extract(context.Context, model.Question, string) (prompts.Extraction, error) {
	return prompts.Extraction{}, nil
}

type fixture struct {
	engine *Engine
	events *recorder
	store  *memStore
	ledger *gaps.Ledger
	clock  *time.Time
}

func (f *fixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func newFixture(t *testing.T, cfg model.EngineConfig) *fixture {
	t.Helper()
	tr, err := i18n.New("en")
	if err != nil {
		t.Fatalf("i18n.New: %v", err)
	}
	c := cache.New(10)
	comp := composer.New(c, nil, nil, tr, composer.Options{
		ReinforceProbability: cfg.ReinforceProbability,
		Rand:                 func() float64 { return 0.99 },
	})

	profiles := profile.NewMemorySource()
	profiles.AddResume(model.ResumeView{
		ID:         "r1",
		Skills:     []string{"Go", "Docker"},
		Experience: []model.Experience{{Title: "Backend Engineer", Company: "Acme"}},
	})
	profiles.AddJob(model.JobView{
		ID:             "j1",
		Title:          "Platform Engineer",
		RequiredSkills: []string{"Kubernetes", "Go"},
	})

	f := &fixture{
		events: &recorder{},
		store:  newMemStore(),
		ledger: gaps.NewLedger(gaps.NewMemoryStore()),
	}
	clock := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	f.clock = &clock

	f.engine = New(cfg, Deps{
		Composer:  comp,
		Evaluator: evaluator.New(emptyExtractor{}, tr),
		Ledger:    f.ledger,
		Profiles:  profiles,
		Emitter:   f.events,
		Localizer: tr,
		Store:     f.store,
		Outcomes:  c,
	})
	f.engine.now = func() time.Time { return *f.clock }
	ids := 0
	f.engine.newID = func() string {
		ids++
		return fmt.Sprintf("sess-%d", ids)
	}
	return f
}

func (f *fixture) start(t *testing.T) string {
	t.Helper()
	id, err := f.engine.Start(context.Background(), StartParams{
		UserID: "u1", ResumeID: "r1", JobID: "j1", Kind: model.InterviewTechnical,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return id
}

func (f *fixture) state(t *testing.T, id string) *model.SessionState {
	t.Helper()
	s, err := f.engine.Session(context.Background(), id)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	return s
}

const weakAnswer = "I would add caching."

func TestStart(t *testing.T) {
	f := newFixture(t, model.DefaultEngineConfig())
	id := f.start(t)

	if got, want := f.events.types(), []model.EventType{model.EventSessionStarted, model.EventQuestion}; !reflect.DeepEqual(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}

	s := f.state(t, id)
	if s.Status != model.StatusActive || s.CurrentDifficulty != model.DifficultyMedium {
		t.Errorf("status/difficulty = %s/%s", s.Status, s.CurrentDifficulty)
	}
	if s.TargetRole != "Platform Engineer" {
		t.Errorf("TargetRole = %q", s.TargetRole)
	}
	if len(s.Turns) != 1 || !s.Turns[0].Pending() {
		t.Fatalf("turns = %+v", s.Turns)
	}

	// kubernetes is required by the job and missing from the resume.
	q := s.Turns[0].Question
	if q.FocusKind != model.FocusGapProbe || q.Topic != "kubernetes" {
		t.Errorf("first question focus/topic = %s/%s, want gap-probe/kubernetes", q.FocusKind, q.Topic)
	}
	if len(s.IdentifiedGaps) != 1 || s.IdentifiedGaps[0].Kind != model.GapResumeMissing {
		t.Errorf("IdentifiedGaps = %+v", s.IdentifiedGaps)
	}
	open, err := f.ledger.Open(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	if len(open) != 1 || open[0].Skill != "kubernetes" || open[0].Severity != model.SeverityHigh {
		t.Errorf("seeded gaps = %+v", open)
	}
	if open[0].Evidence.FromJD == nil || !open[0].Evidence.FromJD.Required {
		t.Errorf("seeded gap evidence = %+v", open[0].Evidence)
	}

	env, ok := f.events.last().Data.(model.QuestionEnvelope)
	if !ok || env.TurnNumber != 1 || env.IsFollowUp {
		t.Errorf("question envelope = %+v", f.events.last().Data)
	}

	if _, err := f.store.LoadSession(context.Background(), id); err != nil {
		t.Errorf("session not persisted: %v", err)
	}
}

func TestStartValidation(t *testing.T) {
	f := newFixture(t, model.DefaultEngineConfig())
	tests := []struct {
		name string
		p    StartParams
	}{
		{"missing user", StartParams{ResumeID: "r1"}},
		{"missing resume", StartParams{UserID: "u1"}},
		{"unknown resume", StartParams{UserID: "u1", ResumeID: "nope"}},
		{"unknown job", StartParams{UserID: "u1", ResumeID: "r1", JobID: "nope"}},
		{"bad kind", StartParams{UserID: "u1", ResumeID: "r1", Kind: "karaoke"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Start(context.Background(), tt.p)
			if !errors.Is(err, ErrInputViolation) {
				t.Errorf("err = %v, want input violation", err)
			}
		})
	}
	if n := len(f.events.types()); n != 0 {
		t.Errorf("rejected starts emitted %d events", n)
	}
}

func TestWeakAnswerAsksFollowUp(t *testing.T) {
	f := newFixture(t, model.DefaultEngineConfig())
	id := f.start(t)
	f.events.reset()

	err := f.engine.SubmitAnswer(context.Background(), AnswerParams{SessionID: id, TurnNumber: 1, Text: weakAnswer, TimeSpent: 30})
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	want := []model.EventType{model.EventEvaluating, model.EventEvaluation, model.EventQuestion}
	if got := f.events.types(); !reflect.DeepEqual(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}

	env := f.events.last().Data.(model.QuestionEnvelope)
	if !env.IsFollowUp || env.ParentTurnNumber == nil || *env.ParentTurnNumber != 1 {
		t.Errorf("follow-up envelope = %+v", env)
	}
	if env.TurnNumber != 2 {
		t.Errorf("TurnNumber = %d, want 2", env.TurnNumber)
	}

	s := f.state(t, id)
	first := s.Turns[0]
	if first.Evaluation == nil || first.Evaluation.OverallScore >= 60 {
		t.Fatalf("evaluation = %+v", first.Evaluation)
	}
	if !reflect.DeepEqual(first.Evaluation.MissingConcepts, []string{"kubernetes"}) {
		t.Errorf("MissingConcepts = %v", first.Evaluation.MissingConcepts)
	}
	if s.Turns[1].Question.ParentHash != first.Question.Hash {
		t.Error("follow-up does not reference its parent question")
	}
	if !reflect.DeepEqual(s.StrugglingTopics, []string{"kubernetes"}) {
		t.Errorf("StrugglingTopics = %v", s.StrugglingTopics)
	}
	if len(s.TopicsAsked) != len(s.Turns) {
		t.Errorf("topicsAsked %d != turns %d", len(s.TopicsAsked), len(s.Turns))
	}

	open, _ := f.ledger.Open(context.Background(), "u1")
	var knowledge int
	for _, g := range open {
		if g.Kind == model.GapKnowledge && g.Skill == "kubernetes" && g.Severity == model.SeverityHigh {
			knowledge++
		}
	}
	if knowledge != 1 {
		t.Errorf("knowledge gaps = %d, want 1 (open: %+v)", knowledge, open)
	}
}

func TestFollowUpChainIsBounded(t *testing.T) {
	cfg := model.DefaultEngineConfig()
	cfg.MaxFollowups = 2
	f := newFixture(t, cfg)
	id := f.start(t)

	for turn := 1; turn <= 3; turn++ {
		if err := f.engine.SubmitAnswer(context.Background(), AnswerParams{SessionID: id, TurnNumber: turn, Text: weakAnswer}); err != nil {
			t.Fatalf("SubmitAnswer(%d): %v", turn, err)
		}
	}
	s := f.state(t, id)
	if len(s.Turns) != 4 {
		t.Fatalf("turns = %d, want 4", len(s.Turns))
	}
	got := []bool{s.Turns[0].IsFollowUp, s.Turns[1].IsFollowUp, s.Turns[2].IsFollowUp, s.Turns[3].IsFollowUp}
	if want := []bool{false, true, true, false}; !reflect.DeepEqual(got, want) {
		t.Errorf("follow-up flags = %v, want %v", got, want)
	}
	if s.Turns[2].ParentTurn != 2 {
		t.Errorf("third turn parent = %d, want 2", s.Turns[2].ParentTurn)
	}
}

func TestSubmitAnswerRejections(t *testing.T) {
	f := newFixture(t, model.DefaultEngineConfig())
	id := f.start(t)
	ctx := context.Background()

	tests := []struct {
		name string
		p    AnswerParams
		want error
	}{
		{"unknown session", AnswerParams{SessionID: "nope", Text: "x"}, ErrInputViolation},
		{"missing session", AnswerParams{Text: "x"}, ErrInputViolation},
		{"wrong turn", AnswerParams{SessionID: id, TurnNumber: 2, Text: weakAnswer}, ErrInputViolation},
		{"empty answer", AnswerParams{SessionID: id, TurnNumber: 1, Text: "   "}, ErrInputViolation},
		{"negative time", AnswerParams{SessionID: id, TurnNumber: 1, Text: weakAnswer, TimeSpent: -1}, ErrInputViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.engine.SubmitAnswer(ctx, tt.p)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			var ee *Error
			if !errors.As(err, &ee) || ee.Code() != string(KindInput) {
				t.Errorf("err = %#v, want *Error with input code", err)
			}
		})
	}

	s := f.state(t, id)
	if len(s.Turns) != 1 || !s.Turns[0].Pending() || s.Turns[0].Answer != nil {
		t.Errorf("rejected answers changed the session: %+v", s.Turns)
	}
}

func TestConcurrentSubmitsAreSerialized(t *testing.T) {
	f := newFixture(t, model.DefaultEngineConfig())
	id := f.start(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.engine.SubmitAnswer(context.Background(), AnswerParams{SessionID: id, TurnNumber: 1, Text: weakAnswer})
		}(i)
	}
	wg.Wait()

	ok, rejected := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInputViolation):
			rejected++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || rejected != 1 {
		t.Errorf("ok=%d rejected=%d, want 1/1", ok, rejected)
	}
	if s := f.state(t, id); len(s.Turns) != 2 {
		t.Errorf("turns = %d, want 2", len(s.Turns))
	}
}

func TestPauseResume(t *testing.T) {
	f := newFixture(t, model.DefaultEngineConfig())
	id := f.start(t)
	ctx := context.Background()

	if err := f.engine.Pause(ctx, id); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := f.engine.Pause(ctx, id); !errors.Is(err, ErrStateViolation) {
		t.Errorf("second Pause err = %v, want state violation", err)
	}
	if err := f.engine.SubmitAnswer(ctx, AnswerParams{SessionID: id, TurnNumber: 1, Text: weakAnswer}); !errors.Is(err, ErrStateViolation) {
		t.Errorf("submit while paused err = %v, want state violation", err)
	}
	if err := f.engine.Hint(ctx, id); !errors.Is(err, ErrStateViolation) {
		t.Errorf("hint while paused err = %v, want state violation", err)
	}

	f.events.reset()
	if err := f.engine.Resume(ctx, id); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if got, want := f.events.types(), []model.EventType{model.EventResumed, model.EventQuestion}; !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if env := f.events.last().Data.(model.QuestionEnvelope); env.TurnNumber != 1 {
		t.Errorf("re-emitted turn = %d, want 1", env.TurnNumber)
	}
	if s := f.state(t, id); s.Status != model.StatusActive {
		t.Errorf("status = %s, want active", s.Status)
	}

	// Resuming an active session is a reconnect: it only re-emits.
	f.events.reset()
	if err := f.engine.Resume(ctx, id); err != nil {
		t.Fatalf("Resume active: %v", err)
	}
	if got := f.events.types(); len(got) != 2 || got[1] != model.EventQuestion {
		t.Errorf("reconnect events = %v", got)
	}
}

func TestCompletesAtMaxTurns(t *testing.T) {
	cfg := model.DefaultEngineConfig()
	cfg.MaxTurns = 3
	cfg.MinTurns = 1
	cfg.MaxFollowups = 0
	f := newFixture(t, cfg)
	id := f.start(t)
	ctx := context.Background()

	for turn := 1; turn <= 3; turn++ {
		if err := f.engine.SubmitAnswer(ctx, AnswerParams{SessionID: id, TurnNumber: turn, Text: weakAnswer}); err != nil {
			t.Fatalf("SubmitAnswer(%d): %v", turn, err)
		}
	}

	last := f.events.last()
	if last.Type != model.EventCompleted {
		t.Fatalf("last event = %s, want completed", last.Type)
	}
	done := last.Data.(model.Completed)
	if done.Status != model.StatusCompleted || done.Report == nil {
		t.Fatalf("completed payload = %+v", done)
	}
	if done.Report.ReadinessScore < 0 || done.Report.ReadinessScore > 100 {
		t.Errorf("readiness %d out of range", done.Report.ReadinessScore)
	}
	if !strings.Contains(done.Summary, "3 questions answered.") || !strings.Contains(done.Summary, "Readiness") {
		t.Errorf("Summary = %q", done.Summary)
	}

	s := f.state(t, id)
	if s.Status != model.StatusCompleted || len(s.Turns) != 3 || s.PendingTurn() != nil {
		t.Errorf("final state: status=%s turns=%d", s.Status, len(s.Turns))
	}
	if err := f.engine.SubmitAnswer(ctx, AnswerParams{SessionID: id, Text: weakAnswer}); !errors.Is(err, ErrStateViolation) {
		t.Errorf("submit after completion err = %v, want state violation", err)
	}
	if err := f.engine.End(ctx, id); !errors.Is(err, ErrStateViolation) {
		t.Errorf("End after completion err = %v, want state violation", err)
	}
}

func TestEndTerminates(t *testing.T) {
	f := newFixture(t, model.DefaultEngineConfig())
	id := f.start(t)
	ctx := context.Background()

	if err := f.engine.End(ctx, id); err != nil {
		t.Fatalf("End: %v", err)
	}
	s := f.state(t, id)
	if s.Status != model.StatusTerminated {
		t.Errorf("status = %s, want terminated", s.Status)
	}
	if s.Report == nil || !s.Report.Terminated || s.Report.ConsistencyBonus {
		t.Errorf("report = %+v", s.Report)
	}
	if f.events.last().Type != model.EventCompleted {
		t.Errorf("last event = %s, want completed", f.events.last().Type)
	}
}

func TestHint(t *testing.T) {
	f := newFixture(t, model.DefaultEngineConfig())
	id := f.start(t)
	ctx := context.Background()

	if err := f.engine.Hint(ctx, id); err != nil {
		t.Fatalf("Hint: %v", err)
	}
	h := f.events.last().Data.(model.HintEnvelope)
	if h.HintsUsed != 1 || !strings.Contains(h.Text, "Consider covering: kubernetes.") {
		t.Errorf("first hint = %+v", h)
	}
	if !strings.Contains(h.Text, "definition, example") {
		t.Errorf("first hint lacks structure: %q", h.Text)
	}

	if err := f.engine.Hint(ctx, id); err != nil {
		t.Fatalf("Hint: %v", err)
	}
	h = f.events.last().Data.(model.HintEnvelope)
	if h.HintsUsed != 2 || strings.Contains(h.Text, "kubernetes") {
		t.Errorf("second hint = %+v", h)
	}
	if s := f.state(t, id); s.Turns[0].HintsUsed != 2 {
		t.Errorf("HintsUsed = %d, want 2", s.Turns[0].HintsUsed)
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t, model.DefaultEngineConfig())
	id := f.start(t)

	snap, err := f.engine.Status(context.Background(), id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if snap.TurnsAsked != 1 || snap.TurnsAnswered != 0 || snap.MaxTurns != 15 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.PendingTurn == nil || *snap.PendingTurn != 1 {
		t.Errorf("PendingTurn = %v", snap.PendingTurn)
	}
	if f.events.last().Type != model.EventStateUpdate {
		t.Errorf("last event = %s, want state_update", f.events.last().Type)
	}
}

func TestIdleSessionTerminatesOnAccess(t *testing.T) {
	cfg := model.DefaultEngineConfig()
	cfg.IdleTimeout = time.Hour
	f := newFixture(t, cfg)
	id := f.start(t)
	ctx := context.Background()

	f.advance(30 * time.Minute)
	if err := f.engine.Typing(ctx, id, true); err != nil {
		t.Fatalf("Typing: %v", err)
	}
	f.advance(45 * time.Minute)
	if _, err := f.engine.Status(ctx, id); err != nil {
		t.Fatalf("typing should have kept the session alive: %v", err)
	}

	f.advance(2 * time.Hour)
	if _, err := f.engine.Status(ctx, id); !errors.Is(err, ErrStateViolation) {
		t.Fatalf("err = %v, want state violation", err)
	}
	if s := f.state(t, id); s.Status != model.StatusTerminated {
		t.Errorf("status = %s, want terminated", s.Status)
	}
}

func TestSweepIdle(t *testing.T) {
	cfg := model.DefaultEngineConfig()
	cfg.IdleTimeout = time.Hour
	f := newFixture(t, cfg)
	stale := f.start(t)
	f.advance(50 * time.Minute)
	fresh := f.start(t)
	f.advance(20 * time.Minute)

	if n := f.engine.SweepIdle(context.Background()); n != 1 {
		t.Fatalf("SweepIdle = %d, want 1", n)
	}
	// The terminated session was evicted from memory but is still loadable.
	saved, err := f.store.LoadSession(context.Background(), stale)
	if err != nil || saved.Status != model.StatusTerminated {
		t.Errorf("stale session = %+v, %v", saved, err)
	}
	if s := f.state(t, fresh); s.Status != model.StatusActive {
		t.Errorf("fresh session status = %s", s.Status)
	}
}

func TestDeliveryFailureKeepsSession(t *testing.T) {
	f := newFixture(t, model.DefaultEngineConfig())
	f.events.fail = errors.New("connection reset")

	id, err := f.engine.Start(context.Background(), StartParams{UserID: "u1", ResumeID: "r1"})
	if !errors.Is(err, ErrDelivery) {
		t.Fatalf("err = %v, want delivery failure", err)
	}
	if id == "" {
		t.Fatal("session id not returned on delivery failure")
	}

	f.events.fail = nil
	if err := f.engine.Resume(context.Background(), id); err != nil {
		t.Fatalf("Resume after reconnect: %v", err)
	}
	if f.events.last().Type != model.EventQuestion {
		t.Errorf("pending question not re-emitted")
	}
}

func TestPersistenceFailureDegradesSession(t *testing.T) {
	f := newFixture(t, model.DefaultEngineConfig())
	id := f.start(t)
	ctx := context.Background()

	f.store.setFail(true)
	f.events.reset()
	err := f.engine.SubmitAnswer(ctx, AnswerParams{SessionID: id, TurnNumber: 1, Text: weakAnswer})
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("err = %v, want persistence failure", err)
	}
	for _, typ := range f.events.types() {
		if typ == model.EventQuestion {
			t.Error("next question emitted before it was persisted")
		}
	}
	if err := f.engine.Hint(ctx, id); !errors.Is(err, ErrPersistence) {
		t.Errorf("mutation while degraded err = %v, want persistence failure", err)
	}

	f.store.setFail(false)
	f.events.reset()
	if err := f.engine.Resume(ctx, id); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if env := f.events.last().Data.(model.QuestionEnvelope); env.TurnNumber != 2 {
		t.Errorf("re-emitted turn = %d, want 2", env.TurnNumber)
	}
	saved, err := f.store.LoadSession(ctx, id)
	if err != nil || len(saved.Turns) != 2 {
		t.Errorf("state not flushed after reconnect: %v", err)
	}
}

func TestStartFailsWhenStoreDown(t *testing.T) {
	f := newFixture(t, model.DefaultEngineConfig())
	f.store.setFail(true)
	_, err := f.engine.Start(context.Background(), StartParams{UserID: "u1", ResumeID: "r1"})
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("err = %v, want persistence failure", err)
	}
	if n := len(f.events.types()); n != 0 {
		t.Errorf("emitted %d events for an unsaved session", n)
	}
}

func TestSessionReloadedFromStore(t *testing.T) {
	f := newFixture(t, model.DefaultEngineConfig())
	id := f.start(t)

	tr, err := i18n.New("en")
	if err != nil {
		t.Fatal(err)
	}
	c := cache.New(10)
	events := &recorder{}
	restarted := New(model.DefaultEngineConfig(), Deps{
		Composer:  composer.New(c, nil, nil, tr, composer.Options{Rand: func() float64 { return 0.99 }}),
		Evaluator: evaluator.New(emptyExtractor{}, tr),
		Emitter:   events,
		Localizer: tr,
		Store:     f.store,
	})
	restarted.now = f.engine.now

	if err := restarted.Resume(context.Background(), id); err != nil {
		t.Fatalf("Resume on restarted engine: %v", err)
	}
	if err := restarted.SubmitAnswer(context.Background(), AnswerParams{SessionID: id, TurnNumber: 1, Text: weakAnswer}); err != nil {
		t.Fatalf("SubmitAnswer on restarted engine: %v", err)
	}
	saved, _ := f.store.LoadSession(context.Background(), id)
	if len(saved.Turns) != 2 {
		t.Errorf("turns after reload = %d, want 2", len(saved.Turns))
	}
}

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", stateErr("pause", "session is %s", model.StatusCompleted))
	if !errors.Is(err, ErrStateViolation) {
		t.Error("state error does not match ErrStateViolation")
	}
	if errors.Is(err, ErrInputViolation) {
		t.Error("state error matches ErrInputViolation")
	}
	if got := err.Error(); !strings.Contains(got, "pause: session is completed") {
		t.Errorf("Error() = %q", got)
	}
}
