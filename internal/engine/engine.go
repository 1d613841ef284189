// Package engine orchestrates interview sessions. Each session is an actor:
// all of its mutations run under its own lock, so events for one session
// are strictly ordered while independent sessions proceed in parallel.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/interviewer/internal/composer"
	"github.com/pavelanni/interviewer/internal/gaps"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/session"
	"github.com/pavelanni/interviewer/internal/skills"
	"github.com/pavelanni/interviewer/internal/store"
)

// Emitter delivers push events to whoever is bound to the session.
type Emitter interface {
	Emit(ctx context.Context, ev model.Event) error
}

// SessionStore persists session state.
type SessionStore interface {
	SaveSession(ctx context.Context, s *model.SessionState) error
	LoadSession(ctx context.Context, id string) (*model.SessionState, error)
}

// Profiles resolves resume and job views by id.
type Profiles interface {
	Resume(ctx context.Context, id string) (*model.ResumeView, error)
	Job(ctx context.Context, id string) (*model.JobView, error)
}

// Questioner composes root and follow-up questions.
type Questioner interface {
	Compose(ctx context.Context, s *model.SessionState, resume model.ResumeView, job *model.JobView) (model.Question, composer.Focus)
	ComposeFollowUp(ctx context.Context, parent *model.Turn) (model.Question, error)
}

// Scorer evaluates one answer. It must not fail.
type Scorer interface {
	Evaluate(ctx context.Context, q model.Question, answer string) *model.Evaluation
}

// OutcomeRecorder receives the score of every closed turn for cache
// effectiveness statistics.
type OutcomeRecorder interface {
	RecordOutcome(hash string, score int)
}

// Localizer renders hint and summary text.
type Localizer interface {
	T(msgID string) string
	Td(msgID string, data map[string]any) string
	Tp(msgID string, count int) string
}

// Deps are the collaborators of an Engine. Store and Outcomes are optional.
type Deps struct {
	Composer  Questioner
	Evaluator Scorer
	Ledger    *gaps.Ledger
	Profiles  Profiles
	Emitter   Emitter
	Localizer Localizer
	Store     SessionStore
	Outcomes  OutcomeRecorder
}

type actor struct {
	mu       sync.Mutex
	state    *model.SessionState
	resume   model.ResumeView
	job      *model.JobView
	degraded bool
}

// Engine runs interview sessions.
type Engine struct {
	cfg  model.EngineConfig
	deps Deps

	mu     sync.Mutex
	actors map[string]*actor

	now   func() time.Time
	newID func() string
}

// New creates an engine.
func New(cfg model.EngineConfig, deps Deps) *Engine {
	def := model.DefaultEngineConfig()
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = def.MaxTurns
	}
	if cfg.MinTurns <= 0 || cfg.MinTurns > cfg.MaxTurns {
		cfg.MinTurns = min(def.MinTurns, cfg.MaxTurns)
	}
	if cfg.MaxFollowups < 0 {
		cfg.MaxFollowups = 0
	}
	return &Engine{
		cfg:    cfg,
		deps:   deps,
		actors: make(map[string]*actor),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() model.EngineConfig {
	return e.cfg
}

// outbox emits events for one operation and remembers the first delivery
// failure. Processing continues past delivery failures.
type outbox struct {
	e   *Engine
	ctx context.Context
	sid string
	err error
}

func (e *Engine) outbox(ctx context.Context, sid string) *outbox {
	return &outbox{e: e, ctx: ctx, sid: sid}
}

func (o *outbox) send(t model.EventType, data any) {
	if o.e.deps.Emitter == nil {
		return
	}
	ev := model.Event{Type: t, SessionID: o.sid, Data: data, At: o.e.now().UTC()}
	if err := o.e.deps.Emitter.Emit(o.ctx, ev); err != nil {
		slog.Warn("event delivery failed", "session_id", o.sid, "event", t, "error", err)
		if o.err == nil {
			o.err = err
		}
	}
}

func (o *outbox) result(op string) error {
	if o.err == nil {
		return nil
	}
	return &Error{Kind: KindDelivery, Op: op, Err: o.err}
}

// persist writes the session. A failure marks the actor degraded; degraded
// actors refuse mutations until a later write succeeds.
func (e *Engine) persist(ctx context.Context, a *actor) error {
	if e.deps.Store == nil {
		return nil
	}
	if err := e.deps.Store.SaveSession(ctx, a.state); err != nil {
		if !a.degraded {
			slog.Error("session store unavailable, session degraded", "session_id", a.state.ID, "error", err)
		}
		a.degraded = true
		return &Error{Kind: KindPersistence, Op: "save session", Err: err}
	}
	if a.degraded {
		slog.Info("session store reachable again", "session_id", a.state.ID)
	}
	a.degraded = false
	return nil
}

// reconnect retries the pending write of a degraded actor.
func (e *Engine) reconnect(ctx context.Context, a *actor) error {
	if !a.degraded {
		return nil
	}
	return e.persist(ctx, a)
}

// acquire returns the locked actor for id, loading it from the store when
// it is not in memory. The caller must unlock it. Sessions idle past the
// timeout are terminated here and reported as a state violation.
func (e *Engine) acquire(ctx context.Context, op, id string) (*actor, error) {
	if id == "" {
		return nil, inputErr(op, "session id is required")
	}
	e.mu.Lock()
	a, ok := e.actors[id]
	e.mu.Unlock()

	if !ok {
		loaded, err := e.load(ctx, id)
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		if existing, ok := e.actors[id]; ok {
			a = existing
		} else {
			e.actors[id] = loaded
			a = loaded
		}
		e.mu.Unlock()
	}

	a.mu.Lock()
	if !a.state.Status.Finished() && e.expired(a.state) {
		slog.Info("session idle, terminating", "session_id", id, "last_activity", a.state.LastActivityAt)
		if err := e.conclude(ctx, a, true); err != nil {
			slog.Warn("terminate idle session", "session_id", id, "error", err)
		}
		a.mu.Unlock()
		return nil, stateErr(op, "session %s expired after inactivity", id)
	}
	return a, nil
}

func (e *Engine) expired(s *model.SessionState) bool {
	return e.cfg.IdleTimeout > 0 && e.now().Sub(s.LastActivityAt) > e.cfg.IdleTimeout
}

func (e *Engine) load(ctx context.Context, id string) (*actor, error) {
	if e.deps.Store == nil {
		return nil, inputErr("load session", "unknown session %s", id)
	}
	st, err := e.deps.Store.LoadSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, inputErr("load session", "unknown session %s", id)
	}
	if err != nil {
		return nil, &Error{Kind: KindPersistence, Op: "load session", Err: err}
	}
	a := &actor{state: st, resume: model.ResumeView{ID: st.ResumeID, Skills: st.CandidateSkills}}
	if e.deps.Profiles != nil {
		if r, err := e.deps.Profiles.Resume(ctx, st.ResumeID); err == nil {
			a.resume = *r
		}
		if st.JobID != "" {
			if j, err := e.deps.Profiles.Job(ctx, st.JobID); err == nil {
				a.job = j
			}
		}
	}
	return a, nil
}

// StartParams describe a new interview.
type StartParams struct {
	UserID   string
	ResumeID string
	JobID    string
	Kind     model.InterviewKind
}

// Start creates a session, asks the first question and returns the session id.
func (e *Engine) Start(ctx context.Context, p StartParams) (string, error) {
	const op = "start"
	if p.UserID == "" || p.ResumeID == "" {
		return "", inputErr(op, "user id and resume id are required")
	}
	if p.Kind == "" {
		p.Kind = model.InterviewTechnical
	}
	if !p.Kind.Valid() {
		return "", inputErr(op, "unknown interview kind %q", p.Kind)
	}
	if e.deps.Profiles == nil {
		return "", inputErr(op, "no profile source configured")
	}
	resume, err := e.deps.Profiles.Resume(ctx, p.ResumeID)
	if err != nil {
		return "", &Error{Kind: KindInput, Op: op, Err: err}
	}
	var job *model.JobView
	if p.JobID != "" {
		if job, err = e.deps.Profiles.Job(ctx, p.JobID); err != nil {
			return "", &Error{Kind: KindInput, Op: op, Err: err}
		}
	}

	a := &actor{state: session.New(sessionParams(e.newID(), p, resume, job, e.now())), resume: *resume, job: job}
	s := a.state
	log := slog.With("session_id", s.ID, "user_id", s.UserID)

	a.mu.Lock()
	defer a.mu.Unlock()

	e.seedGaps(ctx, a)

	q, focus := e.deps.Composer.Compose(ctx, s, a.resume, a.job)
	turn, err := session.Ask(s, q, 0, e.now())
	if err != nil {
		return "", &Error{Kind: KindState, Op: op, Err: err}
	}
	if err := e.persist(ctx, a); err != nil {
		return "", err
	}

	e.mu.Lock()
	e.actors[s.ID] = a
	e.mu.Unlock()
	log.Info("session started", "kind", s.Kind, "target_role", s.TargetRole, "focus", focus.Kind, "topic", focus.Topic)

	out := e.outbox(ctx, s.ID)
	out.send(model.EventSessionStarted, model.SessionStarted{
		SessionID:  s.ID,
		UserID:     s.UserID,
		TargetRole: s.TargetRole,
		Kind:       s.Kind,
		MaxTurns:   e.cfg.MaxTurns,
		Difficulty: s.CurrentDifficulty,
	})
	out.send(model.EventQuestion, model.NewQuestionEnvelope(turn))
	return s.ID, out.result(op)
}

// seedGaps records job skills missing from the resume and loads the user's
// open gaps into the session.
func (e *Engine) seedGaps(ctx context.Context, a *actor) {
	if e.deps.Ledger == nil {
		return
	}
	s := a.state
	seed := func(skill string, sev model.GapSeverity, jd model.JDEvidence) {
		if skills.HasFuzzy(a.resume.Skills, skill) {
			return
		}
		g, err := e.deps.Ledger.Record(ctx, model.Gap{
			UserID:   s.UserID,
			Skill:    skill,
			Kind:     model.GapResumeMissing,
			Severity: sev,
			Evidence: model.Evidence{FromResume: false, FromJD: &jd},
		})
		if err != nil {
			slog.Warn("seed gap", "session_id", s.ID, "skill", skill, "error", err)
			return
		}
		s.RecordedGapIDs = addID(s.RecordedGapIDs, g.ID)
	}
	for _, sk := range s.RequiredSkills {
		seed(sk, model.SeverityHigh, model.JDEvidence{Required: true})
	}
	for _, sk := range s.PreferredSkills {
		seed(sk, model.SeverityMedium, model.JDEvidence{Preferred: true})
	}

	open, err := e.deps.Ledger.Open(ctx, s.UserID)
	if err != nil {
		slog.Warn("load open gaps", "session_id", s.ID, "error", err)
		return
	}
	for _, g := range open {
		if probeable(g.Kind) {
			addIdentified(s, model.IdentifiedGap{Skill: g.Skill, Kind: g.Kind, Severity: g.Severity, Priority: g.Priority})
		}
	}
}

// probeable gap kinds name a topic a question can be asked about.
func probeable(k model.GapKind) bool {
	switch k {
	case model.GapKnowledge, model.GapResumeMissing, model.GapInterviewMissing, model.GapApplication:
		return true
	}
	return false
}

func addIdentified(s *model.SessionState, g model.IdentifiedGap) {
	for i := range s.IdentifiedGaps {
		if s.IdentifiedGaps[i].Skill == g.Skill {
			if g.Priority > s.IdentifiedGaps[i].Priority {
				s.IdentifiedGaps[i] = g
			}
			sortIdentified(s.IdentifiedGaps)
			return
		}
	}
	s.IdentifiedGaps = append(s.IdentifiedGaps, g)
	sortIdentified(s.IdentifiedGaps)
}

func sortIdentified(gs []model.IdentifiedGap) {
	sort.SliceStable(gs, func(i, j int) bool {
		if gs[i].Priority != gs[j].Priority {
			return gs[i].Priority > gs[j].Priority
		}
		return gs[i].Severity.Rank() > gs[j].Severity.Rank()
	})
}

func addID(ids []string, id string) []string {
	for _, x := range ids {
		if x == id {
			return ids
		}
	}
	return append(ids, id)
}

// Session returns a deep copy of the session state.
func (e *Engine) Session(ctx context.Context, id string) (*model.SessionState, error) {
	a, err := e.acquire(ctx, "get session", id)
	if err != nil {
		return nil, err
	}
	defer a.mu.Unlock()
	return cloneState(a.state)
}

func cloneState(s *model.SessionState) (*model.SessionState, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("copy session %s: %w", s.ID, err)
	}
	var out model.SessionState
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("copy session %s: %w", s.ID, err)
	}
	return &out, nil
}

// SweepIdle terminates every in-memory session idle past the timeout and
// drops finished sessions that are safely persisted. Busy sessions are
// skipped. It returns the number of sessions terminated.
func (e *Engine) SweepIdle(ctx context.Context) int {
	e.mu.Lock()
	list := make([]*actor, 0, len(e.actors))
	for _, a := range e.actors {
		list = append(list, a)
	}
	e.mu.Unlock()

	terminated := 0
	for _, a := range list {
		if !a.mu.TryLock() {
			continue
		}
		s := a.state
		if !s.Status.Finished() && e.expired(s) {
			if err := e.conclude(ctx, a, true); err != nil {
				slog.Warn("terminate idle session", "session_id", s.ID, "error", err)
			}
			terminated++
			slog.Info("idle session terminated", "session_id", s.ID)
		}
		evict := s.Status.Finished() && e.deps.Store != nil && !a.degraded
		id := s.ID
		a.mu.Unlock()
		if evict {
			e.mu.Lock()
			delete(e.actors, id)
			e.mu.Unlock()
		}
	}
	return terminated
}

// RunSweeper calls SweepIdle every interval until ctx is done.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("sweep interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := e.SweepIdle(ctx); n > 0 {
				slog.Info("idle sweep", "terminated", n)
			}
		}
	}
}
