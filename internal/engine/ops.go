package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/interviewer/internal/composer"
	"github.com/pavelanni/interviewer/internal/gaps"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/session"
	"github.com/pavelanni/interviewer/internal/skills"
)

const hintConcepts = 2

func sessionParams(id string, p StartParams, resume *model.ResumeView, job *model.JobView, now time.Time) session.Params {
	params := session.Params{
		ID:              id,
		UserID:          p.UserID,
		ResumeID:        p.ResumeID,
		JobID:           p.JobID,
		Kind:            p.Kind,
		CandidateSkills: resume.Skills,
		Now:             now,
	}
	switch {
	case job != nil:
		params.TargetRole = job.Title
		params.RequiredSkills = job.RequiredSkills
		params.PreferredSkills = job.PreferredSkills
	case len(resume.Experience) > 0:
		params.TargetRole = resume.Experience[0].Title
	}
	return params
}

// AnswerParams carry a submitted answer. TurnNumber 0 skips the turn check.
type AnswerParams struct {
	SessionID  string
	TurnNumber int
	Text       string
	TimeSpent  int
	MediaRef   string
}

// SubmitAnswer evaluates the answer to the pending turn, records detected
// gaps and asks the next question or concludes the session.
func (e *Engine) SubmitAnswer(ctx context.Context, p AnswerParams) error {
	const op = "submit answer"
	a, err := e.acquire(ctx, op, p.SessionID)
	if err != nil {
		return err
	}
	defer a.mu.Unlock()
	s := a.state

	if s.Status != model.StatusActive {
		return stateErr(op, "session is %s", s.Status)
	}
	pending := s.PendingTurn()
	if pending == nil {
		return stateErr(op, "no question is awaiting an answer")
	}
	if p.TurnNumber != 0 && p.TurnNumber != pending.Number {
		return inputErr(op, "answer for turn %d, but turn %d is pending", p.TurnNumber, pending.Number)
	}
	text := strings.TrimSpace(p.Text)
	if text == "" {
		return inputErr(op, "answer is empty")
	}
	if p.TimeSpent < 0 {
		return inputErr(op, "time spent must not be negative")
	}
	if err := e.reconnect(ctx, a); err != nil {
		return err
	}

	log := slog.With("session_id", s.ID, "turn", pending.Number)
	out := e.outbox(ctx, s.ID)

	turn, err := session.RecordAnswer(s, text, p.TimeSpent, p.MediaRef, e.now())
	if err != nil {
		return &Error{Kind: KindState, Op: op, Err: err}
	}
	out.send(model.EventEvaluating, model.Evaluating{TurnNumber: turn.Number})

	eval := e.deps.Evaluator.Evaluate(ctx, turn.Question, text)
	turn, err = session.Close(s, eval, e.now())
	if err != nil {
		return &Error{Kind: KindState, Op: op, Err: err}
	}
	if e.deps.Outcomes != nil {
		e.deps.Outcomes.RecordOutcome(turn.Question.Hash, eval.OverallScore)
	}
	log.Info("turn evaluated", "score", eval.OverallScore, "degraded", eval.Degraded,
		"missing", len(eval.MissingConcepts), "difficulty", s.CurrentDifficulty)
	out.send(model.EventEvaluation, model.NewEvaluationEnvelope(turn.Number, eval))

	e.recordGaps(ctx, s, turn)

	next, err := e.decideNext(ctx, a, turn)
	if err != nil {
		return err
	}
	if perr := e.persist(ctx, a); perr != nil {
		return perr
	}
	if next != nil {
		out.send(model.EventQuestion, model.NewQuestionEnvelope(next))
	} else {
		e.sendCompleted(out, s)
	}
	return out.result(op)
}

// recordGaps stores the turn's detected gaps. Ledger failures are logged
// and never fail the turn.
func (e *Engine) recordGaps(ctx context.Context, s *model.SessionState, turn *model.Turn) {
	ref := fmt.Sprintf("%s#%d", s.ID, turn.Number)
	for _, dg := range turn.Evaluation.Gaps {
		g := model.Gap{
			UserID:   s.UserID,
			Skill:    dg.Skill,
			Kind:     dg.Kind,
			Severity: dg.Severity,
			Evidence: model.Evidence{FromInterview: []string{ref}},
		}
		if e.deps.Ledger != nil {
			stored, err := e.deps.Ledger.Record(ctx, g)
			if err != nil {
				slog.Warn("record gap", "session_id", s.ID, "skill", dg.Skill, "kind", dg.Kind, "error", err)
			} else {
				g = stored
				s.RecordedGapIDs = addID(s.RecordedGapIDs, stored.ID)
			}
		}
		if dg.Kind == model.GapKnowledge {
			if g.Priority == 0 {
				g.Priority = gaps.Priority(g)
			}
			addIdentified(s, model.IdentifiedGap{
				Skill:    skills.Fold(dg.Skill),
				Kind:     dg.Kind,
				Severity: g.Severity,
				Priority: g.Priority,
			})
		}
	}
}

// decideNext asks a follow-up or a fresh question, or concludes. It returns
// the new pending turn, or nil when the session concluded.
func (e *Engine) decideNext(ctx context.Context, a *actor, closed *model.Turn) (*model.Turn, error) {
	s := a.state
	if session.ShouldStop(s, e.cfg.MinTurns, e.cfg.MaxTurns) {
		e.finish(ctx, a, false)
		return nil, nil
	}

	closedNumber := closed.Number
	if closed.Evaluation.FollowUpNeeded && session.ConsecutiveFollowUps(s) < e.cfg.MaxFollowups {
		q, err := e.deps.Composer.ComposeFollowUp(ctx, closed)
		switch {
		case err == nil:
			t, err := session.Ask(s, q, closedNumber, e.now())
			if err != nil {
				return nil, &Error{Kind: KindState, Op: "ask follow-up", Err: err}
			}
			return t, nil
		case errors.Is(err, composer.ErrNoFollowUp):
		default:
			slog.Warn("compose follow-up", "session_id", s.ID, "turn", closedNumber, "error", err)
		}
	}

	q, focus := e.deps.Composer.Compose(ctx, s, a.resume, a.job)
	t, err := session.Ask(s, q, 0, e.now())
	if err != nil {
		return nil, &Error{Kind: KindState, Op: "ask question", Err: err}
	}
	slog.Debug("next question", "session_id", s.ID, "turn", t.Number, "focus", focus.Kind, "topic", focus.Topic)
	return t, nil
}

// finish computes the final report and marks the session finished. It
// does not persist or emit.
func (e *Engine) finish(ctx context.Context, a *actor, terminated bool) {
	s := a.state
	open := 0
	if e.deps.Ledger != nil {
		gs, err := e.deps.Ledger.Open(ctx, s.UserID)
		if err != nil {
			slog.Warn("count open gaps", "session_id", s.ID, "error", err)
		}
		open = len(gs)
	}
	s.Report = session.Conclude(s, open, terminated, e.now())
	if terminated {
		s.Status = model.StatusTerminated
	} else {
		s.Status = model.StatusCompleted
	}
	session.Touch(s, e.now())
	slog.Info("session concluded", "session_id", s.ID, "status", s.Status,
		"readiness", s.Report.ReadinessScore, "level", s.Report.ReadinessLevel, "open_gaps", open)
}

// conclude finishes, persists and announces the session.
func (e *Engine) conclude(ctx context.Context, a *actor, terminated bool) error {
	e.finish(ctx, a, terminated)
	if err := e.persist(ctx, a); err != nil {
		return err
	}
	out := e.outbox(ctx, a.state.ID)
	e.sendCompleted(out, a.state)
	return out.result("conclude")
}

func (e *Engine) sendCompleted(out *outbox, s *model.SessionState) {
	c := model.Completed{Status: s.Status, Report: s.Report}
	if e.deps.Localizer != nil && s.Report != nil {
		loc := e.deps.Localizer
		c.Summary = loc.Tp("TurnsAnswered", s.ClosedTurns()) + " " + loc.Td("ReadinessSummary", map[string]any{
			"Score": s.Report.ReadinessScore,
			"Level": string(s.Report.ReadinessLevel),
		})
	}
	out.send(model.EventCompleted, c)
}

// Hint reveals up to two required concepts of the pending question not
// revealed by earlier hints, plus the expected answer structure.
func (e *Engine) Hint(ctx context.Context, id string) error {
	const op = "request hint"
	a, err := e.acquire(ctx, op, id)
	if err != nil {
		return err
	}
	defer a.mu.Unlock()
	s := a.state

	if s.Status != model.StatusActive {
		return stateErr(op, "session is %s", s.Status)
	}
	t := s.PendingTurn()
	if t == nil {
		return stateErr(op, "no question is awaiting an answer")
	}
	if err := e.reconnect(ctx, a); err != nil {
		return err
	}

	text := e.hintText(t)
	t.HintsUsed++
	session.Touch(s, e.now())
	if err := e.persist(ctx, a); err != nil {
		return err
	}
	out := e.outbox(ctx, s.ID)
	out.send(model.EventHint, model.HintEnvelope{TurnNumber: t.Number, Text: text, HintsUsed: t.HintsUsed})
	return out.result(op)
}

func (e *Engine) hintText(t *model.Turn) string {
	loc := e.deps.Localizer
	if loc == nil {
		return ""
	}
	var parts []string
	required := t.Question.Expected.RequiredConcepts
	if start := t.HintsUsed * hintConcepts; start < len(required) {
		end := min(start+hintConcepts, len(required))
		parts = append(parts, loc.Td("HintConcepts", map[string]any{
			"Concepts": strings.Join(required[start:end], ", "),
		}))
	}
	if names := t.Question.Expected.IdealStructure.Names(); len(names) > 0 {
		parts = append(parts, loc.Td("HintStructure", map[string]any{
			"Structure": strings.Join(names, ", "),
		}))
	}
	if len(parts) == 0 {
		return loc.T("HintGeneric")
	}
	return strings.Join(parts, " ")
}

// Status emits and returns a progress snapshot.
func (e *Engine) Status(ctx context.Context, id string) (model.StateUpdate, error) {
	const op = "get status"
	a, err := e.acquire(ctx, op, id)
	if err != nil {
		return model.StateUpdate{}, err
	}
	defer a.mu.Unlock()

	snap := session.Snapshot(a.state, e.cfg.MaxTurns)
	out := e.outbox(ctx, id)
	out.send(model.EventStateUpdate, snap)
	return snap, out.result(op)
}

// Pause suspends an active session.
func (e *Engine) Pause(ctx context.Context, id string) error {
	const op = "pause"
	a, err := e.acquire(ctx, op, id)
	if err != nil {
		return err
	}
	defer a.mu.Unlock()
	s := a.state

	if s.Status != model.StatusActive {
		return stateErr(op, "session is %s", s.Status)
	}
	if err := e.reconnect(ctx, a); err != nil {
		return err
	}
	s.Status = model.StatusPaused
	session.Touch(s, e.now())
	if err := e.persist(ctx, a); err != nil {
		s.Status = model.StatusActive
		return err
	}
	slog.Info("session paused", "session_id", id)
	out := e.outbox(ctx, id)
	out.send(model.EventPaused, session.Snapshot(s, e.cfg.MaxTurns))
	return out.result(op)
}

// Resume reactivates a paused session, or rebinds an active one, and
// re-emits the pending question.
func (e *Engine) Resume(ctx context.Context, id string) error {
	const op = "resume"
	a, err := e.acquire(ctx, op, id)
	if err != nil {
		return err
	}
	defer a.mu.Unlock()
	s := a.state

	if s.Status.Finished() {
		return stateErr(op, "session is %s", s.Status)
	}
	if err := e.reconnect(ctx, a); err != nil {
		return err
	}
	if s.Status == model.StatusPaused {
		s.Status = model.StatusActive
		session.Touch(s, e.now())
		if err := e.persist(ctx, a); err != nil {
			s.Status = model.StatusPaused
			return err
		}
		slog.Info("session resumed", "session_id", id)
	}

	out := e.outbox(ctx, id)
	out.send(model.EventResumed, session.Snapshot(s, e.cfg.MaxTurns))
	if t := s.PendingTurn(); t != nil {
		out.send(model.EventQuestion, model.NewQuestionEnvelope(t))
	}
	return out.result(op)
}

// Typing records client activity without any other state change.
func (e *Engine) Typing(ctx context.Context, id string, typing bool) error {
	const op = "typing"
	a, err := e.acquire(ctx, op, id)
	if err != nil {
		return err
	}
	defer a.mu.Unlock()

	if a.state.Status.Finished() {
		return stateErr(op, "session is %s", a.state.Status)
	}
	session.Touch(a.state, e.now())
	slog.Debug("typing", "session_id", id, "typing", typing)
	return nil
}

// End terminates the session at the client's request. The pending turn,
// if any, stays unanswered and the report carries no consistency bonus.
func (e *Engine) End(ctx context.Context, id string) error {
	const op = "end"
	a, err := e.acquire(ctx, op, id)
	if err != nil {
		return err
	}
	defer a.mu.Unlock()

	if a.state.Status.Finished() {
		return stateErr(op, "session is %s", a.state.Status)
	}
	if err := e.reconnect(ctx, a); err != nil {
		return err
	}
	return e.conclude(ctx, a, true)
}
