package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/pavelanni/interviewer/internal/engine"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/profile"
	"github.com/pavelanni/interviewer/internal/store"
)

var interviewKinds = []string{
	string(model.InterviewTechnical),
	string(model.InterviewBehavioral),
	string(model.InterviewMixed),
	string(model.InterviewSystemDesign),
}

func practiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "practice",
		Short: "Run an interview in the terminal",
		Long: `Run an interview in the terminal against a local resume and optional job file.
While answering, type /hint, /status, /pause or /end instead of an answer.`,
		RunE: runPractice,
	}
	f := cmd.Flags()
	f.String("resume", "", "Resume JSON file (required)")
	f.String("job", "", "Job description JSON file")
	f.String("user", "local", "User identifier gaps are recorded under")
	f.String("kind", "", "Interview kind (technical, behavioral, mixed, system-design); asked when empty")
	addStoreFlags(f)
	addEngineFlags(f)
	addLLMFlags(f)
	addLogFlags(f)
	_ = cmd.MarkFlagRequired("resume")
	return cmd
}

func runPractice(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	resume, err := profile.LoadResume(v.GetString("resume"))
	if err != nil {
		return err
	}
	if resume.ID == "" {
		resume.ID = fileID(v.GetString("resume"))
	}
	profiles := profile.NewMemorySource()
	profiles.AddResume(*resume)
	var jobID string
	if path := v.GetString("job"); path != "" {
		job, err := profile.LoadJob(path)
		if err != nil {
			return err
		}
		if job.ID == "" {
			job.ID = fileID(path)
		}
		profiles.AddJob(*job)
		jobID = job.ID
	}

	kind := v.GetString("kind")
	if kind == "" {
		sel := promptui.Select{Label: "Interview kind", Items: interviewKinds}
		if _, kind, err = sel.Run(); err != nil {
			return fmt.Errorf("select interview kind: %w", err)
		}
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	console := newConsole(cmd.OutOrStdout())
	a, err := newApp(ctx, v, db, console, profiles)
	if err != nil {
		return err
	}

	id, err := a.engine.Start(ctx, engine.StartParams{
		UserID:   v.GetString("user"),
		ResumeID: resume.ID,
		JobID:    jobID,
		Kind:     model.InterviewKind(kind),
	})
	if err != nil {
		return err
	}
	return practiceLoop(ctx, a.engine, id, console)
}

func practiceLoop(ctx context.Context, eng *engine.Engine, id string, console *console) error {
	for !console.finished() {
		asked := time.Now()
		prompt := promptui.Prompt{
			Label: fmt.Sprintf("Answer %d", console.pendingTurn()),
			Validate: func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("answer must not be empty")
				}
				return nil
			},
		}
		text, err := prompt.Run()
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return eng.End(ctx, id)
		}
		if err != nil {
			return err
		}

		switch strings.TrimSpace(text) {
		case "/hint":
			err = eng.Hint(ctx, id)
		case "/status":
			_, err = eng.Status(ctx, id)
		case "/end":
			err = eng.End(ctx, id)
		case "/pause":
			if err = eng.Pause(ctx, id); err == nil {
				resume := promptui.Prompt{Label: "Paused. Press enter to resume"}
				if _, perr := resume.Run(); perr != nil {
					return eng.End(ctx, id)
				}
				err = eng.Resume(ctx, id)
			}
		default:
			err = eng.SubmitAnswer(ctx, engine.AnswerParams{
				SessionID:  id,
				TurnNumber: console.pendingTurn(),
				Text:       text,
				TimeSpent:  int(time.Since(asked).Seconds()),
			})
		}
		if err != nil {
			console.printf("error: %v\n", err)
			if errors.Is(err, engine.ErrPersistence) {
				return err
			}
		}
	}
	return nil
}

// console renders engine events on a terminal.
type console struct {
	mu      sync.Mutex
	w       io.Writer
	pending int
	done    bool
}

func newConsole(w io.Writer) *console {
	if w == nil {
		w = os.Stdout
	}
	return &console{w: w}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}

func (c *console) pendingTurn() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

func (c *console) finished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Emit implements engine.Emitter.
func (c *console) Emit(_ context.Context, ev model.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := c.w
	switch d := ev.Data.(type) {
	case model.SessionStarted:
		fmt.Fprintf(w, "Interview for %s (%s), up to %d questions. Starting at %s difficulty.\n",
			orDash(d.TargetRole), d.Kind, d.MaxTurns, d.Difficulty)
	case model.QuestionEnvelope:
		c.pending = d.TurnNumber
		label := "Question"
		if d.IsFollowUp {
			label = "Follow-up"
		}
		fmt.Fprintf(w, "\n%s %d [%s, %s]\n%s\n", label, d.TurnNumber, d.Topic, d.Difficulty, d.Text)
	case model.Evaluating:
		fmt.Fprintln(w, "Evaluating...")
	case model.EvaluationEnvelope:
		m := d.Metrics
		fmt.Fprintf(w, "Score %d/100 (clarity %d, relevance %d, depth %d, structure %d, accuracy %d)\n",
			d.Score, m.Clarity, m.Relevance, m.Depth, m.Structure, m.TechnicalAccuracy)
		printList(w, "+", d.Feedback.Strengths)
		printList(w, "-", d.Feedback.Weaknesses)
		printList(w, ">", d.Feedback.Suggestions)
		if len(d.MissingConcepts) > 0 {
			fmt.Fprintf(w, "Missing: %s\n", strings.Join(d.MissingConcepts, ", "))
		}
	case model.HintEnvelope:
		fmt.Fprintf(w, "Hint: %s\n", d.Text)
	case model.StateUpdate:
		fmt.Fprintf(w, "[%s] %d of %d questions answered, difficulty %s, recent average %.0f\n",
			d.Status, d.TurnsAnswered, d.MaxTurns, d.CurrentDifficulty, d.RecentAverage)
		if len(d.StrugglingTopics) > 0 {
			fmt.Fprintf(w, "Struggling: %s\n", strings.Join(d.StrugglingTopics, ", "))
		}
	case model.Completed:
		c.done = true
		fmt.Fprintf(w, "\nInterview %s. %s\n", d.Status, d.Summary)
		if d.Report != nil {
			printList(w, "strong:", d.Report.StrongTopics)
			printList(w, "practice:", d.Report.StrugglingTopics)
			fmt.Fprintf(w, "Open gaps: %d\n", d.Report.OpenGapCount)
		}
	}
	return nil
}

func printList(w io.Writer, prefix string, items []string) {
	for _, it := range items {
		fmt.Fprintf(w, "  %s %s\n", prefix, it)
	}
}

func fileID(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
