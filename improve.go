package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"
)

// LoopState enumerates the improvement loop's phases.
type LoopState string

const (
	StateInit           LoopState = "init"
	StateRunJudges      LoopState = "run_judges"
	StateSynthesizePlan LoopState = "synthesize_plan"
	StateAwaitApproval  LoopState = "await_approval"
	StateApplyPlan      LoopState = "apply_plan"
	StatePersist        LoopState = "persist"
	StateCompleted      LoopState = "completed"
	StateAborted        LoopState = "aborted"
)

type ImproveOptions struct {
	Rounds      int
	Interactive bool
	OutputDir   string  // session parent, default "improvements"
	DB          *sql.DB // optional round history
	RunID       string
}

// ImproveLoop drives review -> plan -> revise over a LaTeX paper. It
// is a plain state machine: Step advances one state, Run steps until
// the loop finishes or suspends for approval, and Approve/Abort resume
// a suspended loop. No operator I/O happens in here, so the whole
// cycle runs headless under test.
type ImproveLoop struct {
	cfg    Config
	runner *JudgeRunner
	client *ModelClient
	opts   ImproveOptions

	paperFile  string
	sessionDir string
	startedAt  time.Time

	state     LoopState
	round     int // 1-based once running
	paper     Paper
	reviews   []Review
	plan      Plan
	revised   string
	persisted int
	finalPath string
	err       error
}

func NewImproveLoop(cfg Config, runner *JudgeRunner, client *ModelClient, paperFile string, opts ImproveOptions) *ImproveLoop {
	if opts.Rounds < 1 {
		opts.Rounds = cfg.Settings.Rounds
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "improvements"
	}
	return &ImproveLoop{
		cfg:       cfg,
		runner:    runner,
		client:    client,
		opts:      opts,
		paperFile: paperFile,
		startedAt: time.Now(),
		state:     StateInit,
	}
}

func (l *ImproveLoop) State() LoopState     { return l.state }
func (l *ImproveLoop) SessionDir() string   { return l.sessionDir }
func (l *ImproveLoop) RoundsPersisted() int { return l.persisted }
func (l *ImproveLoop) FinalPath() string    { return l.finalPath }

// PendingPlan exposes the plan a suspended loop is waiting on.
func (l *ImproveLoop) PendingPlan() (Plan, bool) {
	return l.plan, l.state == StateAwaitApproval
}

// Approve resumes a suspended loop into plan application.
func (l *ImproveLoop) Approve() error {
	if l.state != StateAwaitApproval {
		return fmt.Errorf("cannot approve in state %s", l.state)
	}
	l.state = StateApplyPlan
	return nil
}

// Abort ends a suspended loop. The pending round persists nothing.
func (l *ImproveLoop) Abort() error {
	if l.state != StateAwaitApproval {
		return fmt.Errorf("cannot abort in state %s", l.state)
	}
	log.Printf("improve aborted by operator round=%d", l.round)
	l.state = StateAborted
	return nil
}

// Run steps the loop until it completes, aborts, or suspends for
// approval. Interactive callers then consult PendingPlan, call Approve
// or Abort, and Run again.
func (l *ImproveLoop) Run(ctx context.Context) (LoopState, error) {
	for {
		switch l.state {
		case StateCompleted, StateAborted, StateAwaitApproval:
			return l.state, l.err
		}
		if _, err := l.Step(ctx); err != nil {
			return l.state, err
		}
	}
}

// Step advances the machine by one state. Terminal and suspended
// states are no-ops.
func (l *ImproveLoop) Step(ctx context.Context) (LoopState, error) {
	switch l.state {
	case StateInit:
		l.stepInit()
	case StateRunJudges:
		l.stepRunJudges(ctx)
	case StateSynthesizePlan:
		l.stepSynthesizePlan(ctx)
	case StateApplyPlan:
		l.stepApplyPlan(ctx)
	case StatePersist:
		l.stepPersist()
	}
	return l.state, l.err
}

func (l *ImproveLoop) fail(err error) {
	l.err = err
	l.state = StateAborted
	log.Printf("improve failed round=%d: %v", l.round, err)
}

// stepInit validates the input format and extracts the paper. The
// session directory is only named here, never created, so a rejected
// input leaves no trace on disk.
func (l *ImproveLoop) stepInit() {
	format, err := formatForExt(filepath.Ext(l.paperFile))
	if err != nil {
		l.fail(err)
		return
	}
	if format != FormatLaTeX {
		l.fail(fmt.Errorf("%w: improvement needs editable LaTeX source, got %s", ErrUnsupportedFormat, format))
		return
	}

	paper, err := ExtractPaper(l.paperFile)
	if err != nil {
		l.fail(err)
		return
	}
	l.paper = paper

	prefix := "session"
	if l.opts.Interactive {
		prefix = "interactive_session"
	}
	l.sessionDir = filepath.Join(l.opts.OutputDir, fmt.Sprintf("%s_%s", prefix, l.startedAt.Format("20060102_150405")))
	l.round = 1
	l.state = StateRunJudges
}

func (l *ImproveLoop) stepRunJudges(ctx context.Context) {
	log.Printf("improve round=%d/%d judges=%d", l.round, l.opts.Rounds, len(l.cfg.Judges))
	reviews, err := l.runner.RunJudges(ctx, l.paper, l.cfg.Judges)
	if err != nil {
		l.fail(err)
		return
	}
	// Batch evaluation tolerates a failed judge; a revision round does
	// not, because the plan would be built from partial feedback.
	if failed := FailedJudges(reviews); len(failed) > 0 {
		l.fail(fmt.Errorf("judge(s) failed in improvement round %d: %s", l.round, strings.Join(failed, ", ")))
		return
	}
	l.reviews = reviews
	l.state = StateSynthesizePlan
}

func (l *ImproveLoop) stepSynthesizePlan(ctx context.Context) {
	text, err := l.client.Complete(ctx, CompletionRequest{
		Model:       l.cfg.Settings.DefaultModel,
		Prompt:      BuildPlanPrompt(l.paper, l.reviews),
		Temperature: l.cfg.Settings.Temperature,
		MaxTokens:   l.cfg.Settings.MaxTokens,
	})
	if err != nil {
		l.fail(err)
		return
	}
	l.plan = Plan{Round: l.round, Text: text}
	log.Printf("improve plan ready round=%d size=%d", l.round, len(text))

	if l.opts.Interactive {
		l.state = StateAwaitApproval
		return
	}
	l.state = StateApplyPlan
}

func (l *ImproveLoop) stepApplyPlan(ctx context.Context) {
	text, err := l.client.Complete(ctx, CompletionRequest{
		Model:       l.cfg.Settings.DefaultModel,
		Prompt:      BuildRevisionPrompt(l.paper, l.plan.Text),
		Temperature: l.cfg.Settings.Temperature,
		MaxTokens:   l.cfg.Settings.MaxTokens,
	})
	if err != nil {
		l.fail(err)
		return
	}
	l.revised = stripCodeFence(text)
	l.state = StatePersist
}

func (l *ImproveLoop) stepPersist() {
	planPath, err := WritePlanFile(l.sessionDir, l.plan, time.Now())
	if err != nil {
		l.fail(err)
		return
	}
	revisionPath, err := WriteRevisionFile(l.sessionDir, l.round, l.paper.Name, l.revised)
	if err != nil {
		l.fail(err)
		return
	}
	if l.opts.DB != nil && l.opts.RunID != "" {
		if err := InsertRound(l.opts.DB, l.opts.RunID, l.round, planPath, revisionPath); err != nil {
			log.Printf("round history insert failed (non-fatal): %v", err)
		}
	}
	log.Printf("improve round complete round=%d plan=%s revision=%s", l.round, planPath, revisionPath)

	// The revision becomes the next round's paper.
	title := titleFromLaTeX(l.revised)
	if title == "" {
		title = l.paper.Title
	}
	l.paper = Paper{
		Path:   revisionPath,
		Name:   l.paper.Name,
		Title:  title,
		Text:   l.revised,
		Format: FormatLaTeX,
	}
	l.persisted++

	if l.round >= l.opts.Rounds {
		finalPath, err := WriteFinalFile(l.sessionDir, l.paper.Name, l.revised)
		if err != nil {
			l.fail(err)
			return
		}
		l.finalPath = finalPath
		l.state = StateCompleted
		log.Printf("improve completed rounds=%d final=%s", l.persisted, finalPath)
		return
	}
	l.round++
	l.state = StateRunJudges
}
