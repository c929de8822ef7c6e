package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func improveTestConfig(t *testing.T) Config {
	t.Helper()
	cfg := testJudgeConfig(t)
	cfg.Judges = []JudgeConfig{
		{Name: "Alpha", Model: "m/a"},
		{Name: "Beta", Model: "m/b"},
	}
	cfg.Settings.DefaultModel = "synth/model"
	cfg.Settings.Rounds = 3
	return cfg
}

func writeTestPaper(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stub_paper.tex")
	content := `\documentclass{article}
\title{A Study of Stub Systems}
\begin{document}
We study stubs.
\end{document}
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// improveStubRespond answers by prompt kind: review calls get a
// marker-format review, plan calls a plan, revision calls fenced LaTeX.
func improveStubRespond(req CompletionRequest, call int) (string, error) {
	switch {
	case strings.HasSuffix(req.Prompt, "REVIEW:\n"):
		return sampleReviewText(3), nil
	case strings.HasSuffix(req.Prompt, "IMPROVEMENT PLAN:\n"):
		return "1. Expand the evaluation section.\n2. Add a baseline.", nil
	case strings.HasSuffix(req.Prompt, "REVISED PAPER:\n"):
		return "```latex\n\\documentclass{article}\n\\title{A Study of Stub Systems, Revised}\n\\begin{document}\nWe study stubs better.\n\\end{document}\n```", nil
	}
	return "", fmt.Errorf("unexpected prompt kind")
}

func TestImproveAutomaticRounds(t *testing.T) {
	cfg := improveTestConfig(t)
	client, provider, _ := newStubClient(improveStubRespond)
	runner, err := NewJudgeRunner(cfg, client)
	if err != nil {
		t.Fatal(err)
	}

	loop := NewImproveLoop(cfg, runner, client, writeTestPaper(t),
		ImproveOptions{Rounds: 3, OutputDir: filepath.Join(t.TempDir(), "improvements")})

	state, err := loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if state != StateCompleted {
		t.Fatalf("state = %s, want %s", state, StateCompleted)
	}
	if loop.RoundsPersisted() != 3 {
		t.Fatalf("rounds persisted = %d, want 3", loop.RoundsPersisted())
	}

	// 2 judges + 1 plan + 1 revision per round, three times.
	if provider.callCount() != 12 {
		t.Fatalf("model calls = %d, want 12", provider.callCount())
	}

	if base := filepath.Base(loop.SessionDir()); !strings.HasPrefix(base, "session_") {
		t.Fatalf("automatic session dir named %q", base)
	}
	for _, name := range []string{
		"round_1_plan.txt", "round_1_stub_paper_improved.tex",
		"round_2_plan.txt", "round_2_stub_paper_improved.tex",
		"round_3_plan.txt", "round_3_stub_paper_improved.tex",
		"stub_paper_final_improved.tex",
	} {
		if _, err := os.Stat(filepath.Join(loop.SessionDir(), name)); err != nil {
			t.Fatalf("session artifact %s missing: %v", name, err)
		}
	}

	final, err := os.ReadFile(loop.FinalPath())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(final), "```") {
		t.Fatal("code fence should be stripped from the persisted revision")
	}
	if !strings.Contains(string(final), `\title{A Study of Stub Systems, Revised}`) {
		t.Fatalf("final paper is not the revision:\n%s", final)
	}

	plan2, err := os.ReadFile(filepath.Join(loop.SessionDir(), "round_2_plan.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(plan2), "# Improvement Plan - Round 2\n") {
		t.Fatalf("unexpected plan header: %q", string(plan2)[:40])
	}
}

func TestImproveDefaultRoundsFromConfig(t *testing.T) {
	cfg := improveTestConfig(t)
	cfg.Settings.Rounds = 1
	client, _, _ := newStubClient(improveStubRespond)
	runner, err := NewJudgeRunner(cfg, client)
	if err != nil {
		t.Fatal(err)
	}

	loop := NewImproveLoop(cfg, runner, client, writeTestPaper(t),
		ImproveOptions{OutputDir: filepath.Join(t.TempDir(), "improvements")})
	state, err := loop.Run(context.Background())
	if err != nil || state != StateCompleted {
		t.Fatalf("state = %s, err = %v", state, err)
	}
	if loop.RoundsPersisted() != 1 {
		t.Fatalf("rounds persisted = %d, want config default 1", loop.RoundsPersisted())
	}
}

func TestImproveInteractiveApprove(t *testing.T) {
	cfg := improveTestConfig(t)
	client, _, _ := newStubClient(improveStubRespond)
	runner, err := NewJudgeRunner(cfg, client)
	if err != nil {
		t.Fatal(err)
	}

	loop := NewImproveLoop(cfg, runner, client, writeTestPaper(t),
		ImproveOptions{Rounds: 1, Interactive: true, OutputDir: filepath.Join(t.TempDir(), "improvements")})

	state, err := loop.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if state != StateAwaitApproval {
		t.Fatalf("interactive loop should suspend, got %s", state)
	}

	plan, ok := loop.PendingPlan()
	if !ok || plan.Round != 1 || !strings.Contains(plan.Text, "Expand the evaluation") {
		t.Fatalf("pending plan wrong: ok=%v plan=%+v", ok, plan)
	}
	if _, err := os.Stat(loop.SessionDir()); !os.IsNotExist(err) {
		t.Fatalf("nothing should be on disk before approval, stat err = %v", err)
	}

	if err := loop.Approve(); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	state, err = loop.Run(context.Background())
	if err != nil || state != StateCompleted {
		t.Fatalf("state = %s, err = %v", state, err)
	}
	if loop.RoundsPersisted() != 1 {
		t.Fatalf("rounds persisted = %d, want 1", loop.RoundsPersisted())
	}
	if base := filepath.Base(loop.SessionDir()); !strings.HasPrefix(base, "interactive_session_") {
		t.Fatalf("interactive session dir named %q", base)
	}
}

func TestImproveInteractiveAbortPersistsNothing(t *testing.T) {
	cfg := improveTestConfig(t)
	client, provider, _ := newStubClient(improveStubRespond)
	runner, err := NewJudgeRunner(cfg, client)
	if err != nil {
		t.Fatal(err)
	}

	loop := NewImproveLoop(cfg, runner, client, writeTestPaper(t),
		ImproveOptions{Rounds: 3, Interactive: true, OutputDir: filepath.Join(t.TempDir(), "improvements")})

	if state, err := loop.Run(context.Background()); err != nil || state != StateAwaitApproval {
		t.Fatalf("state = %s, err = %v", state, err)
	}
	if err := loop.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	state, err := loop.Run(context.Background())
	if err != nil {
		t.Fatalf("aborting is not an error: %v", err)
	}
	if state != StateAborted {
		t.Fatalf("state = %s, want %s", state, StateAborted)
	}
	if loop.RoundsPersisted() != 0 {
		t.Fatalf("rejected plan persisted %d round(s)", loop.RoundsPersisted())
	}
	if _, err := os.Stat(loop.SessionDir()); !os.IsNotExist(err) {
		t.Fatalf("aborted session left files behind, stat err = %v", err)
	}
	// 2 review calls and the plan call, no revision call.
	if provider.callCount() != 3 {
		t.Fatalf("model calls = %d, want 3", provider.callCount())
	}
}

func TestImproveRejectsNonLaTeX(t *testing.T) {
	cfg := improveTestConfig(t)
	client, _, _ := newStubClient(improveStubRespond)
	runner, err := NewJudgeRunner(cfg, client)
	if err != nil {
		t.Fatal(err)
	}

	for _, file := range []string{"paper.pdf", "paper.docx"} {
		loop := NewImproveLoop(cfg, runner, client, file,
			ImproveOptions{Rounds: 1, OutputDir: filepath.Join(t.TempDir(), "improvements")})
		state, err := loop.Run(context.Background())
		if state != StateAborted {
			t.Fatalf("%s: state = %s, want %s", file, state, StateAborted)
		}
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Fatalf("%s: err = %v, want ErrUnsupportedFormat", file, err)
		}
		if loop.SessionDir() != "" {
			t.Fatalf("%s: rejected input named a session dir %q", file, loop.SessionDir())
		}
	}
}

func TestImproveJudgeFailureAborts(t *testing.T) {
	cfg := improveTestConfig(t)
	client, _, _ := newStubClient(func(req CompletionRequest, call int) (string, error) {
		if req.Model == "m/b" {
			return "", fmt.Errorf("upstream 500")
		}
		return improveStubRespond(req, call)
	})
	runner, err := NewJudgeRunner(cfg, client)
	if err != nil {
		t.Fatal(err)
	}

	loop := NewImproveLoop(cfg, runner, client, writeTestPaper(t),
		ImproveOptions{Rounds: 2, OutputDir: filepath.Join(t.TempDir(), "improvements")})
	state, err := loop.Run(context.Background())
	if state != StateAborted {
		t.Fatalf("state = %s, want %s", state, StateAborted)
	}
	if err == nil || !strings.Contains(err.Error(), "Beta") {
		t.Fatalf("error should name the failed judge, got %v", err)
	}
	if loop.RoundsPersisted() != 0 {
		t.Fatalf("failed round persisted %d round(s)", loop.RoundsPersisted())
	}
}

func TestImproveApproveOutsideSuspension(t *testing.T) {
	cfg := improveTestConfig(t)
	client, _, _ := newStubClient(improveStubRespond)
	runner, err := NewJudgeRunner(cfg, client)
	if err != nil {
		t.Fatal(err)
	}

	loop := NewImproveLoop(cfg, runner, client, writeTestPaper(t), ImproveOptions{Rounds: 1})
	if err := loop.Approve(); err == nil {
		t.Fatal("Approve before suspension should fail")
	}
	if err := loop.Abort(); err == nil {
		t.Fatal("Abort before suspension should fail")
	}
	if _, ok := loop.PendingPlan(); ok {
		t.Fatal("no plan should be pending before the loop runs")
	}
}

func TestImproveRecordsRoundHistory(t *testing.T) {
	cfg := improveTestConfig(t)
	client, _, _ := newStubClient(improveStubRespond)
	runner, err := NewJudgeRunner(cfg, client)
	if err != nil {
		t.Fatal(err)
	}
	db := newTestDB(t)

	loop := NewImproveLoop(cfg, runner, client, writeTestPaper(t), ImproveOptions{
		Rounds:    2,
		OutputDir: filepath.Join(t.TempDir(), "improvements"),
		DB:        db,
		RunID:     "run-improve",
	})
	if state, err := loop.Run(context.Background()); err != nil || state != StateCompleted {
		t.Fatalf("state = %s, err = %v", state, err)
	}

	rows, err := db.Query(`SELECT round, plan_path, paper_path FROM rounds WHERE run_id = ? ORDER BY round`, "run-improve")
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()

	var rounds []int
	for rows.Next() {
		var round int
		var planPath, paperPath string
		if err := rows.Scan(&round, &planPath, &paperPath); err != nil {
			t.Fatal(err)
		}
		if planPath == "" || paperPath == "" {
			t.Fatalf("round %d recorded without paths", round)
		}
		rounds = append(rounds, round)
	}
	if err := rows.Err(); err != nil {
		t.Fatal(err)
	}
	if len(rounds) != 2 || rounds[0] != 1 || rounds[1] != 2 {
		t.Fatalf("round history = %v, want [1 2]", rounds)
	}
}
