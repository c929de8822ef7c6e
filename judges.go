package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// dispatcher spaces call starts a fixed interval apart and bounds how
// many run at once. The clock is injected so tests verify spacing
// without real sleeps.
type dispatcher struct {
	interval time.Duration
	slots    chan struct{}

	mu   sync.Mutex
	next time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

func newDispatcher(interval time.Duration, maxConcurrent int) *dispatcher {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &dispatcher{
		interval: interval,
		slots:    make(chan struct{}, maxConcurrent),
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// acquire blocks until a concurrency slot is free and the interval
// since the previous start has elapsed. Each caller gets a start time
// exactly interval after the one before it.
func (d *dispatcher) acquire() {
	d.slots <- struct{}{}

	d.mu.Lock()
	now := d.now()
	var wait time.Duration
	if now.Before(d.next) {
		wait = d.next.Sub(now)
	}
	d.next = now.Add(wait).Add(d.interval)
	d.mu.Unlock()

	if wait > 0 {
		d.sleep(wait)
	}
}

func (d *dispatcher) release() { <-d.slots }

// JudgeRunner reviews papers with a configured judge panel. One runner
// is reused across improvement rounds, so the dispatch pacing spans
// rounds too.
type JudgeRunner struct {
	cfg        Config
	client     *ModelClient
	guidelines string
	markers    markerSet
	dispatch   *dispatcher
}

func NewJudgeRunner(cfg Config, client *ModelClient) (*JudgeRunner, error) {
	guidelines, err := LoadGuidelines(cfg.GuidelinesFile)
	if err != nil {
		return nil, err
	}
	return &JudgeRunner{
		cfg:        cfg,
		client:     client,
		guidelines: guidelines,
		markers:    markerSetFor(cfg.Settings.MarkerVersion),
		dispatch:   newDispatcher(cfg.Settings.APIDelayDuration(), cfg.Settings.MaxConcurrent),
	}, nil
}

// RunJudges produces exactly one Review per judge, in configuration
// order. A judge whose call exhausts the retry budget yields a
// degraded entry; the others proceed. Only an empty paper fails the
// whole batch.
func (r *JudgeRunner) RunJudges(ctx context.Context, paper Paper, judges []JudgeConfig) ([]Review, error) {
	if strings.TrimSpace(paper.Text) == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoExtractableText, paper.Path)
	}

	// Judges read prose; LaTeX scaffolding only burns tokens.
	evalPaper := paper
	evalPaper.Text = CleanForEvaluation(paper.Text)

	results := make([]Review, len(judges))
	var wg sync.WaitGroup
	for i, judge := range judges {
		wg.Add(1)
		go func(idx int, judge JudgeConfig) {
			defer wg.Done()
			r.dispatch.acquire()
			defer r.dispatch.release()
			results[idx] = r.reviewOne(ctx, evalPaper, judge)
		}(i, judge)
	}
	wg.Wait()

	return results, nil
}

func (r *JudgeRunner) reviewOne(ctx context.Context, paper Paper, judge JudgeConfig) Review {
	prompt := BuildReviewPrompt(paper, judge.Persona, r.guidelines, r.markers)
	if r.cfg.Settings.LogPrompts {
		if _, err := WritePromptLog("logs", paper.Title, judge.Model, judge.Persona,
			r.cfg.Settings.Temperature, r.cfg.Settings.MaxTokens, prompt, time.Now()); err != nil {
			log.Printf("prompt log write failed (non-fatal): %v", err)
		}
	}

	if verbose {
		log.Printf("judge start name=%s model=%s prompt_size=%d", judge.Name, judge.Model, len(prompt))
	}
	text, err := r.client.Complete(ctx, CompletionRequest{
		Provider:    judge.Provider,
		Model:       judge.Model,
		Prompt:      prompt,
		Temperature: r.cfg.Settings.Temperature,
		MaxTokens:   r.cfg.Settings.MaxTokens,
	})
	if err != nil {
		log.Printf("judge failed name=%s model=%s: %v", judge.Name, judge.Model, err)
		return Review{JudgeName: judge.Name, Model: judge.Model, Failed: true, Error: err.Error()}
	}

	review := Review{JudgeName: judge.Name, Model: judge.Model, Text: text}
	review.Fields = ParseReview(text, r.markers)
	if verbose {
		log.Printf("judge done name=%s overall=%d confidence=%d", judge.Name, review.Fields.Overall, review.Fields.Confidence)
	}
	return review
}

// EvalResult collects what one evaluation produced: the reviews in
// judge order, the review file path for each, and the summary path
// ("" when only one judge ran).
type EvalResult struct {
	Reviews     []Review
	ReviewPaths []string
	SummaryPath string
}

// Evaluate runs the panel and writes the per-judge review files, plus
// the summary file when more than one judge ran.
func (r *JudgeRunner) Evaluate(ctx context.Context, paper Paper, judges []JudgeConfig, outputDir string) (EvalResult, error) {
	reviews, err := r.RunJudges(ctx, paper, judges)
	if err != nil {
		return EvalResult{}, err
	}
	result := EvalResult{Reviews: reviews, ReviewPaths: make([]string, len(reviews))}

	now := time.Now()
	for i, review := range reviews {
		path, err := WriteReviewFile(review, outputDir, paper.Name, now)
		if err != nil {
			return result, fmt.Errorf("write review for %s: %w", review.JudgeName, err)
		}
		result.ReviewPaths[i] = path
		log.Printf("review saved judge=%s path=%s", review.JudgeName, path)
	}

	if len(judges) > 1 {
		result.SummaryPath, err = WriteSummaryFile(paper, reviews, outputDir, now)
		if err != nil {
			return result, fmt.Errorf("write summary: %w", err)
		}
		log.Printf("summary saved path=%s", result.SummaryPath)
	}
	return result, nil
}
