package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const reviewTimeFormat = "2006-01-02 15:04:05"

// WriteReviewFile saves one judge's review as
// <paper>.<judge>.review.txt under outputDir. Degraded reviews get a
// file too, so every configured judge leaves a trace on disk.
func WriteReviewFile(review Review, outputDir, paperName string, generatedAt time.Time) (string, error) {
	filename := fmt.Sprintf("%s.%s.review.txt", sanitizeFilename(paperName), sanitizeFilename(review.JudgeName))
	path := filepath.Join(outputDir, filename)

	body := review.Text
	if review.Failed {
		body = fmt.Sprintf("Review generation failed: %s\n", review.Error)
	}

	var b strings.Builder
	b.WriteString("# Paper Review\n")
	fmt.Fprintf(&b, "Generated: %s\n", generatedAt.Format(reviewTimeFormat))
	fmt.Fprintf(&b, "Judge: %s\n", review.JudgeName)
	b.WriteString(strings.Repeat("=", 50))
	b.WriteString("\n\n")
	b.WriteString(body)

	return path, writeFileAtomic(path, b.String())
}

// WriteSummaryFile saves the cross-judge summary as <paper>.summary.txt.
func WriteSummaryFile(paper Paper, reviews []Review, outputDir string, generatedAt time.Time) (string, error) {
	path := filepath.Join(outputDir, fmt.Sprintf("%s.summary.txt", sanitizeFilename(paper.Name)))
	content := BuildSummary(paper, reviews, generatedAt)
	return path, writeFileAtomic(path, content)
}

// BuildSummary renders the multi-judge summary: header, score table
// with per-column averages, failure call-outs, and pointers to the
// per-judge review files.
func BuildSummary(paper Paper, reviews []Review, generatedAt time.Time) string {
	var b strings.Builder

	b.WriteString("# Multi-Judge Review Summary\n")
	fmt.Fprintf(&b, "Paper: %s\n", paper.Title)
	fmt.Fprintf(&b, "Evaluation Date: %s\n", generatedAt.Format(reviewTimeFormat))

	names := make([]string, len(reviews))
	for i, r := range reviews {
		names[i] = r.JudgeName
	}
	fmt.Fprintf(&b, "Judges: %s\n\n", strings.Join(names, ", "))

	b.WriteString("## Scores\n\n")
	b.WriteString("| Judge | Quality | Clarity | Significance | Originality | Overall | Confidence |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	for _, r := range reviews {
		if r.Failed {
			fmt.Fprintf(&b, "| %s | failed | failed | failed | failed | failed | failed |\n", r.JudgeName)
			continue
		}
		f := r.Fields
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s |\n", r.JudgeName,
			scoreCell(f.Quality), scoreCell(f.Clarity), scoreCell(f.Significance),
			scoreCell(f.Originality), scoreCell(f.Overall), scoreCell(f.Confidence))
	}
	avg := AverageScores(reviews)
	fmt.Fprintf(&b, "| Average | %s | %s | %s | %s | %s | %s |\n\n",
		avgCell(avg.Quality), avgCell(avg.Clarity), avgCell(avg.Significance),
		avgCell(avg.Originality), avgCell(avg.Overall), avgCell(avg.Confidence))

	if failed := FailedJudges(reviews); len(failed) > 0 {
		fmt.Fprintf(&b, "Failed judges: %s\n\n", strings.Join(failed, ", "))
	}

	b.WriteString("## Reviews\n\n")
	for _, r := range reviews {
		fmt.Fprintf(&b, "### %s Review\n", r.JudgeName)
		if r.Failed {
			fmt.Fprintf(&b, "Failed: %s\n\n", r.Error)
			continue
		}
		fmt.Fprintf(&b, "See: %s.%s.review.txt\n\n",
			sanitizeFilename(paper.Name), sanitizeFilename(r.JudgeName))
	}

	return b.String()
}

func scoreCell(v int) string {
	if v == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", v)
}

func avgCell(v float64) string {
	if v == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f", v)
}

// WritePlanFile saves an improvement plan as round_N_plan.txt in the
// session directory.
func WritePlanFile(sessionDir string, plan Plan, generatedAt time.Time) (string, error) {
	path := filepath.Join(sessionDir, fmt.Sprintf("round_%d_plan.txt", plan.Round))
	var b strings.Builder
	fmt.Fprintf(&b, "# Improvement Plan - Round %d\n", plan.Round)
	fmt.Fprintf(&b, "Generated: %s\n\n", generatedAt.Format(reviewTimeFormat))
	b.WriteString(plan.Text)
	return path, writeFileAtomic(path, b.String())
}

// WriteRevisionFile saves a round's revised paper as
// round_N_<name>_improved.tex.
func WriteRevisionFile(sessionDir string, round int, paperName, content string) (string, error) {
	path := filepath.Join(sessionDir, fmt.Sprintf("round_%d_%s_improved.tex", round, sanitizeFilename(paperName)))
	return path, writeFileAtomic(path, content)
}

// WriteFinalFile saves the last accepted version as
// <name>_final_improved.tex.
func WriteFinalFile(sessionDir, paperName, content string) (string, error) {
	path := filepath.Join(sessionDir, fmt.Sprintf("%s_final_improved.tex", sanitizeFilename(paperName)))
	return path, writeFileAtomic(path, content)
}

// WritePromptLog saves an outgoing prompt under logs/ for inspection,
// named <timestamp>_<title>_<model>[_<persona>].prompt.txt.
func WritePromptLog(logsDir, paperTitle, model, persona string, temperature float64, maxTokens int, prompt string, now time.Time) (string, error) {
	safeTitle := sanitizeFilename(paperTitle)
	if len(safeTitle) > 50 {
		safeTitle = safeTitle[:50]
	}
	name := fmt.Sprintf("%s_%s_%s", now.Format("20060102_150405"), safeTitle, sanitizeFilename(model))
	if persona != "" {
		name += "_" + sanitizeFilename(persona)
	}
	path := filepath.Join(logsDir, name+".prompt.txt")

	var b strings.Builder
	b.WriteString("# Prompt Log\n")
	fmt.Fprintf(&b, "Timestamp: %s\n", now.Format(reviewTimeFormat))
	fmt.Fprintf(&b, "Paper Title: %s\n", paperTitle)
	fmt.Fprintf(&b, "Model: %s\n", model)
	if persona == "" {
		persona = "None"
	}
	fmt.Fprintf(&b, "Judge Persona: %s\n", persona)
	fmt.Fprintf(&b, "Temperature: %g\n", temperature)
	fmt.Fprintf(&b, "Max Tokens: %d\n", maxTokens)
	b.WriteString(strings.Repeat("=", 80))
	b.WriteString("\n\n")
	b.WriteString(prompt)

	return path, writeFileAtomic(path, b.String())
}

// writeFileAtomic writes through a temp file and rename, so a failure
// mid-write never leaves a partial file at the target path.
func writeFileAtomic(path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "tmp-*.txt")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func sanitizeFilename(s string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_", " ", "_")
	return replacer.Replace(s)
}
