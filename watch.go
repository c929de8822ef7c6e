package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ScanResult tracks separate counters for each outcome of one watch scan.
type ScanResult struct {
	TotalFound  int
	Evaluated   int
	AlreadySeen int
	Failed      int
	Errors      []string
}

// ScanWatchDir evaluates every paper file in the watch directory that is
// not yet recorded in seen_papers with its current mtime. It has no
// scheduling dependency so it can be called once from tests or in a loop
// from RunWatcher.
func ScanWatchDir(ctx context.Context, cfg Config, db *sql.DB, runner *JudgeRunner, outputDir string) (ScanResult, error) {
	var result ScanResult

	entries, err := os.ReadDir(cfg.Watch.Dir)
	if err != nil {
		return result, fmt.Errorf("reading watch dir %s: %w", cfg.Watch.Dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, err := formatForExt(filepath.Ext(entry.Name())); err != nil {
			continue
		}
		path := filepath.Join(cfg.Watch.Dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			log.Printf("watch stat error path=%s: %v", path, err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", entry.Name(), err))
			continue
		}
		result.TotalFound++

		seen, dbErr := AlreadyEvaluated(db, path, info.ModTime())
		if dbErr != nil {
			log.Printf("watch dedupe check error path=%s: %v", path, dbErr)
			continue
		}
		if seen {
			result.AlreadySeen++
			continue
		}

		log.Printf("watch evaluating path=%s", path)
		if _, _, err := evaluateOnce(ctx, cfg, db, runner, path, outputDir, ModeWatch); err != nil {
			log.Printf("watch evaluation failed path=%s: %v", path, err)
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", entry.Name(), err))
			continue
		}
		result.Evaluated++
		if err := MarkEvaluated(db, path, info.ModTime()); err != nil {
			log.Printf("watch mark-evaluated error path=%s: %v", path, err)
		}
	}

	return result, nil
}

// FormatScanSummary returns a human-readable summary of a ScanResult.
func FormatScanSummary(result ScanResult) string {
	if result.Evaluated == 0 && result.Failed == 0 {
		msg := fmt.Sprintf("Found %d paper(s), none new", result.TotalFound)
		if result.AlreadySeen > 0 {
			msg += fmt.Sprintf(" (%d already evaluated)", result.AlreadySeen)
		}
		msg += "."
		if len(result.Errors) > 0 {
			msg += fmt.Sprintf("\nWarnings:\n%s", strings.Join(result.Errors, "\n"))
		}
		return msg
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("%d evaluated", result.Evaluated))
	if result.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", result.Failed))
	}
	if result.AlreadySeen > 0 {
		parts = append(parts, fmt.Sprintf("%d already evaluated", result.AlreadySeen))
	}
	msg := fmt.Sprintf("Found %d paper(s): %s", result.TotalFound, strings.Join(parts, ", "))
	if len(result.Errors) > 0 {
		msg += fmt.Sprintf("\nErrors:\n%s", strings.Join(result.Errors, "\n"))
	}
	return msg
}

// RunWatcher blocks forever, scanning the watch directory on the configured
// cron schedule. The schedule is a standard 5-field cron expression
// (minute hour day-of-month month day-of-week).
// Examples: "0 7 * * *" (daily 7am), "*/30 * * * *" (every 30 minutes).
func RunWatcher(ctx context.Context, cfg Config, db *sql.DB, runner *JudgeRunner, notifier *Notifier, outputDir string) error {
	schedule := strings.TrimSpace(cfg.Watch.Schedule)
	if schedule == "" {
		return fmt.Errorf("watch mode needs watch.schedule in the config")
	}
	if strings.TrimSpace(cfg.Watch.Dir) == "" {
		return fmt.Errorf("watch mode needs watch.dir in the config")
	}
	if _, err := os.Stat(cfg.Watch.Dir); err != nil {
		return fmt.Errorf("watch dir: %w", err)
	}
	sched, err := cronParser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("invalid watch.schedule %q: %w", schedule, err)
	}

	log.Printf("watch started dir=%s schedule=%q judges=%d", cfg.Watch.Dir, schedule, len(cfg.Judges))

	for {
		now := time.Now()
		next := sched.Next(now)
		wait := next.Sub(now)
		log.Printf("next scan at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

		time.Sleep(wait)

		result, scanErr := ScanWatchDir(ctx, cfg, db, runner, outputDir)
		summary := FormatScanSummary(result)
		if scanErr != nil {
			log.Printf("watch scan error: %v", scanErr)
		}
		log.Printf("watch scan complete: %s", summary)

		if result.Evaluated > 0 || result.Failed > 0 {
			notifier.Post(fmt.Sprintf("Watch scan complete: %s", summary))
		}
	}
}
