package main

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id           TEXT PRIMARY KEY,
		paper_path   TEXT NOT NULL,
		paper_title  TEXT DEFAULT '',
		mode         TEXT NOT NULL,
		judge_count  INTEGER DEFAULT 0,
		failed_count INTEGER DEFAULT 0,
		output_dir   TEXT DEFAULT '',
		started_at   DATETIME NOT NULL,
		finished_at  DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_paper ON runs(paper_path);

	CREATE TABLE IF NOT EXISTS reviews (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id       TEXT NOT NULL,
		judge_name   TEXT NOT NULL,
		model        TEXT DEFAULT '',
		failed       INTEGER DEFAULT 0,
		quality      INTEGER DEFAULT 0,
		clarity      INTEGER DEFAULT 0,
		significance INTEGER DEFAULT 0,
		originality  INTEGER DEFAULT 0,
		overall      INTEGER DEFAULT 0,
		confidence   INTEGER DEFAULT 0,
		review_path  TEXT DEFAULT '',
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_reviews_run ON reviews(run_id);

	CREATE TABLE IF NOT EXISTS rounds (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id     TEXT NOT NULL,
		round      INTEGER NOT NULL,
		plan_path  TEXT DEFAULT '',
		paper_path TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_rounds_run ON rounds(run_id);

	CREATE TABLE IF NOT EXISTS seen_papers (
		path         TEXT NOT NULL,
		modified_at  DATETIME NOT NULL,
		evaluated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (path, modified_at)
	);
	`
	if _, err = db.Exec(schema); err != nil {
		return nil, err
	}

	return db, nil
}

func StartRun(db *sql.DB, run RunRecord) error {
	_, err := db.Exec(
		`INSERT INTO runs (id, paper_path, paper_title, mode, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.PaperPath, run.PaperTitle, run.Mode, run.StartedAt,
	)
	return err
}

func FinishRun(db *sql.DB, runID string, judgeCount, failedCount int, outputDir string, finishedAt time.Time) error {
	_, err := db.Exec(
		`UPDATE runs SET judge_count = ?, failed_count = ?, output_dir = ?, finished_at = ? WHERE id = ?`,
		judgeCount, failedCount, outputDir, finishedAt, runID,
	)
	return err
}

// InsertReviews records one row per review, failed ones included so a
// run's panel is always complete in history. paths aligns with reviews
// by index; nil means no files were written.
func InsertReviews(db *sql.DB, runID string, reviews []Review, paths []string) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO reviews (run_id, judge_name, model, failed, quality, clarity, significance, originality, overall, confidence, review_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for i, r := range reviews {
		path := ""
		if i < len(paths) {
			path = paths[i]
		}
		failed := 0
		if r.Failed {
			failed = 1
		}
		f := r.Fields
		_, err := stmt.Exec(
			runID, r.JudgeName, r.Model, failed,
			f.Quality, f.Clarity, f.Significance, f.Originality, f.Overall, f.Confidence,
			path,
		)
		if err != nil {
			return inserted, err
		}
		inserted++
	}

	return inserted, tx.Commit()
}

func InsertRound(db *sql.DB, runID string, round int, planPath, paperPath string) error {
	_, err := db.Exec(
		`INSERT INTO rounds (run_id, round, plan_path, paper_path) VALUES (?, ?, ?, ?)`,
		runID, round, planPath, paperPath,
	)
	return err
}

// AlreadyEvaluated reports whether this exact file version was already
// run through the panel. A re-saved file (new mtime) counts as new.
func AlreadyEvaluated(db *sql.DB, path string, modifiedAt time.Time) (bool, error) {
	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM seen_papers WHERE path = ? AND modified_at = ?`,
		path, modifiedAt,
	).Scan(&count)
	return count > 0, err
}

func MarkEvaluated(db *sql.DB, path string, modifiedAt time.Time) error {
	_, err := db.Exec(
		`INSERT OR IGNORE INTO seen_papers (path, modified_at) VALUES (?, ?)`,
		path, modifiedAt,
	)
	return err
}

func RecentRuns(db *sql.DB, limit int) ([]RunRecord, error) {
	rows, err := db.Query(
		`SELECT id, paper_path, paper_title, mode, judge_count, failed_count, output_dir, started_at, finished_at
		 FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var run RunRecord
		var finished sql.NullTime
		err := rows.Scan(
			&run.ID, &run.PaperPath, &run.PaperTitle, &run.Mode,
			&run.JudgeCount, &run.FailedCount, &run.OutputDir,
			&run.StartedAt, &finished,
		)
		if err != nil {
			return nil, err
		}
		if finished.Valid {
			run.FinishedAt = finished.Time
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
