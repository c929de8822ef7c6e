package main

import "time"

// Paper source formats.
const (
	FormatPDF   = "pdf"
	FormatLaTeX = "latex"
)

// Run modes recorded in history.
const (
	ModeEvaluate = "evaluate"
	ModeImprove  = "improve"
	ModeWatch    = "watch"
)

type Paper struct {
	Path   string
	Name   string // file stem, used in output filenames
	Title  string
	Text   string // extracted text, unmodified
	Format string // FormatPDF or FormatLaTeX
}

// ReviewFields holds the structured part of a review. String fields are
// "" and numeric fields 0 when the response carried no parsable value
// (valid scores start at 1).
type ReviewFields struct {
	Summary     string
	Strengths   string
	Weaknesses  string
	Questions   string
	Limitations string

	Quality      int // 1-4
	Clarity      int // 1-4
	Significance int // 1-4
	Originality  int // 1-4
	Overall      int // 1-6
	Confidence   int // 1-5
}

// Review is one judge's verdict on one paper version. A failed review
// keeps its slot in the result list so callers always see one entry
// per configured judge.
type Review struct {
	JudgeName string
	Model     string
	Text      string // full model response
	Failed    bool
	Error     string // failure detail when Failed

	Fields ReviewFields
}

type Plan struct {
	Round int
	Text  string
}

// ScoreAverages aggregates parsed scores across reviews. Each field
// averages only the reviews where that field was present; 0 means no
// review supplied it.
type ScoreAverages struct {
	Quality      float64
	Clarity      float64
	Significance float64
	Originality  float64
	Overall      float64
	Confidence   float64
}

func AverageScores(reviews []Review) ScoreAverages {
	pick := func(f func(ReviewFields) int) float64 {
		sum, n := 0, 0
		for _, r := range reviews {
			if r.Failed {
				continue
			}
			if v := f(r.Fields); v > 0 {
				sum += v
				n++
			}
		}
		if n == 0 {
			return 0
		}
		return float64(sum) / float64(n)
	}
	return ScoreAverages{
		Quality:      pick(func(f ReviewFields) int { return f.Quality }),
		Clarity:      pick(func(f ReviewFields) int { return f.Clarity }),
		Significance: pick(func(f ReviewFields) int { return f.Significance }),
		Originality:  pick(func(f ReviewFields) int { return f.Originality }),
		Overall:      pick(func(f ReviewFields) int { return f.Overall }),
		Confidence:   pick(func(f ReviewFields) int { return f.Confidence }),
	}
}

// FailedJudges lists the names of judges whose reviews degraded.
func FailedJudges(reviews []Review) []string {
	var names []string
	for _, r := range reviews {
		if r.Failed {
			names = append(names, r.JudgeName)
		}
	}
	return names
}

// RunRecord is one history row: a single evaluation or improvement run.
type RunRecord struct {
	ID          string
	PaperPath   string
	PaperTitle  string
	Mode        string
	JudgeCount  int
	FailedCount int
	OutputDir   string
	StartedAt   time.Time
	FinishedAt  time.Time
}
