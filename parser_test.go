package main

import (
	"fmt"
	"strings"
	"testing"
)

const sampleReview = `Thank you for the opportunity to review this paper.

**Summary**: The paper proposes a caching layer for distributed
training jobs and evaluates it on three clusters.

**Strengths**: Clear problem statement. Thorough ablations.

**Weaknesses**: No comparison against consistent hashing baselines.

**Quality Score** (1-4): 3
**Clarity Score** (1-4): 4
**Significance Score** (1-4): 2
**Originality Score** (1-4): 3

**Questions**: How does the approach behave under node churn?

**Limitations**: The authors discuss scope honestly.

**Overall Score** (1-6): 4
**Confidence Score** (1-5): 3
`

func TestParseReviewAllFields(t *testing.T) {
	f := ParseReview(sampleReview, markerSetV1)

	if !strings.Contains(f.Summary, "caching layer") {
		t.Fatalf("unexpected summary: %q", f.Summary)
	}
	if !strings.Contains(f.Strengths, "ablations") {
		t.Fatalf("unexpected strengths: %q", f.Strengths)
	}
	if !strings.Contains(f.Weaknesses, "consistent hashing") {
		t.Fatalf("unexpected weaknesses: %q", f.Weaknesses)
	}
	if !strings.Contains(f.Questions, "node churn") {
		t.Fatalf("unexpected questions: %q", f.Questions)
	}
	if !strings.Contains(f.Limitations, "honestly") {
		t.Fatalf("unexpected limitations: %q", f.Limitations)
	}
	if f.Quality != 3 || f.Clarity != 4 || f.Significance != 2 || f.Originality != 3 {
		t.Fatalf("unexpected axis scores: %+v", f)
	}
	if f.Overall != 4 || f.Confidence != 3 {
		t.Fatalf("unexpected overall/confidence: %+v", f)
	}
}

func TestParseReviewPreambleDropped(t *testing.T) {
	f := ParseReview(sampleReview, markerSetV1)
	if strings.Contains(f.Summary, "opportunity to review") {
		t.Fatalf("text before the first marker leaked into summary: %q", f.Summary)
	}
}

func TestParseReviewMissingConfidence(t *testing.T) {
	text := strings.Replace(sampleReview, "**Confidence Score** (1-5): 3\n", "", 1)
	f := ParseReview(text, markerSetV1)

	if f.Confidence != 0 {
		t.Fatalf("missing marker should leave confidence absent, got %d", f.Confidence)
	}
	if f.Overall != 4 || f.Summary == "" {
		t.Fatalf("other fields should still parse: %+v", f)
	}
}

func TestParseReviewHeadingVariants(t *testing.T) {
	text := `## Summary
A study of stub systems.

2. STRENGTHS: well written

Overall Score: 5

confidence score (1-5)
2
`
	f := ParseReview(text, markerSetV1)

	if f.Summary != "A study of stub systems." {
		t.Fatalf("markdown heading form not recognized: %q", f.Summary)
	}
	if f.Strengths != "well written" {
		t.Fatalf("numbered uppercase heading not recognized: %q", f.Strengths)
	}
	if f.Overall != 5 {
		t.Fatalf("plain colon heading not recognized: %d", f.Overall)
	}
	if f.Confidence != 2 {
		t.Fatalf("range-suffixed heading with value on next line not recognized: %d", f.Confidence)
	}
}

func TestParseReviewHeadingProseLinesIgnored(t *testing.T) {
	text := `**Summary**: The summary: short.
Questions about scalability were answered in section 5.
Summary of related work follows in the appendix.

**Overall Score** (1-6): 3
`
	f := ParseReview(text, markerSetV1)

	if f.Questions != "" {
		t.Fatalf("prose line starting with a heading word must not open a section: %q", f.Questions)
	}
	if !strings.Contains(f.Summary, "scalability") || !strings.Contains(f.Summary, "appendix") {
		t.Fatalf("prose lines should stay in the open section: %q", f.Summary)
	}
	if f.Overall != 3 {
		t.Fatalf("overall lost: %d", f.Overall)
	}
}

func TestParseReviewScoreEdgeCases(t *testing.T) {
	cases := []struct {
		name string
		line string
		want int
	}{
		{"out of range high", "**Overall Score** (1-6): 9", 0},
		{"zero", "**Overall Score** (1-6): 0", 0},
		{"non-numeric", "**Overall Score** (1-6): five", 0},
		{"ratio takes first in range", "**Overall Score** (1-6): 4/6", 4},
		{"prose around value", "**Overall Score** (1-6): I give this a 5 overall.", 5},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := ParseReview(c.line+"\n", markerSetV1)
			if f.Overall != c.want {
				t.Fatalf("parsed %d, want %d", f.Overall, c.want)
			}
		})
	}
}

func TestParseReviewFirstDuplicateWins(t *testing.T) {
	text := `**Summary**: first version

**Summary**: second version

**Overall Score** (1-6): 2
`
	f := ParseReview(text, markerSetV1)
	if f.Summary != "first version" {
		t.Fatalf("expected the first occurrence to win, got %q", f.Summary)
	}
}

func TestParseReviewEmptyInput(t *testing.T) {
	f := ParseReview("", markerSetV1)
	if f != (ReviewFields{}) {
		t.Fatalf("empty input should parse to the zero record: %+v", f)
	}
}

// renderMarkerFormat writes fields back in the canonical marker layout
// ParseReview reads.
func renderMarkerFormat(f ReviewFields, set markerSet) string {
	var b strings.Builder
	text := map[string]string{
		fieldSummary: f.Summary, fieldStrengths: f.Strengths, fieldWeaknesses: f.Weaknesses,
		fieldQuestions: f.Questions, fieldLimitations: f.Limitations,
	}
	score := map[string]int{
		fieldQuality: f.Quality, fieldClarity: f.Clarity, fieldSignificance: f.Significance,
		fieldOriginality: f.Originality, fieldOverall: f.Overall, fieldConfidence: f.Confidence,
	}
	for _, fm := range set.Fields {
		if fm.Max > 0 {
			if v := score[fm.Key]; v > 0 {
				fmt.Fprintf(&b, "**%s** (%d-%d): %d\n\n", fm.Heading, fm.Min, fm.Max, v)
			}
			continue
		}
		if v := text[fm.Key]; v != "" {
			fmt.Fprintf(&b, "**%s**: %s\n\n", fm.Heading, v)
		}
	}
	return b.String()
}

func TestParseReviewIdempotent(t *testing.T) {
	first := ParseReview(sampleReview, markerSetV1)
	second := ParseReview(renderMarkerFormat(first, markerSetV1), markerSetV1)

	if first != second {
		t.Fatalf("re-parsing the rendered review changed fields:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestInstructionListMatchesMarkers(t *testing.T) {
	list := markerSetV1.InstructionList()

	lines := strings.Split(strings.TrimRight(list, "\n"), "\n")
	if len(lines) != len(markerSetV1.Fields) {
		t.Fatalf("expected %d instruction lines, got %d", len(markerSetV1.Fields), len(lines))
	}
	for i, fm := range markerSetV1.Fields {
		if !strings.Contains(lines[i], fm.Heading) {
			t.Fatalf("line %d missing heading %q: %q", i, fm.Heading, lines[i])
		}
	}
	if !strings.Contains(list, "**Overall Score** (1-6)") {
		t.Fatalf("score ranges missing from instructions:\n%s", list)
	}
	if !strings.Contains(list, "1. **Summary**") {
		t.Fatalf("numbering missing from instructions:\n%s", list)
	}
}

// Every heading the instruction list asks for must be recognized by
// the same set's parser when echoed back verbatim.
func TestInstructionHeadingsRoundTrip(t *testing.T) {
	var b strings.Builder
	for _, fm := range markerSetV1.Fields {
		if fm.Max > 0 {
			fmt.Fprintf(&b, "%s: %d\n", fm.Heading, fm.Min)
		} else {
			fmt.Fprintf(&b, "%s: some text for %s\n", fm.Heading, fm.Key)
		}
	}
	f := ParseReview(b.String(), markerSetV1)

	if f.Summary == "" || f.Strengths == "" || f.Weaknesses == "" || f.Questions == "" || f.Limitations == "" {
		t.Fatalf("text field dropped: %+v", f)
	}
	if f.Quality == 0 || f.Clarity == 0 || f.Significance == 0 || f.Originality == 0 || f.Overall == 0 || f.Confidence == 0 {
		t.Fatalf("score field dropped: %+v", f)
	}
}

func TestMarkerSetForFallsBack(t *testing.T) {
	if got := markerSetFor("v1").Version; got != "v1" {
		t.Fatalf("unexpected version: %q", got)
	}
	if got := markerSetFor("v99").Version; got != "v1" {
		t.Fatalf("unknown version should fall back to v1, got %q", got)
	}
}
