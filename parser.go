package main

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Field keys shared by the marker sets, the parser, and the store.
const (
	fieldSummary      = "summary"
	fieldStrengths    = "strengths"
	fieldWeaknesses   = "weaknesses"
	fieldQuality      = "quality"
	fieldClarity      = "clarity"
	fieldSignificance = "significance"
	fieldOriginality  = "originality"
	fieldQuestions    = "questions"
	fieldLimitations  = "limitations"
	fieldOverall      = "overall"
	fieldConfidence   = "confidence"
)

// fieldMarker is one requested output section: the heading the prompt
// asks for (and the parser recognizes), the instruction shown to the
// model, and the score range for numeric fields (0,0 = free text).
type fieldMarker struct {
	Key     string
	Heading string
	Prompt  string
	Min     int
	Max     int

	re *regexp.Regexp
}

// markerSet ties prompt wording to parsing. Both the review prompt's
// section list and the response segmentation are generated from the
// same set, so a wording change ships as a new version and the two
// cannot drift.
type markerSet struct {
	Version string
	Fields  []fieldMarker
}

var markerSetV1 = newMarkerSet("v1", []fieldMarker{
	{Key: fieldSummary, Heading: "Summary",
		Prompt: "Briefly summarize the paper and its contributions in your own words"},
	{Key: fieldStrengths, Heading: "Strengths",
		Prompt: "List the paper's main strengths, most important first"},
	{Key: fieldWeaknesses, Heading: "Weaknesses",
		Prompt: "List the paper's main weaknesses and how each could be addressed"},
	{Key: fieldQuality, Heading: "Quality Score", Min: 1, Max: 4,
		Prompt: "Rate the technical soundness"},
	{Key: fieldClarity, Heading: "Clarity Score", Min: 1, Max: 4,
		Prompt: "Rate the writing and presentation quality"},
	{Key: fieldSignificance, Heading: "Significance Score", Min: 1, Max: 4,
		Prompt: "Rate the impact and importance"},
	{Key: fieldOriginality, Heading: "Originality Score", Min: 1, Max: 4,
		Prompt: "Rate the novelty and insights"},
	{Key: fieldQuestions, Heading: "Questions",
		Prompt: "List 3-5 key actionable questions for the authors"},
	{Key: fieldLimitations, Heading: "Limitations",
		Prompt: "Assess whether limitations are adequately addressed"},
	{Key: fieldOverall, Heading: "Overall Score", Min: 1, Max: 6,
		Prompt: "Provide your final recommendation with justification"},
	{Key: fieldConfidence, Heading: "Confidence Score", Min: 1, Max: 5,
		Prompt: "Rate your confidence in this assessment"},
})

var markerSets = map[string]markerSet{
	"v1": markerSetV1,
}

func markerSetFor(version string) markerSet {
	if set, ok := markerSets[version]; ok {
		return set
	}
	return markerSetV1
}

func knownMarkerVersions() string {
	versions := make([]string, 0, len(markerSets))
	for v := range markerSets {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return strings.Join(versions, ", ")
}

func newMarkerSet(version string, fields []fieldMarker) markerSet {
	for i := range fields {
		fields[i].re = headingPattern(fields[i].Heading)
	}
	return markerSet{Version: version, Fields: fields}
}

// headingPattern matches a heading line as models actually emit them:
// optional markdown/number/bold prefixes, an optional score-range
// suffix, then either a colon (inline content captured) or end of
// line. A heading word mid-sentence does not match.
func headingPattern(heading string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)^[#*\d.)\s]*` + regexp.QuoteMeta(heading) +
		`\s*(?:\*\*)?\s*(?:\([^)]*\))?\s*(?::\s*(.*))?$`)
}

// InstructionList renders the numbered output sections a review prompt
// requests, in marker order.
func (m markerSet) InstructionList() string {
	var b strings.Builder
	for i, fm := range m.Fields {
		fmt.Fprintf(&b, "%d. **%s**", i+1, fm.Heading)
		if fm.Max > 0 {
			fmt.Fprintf(&b, " (%d-%d)", fm.Min, fm.Max)
		}
		fmt.Fprintf(&b, ": %s\n", fm.Prompt)
	}
	return b.String()
}

// ParseReview segments a model response by the set's headings and fills
// a ReviewFields. A missing heading leaves its field absent; a numeric
// section without an in-range integer does the same. Parsing never
// fails.
func ParseReview(text string, set markerSet) ReviewFields {
	segments := segmentByMarkers(text, set)

	var f ReviewFields
	for _, fm := range set.Fields {
		seg, ok := segments[fm.Key]
		if !ok {
			continue
		}
		if fm.Max > 0 {
			if v, ok := firstIntInRange(seg, fm.Min, fm.Max); ok {
				f.setScore(fm.Key, v)
			}
			continue
		}
		if seg = strings.TrimSpace(seg); seg != "" {
			f.setText(fm.Key, seg)
		}
	}
	return f
}

// segmentByMarkers splits the response into per-field text. Content
// before the first heading is dropped; on a duplicated heading the
// first occurrence wins.
func segmentByMarkers(text string, set markerSet) map[string]string {
	segments := make(map[string]string)
	var current string
	var buf strings.Builder

	flush := func() {
		if current == "" {
			return
		}
		if _, exists := segments[current]; !exists {
			segments[current] = strings.TrimSpace(buf.String())
		}
		buf.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		key, inline, matched := matchHeading(line, set)
		if matched {
			flush()
			current = key
			if inline != "" {
				buf.WriteString(inline)
				buf.WriteString("\n")
			}
			continue
		}
		if current != "" {
			buf.WriteString(line)
			buf.WriteString("\n")
		}
	}
	flush()
	return segments
}

func matchHeading(line string, set markerSet) (key, inline string, ok bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", "", false
	}
	for _, fm := range set.Fields {
		m := fm.re.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		return fm.Key, strings.TrimSpace(m[1]), true
	}
	return "", "", false
}

var reInteger = regexp.MustCompile(`\b\d+\b`)

func firstIntInRange(s string, min, max int) (int, bool) {
	for _, raw := range reInteger.FindAllString(s, -1) {
		v, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		if v >= min && v <= max {
			return v, true
		}
	}
	return 0, false
}

func (f *ReviewFields) setText(key, val string) {
	switch key {
	case fieldSummary:
		f.Summary = val
	case fieldStrengths:
		f.Strengths = val
	case fieldWeaknesses:
		f.Weaknesses = val
	case fieldQuestions:
		f.Questions = val
	case fieldLimitations:
		f.Limitations = val
	}
}

func (f *ReviewFields) setScore(key string, val int) {
	switch key {
	case fieldQuality:
		f.Quality = val
	case fieldClarity:
		f.Clarity = val
	case fieldSignificance:
		f.Significance = val
	case fieldOriginality:
		f.Originality = val
	case fieldOverall:
		f.Overall = val
	case fieldConfidence:
		f.Confidence = val
	}
}
