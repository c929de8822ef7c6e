package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

const unknownTitle = "Unknown Paper"

// ExtractPaper reads a paper file and returns its text, title, and
// format. Dispatch is by extension: .tex is read as-is, .pdf goes
// through plain-text extraction. Anything else is ErrUnsupportedFormat.
func ExtractPaper(path string) (Paper, error) {
	format, err := formatForExt(filepath.Ext(path))
	if err != nil {
		return Paper{}, err
	}

	p := Paper{
		Path:   path,
		Name:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Format: format,
	}

	switch format {
	case FormatLaTeX:
		p.Text, p.Title, err = readLaTeX(path)
	case FormatPDF:
		p.Text, p.Title, err = readPDF(path)
	}
	if err != nil {
		return Paper{}, err
	}
	return p, nil
}

func formatForExt(ext string) (string, error) {
	switch strings.ToLower(ext) {
	case ".tex":
		return FormatLaTeX, nil
	case ".pdf":
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("%w: %q (supported: .tex, .pdf)", ErrUnsupportedFormat, ext)
	}
}

func readLaTeX(path string) (text, title string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrNoExtractableText, err)
	}
	text = string(data)
	if strings.TrimSpace(text) == "" {
		return "", "", fmt.Errorf("%w: %s", ErrNoExtractableText, path)
	}
	title = titleFromLaTeX(text)
	if title == "" {
		title = unknownTitle
	}
	return text, title, nil
}

func readPDF(path string) (text, title string, err error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", "", fmt.Errorf("%w: open pdf: %v", ErrNoExtractableText, err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", "", fmt.Errorf("%w: extract pdf text: %v", ErrNoExtractableText, err)
	}
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, reader); err != nil {
		return "", "", fmt.Errorf("%w: read extracted text: %v", ErrNoExtractableText, err)
	}
	text = sanitizeText(buf.String())
	if text == "" {
		return "", "", fmt.Errorf("%w: %s", ErrNoExtractableText, path)
	}
	title = titleFromText(text)
	if title == "" {
		title = unknownTitle
	}
	return text, title, nil
}

var (
	reLaTeXTitle   = regexp.MustCompile(`\\title\{((?:[^{}]|\{[^{}]*\})*)\}`)
	reLaTeXArgCmd  = regexp.MustCompile(`\\[a-zA-Z]+\{([^}]*)\}`)
	reLaTeXBareCmd = regexp.MustCompile(`\\[a-zA-Z]+`)
)

// titleFromLaTeX pulls the \title{...} argument, with nested LaTeX
// commands stripped. Empty when the document declares no title.
func titleFromLaTeX(content string) string {
	m := reLaTeXTitle.FindStringSubmatch(content)
	if m == nil {
		return ""
	}
	title := reLaTeXArgCmd.ReplaceAllString(m[1], "$1")
	title = reLaTeXBareCmd.ReplaceAllString(title, "")
	return strings.TrimSpace(title)
}

// titleFromText guesses a title from the first substantial line of
// extracted text. Checks the first ten non-empty lines for one of
// plausible title length.
func titleFromText(text string) string {
	lines := strings.Split(text, "\n")
	checked := 0
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		checked++
		if len(line) > 10 && len(line) < 200 {
			return line
		}
		if checked >= 10 {
			break
		}
	}
	return ""
}

// sanitizeText drops NUL bytes and non-printing control characters,
// keeping common whitespace. PDF extraction leaks these routinely.
func sanitizeText(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "\x00", "")
	r := make([]rune, 0, len(s))
	for _, ch := range s {
		if ch == '\n' || ch == '\r' || ch == '\t' {
			r = append(r, ch)
			continue
		}
		if ch < 0x20 {
			continue
		}
		r = append(r, ch)
	}
	return strings.TrimSpace(string(r))
}

var (
	reBlankRuns  = regexp.MustCompile(`\n\s*\n\s*\n+`)
	reHorizWS    = regexp.MustCompile(`[ \t]+`)
	reOptArgCmd  = regexp.MustCompile(`\\[a-zA-Z]+\*?\[[^\]]*\]`)
	reEnvMarker  = regexp.MustCompile(`\\(begin|end)\{[^}]*\}`)
	reSimpleCmd  = regexp.MustCompile(`\\[a-zA-Z]+\*?`)
	reBracedText = regexp.MustCompile(`\{([^}]*)\}`)
	reStrayBrace = regexp.MustCompile(`[{}]`)
)

// CleanForEvaluation strips LaTeX scaffolding and collapses whitespace
// so judges read prose, not markup. Only prompt content is cleaned;
// revision always works from the raw source.
func CleanForEvaluation(text string) string {
	text = reBlankRuns.ReplaceAllString(text, "\n\n")
	text = reHorizWS.ReplaceAllString(text, " ")

	text = reOptArgCmd.ReplaceAllString(text, "")
	text = reEnvMarker.ReplaceAllString(text, "")
	text = reSimpleCmd.ReplaceAllString(text, " ")

	text = reBracedText.ReplaceAllString(text, "$1")
	text = reStrayBrace.ReplaceAllString(text, "")

	return strings.TrimSpace(text)
}
