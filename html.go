package main

import (
	"bytes"
	"fmt"
	"html"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// summaryMD renders summary markdown; the table extension covers the
// score grid, which plain CommonMark would leave as pipe-text.
var summaryMD = goldmark.New(goldmark.WithExtensions(extension.Table))

const htmlShell = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: sans-serif; max-width: 52rem; margin: 2rem auto; padding: 0 1rem; }
table { border-collapse: collapse; }
th, td { border: 1px solid #999; padding: 0.3rem 0.6rem; text-align: center; }
</style>
</head>
<body>
%s</body>
</html>
`

// WriteSummaryHTML renders an existing summary file to a standalone HTML
// page next to it: reviews/paper.summary.txt -> reviews/paper.summary.html.
func WriteSummaryHTML(summaryPath string) (string, error) {
	raw, err := os.ReadFile(summaryPath)
	if err != nil {
		return "", fmt.Errorf("reading summary: %w", err)
	}

	var body bytes.Buffer
	if err := summaryMD.Convert(raw, &body); err != nil {
		return "", fmt.Errorf("rendering summary: %w", err)
	}

	htmlPath := strings.TrimSuffix(summaryPath, ".txt") + ".html"
	page := fmt.Sprintf(htmlShell, html.EscapeString(htmlTitle(raw)), body.String())
	if err := writeFileAtomic(htmlPath, page); err != nil {
		return "", err
	}
	return htmlPath, nil
}

// htmlTitle takes the first markdown heading as the page title.
func htmlTitle(md []byte) string {
	for _, line := range strings.Split(string(md), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "# "))
		}
	}
	return "Review Summary"
}
