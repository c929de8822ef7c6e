package main

import (
	"fmt"
	"os"
	"strings"
)

// LoadGuidelines reads the review-guidelines text given to every judge.
func LoadGuidelines(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read guidelines: %w", err)
	}
	return string(data), nil
}

// BuildReviewPrompt assembles the full review request for one judge:
// reviewer preamble, guidelines, optional persona, paper, and the
// section list generated from the marker set. Pure function of its
// inputs.
func BuildReviewPrompt(paper Paper, persona, guidelines string, set markerSet) string {
	var b strings.Builder

	b.WriteString("You are an expert academic peer reviewer evaluating a research paper for a top-tier conference. ")
	b.WriteString("Your task is to provide a thorough, constructive, and fair review following the review guidelines below.\n\n")

	b.WriteString("REVIEW GUIDELINES:\n")
	b.WriteString(guidelines)
	b.WriteString("\n\n")

	if persona != "" {
		fmt.Fprintf(&b, "JUDGE PERSONA: %s\n", persona)
		fmt.Fprintf(&b, "Please evaluate this paper particularly from the perspective of your expertise in %s. ", persona)
		b.WriteString("While providing a complete review, pay special attention to the aspects most relevant to your area of expertise.\n\n")
	}

	b.WriteString("PAPER TO REVIEW:\n")
	fmt.Fprintf(&b, "Title: %s\n\n", paper.Title)
	b.WriteString("Content:\n")
	b.WriteString(paper.Text)
	b.WriteString("\n\n")

	b.WriteString("INSTRUCTIONS:\n")
	b.WriteString("Provide a comprehensive review with exactly the following sections, each introduced by its heading:\n\n")
	b.WriteString(set.InstructionList())
	b.WriteString("\nBe constructive, specific, and fair. Focus on helping the authors improve their work while maintaining rigorous academic standards.\n\n")
	b.WriteString("REVIEW:\n")

	return b.String()
}

// BuildPlanPrompt asks for a prioritized improvement plan from the
// round's reviews. Degraded reviews carry no reviewer text and are
// left out.
func BuildPlanPrompt(paper Paper, reviews []Review) string {
	var b strings.Builder

	b.WriteString("You are the lead author revising a research paper after peer review. ")
	b.WriteString("Below are the current paper and the reviews from this round.\n\n")

	b.WriteString("PAPER (LaTeX source):\n")
	fmt.Fprintf(&b, "Title: %s\n\n", paper.Title)
	b.WriteString(paper.Text)
	b.WriteString("\n\n")

	b.WriteString("REVIEWS:\n")
	for _, r := range reviews {
		if r.Failed {
			continue
		}
		fmt.Fprintf(&b, "## Review by %s\n", r.JudgeName)
		b.WriteString(r.Text)
		b.WriteString("\n\n")
	}

	b.WriteString("INSTRUCTIONS:\n")
	b.WriteString("Write a concrete, prioritized improvement plan for the next revision:\n")
	b.WriteString("1. List the specific changes to make, most important first.\n")
	b.WriteString("2. For each change, name the section or passage it affects and what to do there.\n")
	b.WriteString("3. Address the weaknesses and questions the reviewers raised; note any requests you would push back on, and why.\n")
	b.WriteString("4. Keep the plan actionable. Do not rewrite the paper here.\n\n")
	b.WriteString("IMPROVEMENT PLAN:\n")

	return b.String()
}

// BuildRevisionPrompt asks for the complete revised LaTeX source. The
// response replaces the paper wholesale, so the prompt insists on
// source-only output.
func BuildRevisionPrompt(paper Paper, plan string) string {
	var b strings.Builder

	b.WriteString("You are revising a research paper according to an approved improvement plan.\n\n")

	b.WriteString("CURRENT PAPER (LaTeX source):\n")
	b.WriteString(paper.Text)
	b.WriteString("\n\n")

	b.WriteString("IMPROVEMENT PLAN:\n")
	b.WriteString(plan)
	b.WriteString("\n\n")

	b.WriteString("INSTRUCTIONS:\n")
	b.WriteString("Produce the complete revised paper as LaTeX source, applying the plan. ")
	b.WriteString("Keep the document structure intact and compilable end to end. ")
	b.WriteString("Output only the revised LaTeX source, with no commentary before or after it.\n\n")
	b.WriteString("REVISED PAPER:\n")

	return b.String()
}
