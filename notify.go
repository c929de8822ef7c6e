package main

import (
	"fmt"
	"log"
	"strings"

	"github.com/slack-go/slack"
)

// Notifier posts completion messages to a Slack channel. A nil Notifier
// is valid and drops every message, so callers never need to check
// whether Slack is configured.
type Notifier struct {
	api     *slack.Client
	channel string
}

// NewNotifier returns a Notifier for the configured channel, or nil when
// slack.token / slack.channel are not both set.
func NewNotifier(cfg Config) *Notifier {
	if cfg.Slack.Token == "" || cfg.Slack.Channel == "" {
		return nil
	}
	api := slack.New(cfg.Slack.Token, slack.OptionHTTPClient(externalHTTPClient))
	return &Notifier{api: api, channel: cfg.Slack.Channel}
}

// Post sends a plain text message. Failures are logged, never fatal.
func (n *Notifier) Post(text string) {
	if n == nil {
		return
	}
	_, _, err := n.api.PostMessage(n.channel, slack.MsgOptionText(text, false))
	if err != nil {
		log.Printf("slack post error: %v", err)
	}
}

// PostRunComplete posts the standard completion notice for one paper.
func (n *Notifier) PostRunComplete(paper Paper, reviews []Review, outputDir string) {
	if n == nil {
		return
	}
	failed := FailedJudges(reviews)
	avg := AverageScores(reviews)

	var b strings.Builder
	fmt.Fprintf(&b, "Review complete: %s\n", paper.Title)
	fmt.Fprintf(&b, "Judges: %d", len(reviews))
	if len(failed) > 0 {
		fmt.Fprintf(&b, " (%d failed: %s)", len(failed), strings.Join(failed, ", "))
	}
	b.WriteString("\n")
	if avg.Overall > 0 {
		fmt.Fprintf(&b, "Average overall: %.1f/6\n", avg.Overall)
	}
	fmt.Fprintf(&b, "Output: %s", outputDir)
	n.Post(b.String())
}
