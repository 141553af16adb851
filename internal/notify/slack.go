package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// slackSnippetLimit and slackErrorLimit are the per-kind truncation bounds
// from spec.md §4.6.
const (
	slackSnippetLimit = 500
	slackErrorLimit   = 300
)

// SlackSink posts lifecycle events to a single Slack channel via the
// chat.postMessage API.
type SlackSink struct {
	client    *slack.Client
	channelID string
}

// NewSlackSink builds a SlackSink from a bot token and target channel.
func NewSlackSink(botToken, channelID string) *SlackSink {
	return &SlackSink{client: slack.New(botToken), channelID: channelID}
}

func (s *SlackSink) post(ctx context.Context, text string) error {
	_, _, err := s.client.PostMessageContext(ctx, s.channelID, slack.MsgOptionText(text, false))
	return err
}

// NotifyStart posts a start message.
func (s *SlackSink) NotifyStart(ctx context.Context, issueNumber int, title, repoName string) error {
	return s.post(ctx, fmt.Sprintf("▶️ started %s (%s)", formatTitle(issueNumber, title), repoName))
}

// NotifyComplete posts a completion message with the run duration.
func (s *SlackSink) NotifyComplete(ctx context.Context, issueNumber int, title, repoName, duration string) error {
	return s.post(ctx, fmt.Sprintf("✅ completed %s (%s) in %s", formatTitle(issueNumber, title), repoName, duration))
}

// NotifyNeedsInput posts the truncated last output snippet.
func (s *SlackSink) NotifyNeedsInput(ctx context.Context, issueNumber int, title, repoName, lastOutput string) error {
	return s.post(ctx, fmt.Sprintf("⏸️ needs input %s (%s): %s", formatTitle(issueNumber, title), repoName, truncate(lastOutput, slackSnippetLimit)))
}

// NotifyError posts the truncated error detail.
func (s *SlackSink) NotifyError(ctx context.Context, issueNumber int, title, repoName, detail string) error {
	return s.post(ctx, fmt.Sprintf("❌ failed %s (%s): %s", formatTitle(issueNumber, title), repoName, truncate(detail, slackErrorLimit)))
}
