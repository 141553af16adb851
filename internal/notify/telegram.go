package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// telegramLimit is the per-message truncation bound from spec.md §4.6.
const telegramLimit = 4000

// TelegramSink posts lifecycle events to a single chat via the Telegram
// Bot API.
type TelegramSink struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramSink builds a TelegramSink from a bot token and target chat.
func NewTelegramSink(botToken string, chatID int64) (*TelegramSink, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("notify: telegram bot init: %w", err)
	}
	return &TelegramSink{bot: bot, chatID: chatID}, nil
}

func (s *TelegramSink) send(text string) error {
	msg := tgbotapi.NewMessage(s.chatID, truncate(text, telegramLimit))
	_, err := s.bot.Send(msg)
	return err
}

// NotifyStart sends a start message. ctx is accepted to satisfy Sink; the
// underlying bot API call is synchronous and does not take a context.
func (s *TelegramSink) NotifyStart(ctx context.Context, issueNumber int, title, repoName string) error {
	_ = ctx
	return s.send(fmt.Sprintf("Started %s (%s)", formatTitle(issueNumber, title), repoName))
}

// NotifyComplete sends a completion message with the run duration.
func (s *TelegramSink) NotifyComplete(ctx context.Context, issueNumber int, title, repoName, duration string) error {
	_ = ctx
	return s.send(fmt.Sprintf("Completed %s (%s) in %s", formatTitle(issueNumber, title), repoName, duration))
}

// NotifyNeedsInput sends the last output.
func (s *TelegramSink) NotifyNeedsInput(ctx context.Context, issueNumber int, title, repoName, lastOutput string) error {
	_ = ctx
	return s.send(fmt.Sprintf("Needs input %s (%s): %s", formatTitle(issueNumber, title), repoName, lastOutput))
}

// NotifyError sends the error detail.
func (s *TelegramSink) NotifyError(ctx context.Context, issueNumber int, title, repoName, detail string) error {
	_ = ctx
	return s.send(fmt.Sprintf("Failed %s (%s): %s", formatTitle(issueNumber, title), repoName, detail))
}
