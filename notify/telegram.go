// Package notify is the outbound notification transport. The scheduler treats
// it as fire-and-forget: a failed send is logged by the caller and retried
// only when the user's next trigger window opens.
package notify

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender delivers a message to a Telegram chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// TelegramSender sends via the Bot API.
type TelegramSender struct {
	bot *tgbotapi.BotAPI
}

// NewTelegramSender authenticates against the Bot API with the given token.
func NewTelegramSender(token string) (*TelegramSender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &TelegramSender{bot: bot}, nil
}

// Send delivers one plain-text message. The Bot API client has no context
// support; cancellation is bounded by its own HTTP timeout.
func (t *TelegramSender) Send(_ context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := t.bot.Send(msg)
	return err
}

// NopSender drops everything. Used when no bot token is configured.
type NopSender struct{}

func (NopSender) Send(context.Context, int64, string) error { return nil }
