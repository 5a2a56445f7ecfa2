package notify

import (
	"context"
	"net/http"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

// Telegram sends alerts to a fixed chat.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
}

// NewTelegram creates a Telegram notifier. The HTTP client is bounded so a
// wedged Telegram API cannot hold an alert forever.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbot.NewBotAPIWithClient(token, tgbot.APIEndpoint, &http.Client{Timeout: 10 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "create telegram bot")
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

// Alert sends the text to the configured chat.
func (t *Telegram) Alert(_ context.Context, text string) error {
	_, err := t.bot.Send(tgbot.NewMessage(t.chatID, text))
	return errors.Wrap(err, "send telegram alert")
}
