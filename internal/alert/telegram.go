package alert

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSender posts via the Telegram Bot API (spec §6). Alerts below
// confidence 0.5 are suppressed from this channel before dispatch is ever
// attempted (spec §4.8) — enforced by the engine, not here.
type TelegramSender struct {
	Bot    *tgbotapi.BotAPI
	ChatID int64
}

func (s TelegramSender) Send(ctx context.Context, env Envelope) error {
	text := fmt.Sprintf("[%s] %s/%s\n%s\nobserved=%g baseline=%g threshold=%g",
		env.Severity, env.DataSource, env.MetricName, env.Message, env.ObservedValue, env.BaselineValue, env.Threshold)
	msg := tgbotapi.NewMessage(s.ChatID, text)
	_, err := s.Bot.Send(msg)
	return err
}
