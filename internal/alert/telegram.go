package alert

import (
	"context"
	"fmt"

	"booksync/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Sender is the subset of the Telegram bot API the alerter needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramAlerter pushes high-priority events to an operator chat.
type TelegramAlerter struct {
	sender Sender
	chatID int64
	logger zerolog.Logger
}

func NewTelegramAlerter(token string, chatID int64, debug bool, logger *zerolog.Logger) (*TelegramAlerter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	bot.Debug = debug
	return NewTelegramAlerterWithSender(bot, chatID, logger), nil
}

// NewTelegramAlerterWithSender allows injecting a fake sender in tests.
func NewTelegramAlerterWithSender(sender Sender, chatID int64, logger *zerolog.Logger) *TelegramAlerter {
	return &TelegramAlerter{
		sender: sender,
		chatID: chatID,
		logger: logger.With().Str("component", "alert").Logger(),
	}
}

func (a *TelegramAlerter) Alert(ctx context.Context, event *models.NotificationEvent) error {
	text := fmt.Sprintf("%s\n%s", event.Title, event.Message)
	if event.BookingID != "" {
		text += fmt.Sprintf("\nBooking: %s", event.BookingID)
	}

	msg := tgbotapi.NewMessage(a.chatID, text)
	if _, err := a.sender.Send(msg); err != nil {
		return fmt.Errorf("send alert: %w", err)
	}

	a.logger.Debug().Str("event_id", event.ID).Str("type", event.Type).Msg("alert sent")
	return nil
}
