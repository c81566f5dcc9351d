package alert

import (
	"context"
	"errors"
	"testing"

	"booksync/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent []tgbotapi.Chattable
	err  error
}

func (s *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if s.err != nil {
		return tgbotapi.Message{}, s.err
	}
	s.sent = append(s.sent, c)
	return tgbotapi.Message{}, nil
}

func testLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

func TestAlertSendsMessage(t *testing.T) {
	sender := &fakeSender{}
	a := NewTelegramAlerterWithSender(sender, 42, testLogger())

	err := a.Alert(context.Background(), &models.NotificationEvent{
		ID:        "n1",
		Type:      models.EventNewBooking,
		Title:     "New booking",
		Message:   "haircut tomorrow",
		BookingID: "b1",
	})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	msg, ok := sender.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Contains(t, msg.Text, "New booking")
	assert.Contains(t, msg.Text, "Booking: b1")
}

func TestAlertPropagatesSendError(t *testing.T) {
	sender := &fakeSender{err: errors.New("telegram down")}
	a := NewTelegramAlerterWithSender(sender, 42, testLogger())

	err := a.Alert(context.Background(), &models.NotificationEvent{Type: models.EventSyncFailed})
	assert.Error(t, err)
}
