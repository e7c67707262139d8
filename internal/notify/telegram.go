package notify

import (
	"context"
	"fmt"

	"parkingnear/internal/config"
	"parkingnear/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// TelegramSender is the part of *tgbotapi.BotAPI the sink needs.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

func NewTelegramBot(cfg config.TelegramConfig) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = cfg.Debug
	return bot, nil
}

// TelegramSink messages users who linked a telegram chat. Users without
// one are skipped.
type TelegramSink struct {
	bot    TelegramSender
	logger *zerolog.Logger
}

func NewTelegramSink(bot TelegramSender, logger *zerolog.Logger) *TelegramSink {
	return &TelegramSink{bot: bot, logger: logger}
}

func (s *TelegramSink) Send(_ context.Context, user *models.User, n models.Notification) error {
	if user.TelegramChatID == nil {
		s.logger.Debug().Int64("user_id", user.ID).Msg("No telegram chat linked, skipping")
		return nil
	}

	msg := tgbotapi.NewMessage(*user.TelegramChatID, formatTelegram(n))
	msg.ParseMode = models.ParseModeMarkdown
	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message for notification %d: %w", n.ID, err)
	}
	return nil
}

var typeTitles = map[string]string{
	models.NotificationTypeRequest: "🅿️ *Parking request*",
	models.NotificationTypeBill:    "🧾 *Bill*",
	models.NotificationTypePayment: "💳 *Payment*",
}

func formatTelegram(n models.Notification) string {
	title, ok := typeTitles[n.Type]
	if !ok {
		title = "*Notification*"
	}
	return title + "\n" + tgbotapi.EscapeText(models.ParseModeMarkdown, n.Message)
}
