package bot

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/hray3182/DoseLine/internal/bot/handlers"
	"github.com/hray3182/DoseLine/internal/clock"
	"github.com/hray3182/DoseLine/internal/dosing"
	"github.com/hray3182/DoseLine/internal/models"
)

// Notifier sends scheduler messages to private chats, where the chat id is
// the Telegram user id.
type Notifier struct {
	api    handlers.Sender
	logger *zap.Logger
	now    func() time.Time
}

func NewNotifier(api handlers.Sender, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{api: api, logger: logger, now: time.Now}
}

func (n *Notifier) NotifyDose(_ context.Context, userID int64, med *models.Medication, next dosing.NextDose) error {
	if _, err := n.api.Send(handlers.DoseReminderMessage(userID, med, next)); err != nil {
		return fmt.Errorf("send dose reminder: %w", err)
	}
	return nil
}

func (n *Notifier) SendDailySummary(_ context.Context, userID int64, status models.AdherenceStatus, timezone string) error {
	localDate := clock.Local(n.now(), timezone).Format("2006-01-02")
	msg := tgbotapi.NewMessage(userID, handlers.SummaryText(status, localDate))
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("send daily summary: %w", err)
	}
	return nil
}
