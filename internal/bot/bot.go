package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/hray3182/DoseLine/internal/bot/handlers"
	"github.com/hray3182/DoseLine/internal/dosing"
)

type Bot struct {
	api      *tgbotapi.BotAPI
	handlers *handlers.Handlers
	logger   *zap.Logger
}

func New(token string, repos *handlers.Repositories, svc *dosing.Service, logger *zap.Logger, defaultTimezone string) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Bot{
		api:      api,
		handlers: handlers.New(api, repos, svc, logger.Named("handlers"), defaultTimezone),
		logger:   logger,
	}, nil
}

// SetTrigger lets handlers wake the scheduler after a schedule change.
func (b *Bot) SetTrigger(t handlers.Trigger) {
	b.handlers.SetTrigger(t)
}

// Notifier returns a scheduler notifier that sends through this bot.
func (b *Bot) Notifier() *Notifier {
	return NewNotifier(b.api, b.logger)
}

func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("Authorized on account", zap.String("username", b.api.Self.UserName))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update := <-updates:
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Panic while handling update", zap.Int("update_id", update.UpdateID), zap.Any("panic", r))
		}
	}()

	if update.CallbackQuery != nil {
		b.handlers.HandleCallbackQuery(ctx, update.CallbackQuery)
		return
	}

	if update.Message == nil || !update.Message.IsCommand() {
		return
	}
	b.handlers.HandleCommand(ctx, update.Message)
}
