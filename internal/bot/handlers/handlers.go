package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/hray3182/DoseLine/internal/dosing"
	"github.com/hray3182/DoseLine/internal/models"
)

// Sender is the part of *tgbotapi.BotAPI the handlers use.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type UserStore interface {
	GetOrCreate(ctx context.Context, userID int64, userName string) (*models.User, error)
}

type SettingsStore interface {
	GetOrCreate(ctx context.Context, userID int64, defaultTimezone string) (*models.UserSettings, error)
	Update(ctx context.Context, settings *models.UserSettings) error
	SetTimezone(ctx context.Context, userID int64, timezone string) error
}

type MedicationStore interface {
	Create(ctx context.Context, med *models.Medication) error
	GetByID(ctx context.Context, medicationID, userID int64) (*models.Medication, error)
	ListActive(ctx context.Context, userID int64) ([]*models.Medication, error)
	SetActive(ctx context.Context, medicationID, userID int64, active bool) error
}

type ReminderStore interface {
	Create(ctx context.Context, reminder *models.Reminder) error
	GetByMedication(ctx context.Context, medicationID, userID int64) ([]*models.Reminder, error)
}

type Repositories struct {
	User       UserStore
	Settings   SettingsStore
	Medication MedicationStore
	Reminder   ReminderStore
}

// Trigger asks the scheduler for an immediate check.
type Trigger interface {
	Notify()
}

type Handlers struct {
	api             Sender
	repos           *Repositories
	dosing          *dosing.Service
	trigger         Trigger
	logger          *zap.Logger
	defaultTimezone string
	now             func() time.Time
}

func New(api Sender, repos *Repositories, svc *dosing.Service, logger *zap.Logger, defaultTimezone string) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		api:             api,
		repos:           repos,
		dosing:          svc,
		logger:          logger,
		defaultTimezone: defaultTimezone,
		now:             time.Now,
	}
}

// SetTrigger wires the scheduler once it exists.
func (h *Handlers) SetTrigger(t Trigger) {
	h.trigger = t
}

func (h *Handlers) notifyScheduler() {
	if h.trigger != nil {
		h.trigger.Notify()
	}
}

func (h *Handlers) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	// Ensure user exists
	if _, err := h.repos.User.GetOrCreate(ctx, msg.From.ID, msg.From.UserName); err != nil {
		h.logger.Error("Failed to get/create user", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		return
	}

	switch msg.Command() {
	case "start":
		h.handleStart(ctx, msg)
	case "help":
		h.handleHelp(ctx, msg)
	case "today":
		h.handleToday(ctx, msg)
	case "next":
		h.handleNext(ctx, msg)
	case "history":
		h.handleHistory(ctx, msg)
	case "addmed":
		h.handleAddMedication(ctx, msg)
	case "meds":
		h.handleMedications(ctx, msg)
	case "stopmed":
		h.handleStopMedication(ctx, msg)
	case "timezone":
		h.handleTimezone(ctx, msg)
	case "settings":
		h.handleSettings(ctx, msg)
	default:
		h.sendMessage(msg.Chat.ID, "Unknown command, see /help")
	}
}

func (h *Handlers) HandleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	if callback.Message == nil {
		h.answerCallback(callback.ID, "")
		return
	}

	action, rest, _ := strings.Cut(callback.Data, ":")
	switch action {
	case "take":
		h.handleTakeCallback(ctx, callback, rest)
	case "settings":
		h.answerCallback(callback.ID, "")
		h.handleSettingsCallback(ctx, callback, strings.Split(rest, ":"))
	default:
		h.answerCallback(callback.ID, "")
	}
}

// userSettings loads settings and tolerates failure by falling back to the
// default timezone.
func (h *Handlers) userSettings(ctx context.Context, userID int64) *models.UserSettings {
	settings, err := h.repos.Settings.GetOrCreate(ctx, userID, h.defaultTimezone)
	if err != nil {
		h.logger.Warn("Failed to load user settings", zap.Int64("user_id", userID), zap.Error(err))
		return models.NewDefaultUserSettings(userID, h.defaultTimezone)
	}
	return settings
}

func (h *Handlers) answerCallback(callbackID, text string) {
	if _, err := h.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		h.logger.Warn("Failed to answer callback", zap.Error(err))
	}
}

func (h *Handlers) editMessageText(chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	if _, err := h.api.Send(edit); err != nil {
		h.logger.Warn("Failed to edit message", zap.Error(err))
	}
}

func (h *Handlers) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := h.api.Send(msg); err != nil {
		h.logger.Warn("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

func (h *Handlers) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	text := fmt.Sprintf("👋 Hi %s!\n\n"+
		"I'm DoseLine. I remind you when a dose is due and keep track of what you took.\n\n"+
		"Add a medication with its reminder times:\n"+
		"`/addmed Aspirin 100mg @ 08:00,20:00`\n\n"+
		"When a reminder arrives, press ✅ Taken. Doses left unanswered for a while are recorded as missed.\n\n"+
		"Use /timezone to set your timezone and /help for all commands.",
		escape(msg.From.FirstName))
	h.sendMessage(msg.Chat.ID, text)
}

func (h *Handlers) handleHelp(ctx context.Context, msg *tgbotapi.Message) {
	text := "📖 *Commands*\n\n" +
		"*Doses*\n" +
		"/today - today's taken, missed and pending doses\n" +
		"/next - next dose per medication\n" +
		"`/history 14` - adherence for the last days (default 7)\n\n" +
		"*Medications*\n" +
		"`/addmed <name> <dosage> @ <HH:MM,...> <days>`\n" +
		"dosage and days are optional, days is daily, weekdays, weekends or e.g. mon,wed,fri\n" +
		"/meds - list medications and reminders\n" +
		"`/stopmed <id>` - stop a medication\n\n" +
		"*Settings*\n" +
		"`/timezone Europe/Berlin` - set your timezone\n" +
		"/settings - reminders, daily summary and quiet hours"
	h.sendMessage(msg.Chat.ID, text)
}
