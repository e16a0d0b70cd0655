package handlers

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/hray3182/DoseLine/internal/clock"
	"github.com/hray3182/DoseLine/internal/models"
)

var (
	summaryTimes    = []string{"18:00", "19:00", "20:00", "21:00", "22:00", "23:00"}
	quietStartTimes = []string{"20:00", "21:00", "22:00", "23:00", "00:00", "01:00"}
	quietEndTimes   = []string{"05:00", "06:00", "07:00", "08:00", "09:00", "10:00"}
)

func (h *Handlers) handleTimezone(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	tz := strings.TrimSpace(msg.CommandArguments())
	if tz == "" {
		settings := h.userSettings(ctx, userID)
		h.sendMessage(msg.Chat.ID, fmt.Sprintf("🌍 Your timezone is %s\nChange it with `/timezone Europe/Berlin`", escape(settings.Timezone)))
		return
	}

	if err := clock.Validate(tz); err != nil {
		h.sendMessage(msg.Chat.ID, fmt.Sprintf("Unknown timezone %s, use an IANA name such as `Asia/Taipei`", escape(tz)))
		return
	}
	// Row must exist before the update.
	h.userSettings(ctx, userID)
	if err := h.repos.Settings.SetTimezone(ctx, userID, tz); err != nil {
		h.logger.Error("Failed to set timezone", zap.Int64("user_id", userID), zap.Error(err))
		h.sendMessage(msg.Chat.ID, "Could not save your timezone, please try again later")
		return
	}

	h.notifyScheduler()
	local := clock.Local(h.now(), tz)
	h.sendMessage(msg.Chat.ID, fmt.Sprintf("🌍 Timezone set to %s (local time %s)", escape(tz), clock.FormatTimeOfDay(local)))
}

// handleSettings shows the settings menu
func (h *Handlers) handleSettings(ctx context.Context, msg *tgbotapi.Message) {
	settings, err := h.repos.Settings.GetOrCreate(ctx, msg.From.ID, h.defaultTimezone)
	if err != nil {
		h.logger.Error("Failed to get user settings", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		h.sendMessage(msg.Chat.ID, "Could not load your settings, please try again later")
		return
	}

	reply := tgbotapi.NewMessage(msg.Chat.ID, settingsText(settings))
	reply.ParseMode = tgbotapi.ModeMarkdown
	reply.ReplyMarkup = settingsKeyboard(settings)
	if _, err := h.api.Send(reply); err != nil {
		h.logger.Warn("Failed to send settings menu", zap.Error(err))
	}
}

// handleSettingsCallback handles settings:<section>[:<action>[:<HHMM>]]
func (h *Handlers) handleSettingsCallback(ctx context.Context, callback *tgbotapi.CallbackQuery, parts []string) {
	if len(parts) == 0 {
		return
	}

	userID := callback.From.ID
	chatID := callback.Message.Chat.ID
	messageID := callback.Message.MessageID

	if parts[0] == "close" {
		h.deleteMessage(chatID, messageID)
		return
	}

	settings, err := h.repos.Settings.GetOrCreate(ctx, userID, h.defaultTimezone)
	if err != nil {
		h.logger.Error("Failed to get user settings", zap.Int64("user_id", userID), zap.Error(err))
		return
	}

	arg := func(i int) string {
		if len(parts) > i {
			return parts[i]
		}
		return ""
	}

	changed := false
	switch parts[0] {
	case "main":
	case "notify":
		settings.NotificationsEnabled = !settings.NotificationsEnabled
		changed = true
	case "summary":
		switch arg(1) {
		case "toggle":
			settings.DailySummaryEnabled = !settings.DailySummaryEnabled
			changed = true
		case "time":
			if tod, ok := pickedTime(arg(2)); ok {
				settings.DailySummaryTime = tod
				changed = true
			} else {
				h.editMessageWithKeyboard(chatID, messageID, "📊 *Send the daily summary at*", timePicker("settings:summary:time", summaryTimes))
				return
			}
		}
	case "quiet":
		switch arg(1) {
		case "start":
			if tod, ok := pickedTime(arg(2)); ok {
				settings.QuietStart = tod
				if settings.QuietEnd == "" {
					settings.QuietEnd = "06:00"
				}
				changed = true
			} else {
				h.editMessageWithKeyboard(chatID, messageID, "🔕 *Quiet hours start at*", timePicker("settings:quiet:start", quietStartTimes))
				return
			}
		case "end":
			if tod, ok := pickedTime(arg(2)); ok {
				settings.QuietEnd = tod
				if settings.QuietStart == "" {
					settings.QuietStart = "23:00"
				}
				changed = true
			} else {
				h.editMessageWithKeyboard(chatID, messageID, "🔕 *Quiet hours end at*", timePicker("settings:quiet:end", quietEndTimes))
				return
			}
		case "disable":
			settings.QuietStart = ""
			settings.QuietEnd = ""
			changed = true
		}
	default:
		return
	}

	if changed {
		if err := h.repos.Settings.Update(ctx, settings); err != nil {
			h.logger.Error("Failed to update settings", zap.Int64("user_id", userID), zap.Error(err))
			return
		}
	}
	h.editMessageWithKeyboard(chatID, messageID, settingsText(settings), settingsKeyboard(settings))
}

func onOff(enabled bool) string {
	if enabled {
		return "✅ on"
	}
	return "❌ off"
}

func settingsText(s *models.UserSettings) string {
	quiet := "off"
	if s.QuietStart != "" && s.QuietEnd != "" {
		quiet = s.QuietStart + " - " + s.QuietEnd
	}
	return fmt.Sprintf("⚙️ *Settings*\n\n🌍 Timezone: %s\n🔔 Dose reminders: %s\n📊 Daily summary: %s (%s)\n🔕 Quiet hours: %s",
		escape(s.Timezone), onOff(s.NotificationsEnabled), onOff(s.DailySummaryEnabled), s.DailySummaryTime, quiet)
}

func settingsKeyboard(s *models.UserSettings) tgbotapi.InlineKeyboardMarkup {
	notifyLabel := "🔔 Turn reminders off"
	if !s.NotificationsEnabled {
		notifyLabel = "🔔 Turn reminders on"
	}
	summaryLabel := "📊 Turn summary off"
	if !s.DailySummaryEnabled {
		summaryLabel = "📊 Turn summary on"
	}

	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(notifyLabel, "settings:notify"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(summaryLabel, "settings:summary:toggle"),
			tgbotapi.NewInlineKeyboardButtonData("⏰ Summary time", "settings:summary:time"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔕 Start", "settings:quiet:start"),
			tgbotapi.NewInlineKeyboardButtonData("🔕 End", "settings:quiet:end"),
			tgbotapi.NewInlineKeyboardButtonData("🔕 Off", "settings:quiet:disable"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Close", "settings:close"),
		),
	)
}

// timePicker lays out times three per row; callback data is prefix:HHMM.
func timePicker(prefix string, times []string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, tod := range times {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(tod, prefix+":"+strings.ReplaceAll(tod, ":", "")))
		if len(row) == 3 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", "settings:main"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// pickedTime decodes the HHMM suffix of a picker button.
func pickedTime(hhmm string) (string, bool) {
	if len(hhmm) != 4 {
		return "", false
	}
	tod, err := clock.NormalizeTimeOfDay(hhmm[:2] + ":" + hhmm[2:])
	if err != nil {
		return "", false
	}
	return tod, true
}

func (h *Handlers) editMessageWithKeyboard(chatID int64, messageID int, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, keyboard)
	edit.ParseMode = tgbotapi.ModeMarkdown
	if _, err := h.api.Send(edit); err != nil {
		h.logger.Warn("Failed to edit message with keyboard", zap.Error(err))
	}
}

func (h *Handlers) deleteMessage(chatID int64, messageID int) {
	if _, err := h.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		h.logger.Warn("Failed to delete message", zap.Error(err))
	}
}
