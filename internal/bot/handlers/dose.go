package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/hray3182/DoseLine/internal/clock"
	"github.com/hray3182/DoseLine/internal/dosing"
	"github.com/hray3182/DoseLine/internal/models"
)

const defaultHistoryDays = 7

const takeDateLayout = "20060102"

// TakeCallbackData encodes the "Taken" button as
// take:<medicationID>:<yyyymmdd>:<HHMM>, day being the user's local date.
func TakeCallbackData(medicationID int64, day time.Time, timeOfDay string) string {
	return fmt.Sprintf("take:%d:%s:%s", medicationID, day.Format(takeDateLayout), strings.ReplaceAll(timeOfDay, ":", ""))
}

// parseTakeData decodes the part after "take:".
func parseTakeData(data string) (medicationID int64, day string, timeOfDay string, err error) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 || len(parts[2]) != 4 {
		return 0, "", "", fmt.Errorf("invalid take data %q", data)
	}
	medicationID, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", "", fmt.Errorf("invalid medication id in %q: %w", data, err)
	}
	if _, err := time.Parse(takeDateLayout, parts[1]); err != nil {
		return 0, "", "", fmt.Errorf("invalid date in %q: %w", data, err)
	}
	timeOfDay, err = clock.NormalizeTimeOfDay(parts[2][:2] + ":" + parts[2][2:])
	if err != nil {
		return 0, "", "", err
	}
	return medicationID, parts[1], timeOfDay, nil
}

// DoseReminderMessage is the reminder sent when a dose is due or overdue.
func DoseReminderMessage(chatID int64, med *models.Medication, next dosing.NextDose) tgbotapi.MessageConfig {
	text := fmt.Sprintf("💊 *%s*\n%s", escape(med.Label()), next.Status)
	if len(next.TodaysTimes) > 1 {
		text += "\nToday: " + strings.Join(next.TodaysTimes, ", ")
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Taken", TakeCallbackData(med.MedicationID, next.Day, next.ReminderTime)),
		),
	)
	return msg
}

// StatusLine renders today's counts on one line.
func StatusLine(status models.AdherenceStatus) string {
	return fmt.Sprintf("Taken %d/%d · missed %d · pending %d",
		status.CompletedToday, status.TotalToday, status.MissedToday, status.PendingToday)
}

// SummaryText is the evening summary.
func SummaryText(status models.AdherenceStatus, localDate string) string {
	text := fmt.Sprintf("📊 *Daily summary* (%s)\n\n", localDate)
	switch {
	case status.TotalToday == 0:
		text += "No doses were scheduled today."
	case status.CompletedToday >= status.TotalToday:
		text += fmt.Sprintf("All %d doses taken. Well done! 💪", status.TotalToday)
	default:
		text += StatusLine(status)
	}
	return text
}

func (h *Handlers) handleToday(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	settings := h.userSettings(ctx, userID)
	status := h.dosing.WithGrace(settings.GraceMinutes).TodaysAdherenceStatus(ctx, userID, h.now(), settings.Timezone)

	if status.TotalToday == 0 && status.CompletedToday == 0 {
		h.sendMessage(msg.Chat.ID, "No doses scheduled today. Add one with /addmed")
		return
	}
	h.sendMessage(msg.Chat.ID, "📋 *Today*\n"+StatusLine(status))
}

func (h *Handlers) handleNext(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	meds, err := h.repos.Medication.ListActive(ctx, userID)
	if err != nil {
		h.logger.Error("Failed to list medications", zap.Int64("user_id", userID), zap.Error(err))
		h.sendMessage(msg.Chat.ID, "Could not load your medications, please try again later")
		return
	}
	if len(meds) == 0 {
		h.sendMessage(msg.Chat.ID, "No medications yet. Add one with /addmed")
		return
	}

	settings := h.userSettings(ctx, userID)
	svc := h.dosing.WithGrace(settings.GraceMinutes)
	now := h.now()

	var sb strings.Builder
	sb.WriteString("⏭ *Next doses*\n\n")
	for _, med := range meds {
		next := svc.NextDoseTime(ctx, userID, med.MedicationID, now, settings.Timezone)
		sb.WriteString(fmt.Sprintf("💊 %s: %s\n", escape(med.Label()), next.Status))
	}
	h.sendMessage(msg.Chat.ID, sb.String())
}

func (h *Handlers) handleHistory(ctx context.Context, msg *tgbotapi.Message) {
	days := defaultHistoryDays
	if arg := strings.TrimSpace(msg.CommandArguments()); arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			h.sendMessage(msg.Chat.ID, "Usage: `/history 14`")
			return
		}
		days = n
	}

	userID := msg.From.ID
	settings := h.userSettings(ctx, userID)
	history, err := h.dosing.AdherenceHistory(ctx, userID, days, h.now(), settings.Timezone)
	if err != nil {
		h.logger.Error("Failed to load adherence history", zap.Int64("user_id", userID), zap.Error(err))
		h.sendMessage(msg.Chat.ID, "Could not load your history, please try again later")
		return
	}
	h.sendMessage(msg.Chat.ID, formatHistory(history))
}

func formatHistory(history []models.DayAdherence) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📈 *Last %d days*\n\n", len(history)))

	expected, taken := 0, 0
	for _, day := range history {
		expected += day.Expected
		taken += day.Taken
		if day.Expected == 0 && day.Taken == 0 && day.Missed == 0 {
			sb.WriteString(fmt.Sprintf("%s  no doses\n", day.Date.Format("Mon 01/02")))
			continue
		}
		line := fmt.Sprintf("%s  %d/%d taken", day.Date.Format("Mon 01/02"), day.Taken, day.Expected)
		if day.Missed > 0 {
			line += fmt.Sprintf(", %d missed", day.Missed)
		}
		if day.Pending > 0 {
			line += fmt.Sprintf(", %d pending", day.Pending)
		}
		if day.Unrecorded > 0 {
			line += fmt.Sprintf(", %d unrecorded", day.Unrecorded)
		}
		sb.WriteString(line + "\n")
	}

	if expected > 0 {
		sb.WriteString(fmt.Sprintf("\nAdherence: %.0f%%", float64(taken)*100/float64(expected)))
	}
	return sb.String()
}

func (h *Handlers) handleTakeCallback(ctx context.Context, callback *tgbotapi.CallbackQuery, data string) {
	userID := callback.From.ID
	chatID := callback.Message.Chat.ID
	messageID := callback.Message.MessageID

	medicationID, day, tod, err := parseTakeData(data)
	if err != nil {
		h.logger.Warn("Invalid take callback", zap.String("data", data), zap.Error(err))
		h.answerCallback(callback.ID, "Invalid button")
		return
	}

	med, err := h.repos.Medication.GetByID(ctx, medicationID, userID)
	if err != nil {
		h.logger.Error("Failed to load medication", zap.Int64("medication_id", medicationID), zap.Error(err))
		h.answerCallback(callback.ID, "Something went wrong, please try again")
		return
	}
	if med == nil {
		h.answerCallback(callback.ID, "This medication no longer exists")
		return
	}

	settings := h.userSettings(ctx, userID)
	svc := h.dosing.WithGrace(settings.GraceMinutes)
	now := h.now()

	// A button from an earlier day must not mark today's dose.
	if day != clock.Local(now, settings.Timezone).Format(takeDateLayout) {
		h.answerCallback(callback.ID, "This reminder has expired")
		return
	}

	if !svc.MarkTaken(ctx, userID, medicationID, tod, "", now, settings.Timezone) {
		h.answerCallback(callback.ID, "Could not save, please try again")
		return
	}
	h.answerCallback(callback.ID, "Recorded ✅")

	status := svc.TodaysAdherenceStatus(ctx, userID, now, settings.Timezone)
	takenAt := clock.FormatTimeOfDay(clock.Local(now, settings.Timezone))
	text := fmt.Sprintf("✅ *%s* (%s) taken at %s\n%s", escape(med.Label()), tod, takenAt, StatusLine(status))
	h.editMessageText(chatID, messageID, text)
}
