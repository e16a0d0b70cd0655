package handlers

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/hray3182/DoseLine/internal/clock"
	"github.com/hray3182/DoseLine/internal/models"
	"github.com/hray3182/DoseLine/internal/rrule"
)

const addMedicationUsage = "Usage: `/addmed <name> <dosage> @ <HH:MM,...> <days>`\n" +
	"e.g. `/addmed Aspirin 100mg @ 08:00,20:00 weekdays`"

var weekdayNames = map[string]int{
	"mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6, "sun": 7,
}

type medicationRequest struct {
	Name     string
	Dosage   string
	Times    []string
	Weekdays []int
}

// parseMedicationArgs parses "<name> [dosage] @ <HH:MM,...> [days]". The
// last word before "@" is the dosage when it starts with a digit.
func parseMedicationArgs(args string) (*medicationRequest, error) {
	left, right, ok := strings.Cut(args, "@")
	if !ok {
		return nil, fmt.Errorf("missing @ before the reminder times")
	}

	words := strings.Fields(left)
	if len(words) == 0 {
		return nil, fmt.Errorf("missing medication name")
	}
	req := &medicationRequest{}
	if last := words[len(words)-1]; len(words) > 1 && unicode.IsDigit(rune(last[0])) {
		req.Dosage = last
		words = words[:len(words)-1]
	}
	req.Name = strings.Join(words, " ")

	fields := strings.Fields(right)
	if len(fields) == 0 {
		return nil, fmt.Errorf("missing reminder times")
	}
	seen := make(map[string]bool)
	for _, t := range strings.Split(fields[0], ",") {
		tod, err := clock.NormalizeTimeOfDay(strings.TrimSpace(t))
		if err != nil || len(strings.TrimSpace(t)) != 5 {
			return nil, fmt.Errorf("invalid time %q, use HH:MM", t)
		}
		if !seen[tod] {
			seen[tod] = true
			req.Times = append(req.Times, tod)
		}
	}
	sort.Strings(req.Times)

	days := "daily"
	if len(fields) > 1 {
		days = strings.ToLower(strings.Join(fields[1:], ""))
	}
	weekdays, err := parseWeekdays(days)
	if err != nil {
		return nil, err
	}
	req.Weekdays = weekdays
	return req, nil
}

func parseWeekdays(s string) ([]int, error) {
	switch s {
	case "daily", "everyday":
		return []int{1, 2, 3, 4, 5, 6, 7}, nil
	case "weekdays":
		return []int{1, 2, 3, 4, 5}, nil
	case "weekends":
		return []int{6, 7}, nil
	}

	seen := make(map[int]bool)
	var days []int
	for _, name := range strings.Split(s, ",") {
		d, ok := weekdayNames[strings.TrimSpace(name)]
		if !ok {
			return nil, fmt.Errorf("unknown day %q", name)
		}
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	sort.Ints(days)
	return days, nil
}

func (h *Handlers) handleAddMedication(ctx context.Context, msg *tgbotapi.Message) {
	req, err := parseMedicationArgs(msg.CommandArguments())
	if err != nil {
		h.sendMessage(msg.Chat.ID, fmt.Sprintf("%s\n\n%s", escape(err.Error()), addMedicationUsage))
		return
	}

	userID := msg.From.ID
	med := &models.Medication{UserID: userID, Name: req.Name, Dosage: req.Dosage, Active: true}
	if err := h.repos.Medication.Create(ctx, med); err != nil {
		h.logger.Error("Failed to create medication", zap.Int64("user_id", userID), zap.Error(err))
		h.sendMessage(msg.Chat.ID, "Could not save the medication, please try again later")
		return
	}

	for _, tod := range req.Times {
		reminder := &models.Reminder{
			UserID:         userID,
			MedicationID:   med.MedicationID,
			TimeOfDay:      tod,
			ActiveWeekdays: req.Weekdays,
			IsActive:       true,
		}
		if err := h.repos.Reminder.Create(ctx, reminder); err != nil {
			h.logger.Error("Failed to create reminder",
				zap.Int64("medication_id", med.MedicationID),
				zap.String("time_of_day", tod),
				zap.Error(err))
			h.sendMessage(msg.Chat.ID, "Could not save all reminders, check them with /meds")
			return
		}
	}

	h.notifyScheduler()
	h.sendMessage(msg.Chat.ID, fmt.Sprintf("💊 Added *%s* (#%d)\n🔔 %s",
		escape(med.Label()), med.MedicationID, describeSchedule(req.Times, req.Weekdays)))
}

func describeSchedule(times []string, weekdays []int) string {
	var parts []string
	for _, tod := range times {
		parts = append(parts, rrule.HumanReadable(tod, weekdays))
	}
	return strings.Join(parts, "\n🔔 ")
}

func (h *Handlers) handleMedications(ctx context.Context, msg *tgbotapi.Message) {
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

	var sb strings.Builder
	sb.WriteString("💊 *Medications*\n\n")
	for _, med := range meds {
		sb.WriteString(fmt.Sprintf("*%d.* %s\n", med.MedicationID, escape(med.Label())))

		reminders, err := h.repos.Reminder.GetByMedication(ctx, med.MedicationID, userID)
		if err != nil {
			h.logger.Warn("Failed to load reminders", zap.Int64("medication_id", med.MedicationID), zap.Error(err))
			continue
		}
		active := 0
		for _, r := range reminders {
			if !r.IsActive {
				continue
			}
			active++
			sb.WriteString(fmt.Sprintf("   🔔 %s\n", rrule.HumanReadable(r.TimeOfDay, r.ActiveWeekdays)))
		}
		if active == 0 {
			sb.WriteString("   no active reminders\n")
		}
	}
	h.sendMessage(msg.Chat.ID, sb.String())
}

func (h *Handlers) handleStopMedication(ctx context.Context, msg *tgbotapi.Message) {
	medicationID, err := strconv.ParseInt(strings.TrimSpace(msg.CommandArguments()), 10, 64)
	if err != nil {
		h.sendMessage(msg.Chat.ID, "Usage: `/stopmed <id>`, ids are listed by /meds")
		return
	}

	userID := msg.From.ID
	med, err := h.repos.Medication.GetByID(ctx, medicationID, userID)
	if err != nil {
		h.logger.Error("Failed to load medication", zap.Int64("medication_id", medicationID), zap.Error(err))
		h.sendMessage(msg.Chat.ID, "Could not load the medication, please try again later")
		return
	}
	if med == nil || !med.Active {
		h.sendMessage(msg.Chat.ID, fmt.Sprintf("No active medication #%d", medicationID))
		return
	}

	if err := h.repos.Medication.SetActive(ctx, medicationID, userID, false); err != nil {
		h.logger.Error("Failed to stop medication", zap.Int64("medication_id", medicationID), zap.Error(err))
		h.sendMessage(msg.Chat.ID, "Could not stop the medication, please try again later")
		return
	}
	h.sendMessage(msg.Chat.ID, fmt.Sprintf("⏹ Stopped *%s*", escape(med.Label())))
}
