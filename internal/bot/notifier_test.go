package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hray3182/DoseLine/internal/dosing"
	"github.com/hray3182/DoseLine/internal/models"
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, f.err
}

func TestNotifyDose(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, nil)
	med := &models.Medication{MedicationID: 5, Name: "Aspirin"}

	err := n.NotifyDose(context.Background(), 42, med, dosing.NextDose{Status: "Due at 08:00", State: dosing.StateDue, ReminderTime: "08:00"})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(42), sender.sent[0].ChatID)
	assert.Equal(t, "💊 *Aspirin*\nDue at 08:00", sender.sent[0].Text)
}

func TestSendDailySummary_UsesLocalDate(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, nil)
	n.now = func() time.Time { return time.Date(2026, 10, 18, 23, 30, 0, 0, time.UTC) }

	status := models.AdherenceStatus{TotalToday: 2, CompletedToday: 1, MissedToday: 1}
	require.NoError(t, n.SendDailySummary(context.Background(), 42, status, "Asia/Taipei"))
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Text, "(2026-10-19)")
	assert.Contains(t, sender.sent[0].Text, "Taken 1/2 · missed 1 · pending 0")
}

func TestNotifier_SendError(t *testing.T) {
	n := NewNotifier(&fakeSender{err: errors.New("blocked by user")}, nil)
	err := n.NotifyDose(context.Background(), 42, &models.Medication{Name: "Aspirin"}, dosing.NextDose{ReminderTime: "08:00"})
	assert.ErrorContains(t, err, "blocked by user")
}
