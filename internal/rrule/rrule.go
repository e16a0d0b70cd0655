package rrule

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/hray3182/DoseLine/internal/clock"
	"github.com/hray3182/DoseLine/internal/models"
)

// isoWeekdays maps 1=Monday .. 7=Sunday onto rrule weekdays
var isoWeekdays = map[int]rrule.Weekday{
	1: rrule.MO,
	2: rrule.TU,
	3: rrule.WE,
	4: rrule.TH,
	5: rrule.FR,
	6: rrule.SA,
	7: rrule.SU,
}

var dayCodes = map[int]string{
	1: "MO", 2: "TU", 3: "WE", 4: "TH", 5: "FR", 6: "SA", 7: "SU",
}

var dayNames = map[int]string{
	1: "Mon", 2: "Tue", 3: "Wed", 4: "Thu", 5: "Fri", 6: "Sat", 7: "Sun",
}

// normalizeWeekdays drops out-of-range values and duplicates and sorts the rest
func normalizeWeekdays(days []int) []int {
	seen := make(map[int]bool, len(days))
	var out []int
	for _, d := range days {
		if d < 1 || d > 7 || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}

// WeeklyRule builds a weekly rule firing at timeOfDay on the given ISO
// weekdays. The rule starts on anchor's date and generates times in anchor's
// location.
func WeeklyRule(timeOfDay string, weekdays []int, anchor time.Time) (*rrule.RRule, error) {
	days := normalizeWeekdays(weekdays)
	if len(days) == 0 {
		return nil, fmt.Errorf("reminder has no active weekdays")
	}

	dayStart, _ := clock.DayBounds(anchor)
	dtstart, err := clock.Combine(dayStart, timeOfDay)
	if err != nil {
		return nil, err
	}

	byWeekday := make([]rrule.Weekday, len(days))
	for i, d := range days {
		byWeekday[i] = isoWeekdays[d]
	}

	return rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Interval:  1,
		Dtstart:   dtstart,
		Byweekday: byWeekday,
	})
}

// NextOccurrence returns the first firing of the reminder at or after the
// given instant, in after's location. Returns nil if the reminder never fires.
func NextOccurrence(reminder *models.Reminder, after time.Time) (*time.Time, error) {
	if !reminder.IsActive {
		return nil, nil
	}
	rule, err := WeeklyRule(reminder.TimeOfDay, reminder.ActiveWeekdays, after)
	if err != nil {
		return nil, err
	}

	next := rule.After(after, true)
	if next.IsZero() {
		return nil, nil
	}
	return &next, nil
}

// String renders the RFC 5545 form of a weekly reminder
func String(timeOfDay string, weekdays []int) string {
	days := normalizeWeekdays(weekdays)
	codes := make([]string, len(days))
	for i, d := range days {
		codes[i] = dayCodes[d]
	}

	parts := []string{"FREQ=WEEKLY"}
	if len(codes) > 0 {
		parts = append(parts, "BYDAY="+strings.Join(codes, ","))
	}
	if h, m, err := clock.ParseTimeOfDay(timeOfDay); err == nil {
		parts = append(parts, fmt.Sprintf("BYHOUR=%d", h), fmt.Sprintf("BYMINUTE=%d", m))
	}
	return strings.Join(parts, ";")
}

// HumanReadable describes a weekly reminder, e.g. "Every day at 08:00" or
// "Mon, Wed, Fri at 20:30".
func HumanReadable(timeOfDay string, weekdays []int) string {
	days := normalizeWeekdays(weekdays)
	at := timeOfDay
	if norm, err := clock.NormalizeTimeOfDay(timeOfDay); err == nil {
		at = norm
	}

	switch {
	case len(days) == 0:
		return "Never"
	case len(days) == 7:
		return "Every day at " + at
	case len(days) == 5 && days[0] == 1 && days[4] == 5:
		return "Weekdays at " + at
	case len(days) == 2 && days[0] == 6 && days[1] == 7:
		return "Weekends at " + at
	}

	names := make([]string, len(days))
	for i, d := range days {
		names[i] = dayNames[d]
	}
	return strings.Join(names, ", ") + " at " + at
}
