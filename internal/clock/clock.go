// Package clock converts wall-clock instants and "HH:MM" reminder times into
// user-local dates. Callers pass the timezone on every call; nothing here is
// cached process-wide because a user's timezone can change between calls.
package clock

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

const timeOfDayLayout = "15:04"

// Location resolves an IANA timezone name, falling back to UTC when the
// name is empty or unknown.
func Location(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate reports whether tz is a loadable IANA timezone name.
func Validate(tz string) error {
	if tz == "" {
		return fmt.Errorf("timezone is empty")
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("unknown timezone %q: %w", tz, err)
	}
	return nil
}

// Local returns now expressed in the given timezone.
func Local(now time.Time, tz string) time.Time {
	return now.In(Location(tz))
}

// ParseTimeOfDay parses the first five characters of s as HH:MM, so both
// "08:00" and the Postgres TIME rendering "08:00:00" are accepted.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	if len(s) < 5 {
		return 0, 0, fmt.Errorf("invalid time of day %q", s)
	}
	t, err := time.Parse(timeOfDayLayout, s[:5])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

// NormalizeTimeOfDay returns s as a canonical "HH:MM" string.
func NormalizeTimeOfDay(s string) (string, error) {
	h, m, err := ParseTimeOfDay(s)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%02d:%02d", h, m), nil
}

// Combine returns the instant at timeOfDay on day's calendar date, in day's
// location.
func Combine(day time.Time, timeOfDay string) (time.Time, error) {
	h, m, err := ParseTimeOfDay(timeOfDay)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location()), nil
}

// DayBounds returns local midnight of t's date and the following midnight.
func DayBounds(t time.Time) (start, end time.Time) {
	start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}

// ISOWeekday returns 1 for Monday through 7 for Sunday.
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// MinuteOfDay ignores seconds.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// TimeOfDayMinutes parses s and returns its minute of day.
func TimeOfDayMinutes(s string) (int, error) {
	h, m, err := ParseTimeOfDay(s)
	if err != nil {
		return 0, err
	}
	return h*60 + m, nil
}

// FormatTimeOfDay renders t's local clock time as HH:MM.
func FormatTimeOfDay(t time.Time) string {
	return t.Format(timeOfDayLayout)
}

// DaysBetween counts calendar days from a to b, both taken in a's location.
func DaysBetween(a, b time.Time) int {
	as, _ := DayBounds(a)
	bs, _ := DayBounds(b.In(a.Location()))
	ay, am, ad := as.Date()
	by, bm, bd := bs.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}
