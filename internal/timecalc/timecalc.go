package timecalc

import (
	"fmt"
	"time"
)

// StartOfDay returns 00:00:00 of the same day.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Midnight returns the start of the next day (midnight) in the same location.
func Midnight(t time.Time) time.Time {
	next := t.AddDate(0, 0, 1)
	return time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, t.Location())
}

// AtHour returns the same day with the clock set to hour:00:00.
func AtHour(t time.Time, hour int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, t.Location())
}

// SameDay reports whether two times fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DayKey returns the canonical yyyy-mm-dd key for the day containing t.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// DaysBetween returns the number of calendar-day boundaries crossed between
// from and to (negative if to is before from).
func DaysBetween(from, to time.Time) int {
	return int(StartOfDay(to).Sub(StartOfDay(from)).Hours() / 24)
}

// RoundToIncrement rounds t to the nearest multiple of the given increment
// (e.g. 5 minutes), so that sub-increment jitter maps to the same instant.
func RoundToIncrement(t time.Time, increment time.Duration) time.Time {
	return t.Round(increment)
}

// FormatMinutes formats a minute count as a human-readable string like
// "1h 40m" or "45m".
func FormatMinutes(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	h := minutes / 60
	m := minutes % 60
	if h > 0 && m > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	if h > 0 {
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dm", m)
}
