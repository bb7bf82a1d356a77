// Package timeutil provides calendar-day utilities for the Progression Engine.
// Streaks are counted in whole calendar days in UTC, so every date that enters
// the engine is normalized with DateOnly before comparison.
// No external dependencies - uses only standard library.
package timeutil

import (
	"time"
)

// Clock abstracts the wall clock so tests can control "today".
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock is a Clock frozen at a specific instant. Used in tests.
type FixedClock struct {
	Instant time.Time
}

// Now returns the frozen instant.
func (c FixedClock) Now() time.Time {
	return c.Instant
}

// DateOnly truncates a time to midnight UTC, discarding the time component.
func DateOnly(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Today returns the current calendar date (midnight UTC) per the given clock.
func Today(clock Clock) time.Time {
	return DateOnly(clock.Now())
}

// DaysBetween returns the number of whole calendar days from a to b.
// Positive when b is after a, negative when b is before a, zero for the
// same calendar day. Time components are discarded before comparison.
func DaysBetween(a, b time.Time) int {
	da := DateOnly(a)
	db := DateOnly(b)
	return int(db.Sub(da).Hours() / 24)
}

// SameDay reports whether two instants fall on the same UTC calendar day.
func SameDay(a, b time.Time) bool {
	return DaysBetween(a, b) == 0
}

// StartOfDay returns midnight UTC of the day containing t.
func StartOfDay(t time.Time) time.Time {
	return DateOnly(t)
}

// EndOfDay returns the last nanosecond of the day containing t, in UTC.
func EndOfDay(t time.Time) time.Time {
	return DateOnly(t).Add(24*time.Hour - time.Nanosecond)
}

// FormatDate formats a time as an ISO calendar date (YYYY-MM-DD).
func FormatDate(t time.Time) string {
	return DateOnly(t).Format("2006-01-02")
}

// ParseDate parses an ISO calendar date (YYYY-MM-DD) as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return DateOnly(t), nil
}
