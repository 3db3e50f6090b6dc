// Package timeutil provides timezone utilities for the Asia/Seoul calendar.
// Daily rankings and score rows are keyed by the Seoul calendar day, no
// matter where the server runs.
package timeutil

import (
	"time"
)

// SeoulTZ is the Korea Standard Time zone (UTC+9, no DST).
var SeoulTZ = time.FixedZone("Asia/Seoul", 9*60*60)

// Formats used across the API.
const (
	FormatDate     = "2006-01-02"
	FormatDateTime = "2006-01-02 15:04"
)

// Now returns the current time in Seoul timezone.
func Now() time.Time {
	return time.Now().In(SeoulTZ)
}

// ToSeoul converts a time to Seoul timezone.
func ToSeoul(t time.Time) time.Time {
	return t.In(SeoulTZ)
}

// Date creates a time in Seoul timezone with the given date.
func Date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, SeoulTZ)
}

// StartOfDay returns the beginning of the Seoul day containing t.
func StartOfDay(t time.Time) time.Time {
	s := t.In(SeoulTZ)
	return time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, SeoulTZ)
}

// DayKey returns the Seoul calendar day of t as a UTC midnight value.
// This is the representation stored in DATE columns and used as map keys.
func DayKey(t time.Time) time.Time {
	s := t.In(SeoulTZ)
	return time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, time.UTC)
}

// PreviousDay returns the day key before the given day key.
func PreviousDay(day time.Time) time.Time {
	return DayKey(day).AddDate(0, 0, -1)
}

// FormatDateStr formats t as a Seoul calendar date.
func FormatDateStr(t time.Time) string {
	return t.In(SeoulTZ).Format(FormatDate)
}

// FormatDayKey formats a day key produced by DayKey.
func FormatDayKey(day time.Time) string {
	return day.UTC().Format(FormatDate)
}

// ParseDayKey parses "2006-01-02" into a day key.
func ParseDayKey(value string) (time.Time, error) {
	return time.ParseInLocation(FormatDate, value, time.UTC)
}

// IsSameDay reports whether both times fall on the same Seoul day.
func IsSameDay(t1, t2 time.Time) bool {
	return DayKey(t1).Equal(DayKey(t2))
}

// DaysBetween returns the number of Seoul days from t1 to t2.
func DaysBetween(t1, t2 time.Time) int {
	return int(DayKey(t2).Sub(DayKey(t1)).Hours() / 24)
}
