package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDayKey_UsesSeoulCalendar(t *testing.T) {
	// 2026-03-01 16:30 UTC is already 2026-03-02 01:30 in Seoul.
	utc := time.Date(2026, 3, 1, 16, 30, 0, 0, time.UTC)

	day := DayKey(utc)
	assert.Equal(t, "2026-03-02", FormatDayKey(day))
	assert.Equal(t, "2026-03-01", FormatDayKey(PreviousDay(day)))
	assert.Equal(t, time.UTC, day.Location())
}

func TestParseDayKey(t *testing.T) {
	day, err := ParseDayKey("2026-10-19")
	assert.NoError(t, err)
	assert.True(t, day.Equal(time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)))

	_, err = ParseDayKey("19.10.2026")
	assert.Error(t, err)
}

func TestDaysBetween(t *testing.T) {
	a := Date(2026, 1, 30)
	b := Date(2026, 2, 2)
	assert.Equal(t, 3, DaysBetween(a, b))
	assert.True(t, IsSameDay(a, a.Add(23*time.Hour)))
}
