package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the layout of every date stored in analysis documents.
const DateLayout = "2006-01-02"

var monthAbbrev = [12]string{"ENE", "FEB", "MAR", "ABR", "MAY", "JUN", "JUL", "AGO", "SEP", "OCT", "NOV", "DIC"}

// MonthKey formats t as "ENE-2025".
func MonthKey(t time.Time) string {
	return fmt.Sprintf("%s-%d", monthAbbrev[t.Month()-1], t.Year())
}

// ParseMonthKey returns the first day of the month named by key.
func ParseMonthKey(key string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(key), "-")
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("invalid month key %q", key)
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month key %q: %w", key, err)
	}
	abbrev := strings.ToUpper(parts[0])
	for i, m := range monthAbbrev {
		if m == abbrev {
			return time.Date(year, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid month key %q: unknown month %s", key, parts[0])
}

// ParseDate parses a document date. Timestamps with a time part are
// accepted and truncated to the day.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate formats t with DateLayout.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MonthBounds returns the first and last day of the month containing t.
func MonthBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, -1)
}

// DaysBetween is the number of whole days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}
