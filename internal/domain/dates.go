package domain

import (
	"fmt"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	MonthLayout = "2006-01"
)

// ParseDate parses an ISO calendar day. The result is midnight UTC.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", value)
	}
	return t, nil
}

func ParseMonth(value string) (time.Time, error) {
	t, err := time.Parse(MonthLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q: expected YYYY-MM", value)
	}
	return t, nil
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// MonthOf returns the month key of an ISO date. The date must already be valid.
func MonthOf(date string) string {
	if len(date) < len(MonthLayout) {
		return ""
	}
	return date[:len(MonthLayout)]
}

func MonthKey(year int, month time.Month) string {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Format(MonthLayout)
}

// PrevMonth returns the key of the month before monthKey, rolling the year
// over at January.
func PrevMonth(monthKey string) (string, error) {
	t, err := ParseMonth(monthKey)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, -1, 0).Format(MonthLayout), nil
}

// MonthBounds returns the first and last calendar day of the month.
func MonthBounds(monthKey string) (string, string, error) {
	t, err := ParseMonth(monthKey)
	if err != nil {
		return "", "", err
	}
	return FormatDate(t), FormatDate(t.AddDate(0, 1, -1)), nil
}
