package core

import (
	"math"
	"strings"
	"time"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// CleanStringPtr is CleanString for optional values. Blank values become nil.
func CleanStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	cleaned := CleanString(*s)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}

// Round1 rounds v to one decimal.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// DateLayout is the layout of calendar dates exchanged with clients.
const DateLayout = "2006-01-02"

// ParseDate parses a calendar date (YYYY-MM-DD) as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, CleanString(s), time.UTC)
}

// StartOfDay truncates t to midnight UTC of its calendar day.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NowFunc returns the current time. Overridden in tests.
var NowFunc = func() time.Time { return time.Now().UTC() }
