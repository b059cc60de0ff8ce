package utils

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const Day = 24 * time.Hour

var swedishMonths = [...]string{
	"januari", "februari", "mars", "april", "maj", "juni",
	"juli", "augusti", "september", "oktober", "november", "december",
}

// dateLayouts are the forms the frontend and legacy documents use for dates.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	"Mon Jan 02 2006 15:04:05 GMT-0700",
}

// ParseDate accepts the date strings clients send. A bare date is midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	// Drop the "(Central European Standard Time)" suffix of JS Date.toString.
	if i := strings.Index(s, " ("); i > 0 {
		s = s[:i]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// FormatShortSv renders a date the way sv-SE short dates look: 2025-03-14.
func FormatShortSv(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// FormatLongSv renders a date as sv-SE long dates look: 14 mars 2025.
func FormatLongSv(t time.Time, loc *time.Location) string {
	t = t.In(loc)
	return fmt.Sprintf("%d %s %d", t.Day(), swedishMonths[t.Month()-1], t.Year())
}

// ShortSvOrRaw formats a client date string, returning it unchanged if it does not parse.
func ShortSvOrRaw(s string, loc *time.Location) string {
	t, err := ParseDate(s)
	if err != nil {
		return s
	}
	return FormatShortSv(t, loc)
}

// DaysToDuration converts a possibly fractional day count.
func DaysToDuration(days float64) time.Duration {
	return time.Duration(days * float64(Day))
}

// TrialEnd is the instant the trial that started at createdAt runs out.
func TrialEnd(createdAt time.Time, trialDays float64) time.Time {
	return createdAt.Add(DaysToDuration(trialDays))
}

// TrialDaysRemaining is the whole number of days left, rounded up.
func TrialDaysRemaining(createdAt time.Time, trialDays float64, now time.Time) int {
	return int(math.Ceil(TrialEnd(createdAt, trialDays).Sub(now).Hours() / 24))
}

// InTrial reports whether now falls before the trial end.
func InTrial(createdAt time.Time, trialDays float64, now time.Time) bool {
	return now.Before(TrialEnd(createdAt, trialDays))
}

// DaysBetween returns the fractional number of days from a to b.
func DaysBetween(a, b time.Time) float64 {
	return b.Sub(a).Hours() / 24
}

// Round2 rounds to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
