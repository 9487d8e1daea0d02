package util

import "time"

// DateLayoutUS is the caller-facing scan date format (MM/DD/YYYY).
const DateLayoutUS = "01/02/2006"

// ParseDateUS parses an MM/DD/YYYY date.
func ParseDateUS(s string) (time.Time, error) {
	return time.Parse(DateLayoutUS, s)
}

// Midnight truncates t to its calendar day.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DaysBetween returns whole calendar days from a to b, ignoring clock time.
func DaysBetween(a, b time.Time) int {
	au := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bu := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bu.Sub(au).Hours() / 24)
}

// NextBusinessDay returns the next scan-eligible day after d: Friday and
// Saturday roll to the following Monday, everything else to the next calendar day.
func NextBusinessDay(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Friday:
		return d.AddDate(0, 0, 3)
	case time.Saturday:
		return d.AddDate(0, 0, 2)
	default:
		return d.AddDate(0, 0, 1)
	}
}
