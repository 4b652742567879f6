package entity

import "time"

// ParseYMD parses an ISO YYYY-MM-DD string to midnight UTC, matching
// the DATE column semantics used throughout storage.
func ParseYMD(s string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// FormatYMD renders a date as YYYY-MM-DD.
func FormatYMD(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
