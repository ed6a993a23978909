// Package timestamp provides standardized Unix timestamp handling utilities.
//
// This package uses int64 milliseconds as the canonical timestamp format. Event
// timestamps handed to message-queue producers are milliseconds since Unix epoch (UTC).
//
// Parsing never reports an error: a value that cannot be understood yields ok=false
// and the caller keeps the original field as-is.
//
// Usage Examples:
//
//	// Parse an rsyslog date-rfc3339 field
//	ms, ok := timestamp.ParseISO8601("2023-01-15T12:30:45.123456+01:00")
//
//	// Render it for a log line
//	fmt.Println(timestamp.Format(ms))
package timestamp

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Accepted date forms: YYYY, YYYY-MM, YYYY-MM-DD, YYYYMMDD and the ISO week dates
// YYYY-Www, YYYY-Www-D, YYYYWww, YYYYWwwD.
var dateRe = regexp.MustCompile(`^(\d{4})(?:-(\d{2})(?:-(\d{2}))?|(\d{2})(\d{2})|-?W(\d{2})(?:-?([1-7]))?)?`)

// Accepted time forms: hh, hh:mm, hhmm, hh:mm:ss, hhmmss, each with an optional
// fraction after the seconds ('.' or ',') and an optional Z, ±hh, ±hhmm or ±hh:mm.
var timeRe = regexp.MustCompile(`^(\d{2})(?::?(\d{2})(?::?(\d{2})(?:[.,](\d+))?)?)?([Zz]|[+-]\d{2}(?::?\d{2})?)?$`)

// ParseISO8601 converts an ISO-8601 date or date-time string to Unix milliseconds.
// A value without offset is taken as local time. Any single non-digit character
// separates date and time. 24:00 is midnight at the end of the day.
func ParseISO8601(s string) (int64, bool) {
	s = strings.TrimSpace(s)

	m := dateRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	day, ok := parseDate(m)
	if !ok {
		return 0, false
	}

	rest := s[len(m[0]):]
	if rest == "" {
		return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.Local).UnixMilli(), true
	}
	if len(rest) < 2 || isDigit(rest[0]) {
		return 0, false
	}

	t, ok := parseTime(day, rest[1:])
	if !ok {
		return 0, false
	}
	return t.UnixMilli(), true
}

// parseDate returns the calendar day named by a dateRe match, at midnight UTC.
func parseDate(m []string) (time.Time, bool) {
	year := atoi(m[1])
	if year < 1 {
		return time.Time{}, false
	}

	if m[6] != "" {
		week, weekday := atoi(m[6]), 1
		if m[7] != "" {
			weekday = atoi(m[7])
		}
		if week < 1 || week > 53 {
			return time.Time{}, false
		}
		jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
		monday := jan4.AddDate(0, 0, -((int(jan4.Weekday()) + 6) % 7))
		return monday.AddDate(0, 0, (week-1)*7+weekday-1), true
	}

	month, dom := 1, 1
	switch {
	case m[4] != "":
		month, dom = atoi(m[4]), atoi(m[5])
	case m[2] != "":
		month = atoi(m[2])
		if m[3] != "" {
			dom = atoi(m[3])
		}
	}
	return validDate(year, month, dom)
}

func validDate(year, month, dom int) (time.Time, bool) {
	if month < 1 || month > 12 || dom < 1 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), dom, 0, 0, 0, 0, time.UTC)
	if t.Month() != time.Month(month) {
		return time.Time{}, false
	}
	return t, true
}

// parseTime applies a timeRe time of day to day.
func parseTime(day time.Time, s string) (time.Time, bool) {
	m := timeRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}

	hour, minute, sec := atoi(m[1]), atoi(m[2]), atoi(m[3])
	nsec := fraction(m[4])
	if minute > 59 || sec > 59 {
		return time.Time{}, false
	}

	endOfDay := false
	switch {
	case hour == 24 && minute == 0 && sec == 0 && nsec == 0:
		hour, endOfDay = 0, true
	case hour > 23:
		return time.Time{}, false
	}

	loc, ok := zone(m[5])
	if !ok {
		return time.Time{}, false
	}

	t := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, sec, nsec, loc)
	if endOfDay {
		t = t.AddDate(0, 0, 1)
	}
	return t, true
}

// zone resolves a UTC designator or offset; no designator means local time.
func zone(s string) (*time.Location, bool) {
	switch s {
	case "":
		return time.Local, true
	case "Z", "z":
		return time.UTC, true
	}

	digits := strings.ReplaceAll(s[1:], ":", "")
	hours, minutes := atoi(digits[:2]), 0
	if len(digits) == 4 {
		minutes = atoi(digits[2:])
	}
	if hours > 23 || minutes > 59 {
		return nil, false
	}

	offset := hours*3600 + minutes*60
	if offset == 0 {
		return time.UTC, true
	}
	if s[0] == '-' {
		offset = -offset
	}
	return time.FixedZone("", offset), true
}

// fraction converts the digits after the decimal separator to nanoseconds.
func fraction(digits string) int {
	if digits == "" {
		return 0
	}
	if len(digits) > 9 {
		digits = digits[:9]
	}
	return atoi(digits + strings.Repeat("0", 9-len(digits)))
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// Format converts Unix milliseconds to RFC3339 (millisecond precision) for display.
// Returns empty string if timestamp is 0.
func Format(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
