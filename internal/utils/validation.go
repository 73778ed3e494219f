package utils

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"sidetask/backend"
)

// relativePattern matches relative date formats like +7d, -3d, +2w, +1m
var relativePattern = regexp.MustCompile(`^([+-])(\d+)([dwm])$`)

// parseRelativeDate parses relative date strings like "today", "tomorrow",
// "+7d", "-3d", "+2w", "+1m". Returns the zero time when the string is not a
// relative date format.
func parseRelativeDate(dateStr string) (time.Time, bool) {
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)

	lower := strings.ToLower(dateStr)

	switch lower {
	case "today":
		return today, true
	case "tomorrow":
		return today.AddDate(0, 0, 1), true
	case "yesterday":
		return today.AddDate(0, 0, -1), true
	}

	matches := relativePattern.FindStringSubmatch(lower)
	if matches == nil {
		return time.Time{}, false
	}

	num, err := strconv.Atoi(matches[2])
	if err != nil {
		return time.Time{}, false
	}
	if matches[1] == "-" {
		num = -num
	}

	switch matches[3] {
	case "d":
		return today.AddDate(0, 0, num), true
	case "w":
		return today.AddDate(0, 0, num*7), true
	case "m":
		return today.AddDate(0, num, 0), true
	}
	return time.Time{}, false
}

// ParseDateFlag parses a date string supporting both relative and absolute
// formats. Supported relative formats: today, tomorrow, yesterday, +Nd, -Nd,
// +Nw, +Nm. Absolute format: YYYY-MM-DD. Returns the empty string for an
// empty input (clear date) and the canonical stored form otherwise.
func ParseDateFlag(dateStr string) (string, error) {
	if dateStr == "" {
		return "", nil
	}

	if t, ok := parseRelativeDate(dateStr); ok {
		return t.Format(backend.DateLayout), nil
	}

	parsed, err := time.ParseInLocation(backend.DateLayout, dateStr, time.Local)
	if err != nil {
		return "", ErrInvalidDate(dateStr)
	}
	return parsed.Format(backend.DateLayout), nil
}

// DateFormat selects how stored dates are rendered for display.
// Stored values are always canonical YYYY-MM-DD regardless of this setting.
type DateFormat string

const (
	DateFormatISO  DateFormat = "yyyy-mm-dd"
	DateFormatEU   DateFormat = "dd-mm-yyyy"
	DateFormatAuto DateFormat = "auto" // locale-style month name
)

// ValidDateFormat reports whether f is one of the supported display formats.
func ValidDateFormat(f DateFormat) bool {
	switch f {
	case DateFormatISO, DateFormatEU, DateFormatAuto, "":
		return true
	}
	return false
}

// FormatDisplayDate renders a stored YYYY-MM-DD date for display. Unparseable
// values are returned verbatim rather than failing a render.
func FormatDisplayDate(stored string, format DateFormat) string {
	if stored == "" {
		return ""
	}
	t, err := time.ParseInLocation(backend.DateLayout, stored, time.Local)
	if err != nil {
		return stored
	}
	switch format {
	case DateFormatEU:
		return t.Format("02-01-2006")
	case DateFormatAuto:
		return t.Format("Jan 2, 2006")
	default:
		return t.Format(backend.DateLayout)
	}
}
