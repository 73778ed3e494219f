// Package recur computes occurrence dates for repeating tasks. It is a pure
// function library: no I/O, no state.
package recur

import (
	"fmt"
	"time"

	"sidetask/backend"
)

// MaxExceptionSkips bounds the exception-date skip loop. A rule whose next
// MaxExceptionSkips steps are all excepted is treated as having no further
// occurrence rather than looping forever.
const MaxExceptionSkips = 100

// ParseDate parses a canonical YYYY-MM-DD date in the local timezone.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(backend.DateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders a date in canonical YYYY-MM-DD form.
func FormatDate(t time.Time) string {
	return t.Format(backend.DateLayout)
}

// Today returns the current calendar date at local midnight.
func Today() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
}

// ValidateRule checks a rule before it is stored. Non-positive custom
// intervals and malformed dates are rejected here so they never reach the
// stepping logic.
func ValidateRule(rule *backend.RecurrenceRule) error {
	if !rule.Active() {
		return nil
	}
	switch rule.Type {
	case backend.RecurDaily, backend.RecurWeekly, backend.RecurMonthly:
	case backend.RecurCustomDays:
		if rule.IntervalValue < 1 {
			return fmt.Errorf("recurrence interval must be a positive number of days, got %d", rule.IntervalValue)
		}
	default:
		return fmt.Errorf("unknown recurrence type %q", rule.Type)
	}
	if rule.Until != "" {
		if _, err := ParseDate(rule.Until); err != nil {
			return fmt.Errorf("invalid recurrence end date: %w", err)
		}
	}
	for _, d := range rule.ExceptionDates {
		if _, err := ParseDate(d); err != nil {
			return fmt.Errorf("invalid exception date: %w", err)
		}
	}
	return nil
}

// step advances a date by one rule-defined interval. Monthly steps preserve
// the day of month, with overflow normalized by time.AddDate.
func step(rule *backend.RecurrenceRule, from time.Time) time.Time {
	switch rule.Type {
	case backend.RecurDaily:
		return from.AddDate(0, 0, 1)
	case backend.RecurWeekly:
		return from.AddDate(0, 0, 7)
	case backend.RecurMonthly:
		return from.AddDate(0, 1, 0)
	case backend.RecurCustomDays:
		return from.AddDate(0, 0, rule.IntervalValue)
	}
	return from
}

// excepted reports whether date is in the rule's exception set. Dates that
// fail to parse are ignored; the validating parse at the storage boundary
// keeps them out of persisted rules.
func excepted(rule *backend.RecurrenceRule, date time.Time) bool {
	s := FormatDate(date)
	for _, d := range rule.ExceptionDates {
		if d == s {
			return true
		}
	}
	return false
}

// Next computes the next occurrence strictly after anchor. It returns false
// when the rule is inactive, the next occurrence would fall strictly after
// the rule's end date, or MaxExceptionSkips consecutive steps were excepted.
// An occurrence equal to the end date is included.
func Next(rule *backend.RecurrenceRule, anchor time.Time) (time.Time, bool) {
	if !rule.Active() {
		return time.Time{}, false
	}
	if rule.Type == backend.RecurCustomDays && rule.IntervalValue < 1 {
		return time.Time{}, false
	}

	var until time.Time
	hasUntil := false
	if rule.Until != "" {
		t, err := ParseDate(rule.Until)
		if err != nil {
			return time.Time{}, false
		}
		until = t
		hasUntil = true
	}

	date := anchor
	for i := 0; i < MaxExceptionSkips; i++ {
		date = step(rule, date)
		if hasUntil && date.After(until) {
			return time.Time{}, false
		}
		if excepted(rule, date) {
			continue
		}
		return date, true
	}
	return time.Time{}, false
}

// Preview is the result of enumerating upcoming occurrences for display.
type Preview struct {
	Dates     []time.Time
	Truncated bool   // the limit cut the sequence off before the rule ended
	Remaining int    // further occurrences up to Until, when Truncated and the rule has an end date
	Repeats   string // repetition description, when Truncated and the rule is unbounded
}

// Enumerate produces up to limit future occurrences after anchor, stopping
// early when the rule's end date is reached. When the sequence was truncated
// by the limit rather than by the end date, the preview reports either the
// count of further occurrences (bounded rules) or the repetition description
// (unbounded rules).
func Enumerate(rule *backend.RecurrenceRule, anchor time.Time, limit int) Preview {
	p := Preview{}
	if !rule.Active() || limit <= 0 {
		return p
	}

	date := anchor
	for len(p.Dates) < limit {
		next, ok := Next(rule, date)
		if !ok {
			return p
		}
		p.Dates = append(p.Dates, next)
		date = next
	}

	// Limit reached. Probe one more step to learn whether the rule continues.
	next, ok := Next(rule, date)
	if !ok {
		return p
	}
	p.Truncated = true

	if rule.Until == "" {
		p.Repeats = Describe(rule)
		return p
	}

	// Bounded rule: keep stepping without emitting to count the remainder.
	p.Remaining = 1
	date = next
	for {
		next, ok = Next(rule, date)
		if !ok {
			return p
		}
		p.Remaining++
		date = next
	}
}

// Describe renders a rule's repetition as display text, e.g. "every 3 days".
func Describe(rule *backend.RecurrenceRule) string {
	switch rule.Type {
	case backend.RecurDaily:
		return "every day"
	case backend.RecurWeekly:
		return "every week"
	case backend.RecurMonthly:
		return "every month"
	case backend.RecurCustomDays:
		if rule.IntervalValue == 1 {
			return "every day"
		}
		return fmt.Sprintf("every %d days", rule.IntervalValue)
	}
	return ""
}
