// Package markdown renders the category list as a markdown checklist and
// parses it back, for exchanging tasks with plain-text note files.
package markdown

import (
	"fmt"
	"regexp"
	"strings"

	"sidetask/backend"
)

// Inline token sigils. A task line looks like:
//
//	- [ ] Water plants @2026-08-28 ^weekly ~2026-09-04
//
// where @ marks the due date, ^ the recurrence (daily, weekly, monthly, Nd,
// or until:YYYY-MM-DD) and ~ an exception date.
var (
	duePattern       = regexp.MustCompile(`@(\d{4}-\d{2}-\d{2})`)
	repeatPattern    = regexp.MustCompile(`\^(daily|weekly|monthly|\d+d)`)
	untilPattern     = regexp.MustCompile(`\^until:(\d{4}-\d{2}-\d{2})`)
	exceptionPattern = regexp.MustCompile(`~(\d{4}-\d{2}-\d{2})`)
	taskLinePattern  = regexp.MustCompile(`^- \[([ xX])\] (.+)$`)
	headingPattern   = regexp.MustCompile(`^## (.+)$`)
	notePattern      = regexp.MustCompile(`^ {2}> (.*)$`)
	customPattern    = regexp.MustCompile(`^(\d+)d$`)
)

// Render formats categories as a markdown document: one level-two heading per
// category, one checklist line per task, notes as indented blockquotes.
func Render(cats []backend.Category) string {
	var sb strings.Builder
	for i, cat := range cats {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("## ")
		sb.WriteString(cat.Name)
		sb.WriteString("\n\n")
		for _, t := range cat.Tasks {
			sb.WriteString(FormatTaskLine(t))
			sb.WriteString("\n")
			if t.Scratchpad != "" {
				for _, line := range strings.Split(t.Scratchpad, "\n") {
					sb.WriteString("  > ")
					sb.WriteString(line)
					sb.WriteString("\n")
				}
			}
		}
	}
	return sb.String()
}

// FormatTaskLine formats one task as a checklist line with inline tokens.
func FormatTaskLine(t backend.Task) string {
	status := " "
	if t.Completed {
		status = "x"
	}

	parts := []string{t.Text}
	if t.DueDate != "" {
		parts = append(parts, "@"+t.DueDate)
	}
	if t.Recurrence.Active() {
		parts = append(parts, "^"+repeatToken(t.Recurrence))
		if t.Recurrence.Until != "" {
			parts = append(parts, "^until:"+t.Recurrence.Until)
		}
		for _, d := range t.Recurrence.ExceptionDates {
			parts = append(parts, "~"+d)
		}
	}

	return fmt.Sprintf("- [%s] %s", status, strings.Join(parts, " "))
}

func repeatToken(r *backend.RecurrenceRule) string {
	switch r.Type {
	case backend.RecurDaily:
		return "daily"
	case backend.RecurWeekly:
		return "weekly"
	case backend.RecurMonthly:
		return "monthly"
	case backend.RecurCustomDays:
		return fmt.Sprintf("%dd", r.IntervalValue)
	}
	return ""
}

// Parse reads a markdown document back into categories. Tasks and categories
// receive fresh identities; lines that are neither headings, checklist items,
// nor note blockquotes are ignored. Tasks before the first heading go into a
// category named "Imported".
func Parse(data string) []backend.Category {
	var cats []backend.Category
	var lastTask *backend.Task

	ensureCategory := func() *backend.Category {
		if len(cats) == 0 {
			cats = append(cats, backend.Category{
				ID:    backend.GenerateID(),
				Name:  "Imported",
				Tasks: []backend.Task{},
			})
		}
		return &cats[len(cats)-1]
	}

	for _, line := range strings.Split(data, "\n") {
		if m := headingPattern.FindStringSubmatch(line); m != nil {
			cats = append(cats, backend.Category{
				ID:    backend.GenerateID(),
				Name:  strings.TrimSpace(m[1]),
				Tasks: []backend.Task{},
			})
			lastTask = nil
			continue
		}

		if m := notePattern.FindStringSubmatch(line); m != nil && lastTask != nil {
			if lastTask.Scratchpad != "" {
				lastTask.Scratchpad += "\n"
			}
			lastTask.Scratchpad += m[1]
			continue
		}

		trimmed := strings.TrimSpace(line)
		if m := taskLinePattern.FindStringSubmatch(trimmed); m != nil {
			cat := ensureCategory()
			task := ParseTaskLine(m[1], m[2])
			cat.Tasks = append(cat.Tasks, task)
			lastTask = &cat.Tasks[len(cat.Tasks)-1]
			continue
		}
	}

	return cats
}

// ParseTaskLine builds a task from a checkbox character and the line body,
// extracting and stripping the inline tokens.
func ParseTaskLine(statusChar, body string) backend.Task {
	task := backend.Task{
		ID:        backend.GenerateID(),
		Completed: strings.EqualFold(statusChar, "x"),
	}

	// until before repeat: both share the ^ sigil.
	var until string
	if m := untilPattern.FindStringSubmatch(body); m != nil {
		until = m[1]
		body = untilPattern.ReplaceAllString(body, "")
	}

	if m := repeatPattern.FindStringSubmatch(body); m != nil {
		task.Recurrence = ruleFromToken(m[1])
		body = repeatPattern.ReplaceAllString(body, "")
	}
	if task.Recurrence != nil {
		task.Recurrence.Until = until
		for _, m := range exceptionPattern.FindAllStringSubmatch(body, -1) {
			task.Recurrence.ExceptionDates = append(task.Recurrence.ExceptionDates, m[1])
		}
		body = exceptionPattern.ReplaceAllString(body, "")
	}

	if m := duePattern.FindStringSubmatch(body); m != nil {
		task.DueDate = m[1]
		body = duePattern.ReplaceAllString(body, "")
	}

	task.Text = strings.Join(strings.Fields(body), " ")
	return task
}

func ruleFromToken(token string) *backend.RecurrenceRule {
	switch token {
	case "daily":
		return &backend.RecurrenceRule{Type: backend.RecurDaily}
	case "weekly":
		return &backend.RecurrenceRule{Type: backend.RecurWeekly}
	case "monthly":
		return &backend.RecurrenceRule{Type: backend.RecurMonthly}
	}
	if m := customPattern.FindStringSubmatch(token); m != nil {
		var n int
		_, _ = fmt.Sscanf(m[1], "%d", &n)
		if n >= 1 {
			return &backend.RecurrenceRule{Type: backend.RecurCustomDays, IntervalValue: n}
		}
	}
	return nil
}
