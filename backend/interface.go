package backend

import (
	"context"

	"github.com/google/uuid"
)

// DateLayout is the canonical stored form of all calendar dates.
// Display formatting is applied at render time and never mutates stored values.
const DateLayout = "2006-01-02"

// RecurrenceType identifies how a task repeats.
type RecurrenceType string

const (
	RecurNone       RecurrenceType = "none"
	RecurDaily      RecurrenceType = "daily"
	RecurWeekly     RecurrenceType = "weekly"
	RecurMonthly    RecurrenceType = "monthly"
	RecurCustomDays RecurrenceType = "customDays"
)

// RecurrenceRule is the repeat schedule attached to a task.
// When Type is RecurNone (or the rule is nil) the remaining fields are ignored.
type RecurrenceRule struct {
	Type           RecurrenceType `json:"type"`
	IntervalValue  int            `json:"intervalValue,omitempty"`  // custom-days step, must be >= 1
	Until          string         `json:"until,omitempty"`          // last allowed occurrence, YYYY-MM-DD
	ExceptionDates []string       `json:"exceptionDates,omitempty"` // dates explicitly skipped
}

// Active reports whether the rule generates occurrences.
func (r *RecurrenceRule) Active() bool {
	return r != nil && r.Type != "" && r.Type != RecurNone
}

// Task is a single todo item. A task lives in exactly one category and never
// moves between categories.
type Task struct {
	ID         string          `json:"id"`
	Text       string          `json:"text"`
	Completed  bool            `json:"completed"`
	DueDate    string          `json:"dueDate,omitempty"` // YYYY-MM-DD, empty when unset
	Scratchpad string          `json:"scratchpad,omitempty"`
	Recurrence *RecurrenceRule `json:"recurrence,omitempty"`
}

// SortOrder remembers the direction of the last chronological sort applied to
// a category, so repeated sort requests toggle direction.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Category is a named, colorable, collapsible, ordered group of tasks.
// Task order is meaningful: it is both the display and the persisted order.
type Category struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Tasks         []Task    `json:"tasks"`
	IsCollapsed   bool      `json:"isCollapsed,omitempty"`
	Color         string    `json:"color,omitempty"` // one of Palette, empty for default
	LastSortOrder SortOrder `json:"lastSortOrder,omitempty"`
}

// Palette is the fixed set of named category swatches. The empty string
// (default background) is always valid and is not listed.
var Palette = []string{"red", "orange", "yellow", "green", "teal", "blue", "purple", "pink", "gray"}

// ValidColor reports whether color names a palette swatch or the default.
func ValidColor(color string) bool {
	if color == "" {
		return true
	}
	for _, c := range Palette {
		if c == color {
			return true
		}
	}
	return false
}

// CategoryStore is the persistence contract shared by the local blob store and
// the shared-file store. The category list is the unit read and written
// atomically; implementations must never partially persist a mutation.
//
// DeleteCategory and DeleteTasks exist as dedicated paths because in shared
// mode a delete expressed through SaveCategories would be resurrected by the
// reconciliation union when another process's snapshot still holds the item.
// Deleting an identity that no longer exists is a no-op in both modes: the
// item may already have been removed by another writer.
type CategoryStore interface {
	GetCategories(ctx context.Context) ([]Category, error)
	SaveCategories(ctx context.Context, categories []Category) error
	DeleteCategory(ctx context.Context, categoryID string) error
	DeleteTasks(ctx context.Context, categoryID string, taskIDs ...string) error
	Close() error
}

// GenerateID generates a unique identifier using UUID v4.
func GenerateID() string {
	return uuid.New().String()
}

// FindCategory returns the index of the category with the given ID, or -1.
func FindCategory(categories []Category, id string) int {
	for i := range categories {
		if categories[i].ID == id {
			return i
		}
	}
	return -1
}

// FindTask returns the index of the task with the given ID, or -1.
func FindTask(tasks []Task, id string) int {
	for i := range tasks {
		if tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// CloneCategories deep-copies a category list so callers can hand out
// snapshots without exposing internal state to mutation.
func CloneCategories(categories []Category) []Category {
	out := make([]Category, len(categories))
	for i, c := range categories {
		out[i] = c
		out[i].Tasks = make([]Task, len(c.Tasks))
		for j, t := range c.Tasks {
			out[i].Tasks[j] = t
			if t.Recurrence != nil {
				rule := *t.Recurrence
				rule.ExceptionDates = append([]string(nil), t.Recurrence.ExceptionDates...)
				out[i].Tasks[j].Recurrence = &rule
			}
		}
	}
	return out
}
