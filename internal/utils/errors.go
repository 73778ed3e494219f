package utils

import (
	"fmt"
)

// ErrorWithSuggestion wraps an error with a user-friendly suggestion. The
// wrapped error carries the technical detail for logs; the suggestion is the
// user-visible notice shown by the rendering layer.
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface.
func (e *ErrorWithSuggestion) Error() string {
	return fmt.Sprintf("%s\n\nSuggestion: %s", e.Err.Error(), e.Suggestion)
}

// GetSuggestion returns the suggestion text.
func (e *ErrorWithSuggestion) GetSuggestion() string {
	return e.Suggestion
}

// Unwrap returns the underlying error for error chain support.
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// WrapWithSuggestion wraps an existing error with a suggestion.
func WrapWithSuggestion(err error, suggestion string) error {
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// ErrCategoryNotFound returns an error for when a category is not found.
func ErrCategoryNotFound(id string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("category not found: %s", id),
		Suggestion: "Run 'sidetask ls' to see all categories",
	}
}

// ErrTaskNotFound returns an error for when a task is not found.
func ErrTaskNotFound(id string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("task not found: %s", id),
		Suggestion: "Run 'sidetask ls' to see all tasks",
	}
}

// ErrSharedPathNotSet returns an error when shared mode is active without a path.
func ErrSharedPathNotSet() error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("shared mode is active but no shared file path is configured"),
		Suggestion: "Set a path with 'sidetask context shared <path>'",
	}
}

// ErrSharedFileUnreadable returns an error for an I/O failure on the shared file.
func ErrSharedFileUnreadable(path string, err error) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("could not read shared file %s: %w", path, err),
		Suggestion: "Check that the file exists and is readable; showing an empty list until it recovers",
	}
}

// ErrSharedFileMalformed returns an error for a parse failure on the shared file.
func ErrSharedFileMalformed(path string, err error) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("could not parse shared file %s: %w", path, err),
		Suggestion: "The file is not valid task data; showing an empty list until it recovers",
	}
}

// ErrSharedFileUnwritable returns an error for a write failure on the shared file.
func ErrSharedFileUnwritable(path string, err error) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("could not write shared file %s: %w", path, err),
		Suggestion: "Your change was not saved; check that the file is writable",
	}
}

// ErrInvalidDate returns an error for an invalid date string.
func ErrInvalidDate(dateStr string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid date: %s", dateStr),
		Suggestion: "Use date format YYYY-MM-DD (e.g., 2026-01-15)",
	}
}

// ErrInvalidInterval returns an error for a non-positive recurrence interval.
func ErrInvalidInterval(interval int) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid recurrence interval: %d", interval),
		Suggestion: "The interval must be a positive number of days",
	}
}

// ErrInvalidColor returns an error for a color outside the fixed palette.
func ErrInvalidColor(color string, palette []string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid color: %s", color),
		Suggestion: fmt.Sprintf("Valid colors: %v (or empty for default)", palette),
	}
}

// ErrEmptyCategoryName returns an error for a blank category name.
func ErrEmptyCategoryName() error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("category name cannot be empty"),
		Suggestion: "Provide a non-empty name",
	}
}
