// Package shared implements a CategoryStore backed by an external JSON file
// that multiple independent sidetask processes read and write together.
// Every save re-reads the file and reconciles it with the caller's in-memory
// snapshot (see Merge) before rewriting it whole.
//
// There is no lock around the read-modify-write cycle: two processes writing
// within the same cycle race, and the later writer's merge wins per field.
// The merge is a best-effort mitigation, not a guarantee.
package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"sidetask/backend"
	"sidetask/internal/recur"
	"sidetask/internal/utils"
)

// fileData is the on-disk shape of the shared file: a single tagged object so
// arbitrary JSON shapes are rejected by the validating parse rather than
// trusted.
type fileData struct {
	Categories []backend.Category `json:"categories"`
}

// Store implements backend.CategoryStore for the shared JSON file.
type Store struct {
	path string
}

// New creates a shared store for the file at path.
func New(path string) *Store {
	return &Store{path: path}
}

// Close closes the store.
func (s *Store) Close() error {
	return nil
}

// Path returns the shared file path.
func (s *Store) Path() string {
	return s.path
}

// GetCategories reads and parses the shared file. On a missing file, parse
// failure, or I/O error, it returns an empty list together with a noticeable
// error; callers surface the notice and keep the view interactive.
func (s *Store) GetCategories(ctx context.Context) ([]backend.Category, error) {
	cats, err := s.readDisk()
	if err != nil {
		return []backend.Category{}, err
	}
	return cats, nil
}

// SaveCategories reconciles the caller's snapshot with a fresh disk read and
// rewrites the file whole. A missing file is treated as an empty merge base.
func (s *Store) SaveCategories(ctx context.Context, categories []backend.Category) error {
	disk, err := s.readDisk()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		// A malformed or unreadable file must not eat the user's edits via a
		// merge against garbage; abort and leave the caller's state intact.
		return err
	}
	merged := Merge(disk, categories)
	return s.writeDisk(merged)
}

// DeleteCategory removes a category from the freshest disk read and writes
// back, bypassing the merge union so the deletion cannot be resurrected.
func (s *Store) DeleteCategory(ctx context.Context, categoryID string) error {
	disk, err := s.readDisk()
	if err != nil {
		return err
	}
	idx := backend.FindCategory(disk, categoryID)
	if idx >= 0 {
		disk = append(disk[:idx], disk[idx+1:]...)
	}
	return s.writeDisk(disk)
}

// DeleteTasks removes tasks from the freshest disk read and writes back,
// bypassing the merge union so the deletions cannot be resurrected.
func (s *Store) DeleteTasks(ctx context.Context, categoryID string, taskIDs ...string) error {
	disk, err := s.readDisk()
	if err != nil {
		return err
	}
	drop := make(map[string]bool, len(taskIDs))
	for _, id := range taskIDs {
		drop[id] = true
	}
	if ci := backend.FindCategory(disk, categoryID); ci >= 0 {
		kept := make([]backend.Task, 0, len(disk[ci].Tasks))
		for _, t := range disk[ci].Tasks {
			if !drop[t.ID] {
				kept = append(kept, t)
			}
		}
		disk[ci].Tasks = kept
	}
	return s.writeDisk(disk)
}

// readDisk reads, parses and sanitizes the shared file.
func (s *Store) readDisk() ([]backend.Category, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return []backend.Category{}, utils.ErrSharedFileUnreadable(s.path, err)
	}

	var fd fileData
	if err := json.Unmarshal(data, &fd); err != nil {
		return []backend.Category{}, utils.ErrSharedFileMalformed(s.path, err)
	}

	return sanitize(fd.Categories), nil
}

// writeDisk rewrites the shared file whole, pretty-printed with 2-space
// indent so other instances (and humans) can diff it.
func (s *Store) writeDisk(categories []backend.Category) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return utils.ErrSharedFileUnwritable(s.path, err)
	}

	data, err := json.MarshalIndent(fileData{Categories: categories}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode shared file: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return utils.ErrSharedFileUnwritable(s.path, err)
	}
	return nil
}

// sanitize normalizes a parsed category list: entries without an identity are
// dropped, out-of-palette colors and unknown sort orders reset, and recurrence
// rules that fail validation are cleared rather than carried into stepping.
func sanitize(categories []backend.Category) []backend.Category {
	out := make([]backend.Category, 0, len(categories))
	for _, c := range categories {
		if c.ID == "" {
			continue
		}
		if !backend.ValidColor(c.Color) {
			c.Color = ""
		}
		if c.LastSortOrder != backend.SortAsc && c.LastSortOrder != backend.SortDesc {
			c.LastSortOrder = ""
		}
		tasks := make([]backend.Task, 0, len(c.Tasks))
		for _, t := range c.Tasks {
			if t.ID == "" {
				continue
			}
			if t.Recurrence != nil {
				if !t.Recurrence.Active() || recur.ValidateRule(t.Recurrence) != nil {
					t.Recurrence = nil
				}
			}
			tasks = append(tasks, t)
		}
		c.Tasks = tasks
		out = append(out, c)
	}
	return out
}

// Verify interface compliance at compile time
var _ backend.CategoryStore = (*Store)(nil)
